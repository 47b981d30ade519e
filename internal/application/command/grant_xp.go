package command

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/alem-hub/routine-hub/internal/domain/gamification"
	"github.com/alem-hub/routine-hub/internal/domain/shared"
	"github.com/alem-hub/routine-hub/internal/infrastructure/metrics"
	"github.com/alem-hub/routine-hub/pkg/logger"
	"github.com/alem-hub/routine-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// GRANT XP COMMAND
// Grants XP to a user: lock the user, load the profile, run the leveling
// engine, then compare-and-swap the profile together with its ledger entry.
// ══════════════════════════════════════════════════════════════════════════════

// GrantXPCommand contains the data to grant XP.
type GrantXPCommand struct {
	UserID     string
	Amount     int64
	Reason     string
	SourceType gamification.SourceType

	// SourceRef makes the grant idempotent: a ref already in the user's
	// ledger is not granted again.
	SourceRef string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c GrantXPCommand) Validate() error {
	if _, err := shared.NewUserID(c.UserID); err != nil {
		return err
	}
	if c.Amount < 0 {
		return shared.ErrNegativeXP
	}
	if !c.SourceType.IsValid() {
		return shared.ErrInvalidSource
	}
	return nil
}

// GrantXPResult is the leveling outcome of a grant.
type GrantXPResult struct {
	NewLevel     int
	OldLevel     int
	LeveledUp    bool
	LevelsGained int
	NewTotalXP   int64
	Profile      gamification.Profile

	// Transaction is the last ledger entry written; zero when nothing was.
	Transaction gamification.XPTransaction

	// AlreadyGranted is set when the source ref was recorded before.
	AlreadyGranted bool
}

func newGrantXPResult(out grantOutcome) *GrantXPResult {
	res := &GrantXPResult{
		NewLevel:     out.Profile.Level,
		OldLevel:     out.OldLevel,
		LeveledUp:    out.Profile.Level > out.OldLevel,
		LevelsGained: out.Profile.Level - out.OldLevel,
		NewTotalXP:   out.Profile.TotalXP,
		Profile:      out.Profile,
	}
	if n := len(out.Applied); n > 0 {
		res.Transaction = out.Applied[n-1].Transaction
	}
	return res
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GrantXPHandler handles GrantXPCommand.
type GrantXPHandler struct {
	profiles  gamification.ProfileRepository
	locker    shared.UserLocker
	publisher shared.EventPublisher
	retrier   *retry.Retrier
	clock     Clock
	log       *logger.Logger
}

// GrantXPHandlerConfig contains configuration for the handler.
type GrantXPHandlerConfig struct {
	// ConflictAttempts bounds the compare-and-swap attempts per grant.
	ConflictAttempts int

	Clock  Clock
	Logger *logger.Logger
}

// DefaultGrantXPHandlerConfig returns default configuration.
func DefaultGrantXPHandlerConfig() GrantXPHandlerConfig {
	return GrantXPHandlerConfig{ConflictAttempts: 5}
}

// NewGrantXPHandler creates a new GrantXPHandler.
func NewGrantXPHandler(
	profiles gamification.ProfileRepository,
	locker shared.UserLocker,
	publisher shared.EventPublisher,
	config GrantXPHandlerConfig,
) *GrantXPHandler {
	if config.ConflictAttempts <= 0 {
		config.ConflictAttempts = DefaultGrantXPHandlerConfig().ConflictAttempts
	}
	if config.Logger == nil {
		config.Logger = logger.L()
	}
	log := config.Logger.With(logger.Component("grant_xp"))

	return &GrantXPHandler{
		profiles:  profiles,
		locker:    locker,
		publisher: publisher,
		retrier: retry.ConflictRetrier(config.ConflictAttempts, shared.IsConflict, func(attempt int, err error, delay time.Duration) {
			log.Debug("profile conflict, retrying", logger.Int("attempt", attempt), logger.Duration("delay", delay))
		}),
		clock: clockOrSystem(config.Clock),
		log:   log,
	}
}

// Handle executes the grant XP command.
func (h *GrantXPHandler) Handle(ctx context.Context, cmd GrantXPCommand) (*GrantXPResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("grant_xp: validation failed: %w", err)
	}
	userID := shared.UserID(cmd.UserID)
	now := h.clock()

	unlock, err := lockUser(ctx, h.locker, userID)
	if err != nil {
		return nil, fmt.Errorf("grant_xp: %w", err)
	}
	defer unlock()

	grant := xpGrant{amount: cmd.Amount, reason: cmd.Reason, source: cmd.SourceType, ref: cmd.SourceRef}
	out, err := h.grantLocked(ctx, userID, []xpGrant{grant}, nil, now)
	if err != nil {
		return nil, fmt.Errorf("grant_xp: %w", err)
	}

	publishAll(ctx, h.publisher, cmd.CorrelationID, out.events(userID, now)...)
	res := newGrantXPResult(out)
	res.AlreadyGranted = len(out.Skipped) > 0
	return res, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Profile mutation
// ─────────────────────────────────────────────────────────────────────────────

type xpGrant struct {
	amount int64
	reason string
	source gamification.SourceType
	ref    string
}

// grantOutcome is one committed profile change.
type grantOutcome struct {
	Profile  gamification.Profile
	OldLevel int

	// Applied holds one result per grant written, in grant order.
	Applied []gamification.LevelResult
	// Skipped holds the indexes of grants whose ref was already recorded.
	Skipped []int
}

func (o grantOutcome) applied(i int) bool {
	return !slices.Contains(o.Skipped, i)
}

func (o grantOutcome) events(userID shared.UserID, now time.Time) []shared.Event {
	var events []shared.Event
	for _, res := range o.Applied {
		tx := res.Transaction
		events = append(events, shared.NewXPGainedEvent(userID, tx.Amount, res.NewTotalXP, string(tx.SourceType), tx.Reason, now))
		if res.LeveledUp {
			events = append(events, shared.NewLevelUpEvent(userID, res.OldLevel, res.NewLevel, res.NewTotalXP, now))
		}
	}
	return events
}

// grantLocked applies grants in order, and optionally a new streak value, to
// the user's profile in one commit. Grants whose ref is already in the ledger
// are skipped. Nothing is written when no grant applies and the streak is
// unchanged. Conflicting writers make it reload and reapply. The caller must
// hold the user's lock.
func (h *GrantXPHandler) grantLocked(ctx context.Context, userID shared.UserID, grants []xpGrant, streak *int, now time.Time) (grantOutcome, error) {
	var out grantOutcome

	err := h.retrier.Do(ctx, func(ctx context.Context) error {
		p, expected, err := h.load(ctx, userID, now)
		if err != nil {
			return err
		}

		out = grantOutcome{OldLevel: p.Level}
		dirty := false
		if streak != nil {
			before := p
			p = gamification.ApplyStreak(p, *streak, now)
			dirty = p.Streak != before.Streak || p.LongestStreak != before.LongestStreak
		}

		var entries []gamification.XPTransaction
		for i, g := range grants {
			if g.ref != "" {
				recorded, err := h.recorded(ctx, userID, g.ref)
				if err != nil {
					return err
				}
				if recorded {
					out.Skipped = append(out.Skipped, i)
					continue
				}
			}
			res, err := gamification.AddXP(p, g.amount, g.reason, g.source, now)
			if err != nil {
				return err
			}
			res.Transaction.SourceRef = g.ref
			p = res.Profile
			out.Applied = append(out.Applied, res)
			entries = append(entries, res.Transaction)
		}

		if len(entries) == 0 && !dirty {
			out.Profile = p
			return nil
		}

		if err := h.profiles.Commit(ctx, &p, expected, entries); err != nil {
			if shared.IsConflict(err) {
				metrics.ProfileConflicts.Inc()
			}
			return err
		}
		out.Profile = p
		return nil
	})
	if err != nil {
		return grantOutcome{}, err
	}

	for _, res := range out.Applied {
		metrics.XPGranted.WithLabelValues(string(res.Transaction.SourceType)).Add(float64(res.Transaction.Amount))
	}
	if gained := out.Profile.Level - out.OldLevel; gained > 0 {
		metrics.LevelUps.Add(float64(gained))
		h.log.Info("level up",
			logger.UserID(userID.String()),
			logger.LevelNum(out.Profile.Level),
			logger.Int64("total_xp", out.Profile.TotalXP),
		)
	}
	return out, nil
}

// recorded reports whether ref is already in the user's ledger.
func (h *GrantXPHandler) recorded(ctx context.Context, userID shared.UserID, ref string) (bool, error) {
	refs, err := h.profiles.SourceRefs(ctx, userID, ref)
	if err != nil {
		return false, fmt.Errorf("load source refs: %w", err)
	}
	return slices.Contains(refs, ref), nil
}

// load returns the stored profile and its version, or a fresh profile with
// version 0 for a user seen for the first time.
func (h *GrantXPHandler) load(ctx context.Context, userID shared.UserID, now time.Time) (gamification.Profile, int64, error) {
	stored, err := h.profiles.Get(ctx, userID)
	switch {
	case err == nil:
		return *stored, stored.Version, nil
	case errors.Is(err, shared.ErrProfileNotFound):
		return gamification.NewProfile(userID, now), 0, nil
	default:
		return gamification.Profile{}, 0, fmt.Errorf("load profile: %w", err)
	}
}
