package query

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/alem-hub/routine-hub/internal/domain/routine"
	"github.com/alem-hub/routine-hub/internal/domain/shared"
	"github.com/alem-hub/routine-hub/internal/infrastructure/metrics"
	"github.com/alem-hub/routine-hub/pkg/logger"
	"github.com/alem-hub/routine-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ROUTINE PROGRESS QUERY
// Progress, streak and catch-up state of one routine. Progress and streak
// are memoized in two layers (process LRU, then the shared ProgressStore);
// catch-up is derived on every call because its pace depends on the instant.
// ══════════════════════════════════════════════════════════════════════════════

// ProgressStore is a shared memo of derived progress.
type ProgressStore interface {
	// Load reads the value stored under key into dest, reporting false on a miss.
	Load(ctx context.Context, key string, dest any) (bool, error)

	// Store memoizes v under key.
	Store(ctx context.Context, key string, v any) error
}

// GetRoutineProgressQuery requests the progress of one routine.
type GetRoutineProgressQuery struct {
	UserID    string
	RoutineID string

	// Timezone overrides the user's configured timezone.
	Timezone string
}

// Validate validates the query.
func (q GetRoutineProgressQuery) Validate() error {
	if _, err := shared.NewUserID(q.UserID); err != nil {
		return err
	}
	_, err := shared.ParseRoutineID(q.RoutineID)
	return err
}

// RoutineProgressDTO presents a routine's current state.
type RoutineProgressDTO struct {
	RoutineID string `json:"routine_id"`
	Title     string `json:"title"`
	GoalType  string `json:"goal_type"`
	Goal      string `json:"goal"`
	IsActive  bool   `json:"is_active"`

	ExecutedCount int       `json:"executed_count"`
	TargetCount   int       `json:"target_count"`
	ProgressRatio float64   `json:"progress_ratio"`
	IsCompleted   bool      `json:"is_completed"`
	IsDueToday    bool      `json:"is_due_today"`
	PeriodStart   time.Time `json:"period_start"`
	PeriodEnd     time.Time `json:"period_end"`

	Streak        int `json:"streak"`
	LongestStreak int `json:"longest_streak"`

	Catchup *CatchupDTO `json:"catchup,omitempty"`

	Date     string `json:"date"`
	Timezone string `json:"timezone"`
}

// progressMemo is the memoized part of a RoutineProgressDTO.
type progressMemo struct {
	Progress      routine.Progress `json:"progress"`
	Streak        int              `json:"streak"`
	LongestStreak int              `json:"longest_streak"`
}

// GetRoutineProgressHandler handles GetRoutineProgressQuery.
type GetRoutineProgressHandler struct {
	routines   routine.Repository
	executions routine.ExecutionRepository
	store      ProgressStore
	timezones  shared.TimezoneResolver
	local      *lru.Cache[string, progressMemo]
	group      singleflight.Group
	clock      Clock
}

// GetRoutineProgressHandlerConfig configures the handler.
type GetRoutineProgressHandlerConfig struct {
	// LocalCacheSize is the number of memos kept in process.
	LocalCacheSize int

	Clock Clock
}

// DefaultGetRoutineProgressHandlerConfig returns default configuration.
func DefaultGetRoutineProgressHandlerConfig() GetRoutineProgressHandlerConfig {
	return GetRoutineProgressHandlerConfig{LocalCacheSize: 4096}
}

// NewGetRoutineProgressHandler creates a new handler. store may be nil.
func NewGetRoutineProgressHandler(
	routines routine.Repository,
	executions routine.ExecutionRepository,
	store ProgressStore,
	timezones shared.TimezoneResolver,
	config GetRoutineProgressHandlerConfig,
) (*GetRoutineProgressHandler, error) {
	if config.LocalCacheSize <= 0 {
		config.LocalCacheSize = DefaultGetRoutineProgressHandlerConfig().LocalCacheSize
	}
	local, err := lru.New[string, progressMemo](config.LocalCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create progress lru: %w", err)
	}
	return &GetRoutineProgressHandler{
		routines:   routines,
		executions: executions,
		store:      store,
		timezones:  timezones,
		local:      local,
		clock:      clockOrSystem(config.Clock),
	}, nil
}

// Handle executes the query.
func (h *GetRoutineProgressHandler) Handle(ctx context.Context, q GetRoutineProgressQuery) (*RoutineProgressDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetRoutineProgress", shared.ErrValidation, err.Error(), err)
	}
	userID := shared.UserID(q.UserID)

	r, err := ownedRoutine(ctx, h.routines, userID, q.RoutineID)
	if err != nil {
		return nil, fmt.Errorf("get_routine_progress: %w", err)
	}

	now := h.clock()
	tc := timeContext(ctx, h.timezones, userID, q.Timezone)

	memo, err := h.memo(ctx, r, now, tc)
	if err != nil {
		return nil, fmt.Errorf("get_routine_progress: %w", err)
	}

	dto := &RoutineProgressDTO{
		RoutineID:     r.ID.String(),
		Title:         r.Title,
		GoalType:      string(r.Goal.Type()),
		Goal:          r.Goal.Describe(),
		IsActive:      r.IsLive(),
		ExecutedCount: memo.Progress.ExecutedCount,
		TargetCount:   memo.Progress.TargetCount,
		ProgressRatio: memo.Progress.ProgressRatio,
		IsCompleted:   memo.Progress.IsCompleted,
		IsDueToday:    memo.Progress.IsDueToday,
		PeriodStart:   memo.Progress.PeriodStart,
		PeriodEnd:     memo.Progress.PeriodEnd,
		Streak:        memo.Streak,
		LongestStreak: memo.LongestStreak,
		Date:          tc.CivilDayOf(now).String(),
		Timezone:      tc.Timezone(),
	}

	if r.Goal.Type() == routine.GoalFrequencyBased {
		a, err := routine.Analyze(r, memo.Progress, now, tc)
		if err != nil {
			return nil, fmt.Errorf("get_routine_progress: %w", err)
		}
		c := toCatchupDTO(a)
		dto.Catchup = &c
	}
	return dto, nil
}

// memoKey changes whenever an input of progress or streak changes: the
// records (revision), the routine itself (UpdatedAt) or the civil day.
func memoKey(r *routine.Routine, revision int64, now time.Time, tc timeutil.UserTimeContext) string {
	return fmt.Sprintf("%s:%d:%d:%s:%s", r.ID, revision, r.UpdatedAt.UnixNano(), tc.Timezone(), tc.CivilDayOf(now))
}

func (h *GetRoutineProgressHandler) memo(ctx context.Context, r *routine.Routine, now time.Time, tc timeutil.UserTimeContext) (progressMemo, error) {
	revision, err := h.executions.Revision(ctx, r.ID)
	if err != nil {
		return progressMemo{}, fmt.Errorf("load revision: %w", err)
	}
	key := memoKey(r, revision, now, tc)

	if m, ok := h.local.Get(key); ok {
		metrics.ProgressCacheRequests.WithLabelValues("lru", "hit").Inc()
		return m, nil
	}
	metrics.ProgressCacheRequests.WithLabelValues("lru", "miss").Inc()

	v, err, _ := h.group.Do(key, func() (any, error) {
		if m, ok := h.loadShared(ctx, key); ok {
			return m, nil
		}
		m, err := h.compute(ctx, r, now, tc)
		if err != nil {
			return progressMemo{}, err
		}
		h.storeShared(ctx, key, m)
		return m, nil
	})
	if err != nil {
		return progressMemo{}, err
	}

	m := v.(progressMemo)
	h.local.Add(key, m)
	return m, nil
}

func (h *GetRoutineProgressHandler) loadShared(ctx context.Context, key string) (progressMemo, bool) {
	if h.store == nil {
		return progressMemo{}, false
	}
	var m progressMemo
	ok, err := h.store.Load(ctx, key, &m)
	switch {
	case err != nil:
		metrics.ProgressCacheRequests.WithLabelValues("redis", "error").Inc()
		logger.FromContext(ctx).Warn("progress store read failed", logger.Err(err))
		return progressMemo{}, false
	case !ok:
		metrics.ProgressCacheRequests.WithLabelValues("redis", "miss").Inc()
		return progressMemo{}, false
	}
	metrics.ProgressCacheRequests.WithLabelValues("redis", "hit").Inc()
	return m, true
}

func (h *GetRoutineProgressHandler) storeShared(ctx context.Context, key string, m progressMemo) {
	if h.store == nil {
		return
	}
	if err := h.store.Store(ctx, key, m); err != nil {
		logger.FromContext(ctx).Warn("progress store write failed", logger.Err(err))
	}
}

func (h *GetRoutineProgressHandler) compute(ctx context.Context, r *routine.Routine, now time.Time, tc timeutil.UserTimeContext) (progressMemo, error) {
	start := time.Now()
	defer func() { metrics.ProgressComputeDuration.Observe(time.Since(start).Seconds()) }()

	records, err := h.executions.ListByRoutine(ctx, r.ID, historySince(r, now, tc))
	if err != nil {
		return progressMemo{}, fmt.Errorf("load executions: %w", err)
	}
	progress, err := routine.Aggregate(r, records, now, tc)
	if err != nil {
		return progressMemo{}, err
	}
	metrics.ProgressComputations.WithLabelValues(string(r.Goal.Type())).Inc()

	return progressMemo{
		Progress:      progress,
		Streak:        routine.CurrentStreak(r, records, now, tc),
		LongestStreak: routine.LongestStreak(r, records, tc),
	}, nil
}
