package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alem-hub/routine-hub/internal/domain/gamification"
	"github.com/alem-hub/routine-hub/internal/domain/shared"
)

// GetProfileQuery requests a user's gamification state.
type GetProfileQuery struct {
	UserID string

	// LedgerLimit returns the newest ledger entries when positive.
	LedgerLimit int
}

// ProfileDTO presents a profile.
type ProfileDTO struct {
	UserID        string    `json:"user_id"`
	Level         int       `json:"level"`
	TotalXP       int64     `json:"total_xp"`
	CurrentXP     int64     `json:"current_xp"`
	NextLevelXP   int64     `json:"next_level_xp"`
	LevelProgress float64   `json:"level_progress"`
	Streak        int       `json:"streak"`
	LongestStreak int       `json:"longest_streak"`
	UpdatedAt     time.Time `json:"updated_at"`

	Ledger []LedgerEntryDTO `json:"ledger,omitempty"`
}

// LedgerEntryDTO presents one XP transaction.
type LedgerEntryDTO struct {
	Amount     int64     `json:"amount"`
	Reason     string    `json:"reason"`
	SourceType string    `json:"source_type"`
	CreatedAt  time.Time `json:"created_at"`
}

// GetProfileHandler handles GetProfileQuery.
type GetProfileHandler struct {
	profiles gamification.ProfileRepository
	ledger   gamification.LedgerRepository
	clock    Clock
}

// NewGetProfileHandler creates a new handler. ledger may be nil.
func NewGetProfileHandler(profiles gamification.ProfileRepository, ledger gamification.LedgerRepository, clock Clock) *GetProfileHandler {
	return &GetProfileHandler{profiles: profiles, ledger: ledger, clock: clockOrSystem(clock)}
}

// Handle executes the query. A user without a stored profile reads as a
// fresh level-1 profile.
func (h *GetProfileHandler) Handle(ctx context.Context, q GetProfileQuery) (*ProfileDTO, error) {
	userID, err := shared.NewUserID(q.UserID)
	if err != nil {
		return nil, shared.WrapError("query", "GetProfile", shared.ErrValidation, err.Error(), err)
	}

	var p gamification.Profile
	stored, err := h.profiles.Get(ctx, userID)
	switch {
	case err == nil:
		p = *stored
	case errors.Is(err, shared.ErrProfileNotFound):
		p = gamification.NewProfile(userID, h.clock())
	default:
		return nil, fmt.Errorf("get_profile: %w", err)
	}

	dto := &ProfileDTO{
		UserID:        p.UserID.String(),
		Level:         p.Level,
		TotalXP:       p.TotalXP,
		CurrentXP:     p.CurrentXP,
		NextLevelXP:   gamification.NextLevelXP(p.Level),
		LevelProgress: p.LevelProgress(),
		Streak:        p.Streak,
		LongestStreak: p.LongestStreak,
		UpdatedAt:     p.UpdatedAt,
	}

	if q.LedgerLimit > 0 && h.ledger != nil {
		entries, err := h.ledger.ListByUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("get_profile: load ledger: %w", err)
		}
		if len(entries) > q.LedgerLimit {
			entries = entries[len(entries)-q.LedgerLimit:]
		}
		for i := len(entries) - 1; i >= 0; i-- {
			e := entries[i]
			dto.Ledger = append(dto.Ledger, LedgerEntryDTO{
				Amount:     e.Amount,
				Reason:     e.Reason,
				SourceType: string(e.SourceType),
				CreatedAt:  e.CreatedAt,
			})
		}
	}
	return dto, nil
}
