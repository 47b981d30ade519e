package gamification

import (
	"time"

	"github.com/alem-hub/routine-hub/internal/domain/shared"
)

// SourceType names what triggered an XP grant.
type SourceType string

const (
	SourceRoutineCompletion SourceType = "routine_completion"
	SourceStreakMilestone   SourceType = "streak_milestone"
	SourceMission           SourceType = "mission"
	SourceChallenge         SourceType = "challenge"
)

// IsValid reports whether s is a known source type.
func (s SourceType) IsValid() bool {
	switch s {
	case SourceRoutineCompletion, SourceStreakMilestone, SourceMission, SourceChallenge:
		return true
	}
	return false
}

// XPTransaction is an append-only ledger entry. It is never updated or deleted.
type XPTransaction struct {
	ID         shared.TransactionID
	UserID     shared.UserID
	Amount     int64
	Reason     string
	SourceType SourceType

	// SourceRef identifies the fact that earned the XP, e.g. one execution
	// record. A user's ledger holds at most one entry per non-empty ref.
	SourceRef string

	CreatedAt time.Time
}
