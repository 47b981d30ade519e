// Package gamification holds the user's progression state: level, XP and
// streak, the geometric leveling curve and the append-only XP ledger.
package gamification

import (
	"fmt"
	"time"

	"github.com/alem-hub/routine-hub/internal/domain/shared"
)

// Profile is a user's gamification state. It is changed only through AddXP
// and ApplyStreak; TotalXP and LongestStreak never decrease.
type Profile struct {
	UserID        shared.UserID
	Level         int
	TotalXP       int64
	CurrentXP     int64 // XP inside the current level, 0 <= CurrentXP < NextLevelXP
	NextLevelXP   int64
	Streak        int
	LongestStreak int
	Version       int64 // optimistic concurrency token, owned by persistence
	UpdatedAt     time.Time
}

// NewProfile returns a level-1 profile with no XP.
func NewProfile(userID shared.UserID, now time.Time) Profile {
	return Profile{
		UserID:      userID,
		Level:       1,
		NextLevelXP: NextLevelXP(1),
		UpdatedAt:   now,
	}
}

// Validate checks the profile invariants.
func (p Profile) Validate() error {
	switch {
	case p.UserID.IsEmpty():
		return shared.NewDomainError("gamification", "Validate", shared.ErrInvalidID, "user id is empty")
	case p.Level < 1:
		return shared.ErrInvalidLevel
	case p.TotalXP < 0 || p.CurrentXP < 0:
		return shared.NewDomainError("gamification", "Validate", shared.ErrNegativeValue, "xp cannot be negative")
	case p.CurrentXP >= NextLevelXP(p.Level):
		return shared.NewDomainError("gamification", "Validate", shared.ErrValueOutOfRange,
			fmt.Sprintf("current xp %d reaches threshold of level %d", p.CurrentXP, p.Level))
	case p.Streak < 0 || p.LongestStreak < p.Streak:
		return shared.NewDomainError("gamification", "Validate", shared.ErrValueOutOfRange, "streak bookkeeping is inconsistent")
	}
	return nil
}

// LevelProgress returns CurrentXP / NextLevelXP in [0, 1).
func (p Profile) LevelProgress() float64 {
	next := NextLevelXP(p.Level)
	if next <= 0 {
		return 0
	}
	return float64(p.CurrentXP) / float64(next)
}

// ApplyStreak records a new streak value. LongestStreak keeps the maximum.
// Negative values are clamped to zero.
func ApplyStreak(p Profile, streak int, now time.Time) Profile {
	streak = max(0, streak)
	p.Streak = streak
	p.LongestStreak = max(p.LongestStreak, streak)
	p.UpdatedAt = now
	return p
}
