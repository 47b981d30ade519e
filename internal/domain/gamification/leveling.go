package gamification

import (
	"math"
	"strings"
	"time"

	"github.com/alem-hub/routine-hub/internal/domain/shared"
)

// Leveling curve parameters: nextLevelXP(level) = floor(BaseLevelXP * GrowthRate^(level-1)).
const (
	BaseLevelXP = 100.0
	GrowthRate  = 1.1
)

// maxThreshold saturates the curve long before float64 -> int64 overflows.
const maxThreshold = int64(1) << 53

// NextLevelXP returns the XP needed to advance from level to level+1.
// Levels below 1 are treated as 1.
func NextLevelXP(level int) int64 {
	if level < 1 {
		level = 1
	}
	v := math.Floor(BaseLevelXP * math.Pow(GrowthRate, float64(level-1)))
	if v >= float64(maxThreshold) || math.IsInf(v, 1) {
		return maxThreshold
	}
	return int64(v)
}

// LevelResult is the outcome of AddXP.
type LevelResult struct {
	Profile      Profile
	LeveledUp    bool
	OldLevel     int
	NewLevel     int
	LevelsGained int
	NewTotalXP   int64
	Transaction  XPTransaction
}

// AddXP grants amount XP to the profile and returns the updated copy.
//
// The level loop fires level -> level+1 while CurrentXP >= NextLevelXP(level),
// so a single large grant can jump several levels. Thresholds are recomputed
// from the curve at every step and never read from the stored profile.
// Negative amounts are rejected; corrections are compensating ledger entries
// made upstream.
func AddXP(p Profile, amount int64, reason string, source SourceType, now time.Time) (LevelResult, error) {
	if amount < 0 {
		return LevelResult{}, shared.ErrNegativeXP
	}
	if !source.IsValid() {
		return LevelResult{}, shared.ErrInvalidSource
	}
	if p.Level < 1 {
		p.Level = 1
	}
	if amount > math.MaxInt64-p.TotalXP || amount > math.MaxInt64-p.CurrentXP {
		return LevelResult{}, shared.ErrXPOverflow
	}

	old := p.Level
	p.TotalXP += amount
	p.CurrentXP += amount

	next := NextLevelXP(p.Level)
	for p.CurrentXP >= next {
		p.CurrentXP -= next
		p.Level++
		next = NextLevelXP(p.Level)
	}
	p.NextLevelXP = next
	p.UpdatedAt = now

	return LevelResult{
		Profile:      p,
		LeveledUp:    p.Level > old,
		OldLevel:     old,
		NewLevel:     p.Level,
		LevelsGained: p.Level - old,
		NewTotalXP:   p.TotalXP,
		Transaction: XPTransaction{
			ID:         shared.NewTransactionID(),
			UserID:     p.UserID,
			Amount:     amount,
			Reason:     strings.TrimSpace(reason),
			SourceType: source,
			CreatedAt:  now,
		},
	}, nil
}

// ReplayLedger rebuilds XP state from an append-only ledger. Streak fields are
// not part of the ledger and stay at zero.
func ReplayLedger(userID shared.UserID, entries []XPTransaction, now time.Time) (Profile, error) {
	p := NewProfile(userID, now)
	for _, e := range entries {
		res, err := AddXP(p, e.Amount, e.Reason, e.SourceType, e.CreatedAt)
		if err != nil {
			return Profile{}, err
		}
		p = res.Profile
	}
	p.UpdatedAt = now
	return p, nil
}

// TotalXPForLevel returns the cumulative XP at which level is reached.
func TotalXPForLevel(level int) int64 {
	var total int64
	for l := 1; l < level; l++ {
		total += NextLevelXP(l)
	}
	return total
}
