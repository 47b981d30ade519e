package gamification

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/routine-hub/internal/domain/shared"
	"github.com/alem-hub/routine-hub/pkg/timeutil"
)

var now = time.Date(2024, time.September, 4, 12, 0, 0, 0, time.UTC)

func TestNextLevelXP(t *testing.T) {
	tests := []struct {
		level int
		want  int64
	}{
		{0, 100},
		{1, 100},
		{2, 110},
		{3, 121},
		{4, 133},
		{5, 146},
		{10, 235},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NextLevelXP(tt.level), "level %d", tt.level)
	}
}

func TestNextLevelXP_Monotonic(t *testing.T) {
	prev := NextLevelXP(1)
	for level := 2; level <= 2000; level++ {
		next := NextLevelXP(level)
		assert.GreaterOrEqual(t, next, prev, "level %d", level)
		prev = next
	}
}

func TestAddXP_NoLevelUp(t *testing.T) {
	p := NewProfile("user-1", now)

	res, err := AddXP(p, 40, "read", SourceRoutineCompletion, now)
	require.NoError(t, err)

	assert.False(t, res.LeveledUp)
	assert.Equal(t, 1, res.NewLevel)
	assert.Equal(t, int64(40), res.Profile.CurrentXP)
	assert.Equal(t, int64(40), res.NewTotalXP)
	assert.Equal(t, int64(100), res.Profile.NextLevelXP)
	assert.Equal(t, int64(40), res.Transaction.Amount)
	assert.Equal(t, SourceRoutineCompletion, res.Transaction.SourceType)
}

func TestAddXP_ExactThresholdLevelsUp(t *testing.T) {
	p := NewProfile("user-1", now)

	res, err := AddXP(p, 100, "", SourceMission, now)
	require.NoError(t, err)

	assert.True(t, res.LeveledUp)
	assert.Equal(t, 2, res.NewLevel)
	assert.Equal(t, int64(0), res.Profile.CurrentXP)
	assert.Equal(t, int64(110), res.Profile.NextLevelXP)
}

func TestAddXP_MultiLevelJump(t *testing.T) {
	p := NewProfile("user-1", now)

	// 100 + 110 + 121 = 331 reaches level 4 with 19 XP to spare.
	res, err := AddXP(p, 350, "challenge", SourceChallenge, now)
	require.NoError(t, err)

	assert.True(t, res.LeveledUp)
	assert.Equal(t, 1, res.OldLevel)
	assert.Equal(t, 4, res.NewLevel)
	assert.Equal(t, 3, res.LevelsGained)
	assert.Equal(t, int64(19), res.Profile.CurrentXP)
	assert.Equal(t, int64(133), res.Profile.NextLevelXP)
	assert.Equal(t, TotalXPForLevel(4)+19, res.NewTotalXP)
	assert.NoError(t, res.Profile.Validate())
}

func TestAddXP_RejectsNegativeAndUnknownSource(t *testing.T) {
	p := NewProfile("user-1", now)

	_, err := AddXP(p, -5, "", SourceMission, now)
	assert.True(t, errors.Is(err, shared.ErrNegativeXP))
	assert.True(t, errors.Is(err, shared.ErrNegativeValue))

	_, err = AddXP(p, 5, "", "gift", now)
	assert.True(t, errors.Is(err, shared.ErrInvalidSource))
}

func TestAddXP_IgnoresStaleStoredThreshold(t *testing.T) {
	p := NewProfile("user-1", now)
	p.NextLevelXP = 5 // corrupted cache

	res, err := AddXP(p, 10, "", SourceMission, now)
	require.NoError(t, err)
	assert.Equal(t, 1, res.NewLevel)
	assert.Equal(t, int64(100), res.Profile.NextLevelXP)
}

func TestAddXP_ReplayEqualsSum(t *testing.T) {
	amounts := []int64{0, 1, 7, 55, 99, 100, 101, 250, 1000, 12345}
	for _, a := range amounts {
		for _, b := range amounts {
			p := NewProfile("user-1", now)

			first, err := AddXP(p, a, "", SourceMission, now)
			require.NoError(t, err)
			seq, err := AddXP(first.Profile, b, "", SourceMission, now)
			require.NoError(t, err)

			once, err := AddXP(p, a+b, "", SourceMission, now)
			require.NoError(t, err)

			assert.Equal(t, once.Profile.Level, seq.Profile.Level, "a=%d b=%d", a, b)
			assert.Equal(t, once.Profile.CurrentXP, seq.Profile.CurrentXP, "a=%d b=%d", a, b)
			assert.Equal(t, once.Profile.TotalXP, seq.Profile.TotalXP, "a=%d b=%d", a, b)
		}
	}
}

func TestReplayLedger(t *testing.T) {
	entries := []XPTransaction{
		{Amount: 60, SourceType: SourceRoutineCompletion, CreatedAt: now},
		{Amount: 60, SourceType: SourceRoutineCompletion, CreatedAt: now},
		{Amount: 50, SourceType: SourceStreakMilestone, CreatedAt: now},
	}

	p, err := ReplayLedger("user-1", entries, now)
	require.NoError(t, err)

	assert.Equal(t, int64(170), p.TotalXP)
	assert.Equal(t, 2, p.Level)
	assert.Equal(t, int64(70), p.CurrentXP)

	_, err = ReplayLedger("user-1", []XPTransaction{{Amount: -1, SourceType: SourceMission}}, now)
	assert.Error(t, err)
}

func TestApplyStreak(t *testing.T) {
	p := NewProfile("user-1", now)

	p = ApplyStreak(p, 5, now)
	assert.Equal(t, 5, p.Streak)
	assert.Equal(t, 5, p.LongestStreak)

	p = ApplyStreak(p, 0, now)
	assert.Equal(t, 0, p.Streak)
	assert.Equal(t, 5, p.LongestStreak)

	p = ApplyStreak(p, -3, now)
	assert.Equal(t, 0, p.Streak)
	assert.NoError(t, p.Validate())
}

func TestMilestonesReached(t *testing.T) {
	assert.Empty(t, MilestonesReached(6))
	assert.Equal(t, []StreakMilestone{StreakMilestones[0]}, MilestonesReached(7))
	assert.Equal(t, []StreakMilestone{StreakMilestones[0]}, MilestonesReached(29))
	assert.Len(t, MilestonesReached(30), 2)
	assert.Len(t, MilestonesReached(365), 3)
}

func TestMilestonePaidInRun(t *testing.T) {
	routineID := shared.NewRoutineID()
	other := shared.NewRoutineID()
	runStart := timeutil.MustParseCivilDate("2024-03-01")
	today := timeutil.MustParseCivilDate("2024-03-10")

	refs := []string{
		MilestoneRef(routineID, 7, timeutil.MustParseCivilDate("2024-02-01")),
		MilestoneRef(other, 7, runStart),
		"completion:" + shared.NewExecutionID().String(),
	}
	assert.False(t, MilestonePaidInRun(refs, routineID, 7, runStart, today), "older run and other routine")

	// A backfill moved the run start earlier; the bonus paid to the later start still counts.
	refs = append(refs, MilestoneRef(routineID, 7, timeutil.MustParseCivilDate("2024-03-03")))
	assert.True(t, MilestonePaidInRun(refs, routineID, 7, runStart, today))
	assert.False(t, MilestonePaidInRun(refs, routineID, 30, runStart, today))
}

func TestAddXP_RejectsOverflow(t *testing.T) {
	p := NewProfile("u1", now)
	p.TotalXP = math.MaxInt64 - 5

	_, err := AddXP(p, 6, "too much", SourceMission, now)
	assert.ErrorIs(t, err, shared.ErrValueOutOfRange)

	res, err := AddXP(p, 5, "exact", SourceMission, now)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), res.NewTotalXP)
}
