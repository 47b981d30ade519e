package routine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/routine-hub/pkg/timeutil"
)

func TestAggregate_WeeklyOverAchieved(t *testing.T) {
	tc := timeutil.UTC()
	r := frequencyRoutine(t, PeriodWeekly, 3)

	// Week of Sunday 2024-09-01; now is Wednesday.
	now := time.Date(2024, time.September, 4, 15, 0, 0, 0, time.UTC)
	records := completedOnDays(r, tc, "2024-09-01", "2024-09-02", "2024-09-02", "2024-09-03", "2024-09-04")
	records = append(records, completedOnDays(r, tc, "2024-08-31")...) // previous week

	p, err := Aggregate(r, records, now, tc)
	require.NoError(t, err)

	assert.Equal(t, 5, p.ExecutedCount)
	assert.Equal(t, 3, p.TargetCount)
	assert.Equal(t, 1.0, p.ProgressRatio)
	assert.True(t, p.IsCompleted)
	assert.Equal(t, "2024-09-01", tc.FormatDate(p.PeriodStart))
	assert.Equal(t, "2024-09-08", tc.FormatDate(p.PeriodEnd))

	a, err := Analyze(r, p, now, tc)
	require.NoError(t, err)
	assert.False(t, a.NeedsCatchup)
	assert.Equal(t, 0, a.Plan.RemainingTarget)
	assert.Equal(t, UrgencyNone, a.Urgency)
}

func TestAggregate_IgnoresIncompleteDeletedAndForeignRecords(t *testing.T) {
	tc := timeutil.UTC()
	r := frequencyRoutine(t, PeriodDaily, 2)
	other := frequencyRoutine(t, PeriodDaily, 2)
	now := time.Date(2024, time.September, 4, 20, 0, 0, 0, time.UTC)

	done := completedAt(r, now.Add(-time.Hour))
	skipped := completedAt(r, now.Add(-2*time.Hour))
	skipped.IsCompleted = false
	deleted := completedAt(r, now.Add(-3*time.Hour))
	deleted.SoftDelete(now)
	foreign := completedAt(other, now.Add(-time.Hour))

	p, err := Aggregate(r, []*ExecutionRecord{done, skipped, deleted, foreign}, now, tc)
	require.NoError(t, err)

	assert.Equal(t, 1, p.ExecutedCount)
	assert.Equal(t, 0.5, p.ProgressRatio)
	assert.False(t, p.IsCompleted)
}

func TestAggregate_UsesUserTimezone(t *testing.T) {
	tc := timeutil.NewUserTimeContext("America/New_York")
	require.False(t, tc.FellBack())
	r := frequencyRoutine(t, PeriodWeekly, 3)

	// 02:00 UTC on Sunday is still Saturday evening in New York.
	lateSaturday := time.Date(2024, time.September, 1, 2, 0, 0, 0, time.UTC)
	monday := time.Date(2024, time.September, 2, 14, 0, 0, 0, time.UTC)
	now := time.Date(2024, time.September, 3, 14, 0, 0, 0, time.UTC)

	p, err := Aggregate(r, []*ExecutionRecord{completedAt(r, lateSaturday), completedAt(r, monday)}, now, tc)
	require.NoError(t, err)
	assert.Equal(t, 1, p.ExecutedCount)

	// In UTC both fall in the week starting Sunday 2024-09-01.
	p, err = Aggregate(r, []*ExecutionRecord{completedAt(r, lateSaturday), completedAt(r, monday)}, now, timeutil.UTC())
	require.NoError(t, err)
	assert.Equal(t, 2, p.ExecutedCount)
}

func TestAggregate_ClampsNonPositiveTarget(t *testing.T) {
	tc := timeutil.UTC()
	r := newTestRoutine(t, FrequencyGoal{Period: PeriodDaily, TargetCount: 0})
	now := time.Date(2024, time.September, 4, 12, 0, 0, 0, time.UTC)

	p, err := Aggregate(r, nil, now, tc)
	require.NoError(t, err)
	assert.Equal(t, 1, p.TargetCount)
	assert.Equal(t, 0.0, p.ProgressRatio)
	assert.False(t, p.IsCompleted)
}

func TestAggregate_RatioInvariant(t *testing.T) {
	tc := timeutil.UTC()
	now := time.Date(2024, time.September, 14, 23, 0, 0, 0, time.UTC)

	for target := 1; target <= 8; target++ {
		r := frequencyRoutine(t, PeriodMonthly, target)
		var records []*ExecutionRecord
		for executed := 0; executed <= 10; executed++ {
			p, err := Aggregate(r, records, now, tc)
			require.NoError(t, err)

			assert.GreaterOrEqual(t, p.ProgressRatio, 0.0)
			assert.LessOrEqual(t, p.ProgressRatio, 1.0)
			assert.Equal(t, executed >= target, p.ProgressRatio == 1.0, "target=%d executed=%d", target, executed)
			assert.Equal(t, executed >= target, p.IsCompleted)

			records = append(records, completedAt(r, now.Add(-time.Duration(executed)*time.Hour)))
		}
	}
}

func TestAggregate_ScheduleBased(t *testing.T) {
	tc := timeutil.UTC()
	r := scheduleRoutine(t, mustWeekly(t, time.Monday, time.Wednesday))

	wednesday := time.Date(2024, time.September, 4, 18, 0, 0, 0, time.UTC)
	tuesday := time.Date(2024, time.September, 3, 18, 0, 0, 0, time.UTC)

	p, err := Aggregate(r, nil, wednesday, tc)
	require.NoError(t, err)
	assert.True(t, p.IsDueToday)
	assert.Equal(t, 1, p.TargetCount)
	assert.Equal(t, 0, p.ExecutedCount)
	assert.False(t, p.IsCompleted)

	p, err = Aggregate(r, []*ExecutionRecord{completedAt(r, wednesday.Add(-time.Hour))}, wednesday, tc)
	require.NoError(t, err)
	assert.True(t, p.IsCompleted)
	assert.Equal(t, 1.0, p.ProgressRatio)

	p, err = Aggregate(r, nil, tuesday, tc)
	require.NoError(t, err)
	assert.False(t, p.IsDueToday)
	assert.Equal(t, 0, p.TargetCount)
	assert.True(t, p.IsCompleted)
}

func TestComputeCompletionStats(t *testing.T) {
	tc := timeutil.NewUserTimeContext("Asia/Tokyo")
	r := scheduleRoutine(t, DailyRecurrence{})
	records := completedOnDays(r, tc, "2024-09-01", "2024-09-02", "2024-09-04", "2024-09-07", "2024-09-07")

	stats, err := ComputeCompletionStats(r, records, date("2024-09-01"), date("2024-09-07"), tc)
	require.NoError(t, err)

	assert.Equal(t, 7, stats.DueCount)
	assert.Equal(t, 4, stats.CompletedCount)
	assert.InDelta(t, 4.0/7.0, stats.CompletionRate, 1e-9)
	assert.Equal(t, []timeutil.CivilDate{date("2024-09-03"), date("2024-09-05"), date("2024-09-06")}, stats.MissedDates)
}

func TestComputeCompletionStats_Errors(t *testing.T) {
	tc := timeutil.UTC()

	_, err := ComputeCompletionStats(frequencyRoutine(t, PeriodDaily, 1), nil, date("2024-01-01"), date("2024-01-02"), tc)
	assert.Error(t, err)

	r := scheduleRoutine(t, DailyRecurrence{})
	_, err = ComputeCompletionStats(r, nil, date("2024-01-02"), date("2024-01-01"), tc)
	assert.Error(t, err)

	_, err = ComputeCompletionStats(r, nil, date("2020-01-01"), date("2024-01-01"), tc)
	assert.Error(t, err)
}
