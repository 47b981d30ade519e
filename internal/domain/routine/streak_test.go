package routine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alem-hub/routine-hub/pkg/timeutil"
)

func TestCurrentStreak(t *testing.T) {
	tc := timeutil.UTC()
	r := scheduleRoutine(t, DailyRecurrence{})
	now := time.Date(2024, time.September, 10, 21, 0, 0, 0, time.UTC)

	records := completedOnDays(r, tc, "2024-09-10", "2024-09-09", "2024-09-08", "2024-09-06", "2024-09-05")
	assert.Equal(t, 3, CurrentStreak(r, records, now, tc))

	// Without a record today the streak is 0, regardless of yesterday.
	assert.Equal(t, 0, CurrentStreak(r, records[1:], now, tc))
}

func TestCurrentStreak_AppendingTodayExtendsByOne(t *testing.T) {
	tc := timeutil.UTC()
	r := scheduleRoutine(t, DailyRecurrence{})
	today := time.Date(2024, time.September, 10, 9, 0, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)

	records := completedOnDays(r, tc, "2024-09-09", "2024-09-08", "2024-09-07", "2024-09-06")
	n := CurrentStreak(r, records, yesterday, tc)
	assert.Equal(t, 4, n)

	records = append(records, completedAt(r, today))
	assert.Equal(t, n+1, CurrentStreak(r, records, today, tc))
}

func TestCurrentStreak_GapResets(t *testing.T) {
	tc := timeutil.UTC()
	r := scheduleRoutine(t, DailyRecurrence{})
	records := completedOnDays(r, tc, "2024-09-07", "2024-09-06")

	// 2024-09-08 has no record: the next day starts from zero.
	gapDay := time.Date(2024, time.September, 8, 22, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, CurrentStreak(r, records, gapDay, tc))

	records = append(records, completedOnDays(r, tc, "2024-09-09")...)
	assert.Equal(t, 1, CurrentStreak(r, records, gapDay.AddDate(0, 0, 1), tc))
}

func TestCurrentStreak_RespectsTimezone(t *testing.T) {
	tc := timeutil.NewUserTimeContext("America/Los_Angeles")
	r := scheduleRoutine(t, DailyRecurrence{})

	// 06:00 UTC on the 10th is 23:00 on the 9th in Los Angeles.
	records := []*ExecutionRecord{
		completedAt(r, time.Date(2024, time.September, 10, 6, 0, 0, 0, time.UTC)),
		completedAt(r, time.Date(2024, time.September, 10, 20, 0, 0, 0, time.UTC)),
	}
	now := time.Date(2024, time.September, 10, 21, 0, 0, 0, time.UTC)

	assert.Equal(t, 2, CurrentStreak(r, records, now, tc))
	assert.Equal(t, 1, CurrentStreak(r, records, now, timeutil.UTC()))
}

func TestCurrentStreak_OnlyDailySchedules(t *testing.T) {
	tc := timeutil.UTC()
	now := time.Date(2024, time.September, 10, 21, 0, 0, 0, time.UTC)

	freq := frequencyRoutine(t, PeriodDaily, 1)
	assert.Equal(t, 0, CurrentStreak(freq, completedOnDays(freq, tc, "2024-09-10", "2024-09-09"), now, tc))

	weekly := scheduleRoutine(t, mustWeekly(t, time.Monday, time.Tuesday))
	assert.Equal(t, 0, CurrentStreak(weekly, completedOnDays(weekly, tc, "2024-09-10", "2024-09-09"), now, tc))
}

func TestLongestStreak(t *testing.T) {
	tc := timeutil.UTC()
	r := scheduleRoutine(t, DailyRecurrence{})
	records := completedOnDays(r, tc,
		"2024-08-30", "2024-08-31", "2024-09-01", "2024-09-02", // 4, across a month boundary
		"2024-09-04", "2024-09-05",
		"2024-09-05", // duplicate day
	)

	assert.Equal(t, 4, LongestStreak(r, records, tc))
	assert.Equal(t, 0, LongestStreak(r, nil, tc))
}
