package routine

import (
	"sort"
	"time"

	"github.com/alem-hub/routine-hub/pkg/timeutil"
)

// CurrentStreak counts consecutive civil days, ending today, that have a
// completed record. The scan starts at today and stops at the first day
// without one, so an unfinished today yields 0. Only daily schedule-based
// routines have streaks; every other routine yields 0.
func CurrentStreak(r *Routine, records []*ExecutionRecord, now time.Time, tc timeutil.UserTimeContext) int {
	if r == nil || !r.IsDailySchedule() {
		return 0
	}

	done := completedDays(r, records, tc)
	streak := 0
	for day := tc.CivilDayOf(now); ; day = day.AddDays(-1) {
		if _, ok := done[day]; !ok {
			return streak
		}
		streak++
	}
}

// LongestStreak returns the longest run of consecutive completed days in the
// whole record history of a daily schedule-based routine.
func LongestStreak(r *Routine, records []*ExecutionRecord, tc timeutil.UserTimeContext) int {
	if r == nil || !r.IsDailySchedule() {
		return 0
	}

	done := completedDays(r, records, tc)
	days := make([]timeutil.CivilDate, 0, len(done))
	for d := range done {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	longest, run := 0, 0
	for i, d := range days {
		if i > 0 && d.DaysSince(days[i-1]) == 1 {
			run++
		} else {
			run = 1
		}
		longest = max(longest, run)
	}
	return longest
}
