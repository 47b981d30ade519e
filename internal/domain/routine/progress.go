package routine

import (
	"time"

	"github.com/alem-hub/routine-hub/internal/domain/shared"
	"github.com/alem-hub/routine-hub/pkg/timeutil"
)

// Progress is the aggregate state of one routine at an instant.
type Progress struct {
	RoutineID     shared.RoutineID
	GoalType      GoalType
	ExecutedCount int
	TargetCount   int
	ProgressRatio float64 // always within [0, 1]
	IsCompleted   bool
	PeriodStart   time.Time
	PeriodEnd     time.Time // exclusive
	IsDueToday    bool      // schedule-based only
}

// Aggregate reduces a routine's execution records into its current progress.
//
// Frequency goals count completed records executed at or after the start of
// the current period. Schedule goals are binary for today: when today is due,
// the target is one completion; when it is not, the target is zero and the
// routine reads as complete.
func Aggregate(r *Routine, records []*ExecutionRecord, now time.Time, tc timeutil.UserTimeContext) (Progress, error) {
	if r == nil || r.Goal == nil {
		return Progress{}, shared.ErrInvalidGoal
	}

	switch g := r.Goal.(type) {
	case FrequencyGoal:
		return aggregateFrequency(r, g, records, now, tc), nil
	case ScheduleGoal:
		if g.Recurrence == nil {
			return Progress{}, shared.ErrRecurrenceConfig
		}
		return aggregateSchedule(r, g, records, now, tc), nil
	default:
		return Progress{}, shared.ErrInvalidGoal
	}
}

func aggregateFrequency(r *Routine, g FrequencyGoal, records []*ExecutionRecord, now time.Time, tc timeutil.UserTimeContext) Progress {
	start, end := tc.Bounds(g.Period.Span(), now)
	target := g.EffectiveTarget()

	executed := 0
	for _, rec := range records {
		if !belongs(rec, r) {
			continue
		}
		if !rec.ExecutedAt.Before(start) {
			executed++
		}
	}

	return Progress{
		RoutineID:     r.ID,
		GoalType:      GoalFrequencyBased,
		ExecutedCount: executed,
		TargetCount:   target,
		ProgressRatio: ratio(executed, target),
		IsCompleted:   executed >= target,
		PeriodStart:   start,
		PeriodEnd:     end,
	}
}

func aggregateSchedule(r *Routine, g ScheduleGoal, records []*ExecutionRecord, now time.Time, tc timeutil.UserTimeContext) Progress {
	start, end := tc.Bounds(timeutil.SpanDay, now)
	today := tc.CivilDayOf(now)
	due := g.Recurrence.IsDue(today)

	executed := 0
	for _, rec := range records {
		if belongs(rec, r) && tc.IsSameCivilDay(rec.ExecutedAt, now) {
			executed = 1
			break
		}
	}

	target := 0
	if due {
		target = 1
	}

	p := Progress{
		RoutineID:     r.ID,
		GoalType:      GoalScheduleBased,
		ExecutedCount: executed,
		TargetCount:   target,
		IsCompleted:   executed >= target,
		PeriodStart:   start,
		PeriodEnd:     end,
		IsDueToday:    due,
	}
	p.ProgressRatio = 1
	if due {
		p.ProgressRatio = ratio(executed, target)
	}
	return p
}

func belongs(rec *ExecutionRecord, r *Routine) bool {
	return rec.Counts() && rec.RoutineID == r.ID
}

// ratio returns min(executed/target, 1) with target clamped to at least 1.
func ratio(executed, target int) float64 {
	target = max(1, target)
	if executed >= target {
		return 1
	}
	if executed <= 0 {
		return 0
	}
	return float64(executed) / float64(target)
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETION STATISTICS
// ══════════════════════════════════════════════════════════════════════════════

// MaxStatsWindowDays bounds the reporting window of CompletionStats.
const MaxStatsWindowDays = 366 * 2

// CompletionStats summarizes a schedule-based routine over a window.
type CompletionStats struct {
	RoutineID      shared.RoutineID
	From           timeutil.CivilDate
	To             timeutil.CivilDate
	DueCount       int
	CompletedCount int
	CompletionRate float64
	MissedDates    []timeutil.CivilDate
}

// ComputeCompletionStats iterates the due dates in [from, to] and checks each
// one for a completed record on the same civil day.
func ComputeCompletionStats(r *Routine, records []*ExecutionRecord, from, to timeutil.CivilDate, tc timeutil.UserTimeContext) (CompletionStats, error) {
	g, ok := r.ScheduleGoal()
	if !ok {
		return CompletionStats{}, shared.ErrNotScheduleBased
	}
	if g.Recurrence == nil {
		return CompletionStats{}, shared.ErrRecurrenceConfig
	}
	if to.Before(from) {
		return CompletionStats{}, shared.NewDomainError("routine", "CompletionStats", shared.ErrInvalidInput, "window ends before it starts")
	}
	if to.DaysSince(from) >= MaxStatsWindowDays {
		return CompletionStats{}, shared.NewDomainError("routine", "CompletionStats", shared.ErrValueOutOfRange, "window is too long")
	}

	done := completedDays(r, records, tc)
	stats := CompletionStats{RoutineID: r.ID, From: from, To: to}
	for _, d := range DueDates(g.Recurrence, from, to) {
		stats.DueCount++
		if _, ok := done[d]; ok {
			stats.CompletedCount++
		} else {
			stats.MissedDates = append(stats.MissedDates, d)
		}
	}
	if stats.DueCount > 0 {
		stats.CompletionRate = float64(stats.CompletedCount) / float64(stats.DueCount)
	}
	return stats, nil
}

// completedDays indexes completed records by civil day.
func completedDays(r *Routine, records []*ExecutionRecord, tc timeutil.UserTimeContext) map[timeutil.CivilDate]struct{} {
	days := make(map[timeutil.CivilDate]struct{}, len(records))
	for _, rec := range records {
		if belongs(rec, r) {
			days[tc.CivilDayOf(rec.ExecutedAt)] = struct{}{}
		}
	}
	return days
}
