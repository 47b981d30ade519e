package routine

import (
	"fmt"

	"github.com/alem-hub/routine-hub/internal/domain/shared"
	"github.com/alem-hub/routine-hub/pkg/timeutil"
)

// GoalType discriminates the two goal variants.
type GoalType string

const (
	GoalFrequencyBased GoalType = "frequency_based"
	GoalScheduleBased  GoalType = "schedule_based"
)

// TargetPeriod is the window a frequency goal counts completions in.
type TargetPeriod string

const (
	PeriodDaily   TargetPeriod = "daily"
	PeriodWeekly  TargetPeriod = "weekly"
	PeriodMonthly TargetPeriod = "monthly"
)

// IsValid reports whether p is a known period.
func (p TargetPeriod) IsValid() bool {
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
		return true
	}
	return false
}

// Span maps the period onto a civil calendar span.
func (p TargetPeriod) Span() timeutil.Span {
	switch p {
	case PeriodWeekly:
		return timeutil.SpanWeek
	case PeriodMonthly:
		return timeutil.SpanMonth
	default:
		return timeutil.SpanDay
	}
}

// Goal is either a FrequencyGoal or a ScheduleGoal.
type Goal interface {
	Type() GoalType
	Describe() string
	isGoal()
}

// FrequencyGoal targets N completions within each period.
type FrequencyGoal struct {
	Period      TargetPeriod
	TargetCount int
}

// NewFrequencyGoal validates and builds a frequency goal.
func NewFrequencyGoal(period TargetPeriod, target int) (FrequencyGoal, error) {
	if !period.IsValid() {
		return FrequencyGoal{}, shared.WrapError("routine", "Define", shared.ErrValidation,
			fmt.Sprintf("unknown target period %q", period), shared.ErrInvalidGoal)
	}
	if target < 1 {
		return FrequencyGoal{}, shared.WrapError("routine", "Define", shared.ErrValueOutOfRange,
			fmt.Sprintf("target count %d must be at least 1", target), shared.ErrInvalidGoal)
	}
	return FrequencyGoal{Period: period, TargetCount: target}, nil
}

func (FrequencyGoal) Type() GoalType { return GoalFrequencyBased }
func (FrequencyGoal) isGoal()        {}

// EffectiveTarget returns the target clamped to at least 1.
func (g FrequencyGoal) EffectiveTarget() int {
	return max(1, g.TargetCount)
}

func (g FrequencyGoal) Describe() string {
	return fmt.Sprintf("%d times %s", g.TargetCount, g.Period)
}

// ScheduleGoal is due on the dates produced by its recurrence.
type ScheduleGoal struct {
	Recurrence Recurrence
}

// NewScheduleGoal wraps a recurrence rule.
func NewScheduleGoal(rec Recurrence) (ScheduleGoal, error) {
	if rec == nil {
		return ScheduleGoal{}, shared.WrapError("routine", "Define", shared.ErrValidation,
			"schedule goal needs a recurrence", shared.ErrInvalidGoal)
	}
	return ScheduleGoal{Recurrence: rec}, nil
}

func (ScheduleGoal) Type() GoalType { return GoalScheduleBased }
func (ScheduleGoal) isGoal()        {}

// IsDaily reports whether the schedule fires every day.
func (g ScheduleGoal) IsDaily() bool {
	_, ok := g.Recurrence.(DailyRecurrence)
	return ok
}

func (g ScheduleGoal) Describe() string {
	if g.Recurrence == nil {
		return "unscheduled"
	}
	return g.Recurrence.Describe()
}
