package routine

import (
	"fmt"
	"strings"
	"time"

	"github.com/alem-hub/routine-hub/internal/domain/shared"
	"github.com/alem-hub/routine-hub/pkg/timeutil"
	"github.com/alem-hub/routine-hub/pkg/validation"
)

// Definition is the flat shape a routine has at the API and storage
// boundaries. Exactly one parameter group is populated, matching GoalType.
// ToGoal turns it into the tagged Goal variant.
type Definition struct {
	Title    string   `json:"title" yaml:"title" validate:"required,max=120"`
	GoalType GoalType `json:"goal_type" yaml:"goal_type" validate:"required,oneof=frequency_based schedule_based"`

	// Frequency-based parameters.
	TargetCount  *int         `json:"target_count,omitempty" yaml:"target_count,omitempty" validate:"required_if=GoalType frequency_based,excluded_if=GoalType schedule_based,omitempty,min=1"`
	TargetPeriod TargetPeriod `json:"target_period,omitempty" yaml:"target_period,omitempty" validate:"required_if=GoalType frequency_based,excluded_if=GoalType schedule_based,omitempty,oneof=daily weekly monthly"`

	// Schedule-based parameters.
	RecurrenceType     RecurrenceType `json:"recurrence_type,omitempty" yaml:"recurrence_type,omitempty" validate:"required_if=GoalType schedule_based,excluded_if=GoalType frequency_based,omitempty,oneof=daily weekly monthly custom"`
	DaysOfWeek         []int          `json:"days_of_week,omitempty" yaml:"days_of_week,omitempty" validate:"omitempty,dive,min=0,max=6"`
	DayOfMonth         *int           `json:"day_of_month,omitempty" yaml:"day_of_month,omitempty" validate:"omitempty,min=1,max=31"`
	WeekOfMonth        *int           `json:"week_of_month,omitempty" yaml:"week_of_month,omitempty" validate:"omitempty,oneof=-1 1 2 3 4"`
	DayOfWeek          *int           `json:"day_of_week,omitempty" yaml:"day_of_week,omitempty" validate:"omitempty,min=0,max=6"`
	RecurrenceInterval *int           `json:"recurrence_interval,omitempty" yaml:"recurrence_interval,omitempty" validate:"omitempty,min=1"`
	StartDate          string         `json:"start_date,omitempty" yaml:"start_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

func definitionError(msg string, cause error) error {
	return shared.WrapError("routine", "Define", shared.ErrValidation, msg, cause)
}

// Validate checks field rules without building the goal.
func (d Definition) Validate() error {
	if err := validation.Struct(d); err != nil {
		return definitionError("invalid routine definition", err)
	}
	return nil
}

// ToGoal validates the definition and converts it into a Goal.
// Configuration errors surface here, never during evaluation.
func (d Definition) ToGoal() (Goal, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	switch d.GoalType {
	case GoalFrequencyBased:
		if d.hasScheduleParams() {
			return nil, definitionError("frequency-based routine carries schedule parameters", shared.ErrInvalidGoal)
		}
		return NewFrequencyGoal(d.TargetPeriod, *d.TargetCount)
	case GoalScheduleBased:
		rec, err := d.recurrence()
		if err != nil {
			return nil, err
		}
		return NewScheduleGoal(rec)
	default:
		return nil, shared.ErrInvalidGoal
	}
}

func (d Definition) hasScheduleParams() bool {
	return d.RecurrenceType != "" || len(d.DaysOfWeek) > 0 || d.DayOfMonth != nil ||
		d.WeekOfMonth != nil || d.DayOfWeek != nil || d.RecurrenceInterval != nil || d.StartDate != ""
}

// foreignParams names the schedule parameters that are set but not read by
// the chosen recurrence type.
func (d Definition) foreignParams() []string {
	set := []struct {
		name  string
		isSet bool
		owner RecurrenceType
	}{
		{"days_of_week", len(d.DaysOfWeek) > 0, RecurrenceWeekly},
		{"day_of_month", d.DayOfMonth != nil, RecurrenceMonthly},
		{"week_of_month", d.WeekOfMonth != nil, RecurrenceMonthly},
		{"day_of_week", d.DayOfWeek != nil, RecurrenceMonthly},
		{"recurrence_interval", d.RecurrenceInterval != nil, RecurrenceCustom},
		{"start_date", d.StartDate != "", RecurrenceCustom},
	}
	var out []string
	for _, p := range set {
		if p.isSet && p.owner != d.RecurrenceType {
			out = append(out, p.name)
		}
	}
	return out
}

func (d Definition) recurrence() (Recurrence, error) {
	if extra := d.foreignParams(); len(extra) > 0 {
		return nil, recurrenceError(fmt.Sprintf("%s recurrence does not take %s", d.RecurrenceType, strings.Join(extra, ", ")))
	}

	switch d.RecurrenceType {
	case RecurrenceDaily:
		return DailyRecurrence{}, nil

	case RecurrenceWeekly:
		days := make([]time.Weekday, len(d.DaysOfWeek))
		for i, v := range d.DaysOfWeek {
			days[i] = time.Weekday(v)
		}
		return NewWeeklyRecurrence(sortWeekdays(days)...)

	case RecurrenceMonthly:
		byDay := d.DayOfMonth != nil
		byWeekday := d.WeekOfMonth != nil || d.DayOfWeek != nil
		switch {
		case byDay && byWeekday:
			return nil, recurrenceError("monthly recurrence sets both day_of_month and week_of_month")
		case byDay:
			return NewMonthlyDayRecurrence(*d.DayOfMonth)
		case d.WeekOfMonth != nil && d.DayOfWeek != nil:
			return NewMonthlyWeekdayRecurrence(*d.WeekOfMonth, time.Weekday(*d.DayOfWeek))
		default:
			return nil, recurrenceError("monthly recurrence needs day_of_month or week_of_month with day_of_week")
		}

	case RecurrenceCustom:
		if d.RecurrenceInterval == nil {
			return nil, recurrenceError("custom recurrence needs recurrence_interval")
		}
		if d.StartDate == "" {
			return nil, recurrenceError("custom recurrence needs start_date")
		}
		start, err := timeutil.ParseCivilDate(d.StartDate)
		if err != nil {
			return nil, recurrenceError(err.Error())
		}
		return NewCustomRecurrence(*d.RecurrenceInterval, start)

	default:
		return nil, recurrenceError("unknown recurrence type " + string(d.RecurrenceType))
	}
}

// DefinitionOf flattens a routine back into its boundary shape.
func DefinitionOf(r *Routine) Definition {
	def := Definition{Title: r.Title}
	if r.Goal == nil {
		return def
	}
	def.GoalType = r.Goal.Type()

	switch g := r.Goal.(type) {
	case FrequencyGoal:
		count := g.TargetCount
		def.TargetCount = &count
		def.TargetPeriod = g.Period
	case ScheduleGoal:
		if g.Recurrence == nil {
			return def
		}
		def.RecurrenceType = g.Recurrence.Type()
		switch rec := g.Recurrence.(type) {
		case WeeklyRecurrence:
			for _, wd := range rec.Days() {
				def.DaysOfWeek = append(def.DaysOfWeek, int(wd))
			}
		case MonthlyDayRecurrence:
			day := rec.DayOfMonth()
			def.DayOfMonth = &day
		case MonthlyWeekdayRecurrence:
			week, wd := rec.WeekOfMonth(), int(rec.Weekday())
			def.WeekOfMonth = &week
			def.DayOfWeek = &wd
		case CustomRecurrence:
			interval := rec.Interval()
			def.RecurrenceInterval = &interval
			def.StartDate = rec.StartDate().String()
		}
	}
	return def
}
