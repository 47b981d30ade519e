package routine

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alem-hub/routine-hub/internal/domain/shared"
	"github.com/alem-hub/routine-hub/pkg/timeutil"
)

// RecurrenceType names a schedule rule.
type RecurrenceType string

const (
	RecurrenceDaily   RecurrenceType = "daily"
	RecurrenceWeekly  RecurrenceType = "weekly"
	RecurrenceMonthly RecurrenceType = "monthly"
	RecurrenceCustom  RecurrenceType = "custom"
)

// LastWeekOfMonth selects the final occurrence of a weekday in a month.
const LastWeekOfMonth = -1

// Recurrence is a closed set of schedule rules. Implementations are built
// only through their validating constructors, so IsDue never fails.
type Recurrence interface {
	Type() RecurrenceType
	IsDue(date timeutil.CivilDate) bool
	Describe() string
	isRecurrence()
}

func recurrenceError(msg string) error {
	return shared.WrapError("routine", "Define", shared.ErrValidation, msg, shared.ErrRecurrenceConfig)
}

// ══════════════════════════════════════════════════════════════════════════════
// DAILY
// ══════════════════════════════════════════════════════════════════════════════

// DailyRecurrence is due every day.
type DailyRecurrence struct{}

func (DailyRecurrence) Type() RecurrenceType { return RecurrenceDaily }
func (DailyRecurrence) IsDue(timeutil.CivilDate) bool { return true }
func (DailyRecurrence) Describe() string { return "every day" }
func (DailyRecurrence) isRecurrence() {}

// ══════════════════════════════════════════════════════════════════════════════
// WEEKLY
// ══════════════════════════════════════════════════════════════════════════════

// WeeklyRecurrence is due on a fixed set of weekdays.
type WeeklyRecurrence struct {
	mask uint8 // bit i set when weekday i is due
}

// NewWeeklyRecurrence builds a weekly rule. The set must be non-empty and
// every index must be in 0 (Sunday) through 6 (Saturday).
func NewWeeklyRecurrence(days ...time.Weekday) (WeeklyRecurrence, error) {
	if len(days) == 0 {
		return WeeklyRecurrence{}, recurrenceError("weekly recurrence needs at least one weekday")
	}
	var mask uint8
	for _, d := range days {
		if d < time.Sunday || d > time.Saturday {
			return WeeklyRecurrence{}, recurrenceError(fmt.Sprintf("weekday index %d is outside 0-6", int(d)))
		}
		mask |= 1 << uint(d)
	}
	return WeeklyRecurrence{mask: mask}, nil
}

func (WeeklyRecurrence) Type() RecurrenceType { return RecurrenceWeekly }
func (WeeklyRecurrence) isRecurrence() {}

// IsDue reports whether the date's weekday is in the set. The zero value
// has an empty set and is never due.
func (w WeeklyRecurrence) IsDue(date timeutil.CivilDate) bool {
	return w.mask&(1<<uint(date.Weekday())) != 0
}

// Days returns the due weekdays in ascending order.
func (w WeeklyRecurrence) Days() []time.Weekday {
	days := make([]time.Weekday, 0, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		if w.mask&(1<<uint(d)) != 0 {
			days = append(days, d)
		}
	}
	return days
}

func (w WeeklyRecurrence) Describe() string {
	days := w.Days()
	names := make([]string, len(days))
	for i, d := range days {
		names[i] = d.String()[:3]
	}
	return "weekly on " + strings.Join(names, ", ")
}

// ══════════════════════════════════════════════════════════════════════════════
// MONTHLY
// ══════════════════════════════════════════════════════════════════════════════

// MonthlyDayRecurrence is due on a fixed day of the month. When the month is
// shorter than the configured day, it is due on the month's last day instead.
type MonthlyDayRecurrence struct {
	day int
}

// NewMonthlyDayRecurrence builds a day-of-month rule for day 1 through 31.
func NewMonthlyDayRecurrence(day int) (MonthlyDayRecurrence, error) {
	if day < 1 || day > 31 {
		return MonthlyDayRecurrence{}, recurrenceError(fmt.Sprintf("day of month %d is outside 1-31", day))
	}
	return MonthlyDayRecurrence{day: day}, nil
}

func (MonthlyDayRecurrence) Type() RecurrenceType { return RecurrenceMonthly }
func (MonthlyDayRecurrence) isRecurrence() {}

// DayOfMonth returns the configured day.
func (m MonthlyDayRecurrence) DayOfMonth() int { return m.day }

// EffectiveDay returns the day the rule fires on in the given month.
func (m MonthlyDayRecurrence) EffectiveDay(year int, month time.Month) int {
	return min(m.day, timeutil.DaysInMonth(year, month))
}

func (m MonthlyDayRecurrence) IsDue(date timeutil.CivilDate) bool {
	if m.day == 0 {
		return false
	}
	return date.Day == m.EffectiveDay(date.Year, date.Month)
}

func (m MonthlyDayRecurrence) Describe() string {
	return fmt.Sprintf("monthly on day %d", m.day)
}

// MonthlyWeekdayRecurrence is due on the n-th occurrence of a weekday in the
// month, or on its last occurrence when the ordinal is LastWeekOfMonth.
type MonthlyWeekdayRecurrence struct {
	week    int
	weekday time.Weekday
	valid   bool
}

// NewMonthlyWeekdayRecurrence builds an nth-weekday rule. week must be
// 1, 2, 3, 4 or LastWeekOfMonth.
func NewMonthlyWeekdayRecurrence(week int, weekday time.Weekday) (MonthlyWeekdayRecurrence, error) {
	switch week {
	case 1, 2, 3, 4, LastWeekOfMonth:
	default:
		return MonthlyWeekdayRecurrence{}, recurrenceError(fmt.Sprintf("week of month %d must be 1-4 or -1", week))
	}
	if weekday < time.Sunday || weekday > time.Saturday {
		return MonthlyWeekdayRecurrence{}, recurrenceError(fmt.Sprintf("weekday index %d is outside 0-6", int(weekday)))
	}
	return MonthlyWeekdayRecurrence{week: week, weekday: weekday, valid: true}, nil
}

func (MonthlyWeekdayRecurrence) Type() RecurrenceType { return RecurrenceMonthly }
func (MonthlyWeekdayRecurrence) isRecurrence() {}

// WeekOfMonth returns the ordinal, or LastWeekOfMonth.
func (m MonthlyWeekdayRecurrence) WeekOfMonth() int { return m.week }

// Weekday returns the configured weekday.
func (m MonthlyWeekdayRecurrence) Weekday() time.Weekday { return m.weekday }

func (m MonthlyWeekdayRecurrence) IsDue(date timeutil.CivilDate) bool {
	if !m.valid || date.Weekday() != m.weekday {
		return false
	}
	if m.week == LastWeekOfMonth {
		return date.Day+7 > date.DaysInMonth()
	}
	return (date.Day-1)/7+1 == m.week
}

var ordinals = map[int]string{1: "first", 2: "second", 3: "third", 4: "fourth", LastWeekOfMonth: "last"}

func (m MonthlyWeekdayRecurrence) Describe() string {
	return fmt.Sprintf("monthly on the %s %s", ordinals[m.week], m.weekday)
}

// ══════════════════════════════════════════════════════════════════════════════
// CUSTOM
// ══════════════════════════════════════════════════════════════════════════════

// CustomRecurrence is due every interval days counted from a start date.
type CustomRecurrence struct {
	interval int
	start    timeutil.CivilDate
}

// NewCustomRecurrence builds an interval rule. interval must be at least 1
// and start must be a real date.
func NewCustomRecurrence(interval int, start timeutil.CivilDate) (CustomRecurrence, error) {
	if interval < 1 {
		return CustomRecurrence{}, recurrenceError(fmt.Sprintf("recurrence interval %d must be at least 1", interval))
	}
	if start.IsZero() {
		return CustomRecurrence{}, recurrenceError("custom recurrence needs a start date")
	}
	return CustomRecurrence{interval: interval, start: start}, nil
}

func (CustomRecurrence) Type() RecurrenceType { return RecurrenceCustom }
func (CustomRecurrence) isRecurrence() {}

// Interval returns the number of days between due dates.
func (c CustomRecurrence) Interval() int { return c.interval }

// StartDate returns the first due date.
func (c CustomRecurrence) StartDate() timeutil.CivilDate { return c.start }

func (c CustomRecurrence) IsDue(date timeutil.CivilDate) bool {
	if c.interval < 1 || date.Before(c.start) {
		return false
	}
	return date.DaysSince(c.start)%c.interval == 0
}

func (c CustomRecurrence) Describe() string {
	if c.interval == 1 {
		return fmt.Sprintf("every day from %s", c.start)
	}
	return fmt.Sprintf("every %d days from %s", c.interval, c.start)
}

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATOR
// ══════════════════════════════════════════════════════════════════════════════

// nextDueHorizon bounds NextDue; every valid rule fires within four years.
const nextDueHorizon = 366 * 4

// IsDue reports whether a schedule-based routine is due on date.
// Frequency-based routines have no due dates and yield ErrNotScheduleBased.
func IsDue(r *Routine, date timeutil.CivilDate) (bool, error) {
	sg, ok := r.Goal.(ScheduleGoal)
	if !ok {
		return false, shared.ErrNotScheduleBased
	}
	if sg.Recurrence == nil {
		return false, shared.ErrRecurrenceConfig
	}
	return sg.Recurrence.IsDue(date), nil
}

// DueDates returns the due dates in [from, to], ascending.
func DueDates(rec Recurrence, from, to timeutil.CivilDate) []timeutil.CivilDate {
	if rec == nil || to.Before(from) {
		return nil
	}
	var dates []timeutil.CivilDate
	for d := from; !d.After(to); d = d.AddDays(1) {
		if rec.IsDue(d) {
			dates = append(dates, d)
		}
	}
	return dates
}

// NextDue returns the first due date strictly after the given date.
func NextDue(rec Recurrence, after timeutil.CivilDate) (timeutil.CivilDate, bool) {
	if rec == nil {
		return timeutil.CivilDate{}, false
	}
	d := after.AddDays(1)
	for i := 0; i < nextDueHorizon; i++ {
		if rec.IsDue(d) {
			return d, true
		}
		d = d.AddDays(1)
	}
	return timeutil.CivilDate{}, false
}

// sortWeekdays returns a sorted, de-duplicated copy.
func sortWeekdays(days []time.Weekday) []time.Weekday {
	seen := make(map[time.Weekday]struct{}, len(days))
	out := make([]time.Weekday, 0, len(days))
	for _, d := range days {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
