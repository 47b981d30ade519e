package timeutil

import (
	"strings"
	"sync"
	"time"

	"github.com/alem-hub/routine-hub/pkg/logger"
)

// Span is the length of a recurring civil period.
type Span int

const (
	SpanDay Span = iota
	SpanWeek
	SpanMonth
)

// String returns the lowercase name of the span.
func (s Span) String() string {
	switch s {
	case SpanDay:
		return "day"
	case SpanWeek:
		return "week"
	case SpanMonth:
		return "month"
	default:
		return "unknown"
	}
}

// WeekStart is the first day of a civil week.
const WeekStart = time.Sunday

var (
	locationCache sync.Map // map[string]*time.Location

	fallbackMu       sync.RWMutex
	fallbackObserver func(requested string)
)

// SetFallbackObserver registers a hook invoked every time an unknown timezone
// falls back to UTC. Metrics use it to count fallbacks.
func SetFallbackObserver(fn func(requested string)) {
	fallbackMu.Lock()
	fallbackObserver = fn
	fallbackMu.Unlock()
}

func notifyFallback(requested string) {
	fallbackMu.RLock()
	fn := fallbackObserver
	fallbackMu.RUnlock()
	if fn != nil {
		fn(requested)
	}
}

// UserTimeContext carries one consistent civil-day definition through a
// computation. The zero value behaves as UTC.
type UserTimeContext struct {
	requested string
	loc       *time.Location
	fellBack  bool
}

// UTC returns a context pinned to UTC.
func UTC() UserTimeContext {
	return UserTimeContext{requested: "UTC", loc: time.UTC}
}

// NewUserTimeContext resolves an IANA timezone identifier. An empty identifier
// yields UTC. An unknown identifier also yields UTC, but the fallback is
// logged and reported through FellBack.
func NewUserTimeContext(tz string) UserTimeContext {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return UTC()
	}

	loc, err := loadLocation(tz)
	if err != nil {
		logger.L().Warn("unknown timezone, falling back to UTC",
			logger.Timezone(tz),
			logger.Err(err),
		)
		notifyFallback(tz)
		return UserTimeContext{requested: tz, loc: time.UTC, fellBack: true}
	}

	return UserTimeContext{requested: tz, loc: loc}
}

// NewUserTimeContextIn wraps an already resolved location.
func NewUserTimeContextIn(loc *time.Location) UserTimeContext {
	if loc == nil {
		return UTC()
	}
	return UserTimeContext{requested: loc.String(), loc: loc}
}

// IsValidTimezone reports whether tz names a loadable location. The empty
// string is UTC.
func IsValidTimezone(tz string) bool {
	if tz == "" {
		return true
	}
	_, err := loadLocation(tz)
	return err == nil
}

func loadLocation(tz string) (*time.Location, error) {
	if cached, ok := locationCache.Load(tz); ok {
		return cached.(*time.Location), nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, err
	}
	locationCache.Store(tz, loc)
	return loc, nil
}

// Location returns the resolved location.
func (c UserTimeContext) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// Timezone returns the name of the effective timezone.
func (c UserTimeContext) Timezone() string {
	return c.Location().String()
}

// Requested returns the identifier the context was built from.
func (c UserTimeContext) Requested() string {
	return c.requested
}

// FellBack reports whether the requested timezone could not be resolved.
func (c UserTimeContext) FellBack() bool {
	return c.fellBack
}

// In converts an instant into the user's timezone.
func (c UserTimeContext) In(t time.Time) time.Time {
	return t.In(c.Location())
}

// CivilDayOf returns the civil date of an instant in the user's timezone.
func (c UserTimeContext) CivilDayOf(t time.Time) CivilDate {
	return civilFromTime(c.In(t))
}

// StartOfCivilDay returns the first instant of d in the user's timezone.
func (c UserTimeContext) StartOfCivilDay(d CivilDate) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, c.Location())
}

// StartOfDay returns the first instant of the civil day containing t.
func (c UserTimeContext) StartOfDay(t time.Time) time.Time {
	return c.StartOfCivilDay(c.CivilDayOf(t))
}

// StartOfWeek returns the first instant of the Sunday-based week containing t.
func (c UserTimeContext) StartOfWeek(t time.Time) time.Time {
	d := c.CivilDayOf(t)
	offset := (int(d.Weekday()) - int(WeekStart) + 7) % 7
	return c.StartOfCivilDay(d.AddDays(-offset))
}

// StartOfMonth returns the first instant of the month containing t.
func (c UserTimeContext) StartOfMonth(t time.Time) time.Time {
	d := c.CivilDayOf(t)
	return c.StartOfCivilDay(CivilDate{Year: d.Year, Month: d.Month, Day: 1})
}

// EndOfDay returns the exclusive end of the civil day containing t,
// which is the start of the following day.
func (c UserTimeContext) EndOfDay(t time.Time) time.Time {
	return c.StartOfCivilDay(c.CivilDayOf(t).AddDays(1))
}

// EndOfWeek returns the exclusive end of the week containing t.
func (c UserTimeContext) EndOfWeek(t time.Time) time.Time {
	start := c.CivilDayOf(c.StartOfWeek(t))
	return c.StartOfCivilDay(start.AddDays(7))
}

// EndOfMonth returns the exclusive end of the month containing t.
func (c UserTimeContext) EndOfMonth(t time.Time) time.Time {
	d := c.CivilDayOf(t)
	return c.StartOfCivilDay(NewCivilDate(d.Year, d.Month+1, 1))
}

// Bounds returns the [start, end) instants of the span containing t.
func (c UserTimeContext) Bounds(span Span, t time.Time) (start, end time.Time) {
	switch span {
	case SpanWeek:
		return c.StartOfWeek(t), c.EndOfWeek(t)
	case SpanMonth:
		return c.StartOfMonth(t), c.EndOfMonth(t)
	default:
		return c.StartOfDay(t), c.EndOfDay(t)
	}
}

// IsSameCivilDay reports whether two instants fall on the same civil day.
func (c UserTimeContext) IsSameCivilDay(a, b time.Time) bool {
	return c.CivilDayOf(a).Equal(c.CivilDayOf(b))
}

// FormatDate formats t as YYYY-MM-DD in the user's timezone.
func (c UserTimeContext) FormatDate(t time.Time) string {
	return c.In(t).Format(DateLayout)
}

// FormatDateTime formats t as YYYY-MM-DD HH:MM in the user's timezone.
func (c UserTimeContext) FormatDateTime(t time.Time) string {
	return c.In(t).Format(DateTimeLayout)
}
