// Package timeutil implements the civil calendar used by Routine Hub.
//
// A civil date is a calendar day (year-month-day) as perceived in a user's
// timezone. All period boundaries are computed through an explicit
// UserTimeContext and never through the server's local clock.
package timeutil

import (
	"fmt"
	"time"
)

// Date layouts.
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02 15:04"
)

// CivilDate is a calendar date without a time of day or timezone.
// The zero value is not a valid date; use IsZero to detect it.
type CivilDate struct {
	Year  int
	Month time.Month
	Day   int
}

// NewCivilDate returns a normalized civil date. Out-of-range values roll over
// the same way time.Date does (e.g. February 30 becomes March 1 or 2).
func NewCivilDate(year int, month time.Month, day int) CivilDate {
	return civilFromTime(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// ParseCivilDate parses a YYYY-MM-DD string.
func ParseCivilDate(s string) (CivilDate, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return CivilDate{}, fmt.Errorf("parse civil date %q: %w", s, err)
	}
	return civilFromTime(t), nil
}

// MustParseCivilDate is ParseCivilDate for literals known to be valid.
func MustParseCivilDate(s string) CivilDate {
	d, err := ParseCivilDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func civilFromTime(t time.Time) CivilDate {
	y, m, d := t.Date()
	return CivilDate{Year: y, Month: m, Day: d}
}

// utcMidnight anchors the date on a UTC midnight so day arithmetic never
// crosses a DST transition.
func (d CivilDate) utcMidnight() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// IsZero reports whether d is the zero CivilDate.
func (d CivilDate) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// Weekday returns the day of the week, Sunday being 0.
func (d CivilDate) Weekday() time.Weekday {
	return d.utcMidnight().Weekday()
}

// AddDays returns the date n days after d. n may be negative.
func (d CivilDate) AddDays(n int) CivilDate {
	return civilFromTime(d.utcMidnight().AddDate(0, 0, n))
}

// DaysSince returns the number of whole days from other to d.
// It is negative when d is before other.
func (d CivilDate) DaysSince(other CivilDate) int {
	return int(d.utcMidnight().Sub(other.utcMidnight()).Hours() / 24)
}

// Compare returns -1, 0 or +1 depending on whether d is before, equal to or after other.
func (d CivilDate) Compare(other CivilDate) int {
	switch {
	case d.Year != other.Year:
		return sign(d.Year - other.Year)
	case d.Month != other.Month:
		return sign(int(d.Month) - int(other.Month))
	default:
		return sign(d.Day - other.Day)
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

// Before reports whether d is strictly before other.
func (d CivilDate) Before(other CivilDate) bool { return d.Compare(other) < 0 }

// After reports whether d is strictly after other.
func (d CivilDate) After(other CivilDate) bool { return d.Compare(other) > 0 }

// Equal reports whether d and other denote the same day.
func (d CivilDate) Equal(other CivilDate) bool { return d.Compare(other) == 0 }

// DaysInMonth returns the number of days in the month containing d.
func (d CivilDate) DaysInMonth() int {
	return DaysInMonth(d.Year, d.Month)
}

// IsLastDayOfMonth reports whether d is the final day of its month.
func (d CivilDate) IsLastDayOfMonth() bool {
	return d.Day == d.DaysInMonth()
}

// String formats the date as YYYY-MM-DD.
func (d CivilDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// MarshalText implements encoding.TextMarshaler.
func (d CivilDate) MarshalText() ([]byte, error) {
	if d.IsZero() {
		return []byte{}, nil
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *CivilDate) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = CivilDate{}
		return nil
	}
	parsed, err := ParseCivilDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
