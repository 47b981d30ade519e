package timeutil

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUserTimeContext_Fallback(t *testing.T) {
	var fallbacks atomic.Int32
	SetFallbackObserver(func(string) { fallbacks.Add(1) })
	t.Cleanup(func() { SetFallbackObserver(nil) })

	tc := NewUserTimeContext("Mars/Olympus_Mons")
	assert.True(t, tc.FellBack())
	assert.Equal(t, "UTC", tc.Timezone())
	assert.Equal(t, "Mars/Olympus_Mons", tc.Requested())
	assert.Equal(t, int32(1), fallbacks.Load())

	empty := NewUserTimeContext("")
	assert.False(t, empty.FellBack())
	assert.Equal(t, "UTC", empty.Timezone())
	assert.Equal(t, int32(1), fallbacks.Load())

	var zero UserTimeContext
	assert.Equal(t, time.UTC, zero.Location())
}

func TestUserTimeContext_CivilDayOf(t *testing.T) {
	tokyo := NewUserTimeContext("Asia/Tokyo")
	require.False(t, tokyo.FellBack())

	// 2024-03-10 20:00 UTC is already March 11 in Tokyo.
	instant := time.Date(2024, time.March, 10, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-11", tokyo.CivilDayOf(instant).String())
	assert.Equal(t, "2024-03-10", UTC().CivilDayOf(instant).String())
}

func TestUserTimeContext_StartOfWeekIsSunday(t *testing.T) {
	tc := NewUserTimeContext("America/New_York")

	// Wednesday 2024-09-04 10:00 local.
	wed := time.Date(2024, time.September, 4, 10, 0, 0, 0, tc.Location())
	start := tc.StartOfWeek(wed)

	assert.Equal(t, time.Sunday, start.Weekday())
	assert.Equal(t, "2024-09-01", tc.FormatDate(start))
	assert.Equal(t, 0, start.Hour())
	assert.Equal(t, "2024-09-08", tc.FormatDate(tc.EndOfWeek(wed)))

	// A Sunday is its own week start.
	sun := time.Date(2024, time.September, 1, 23, 0, 0, 0, tc.Location())
	assert.Equal(t, "2024-09-01", tc.FormatDate(tc.StartOfWeek(sun)))
}

func TestUserTimeContext_StartOfMonth(t *testing.T) {
	tc := NewUserTimeContext("Europe/Berlin")
	instant := time.Date(2024, time.February, 29, 23, 30, 0, 0, time.UTC) // March 1 in Berlin

	assert.Equal(t, "2024-03-01", tc.FormatDate(tc.StartOfMonth(instant)))
	assert.Equal(t, "2024-04-01", tc.FormatDate(tc.EndOfMonth(instant)))
}

func TestUserTimeContext_DSTDayLength(t *testing.T) {
	tc := NewUserTimeContext("America/New_York")

	// US DST began on 2024-03-10; that civil day is 23 hours long.
	noon := time.Date(2024, time.March, 10, 12, 0, 0, 0, tc.Location())
	start, end := tc.Bounds(SpanDay, noon)
	assert.Equal(t, 23*time.Hour, end.Sub(start))
}

func TestUserTimeContext_IsSameCivilDay(t *testing.T) {
	tc := NewUserTimeContext("Asia/Kolkata")

	a := time.Date(2024, time.June, 1, 18, 29, 0, 0, time.UTC)
	b := time.Date(2024, time.June, 1, 18, 31, 0, 0, time.UTC)

	// Kolkata is UTC+5:30: 23:59 and 00:01 local.
	assert.False(t, tc.IsSameCivilDay(a, b))
	assert.True(t, UTC().IsSameCivilDay(a, b))
}

func TestIsValidTimezone(t *testing.T) {
	assert.True(t, IsValidTimezone(""))
	assert.True(t, IsValidTimezone("Asia/Almaty"))
	assert.False(t, IsValidTimezone("Mars/Olympus"))
}
