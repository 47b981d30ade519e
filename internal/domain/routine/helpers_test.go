package routine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alem-hub/routine-hub/internal/domain/shared"
	"github.com/alem-hub/routine-hub/pkg/timeutil"
)

var testCreatedAt = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

func newTestRoutine(t *testing.T, goal Goal) *Routine {
	t.Helper()
	r, err := NewRoutine(shared.NewRoutineID(), "user-1", "Read", goal, testCreatedAt)
	require.NoError(t, err)
	return r
}

func frequencyRoutine(t *testing.T, period TargetPeriod, target int) *Routine {
	t.Helper()
	g, err := NewFrequencyGoal(period, target)
	require.NoError(t, err)
	return newTestRoutine(t, g)
}

func scheduleRoutine(t *testing.T, rec Recurrence) *Routine {
	t.Helper()
	g, err := NewScheduleGoal(rec)
	require.NoError(t, err)
	return newTestRoutine(t, g)
}

func completedAt(r *Routine, at time.Time) *ExecutionRecord {
	return &ExecutionRecord{
		ID:          shared.NewExecutionID(),
		RoutineID:   r.ID,
		UserID:      r.UserID,
		ExecutedAt:  at,
		IsCompleted: true,
	}
}

func completedOnDays(r *Routine, tc timeutil.UserTimeContext, days ...string) []*ExecutionRecord {
	out := make([]*ExecutionRecord, 0, len(days))
	for _, d := range days {
		noon := tc.StartOfCivilDay(timeutil.MustParseCivilDate(d)).Add(12 * time.Hour)
		out = append(out, completedAt(r, noon))
	}
	return out
}

func date(s string) timeutil.CivilDate {
	return timeutil.MustParseCivilDate(s)
}
