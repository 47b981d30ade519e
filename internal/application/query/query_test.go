package query

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/routine-hub/internal/domain/gamification"
	"github.com/alem-hub/routine-hub/internal/domain/routine"
	"github.com/alem-hub/routine-hub/internal/domain/shared"
	"github.com/alem-hub/routine-hub/internal/infrastructure/persistence/memory"
)

// Wednesday 2024-01-10, noon UTC. The Sunday-based week started 2024-01-07.
var wednesday = time.Date(2024, time.January, 10, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return wednesday }

type countingExecutions struct {
	*memory.ExecutionRepository
	lists atomic.Int32
}

func (c *countingExecutions) ListByRoutine(ctx context.Context, id shared.RoutineID, since time.Time) ([]*routine.ExecutionRecord, error) {
	c.lists.Add(1)
	return c.ExecutionRepository.ListByRoutine(ctx, id, since)
}

// mapStore is a ProgressStore that round-trips through JSON like the redis store.
type mapStore struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newMapStore() *mapStore { return &mapStore{items: make(map[string][]byte)} }

func (m *mapStore) Load(_ context.Context, key string, dest any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.items[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dest)
}

func (m *mapStore) Store(_ context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = b
	return nil
}

type fixture struct {
	routines   *memory.RoutineRepository
	executions *countingExecutions
}

func newFixture() *fixture {
	return &fixture{
		routines:   memory.NewRoutineRepository(),
		executions: &countingExecutions{ExecutionRepository: memory.NewExecutionRepository()},
	}
}

func (f *fixture) frequency(t *testing.T, title string, period routine.TargetPeriod, target int) *routine.Routine {
	t.Helper()
	g, err := routine.NewFrequencyGoal(period, target)
	require.NoError(t, err)
	return f.save(t, title, g)
}

func (f *fixture) daily(t *testing.T) *routine.Routine {
	t.Helper()
	g, err := routine.NewScheduleGoal(routine.DailyRecurrence{})
	require.NoError(t, err)
	return f.save(t, "Meditate", g)
}

func (f *fixture) save(t *testing.T, title string, g routine.Goal) *routine.Routine {
	t.Helper()
	r, err := routine.NewRoutine(shared.NewRoutineID(), "user-1", title, g, wednesday.AddDate(0, -1, 0))
	require.NoError(t, err)
	require.NoError(t, f.routines.Save(context.Background(), r))
	return r
}

func (f *fixture) complete(t *testing.T, r *routine.Routine, at time.Time) *routine.ExecutionRecord {
	t.Helper()
	rec, err := routine.NewExecutionRecord(shared.NewExecutionID(), r, at, true, nil, at)
	require.NoError(t, err)
	require.NoError(t, f.executions.Save(context.Background(), rec))
	return rec
}

func (f *fixture) progressHandler(t *testing.T, store ProgressStore) *GetRoutineProgressHandler {
	t.Helper()
	h, err := NewGetRoutineProgressHandler(f.routines, f.executions, store, nil, GetRoutineProgressHandlerConfig{Clock: fixedClock})
	require.NoError(t, err)
	return h
}

func TestGetRoutineProgress_FrequencyWithCatchup(t *testing.T) {
	f := newFixture()
	r := f.frequency(t, "Gym", routine.PeriodWeekly, 5)
	f.complete(t, r, wednesday.Add(-time.Hour))
	f.complete(t, r, wednesday.AddDate(0, 0, -7)) // previous week

	dto, err := f.progressHandler(t, nil).Handle(context.Background(), GetRoutineProgressQuery{
		UserID: "user-1", RoutineID: r.ID.String(),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, dto.ExecutedCount)
	assert.Equal(t, 5, dto.TargetCount)
	assert.InDelta(t, 0.2, dto.ProgressRatio, 1e-9)
	assert.Equal(t, "2024-01-10", dto.Date)

	require.NotNil(t, dto.Catchup)
	assert.Equal(t, 4, dto.Catchup.RemainingTarget)
	assert.Equal(t, 4, dto.Catchup.RemainingDays)
	assert.True(t, dto.Catchup.NeedsCatchup)
}

func TestGetRoutineProgress_ScheduleStreak(t *testing.T) {
	f := newFixture()
	r := f.daily(t)
	for d := 0; d < 3; d++ {
		f.complete(t, r, wednesday.AddDate(0, 0, -d))
	}

	dto, err := f.progressHandler(t, nil).Handle(context.Background(), GetRoutineProgressQuery{
		UserID: "user-1", RoutineID: r.ID.String(),
	})
	require.NoError(t, err)
	assert.True(t, dto.IsDueToday)
	assert.True(t, dto.IsCompleted)
	assert.Equal(t, 3, dto.Streak)
	assert.Nil(t, dto.Catchup)
}

func TestGetRoutineProgress_MemoizesUntilRevisionChanges(t *testing.T) {
	f := newFixture()
	r := f.frequency(t, "Gym", routine.PeriodWeekly, 3)
	h := f.progressHandler(t, nil)
	q := GetRoutineProgressQuery{UserID: "user-1", RoutineID: r.ID.String()}

	_, err := h.Handle(context.Background(), q)
	require.NoError(t, err)
	_, err = h.Handle(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.executions.lists.Load())

	f.complete(t, r, wednesday)
	dto, err := h.Handle(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.executions.lists.Load())
	assert.Equal(t, 1, dto.ExecutedCount)
}

func TestGetRoutineProgress_SharedStoreServesOtherInstances(t *testing.T) {
	f := newFixture()
	r := f.frequency(t, "Gym", routine.PeriodWeekly, 3)
	f.complete(t, r, wednesday)
	store := newMapStore()
	q := GetRoutineProgressQuery{UserID: "user-1", RoutineID: r.ID.String()}

	first, err := f.progressHandler(t, store).Handle(context.Background(), q)
	require.NoError(t, err)
	second, err := f.progressHandler(t, store).Handle(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.executions.lists.Load())
	assert.Equal(t, first.ExecutedCount, second.ExecutedCount)
	assert.True(t, first.PeriodStart.Equal(second.PeriodStart))
}

func TestGetRoutineProgress_ConcurrentMissesComputeOnce(t *testing.T) {
	f := newFixture()
	r := f.daily(t)
	h := f.progressHandler(t, nil)
	q := GetRoutineProgressQuery{UserID: "user-1", RoutineID: r.ID.String()}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.Handle(context.Background(), q)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, f.executions.lists.Load(), int32(16))
	assert.GreaterOrEqual(t, f.executions.lists.Load(), int32(1))
}

func TestGetRoutineProgress_HidesForeignRoutine(t *testing.T) {
	f := newFixture()
	r := f.daily(t)

	_, err := f.progressHandler(t, nil).Handle(context.Background(), GetRoutineProgressQuery{
		UserID: "user-2", RoutineID: r.ID.String(),
	})
	assert.ErrorIs(t, err, shared.ErrRoutineNotFound)
}

func TestGetCatchupSuggestions_RankedAndCapped(t *testing.T) {
	f := newFixture()
	onPace := f.frequency(t, "Water", routine.PeriodWeekly, 2)
	f.complete(t, onPace, wednesday)
	f.complete(t, onPace, wednesday.Add(-time.Hour))
	f.frequency(t, "Gym", routine.PeriodWeekly, 4)
	f.frequency(t, "Run", routine.PeriodMonthly, 10)
	f.daily(t)

	h := NewGetCatchupSuggestionsHandler(f.routines, f.executions, nil, fixedClock)
	dto, err := h.Handle(context.Background(), GetCatchupSuggestionsQuery{UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, 3, dto.Analyzed)
	require.Len(t, dto.Suggestions, 2)
	assert.Equal(t, "Gym", dto.Suggestions[0].RoutineTitle)
	assert.Equal(t, "Run", dto.Suggestions[1].RoutineTitle)
	assert.Len(t, dto.Texts, 2)

	dto, err = h.Handle(context.Background(), GetCatchupSuggestionsQuery{UserID: "user-1", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, dto.Suggestions, 1)
}

func TestGetCompletionStats(t *testing.T) {
	f := newFixture()
	r := f.daily(t)
	f.complete(t, r, wednesday)
	f.complete(t, r, wednesday.AddDate(0, 0, -2))

	h := NewGetCompletionStatsHandler(f.routines, f.executions, nil, fixedClock)
	dto, err := h.Handle(context.Background(), GetCompletionStatsQuery{
		UserID: "user-1", RoutineID: r.ID.String(), From: "2024-01-07", To: "2024-01-10",
	})
	require.NoError(t, err)
	assert.Equal(t, 4, dto.DueCount)
	assert.Equal(t, 2, dto.CompletedCount)
	assert.InDelta(t, 0.5, dto.CompletionRate, 1e-9)
	assert.Equal(t, []string{"2024-01-07", "2024-01-09"}, dto.MissedDates)
}

func TestGetCompletionStats_RejectsFrequencyRoutine(t *testing.T) {
	f := newFixture()
	r := f.frequency(t, "Gym", routine.PeriodWeekly, 3)

	h := NewGetCompletionStatsHandler(f.routines, f.executions, nil, fixedClock)
	_, err := h.Handle(context.Background(), GetCompletionStatsQuery{UserID: "user-1", RoutineID: r.ID.String()})
	assert.ErrorIs(t, err, shared.ErrNotScheduleBased)
}

func TestGetProfile(t *testing.T) {
	profiles := memory.NewProfileRepository()
	h := NewGetProfileHandler(profiles, profiles, fixedClock)

	dto, err := h.Handle(context.Background(), GetProfileQuery{UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, dto.Level)
	assert.Equal(t, int64(100), dto.NextLevelXP)

	p := gamification.NewProfile("user-1", wednesday)
	for _, amount := range []int64{60, 70} {
		res, err := gamification.AddXP(p, amount, "test", gamification.SourceMission, wednesday)
		require.NoError(t, err)
		next := res.Profile
		require.NoError(t, profiles.Commit(context.Background(), &next, p.Version, []gamification.XPTransaction{res.Transaction}))
		p = next
	}

	dto, err = h.Handle(context.Background(), GetProfileQuery{UserID: "user-1", LedgerLimit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, dto.Level)
	assert.Equal(t, int64(130), dto.TotalXP)
	assert.Equal(t, int64(30), dto.CurrentXP)
	require.Len(t, dto.Ledger, 1)
	assert.Equal(t, int64(70), dto.Ledger[0].Amount)
}
