package eventhandler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/routine-hub/internal/domain/shared"
	"github.com/alem-hub/routine-hub/internal/infrastructure/messaging"
	"github.com/alem-hub/routine-hub/pkg/logger"
)

type fakeNotifier struct {
	mu       sync.Mutex
	levelUps []int
	nudges   []string
	err      error
}

func (f *fakeNotifier) NotifyLevelUp(_ context.Context, _ shared.UserID, _, newLevel int, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.levelUps = append(f.levelUps, newLevel)
	return nil
}

func (f *fakeNotifier) NotifyCatchup(_ context.Context, _ shared.UserID, _ shared.RoutineID, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.nudges = append(f.nudges, msg)
	return nil
}

type fakeInvalidator struct {
	mu    sync.Mutex
	calls []shared.RoutineID
}

func (f *fakeInvalidator) InvalidateRoutine(_ context.Context, id shared.RoutineID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	return errors.New("redis down")
}

var at = time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)

func TestOnLevelUp(t *testing.T) {
	n := &fakeNotifier{}
	h := NewOnLevelUpHandler(n, logger.Nop())

	require.NoError(t, h.Handle(shared.NewLevelUpEvent("user-1", 2, 4, 400, at)))
	assert.Equal(t, []int{4}, n.levelUps)

	n.err = errors.New("notifier down")
	assert.Error(t, h.Handle(shared.NewLevelUpEvent("user-1", 4, 5, 500, at)))
}

func TestOnCatchupNeeded_Cooldown(t *testing.T) {
	n := &fakeNotifier{}
	now := at
	h := NewOnCatchupNeededHandler(n, logger.Nop(), CatchupNeededConfig{
		Cooldown: time.Hour,
		Clock:    func() time.Time { return now },
	})
	routineID := shared.NewRoutineID()
	ev := shared.NewCatchupNeededEvent("user-1", routineID, 4, 1, 4, at)

	require.NoError(t, h.Handle(ev))
	require.NoError(t, h.Handle(ev))
	require.Len(t, n.nudges, 1)
	assert.Contains(t, n.nudges[0], "1 day left")

	now = now.Add(time.Hour)
	require.NoError(t, h.Handle(ev))
	assert.Len(t, n.nudges, 2)
}

func TestOnCatchupNeeded_FailedSendFreesSlot(t *testing.T) {
	n := &fakeNotifier{err: errors.New("boom")}
	h := NewOnCatchupNeededHandler(n, logger.Nop(), DefaultCatchupNeededConfig())
	ev := shared.NewCatchupNeededEvent("user-1", shared.NewRoutineID(), 3, 3, 1, at)

	assert.Error(t, h.Handle(ev))
	n.err = nil
	require.NoError(t, h.Handle(ev))
	assert.Len(t, n.nudges, 1)
}

func TestSubscriptions_RegisterRoutesEvents(t *testing.T) {
	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{Logger: logger.Nop()})
	defer bus.Close()

	n := &fakeNotifier{}
	inv := &fakeInvalidator{}
	require.NoError(t, Subscriptions{
		LevelUp:          NewOnLevelUpHandler(n, logger.Nop()),
		ExecutionChanged: NewOnExecutionChangedHandler(inv, logger.Nop()),
	}.Register(bus))

	routineID := shared.NewRoutineID()
	require.NoError(t, bus.Publish(shared.NewExecutionChangedEvent(shared.EventExecutionRecorded, "user-1", routineID, shared.NewExecutionID(), at, true, at)))
	require.NoError(t, bus.Publish(shared.NewRoutineLifecycleEvent(shared.EventRoutineDeleted, "user-1", routineID, at)))
	require.NoError(t, bus.Publish(shared.NewLevelUpEvent("user-1", 1, 2, 120, at)))

	assert.Equal(t, []shared.RoutineID{routineID, routineID}, inv.calls)
	assert.Equal(t, []int{2}, n.levelUps)
}
