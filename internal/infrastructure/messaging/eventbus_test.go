package messaging

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/routine-hub/internal/domain/shared"
	"github.com/alem-hub/routine-hub/pkg/logger"
)

func syncBus() *InMemoryEventBus {
	return NewInMemoryEventBus(InMemoryEventBusConfig{Logger: logger.Nop()})
}

func levelUp() shared.Event {
	return shared.NewLevelUpEvent("u1", 1, 2, 120, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
}

func TestInMemoryEventBus_DispatchesByType(t *testing.T) {
	bus := syncBus()

	var typed, all, other int
	require.NoError(t, bus.Subscribe(shared.EventLevelUp, func(shared.Event) error { typed++; return nil }))
	require.NoError(t, bus.Subscribe(shared.EventXPGained, func(shared.Event) error { other++; return nil }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { all++; return nil }))

	require.NoError(t, bus.Publish(levelUp()))

	assert.Equal(t, 1, typed)
	assert.Equal(t, 1, all)
	assert.Equal(t, 0, other)
}

func TestInMemoryEventBus_HandlerErrorsDoNotReachPublisher(t *testing.T) {
	bus := syncBus()

	var after bool
	require.NoError(t, bus.Subscribe(shared.EventLevelUp, func(shared.Event) error { return errors.New("boom") }))
	require.NoError(t, bus.Subscribe(shared.EventLevelUp, func(shared.Event) error { panic("bad handler") }))
	require.NoError(t, bus.Subscribe(shared.EventLevelUp, func(shared.Event) error { after = true; return nil }))

	assert.NoError(t, bus.Publish(levelUp()))
	assert.True(t, after)
}

func TestInMemoryEventBus_Async(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 2, Logger: logger.Nop()})

	var calls atomic.Int32
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		calls.Add(1)
		return nil
	}))

	for i := 0; i < 20; i++ {
		require.NoError(t, bus.Publish(levelUp()))
	}
	bus.Wait()

	assert.Equal(t, int32(20), calls.Load())
	require.NoError(t, bus.Close())
}

func TestInMemoryEventBus_Closed(t *testing.T) {
	bus := syncBus()
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(levelUp()), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventLevelUp, func(shared.Event) error { return nil }), ErrEventBusClosed)
}

func TestInMemoryEventBus_RejectsNil(t *testing.T) {
	bus := syncBus()
	assert.ErrorIs(t, bus.Subscribe(shared.EventLevelUp, nil), ErrNilHandler)
	assert.ErrorIs(t, bus.SubscribeAll(nil), ErrNilHandler)
	assert.ErrorIs(t, bus.Publish(nil), ErrNilEvent)
}
