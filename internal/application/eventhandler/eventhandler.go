// Package eventhandler contains the reactive side of the application: handlers
// subscribed to domain events that notify users and keep caches tidy.
// Handlers never change routine or profile state.
package eventhandler

import (
	"context"
	"time"

	"github.com/alem-hub/routine-hub/internal/domain/shared"
)

// handlerTimeout bounds the side effects of a single event.
const handlerTimeout = 10 * time.Second

// Notifier delivers user-facing messages. Implementations live in the
// infrastructure layer.
type Notifier interface {
	NotifyLevelUp(ctx context.Context, userID shared.UserID, oldLevel, newLevel int, totalXP int64) error
	NotifyCatchup(ctx context.Context, userID shared.UserID, routineID shared.RoutineID, message string) error
}

// ProgressInvalidator drops memoized progress of a routine.
type ProgressInvalidator interface {
	InvalidateRoutine(ctx context.Context, routineID shared.RoutineID) error
}

// Subscriptions wires every handler to its events.
type Subscriptions struct {
	LevelUp          *OnLevelUpHandler
	CatchupNeeded    *OnCatchupNeededHandler
	ExecutionChanged *OnExecutionChangedHandler
}

// Register subscribes the non-nil handlers to bus.
func (s Subscriptions) Register(bus shared.EventSubscriber) error {
	if s.LevelUp != nil {
		if err := bus.Subscribe(shared.EventLevelUp, s.LevelUp.Handle); err != nil {
			return err
		}
	}
	if s.CatchupNeeded != nil {
		if err := bus.Subscribe(shared.EventCatchupNeeded, s.CatchupNeeded.Handle); err != nil {
			return err
		}
	}
	if s.ExecutionChanged != nil {
		for _, t := range []shared.EventType{shared.EventExecutionRecorded, shared.EventExecutionCorrected, shared.EventRoutineDeleted} {
			if err := bus.Subscribe(t, s.ExecutionChanged.Handle); err != nil {
				return err
			}
		}
	}
	return nil
}
