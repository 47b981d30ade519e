// Package command contains write operations (CQRS - Commands).
//
// Every handler that touches a user's derived state (catch-up plans and the
// gamification profile) runs under that user's lock, so concurrent
// completions of one user are applied one at a time.
package command

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/routine-hub/internal/domain/routine"
	"github.com/alem-hub/routine-hub/internal/domain/shared"
	"github.com/alem-hub/routine-hub/pkg/logger"
	"github.com/alem-hub/routine-hub/pkg/timeutil"
)

// Clock returns the current instant.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

func clockOrSystem(c Clock) Clock {
	if c == nil {
		return systemClock
	}
	return c
}

// resolveTimeContext picks the explicit timezone when given, otherwise asks
// the resolver. Resolver failures degrade to UTC.
func resolveTimeContext(ctx context.Context, resolver shared.TimezoneResolver, userID shared.UserID, explicit string) timeutil.UserTimeContext {
	if explicit != "" || resolver == nil {
		return timeutil.NewUserTimeContext(explicit)
	}
	tz, err := resolver.Timezone(ctx, userID)
	if err != nil {
		logger.FromContext(ctx).Warn("timezone lookup failed, using UTC",
			logger.UserID(userID.String()),
			logger.Err(err),
		)
		return timeutil.UTC()
	}
	return timeutil.NewUserTimeContext(tz)
}

// publishAll delivers events best-effort. A failing bus never fails the
// command that produced the events.
func publishAll(ctx context.Context, publisher shared.EventPublisher, correlationID string, events ...shared.Event) {
	if publisher == nil {
		return
	}
	for _, ev := range events {
		if correlationID != "" {
			ev = withCorrelation(ev, correlationID)
		}
		if err := publisher.Publish(ev); err != nil {
			logger.FromContext(ctx).Warn("failed to publish event",
				logger.String("event_type", string(ev.EventType())),
				logger.Err(err),
			)
		}
	}
}

func withCorrelation(ev shared.Event, id string) shared.Event {
	switch e := ev.(type) {
	case shared.RoutineLifecycleEvent:
		e.BaseEvent = e.BaseEvent.WithCorrelationID(id)
		return e
	case shared.ExecutionChangedEvent:
		e.BaseEvent = e.BaseEvent.WithCorrelationID(id)
		return e
	case shared.CatchupNeededEvent:
		e.BaseEvent = e.BaseEvent.WithCorrelationID(id)
		return e
	case shared.XPGainedEvent:
		e.BaseEvent = e.BaseEvent.WithCorrelationID(id)
		return e
	case shared.LevelUpEvent:
		e.BaseEvent = e.BaseEvent.WithCorrelationID(id)
		return e
	case shared.StreakUpdatedEvent:
		e.BaseEvent = e.BaseEvent.WithCorrelationID(id)
		return e
	}
	return ev
}

// lockUser acquires the user's lock. A nil locker means the caller already
// serializes access.
func lockUser(ctx context.Context, locker shared.UserLocker, userID shared.UserID) (func(), error) {
	if locker == nil {
		return func() {}, nil
	}
	return locker.Lock(ctx, userID)
}

// profileStreak returns the profile streak: the longest current streak among
// the user's live daily routines.
func profileStreak(ctx context.Context, routines routine.Repository, executions routine.ExecutionRepository, userID shared.UserID, now time.Time, tc timeutil.UserTimeContext) (int, error) {
	best := 0
	opts := routine.DefaultListOptions()
	for {
		page, err := routines.ListByUser(ctx, userID, opts)
		if err != nil {
			return 0, fmt.Errorf("list routines: %w", err)
		}
		for _, r := range page {
			if !r.IsLive() || !r.IsDailySchedule() {
				continue
			}
			history, err := executions.ListByRoutine(ctx, r.ID, time.Time{})
			if err != nil {
				return 0, fmt.Errorf("load history: %w", err)
			}
			best = max(best, routine.CurrentStreak(r, history, now, tc))
		}
		if len(page) < opts.Limit {
			return best, nil
		}
		opts.Offset += len(page)
	}
}

// syncProfileStreak recomputes the profile streak and stores it without
// granting XP. The caller must hold the user's lock.
func syncProfileStreak(ctx context.Context, routines routine.Repository, executions routine.ExecutionRepository, xp *GrantXPHandler, userID shared.UserID, now time.Time, tc timeutil.UserTimeContext) (int, error) {
	streak, err := profileStreak(ctx, routines, executions, userID, now, tc)
	if err != nil {
		return 0, fmt.Errorf("profile streak: %w", err)
	}
	if xp == nil {
		return streak, nil
	}
	if _, err := xp.grantLocked(ctx, userID, nil, &streak, now); err != nil {
		return 0, fmt.Errorf("sync profile streak: %w", err)
	}
	return streak, nil
}
