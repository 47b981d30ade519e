package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types.
const (
	// Routine events
	EventRoutineDefined     EventType = "routine.defined"
	EventRoutineDeactivated EventType = "routine.deactivated"
	EventRoutineDeleted     EventType = "routine.deleted"
	EventExecutionRecorded  EventType = "routine.execution_recorded"
	EventExecutionCorrected EventType = "routine.execution_corrected"
	EventCatchupNeeded      EventType = "routine.catchup_needed"

	// Progress events
	EventXPGained      EventType = "progress.xp_gained"
	EventLevelUp       EventType = "progress.level_up"
	EventStreakUpdated EventType = "progress.streak_updated"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event stamped at the given instant.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Routine Events
// ═══════════════════════════════════════════════════════════════════════════

// RoutineLifecycleEvent is emitted when a routine is defined, deactivated or deleted.
type RoutineLifecycleEvent struct {
	BaseEvent
	UserID    UserID    `json:"user_id"`
	RoutineID RoutineID `json:"routine_id"`
}

// Payload implements Event interface.
func (e RoutineLifecycleEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":    e.UserID.String(),
		"routine_id": e.RoutineID.String(),
	}
}

// NewRoutineLifecycleEvent creates a lifecycle event of the given type.
func NewRoutineLifecycleEvent(t EventType, userID UserID, routineID RoutineID, at time.Time) RoutineLifecycleEvent {
	return RoutineLifecycleEvent{
		BaseEvent: NewBaseEvent(t, routineID.String(), at),
		UserID:    userID,
		RoutineID: routineID,
	}
}

// ExecutionChangedEvent is emitted when an execution record is created or corrected.
type ExecutionChangedEvent struct {
	BaseEvent
	UserID      UserID      `json:"user_id"`
	RoutineID   RoutineID   `json:"routine_id"`
	ExecutionID ExecutionID `json:"execution_id"`
	ExecutedAt  time.Time   `json:"executed_at"`
	IsCompleted bool        `json:"is_completed"`
}

// Payload implements Event interface.
func (e ExecutionChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":      e.UserID.String(),
		"routine_id":   e.RoutineID.String(),
		"execution_id": e.ExecutionID.String(),
		"executed_at":  e.ExecutedAt.Format(time.RFC3339),
		"is_completed": e.IsCompleted,
	}
}

// NewExecutionChangedEvent creates an execution event of the given type.
func NewExecutionChangedEvent(t EventType, userID UserID, routineID RoutineID, executionID ExecutionID, executedAt time.Time, completed bool, at time.Time) ExecutionChangedEvent {
	return ExecutionChangedEvent{
		BaseEvent:   NewBaseEvent(t, routineID.String(), at),
		UserID:      userID,
		RoutineID:   routineID,
		ExecutionID: executionID,
		ExecutedAt:  executedAt,
		IsCompleted: completed,
	}
}

// CatchupNeededEvent is emitted when a frequency routine falls behind pace.
type CatchupNeededEvent struct {
	BaseEvent
	UserID               UserID    `json:"user_id"`
	RoutineID            RoutineID `json:"routine_id"`
	RemainingTarget      int       `json:"remaining_target"`
	RemainingDays        int       `json:"remaining_days"`
	SuggestedDailyTarget int       `json:"suggested_daily_target"`
}

// Payload implements Event interface.
func (e CatchupNeededEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":                e.UserID.String(),
		"routine_id":             e.RoutineID.String(),
		"remaining_target":       e.RemainingTarget,
		"remaining_days":         e.RemainingDays,
		"suggested_daily_target": e.SuggestedDailyTarget,
	}
}

// NewCatchupNeededEvent creates a new CatchupNeededEvent.
func NewCatchupNeededEvent(userID UserID, routineID RoutineID, remainingTarget, remainingDays, suggested int, at time.Time) CatchupNeededEvent {
	return CatchupNeededEvent{
		BaseEvent:            NewBaseEvent(EventCatchupNeeded, routineID.String(), at),
		UserID:               userID,
		RoutineID:            routineID,
		RemainingTarget:      remainingTarget,
		RemainingDays:        remainingDays,
		SuggestedDailyTarget: suggested,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// XPGainedEvent is emitted when a user gains XP.
type XPGainedEvent struct {
	BaseEvent
	UserID     UserID `json:"user_id"`
	Amount     int64  `json:"amount"`
	NewTotal   int64  `json:"new_total"`
	SourceType string `json:"source_type"`
	Reason     string `json:"reason"`
}

// Payload implements Event interface.
func (e XPGainedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":     e.UserID.String(),
		"amount":      e.Amount,
		"new_total":   e.NewTotal,
		"source_type": e.SourceType,
		"reason":      e.Reason,
	}
}

// NewXPGainedEvent creates a new XPGainedEvent.
func NewXPGainedEvent(userID UserID, amount, newTotal int64, sourceType, reason string, at time.Time) XPGainedEvent {
	return XPGainedEvent{
		BaseEvent:  NewBaseEvent(EventXPGained, userID.String(), at),
		UserID:     userID,
		Amount:     amount,
		NewTotal:   newTotal,
		SourceType: sourceType,
		Reason:     reason,
	}
}

// LevelUpEvent is emitted when a user reaches a new level.
type LevelUpEvent struct {
	BaseEvent
	UserID       UserID `json:"user_id"`
	OldLevel     int    `json:"old_level"`
	NewLevel     int    `json:"new_level"`
	LevelsGained int    `json:"levels_gained"`
	NewTotalXP   int64  `json:"new_total_xp"`
}

// Payload implements Event interface.
func (e LevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":       e.UserID.String(),
		"old_level":     e.OldLevel,
		"new_level":     e.NewLevel,
		"levels_gained": e.LevelsGained,
		"new_total_xp":  e.NewTotalXP,
	}
}

// NewLevelUpEvent creates a new LevelUpEvent.
func NewLevelUpEvent(userID UserID, oldLevel, newLevel int, newTotalXP int64, at time.Time) LevelUpEvent {
	return LevelUpEvent{
		BaseEvent:    NewBaseEvent(EventLevelUp, userID.String(), at),
		UserID:       userID,
		OldLevel:     oldLevel,
		NewLevel:     newLevel,
		LevelsGained: newLevel - oldLevel,
		NewTotalXP:   newTotalXP,
	}
}

// StreakUpdatedEvent is emitted when a user's streak changes.
type StreakUpdatedEvent struct {
	BaseEvent
	UserID        UserID    `json:"user_id"`
	RoutineID     RoutineID `json:"routine_id"`
	Streak        int       `json:"streak"`
	LongestStreak int       `json:"longest_streak"`
}

// Payload implements Event interface.
func (e StreakUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID.String(),
		"routine_id":     e.RoutineID.String(),
		"streak":         e.Streak,
		"longest_streak": e.LongestStreak,
	}
}

// NewStreakUpdatedEvent creates a new StreakUpdatedEvent.
func NewStreakUpdatedEvent(userID UserID, routineID RoutineID, streak, longest int, at time.Time) StreakUpdatedEvent {
	return StreakUpdatedEvent{
		BaseEvent:     NewBaseEvent(EventStreakUpdated, userID.String(), at),
		UserID:        userID,
		RoutineID:     routineID,
		Streak:        streak,
		LongestStreak: longest,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Bus contracts
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
