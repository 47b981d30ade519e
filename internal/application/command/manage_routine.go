package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/alem-hub/routine-hub/internal/domain/routine"
	"github.com/alem-hub/routine-hub/internal/domain/shared"
	"github.com/alem-hub/routine-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROUTINE LIFECYCLE COMMANDS
// Deactivate pauses tracking and closes the plan; Activate resumes it and
// reopens a plan for the current period; Delete soft-deletes the routine and
// removes its execution history. A daily routine leaving or rejoining the
// live set moves the profile streak.
// ══════════════════════════════════════════════════════════════════════════════

// RoutineAction names a lifecycle transition.
type RoutineAction string

const (
	ActionDeactivate RoutineAction = "deactivate"
	ActionActivate   RoutineAction = "activate"
	ActionDelete     RoutineAction = "delete"
)

// ManageRoutineCommand requests a lifecycle transition.
type ManageRoutineCommand struct {
	UserID    string
	RoutineID string
	Action    RoutineAction

	// Timezone overrides the user's configured timezone when a plan is reopened.
	Timezone string

	CorrelationID string
}

// Validate validates the command.
func (c ManageRoutineCommand) Validate() error {
	if _, err := shared.NewUserID(c.UserID); err != nil {
		return err
	}
	if _, err := shared.ParseRoutineID(c.RoutineID); err != nil {
		return err
	}
	switch c.Action {
	case ActionDeactivate, ActionActivate, ActionDelete:
		return nil
	}
	return shared.NewDomainError("command", "ManageRoutine", shared.ErrInvalidInput, "unknown action "+string(c.Action))
}

// ManageRoutineResult reports the routine after the transition.
type ManageRoutineResult struct {
	Routine         *routine.Routine
	DeletedRecords  int
	PlanDeactivated bool
	ProfileStreak   int
}

// ManageRoutineHandler handles ManageRoutineCommand.
type ManageRoutineHandler struct {
	routines   routine.Repository
	executions routine.ExecutionRepository
	plans      routine.CatchupPlanRepository
	reconciler *PlanReconciler
	xp         *GrantXPHandler
	locker     shared.UserLocker
	timezones  shared.TimezoneResolver
	publisher  shared.EventPublisher
	clock      Clock
}

// NewManageRoutineHandler creates a new ManageRoutineHandler. The XP handler
// must share the locker.
func NewManageRoutineHandler(
	routines routine.Repository,
	executions routine.ExecutionRepository,
	plans routine.CatchupPlanRepository,
	xp *GrantXPHandler,
	locker shared.UserLocker,
	timezones shared.TimezoneResolver,
	publisher shared.EventPublisher,
	clock Clock,
) *ManageRoutineHandler {
	return &ManageRoutineHandler{
		routines:   routines,
		executions: executions,
		plans:      plans,
		reconciler: NewPlanReconciler(executions, plans),
		xp:         xp,
		locker:     locker,
		timezones:  timezones,
		publisher:  publisher,
		clock:      clockOrSystem(clock),
	}
}

// Handle executes the lifecycle transition.
func (h *ManageRoutineHandler) Handle(ctx context.Context, cmd ManageRoutineCommand) (*ManageRoutineResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("manage_routine: validation failed: %w", err)
	}
	userID := shared.UserID(cmd.UserID)
	routineID, _ := shared.ParseRoutineID(cmd.RoutineID)
	now := h.clock()

	r, err := h.routines.GetByID(ctx, routineID)
	if err != nil {
		return nil, fmt.Errorf("manage_routine: %w", err)
	}
	if r.UserID != userID {
		return nil, fmt.Errorf("manage_routine: %w", shared.ErrRoutineNotFound)
	}

	unlock, err := lockUser(ctx, h.locker, userID)
	if err != nil {
		return nil, fmt.Errorf("manage_routine: %w", err)
	}
	defer unlock()

	result := &ManageRoutineResult{Routine: r}
	var eventType shared.EventType

	switch cmd.Action {
	case ActionDeactivate:
		if err := r.Deactivate(now); err != nil {
			return nil, fmt.Errorf("manage_routine: %w", err)
		}
		eventType = shared.EventRoutineDeactivated

	case ActionActivate:
		if err := r.Activate(now); err != nil {
			return nil, fmt.Errorf("manage_routine: %w", err)
		}
		eventType = shared.EventRoutineDefined

	case ActionDelete:
		r.SoftDelete(now)
		eventType = shared.EventRoutineDeleted
	}

	if err := h.routines.Save(ctx, r); err != nil {
		return nil, fmt.Errorf("manage_routine: failed to save routine: %w", err)
	}

	if cmd.Action == ActionDelete {
		n, err := h.executions.DeleteByRoutine(ctx, r.ID)
		if err != nil {
			return nil, fmt.Errorf("manage_routine: failed to delete executions: %w", err)
		}
		result.DeletedRecords = n
	}

	tc := resolveTimeContext(ctx, h.timezones, userID, cmd.Timezone)
	if _, ok := r.FrequencyGoal(); ok {
		if r.IsLive() {
			if _, err := h.reconciler.Refresh(ctx, r, now, tc); err != nil {
				return nil, fmt.Errorf("manage_routine: failed to reopen plan: %w", err)
			}
		} else {
			if err := h.plans.DeactivateByRoutine(ctx, r.ID, now); err != nil && !errors.Is(err, shared.ErrCatchupPlanMissing) {
				return nil, fmt.Errorf("manage_routine: failed to close plan: %w", err)
			}
			result.PlanDeactivated = true
		}
	}

	if r.IsDailySchedule() {
		if result.ProfileStreak, err = syncProfileStreak(ctx, h.routines, h.executions, h.xp, userID, now, tc); err != nil {
			return nil, fmt.Errorf("manage_routine: %w", err)
		}
	}

	logger.FromContext(ctx).Info("routine lifecycle changed",
		logger.UserID(userID.String()),
		logger.RoutineID(r.ID.String()),
		logger.String("action", string(cmd.Action)),
	)

	publishAll(ctx, h.publisher, cmd.CorrelationID, shared.NewRoutineLifecycleEvent(eventType, userID, r.ID, now))
	return result, nil
}
