package command

import (
	"context"
	"fmt"

	"github.com/alem-hub/routine-hub/internal/domain/routine"
	"github.com/alem-hub/routine-hub/internal/domain/shared"
	"github.com/alem-hub/routine-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEFINE ROUTINE COMMAND
// Turns a flat definition into a validated routine. Configuration errors are
// rejected here so evaluation never sees a malformed recurrence.
// ══════════════════════════════════════════════════════════════════════════════

// DefineRoutineCommand contains the data to define a routine.
type DefineRoutineCommand struct {
	UserID     string
	Definition routine.Definition

	// Timezone overrides the user's configured timezone for the initial plan.
	Timezone string

	CorrelationID string
}

// DefineRoutineResult contains the created routine.
type DefineRoutineResult struct {
	Routine *routine.Routine

	// Plan is the catch-up plan opened for a frequency-based routine.
	Plan *routine.CatchupPlan
}

// DefineRoutineHandler handles DefineRoutineCommand.
type DefineRoutineHandler struct {
	routines   routine.Repository
	reconciler *PlanReconciler
	locker     shared.UserLocker
	timezones  shared.TimezoneResolver
	publisher  shared.EventPublisher
	clock      Clock
}

// NewDefineRoutineHandler creates a new DefineRoutineHandler.
func NewDefineRoutineHandler(
	routines routine.Repository,
	reconciler *PlanReconciler,
	locker shared.UserLocker,
	timezones shared.TimezoneResolver,
	publisher shared.EventPublisher,
	clock Clock,
) *DefineRoutineHandler {
	return &DefineRoutineHandler{
		routines:   routines,
		reconciler: reconciler,
		locker:     locker,
		timezones:  timezones,
		publisher:  publisher,
		clock:      clockOrSystem(clock),
	}
}

// Handle executes the define routine command.
func (h *DefineRoutineHandler) Handle(ctx context.Context, cmd DefineRoutineCommand) (*DefineRoutineResult, error) {
	userID, err := shared.NewUserID(cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("define_routine: %w", err)
	}

	goal, err := cmd.Definition.ToGoal()
	if err != nil {
		return nil, fmt.Errorf("define_routine: %w", err)
	}

	now := h.clock()
	r, err := routine.NewRoutine(shared.NewRoutineID(), userID, cmd.Definition.Title, goal, now)
	if err != nil {
		return nil, fmt.Errorf("define_routine: %w", err)
	}

	if err := h.routines.Save(ctx, r); err != nil {
		return nil, fmt.Errorf("define_routine: failed to save routine: %w", err)
	}

	result := &DefineRoutineResult{Routine: r}
	events := []shared.Event{shared.NewRoutineLifecycleEvent(shared.EventRoutineDefined, userID, r.ID, now)}

	if _, ok := r.FrequencyGoal(); ok {
		unlock, err := lockUser(ctx, h.locker, userID)
		if err != nil {
			return nil, fmt.Errorf("define_routine: %w", err)
		}
		tc := resolveTimeContext(ctx, h.timezones, userID, cmd.Timezone)
		rec, err := h.reconciler.Refresh(ctx, r, now, tc)
		unlock()
		if err != nil {
			return nil, fmt.Errorf("define_routine: failed to open plan: %w", err)
		}
		result.Plan = &rec.Analysis.Plan
	}

	logger.FromContext(ctx).Info("routine defined",
		logger.UserID(userID.String()),
		logger.RoutineID(r.ID.String()),
		logger.String("goal", r.Goal.Describe()),
	)

	publishAll(ctx, h.publisher, cmd.CorrelationID, events...)
	return result, nil
}
