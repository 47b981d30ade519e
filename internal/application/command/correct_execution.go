package command

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/routine-hub/internal/domain/routine"
	"github.com/alem-hub/routine-hub/internal/domain/shared"
	"github.com/alem-hub/routine-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CORRECT EXECUTION COMMAND
// Soft edit or soft delete of an existing record. Derived state is recomputed
// from the corrected history and the profile streak follows it. XP already
// granted is kept: the ledger is append-only and corrections never revoke
// rewards.
// ══════════════════════════════════════════════════════════════════════════════

// CorrectExecutionCommand contains the correction.
type CorrectExecutionCommand struct {
	UserID      string
	ExecutionID string

	ExecutedAt  *time.Time
	IsCompleted *bool
	Duration    *time.Duration

	// Delete soft-deletes the record; the other fields are ignored.
	Delete bool

	Timezone      string
	CorrelationID string
}

// Validate validates the command.
func (c CorrectExecutionCommand) Validate() error {
	if _, err := shared.NewUserID(c.UserID); err != nil {
		return err
	}
	if _, err := shared.ParseExecutionID(c.ExecutionID); err != nil {
		return err
	}
	if !c.Delete && c.ExecutedAt == nil && c.IsCompleted == nil && c.Duration == nil {
		return shared.NewDomainError("command", "CorrectExecution", shared.ErrEmptyValue, "nothing to correct")
	}
	return nil
}

// CorrectExecutionResult contains the corrected record and recomputed state.
type CorrectExecutionResult struct {
	Execution *routine.ExecutionRecord
	Progress  routine.Progress
	Catchup   *routine.CatchupAnalysis
	Streak    int

	// ProfileStreak is the user's streak after the correction.
	ProfileStreak int
}

// CorrectExecutionHandler handles CorrectExecutionCommand.
type CorrectExecutionHandler struct {
	routines   routine.Repository
	executions routine.ExecutionRepository
	reconciler *PlanReconciler
	xp         *GrantXPHandler
	locker     shared.UserLocker
	timezones  shared.TimezoneResolver
	publisher  shared.EventPublisher
	clock      Clock
}

// NewCorrectExecutionHandler creates a new CorrectExecutionHandler. The XP
// handler must share the locker.
func NewCorrectExecutionHandler(
	routines routine.Repository,
	executions routine.ExecutionRepository,
	reconciler *PlanReconciler,
	xp *GrantXPHandler,
	locker shared.UserLocker,
	timezones shared.TimezoneResolver,
	publisher shared.EventPublisher,
	clock Clock,
) *CorrectExecutionHandler {
	return &CorrectExecutionHandler{
		routines:   routines,
		executions: executions,
		reconciler: reconciler,
		xp:         xp,
		locker:     locker,
		timezones:  timezones,
		publisher:  publisher,
		clock:      clockOrSystem(clock),
	}
}

// Handle executes the correction.
func (h *CorrectExecutionHandler) Handle(ctx context.Context, cmd CorrectExecutionCommand) (*CorrectExecutionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("correct_execution: validation failed: %w", err)
	}
	userID := shared.UserID(cmd.UserID)
	execID, _ := shared.ParseExecutionID(cmd.ExecutionID)
	now := h.clock()

	unlock, err := lockUser(ctx, h.locker, userID)
	if err != nil {
		return nil, fmt.Errorf("correct_execution: %w", err)
	}
	defer unlock()

	rec, err := h.executions.GetByID(ctx, execID)
	if err != nil {
		return nil, fmt.Errorf("correct_execution: %w", err)
	}
	if rec.UserID != userID {
		return nil, fmt.Errorf("correct_execution: %w", shared.ErrExecutionNotFound)
	}

	r, err := h.routines.GetByID(ctx, rec.RoutineID)
	if err != nil {
		return nil, fmt.Errorf("correct_execution: %w", err)
	}

	if cmd.Delete {
		rec.SoftDelete(now)
	} else if err := rec.Correct(routine.Correction{
		ExecutedAt:  cmd.ExecutedAt,
		IsCompleted: cmd.IsCompleted,
		Duration:    cmd.Duration,
	}, now); err != nil {
		return nil, fmt.Errorf("correct_execution: %w", err)
	}

	if err := h.executions.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("correct_execution: failed to save execution: %w", err)
	}

	tc := resolveTimeContext(ctx, h.timezones, userID, cmd.Timezone)
	result := &CorrectExecutionResult{Execution: rec}
	events := []shared.Event{
		shared.NewExecutionChangedEvent(shared.EventExecutionCorrected, userID, r.ID, rec.ID, rec.ExecutedAt, rec.Counts(), now),
	}

	if _, ok := r.FrequencyGoal(); ok && r.IsLive() {
		recon, err := h.reconciler.Refresh(ctx, r, now, tc)
		if err != nil {
			return nil, fmt.Errorf("correct_execution: failed to reconcile plan: %w", err)
		}
		result.Progress = recon.Progress
		result.Catchup = &recon.Analysis
		if ev := catchupEvent(r, recon.Analysis, now); ev != nil {
			events = append(events, ev)
		}
	} else {
		history, err := h.executions.ListByRoutine(ctx, r.ID, time.Time{})
		if err != nil {
			return nil, fmt.Errorf("correct_execution: failed to load history: %w", err)
		}
		if result.Progress, err = routine.Aggregate(r, history, now, tc); err != nil {
			return nil, fmt.Errorf("correct_execution: %w", err)
		}
		if _, ok := r.ScheduleGoal(); ok {
			result.Streak = routine.CurrentStreak(r, history, now, tc)
			events = append(events, shared.NewStreakUpdatedEvent(userID, r.ID, result.Streak, routine.LongestStreak(r, history, tc), now))
		}
	}

	if r.IsDailySchedule() {
		if result.ProfileStreak, err = syncProfileStreak(ctx, h.routines, h.executions, h.xp, userID, now, tc); err != nil {
			return nil, fmt.Errorf("correct_execution: %w", err)
		}
	}

	logger.FromContext(ctx).Info("execution corrected",
		logger.UserID(userID.String()),
		logger.RoutineID(r.ID.String()),
		logger.String("execution_id", rec.ID.String()),
		logger.Bool("deleted", rec.IsDeleted()),
	)

	publishAll(ctx, h.publisher, cmd.CorrelationID, events...)
	return result, nil
}
