package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alem-hub/routine-hub/internal/domain/gamification"
	"github.com/alem-hub/routine-hub/internal/domain/routine"
	"github.com/alem-hub/routine-hub/internal/domain/shared"
	"github.com/alem-hub/routine-hub/pkg/logger"
	"github.com/alem-hub/routine-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD EXECUTION COMMAND
// The main write path: store the record, reconcile derived state (catch-up
// plan or streak), then grant completion XP and any streak milestone bonus.
// Everything runs under the user's lock. A record created by this call is
// soft-deleted again when a later step fails; a caller-supplied execution id
// makes a retried call a replay instead of a second record.
// ══════════════════════════════════════════════════════════════════════════════

// MaxClockSkew is how far in the future an execution may be stamped.
const MaxClockSkew = 5 * time.Minute

// RecordExecutionCommand contains the data to record an execution.
type RecordExecutionCommand struct {
	UserID    string
	RoutineID string

	// ExecutionID is optional. Retrying with the same id never creates a
	// second record or grants XP twice.
	ExecutionID string

	// ExecutedAt defaults to now.
	ExecutedAt  time.Time
	IsCompleted bool
	Duration    *time.Duration

	// Timezone overrides the user's configured timezone.
	Timezone string

	CorrelationID string
}

// Validate validates the command.
func (c RecordExecutionCommand) Validate() error {
	if _, err := shared.NewUserID(c.UserID); err != nil {
		return err
	}
	if _, err := shared.ParseRoutineID(c.RoutineID); err != nil {
		return err
	}
	if c.ExecutionID != "" {
		if _, err := shared.ParseExecutionID(c.ExecutionID); err != nil {
			return err
		}
	}
	if c.Duration != nil && *c.Duration < 0 {
		return shared.NewDomainError("command", "RecordExecution", shared.ErrNegativeValue, "duration cannot be negative")
	}
	return nil
}

// RecordExecutionResult contains the outcome of recording an execution.
type RecordExecutionResult struct {
	Execution *routine.ExecutionRecord
	Progress  routine.Progress

	// Replayed is set when the execution id was already recorded.
	Replayed bool

	// Streak values are set for schedule-based routines.
	Streak        int
	LongestStreak int

	// Catchup is set for frequency-based routines.
	Catchup *routine.CatchupAnalysis

	// XP is the completion grant; nil when the execution was not completed.
	XP         *GrantXPResult
	Milestones []gamification.StreakMilestone
}

// RecordExecutionHandler handles RecordExecutionCommand.
type RecordExecutionHandler struct {
	routines   routine.Repository
	executions routine.ExecutionRepository
	reconciler *PlanReconciler
	xp         *GrantXPHandler
	locker     shared.UserLocker
	timezones  shared.TimezoneResolver
	publisher  shared.EventPublisher
	clock      Clock
}

// NewRecordExecutionHandler creates a new RecordExecutionHandler. The XP
// handler must share the locker so its grants run inside this handler's
// critical section.
func NewRecordExecutionHandler(
	routines routine.Repository,
	executions routine.ExecutionRepository,
	reconciler *PlanReconciler,
	xp *GrantXPHandler,
	locker shared.UserLocker,
	timezones shared.TimezoneResolver,
	publisher shared.EventPublisher,
	clock Clock,
) *RecordExecutionHandler {
	return &RecordExecutionHandler{
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

// Handle executes the record execution command.
func (h *RecordExecutionHandler) Handle(ctx context.Context, cmd RecordExecutionCommand) (*RecordExecutionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("record_execution: validation failed: %w", err)
	}
	userID := shared.UserID(cmd.UserID)
	routineID, _ := shared.ParseRoutineID(cmd.RoutineID)
	now := h.clock()

	executedAt := cmd.ExecutedAt
	if executedAt.IsZero() {
		executedAt = now
	}
	if executedAt.After(now.Add(MaxClockSkew)) {
		return nil, fmt.Errorf("record_execution: %w",
			shared.NewDomainError("command", "RecordExecution", shared.ErrValueOutOfRange, "executed_at is in the future"))
	}

	r, err := h.routines.GetByID(ctx, routineID)
	if err != nil {
		return nil, fmt.Errorf("record_execution: %w", err)
	}
	if r.UserID != userID {
		return nil, fmt.Errorf("record_execution: %w", shared.ErrRoutineNotFound)
	}
	if !r.IsLive() {
		return nil, fmt.Errorf("record_execution: %w", shared.ErrRoutineInactive)
	}

	unlock, err := lockUser(ctx, h.locker, userID)
	if err != nil {
		return nil, fmt.Errorf("record_execution: %w", err)
	}
	defer unlock()

	rec, replayed, err := h.resolveRecord(ctx, cmd, r, executedAt, now)
	if err != nil {
		return nil, fmt.Errorf("record_execution: %w", err)
	}
	if !replayed {
		if err := h.executions.Save(ctx, rec); err != nil {
			return nil, fmt.Errorf("record_execution: failed to save execution: %w", err)
		}
	}

	tc := resolveTimeContext(ctx, h.timezones, userID, cmd.Timezone)
	result, events, err := h.apply(ctx, r, rec, now, tc)
	if err != nil {
		if !replayed {
			h.discard(ctx, r, rec, now, tc)
		}
		return nil, fmt.Errorf("record_execution: %w", err)
	}
	result.Replayed = replayed
	if !replayed {
		events = append([]shared.Event{
			shared.NewExecutionChangedEvent(shared.EventExecutionRecorded, userID, r.ID, rec.ID, rec.ExecutedAt, rec.IsCompleted, now),
		}, events...)
	}

	logger.FromContext(ctx).Info("execution recorded",
		logger.UserID(userID.String()),
		logger.RoutineID(r.ID.String()),
		logger.Bool("completed", rec.IsCompleted),
		logger.Bool("replayed", replayed),
		logger.Float64("progress", result.Progress.ProgressRatio),
	)

	publishAll(ctx, h.publisher, cmd.CorrelationID, events...)
	return result, nil
}

// resolveRecord builds the record to store, or returns the stored one when
// the caller's execution id is already recorded and not deleted.
func (h *RecordExecutionHandler) resolveRecord(ctx context.Context, cmd RecordExecutionCommand, r *routine.Routine, executedAt, now time.Time) (*routine.ExecutionRecord, bool, error) {
	if cmd.ExecutionID == "" {
		rec, err := routine.NewExecutionRecord(shared.NewExecutionID(), r, executedAt, cmd.IsCompleted, cmd.Duration, now)
		return rec, false, err
	}

	id, _ := shared.ParseExecutionID(cmd.ExecutionID)
	stored, err := h.executions.GetByID(ctx, id)
	switch {
	case err == nil:
		if stored.RoutineID != r.ID || stored.UserID != r.UserID {
			return nil, false, shared.ErrExecutionMismatch
		}
		if !stored.IsDeleted() {
			return stored, true, nil
		}
		// A deleted record, e.g. one discarded by a failed attempt, is
		// written again under the same id.
		rec, err := routine.NewExecutionRecord(id, r, executedAt, cmd.IsCompleted, cmd.Duration, now)
		return rec, false, err
	case errors.Is(err, shared.ErrExecutionNotFound):
		rec, err := routine.NewExecutionRecord(id, r, executedAt, cmd.IsCompleted, cmd.Duration, now)
		return rec, false, err
	default:
		return nil, false, err
	}
}

// apply reconciles derived state for the routine and grants XP for a
// completed record.
func (h *RecordExecutionHandler) apply(ctx context.Context, r *routine.Routine, rec *routine.ExecutionRecord, now time.Time, tc timeutil.UserTimeContext) (*RecordExecutionResult, []shared.Event, error) {
	result := &RecordExecutionResult{Execution: rec}
	var events []shared.Event

	switch {
	case r.Goal.Type() == routine.GoalFrequencyBased:
		recon, err := h.reconciler.Refresh(ctx, r, now, tc)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to reconcile plan: %w", err)
		}
		result.Progress = recon.Progress
		result.Catchup = &recon.Analysis
		if ev := catchupEvent(r, recon.Analysis, now); ev != nil {
			events = append(events, ev)
		}

	default:
		history, err := h.executions.ListByRoutine(ctx, r.ID, time.Time{})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load history: %w", err)
		}
		progress, err := routine.Aggregate(r, history, now, tc)
		if err != nil {
			return nil, nil, err
		}
		result.Progress = progress
		result.Streak = routine.CurrentStreak(r, history, now, tc)
		result.LongestStreak = routine.LongestStreak(r, history, tc)
		events = append(events, shared.NewStreakUpdatedEvent(r.UserID, r.ID, result.Streak, result.LongestStreak, now))
	}

	if rec.IsCompleted {
		xpEvents, err := h.grantCompletion(ctx, r, rec, result, now, tc)
		if err != nil {
			return nil, nil, err
		}
		events = append(events, xpEvents...)
	}
	return result, events, nil
}

// discard soft-deletes a record whose derived state could not be applied,
// so a failed call leaves no countable record behind, and refreshes the
// catch-up plan that may already have counted it.
func (h *RecordExecutionHandler) discard(ctx context.Context, r *routine.Routine, rec *routine.ExecutionRecord, now time.Time, tc timeutil.UserTimeContext) {
	ctx = context.WithoutCancel(ctx)
	log := logger.FromContext(ctx).With(logger.String("execution_id", rec.ID.String()))

	rec.SoftDelete(now)
	if err := h.executions.Save(ctx, rec); err != nil {
		log.Error("failed to discard execution", logger.Err(err))
		return
	}
	if _, ok := r.FrequencyGoal(); ok {
		if _, err := h.reconciler.Refresh(ctx, r, now, tc); err != nil {
			log.Warn("failed to refresh plan after discard", logger.Err(err))
		}
	}
}

// grantCompletion grants completion XP and every streak milestone bonus the
// routine's current run has reached and not been paid for. The profile
// streak moves with the user's daily routines.
func (h *RecordExecutionHandler) grantCompletion(ctx context.Context, r *routine.Routine, rec *routine.ExecutionRecord, result *RecordExecutionResult, now time.Time, tc timeutil.UserTimeContext) ([]shared.Event, error) {
	grants := []xpGrant{{
		amount: gamification.CompletionXP,
		reason: "completed " + r.Title,
		source: gamification.SourceRoutineCompletion,
		ref:    gamification.CompletionRef(rec.ID),
	}}

	var (
		streak     *int
		milestones []gamification.StreakMilestone
	)
	if r.IsDailySchedule() {
		s, err := profileStreak(ctx, h.routines, h.executions, r.UserID, now, tc)
		if err != nil {
			return nil, fmt.Errorf("profile streak: %w", err)
		}
		streak = &s

		today := tc.CivilDayOf(now)
		runStart := today.AddDays(1 - result.Streak)
		for _, m := range gamification.MilestonesReached(result.Streak) {
			refs, err := h.xp.profiles.SourceRefs(ctx, r.UserID, gamification.MilestoneRefPrefix(r.ID, m.Days))
			if err != nil {
				return nil, fmt.Errorf("load milestone refs: %w", err)
			}
			if gamification.MilestonePaidInRun(refs, r.ID, m.Days, runStart, today) {
				continue
			}
			milestones = append(milestones, m)
			grants = append(grants, xpGrant{
				amount: m.Bonus,
				reason: fmt.Sprintf("%s streak (%d days)", m.Title, m.Days),
				source: gamification.SourceStreakMilestone,
				ref:    gamification.MilestoneRef(r.ID, m.Days, runStart),
			})
		}
	}

	out, err := h.xp.grantLocked(ctx, r.UserID, grants, streak, now)
	if err != nil {
		return nil, fmt.Errorf("grant completion xp: %w", err)
	}
	result.XP = newGrantXPResult(out)
	for i, m := range milestones {
		if out.applied(i + 1) {
			result.Milestones = append(result.Milestones, m)
		}
	}
	return out.events(r.UserID, now), nil
}
