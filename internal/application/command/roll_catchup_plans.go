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
// ROLL EXPIRED CATCH-UP PLANS
// A plan whose period ended without a new execution is still marked active.
// This command closes it and opens the plan of the period containing now.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultRollBatchSize is the number of expired plans loaded per batch.
const DefaultRollBatchSize = 100

// RollCatchupPlansCommand requests one sweep over expired plans.
type RollCatchupPlansCommand struct {
	BatchSize int

	CorrelationID string
}

// RollCatchupPlansResult summarizes a sweep.
type RollCatchupPlansResult struct {
	Scanned int
	Rolled  int

	// Closed counts plans of routines that are no longer live.
	Closed int
	Failed int
}

// RollCatchupPlansHandler handles RollCatchupPlansCommand.
type RollCatchupPlansHandler struct {
	routines   routine.Repository
	plans      routine.CatchupPlanRepository
	reconciler *PlanReconciler
	locker     shared.UserLocker
	timezones  shared.TimezoneResolver
	publisher  shared.EventPublisher
	clock      Clock
}

// NewRollCatchupPlansHandler creates a new RollCatchupPlansHandler.
func NewRollCatchupPlansHandler(
	routines routine.Repository,
	executions routine.ExecutionRepository,
	plans routine.CatchupPlanRepository,
	locker shared.UserLocker,
	timezones shared.TimezoneResolver,
	publisher shared.EventPublisher,
	clock Clock,
) *RollCatchupPlansHandler {
	return &RollCatchupPlansHandler{
		routines:   routines,
		plans:      plans,
		reconciler: NewPlanReconciler(executions, plans),
		locker:     locker,
		timezones:  timezones,
		publisher:  publisher,
		clock:      clockOrSystem(clock),
	}
}

// Handle processes expired plans batch by batch. A routine that fails is
// logged and counted; the sweep stops when a batch makes no progress.
func (h *RollCatchupPlansHandler) Handle(ctx context.Context, cmd RollCatchupPlansCommand) (*RollCatchupPlansResult, error) {
	batch := cmd.BatchSize
	if batch <= 0 {
		batch = DefaultRollBatchSize
	}
	log := logger.FromContext(ctx)
	now := h.clock()
	result := &RollCatchupPlansResult{}

	for {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("roll_catchup_plans: %w", err)
		}

		expired, err := h.plans.ListExpired(ctx, now, batch)
		if err != nil {
			return result, fmt.Errorf("roll_catchup_plans: failed to list expired plans: %w", err)
		}
		if len(expired) == 0 {
			return result, nil
		}

		failed := 0
		for _, plan := range expired {
			result.Scanned++
			closed, err := h.roll(ctx, plan, cmd.CorrelationID)
			switch {
			case err != nil:
				failed++
				log.Warn("failed to roll catch-up plan",
					logger.RoutineID(plan.RoutineID.String()),
					logger.Err(err),
				)
			case closed:
				result.Closed++
			default:
				result.Rolled++
			}
		}
		result.Failed += failed

		if failed == len(expired) || len(expired) < batch {
			return result, nil
		}
	}
}

// roll refreshes one routine's plan. It reports closed when the routine was
// deleted or paused and its plans were only deactivated.
func (h *RollCatchupPlansHandler) roll(ctx context.Context, plan *routine.CatchupPlan, correlationID string) (bool, error) {
	now := h.clock()

	r, err := h.routines.GetByID(ctx, plan.RoutineID)
	if errors.Is(err, shared.ErrRoutineNotFound) {
		return true, h.plans.DeactivateByRoutine(ctx, plan.RoutineID, now)
	}
	if err != nil {
		return false, err
	}

	unlock, err := lockUser(ctx, h.locker, r.UserID)
	if err != nil {
		return false, err
	}
	defer unlock()

	if !r.IsLive() {
		return true, h.plans.DeactivateByRoutine(ctx, r.ID, now)
	}

	tc := resolveTimeContext(ctx, h.timezones, r.UserID, "")
	recon, err := h.reconciler.Refresh(ctx, r, now, tc)
	if err != nil {
		return false, err
	}
	if ev := catchupEvent(r, recon.Analysis, now); ev != nil {
		publishAll(ctx, h.publisher, correlationID, ev)
	}
	return false, nil
}
