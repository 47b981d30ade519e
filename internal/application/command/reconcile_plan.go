package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alem-hub/routine-hub/internal/domain/routine"
	"github.com/alem-hub/routine-hub/internal/domain/shared"
	"github.com/alem-hub/routine-hub/internal/infrastructure/metrics"
	"github.com/alem-hub/routine-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PLAN RECONCILER
// Keeps the stored catch-up plan of a frequency routine equal to a fresh
// analysis of the period containing now.
// ══════════════════════════════════════════════════════════════════════════════

// PlanReconciler recomputes and stores catch-up plans.
type PlanReconciler struct {
	executions routine.ExecutionRepository
	plans      routine.CatchupPlanRepository
}

// NewPlanReconciler creates a new PlanReconciler.
func NewPlanReconciler(executions routine.ExecutionRepository, plans routine.CatchupPlanRepository) *PlanReconciler {
	return &PlanReconciler{executions: executions, plans: plans}
}

// Reconciliation is the outcome of one refresh.
type Reconciliation struct {
	Progress routine.Progress
	Analysis routine.CatchupAnalysis

	// Rolled is true when a plan of an earlier period was closed.
	Rolled bool
}

// Refresh recomputes the plan for the period containing now and upserts it.
// A plan left over from an earlier period is deactivated first. Live-ness of
// the routine decides whether the new plan is active. The caller must hold
// the user's lock.
func (p *PlanReconciler) Refresh(ctx context.Context, r *routine.Routine, now time.Time, tc timeutil.UserTimeContext) (*Reconciliation, error) {
	g, ok := r.FrequencyGoal()
	if !ok {
		return nil, shared.ErrNotFrequencyBased
	}

	start, _ := tc.Bounds(g.Period.Span(), now)
	records, err := p.executions.ListByRoutine(ctx, r.ID, start)
	if err != nil {
		return nil, fmt.Errorf("load executions: %w", err)
	}

	progress, err := routine.Aggregate(r, records, now, tc)
	if err != nil {
		return nil, err
	}
	metrics.ProgressComputations.WithLabelValues(string(r.Goal.Type())).Inc()

	analysis, err := routine.Analyze(r, progress, now, tc)
	if err != nil {
		return nil, err
	}

	rec := &Reconciliation{Progress: progress, Analysis: analysis}

	current, err := p.plans.GetActive(ctx, r.ID)
	switch {
	case errors.Is(err, shared.ErrCatchupPlanMissing):
	case err != nil:
		return nil, fmt.Errorf("load active plan: %w", err)
	case !current.TargetPeriodStart.Equal(analysis.Plan.TargetPeriodStart) || !analysis.Plan.IsActive:
		if err := p.plans.DeactivateByRoutine(ctx, r.ID, now); err != nil {
			return nil, fmt.Errorf("close previous plan: %w", err)
		}
		rec.Rolled = current.IsExpired(now)
	}

	plan := analysis.Plan
	if err := p.plans.Upsert(ctx, &plan); err != nil {
		return nil, fmt.Errorf("store plan: %w", err)
	}

	if analysis.NeedsCatchup {
		metrics.CatchupFlagged.Inc()
	}
	if rec.Rolled {
		metrics.CatchupPlansRolled.Inc()
	}
	return rec, nil
}

// catchupEvent returns the event announcing that a routine fell behind, or
// nil when it is on pace.
func catchupEvent(r *routine.Routine, a routine.CatchupAnalysis, now time.Time) shared.Event {
	if !a.NeedsCatchup {
		return nil
	}
	return shared.NewCatchupNeededEvent(r.UserID, r.ID, a.Plan.RemainingTarget, a.RemainingDays, a.Plan.SuggestedDailyTarget, now)
}
