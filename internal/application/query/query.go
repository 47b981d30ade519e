// Package query contains read operations (CQRS - Queries).
//
// Queries never write routine or profile state. The only side effect is
// memoization of derived progress.
package query

import (
	"context"
	"time"

	"github.com/alem-hub/routine-hub/internal/domain/routine"
	"github.com/alem-hub/routine-hub/internal/domain/shared"
	"github.com/alem-hub/routine-hub/pkg/logger"
	"github.com/alem-hub/routine-hub/pkg/timeutil"
)

// Clock returns the current instant.
type Clock func() time.Time

func clockOrSystem(c Clock) Clock {
	if c == nil {
		return func() time.Time { return time.Now().UTC() }
	}
	return c
}

// timeContext picks the explicit timezone when given, otherwise asks the
// resolver. Resolver failures degrade to UTC.
func timeContext(ctx context.Context, resolver shared.TimezoneResolver, userID shared.UserID, explicit string) timeutil.UserTimeContext {
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

// ownedRoutine loads a routine and hides routines of other users.
func ownedRoutine(ctx context.Context, routines routine.Repository, userID shared.UserID, rawID string) (*routine.Routine, error) {
	id, err := shared.ParseRoutineID(rawID)
	if err != nil {
		return nil, err
	}
	r, err := routines.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.UserID != userID {
		return nil, shared.ErrRoutineNotFound
	}
	return r, nil
}

// historySince returns the earliest instant a routine's progress depends on.
// Frequency goals only look at the current period; schedule goals need the
// full history for streaks.
func historySince(r *routine.Routine, now time.Time, tc timeutil.UserTimeContext) time.Time {
	if g, ok := r.FrequencyGoal(); ok {
		start, _ := tc.Bounds(g.Period.Span(), now)
		return start
	}
	return time.Time{}
}

// ══════════════════════════════════════════════════════════════════════════════
// SHARED DTOs
// ══════════════════════════════════════════════════════════════════════════════

// CatchupDTO presents a catch-up analysis.
type CatchupDTO struct {
	RoutineID            string    `json:"routine_id"`
	RoutineTitle         string    `json:"routine_title"`
	OriginalTarget       int       `json:"original_target"`
	CurrentProgress      int       `json:"current_progress"`
	RemainingTarget      int       `json:"remaining_target"`
	RemainingDays        int       `json:"remaining_days"`
	SuggestedDailyTarget int       `json:"suggested_daily_target"`
	NeedsCatchup         bool      `json:"needs_catchup"`
	Urgency              string    `json:"urgency"`
	Suggestion           string    `json:"suggestion,omitempty"`
	PeriodStart          time.Time `json:"period_start"`
	PeriodEnd            time.Time `json:"period_end"`
}

func toCatchupDTO(a routine.CatchupAnalysis) CatchupDTO {
	return CatchupDTO{
		RoutineID:            a.Plan.RoutineID.String(),
		RoutineTitle:         a.RoutineTitle,
		OriginalTarget:       a.Plan.OriginalTarget,
		CurrentProgress:      a.Plan.CurrentProgress,
		RemainingTarget:      a.Plan.RemainingTarget,
		RemainingDays:        a.RemainingDays,
		SuggestedDailyTarget: a.Plan.SuggestedDailyTarget,
		NeedsCatchup:         a.NeedsCatchup,
		Urgency:              string(a.Urgency),
		Suggestion:           a.Suggestion,
		PeriodStart:          a.Plan.TargetPeriodStart,
		PeriodEnd:            a.Plan.TargetPeriodEnd,
	}
}
