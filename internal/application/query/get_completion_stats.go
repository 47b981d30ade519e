package query

import (
	"context"
	"fmt"

	"github.com/alem-hub/routine-hub/internal/domain/routine"
	"github.com/alem-hub/routine-hub/internal/domain/shared"
	"github.com/alem-hub/routine-hub/pkg/timeutil"
)

// DefaultStatsWindowDays is the reporting window when no bounds are given.
const DefaultStatsWindowDays = 30

// GetCompletionStatsQuery requests the completion rate of a schedule-based
// routine over [From, To]. Empty bounds default to the last
// DefaultStatsWindowDays days ending today.
type GetCompletionStatsQuery struct {
	UserID    string
	RoutineID string
	From      string // YYYY-MM-DD
	To        string // YYYY-MM-DD
	Timezone  string
}

// CompletionStatsDTO presents completion statistics.
type CompletionStatsDTO struct {
	RoutineID      string   `json:"routine_id"`
	From           string   `json:"from"`
	To             string   `json:"to"`
	DueCount       int      `json:"due_count"`
	CompletedCount int      `json:"completed_count"`
	CompletionRate float64  `json:"completion_rate"`
	MissedDates    []string `json:"missed_dates"`
}

// GetCompletionStatsHandler handles GetCompletionStatsQuery.
type GetCompletionStatsHandler struct {
	routines   routine.Repository
	executions routine.ExecutionRepository
	timezones  shared.TimezoneResolver
	clock      Clock
}

// NewGetCompletionStatsHandler creates a new handler.
func NewGetCompletionStatsHandler(
	routines routine.Repository,
	executions routine.ExecutionRepository,
	timezones shared.TimezoneResolver,
	clock Clock,
) *GetCompletionStatsHandler {
	return &GetCompletionStatsHandler{
		routines:   routines,
		executions: executions,
		timezones:  timezones,
		clock:      clockOrSystem(clock),
	}
}

// Handle executes the query.
func (h *GetCompletionStatsHandler) Handle(ctx context.Context, q GetCompletionStatsQuery) (*CompletionStatsDTO, error) {
	userID, err := shared.NewUserID(q.UserID)
	if err != nil {
		return nil, shared.WrapError("query", "GetCompletionStats", shared.ErrValidation, err.Error(), err)
	}
	r, err := ownedRoutine(ctx, h.routines, userID, q.RoutineID)
	if err != nil {
		return nil, fmt.Errorf("get_completion_stats: %w", err)
	}

	tc := timeContext(ctx, h.timezones, userID, q.Timezone)
	from, to, err := window(q.From, q.To, tc.CivilDayOf(h.clock()))
	if err != nil {
		return nil, fmt.Errorf("get_completion_stats: %w", err)
	}

	since := tc.StartOfCivilDay(from)
	records, err := h.executions.ListByRoutine(ctx, r.ID, since)
	if err != nil {
		return nil, fmt.Errorf("get_completion_stats: load executions: %w", err)
	}

	stats, err := routine.ComputeCompletionStats(r, records, from, to, tc)
	if err != nil {
		return nil, fmt.Errorf("get_completion_stats: %w", err)
	}

	missed := make([]string, len(stats.MissedDates))
	for i, d := range stats.MissedDates {
		missed[i] = d.String()
	}
	return &CompletionStatsDTO{
		RoutineID:      r.ID.String(),
		From:           stats.From.String(),
		To:             stats.To.String(),
		DueCount:       stats.DueCount,
		CompletedCount: stats.CompletedCount,
		CompletionRate: stats.CompletionRate,
		MissedDates:    missed,
	}, nil
}

func window(rawFrom, rawTo string, today timeutil.CivilDate) (from, to timeutil.CivilDate, err error) {
	to = today
	if rawTo != "" {
		if to, err = timeutil.ParseCivilDate(rawTo); err != nil {
			return from, to, shared.WrapError("query", "GetCompletionStats", shared.ErrInvalidInput, "bad to date", err)
		}
	}
	from = to.AddDays(-(DefaultStatsWindowDays - 1))
	if rawFrom != "" {
		if from, err = timeutil.ParseCivilDate(rawFrom); err != nil {
			return from, to, shared.WrapError("query", "GetCompletionStats", shared.ErrInvalidInput, "bad from date", err)
		}
	}
	return from, to, nil
}

