package query

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/routine-hub/internal/domain/routine"
	"github.com/alem-hub/routine-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET CATCHUP SUGGESTIONS QUERY
// Analyzes every live frequency routine of a user and returns the ones behind
// pace, most urgent first.
// ══════════════════════════════════════════════════════════════════════════════

// analysisConcurrency bounds the routines analyzed in parallel per request.
const analysisConcurrency = 4

// GetCatchupSuggestionsQuery requests a user's catch-up suggestions.
type GetCatchupSuggestionsQuery struct {
	UserID string

	// Limit caps the suggestions; zero means routine.DefaultSuggestionLimit.
	Limit int

	Timezone string
}

// Validate validates the query.
func (q GetCatchupSuggestionsQuery) Validate() error {
	if _, err := shared.NewUserID(q.UserID); err != nil {
		return err
	}
	if q.Limit < 0 {
		return shared.NewDomainError("query", "GetCatchupSuggestions", shared.ErrNegativeValue, "limit cannot be negative")
	}
	return nil
}

// CatchupSuggestionsDTO is the ranked suggestion list.
type CatchupSuggestionsDTO struct {
	Suggestions []CatchupDTO `json:"suggestions"`
	Texts       []string     `json:"texts"`

	// Analyzed is the number of frequency routines inspected.
	Analyzed int `json:"analyzed"`
}

// GetCatchupSuggestionsHandler handles GetCatchupSuggestionsQuery.
type GetCatchupSuggestionsHandler struct {
	routines   routine.Repository
	executions routine.ExecutionRepository
	timezones  shared.TimezoneResolver
	clock      Clock
}

// NewGetCatchupSuggestionsHandler creates a new handler.
func NewGetCatchupSuggestionsHandler(
	routines routine.Repository,
	executions routine.ExecutionRepository,
	timezones shared.TimezoneResolver,
	clock Clock,
) *GetCatchupSuggestionsHandler {
	return &GetCatchupSuggestionsHandler{
		routines:   routines,
		executions: executions,
		timezones:  timezones,
		clock:      clockOrSystem(clock),
	}
}

// Handle executes the query.
func (h *GetCatchupSuggestionsHandler) Handle(ctx context.Context, q GetCatchupSuggestionsQuery) (*CatchupSuggestionsDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetCatchupSuggestions", shared.ErrValidation, err.Error(), err)
	}
	userID := shared.UserID(q.UserID)
	now := h.clock()
	tc := timeContext(ctx, h.timezones, userID, q.Timezone)

	all, err := h.routines.ListByUser(ctx, userID, routine.DefaultListOptions())
	if err != nil {
		return nil, fmt.Errorf("get_catchup_suggestions: %w", err)
	}
	var candidates []*routine.Routine
	for _, r := range all {
		if _, ok := r.FrequencyGoal(); ok && r.IsLive() {
			candidates = append(candidates, r)
		}
	}

	analyses := make([]routine.CatchupAnalysis, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(analysisConcurrency)
	for i, r := range candidates {
		g.Go(func() error {
			records, err := h.executions.ListByRoutine(gctx, r.ID, historySince(r, now, tc))
			if err != nil {
				return fmt.Errorf("load executions of %s: %w", r.ID, err)
			}
			progress, err := routine.Aggregate(r, records, now, tc)
			if err != nil {
				return err
			}
			analyses[i], err = routine.Analyze(r, progress, now, tc)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("get_catchup_suggestions: %w", err)
	}

	ranked := routine.RankSuggestions(analyses, q.Limit)
	dto := &CatchupSuggestionsDTO{
		Suggestions: make([]CatchupDTO, len(ranked)),
		Texts:       routine.SuggestionTexts(ranked),
		Analyzed:    len(candidates),
	}
	for i, a := range ranked {
		dto.Suggestions[i] = toCatchupDTO(a)
	}
	return dto, nil
}
