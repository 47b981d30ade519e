package routine

import (
	"fmt"
	"sort"
	"time"

	"github.com/alem-hub/routine-hub/internal/domain/shared"
	"github.com/alem-hub/routine-hub/pkg/timeutil"
)

// DefaultSuggestionLimit caps how many catch-up suggestions are surfaced at once.
const DefaultSuggestionLimit = 3

// Urgency grades how far behind a routine is.
type Urgency string

const (
	UrgencyNone   Urgency = "none"
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// CatchupPlan is derived state for one frequency routine in one period.
// It is recomputed from progress, never edited by hand.
type CatchupPlan struct {
	RoutineID            shared.RoutineID
	UserID               shared.UserID
	TargetPeriodStart    time.Time
	TargetPeriodEnd      time.Time
	OriginalTarget       int
	CurrentProgress      int
	RemainingTarget      int
	SuggestedDailyTarget int
	IsActive             bool
	UpdatedAt            time.Time
}

// Covers reports whether t falls inside the plan's period.
func (p *CatchupPlan) Covers(t time.Time) bool {
	return !t.Before(p.TargetPeriodStart) && t.Before(p.TargetPeriodEnd)
}

// IsExpired reports whether the plan's period has ended at t.
func (p *CatchupPlan) IsExpired(t time.Time) bool {
	return !t.Before(p.TargetPeriodEnd)
}

// Deactivate closes the plan.
func (p *CatchupPlan) Deactivate(now time.Time) {
	p.IsActive = false
	p.UpdatedAt = now
}

// CatchupAnalysis is the outcome of Analyze for one routine.
type CatchupAnalysis struct {
	Plan            CatchupPlan
	RoutineTitle    string
	NeedsCatchup    bool
	RemainingDays   int
	ElapsedFraction float64
	Urgency         Urgency
	Suggestion      string
}

// Analyze derives the catch-up plan of a frequency-based routine from its
// current progress.
//
//	remainingDays        = max(1, ceil((periodEnd - now) / 1 day))
//	remainingTarget      = max(0, target - executed)
//	suggestedDailyTarget = ceil(remainingTarget / remainingDays)
//	needsCatchup         = remainingTarget > 0 && executed/target < elapsedFraction
//
// Days are civil days in tc, so DST transitions do not shift the count.
func Analyze(r *Routine, progress Progress, now time.Time, tc timeutil.UserTimeContext) (CatchupAnalysis, error) {
	if r == nil {
		return CatchupAnalysis{}, shared.ErrRoutineNotFound
	}
	g, ok := r.FrequencyGoal()
	if !ok {
		return CatchupAnalysis{}, shared.ErrNotFrequencyBased
	}

	start, end := progress.PeriodStart, progress.PeriodEnd
	if start.IsZero() || end.IsZero() || !end.After(start) {
		start, end = tc.Bounds(g.Period.Span(), now)
	}

	target := g.EffectiveTarget()
	executed := max(0, progress.ExecutedCount)
	remainingTarget := max(0, target-executed)
	remainingDays := RemainingDays(end, now, tc)
	suggested := ceilDiv(remainingTarget, remainingDays)
	elapsed := ElapsedFraction(start, end, now)

	needs := remainingTarget > 0 && float64(executed)/float64(target) < elapsed

	a := CatchupAnalysis{
		Plan: CatchupPlan{
			RoutineID:            r.ID,
			UserID:               r.UserID,
			TargetPeriodStart:    start,
			TargetPeriodEnd:      end,
			OriginalTarget:       target,
			CurrentProgress:      executed,
			RemainingTarget:      remainingTarget,
			SuggestedDailyTarget: suggested,
			IsActive:             r.IsLive() && now.Before(end),
			UpdatedAt:            now,
		},
		RoutineTitle:    r.Title,
		NeedsCatchup:    needs,
		RemainingDays:   remainingDays,
		ElapsedFraction: elapsed,
	}
	a.Urgency = urgencyOf(a)
	a.Suggestion = suggestionText(a, g.Period)
	return a, nil
}

// RemainingDays returns the number of civil days from today through the last
// day of the period, never less than 1.
func RemainingDays(periodEnd, now time.Time, tc timeutil.UserTimeContext) int {
	if !now.Before(periodEnd) {
		return 1
	}
	// periodEnd is the exclusive start of the next period, so the whole civil
	// days between today's date and its date are the ceiling of the gap.
	return max(1, tc.CivilDayOf(periodEnd).DaysSince(tc.CivilDayOf(now)))
}

// ElapsedFraction returns the share of [start, end) that has passed at now,
// clamped to [0, 1].
func ElapsedFraction(start, end, now time.Time) float64 {
	total := end.Sub(start)
	if total <= 0 {
		return 1
	}
	f := float64(now.Sub(start)) / float64(total)
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

func ceilDiv(n, d int) int {
	if n <= 0 {
		return 0
	}
	d = max(1, d)
	return (n + d - 1) / d
}

func urgencyOf(a CatchupAnalysis) Urgency {
	switch {
	case a.Plan.RemainingTarget == 0:
		return UrgencyNone
	case !a.NeedsCatchup:
		return UrgencyLow
	case a.Plan.SuggestedDailyTarget > 3 || a.RemainingDays == 1:
		return UrgencyHigh
	case a.Plan.SuggestedDailyTarget >= 2 || a.RemainingDays <= 2:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

var periodNoun = map[TargetPeriod]string{
	PeriodDaily:   "day",
	PeriodWeekly:  "week",
	PeriodMonthly: "month",
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

func suggestionText(a CatchupAnalysis, period TargetPeriod) string {
	p := a.Plan
	switch {
	case p.RemainingTarget == 0:
		return fmt.Sprintf("%s: goal reached for this %s (%d of %d).", a.RoutineTitle, periodNoun[period], p.CurrentProgress, p.OriginalTarget)
	case !a.NeedsCatchup:
		return fmt.Sprintf("%s: on track, %d of %d done with %s left.", a.RoutineTitle, p.CurrentProgress, p.OriginalTarget, plural(a.RemainingDays, "day"))
	case a.RemainingDays == 1:
		return fmt.Sprintf("%s: last day! Complete %d more to reach %d.", a.RoutineTitle, p.RemainingTarget, p.OriginalTarget)
	default:
		return fmt.Sprintf("%s: behind pace, %d of %d done. Aim for %d per day over the next %s.",
			a.RoutineTitle, p.CurrentProgress, p.OriginalTarget, p.SuggestedDailyTarget, plural(a.RemainingDays, "day"))
	}
}

// RankSuggestions keeps the routines that need catching up, orders them most
// urgent first (fewest remaining days, then highest suggested daily target,
// then title) and caps the result at limit. A limit below 1 means
// DefaultSuggestionLimit.
func RankSuggestions(analyses []CatchupAnalysis, limit int) []CatchupAnalysis {
	if limit < 1 {
		limit = DefaultSuggestionLimit
	}

	ranked := make([]CatchupAnalysis, 0, len(analyses))
	for _, a := range analyses {
		if a.NeedsCatchup {
			ranked = append(ranked, a)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.RemainingDays != b.RemainingDays {
			return a.RemainingDays < b.RemainingDays
		}
		if a.Plan.SuggestedDailyTarget != b.Plan.SuggestedDailyTarget {
			return a.Plan.SuggestedDailyTarget > b.Plan.SuggestedDailyTarget
		}
		return a.RoutineTitle < b.RoutineTitle
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// SuggestionTexts extracts the human readable lines of ranked analyses.
func SuggestionTexts(ranked []CatchupAnalysis) []string {
	out := make([]string, len(ranked))
	for i, a := range ranked {
		out[i] = a.Suggestion
	}
	return out
}
