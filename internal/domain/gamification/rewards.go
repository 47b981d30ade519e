package gamification

import (
	"fmt"
	"strings"

	"github.com/alem-hub/routine-hub/internal/domain/shared"
	"github.com/alem-hub/routine-hub/pkg/timeutil"
)

// CompletionXP is granted for every completed execution.
const CompletionXP int64 = 10

// StreakMilestone is a streak length that earns a bonus.
type StreakMilestone struct {
	Days  int
	Bonus int64
	Title string
}

// StreakMilestones are ordered by length.
var StreakMilestones = []StreakMilestone{
	{Days: 7, Bonus: 50, Title: "One week"},
	{Days: 30, Bonus: 200, Title: "One month"},
	{Days: 100, Bonus: 500, Title: "Hundred days"},
}

// MilestonesReached returns every milestone a streak of the given length has
// reached, shortest first.
func MilestonesReached(streak int) []StreakMilestone {
	var out []StreakMilestone
	for _, m := range StreakMilestones {
		if streak >= m.Days {
			out = append(out, m)
		}
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Ledger source refs
// ─────────────────────────────────────────────────────────────────────────────

// CompletionRef is the source ref of the XP granted for one execution record.
func CompletionRef(id shared.ExecutionID) string {
	return "completion:" + id.String()
}

// MilestoneRefPrefix groups the bonuses of one routine and milestone length.
func MilestoneRefPrefix(routineID shared.RoutineID, days int) string {
	return fmt.Sprintf("milestone:%s:%d:", routineID, days)
}

// MilestoneRef is the source ref of a milestone bonus earned by the streak
// run that started on runStart.
func MilestoneRef(routineID shared.RoutineID, days int, runStart timeutil.CivilDate) string {
	return MilestoneRefPrefix(routineID, days) + runStart.String()
}

// MilestonePaidInRun reports whether refs hold a bonus for the milestone paid
// to a run starting anywhere in [runStart, today]. Those runs are the current
// one, possibly before a backfill extended it to the past.
func MilestonePaidInRun(refs []string, routineID shared.RoutineID, days int, runStart, today timeutil.CivilDate) bool {
	prefix := MilestoneRefPrefix(routineID, days)
	for _, ref := range refs {
		raw, ok := strings.CutPrefix(ref, prefix)
		if !ok {
			continue
		}
		start, err := timeutil.ParseCivilDate(raw)
		if err != nil {
			continue
		}
		if !start.Before(runStart) && !start.After(today) {
			return true
		}
	}
	return false
}
