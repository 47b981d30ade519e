package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"

	"github.com/alem-hub/routine-hub/internal/application/command"
	"github.com/alem-hub/routine-hub/internal/application/query"
	"github.com/alem-hub/routine-hub/internal/domain/gamification"
)

// ══════════════════════════════════════════════════════════════════════════════
// PRESENTER
// Renders query results as plain text or indented JSON.
// ══════════════════════════════════════════════════════════════════════════════

const dateLayout = "2006-01-02"

// Presenter writes results in the selected format.
type Presenter struct {
	out  io.Writer
	json bool
}

// NewPresenter creates a Presenter. format is "text" or "json".
func NewPresenter(out io.Writer, format string) *Presenter {
	return &Presenter{out: out, json: format == "json"}
}

func (p *Presenter) emit(v any, text func(*strings.Builder)) error {
	if p.json {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(p.out, string(data))
		return err
	}
	var sb strings.Builder
	text(&sb)
	_, err := io.WriteString(p.out, sb.String())
	return err
}

// Progress renders one routine's progress.
func (p *Presenter) Progress(dto *query.RoutineProgressDTO) error {
	return p.emit(dto, func(sb *strings.Builder) {
		status := ""
		if !dto.IsActive {
			status = " (paused)"
		}
		fmt.Fprintf(sb, "%s%s: %s\n", dto.Title, status, dto.Goal)
		fmt.Fprintf(sb, "  %s %d/%d", progressBar(dto.ProgressRatio), dto.ExecutedCount, dto.TargetCount)
		if dto.IsCompleted {
			sb.WriteString(" done")
		}
		sb.WriteString("\n")
		fmt.Fprintf(sb, "  period %s .. %s (%s)\n",
			dto.PeriodStart.Format(dateLayout), dto.PeriodEnd.Format(dateLayout), dto.Timezone)
		if dto.GoalType == "schedule_based" {
			due := "no"
			if dto.IsDueToday {
				due = "yes"
			}
			fmt.Fprintf(sb, "  due today: %s, streak %d (longest %d)\n", due, dto.Streak, dto.LongestStreak)
		}
		if c := dto.Catchup; c != nil && c.NeedsCatchup {
			fmt.Fprintf(sb, "  behind pace: %s\n", c.Suggestion)
		}
	})
}

// Suggestions renders ranked catch-up suggestions.
func (p *Presenter) Suggestions(dto *query.CatchupSuggestionsDTO) error {
	return p.emit(dto, func(sb *strings.Builder) {
		if len(dto.Suggestions) == 0 {
			fmt.Fprintf(sb, "On pace with all %d frequency routines.\n", dto.Analyzed)
			return
		}
		for i, s := range dto.Suggestions {
			fmt.Fprintf(sb, "%d. [%s] %s\n", i+1, s.Urgency, dto.Texts[i])
			fmt.Fprintf(sb, "   %d of %d left, %d days remaining\n", s.RemainingTarget, s.OriginalTarget, s.RemainingDays)
		}
	})
}

// Stats renders completion statistics.
func (p *Presenter) Stats(dto *query.CompletionStatsDTO) error {
	return p.emit(dto, func(sb *strings.Builder) {
		fmt.Fprintf(sb, "%s .. %s: %d of %d due days completed (%.0f%%)\n",
			dto.From, dto.To, dto.CompletedCount, dto.DueCount, dto.CompletionRate*100)
		if len(dto.MissedDates) > 0 {
			fmt.Fprintf(sb, "missed: %s\n", strings.Join(dto.MissedDates, ", "))
		}
	})
}

// Profile renders the gamification profile.
func (p *Presenter) Profile(dto *query.ProfileDTO) error {
	return p.emit(dto, func(sb *strings.Builder) {
		fmt.Fprintf(sb, "Level %d  %s %d/%d XP\n", dto.Level, progressBar(dto.LevelProgress), dto.CurrentXP, dto.NextLevelXP)
		fmt.Fprintf(sb, "Total XP: %d\n", dto.TotalXP)
		fmt.Fprintf(sb, "Streak: %d (longest %d)\n", dto.Streak, dto.LongestStreak)
		for _, e := range dto.Ledger {
			fmt.Fprintf(sb, "  %s  %+d  %s\n", e.CreatedAt.Format(dateLayout), e.Amount, e.Reason)
		}
	})
}

// RecordView is the printable outcome of recording an execution.
type RecordView struct {
	ExecutionID   string   `json:"execution_id"`
	ExecutedCount int      `json:"executed_count"`
	TargetCount   int      `json:"target_count"`
	Streak        int      `json:"streak,omitempty"`
	XPGained      int64    `json:"xp_gained"`
	TotalXP       int64    `json:"total_xp"`
	Level         int      `json:"level"`
	LeveledUp     bool     `json:"leveled_up"`
	Milestones    []string `json:"milestones,omitempty"`
	Catchup       string   `json:"catchup,omitempty"`
}

func newRecordView(res *command.RecordExecutionResult) RecordView {
	v := RecordView{
		ExecutionID:   res.Execution.ID.String(),
		ExecutedCount: res.Progress.ExecutedCount,
		TargetCount:   res.Progress.TargetCount,
		Streak:        res.Streak,
	}
	if res.XP != nil {
		v.TotalXP = res.XP.NewTotalXP
		v.Level = res.XP.NewLevel
		v.LeveledUp = res.XP.LeveledUp
		v.XPGained = gamification.CompletionXP
	}
	for _, m := range res.Milestones {
		v.XPGained += m.Bonus
		v.Milestones = append(v.Milestones, fmt.Sprintf("%s (+%d XP)", m.Title, m.Bonus))
	}
	if res.Catchup != nil && res.Catchup.NeedsCatchup {
		v.Catchup = res.Catchup.Suggestion
	}
	return v
}

// Recorded renders the outcome of a record command.
func (p *Presenter) Recorded(res *command.RecordExecutionResult) error {
	v := newRecordView(res)
	return p.emit(v, func(sb *strings.Builder) {
		fmt.Fprintf(sb, "Recorded %s: %d/%d\n", v.ExecutionID, v.ExecutedCount, v.TargetCount)
		if v.Streak > 0 {
			fmt.Fprintf(sb, "Streak: %d\n", v.Streak)
		}
		if res.XP != nil {
			fmt.Fprintf(sb, "XP: %d total, level %d\n", v.TotalXP, v.Level)
		}
		for _, m := range v.Milestones {
			fmt.Fprintf(sb, "Milestone: %s\n", m)
		}
		if v.LeveledUp {
			fmt.Fprintf(sb, "Level up! Now level %d\n", v.Level)
		}
		if v.Catchup != "" {
			fmt.Fprintf(sb, "Behind pace: %s\n", v.Catchup)
		}
	})
}

// Rolled renders a plan sweep summary.
func (p *Presenter) Rolled(res *command.RollCatchupPlansResult) error {
	return p.emit(res, func(sb *strings.Builder) {
		fmt.Fprintf(sb, "scanned %d, rolled %d, closed %d, failed %d\n", res.Scanned, res.Rolled, res.Closed, res.Failed)
	})
}

func progressBar(ratio float64) string {
	const width = 10
	filled := min(max(int(ratio*width), 0), width)
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}
