package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/alem-hub/routine-hub/internal/application/command"
	"github.com/alem-hub/routine-hub/internal/application/query"
)

func newProgressCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "progress [routine]",
		Short: "Show current-period progress of one or all routines",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := s.app.RoutineIDs()
			if len(args) == 1 {
				id, err := s.app.Resolve(args[0])
				if err != nil {
					return err
				}
				ids = ids[:0]
				ids = append(ids, id)
			}
			for _, id := range ids {
				dto, err := s.app.Progress.Handle(cmd.Context(), query.GetRoutineProgressQuery{
					UserID:    s.user(),
					RoutineID: id.String(),
					Timezone:  s.timezone(),
				})
				if err != nil {
					return err
				}
				if err := s.out.Progress(dto); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newCatchupCommand(s *session) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "catchup",
		Short: "List frequency routines behind pace, most urgent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("limit") {
				limit = s.cfg.Engine.SuggestionLimit
			}
			dto, err := s.app.Catchup.Handle(cmd.Context(), query.GetCatchupSuggestionsQuery{
				UserID:   s.user(),
				Limit:    limit,
				Timezone: s.timezone(),
			})
			if err != nil {
				return err
			}
			return s.out.Suggestions(dto)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum suggestions (default from engine.suggestion_limit)")
	return cmd
}

func newStatsCommand(s *session) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "stats <routine>",
		Short: "Show completion statistics of a schedule-based routine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := s.app.Resolve(args[0])
			if err != nil {
				return err
			}
			dto, err := s.app.Stats.Handle(cmd.Context(), query.GetCompletionStatsQuery{
				UserID:    s.user(),
				RoutineID: id.String(),
				From:      from,
				To:        to,
				Timezone:  s.timezone(),
			})
			if err != nil {
				return err
			}
			return s.out.Stats(dto)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day, YYYY-MM-DD (default: 30 days back)")
	cmd.Flags().StringVar(&to, "to", "", "last day, YYYY-MM-DD (default: today)")
	return cmd
}

func newLevelCommand(s *session) *cobra.Command {
	var ledger int
	cmd := &cobra.Command{
		Use:   "level",
		Short: "Show level, XP and streak",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dto, err := s.app.Profile.Handle(cmd.Context(), query.GetProfileQuery{
				UserID:      s.user(),
				LedgerLimit: ledger,
			})
			if err != nil {
				return err
			}
			return s.out.Profile(dto)
		},
	}
	cmd.Flags().IntVar(&ledger, "ledger", 0, "show the newest N XP transactions")
	return cmd
}

func newRecordCommand(s *session) *cobra.Command {
	var (
		at          string
		executionID string
		incomplete  bool
		duration    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "record <routine>",
		Short: "Record an execution on top of the fixture and show its effect",
		Long: `Record an execution on top of the replayed fixture and show its effect.
The fixture file is not modified.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := s.app.Resolve(args[0])
			if err != nil {
				return err
			}
			rc := command.RecordExecutionCommand{
				UserID:      s.user(),
				RoutineID:   id.String(),
				ExecutionID: executionID,
				IsCompleted: !incomplete,
				Timezone:    s.timezone(),
			}
			if at != "" {
				if rc.ExecutedAt, err = time.Parse(time.RFC3339, at); err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
			}
			if cmd.Flags().Changed("duration") {
				rc.Duration = &duration
			}
			res, err := s.app.Record.Handle(cmd.Context(), rc)
			if err != nil {
				return err
			}
			return s.out.Recorded(res)
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "execution instant, RFC 3339 (default: now)")
	cmd.Flags().StringVar(&executionID, "id", "", "execution id (UUID); repeating an id replays instead of recording twice")
	cmd.Flags().BoolVar(&incomplete, "incomplete", false, "record an attempt that was not completed")
	cmd.Flags().DurationVar(&duration, "duration", 0, "how long the execution took")
	return cmd
}

func newRollCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "roll",
		Short: "Roll expired catch-up plans over to the current period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := s.app.Roll.Handle(cmd.Context(), command.RollCatchupPlansCommand{})
			if err != nil {
				return err
			}
			return s.out.Rolled(res)
		},
	}
}
