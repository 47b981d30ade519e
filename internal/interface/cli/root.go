package cli

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/alem-hub/routine-hub/config"
	"github.com/alem-hub/routine-hub/pkg/logger"
)

// ValidFormats are the accepted --format values.
var ValidFormats = []string{"text", "json"}

// RootOptions holds the global flags.
type RootOptions struct {
	Fixture  string
	Now      string
	Timezone string
	Format   string
	Verbose  bool
}

// session is the replayed state shared by subcommands.
type session struct {
	opts    *RootOptions
	cfg     *config.Config
	app     *App
	fixture *Fixture
	out     *Presenter
}

func (s *session) user() string     { return s.fixture.User }
func (s *session) timezone() string { return s.fixture.Timezone }

// NewRootCommand creates the routinectl command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}
	s := &session{opts: opts}

	cmd := &cobra.Command{
		Use:   "routinectl",
		Short: "Inspect routine progress, catch-up plans, streaks and levels",
		Long: `routinectl replays a YAML fixture of routines and executions through the
engine and reports the resulting state as of --now.

Examples:
  routinectl --fixture week.yaml progress
  routinectl --fixture week.yaml --now 2024-01-12T18:00:00Z catchup
  routinectl --fixture week.yaml record Gym --format json`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return s.open(cmd)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.Fixture, "fixture", "f", "", "path to the YAML fixture (required)")
	cmd.PersistentFlags().StringVar(&opts.Now, "now", "", "evaluation instant, RFC 3339 (default: fixture now)")
	cmd.PersistentFlags().StringVar(&opts.Timezone, "tz", "", "IANA timezone overriding the fixture's")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log notifications and engine events")
	_ = cmd.MarkPersistentFlagRequired("fixture")

	cmd.AddCommand(
		newProgressCommand(s),
		newCatchupCommand(s),
		newStatsCommand(s),
		newLevelCommand(s),
		newRecordCommand(s),
		newRollCommand(s),
	)
	return cmd
}

func (s *session) open(cmd *cobra.Command) error {
	if !slices.Contains(ValidFormats, s.opts.Format) {
		return fmt.Errorf("invalid format %q: must be one of %v", s.opts.Format, ValidFormats)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	s.cfg = cfg

	level := logger.LevelWarn
	if s.opts.Verbose {
		level = logger.LevelInfo
	}
	log := logger.New(logger.Options{Output: cmd.ErrOrStderr(), Level: level, Format: logger.FormatConsole})
	logger.SetDefault(log)

	f, err := LoadFixture(s.opts.Fixture)
	if err != nil {
		return err
	}
	if s.opts.Timezone != "" {
		f.Timezone = s.opts.Timezone
	}
	s.fixture = f

	now, err := s.evaluationInstant()
	if err != nil {
		return err
	}

	app, err := NewApp(cfg.Engine, cfg.App.DefaultTimezone, log)
	if err != nil {
		return err
	}
	ctx := logger.WithContext(cmdContext(cmd), log)
	if err := app.Replay(ctx, f, now); err != nil {
		return err
	}
	s.app = app
	s.out = NewPresenter(cmd.OutOrStdout(), s.opts.Format)
	return nil
}

// evaluationInstant picks --now, then the fixture's now, then the latest
// instant in the fixture, then the wall clock.
func (s *session) evaluationInstant() (time.Time, error) {
	if s.opts.Now != "" {
		t, err := time.Parse(time.RFC3339, s.opts.Now)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid --now: %w", err)
		}
		return t, nil
	}
	if !s.fixture.Now.IsZero() {
		return s.fixture.Now, nil
	}
	if last := s.fixture.lastInstant(); !last.IsZero() {
		return last, nil
	}
	return time.Now(), nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
