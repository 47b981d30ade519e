package cli

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alem-hub/routine-hub/internal/application/command"
	"github.com/alem-hub/routine-hub/internal/domain/routine"
	"github.com/alem-hub/routine-hub/internal/domain/shared"
)

// Fixture is a user's routines and execution history in YAML form:
//
//	user: alice
//	timezone: Asia/Almaty
//	now: 2024-01-10T12:00:00Z
//	routines:
//	  - title: Gym
//	    goal_type: frequency_based
//	    target_count: 3
//	    target_period: weekly
//	    executions:
//	      - at: 2024-01-08T07:30:00Z
//	        duration: 45m
type Fixture struct {
	User     string           `yaml:"user"`
	Timezone string           `yaml:"timezone"`
	Now      time.Time        `yaml:"now"`
	Routines []FixtureRoutine `yaml:"routines"`
}

// FixtureRoutine is one routine definition plus its history.
type FixtureRoutine struct {
	routine.Definition `yaml:",inline"`

	// CreatedAt defaults to the first execution, or now.
	CreatedAt time.Time `yaml:"created_at"`

	// Active defaults to true; false pauses the routine after the replay.
	Active *bool `yaml:"active"`

	Executions []FixtureExecution `yaml:"executions"`
}

// FixtureExecution is one recorded execution.
type FixtureExecution struct {
	At time.Time `yaml:"at"`

	// Completed defaults to true.
	Completed *bool  `yaml:"completed"`
	Duration  string `yaml:"duration"`
}

// LoadFixture reads and checks a fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture decodes a fixture document.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	if strings.TrimSpace(f.User) == "" {
		f.User = "local"
	}
	seen := make(map[string]bool, len(f.Routines))
	for i, r := range f.Routines {
		key := strings.ToLower(r.Title)
		if seen[key] {
			return nil, fmt.Errorf("fixture: duplicate routine title %q", r.Title)
		}
		seen[key] = true
		for j, e := range r.Executions {
			if e.At.IsZero() {
				return nil, fmt.Errorf("fixture: routine %q execution %d has no timestamp", r.Title, j)
			}
			if e.Duration != "" {
				if _, err := time.ParseDuration(e.Duration); err != nil {
					return nil, fmt.Errorf("fixture: routine %q execution %d: %w", r.Title, j, err)
				}
			}
		}
		if _, err := r.Definition.ToGoal(); err != nil {
			return nil, fmt.Errorf("fixture: routine %d (%q): %w", i, r.Title, err)
		}
	}
	return &f, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REPLAY
// ══════════════════════════════════════════════════════════════════════════════

type stepKind int

const (
	stepDefine stepKind = iota
	stepRecord
)

type replayStep struct {
	at      time.Time
	kind    stepKind
	routine int
	exec    FixtureExecution
}

func (r FixtureRoutine) createdAt(fallback time.Time) time.Time {
	if !r.CreatedAt.IsZero() {
		return r.CreatedAt
	}
	first := fallback
	for _, e := range r.Executions {
		if e.At.Before(first) {
			first = e.At
		}
	}
	return first
}

// lastInstant is the latest timestamp the fixture mentions.
func (f *Fixture) lastInstant() time.Time {
	var last time.Time
	for _, r := range f.Routines {
		if r.CreatedAt.After(last) {
			last = r.CreatedAt
		}
		for _, e := range r.Executions {
			if e.At.After(last) {
				last = e.At
			}
		}
	}
	return last
}

// Replay feeds the fixture through the command handlers in time order, with
// the app clock following each step. The clock ends at now.
func (a *App) Replay(ctx context.Context, f *Fixture, now time.Time) error {
	var steps []replayStep
	for i, r := range f.Routines {
		steps = append(steps, replayStep{at: r.createdAt(now), kind: stepDefine, routine: i})
		for _, e := range r.Executions {
			steps = append(steps, replayStep{at: e.At, kind: stepRecord, routine: i, exec: e})
		}
	}
	sort.SliceStable(steps, func(i, j int) bool {
		if steps[i].at.Equal(steps[j].at) {
			return steps[i].kind < steps[j].kind
		}
		return steps[i].at.Before(steps[j].at)
	})

	ids := make([]shared.RoutineID, len(f.Routines))
	for _, s := range steps {
		a.SetNow(s.at)
		fr := f.Routines[s.routine]

		switch s.kind {
		case stepDefine:
			res, err := a.Define.Handle(ctx, command.DefineRoutineCommand{
				UserID:     f.User,
				Definition: fr.Definition,
				Timezone:   f.Timezone,
			})
			if err != nil {
				return fmt.Errorf("define %q: %w", fr.Title, err)
			}
			ids[s.routine] = res.Routine.ID
			a.index(res.Routine)

		case stepRecord:
			completed := s.exec.Completed == nil || *s.exec.Completed
			var duration *time.Duration
			if s.exec.Duration != "" {
				d, _ := time.ParseDuration(s.exec.Duration)
				duration = &d
			}
			if _, err := a.Record.Handle(ctx, command.RecordExecutionCommand{
				UserID:      f.User,
				RoutineID:   ids[s.routine].String(),
				ExecutedAt:  s.at,
				IsCompleted: completed,
				Duration:    duration,
				Timezone:    f.Timezone,
			}); err != nil {
				return fmt.Errorf("record %q at %s: %w", fr.Title, s.at.Format(time.RFC3339), err)
			}
		}
	}

	a.SetNow(now)
	for i, r := range f.Routines {
		if r.Active == nil || *r.Active {
			continue
		}
		if _, err := a.Manage.Handle(ctx, command.ManageRoutineCommand{
			UserID:    f.User,
			RoutineID: ids[i].String(),
			Action:    command.ActionDeactivate,
			Timezone:  f.Timezone,
		}); err != nil {
			return fmt.Errorf("deactivate %q: %w", r.Title, err)
		}
	}
	return nil
}
