// Package cli implements routinectl, a command line front end that replays a
// YAML fixture into in-memory repositories and runs the engine's queries
// against it.
package cli

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alem-hub/routine-hub/config"
	"github.com/alem-hub/routine-hub/internal/application/command"
	"github.com/alem-hub/routine-hub/internal/application/eventhandler"
	"github.com/alem-hub/routine-hub/internal/application/query"
	"github.com/alem-hub/routine-hub/internal/domain/routine"
	"github.com/alem-hub/routine-hub/internal/domain/shared"
	"github.com/alem-hub/routine-hub/internal/infrastructure/locking"
	"github.com/alem-hub/routine-hub/internal/infrastructure/messaging"
	"github.com/alem-hub/routine-hub/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/routine-hub/internal/infrastructure/service"
	"github.com/alem-hub/routine-hub/pkg/logger"
)

// App holds the handlers routinectl drives. Every handler reads the same
// settable clock so a replay can move time forward.
type App struct {
	mu  sync.RWMutex
	now time.Time

	titles map[string]shared.RoutineID

	Define   *command.DefineRoutineHandler
	Record   *command.RecordExecutionHandler
	Correct  *command.CorrectExecutionHandler
	Manage   *command.ManageRoutineHandler
	Roll     *command.RollCatchupPlansHandler
	Progress *query.GetRoutineProgressHandler
	Catchup  *query.GetCatchupSuggestionsHandler
	Stats    *query.GetCompletionStatsHandler
	Profile  *query.GetProfileHandler

	Bus *messaging.InMemoryEventBus
}

// NewApp wires in-memory repositories and handlers.
func NewApp(engine config.EngineConfig, defaultTimezone string, log *logger.Logger) (*App, error) {
	a := &App{titles: make(map[string]shared.RoutineID)}
	clock := a.Now

	routines := memory.NewRoutineRepository()
	executions := memory.NewExecutionRepository()
	plans := memory.NewCatchupPlanRepository()
	profiles := memory.NewProfileRepository()
	locker := locking.NewKeyedMutex()
	timezones := service.NewStaticTimezoneResolver(defaultTimezone, nil)

	// Synchronous so notifications are logged before a command returns.
	a.Bus = messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{Logger: log})
	notifier := service.NewLogNotifier(log)
	catchupConfig := eventhandler.CatchupNeededConfig{Cooldown: engine.CatchupCooldown, Clock: clock}
	subs := eventhandler.Subscriptions{
		LevelUp:       eventhandler.NewOnLevelUpHandler(notifier, log),
		CatchupNeeded: eventhandler.NewOnCatchupNeededHandler(notifier, log, catchupConfig),
	}
	if err := subs.Register(a.Bus); err != nil {
		return nil, fmt.Errorf("register subscriptions: %w", err)
	}

	reconciler := command.NewPlanReconciler(executions, plans)
	grant := command.NewGrantXPHandler(profiles, locker, a.Bus, command.GrantXPHandlerConfig{
		ConflictAttempts: engine.ProfileConflictAttempts,
		Clock:            clock,
		Logger:           log,
	})
	a.Define = command.NewDefineRoutineHandler(routines, reconciler, locker, timezones, a.Bus, clock)
	a.Record = command.NewRecordExecutionHandler(routines, executions, reconciler, grant, locker, timezones, a.Bus, clock)
	a.Correct = command.NewCorrectExecutionHandler(routines, executions, reconciler, grant, locker, timezones, a.Bus, clock)
	a.Manage = command.NewManageRoutineHandler(routines, executions, plans, grant, locker, timezones, a.Bus, clock)
	a.Roll = command.NewRollCatchupPlansHandler(routines, executions, plans, locker, timezones, a.Bus, clock)

	progress, err := query.NewGetRoutineProgressHandler(routines, executions, nil, timezones, query.GetRoutineProgressHandlerConfig{
		LocalCacheSize: engine.LocalCacheSize,
		Clock:          clock,
	})
	if err != nil {
		return nil, err
	}
	a.Progress = progress
	a.Catchup = query.NewGetCatchupSuggestionsHandler(routines, executions, timezones, clock)
	a.Stats = query.NewGetCompletionStatsHandler(routines, executions, timezones, clock)
	a.Profile = query.NewGetProfileHandler(profiles, profiles, clock)
	return a, nil
}

// Now returns the app clock.
func (a *App) Now() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.now
}

// SetNow moves the app clock.
func (a *App) SetNow(t time.Time) {
	a.mu.Lock()
	a.now = t.UTC()
	a.mu.Unlock()
}

func (a *App) index(r *routine.Routine) {
	a.mu.Lock()
	a.titles[strings.ToLower(r.Title)] = r.ID
	a.mu.Unlock()
}

// Resolve finds a routine by title (case-insensitive) or id.
func (a *App) Resolve(ref string) (shared.RoutineID, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if id, ok := a.titles[strings.ToLower(strings.TrimSpace(ref))]; ok {
		return id, nil
	}
	for _, id := range a.titles {
		if id.String() == ref {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: %q", shared.ErrRoutineNotFound, ref)
}

// RoutineIDs returns every indexed routine id ordered by title.
func (a *App) RoutineIDs() []shared.RoutineID {
	a.mu.RLock()
	defer a.mu.RUnlock()
	titles := make([]string, 0, len(a.titles))
	for t := range a.titles {
		titles = append(titles, t)
	}
	sort.Strings(titles)
	ids := make([]shared.RoutineID, len(titles))
	for i, t := range titles {
		ids[i] = a.titles[t]
	}
	return ids
}
