package command

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/routine-hub/internal/domain/gamification"
	"github.com/alem-hub/routine-hub/internal/domain/routine"
	"github.com/alem-hub/routine-hub/internal/domain/shared"
	"github.com/alem-hub/routine-hub/internal/infrastructure/locking"
	"github.com/alem-hub/routine-hub/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/routine-hub/pkg/logger"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(ev shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.EventType()
	}
	return out
}

type fixedTimezone string

func (f fixedTimezone) Timezone(context.Context, shared.UserID) (string, error) {
	return string(f), nil
}

type testEnv struct {
	now        time.Time
	routines   *memory.RoutineRepository
	executions *memory.ExecutionRepository
	plans      *memory.CatchupPlanRepository
	profiles   *memory.ProfileRepository
	publisher  *recordingPublisher

	define  *DefineRoutineHandler
	record  *RecordExecutionHandler
	correct *CorrectExecutionHandler
	manage  *ManageRoutineHandler
	grant   *GrantXPHandler
	roll    *RollCatchupPlansHandler
}

func newTestEnv(t *testing.T, start time.Time) *testEnv {
	t.Helper()
	env := &testEnv{
		now:        start,
		routines:   memory.NewRoutineRepository(),
		executions: memory.NewExecutionRepository(),
		plans:      memory.NewCatchupPlanRepository(),
		profiles:   memory.NewProfileRepository(),
		publisher:  &recordingPublisher{},
	}
	clock := func() time.Time { return env.now }
	locker := locking.NewKeyedMutex()
	tz := fixedTimezone("UTC")
	reconciler := NewPlanReconciler(env.executions, env.plans)

	env.grant = NewGrantXPHandler(env.profiles, locker, env.publisher, GrantXPHandlerConfig{Clock: clock, Logger: logger.Nop()})
	env.define = NewDefineRoutineHandler(env.routines, reconciler, locker, tz, env.publisher, clock)
	env.record = NewRecordExecutionHandler(env.routines, env.executions, reconciler, env.grant, locker, tz, env.publisher, clock)
	env.correct = NewCorrectExecutionHandler(env.routines, env.executions, reconciler, env.grant, locker, tz, env.publisher, clock)
	env.manage = NewManageRoutineHandler(env.routines, env.executions, env.plans, env.grant, locker, tz, env.publisher, clock)
	env.roll = NewRollCatchupPlansHandler(env.routines, env.executions, env.plans, locker, tz, env.publisher, clock)
	return env
}

func intPtr(v int) *int { return &v }

func (env *testEnv) defineFrequency(t *testing.T, period routine.TargetPeriod, target int) *routine.Routine {
	t.Helper()
	res, err := env.define.Handle(context.Background(), DefineRoutineCommand{
		UserID: "user-1",
		Definition: routine.Definition{
			Title:        "Gym",
			GoalType:     routine.GoalFrequencyBased,
			TargetCount:  intPtr(target),
			TargetPeriod: period,
		},
	})
	require.NoError(t, err)
	return res.Routine
}

func (env *testEnv) defineDaily(t *testing.T) *routine.Routine {
	t.Helper()
	res, err := env.define.Handle(context.Background(), DefineRoutineCommand{
		UserID: "user-1",
		Definition: routine.Definition{
			Title:          "Meditate",
			GoalType:       routine.GoalScheduleBased,
			RecurrenceType: routine.RecurrenceDaily,
		},
	})
	require.NoError(t, err)
	return res.Routine
}

func (env *testEnv) complete(t *testing.T, r *routine.Routine) *RecordExecutionResult {
	t.Helper()
	res, err := env.record.Handle(context.Background(), RecordExecutionCommand{
		UserID:      r.UserID.String(),
		RoutineID:   r.ID.String(),
		IsCompleted: true,
	})
	require.NoError(t, err)
	return res
}

// Monday 2024-01-01, noon UTC.
var monday = time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)

func TestDefineRoutine_OpensPlanForFrequencyGoal(t *testing.T) {
	env := newTestEnv(t, monday)
	r := env.defineFrequency(t, routine.PeriodWeekly, 3)

	plan, err := env.plans.GetActive(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, plan.RemainingTarget)
	assert.Equal(t, time.Date(2024, time.January, 7, 0, 0, 0, 0, time.UTC), plan.TargetPeriodEnd)
	assert.Contains(t, env.publisher.types(), shared.EventRoutineDefined)
}

func TestDefineRoutine_RejectsMixedParameters(t *testing.T) {
	env := newTestEnv(t, monday)
	_, err := env.define.Handle(context.Background(), DefineRoutineCommand{
		UserID: "user-1",
		Definition: routine.Definition{
			Title:          "Broken",
			GoalType:       routine.GoalFrequencyBased,
			TargetCount:    intPtr(2),
			TargetPeriod:   routine.PeriodWeekly,
			RecurrenceType: routine.RecurrenceDaily,
		},
	})
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}

func TestRecordExecution_FrequencyUpdatesPlanAndGrantsXP(t *testing.T) {
	env := newTestEnv(t, monday)
	r := env.defineFrequency(t, routine.PeriodWeekly, 3)

	res := env.complete(t, r)
	assert.Equal(t, 1, res.Progress.ExecutedCount)
	require.NotNil(t, res.Catchup)
	assert.Equal(t, 2, res.Catchup.Plan.RemainingTarget)
	require.NotNil(t, res.XP)
	assert.Equal(t, gamification.CompletionXP, res.XP.NewTotalXP)

	ledger, err := env.profiles.ListByUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Equal(t, gamification.SourceRoutineCompletion, ledger[0].SourceType)
}

func TestRecordExecution_FlagsCatchupLateInPeriod(t *testing.T) {
	env := newTestEnv(t, monday)
	r := env.defineFrequency(t, routine.PeriodWeekly, 5)

	env.now = monday.AddDate(0, 0, 4) // Friday
	res := env.complete(t, r)
	require.NotNil(t, res.Catchup)
	assert.True(t, res.Catchup.NeedsCatchup)
	assert.Equal(t, 4, res.Catchup.Plan.RemainingTarget)
	assert.Equal(t, 2, res.Catchup.RemainingDays)
	assert.Equal(t, 2, res.Catchup.Plan.SuggestedDailyTarget)
	assert.Contains(t, env.publisher.types(), shared.EventCatchupNeeded)
}

func TestRecordExecution_IncompleteGrantsNothing(t *testing.T) {
	env := newTestEnv(t, monday)
	r := env.defineFrequency(t, routine.PeriodDaily, 1)

	res, err := env.record.Handle(context.Background(), RecordExecutionCommand{
		UserID:    "user-1",
		RoutineID: r.ID.String(),
	})
	require.NoError(t, err)
	assert.Nil(t, res.XP)
	assert.Equal(t, 0, res.Progress.ExecutedCount)

	_, err = env.profiles.Get(context.Background(), "user-1")
	assert.ErrorIs(t, err, shared.ErrProfileNotFound)
}

func TestRecordExecution_DailyStreakMilestone(t *testing.T) {
	env := newTestEnv(t, monday)
	r := env.defineDaily(t)

	var last *RecordExecutionResult
	for day := 0; day < 7; day++ {
		env.now = monday.AddDate(0, 0, day)
		last = env.complete(t, r)
		assert.Equal(t, day+1, last.Streak)
	}

	require.Len(t, last.Milestones, 1)
	assert.Equal(t, 7, last.Milestones[0].Days)

	p, err := env.profiles.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 7*gamification.CompletionXP+50, p.TotalXP)
	assert.Equal(t, 7, p.Streak)
	assert.Equal(t, 2, p.Level)
	assert.True(t, last.XP.LeveledUp)

	sum, err := env.profiles.SumByUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, p.TotalXP, sum)
}

func TestRecordExecution_StreakBreaksAfterMissedDay(t *testing.T) {
	env := newTestEnv(t, monday)
	r := env.defineDaily(t)

	env.complete(t, r)
	env.now = monday.AddDate(0, 0, 2)
	res := env.complete(t, r)
	assert.Equal(t, 1, res.Streak)
	assert.Equal(t, 1, res.LongestStreak)
}

func TestRecordExecution_MilestonePaidOncePerRoutineRun(t *testing.T) {
	env := newTestEnv(t, monday)
	meditate := env.defineDaily(t)
	res, err := env.define.Handle(context.Background(), DefineRoutineCommand{
		UserID: "user-1",
		Definition: routine.Definition{
			Title:          "Stretch",
			GoalType:       routine.GoalScheduleBased,
			RecurrenceType: routine.RecurrenceDaily,
		},
	})
	require.NoError(t, err)
	stretch := res.Routine

	for day := 0; day < 7; day++ {
		env.now = monday.AddDate(0, 0, day)
		env.complete(t, meditate)
	}

	// Alternating with a younger daily routine must not pay the week again.
	for round := 0; round < 3; round++ {
		assert.Empty(t, env.complete(t, stretch).Milestones)
		last := env.complete(t, meditate)
		assert.Equal(t, 7, last.Streak)
		assert.Empty(t, last.Milestones)
	}

	p, err := env.profiles.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 13*gamification.CompletionXP+50, p.TotalXP)
	assert.Equal(t, 7, p.Streak)
	assert.Equal(t, 7, p.LongestStreak)

	refs, err := env.profiles.SourceRefs(context.Background(), "user-1", "milestone:")
	require.NoError(t, err)
	assert.Len(t, refs, 1)
}

func TestRecordExecution_ProfileStreakIsBestDailyRoutine(t *testing.T) {
	env := newTestEnv(t, monday)
	first := env.defineDaily(t)
	res, err := env.define.Handle(context.Background(), DefineRoutineCommand{
		UserID: "user-1",
		Definition: routine.Definition{
			Title:          "Journal",
			GoalType:       routine.GoalScheduleBased,
			RecurrenceType: routine.RecurrenceDaily,
		},
	})
	require.NoError(t, err)
	second := res.Routine

	for day := 0; day < 3; day++ {
		env.now = monday.AddDate(0, 0, day)
		env.complete(t, first)
	}
	rec := env.complete(t, second)
	assert.Equal(t, 1, rec.Streak)

	p, err := env.profiles.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Streak)
}

func TestRecordExecution_FailedGrantLeavesNoRecord(t *testing.T) {
	env := newTestEnv(t, monday)
	r := env.defineFrequency(t, routine.PeriodWeekly, 3)

	profiles := &conflictingProfiles{ProfileRepository: env.profiles, failures: 10}
	locker := locking.NewKeyedMutex()
	grant := NewGrantXPHandler(profiles, locker, nil, GrantXPHandlerConfig{ConflictAttempts: 2, Logger: logger.Nop()})
	record := NewRecordExecutionHandler(env.routines, env.executions, NewPlanReconciler(env.executions, env.plans),
		grant, locker, fixedTimezone("UTC"), env.publisher, func() time.Time { return env.now })

	id := shared.NewExecutionID()
	_, err := record.Handle(context.Background(), RecordExecutionCommand{
		UserID: "user-1", RoutineID: r.ID.String(), ExecutionID: id.String(), IsCompleted: true,
	})
	require.ErrorIs(t, err, shared.ErrProfileConflict)

	history, err := env.executions.ListByRoutine(context.Background(), r.ID, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, history)
	plan, err := env.plans.GetActive(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, plan.RemainingTarget)

	// The caller retries with the same id once the profile store recovers.
	profiles.failures = 0
	res, err := record.Handle(context.Background(), RecordExecutionCommand{
		UserID: "user-1", RoutineID: r.ID.String(), ExecutionID: id.String(), IsCompleted: true,
	})
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, id, res.Execution.ID)
	assert.Equal(t, 1, res.Progress.ExecutedCount)
}

func TestRecordExecution_SameExecutionIDReplays(t *testing.T) {
	env := newTestEnv(t, monday)
	r := env.defineDaily(t)
	cmd := RecordExecutionCommand{
		UserID: "user-1", RoutineID: r.ID.String(), ExecutionID: shared.NewExecutionID().String(), IsCompleted: true,
	}

	first, err := env.record.Handle(context.Background(), cmd)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	again, err := env.record.Handle(context.Background(), cmd)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.Execution.ID, again.Execution.ID)
	assert.Equal(t, 1, again.Streak)

	history, err := env.executions.ListByRoutine(context.Background(), r.ID, time.Time{})
	require.NoError(t, err)
	assert.Len(t, history, 1)

	ledger, err := env.profiles.ListByUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Equal(t, gamification.CompletionRef(first.Execution.ID), ledger[0].SourceRef)

	other := env.defineFrequency(t, routine.PeriodWeekly, 2)
	cmd.RoutineID = other.ID.String()
	_, err = env.record.Handle(context.Background(), cmd)
	assert.ErrorIs(t, err, shared.ErrExecutionMismatch)
}

func TestRecordExecution_RejectsMalformedExecutionID(t *testing.T) {
	env := newTestEnv(t, monday)
	r := env.defineDaily(t)

	_, err := env.record.Handle(context.Background(), RecordExecutionCommand{
		UserID: "user-1", RoutineID: r.ID.String(), ExecutionID: "not-a-uuid", IsCompleted: true,
	})
	assert.ErrorIs(t, err, shared.ErrInvalidID)
}

func TestRecordExecution_RejectsInactiveRoutine(t *testing.T) {
	env := newTestEnv(t, monday)
	r := env.defineDaily(t)

	_, err := env.manage.Handle(context.Background(), ManageRoutineCommand{
		UserID: "user-1", RoutineID: r.ID.String(), Action: ActionDeactivate,
	})
	require.NoError(t, err)

	_, err = env.record.Handle(context.Background(), RecordExecutionCommand{
		UserID: "user-1", RoutineID: r.ID.String(), IsCompleted: true,
	})
	assert.ErrorIs(t, err, shared.ErrRoutineInactive)
}

func TestRecordExecution_RejectsForeignRoutine(t *testing.T) {
	env := newTestEnv(t, monday)
	r := env.defineDaily(t)

	_, err := env.record.Handle(context.Background(), RecordExecutionCommand{
		UserID: "user-2", RoutineID: r.ID.String(), IsCompleted: true,
	})
	assert.ErrorIs(t, err, shared.ErrRoutineNotFound)
}

func TestRecordExecution_RejectsFutureTimestamp(t *testing.T) {
	env := newTestEnv(t, monday)
	r := env.defineDaily(t)

	_, err := env.record.Handle(context.Background(), RecordExecutionCommand{
		UserID: "user-1", RoutineID: r.ID.String(), IsCompleted: true,
		ExecutedAt: monday.Add(time.Hour),
	})
	assert.ErrorIs(t, err, shared.ErrValueOutOfRange)
}

func TestCorrectExecution_DeleteRecomputesButKeepsXP(t *testing.T) {
	env := newTestEnv(t, monday)
	r := env.defineFrequency(t, routine.PeriodWeekly, 3)
	rec := env.complete(t, r)

	res, err := env.correct.Handle(context.Background(), CorrectExecutionCommand{
		UserID:      "user-1",
		ExecutionID: rec.Execution.ID.String(),
		Delete:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Progress.ExecutedCount)
	require.NotNil(t, res.Catchup)
	assert.Equal(t, 3, res.Catchup.Plan.RemainingTarget)

	p, err := env.profiles.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, gamification.CompletionXP, p.TotalXP)
	assert.Contains(t, env.publisher.types(), shared.EventExecutionCorrected)
}

func TestCorrectExecution_MarkIncomplete(t *testing.T) {
	env := newTestEnv(t, monday)
	r := env.defineDaily(t)
	rec := env.complete(t, r)

	no := false
	res, err := env.correct.Handle(context.Background(), CorrectExecutionCommand{
		UserID:      "user-1",
		ExecutionID: rec.Execution.ID.String(),
		IsCompleted: &no,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Streak)
	assert.False(t, res.Progress.IsCompleted)
}

func TestCorrectExecution_DeleteMovesProfileStreak(t *testing.T) {
	env := newTestEnv(t, monday)
	r := env.defineDaily(t)

	env.complete(t, r)
	env.now = monday.AddDate(0, 0, 1)
	today := env.complete(t, r)

	p, err := env.profiles.Get(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, 2, p.Streak)

	res, err := env.correct.Handle(context.Background(), CorrectExecutionCommand{
		UserID:      "user-1",
		ExecutionID: today.Execution.ID.String(),
		Delete:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Streak)
	assert.Equal(t, 0, res.ProfileStreak)

	p, err = env.profiles.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, p.Streak)
	assert.Equal(t, 2, p.LongestStreak)
	assert.Equal(t, 2*gamification.CompletionXP, p.TotalXP)
}

func TestManageRoutine_DeactivateDailyRoutineResetsProfileStreak(t *testing.T) {
	env := newTestEnv(t, monday)
	r := env.defineDaily(t)
	env.complete(t, r)

	res, err := env.manage.Handle(context.Background(), ManageRoutineCommand{
		UserID: "user-1", RoutineID: r.ID.String(), Action: ActionDeactivate,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ProfileStreak)

	p, err := env.profiles.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, p.Streak)
	assert.Equal(t, 1, p.LongestStreak)
}

func TestCorrectExecution_RequiresChange(t *testing.T) {
	env := newTestEnv(t, monday)
	_, err := env.correct.Handle(context.Background(), CorrectExecutionCommand{
		UserID:      "user-1",
		ExecutionID: shared.NewExecutionID().String(),
	})
	assert.ErrorIs(t, err, shared.ErrEmptyValue)
}

func TestManageRoutine_DeleteRemovesHistoryAndClosesPlan(t *testing.T) {
	env := newTestEnv(t, monday)
	r := env.defineFrequency(t, routine.PeriodWeekly, 3)
	env.complete(t, r)

	res, err := env.manage.Handle(context.Background(), ManageRoutineCommand{
		UserID: "user-1", RoutineID: r.ID.String(), Action: ActionDelete,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.DeletedRecords)
	assert.True(t, res.PlanDeactivated)

	_, err = env.plans.GetActive(context.Background(), r.ID)
	assert.ErrorIs(t, err, shared.ErrCatchupPlanMissing)
	_, err = env.routines.GetByID(context.Background(), r.ID)
	assert.ErrorIs(t, err, shared.ErrRoutineNotFound)
}

func TestManageRoutine_ReactivateReopensPlan(t *testing.T) {
	env := newTestEnv(t, monday)
	r := env.defineFrequency(t, routine.PeriodWeekly, 2)

	for _, action := range []RoutineAction{ActionDeactivate, ActionActivate} {
		_, err := env.manage.Handle(context.Background(), ManageRoutineCommand{
			UserID: "user-1", RoutineID: r.ID.String(), Action: action,
		})
		require.NoError(t, err)
	}

	plan, err := env.plans.GetActive(context.Background(), r.ID)
	require.NoError(t, err)
	assert.True(t, plan.IsActive)
}

func TestGrantXP_ConcurrentGrantsAreSerialized(t *testing.T) {
	env := newTestEnv(t, monday)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.grant.Handle(context.Background(), GrantXPCommand{
				UserID: "user-1", Amount: 25, Reason: "mission", SourceType: gamification.SourceMission,
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	p, err := env.profiles.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(n*25), p.TotalXP)
	assert.Equal(t, int64(n), p.Version)

	ledger, err := env.profiles.ListByUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, ledger, n)
}

func TestGrantXP_Validation(t *testing.T) {
	env := newTestEnv(t, monday)

	_, err := env.grant.Handle(context.Background(), GrantXPCommand{UserID: "user-1", Amount: -1, SourceType: gamification.SourceMission})
	assert.ErrorIs(t, err, shared.ErrNegativeXP)

	_, err = env.grant.Handle(context.Background(), GrantXPCommand{UserID: "user-1", Amount: 5, SourceType: "gift"})
	assert.ErrorIs(t, err, shared.ErrInvalidSource)
}

func TestGrantXP_SourceRefIsGrantedOnce(t *testing.T) {
	env := newTestEnv(t, monday)
	cmd := GrantXPCommand{
		UserID: "user-1", Amount: 40, Reason: "weekly challenge", SourceType: gamification.SourceChallenge,
		SourceRef: "challenge:2024-w01",
	}

	first, err := env.grant.Handle(context.Background(), cmd)
	require.NoError(t, err)
	assert.False(t, first.AlreadyGranted)
	assert.Equal(t, int64(40), first.NewTotalXP)

	again, err := env.grant.Handle(context.Background(), cmd)
	require.NoError(t, err)
	assert.True(t, again.AlreadyGranted)
	assert.Equal(t, int64(40), again.NewTotalXP)
	assert.Equal(t, first.Profile.Version, again.Profile.Version)
}

type conflictingProfiles struct {
	*memory.ProfileRepository
	failures int
}

func (c *conflictingProfiles) Commit(ctx context.Context, p *gamification.Profile, expected int64, entries []gamification.XPTransaction) error {
	if c.failures > 0 {
		c.failures--
		return shared.ErrProfileConflict
	}
	return c.ProfileRepository.Commit(ctx, p, expected, entries)
}

func TestGrantXP_RetriesConflicts(t *testing.T) {
	profiles := &conflictingProfiles{ProfileRepository: memory.NewProfileRepository(), failures: 2}
	h := NewGrantXPHandler(profiles, nil, nil, GrantXPHandlerConfig{ConflictAttempts: 3, Logger: logger.Nop()})

	res, err := h.Handle(context.Background(), GrantXPCommand{UserID: "user-1", Amount: 10, SourceType: gamification.SourceChallenge})
	require.NoError(t, err)
	assert.Equal(t, int64(10), res.NewTotalXP)

	profiles.failures = 5
	_, err = h.Handle(context.Background(), GrantXPCommand{UserID: "user-1", Amount: 10, SourceType: gamification.SourceChallenge})
	assert.ErrorIs(t, err, shared.ErrProfileConflict)
}

func TestRollCatchupPlans_OpensNextPeriod(t *testing.T) {
	env := newTestEnv(t, monday)
	r := env.defineFrequency(t, routine.PeriodWeekly, 3)
	env.complete(t, r)

	env.now = time.Date(2024, time.January, 8, 9, 0, 0, 0, time.UTC)
	res, err := env.roll.Handle(context.Background(), RollCatchupPlansCommand{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Scanned)
	assert.Equal(t, 1, res.Rolled)

	plan, err := env.plans.GetActive(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.January, 7, 0, 0, 0, 0, time.UTC), plan.TargetPeriodStart)
	assert.Equal(t, 3, plan.RemainingTarget)

	expired, err := env.plans.ListExpired(context.Background(), env.now, 10)
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestRollCatchupPlans_ClosesPlansOfDeletedRoutines(t *testing.T) {
	env := newTestEnv(t, monday)
	r := env.defineFrequency(t, routine.PeriodDaily, 1)

	stored, err := env.routines.GetByID(context.Background(), r.ID)
	require.NoError(t, err)
	stored.SoftDelete(monday)
	require.NoError(t, env.routines.Save(context.Background(), stored))

	env.now = monday.AddDate(0, 0, 2)
	res, err := env.roll.Handle(context.Background(), RollCatchupPlansCommand{BatchSize: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Closed)

	_, err = env.plans.GetActive(context.Background(), r.ID)
	assert.ErrorIs(t, err, shared.ErrCatchupPlanMissing)
}
