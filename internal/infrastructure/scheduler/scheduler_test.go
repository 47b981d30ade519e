package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/routine-hub/pkg/logger"
)

type funcJob struct {
	name string
	run  func(ctx context.Context) error
}

func (j *funcJob) Name() string                  { return j.name }
func (j *funcJob) Description() string           { return "test job " + j.name }
func (j *funcJob) Run(ctx context.Context) error { return j.run(ctx) }

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var t0 = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

func newTestScheduler(clock *manualClock) *Scheduler {
	return New(Config{Tick: 5 * time.Millisecond, Logger: logger.Nop(), Clock: clock.Now})
}

func TestParseSchedule(t *testing.T) {
	s, err := ParseSchedule("@every 15m")
	require.NoError(t, err)
	assert.Equal(t, t0.Add(15*time.Minute), s.Next(t0))
	assert.Equal(t, "@every 15m0s", s.String())

	s, err = ParseSchedule("5 0 * * *")
	require.NoError(t, err)
	assert.Equal(t, t0.Add(5*time.Minute), s.Next(t0))

	for _, bad := range []string{"@every 10ms", "@every soon", "* * *", "61 * * * *", "*/0 * * * *", "5-1 * * * *"} {
		_, err := ParseSchedule(bad)
		assert.Error(t, err, bad)
	}
}

func TestCronExpression_Next(t *testing.T) {
	tests := []struct {
		expr string
		from time.Time
		want time.Time
	}{
		{"*/15 * * * *", t0.Add(time.Minute), t0.Add(15 * time.Minute)},
		{"0 3 * * *", t0.Add(4 * time.Hour), time.Date(2024, time.January, 2, 3, 0, 0, 0, time.UTC)},
		// Saturday at 06:00; Jan 1 2024 is a Monday.
		{"0 6 * * 6", t0, time.Date(2024, time.January, 6, 6, 0, 0, 0, time.UTC)},
		{"30 9 1,15 * *", t0.Add(10 * time.Hour), time.Date(2024, time.January, 15, 9, 30, 0, 0, time.UTC)},
		{"0 0 29 2 *", t0, time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC)},
		{"@daily", t0.Add(time.Hour), time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC)},
		// Day-of-month and day-of-week both restricted: either one fires.
		{"0 9 1 * 1", t0.Add(10 * time.Hour), time.Date(2024, time.January, 8, 9, 0, 0, 0, time.UTC)},
		{"0 9 1 * 1", time.Date(2024, time.January, 29, 10, 0, 0, 0, time.UTC), time.Date(2024, time.February, 1, 9, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			assert.Equal(t, tt.want, MustParseCronExpression(tt.expr).Next(tt.from))
		})
	}

	assert.True(t, MustParseCronExpression("0 0 31 2 *").Next(t0).IsZero())
	assert.Panics(t, func() { MustParseCronExpression("bad") })
}

func TestScheduler_Register(t *testing.T) {
	s := newTestScheduler(&manualClock{now: t0})
	job := &funcJob{name: "a", run: func(context.Context) error { return nil }}

	assert.ErrorIs(t, s.Register(nil, NewIntervalSchedule(time.Minute)), ErrNilJob)
	assert.ErrorIs(t, s.Register(job, nil), ErrNilSchedule)
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Minute)))
	assert.ErrorIs(t, s.Register(job, NewIntervalSchedule(time.Minute)), ErrJobAlreadyExists)

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, t0.Add(time.Minute), jobs[0].NextRun)
}

func TestScheduler_RunsDueJobs(t *testing.T) {
	clock := &manualClock{now: t0}
	s := newTestScheduler(clock)

	var runs atomic.Int32
	require.NoError(t, s.Register(&funcJob{name: "tick", run: func(context.Context) error {
		runs.Add(1)
		return nil
	}}, NewIntervalSchedule(time.Minute)))

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, runs.Load())

	clock.Advance(time.Minute)
	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())
}

func TestScheduler_SkipsOverlappingRuns(t *testing.T) {
	clock := &manualClock{now: t0}
	s := newTestScheduler(clock)

	release := make(chan struct{})
	var runs atomic.Int32
	require.NoError(t, s.Register(&funcJob{name: "slow", run: func(ctx context.Context) error {
		runs.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}}, NewIntervalSchedule(time.Minute)))

	require.NoError(t, s.Start(context.Background()))

	clock.Advance(time.Minute)
	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	clock.Advance(5 * time.Minute)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())

	_, err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, ErrJobRunning)

	close(release)
	require.NoError(t, s.Stop())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
}

func TestScheduler_RunNowRecordsHistory(t *testing.T) {
	s := newTestScheduler(&manualClock{now: t0})
	boom := errors.New("boom")

	require.NoError(t, s.Register(&funcJob{name: "ok", run: func(context.Context) error { return nil }}, NewIntervalSchedule(time.Hour)))
	require.NoError(t, s.Register(&funcJob{name: "fails", run: func(context.Context) error { return boom }}, NewIntervalSchedule(time.Hour)))
	require.NoError(t, s.Register(&funcJob{name: "panics", run: func(context.Context) error { panic("oops") }}, NewIntervalSchedule(time.Hour)))

	res, err := s.RunNow(context.Background(), "ok")
	require.NoError(t, err)
	assert.True(t, res.Manual)
	assert.True(t, res.Success())

	_, err = s.RunNow(context.Background(), "fails")
	assert.ErrorIs(t, err, boom)

	_, err = s.RunNow(context.Background(), "panics")
	assert.ErrorContains(t, err, "panicked")

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	history := s.History(0)
	require.Len(t, history, 3)
	assert.Equal(t, "ok", history[0].JobName)
	assert.Equal(t, "panics", history[2].JobName)
	assert.Len(t, s.History(1), 1)

	for _, info := range s.ListJobs() {
		assert.Equal(t, int64(1), info.RunCount, info.Name)
		if info.Name != "ok" {
			assert.Equal(t, int64(1), info.FailCount, info.Name)
		}
	}
}
