// Package metrics holds the Prometheus instrumentation of Routine Hub.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/alem-hub/routine-hub/pkg/timeutil"
)

var (
	// Engine
	ProgressComputations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routine_progress_computations_total",
			Help: "Progress aggregations computed, by goal type",
		},
		[]string{"goal_type"},
	)

	ProgressComputeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "routine_progress_compute_duration_seconds",
			Help:    "Time to load records and derive progress, streak and catch-up for one routine",
			Buckets: prometheus.DefBuckets,
		},
	)

	CatchupFlagged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "routine_catchup_flagged_total",
			Help: "Catch-up analyses that found a routine behind pace",
		},
	)

	CatchupPlansRolled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "routine_catchup_plans_rolled_total",
			Help: "Expired catch-up plans closed and reopened for the new period",
		},
	)

	// Gamification
	XPGranted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamification_xp_granted_total",
			Help: "XP granted, by source type",
		},
		[]string{"source_type"},
	)

	LevelUps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gamification_level_ups_total",
			Help: "Levels gained across all users",
		},
	)

	ProfileConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gamification_profile_conflicts_total",
			Help: "Optimistic concurrency conflicts on profile writes",
		},
	)

	// Calendar
	TimezoneFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "timeutil_timezone_fallbacks_total",
			Help: "Unknown timezone identifiers that fell back to UTC",
		},
	)

	// Cache
	ProgressCacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "progress_cache_requests_total",
			Help: "Progress cache lookups, by layer (lru, redis) and result (hit, miss, error)",
		},
		[]string{"layer", "result"},
	)

	// Event bus
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventbus_events_published_total",
			Help: "Domain events published, by type",
		},
		[]string{"event_type"},
	)

	EventHandlerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventbus_handler_duration_seconds",
			Help:    "Event handler latency, by event type and outcome",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"event_type", "outcome"},
	)

	// Scheduler
	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_job_runs_total",
			Help: "Scheduled job executions, by job and outcome",
		},
		[]string{"job", "outcome"},
	)
)

// RegisterTimezoneObserver counts UTC fallbacks of the civil calendar.
func RegisterTimezoneObserver() {
	timeutil.SetFallbackObserver(func(string) { TimezoneFallbacks.Inc() })
}

// ObserveHandler records the latency of one event handler invocation.
func ObserveHandler(eventType string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	EventHandlerDuration.WithLabelValues(eventType, outcome).Observe(d.Seconds())
}

// ObserveJob records one scheduled job run.
func ObserveJob(job string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	JobRuns.WithLabelValues(job, outcome).Inc()
}
