// Package metrics exposes process-wide Prometheus collectors for every
// component described in §9 Design Notes' "Global state": the
// committer, index workers, the function runtime, the scheduler, and
// the sync engine. Collectors are package-level vars registered once in
// init, the same shape the rest of the corpus uses for a single global
// metrics registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Committer / transaction metrics
	CommitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rift_commits_total",
			Help: "Total number of transactions committed",
		},
	)

	OCCFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rift_occ_failures_total",
			Help: "Total number of optimistic concurrency control conflicts",
		},
	)

	CommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rift_commit_duration_seconds",
			Help:    "Time taken to validate and apply a commit",
			Buckets: prometheus.DefBuckets,
		},
	)

	ActiveSnapshots = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rift_active_snapshots",
			Help: "Number of snapshot handles currently holding back retention",
		},
	)

	// Index worker metrics
	IndexBackfillDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rift_index_backfill_duration_seconds",
			Help:    "Time taken to backfill an index to SnapshottedAt",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	IndexLagDocuments = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rift_index_lag_documents",
			Help: "Documents an index has yet to process from the write log",
		},
		[]string{"index"},
	)

	// Function runtime metrics
	FunctionExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rift_function_executions_total",
			Help: "Total number of function executions by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	FunctionExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rift_function_execution_duration_seconds",
			Help:    "Function execution wall-clock duration by kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	FunctionTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rift_function_timeouts_total",
			Help: "Total number of function executions that hit their wall-clock timeout",
		},
	)

	// Scheduler metrics
	JobsEnqueuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rift_jobs_enqueued_total",
			Help: "Total number of scheduled jobs enqueued",
		},
	)

	JobsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rift_jobs_completed_total",
			Help: "Total number of scheduled jobs reaching a terminal state",
		},
		[]string{"state"},
	)

	JobRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rift_job_retries_total",
			Help: "Total number of scheduled job retry attempts",
		},
	)

	CronTicksPromotedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rift_cron_ticks_promoted_total",
			Help: "Total number of cron entries promoted into scheduled jobs",
		},
	)

	// Sync engine metrics
	SyncSessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rift_sync_sessions_active",
			Help: "Number of open sync engine sessions",
		},
	)

	SyncSubscriptionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rift_sync_subscriptions_active",
			Help: "Number of open query subscriptions across all sessions",
		},
	)

	SyncDeltasSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rift_sync_deltas_sent_total",
			Help: "Total number of result deltas pushed to clients",
		},
	)
)

func init() {
	prometheus.MustRegister(
		CommitsTotal,
		OCCFailuresTotal,
		CommitDuration,
		ActiveSnapshots,
		IndexBackfillDuration,
		IndexLagDocuments,
		FunctionExecutionsTotal,
		FunctionExecutionDuration,
		FunctionTimeoutsTotal,
		JobsEnqueuedTotal,
		JobsCompletedTotal,
		JobRetriesTotal,
		CronTicksPromotedTotal,
		SyncSessionsActive,
		SyncSubscriptionsActive,
		SyncDeltasSentTotal,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer times an in-flight operation for later observation against a
// histogram, mirroring the rest of the corpus's start/observe pattern.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) ObserveDuration(h prometheus.Histogram) {
	h.Observe(time.Since(t.start).Seconds())
}

func (t *Timer) ObserveDurationVec(h prometheus.ObserverVec, labels ...string) {
	h.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
