package scheduler

import (
	"context"
	"math"
	"time"

	"github.com/riftdb/rift/funrun"
	"github.com/riftdb/rift/metrics"
	"github.com/riftdb/rift/store"
	"github.com/riftdb/rift/value"
	"github.com/rs/zerolog"
)

// Config bounds the worker's polling cadence, retry policy, and batch
// sizes, mirroring indexworker.Config's shape for the same kind of
// co-operative background loop.
type Config struct {
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollInterval:   1 * time.Second,
		BatchSize:      50,
		MaxAttempts:    5,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     60 * time.Second,
	}
}

// Worker polls _scheduled_jobs and _cron_jobs, executing due work through
// the function runtime (§4.14).
type Worker struct {
	store    *store.Store
	identity store.Identity
	fetch    funrun.FetchClient
	limits   funrun.Limits
	cfg      Config
	logger   zerolog.Logger
}

func NewWorker(s *store.Store, identity store.Identity, fetch funrun.FetchClient, limits funrun.Limits, cfg Config, logger zerolog.Logger) *Worker {
	return &Worker{store: s, identity: identity, fetch: fetch, limits: limits, cfg: cfg, logger: logger}
}

// Run drives the cron tick and job lease loop until ctx is canceled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tickCron(ctx)
			w.runDueJobs(ctx)
		}
	}
}

func (w *Worker) tableOf() map[string]uint16 {
	out := make(map[string]uint16)
	for _, info := range w.store.Snapshots().Latest().Tables.Tables() {
		out[info.Name] = info.Number
	}
	return out
}

// tickCron promotes every cron entry due at or before the current
// snapshot ts into a concrete job row. Promotion and the entry's
// NextRunTS advance happen in the same commit, so a second worker
// racing to promote the same entry loses the commit to OCC instead of
// double-enqueuing -- the cron document's own read/write is the
// idempotency marker for (cron_id, scheduled_ts), per §4.14.
func (w *Worker) tickCron(ctx context.Context) {
	now := w.store.Snapshots().Latest().TS
	ids, err := w.dueCronIDs(now)
	if err != nil {
		w.logger.Warn().Err(err).Msg("scheduler: cron scan failed")
		return
	}
	for _, id := range ids {
		if err := w.promoteCron(ctx, id, now); err != nil {
			w.logger.Debug().Err(err).Str("cron_id", id.String()).Msg("scheduler: cron promotion skipped")
		}
	}
}

func (w *Worker) dueCronIDs(now int64) ([]value.DocumentID, error) {
	txn, handle := w.store.Begin(w.identity)
	defer handle.Release()
	meta, ok := txn.Snapshot().Indexes.ByName(store.CronJobsTableNumber, CronJobsIndexByNextRun)
	if !ok {
		return nil, nil
	}
	hi := append(value.EncodeIndexKey(value.Int64(now)), 0xFF)
	docs, err := txn.GetIndexRange(meta.ID, store.KeyRange{Lo: []byte{}, Hi: hi}, false, w.cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	ids := make([]value.DocumentID, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids, nil
}

func (w *Worker) promoteCron(ctx context.Context, cronID value.DocumentID, observedNow int64) error {
	txn, handle := w.store.Begin(w.identity)
	defer handle.Release()

	doc, err := txn.Get(cronID)
	if err != nil || doc == nil {
		return err
	}
	entry := cronFromDocument(doc)
	if !entry.Enabled || entry.NextRunTS > observedNow {
		return nil
	}

	jobID := value.NewDocumentID(store.ScheduledJobsTableNumber)
	job := Job{
		ID: jobID, Function: entry.Function, Kind: entry.Kind, Args: entry.Args,
		ScheduledTS: entry.NextRunTS, State: StatePending, CronID: entry.ID.String(),
	}
	if err := txn.Insert(store.ScheduledJobsTableName, jobID, jobToValue(job)); err != nil {
		return err
	}
	entry.NextRunTS += entry.IntervalMillis
	if err := txn.Replace(cronID, cronToValue(entry)); err != nil {
		return err
	}
	if _, err := txn.Commit(ctx, w.store.Committer()); err != nil {
		return err
	}
	metrics.CronTicksPromotedTotal.Inc()
	return nil
}

func (w *Worker) runDueJobs(ctx context.Context) {
	now := w.store.Snapshots().Latest().TS
	ids, err := w.dueJobIDs(now)
	if err != nil {
		w.logger.Warn().Err(err).Msg("scheduler: job scan failed")
		return
	}
	for _, id := range ids {
		w.executeOnce(ctx, id, now)
	}
}

func (w *Worker) dueJobIDs(now int64) ([]value.DocumentID, error) {
	txn, handle := w.store.Begin(w.identity)
	defer handle.Release()
	meta, ok := txn.Snapshot().Indexes.ByName(store.ScheduledJobsTableNumber, ScheduledJobsIndexByTS)
	if !ok {
		return nil, nil
	}
	hi := append(value.EncodeIndexKey(value.Int64(now)), 0xFF)
	docs, err := txn.GetIndexRange(meta.ID, store.KeyRange{Lo: []byte{}, Hi: hi}, false, w.cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	var ids []value.DocumentID
	for _, d := range docs {
		if jobFromDocument(d).State == StatePending {
			ids = append(ids, d.ID)
		}
	}
	return ids, nil
}

// executeOnce leases jobID by re-checking its state inside a fresh
// transaction, runs the function body in that same transaction so its
// writes commit atomically with the job's terminal state, and retries
// with exponential backoff up to MaxAttempts before recording a
// permanent failure (§4.14).
func (w *Worker) executeOnce(ctx context.Context, jobID value.DocumentID, observedNow int64) {
	txn, handle := w.store.Begin(w.identity)
	defer handle.Release()

	doc, err := txn.Get(jobID)
	if err != nil || doc == nil {
		return
	}
	job := jobFromDocument(doc)
	if job.State != StatePending {
		return
	}

	outcome := funrun.Execute(ctx, job.Kind, w.limits, observedNow, txn, w.tableOf(), job.Function, job.Args, w.fetch)
	retried := false
	if outcome.Err == nil {
		job.State = StateComplete
		job.LastError = ""
	} else {
		job.Attempts++
		job.LastError = outcome.Err.Error()
		if job.Attempts >= w.cfg.MaxAttempts {
			job.State = StateFailed
		} else {
			job.State = StatePending
			job.ScheduledTS = observedNow + backoffDelay(job.Attempts, w.cfg).Milliseconds()
			retried = true
		}
	}
	if err := txn.Replace(jobID, jobToValue(job)); err != nil {
		w.logger.Warn().Err(err).Str("job_id", jobID.String()).Msg("scheduler: failed to record job outcome")
		return
	}
	if _, err := txn.Commit(ctx, w.store.Committer()); err != nil {
		w.logger.Debug().Err(err).Str("job_id", jobID.String()).Msg("scheduler: lease lost to a concurrent worker")
		return
	}
	if retried {
		metrics.JobRetriesTotal.Inc()
	} else {
		metrics.JobsCompletedTotal.WithLabelValues(string(job.State)).Inc()
	}
}

// backoffDelay doubles InitialBackoff per attempt, capped at MaxBackoff,
// the same exponential shape indexworker's cenkalti/backoff/v4 policy
// uses, computed directly here since the worker needs the delay for a
// specific attempt count rather than a stateful ticking backoff object.
func backoffDelay(attempts int, cfg Config) time.Duration {
	if attempts <= 0 {
		return cfg.InitialBackoff
	}
	multiplier := math.Pow(2, float64(attempts-1))
	delay := time.Duration(float64(cfg.InitialBackoff) * multiplier)
	if delay > cfg.MaxBackoff {
		return cfg.MaxBackoff
	}
	return delay
}
