package scheduler

import (
	"context"
	"testing"
	"time"

	badgerstore "github.com/riftdb/rift/persist/badger"
	"github.com/riftdb/rift/funrun"
	"github.com/riftdb/rift/store"
	"github.com/riftdb/rift/value"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := badgerstore.Open(badgerstore.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := store.Open(db, store.Options{
		WriteLogCapacity:  1024,
		BytesPerWindow:    1 << 20,
		WindowSeconds:     1,
		MaxUserWriteBytes: 1 << 20,
	})
	return s
}

var testIdentity = store.Identity{Subject: "scheduler-test"}

func TestBootstrapCreatesIndexesIdempotently(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, Bootstrap(ctx, s))
	require.NoError(t, Bootstrap(ctx, s))

	_, ok := s.Snapshots().Latest().Indexes.ByName(store.ScheduledJobsTableNumber, ScheduledJobsIndexByTS)
	require.True(t, ok)
	_, ok = s.Snapshots().Latest().Indexes.ByName(store.CronJobsTableNumber, CronJobsIndexByNextRun)
	require.True(t, ok)
}

func TestWorkerRunsDueJobToCompletion(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Run(ctx)

	require.NoError(t, Bootstrap(ctx, s))

	fn := funrun.Source{
		ModuleSpecifier: "job.js",
		ModuleSource:    `export default function() { return 42; }`,
		ExportName:      "default",
	}
	_, err := Schedule(ctx, s, testIdentity, fn, funrun.KindMutation, value.Null(), 0)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.PollInterval = 10 * time.Millisecond
	w := NewWorker(s, testIdentity, nil, funrun.DefaultLimits(), cfg, zerolog.Nop())

	workerCtx, workerCancel := context.WithCancel(ctx)
	t.Cleanup(workerCancel)
	go w.Run(workerCtx)

	require.Eventually(t, func() bool {
		return countJobsInState(t, s, StateComplete) == 1
	}, 2*time.Second, 10*time.Millisecond, "job should reach StateComplete")
}

func TestWorkerMarksPermanentlyFailingJobAsFailed(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Run(ctx)

	require.NoError(t, Bootstrap(ctx, s))

	fn := funrun.Source{
		ModuleSpecifier: "broken.js",
		ModuleSource:    `export default function() { throw new Error("boom"); }`,
		ExportName:      "default",
	}
	_, err := Schedule(ctx, s, testIdentity, fn, funrun.KindMutation, value.Null(), 0)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.PollInterval = 5 * time.Millisecond
	cfg.MaxAttempts = 2
	cfg.InitialBackoff = 5 * time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	w := NewWorker(s, testIdentity, nil, funrun.DefaultLimits(), cfg, zerolog.Nop())

	workerCtx, workerCancel := context.WithCancel(ctx)
	t.Cleanup(workerCancel)
	go w.Run(workerCtx)

	require.Eventually(t, func() bool {
		return countJobsInState(t, s, StateFailed) == 1
	}, 2*time.Second, 10*time.Millisecond, "job should exhaust retries and reach StateFailed")
}

func TestCancelPreventsWorkerFromExecutingPendingJob(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Run(ctx)

	require.NoError(t, Bootstrap(ctx, s))

	fn := funrun.Source{
		ModuleSpecifier: "job.js",
		ModuleSource:    `export default function() { return 1; }`,
		ExportName:      "default",
	}
	id, err := Schedule(ctx, s, testIdentity, fn, funrun.KindMutation, value.Null(), 0)
	require.NoError(t, err)
	require.NoError(t, Cancel(ctx, s, testIdentity, id))

	cfg := DefaultConfig()
	cfg.PollInterval = 5 * time.Millisecond
	w := NewWorker(s, testIdentity, nil, funrun.DefaultLimits(), cfg, zerolog.Nop())

	workerCtx, workerCancel := context.WithCancel(ctx)
	t.Cleanup(workerCancel)
	go w.Run(workerCtx)

	require.Never(t, func() bool {
		return countJobsInState(t, s, StateComplete) == 1
	}, 200*time.Millisecond, 10*time.Millisecond, "canceled job must never execute")

	txn, handle := s.Begin(testIdentity)
	defer handle.Release()
	doc, err := txn.Get(id)
	require.NoError(t, err)
	require.NotNil(t, doc)
	require.Equal(t, StateCanceled, jobFromDocument(doc).State)
}

func TestCronTickPromotesDueEntryAndAdvancesNextRun(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Run(ctx)

	require.NoError(t, Bootstrap(ctx, s))

	fn := funrun.Source{
		ModuleSpecifier: "tick.js",
		ModuleSource:    `export default function() { return "tick"; }`,
		ExportName:      "default",
	}
	cronID, err := ScheduleCron(ctx, s, testIdentity, fn, funrun.KindMutation, value.Null(), 1000, 0)
	require.NoError(t, err)

	w := NewWorker(s, testIdentity, nil, funrun.DefaultLimits(), DefaultConfig(), zerolog.Nop())
	w.tickCron(ctx)

	require.Eventually(t, func() bool {
		return countJobsInState(t, s, StatePending)+countJobsInState(t, s, StateComplete) == 1
	}, 2*time.Second, 10*time.Millisecond, "cron tick should enqueue exactly one job")

	txn, handle := s.Begin(testIdentity)
	defer handle.Release()
	doc, err := txn.Get(cronID)
	require.NoError(t, err)
	require.Equal(t, int64(1000), cronFromDocument(doc).NextRunTS)

	// A second tick observing the same logical instant must not
	// promote the entry again: NextRunTS has already advanced past it.
	w.tickCron(ctx)
	time.Sleep(20 * time.Millisecond)
	require.LessOrEqual(t, countJobsInState(t, s, StatePending)+countJobsInState(t, s, StateComplete)+countJobsInState(t, s, StateFailed), 1)
}

func countJobsInState(t *testing.T, s *store.Store, state State) int {
	t.Helper()
	txn, handle := s.Begin(testIdentity)
	defer handle.Release()
	meta, ok := txn.Snapshot().Indexes.ByName(store.ScheduledJobsTableNumber, ScheduledJobsIndexByTS)
	if !ok {
		return 0
	}
	hi := append(value.EncodeIndexKey(value.Int64(1<<62)), 0xFF)
	docs, err := txn.GetIndexRange(meta.ID, store.KeyRange{Lo: []byte{}, Hi: hi}, false, 1000)
	require.NoError(t, err)
	count := 0
	for _, d := range docs {
		if jobFromDocument(d).State == state {
			count++
		}
	}
	return count
}
