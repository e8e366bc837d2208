package funrun

import (
	"context"
	"testing"
	"time"

	badgerstore "github.com/riftdb/rift/persist/badger"
	"github.com/riftdb/rift/store"
	"github.com/riftdb/rift/value"
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

func tableOf(s *store.Store) map[string]uint16 {
	out := make(map[string]uint16)
	for _, info := range s.Snapshots().Latest().Tables.Tables() {
		out[info.Name] = info.Number
	}
	return out
}

func TestExecuteMutationInsertsDocument(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Run(ctx)

	_, err := s.CreateTable(ctx, "notes")
	require.NoError(t, err)

	txn, handle := s.Begin(store.Identity{Subject: "alice"})
	defer handle.Release()

	src := Source{
		ModuleSource: `function createNote(args) {
			return db.insert("notes", { title: args.title });
		}`,
		ExportName: "createNote",
	}
	args := value.Object(value.Field{Key: "title", Val: value.String("hello")})

	outcome := Execute(ctx, KindMutation, DefaultLimits(), s.Snapshots().Latest().TS, txn, tableOf(s), src, args, nil)
	require.NoError(t, outcome.Err)
	idStr, ok := outcome.Result.AsString()
	require.True(t, ok)
	require.NotEmpty(t, idStr)

	_, err = txn.Commit(ctx, s.Committer())
	require.NoError(t, err)
}

func TestExecuteQueryRejectsWrites(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Run(ctx)

	_, err := s.CreateTable(ctx, "notes")
	require.NoError(t, err)

	txn, handle := s.Begin(store.Identity{Subject: "alice"})
	defer handle.Release()

	src := Source{
		ModuleSource: `function attemptWrite(args) {
			return db.insert("notes", { title: "nope" });
		}`,
		ExportName: "attemptWrite",
	}
	outcome := Execute(ctx, KindQuery, DefaultLimits(), s.Snapshots().Latest().TS, txn, tableOf(s), src, value.Null(), nil)
	require.Error(t, outcome.Err)
	require.Contains(t, outcome.Err.Error(), "ReadOnlyFunction")
}

func TestExecuteConsoleLogsAreCaptured(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Run(ctx)

	txn, handle := s.Begin(store.Identity{Subject: "alice"})
	defer handle.Release()

	src := Source{
		ModuleSource: `function logSomething(args) {
			console.log("hello", "world");
			return 1;
		}`,
		ExportName: "logSomething",
	}
	outcome := Execute(ctx, KindQuery, DefaultLimits(), s.Snapshots().Latest().TS, txn, tableOf(s), src, value.Null(), nil)
	require.NoError(t, outcome.Err)
	require.Len(t, outcome.LogLines, 1)
	require.Equal(t, []string{"hello", "world"}, outcome.LogLines[0].Messages)
}

func TestExecuteDeterministicMathRandomAndDateNow(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Run(ctx)

	txn, handle := s.Begin(store.Identity{Subject: "alice"})
	defer handle.Release()
	ts := s.Snapshots().Latest().TS

	src := Source{
		ModuleSource: `function compute(args) {
			return { now: Date.now(), r1: Math.random(), r2: Math.random() };
		}`,
		ExportName: "compute",
	}

	outcome1 := Execute(ctx, KindQuery, DefaultLimits(), ts, txn, tableOf(s), src, value.Null(), nil)
	require.NoError(t, outcome1.Err)
	outcome2 := Execute(ctx, KindQuery, DefaultLimits(), ts, txn, tableOf(s), src, value.Null(), nil)
	require.NoError(t, outcome2.Err)
	require.True(t, value.Equal(outcome1.Result, outcome2.Result), "same clockTS must yield identical deterministic output")
}

func TestExecuteTimesOutLongRunningLoop(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Run(ctx)

	txn, handle := s.Begin(store.Identity{Subject: "alice"})
	defer handle.Release()

	src := Source{
		ModuleSource: `function spin(args) { while (true) {} }`,
		ExportName:   "spin",
	}
	limits := DefaultLimits()
	limits.UserTimeout = 50 * time.Millisecond
	limits.SystemTimeout = 50 * time.Millisecond

	outcome := Execute(ctx, KindQuery, limits, s.Snapshots().Latest().TS, txn, tableOf(s), src, value.Null(), nil)
	require.Error(t, outcome.Err)
	require.Contains(t, outcome.Err.Error(), "ExecutionTimedOut")
}

func TestExecuteFetchRejectedOutsideActions(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Run(ctx)

	txn, handle := s.Begin(store.Identity{Subject: "alice"})
	defer handle.Release()

	src := Source{
		ModuleSource: `function callFetch(args) { return fetch("https://example.com"); }`,
		ExportName:   "callFetch",
	}
	outcome := Execute(ctx, KindQuery, DefaultLimits(), s.Snapshots().Latest().TS, txn, tableOf(s), src, value.Null(), nil)
	require.Error(t, outcome.Err)
	require.Contains(t, outcome.Err.Error(), "Forbidden")
}

func TestExecuteJournalsTimerFirings(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Run(ctx)

	txn, handle := s.Begin(store.Identity{Subject: "alice"})
	defer handle.Release()

	src := Source{
		ModuleSource: `function withTimer(args) {
			setTimeout(() => {}, 0);
			return 1;
		}`,
		ExportName: "withTimer",
	}
	outcome := Execute(ctx, KindQuery, DefaultLimits(), s.Snapshots().Latest().TS, txn, tableOf(s), src, value.Null(), nil)
	require.NoError(t, outcome.Err)
	require.Len(t, outcome.Journal, 1)
	require.Contains(t, outcome.Journal[0].Detail, "timer")
}

func TestExecuteCooperativeSetTimeoutRunsBeforeReturn(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Run(ctx)

	txn, handle := s.Begin(store.Identity{Subject: "alice"})
	defer handle.Release()

	src := Source{
		ModuleSource: `function withTimer(args) {
			globalThis.seen = [];
			setTimeout(() => { globalThis.seen.push("second"); }, 10);
			globalThis.seen.push("first");
			return globalThis.seen;
		}`,
		ExportName: "withTimer",
	}
	outcome := Execute(ctx, KindQuery, DefaultLimits(), s.Snapshots().Latest().TS, txn, tableOf(s), src, value.Null(), nil)
	require.NoError(t, outcome.Err)
	elems, ok := outcome.Result.AsElements()
	require.True(t, ok)
	require.Len(t, elems, 2, "the timer drains before the result is exported, so its effect on the shared array is visible")
	first, _ := elems[0].AsString()
	second, _ := elems[1].AsString()
	require.Equal(t, "first", first)
	require.Equal(t, "second", second)
}
