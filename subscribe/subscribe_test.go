package subscribe_test

import (
	"context"
	"testing"
	"time"

	badgerstore "github.com/riftdb/rift/persist/badger"
	"github.com/riftdb/rift/store"
	"github.com/riftdb/rift/subscribe"
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

var testIdentity = store.Identity{Subject: "subscribe-test"}

func TestRegisteredTokenWakesOnIntersectingCommit(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Run(ctx)

	table, err := s.CreateTable(ctx, "widgets")
	require.NoError(t, err)

	txn, handle := s.Begin(testIdentity)
	id := value.NewDocumentID(table.Number)
	require.NoError(t, txn.Insert("widgets", id, value.Object()))
	_, err = txn.Commit(ctx, s.Committer())
	handle.Release()
	require.NoError(t, err)

	readTxn, readHandle := s.Begin(testIdentity)
	_, err = readTxn.Get(id)
	require.NoError(t, err)
	token := readTxn.IntoToken()
	readHandle.Release()

	eng := subscribe.NewEngine()
	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })
	go eng.Run(stop, s.WriteLog())

	_, invalidated := eng.Register(token)

	writeTxn, writeHandle := s.Begin(testIdentity)
	require.NoError(t, writeTxn.Patch(id, []value.Field{{Key: "touched", Val: value.Bool(true)}}))
	_, err = writeTxn.Commit(ctx, s.Committer())
	writeHandle.Release()
	require.NoError(t, err)

	select {
	case <-invalidated:
	case <-time.After(2 * time.Second):
		t.Fatal("expected the subscription to wake on the intersecting commit")
	}
}

func TestUnrelatedCommitDoesNotWakeSubscription(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Run(ctx)

	table, err := s.CreateTable(ctx, "widgets")
	require.NoError(t, err)

	txn, handle := s.Begin(testIdentity)
	watchedID := value.NewDocumentID(table.Number)
	otherID := value.NewDocumentID(table.Number)
	require.NoError(t, txn.Insert("widgets", watchedID, value.Object()))
	require.NoError(t, txn.Insert("widgets", otherID, value.Object()))
	_, err = txn.Commit(ctx, s.Committer())
	handle.Release()
	require.NoError(t, err)

	readTxn, readHandle := s.Begin(testIdentity)
	_, err = readTxn.Get(watchedID)
	require.NoError(t, err)
	token := readTxn.IntoToken()
	readHandle.Release()

	eng := subscribe.NewEngine()
	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })
	go eng.Run(stop, s.WriteLog())

	_, invalidated := eng.Register(token)
	require.Equal(t, 1, eng.Outstanding())

	writeTxn, writeHandle := s.Begin(testIdentity)
	require.NoError(t, writeTxn.Patch(otherID, []value.Field{{Key: "touched", Val: value.Bool(true)}}))
	_, err = writeTxn.Commit(ctx, s.Committer())
	writeHandle.Release()
	require.NoError(t, err)

	select {
	case <-invalidated:
		t.Fatal("subscription must not wake on a commit touching an unrelated document")
	case <-time.After(200 * time.Millisecond):
	}
	require.Equal(t, 1, eng.Outstanding())
}

func TestDropRemovesOutstandingSubscription(t *testing.T) {
	eng := subscribe.NewEngine()
	h, _ := eng.Register(store.Token{})
	require.Equal(t, 1, eng.Outstanding())
	eng.Drop(h)
	require.Equal(t, 0, eng.Outstanding())
}
