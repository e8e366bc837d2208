package indexworker

import (
	"context"
	"testing"
	"time"

	badgerstore "github.com/riftdb/rift/persist/badger"
	"github.com/riftdb/rift/search/text"
	"github.com/riftdb/rift/search/vector"
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

func TestOrchestratorBackfillsAndServesQueries(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Run(ctx)

	texts := text.NewManager()
	vecs := vector.NewManager()
	s.Committer().RegisterSink(store.IndexKindText, texts)
	s.Committer().RegisterSink(store.IndexKindVector, vecs)

	table, err := s.CreateTable(ctx, "articles")
	require.NoError(t, err)

	indexMeta, err := s.CreateIndex(ctx, store.IndexMeta{
		Name:        "by_body",
		TableNumber: table.Number,
		Kind:        store.IndexKindText,
		SearchField: "body",
	})
	require.NoError(t, err)

	txn, handle := s.Begin(store.Identity{Subject: "test"})
	defer handle.Release()
	id := value.NewDocumentID(table.Number)
	require.NoError(t, txn.Insert("articles", id, value.Object(
		value.Field{Key: "body", Val: value.String("the quick brown fox")},
	)))
	_, err = txn.Commit(ctx, s.Committer())
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.PollInterval = 10 * time.Millisecond
	cfg.SegmentBatchSize = 10
	orch := NewOrchestrator(s, texts, vecs, cfg, zerolog.Nop())

	workerCtx, workerCancel := context.WithCancel(ctx)
	t.Cleanup(workerCancel)
	go orch.Run(workerCtx)

	require.Eventually(t, func() bool {
		meta, ok := s.Snapshots().Latest().Indexes.ByID(indexMeta.ID)
		return ok && meta.Phase == store.PhaseSnapshottedAt
	}, 2*time.Second, 10*time.Millisecond, "index should reach SnapshottedAt after backfill")

	idx := texts.Get(indexMeta.ID)
	require.NotNil(t, idx)
	require.Eventually(t, func() bool {
		return len(idx.Query("fox", nil, 10)) == 1
	}, 2*time.Second, 10*time.Millisecond, "backfilled document should be queryable")
}
