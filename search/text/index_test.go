package text

import (
	"testing"

	"github.com/riftdb/rift/store"
	"github.com/riftdb/rift/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMeta() store.IndexMeta {
	return store.IndexMeta{
		ID:           1,
		Name:         "by_body",
		TableNumber:  100,
		Kind:         store.IndexKindText,
		SearchField:  "body",
		FilterFields: []string{"category"},
		Phase:        store.PhaseEnabled,
	}
}

func docWrite(t *testing.T, tableNumber uint16, body, category string, ts float64) store.Write {
	t.Helper()
	id := value.NewDocumentID(tableNumber)
	doc := &store.Document{
		ID:           id,
		CreationTime: ts,
		Value: value.Object(
			value.Field{Key: "body", Val: value.String(body)},
			value.Field{Key: "category", Val: value.String(category)},
		),
	}
	return store.Write{ID: id, New: doc}
}

func TestIndexQueryRanksByBM25(t *testing.T) {
	idx := NewIndex(testMeta())

	w1 := docWrite(t, 100, "the quick brown fox", "animals", 1)
	w2 := docWrite(t, 100, "fox fox fox jumps over the fox", "animals", 2)
	w3 := docWrite(t, 100, "completely unrelated text about cars", "vehicles", 3)

	idx.IndexWrite(testMeta(), w1, 1)
	idx.IndexWrite(testMeta(), w2, 2)
	idx.IndexWrite(testMeta(), w3, 3)

	hits := idx.Query("fox", nil, 10)
	require.Len(t, hits, 2)
	assert.Equal(t, w2.ID, hits[0].DocID, "document with more occurrences of the term should rank first")
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestIndexQueryFiltersByFilterField(t *testing.T) {
	idx := NewIndex(testMeta())

	w1 := docWrite(t, 100, "red bicycle for sale", "vehicles", 1)
	w2 := docWrite(t, 100, "red sports car for sale", "vehicles", 2)

	idx.IndexWrite(testMeta(), w1, 1)
	idx.IndexWrite(testMeta(), w2, 2)

	hits := idx.Query("red", map[string][]value.Value{"category": {value.String("vehicles")}}, 10)
	assert.Len(t, hits, 2)

	hits = idx.Query("red", map[string][]value.Value{"category": {value.String("animals")}}, 10)
	assert.Empty(t, hits)
}

func TestIndexDeleteRemovesFromResults(t *testing.T) {
	idx := NewIndex(testMeta())

	w1 := docWrite(t, 100, "searchable content here", "misc", 1)
	idx.IndexWrite(testMeta(), w1, 1)
	require.Len(t, idx.Query("searchable", nil, 10), 1)

	idx.IndexWrite(testMeta(), store.Write{ID: w1.ID, Old: w1.New, New: nil}, 2)
	assert.Empty(t, idx.Query("searchable", nil, 10))
}

func TestIndexFlushSealsOverlayIntoSegment(t *testing.T) {
	idx := NewIndex(testMeta())
	w1 := docWrite(t, 100, "searchable content here", "misc", 1)
	idx.IndexWrite(testMeta(), w1, 1)

	require.NoError(t, idx.Flush(10))
	assert.Len(t, idx.segments, 1)

	hits := idx.Query("searchable", nil, 10)
	require.Len(t, hits, 1)
	assert.Equal(t, w1.ID, hits[0].DocID)
}

func TestIndexUpdateAfterFlushTombstonesOldSegmentEntry(t *testing.T) {
	idx := NewIndex(testMeta())
	w1 := docWrite(t, 100, "original wording", "misc", 1)
	idx.IndexWrite(testMeta(), w1, 1)
	require.NoError(t, idx.Flush(10))

	updated := *w1.New
	updated.Value = value.Object(
		value.Field{Key: "body", Val: value.String("entirely different text")},
		value.Field{Key: "category", Val: value.String("misc")},
	)
	idx.IndexWrite(testMeta(), store.Write{ID: w1.ID, Old: w1.New, New: &updated}, 11)

	assert.Empty(t, idx.Query("original", nil, 10))
	hits := idx.Query("different", nil, 10)
	require.Len(t, hits, 1)
	assert.Equal(t, w1.ID, hits[0].DocID)
}

func TestManagerRoutesByIndexID(t *testing.T) {
	m := NewManager()
	meta := testMeta()
	w1 := docWrite(t, 100, "hello world", "misc", 1)
	m.IndexWrite(meta, w1, 1)

	idx := m.Get(meta.ID)
	require.NotNil(t, idx)
	assert.Len(t, idx.Query("hello", nil, 10), 1)
}
