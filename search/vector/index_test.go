package vector

import (
	"testing"

	"github.com/riftdb/rift/rifterr"
	"github.com/riftdb/rift/store"
	"github.com/riftdb/rift/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMeta() store.IndexMeta {
	return store.IndexMeta{
		ID:           1,
		Name:         "by_embedding",
		TableNumber:  100,
		Kind:         store.IndexKindVector,
		SearchField:  "embedding",
		FilterFields: []string{"category"},
		Dimensions:   4,
		Phase:        store.PhaseEnabled,
	}
}

func vecValue(vs ...float64) value.Value {
	elems := make([]value.Value, len(vs))
	for i, v := range vs {
		elems[i] = value.Float64(v)
	}
	return value.Array(elems...)
}

func docWrite(t *testing.T, v []float64, category string) store.Write {
	t.Helper()
	id := value.NewDocumentID(100)
	doc := &store.Document{
		ID: id,
		Value: value.Object(
			value.Field{Key: "embedding", Val: vecValue(v...)},
			value.Field{Key: "category", Val: value.String(category)},
		),
	}
	return store.Write{ID: id, New: doc}
}

func TestIndexQueryRanksByCosineSimilarity(t *testing.T) {
	idx := NewIndex(testMeta())

	close := docWrite(t, []float64{1, 0, 0, 0}, "a")
	far := docWrite(t, []float64{0, 1, 0, 0}, "a")
	idx.IndexWrite(testMeta(), close, 1)
	idx.IndexWrite(testMeta(), far, 2)

	hits, err := idx.Query([]float32{1, 0, 0, 0}, nil, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, close.ID, hits[0].DocID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestIndexQueryRejectsWrongDimensions(t *testing.T) {
	idx := NewIndex(testMeta())
	_, err := idx.Query([]float32{1, 0}, nil, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), rifterr.CodeArgumentValidationError)
}

func TestIndexQueryRejectsUndeclaredFilterField(t *testing.T) {
	idx := NewIndex(testMeta())
	_, err := idx.Query([]float32{1, 0, 0, 0}, map[string][]value.Value{"nope": {value.String("x")}}, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), rifterr.CodeIncorrectVectorFilterField)
}

func TestIndexQueryFilterIsORWithinFieldANDAcrossFields(t *testing.T) {
	idx := NewIndex(testMeta())
	a := docWrite(t, []float64{1, 0, 0, 0}, "a")
	b := docWrite(t, []float64{1, 0, 0, 0}, "b")
	c := docWrite(t, []float64{1, 0, 0, 0}, "c")
	idx.IndexWrite(testMeta(), a, 1)
	idx.IndexWrite(testMeta(), b, 2)
	idx.IndexWrite(testMeta(), c, 3)

	hits, err := idx.Query([]float32{1, 0, 0, 0}, map[string][]value.Value{
		"category": {value.String("a"), value.String("b")},
	}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestIndexFlushAndUpdateTombstonesOldEntry(t *testing.T) {
	idx := NewIndex(testMeta())
	w := docWrite(t, []float64{1, 0, 0, 0}, "a")
	idx.IndexWrite(testMeta(), w, 1)
	require.NoError(t, idx.Flush())
	require.Len(t, idx.segments, 1)

	updated := *w.New
	updated.Value = value.Object(
		value.Field{Key: "embedding", Val: vecValue(0, 1, 0, 0)},
		value.Field{Key: "category", Val: value.String("a")},
	)
	idx.IndexWrite(testMeta(), store.Write{ID: w.ID, Old: w.New, New: &updated}, 2)

	hits, err := idx.Query([]float32{1, 0, 0, 0}, nil, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Less(t, hits[0].Score, 0.5)
}

func TestManagerRoutesByIndexID(t *testing.T) {
	m := NewManager()
	meta := testMeta()
	w := docWrite(t, []float64{1, 0, 0, 0}, "a")
	m.IndexWrite(meta, w, 1)

	idx := m.Get(meta.ID)
	require.NotNil(t, idx)
	hits, err := idx.Query([]float32{1, 0, 0, 0}, nil, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}
