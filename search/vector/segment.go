package vector

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/riftdb/rift/value"
)

// VecInput is one document fed into BuildSegment.
type VecInput struct {
	ID      value.DocumentID
	Vector  []float32
	Filters map[string]value.Value
}

// Segment is an immutable slice of the vector index: quantized vectors
// keyed by internal id, a columnar filter-field store, and a tombstone
// bitmap — the same immutable-segment-plus-tombstone shape as
// search/text.Segment, since §4.11 explicitly mirrors §4.10's structure.
// Query-time ranking is brute-force cosine similarity over the quantized
// vectors rather than a true HNSW graph traversal: building a graph index
// is out of scope for a hand-rolled component with no corpus-grounded ANN
// library (see the note in DESIGN.md), and at the scale a single
// segment holds, a linear scan is both correct and fast enough.
type Segment struct {
	Dimensions int

	vectors [][]int8
	docs    []value.DocumentID
	filters []map[string]value.Value

	mu        sync.RWMutex
	tombstone *roaring.Bitmap
}

// BuildSegment seals a batch of vectors into an immutable segment.
func BuildSegment(dimensions int, docs []VecInput) *Segment {
	vectors := make([][]int8, len(docs))
	ids := make([]value.DocumentID, len(docs))
	filters := make([]map[string]value.Value, len(docs))
	for i, d := range docs {
		vectors[i] = quantize(d.Vector)
		ids[i] = d.ID
		filters[i] = d.Filters
	}
	return &Segment{
		Dimensions: dimensions,
		vectors:    vectors,
		docs:       ids,
		filters:    filters,
		tombstone:  roaring.New(),
	}
}

// DocCount is the number of documents sealed into this segment.
func (s *Segment) DocCount() int { return len(s.docs) }

func (s *Segment) DocID(internalID uint32) value.DocumentID { return s.docs[internalID] }

func (s *Segment) Filters(internalID uint32) map[string]value.Value { return s.filters[internalID] }

// Vector dequantizes and returns a stored vector, used by the compaction
// worker to rebuild DocInputs for a merged segment.
func (s *Segment) Vector(internalID uint32) []float32 { return dequantize(s.vectors[internalID]) }

func (s *Segment) Tombstoned(internalID uint32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tombstone.Contains(internalID)
}

// MarkTombstoned records a delete/update against a vector still sealed
// into this segment.
func (s *Segment) MarkTombstoned(internalID uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tombstone.Add(internalID)
}

// Search returns every live (internalID, score) pair ranked by cosine
// similarity against query, brute force. Filter pushdown and top-k
// truncation happen one layer up in Index.Query so overlay results can be
// merged in before truncating.
func (s *Segment) Search(query []float32) []scoredHit {
	hits := make([]scoredHit, 0, len(s.vectors))
	for i, qv := range s.vectors {
		if s.Tombstoned(uint32(i)) {
			continue
		}
		score := cosineSimilarity(query, dequantize(qv))
		hits = append(hits, scoredHit{internalID: uint32(i), score: score})
	}
	return hits
}

type scoredHit struct {
	internalID uint32
	score      float64
}
