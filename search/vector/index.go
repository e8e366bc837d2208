package vector

import (
	"sort"
	"sync"

	"github.com/riftdb/rift/rifterr"
	"github.com/riftdb/rift/store"
	"github.com/riftdb/rift/value"
)

const maxLimit = 256

// Index is the live, queryable state for one vector index.
type Index struct {
	meta store.IndexMeta

	mu       sync.RWMutex
	segments []*Segment
	overlay  *Overlay

	locMu sync.Mutex
	locs  map[value.DocumentID]location
}

type location struct {
	segment *Segment
	id      uint32
}

func NewIndex(meta store.IndexMeta) *Index {
	return &Index{
		meta:    meta,
		overlay: newOverlay(),
		locs:    make(map[value.DocumentID]location),
	}
}

func (idx *Index) Meta() store.IndexMeta { return idx.meta }

// IndexWrite implements store.IndexSink.
func (idx *Index) IndexWrite(meta store.IndexMeta, w store.Write, ts int64) {
	if meta.ID != idx.meta.ID {
		return
	}
	idx.locMu.Lock()
	if loc, ok := idx.locs[w.ID]; ok {
		loc.segment.MarkTombstoned(loc.id)
		delete(idx.locs, w.ID)
	}
	idx.locMu.Unlock()

	if w.New == nil || w.New.Deleted {
		idx.overlay.delete(w.ID)
		return
	}
	fv, ok := w.New.Value.Field(idx.meta.SearchField)
	if !ok {
		idx.overlay.delete(w.ID)
		return
	}
	vec, ok := asVector(fv, idx.meta.Dimensions)
	if !ok {
		idx.overlay.delete(w.ID)
		return
	}
	filters := make(map[string]value.Value, len(idx.meta.FilterFields))
	for _, f := range idx.meta.FilterFields {
		if v, ok := w.New.Value.Field(f); ok {
			filters[f] = v
		}
	}
	idx.overlay.put(w.ID, vec, filters)
}

// asVector extracts a []float32 of the expected dimensionality from a
// stored array value.
func asVector(v value.Value, dimensions int) ([]float32, bool) {
	elems, ok := v.AsElements()
	if !ok || len(elems) != dimensions {
		return nil, false
	}
	out := make([]float32, len(elems))
	for i, e := range elems {
		f, ok := e.AsFloat64()
		if !ok {
			i64, ok := e.AsInt64()
			if !ok {
				return nil, false
			}
			f = float64(i64)
		}
		out[i] = float32(f)
	}
	return out, true
}

// AppendSegment publishes a segment built outside the overlay flush path
// (the backfill and compaction workers), mirroring
// search/text.Index.AppendSegment.
func (idx *Index) AppendSegment(seg *Segment, ids []value.DocumentID) {
	idx.mu.Lock()
	idx.segments = append(idx.segments, seg)
	idx.mu.Unlock()

	idx.locMu.Lock()
	for i, id := range ids {
		idx.locs[id] = location{segment: seg, id: uint32(i)}
	}
	idx.locMu.Unlock()
}

// Segments returns a snapshot of the currently published segment stack.
func (idx *Index) Segments() []*Segment {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return append([]*Segment(nil), idx.segments...)
}

// ReplaceSegments atomically swaps old segments for one merged
// replacement.
func (idx *Index) ReplaceSegments(old []*Segment, replacement *Segment, ids []value.DocumentID) {
	oldSet := make(map[*Segment]bool, len(old))
	for _, s := range old {
		oldSet[s] = true
	}
	idx.mu.Lock()
	kept := idx.segments[:0:0]
	for _, s := range idx.segments {
		if !oldSet[s] {
			kept = append(kept, s)
		}
	}
	idx.segments = append(kept, replacement)
	idx.mu.Unlock()

	idx.locMu.Lock()
	for i, id := range ids {
		idx.locs[id] = location{segment: replacement, id: uint32(i)}
	}
	idx.locMu.Unlock()
}

// Flush seals the overlay into a new segment.
func (idx *Index) Flush() error {
	inputs := idx.overlay.drain()
	if len(inputs) == 0 {
		return nil
	}
	seg := BuildSegment(idx.meta.Dimensions, inputs)
	idx.mu.Lock()
	idx.segments = append(idx.segments, seg)
	idx.mu.Unlock()

	idx.locMu.Lock()
	for i, in := range inputs {
		idx.locs[in.ID] = location{segment: seg, id: uint32(i)}
	}
	idx.locMu.Unlock()
	return nil
}

// Hit is one scored query result.
type Hit struct {
	DocID   value.DocumentID
	Score   float64
	filters map[string]value.Value
}

// Query validates query against this index's declared dimensions and
// filter fields, computes top-k cosine similarity across every segment
// and the overlay, merges by score, and truncates to limit (capped at
// maxLimit), per §4.11.
func (idx *Index) Query(query []float32, filters map[string][]value.Value, limit int) ([]Hit, error) {
	if len(query) != idx.meta.Dimensions {
		return nil, rifterr.BadRequest(rifterr.CodeArgumentValidationError,
			"query vector has %d dimensions, index expects %d", len(query), idx.meta.Dimensions)
	}
	for field := range filters {
		if !declaredFilterField(idx.meta.FilterFields, field) {
			return nil, rifterr.BadRequest(rifterr.CodeIncorrectVectorFilterField,
				"filter field %q is not declared on this index", field)
		}
	}
	if limit <= 0 || limit > maxLimit {
		limit = maxLimit
	}

	idx.mu.RLock()
	segments := append([]*Segment(nil), idx.segments...)
	idx.mu.RUnlock()

	var all []Hit
	for _, seg := range segments {
		for _, h := range seg.Search(query) {
			if seg.Tombstoned(h.internalID) {
				continue
			}
			fv := seg.Filters(h.internalID)
			if !matchesFilters(fv, filters) {
				continue
			}
			all = append(all, Hit{DocID: seg.DocID(h.internalID), Score: h.score, filters: fv})
		}
	}
	for _, h := range idx.overlay.search(query) {
		if !matchesFilters(h.filters, filters) {
			continue
		}
		all = append(all, h)
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		return all[i].DocID.Less(all[j].DocID)
	})
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func declaredFilterField(declared []string, field string) bool {
	for _, f := range declared {
		if f == field {
			return true
		}
	}
	return false
}

// matchesFilters applies §4.11's conjunction-of-fields, OR-within-field
// (set membership) filter semantics: doc must have every field in want,
// and its value must equal at least one of that field's allowed values.
func matchesFilters(doc map[string]value.Value, want map[string][]value.Value) bool {
	for k, allowed := range want {
		dv, ok := doc[k]
		if !ok {
			return false
		}
		matched := false
		for _, v := range allowed {
			if value.Compare(dv, v) == 0 {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}
