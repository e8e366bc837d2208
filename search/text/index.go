package text

import (
	"container/heap"
	"sync"

	"github.com/riftdb/rift/store"
	"github.com/riftdb/rift/value"
)

// Phase mirrors the text index's own lifecycle on top of store.IndexPhase:
// Backfilling accumulates partial segments while a backfill worker walks
// the table, Backfilled means the worker finished but the index isn't
// serving queries yet, and SnapshottedAt(ts) is what store.IndexMeta.Phase
// will read once this Index is published live (§4.10 state machine).
type Phase = store.IndexPhase

// Index is the live, queryable state for one text index: an ordered
// stack of immutable segments plus a mutable overlay for writes that
// landed since the newest segment was sealed.
type Index struct {
	meta store.IndexMeta

	mu       sync.RWMutex
	segments []*Segment // oldest first
	overlay  *Overlay

	locMu sync.Mutex
	locs  map[value.DocumentID]location
}

type location struct {
	segment *Segment
	id      uint32
}

// NewIndex constructs an empty text index for meta, to be populated by a
// backfill worker and kept current via IndexWrite.
func NewIndex(meta store.IndexMeta) *Index {
	return &Index{
		meta:    meta,
		overlay: newOverlay(),
		locs:    make(map[value.DocumentID]location),
	}
}

// Meta returns the store.IndexMeta this index was built for.
func (idx *Index) Meta() store.IndexMeta { return idx.meta }

// IndexWrite implements store.IndexSink, keeping the overlay current with
// every committed write touching this index's table (§4.8's sink
// dispatch, §4.10's overlay description).
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
	text, ok := fv.AsString()
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
	idx.overlay.put(w.ID, Tokenize(text), filters, w.New.CreationTime)
}

// AppendSegment publishes a segment built outside the overlay flush path
// (the backfill and compaction workers both build segments directly),
// recording each sealed document's location for future tombstoning.
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

// Segments returns a snapshot of the currently published segment stack,
// used by the compaction worker to pick merge candidates.
func (idx *Index) Segments() []*Segment {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return append([]*Segment(nil), idx.segments...)
}

// ReplaceSegments atomically swaps a set of old segments for one merged
// replacement, the "replacement + atomic metadata swap" policy from §5's
// shared-resource section.
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

// Flush seals the overlay's current contents into a new segment at ts,
// the §4.12 flush worker's operation. Sealed documents are recorded in
// locs so a later update/delete can find and tombstone them.
func (idx *Index) Flush(ts int64) error {
	inputs := idx.overlay.drain()
	if len(inputs) == 0 {
		return nil
	}
	seg, err := BuildSegment(ts, inputs)
	if err != nil {
		return err
	}
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
	DocID value.DocumentID
	Score float64
}

// Query runs a BM25-ranked search for q across every sealed segment plus
// the overlay, applying filters and an edit-distance query-term expansion
// (§4.10 steps 1-5), returning at most limit hits ordered by
// (score desc, creation_time desc, doc id) as the tie-break named there.
func (idx *Index) Query(q string, filters map[string][]value.Value, limit int) []Hit {
	if limit <= 0 || limit > 256 {
		limit = 256
	}
	terms := idx.expandTerms(Tokenize(q))
	if len(terms) == 0 {
		return nil
	}

	idx.mu.RLock()
	segments := append([]*Segment(nil), idx.segments...)
	idx.mu.RUnlock()

	docCount, totalLength := idx.overlay.snapshotStats()
	for _, seg := range segments {
		docCount += seg.LiveDocCount()
		totalLength += seg.TotalLength()
	}
	avgLength := 1.0
	if docCount > 0 {
		avgLength = float64(totalLength) / float64(docCount)
	}

	scores := make(map[value.DocumentID]float64)
	creation := make(map[value.DocumentID]float64)
	fieldCache := make(map[value.DocumentID]map[string]value.Value)

	for _, term := range terms {
		docFreq := idx.overlay.docFreqFor(term)
		for _, seg := range segments {
			docFreq += seg.DocFreq(term)
		}

		for _, h := range idx.overlay.lookup(term) {
			scores[h.id] += scoreBM25(h.termFreq, h.length, docFreq, docCount, avgLength)
			creation[h.id] = h.creationTime
			fieldCache[h.id] = h.filters
		}
		for _, seg := range segments {
			for _, p := range seg.Lookup(term) {
				if seg.Tombstoned(p.InternalID) {
					continue
				}
				docID := seg.DocID(p.InternalID)
				scores[docID] += scoreBM25(p.TermFreq, seg.Length(p.InternalID), docFreq, docCount, avgLength)
				creation[docID] = p.CreationTime
				fieldCache[docID] = seg.Filters(p.InternalID).Fields
			}
		}
	}

	var candidates []Hit
	for id, sc := range scores {
		if !matchesFilters(fieldCache[id], filters) {
			continue
		}
		candidates = append(candidates, Hit{DocID: id, Score: sc})
	}

	h := &hitHeap{creation: creation}
	for _, c := range candidates {
		heap.Push(h, c)
		if h.Len() > limit {
			heap.Pop(h)
		}
	}
	out := make([]Hit, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(Hit)
	}
	return out
}

// expandTerms adds, for each query term, any indexed term within edit
// distance 2, the fuzzy-match budget from §4.10 step 1. Candidate terms
// are drawn from the newest segment's dictionary as a practical bound;
// exact terms always match regardless of segment membership.
func (idx *Index) expandTerms(base []string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	add := func(t string) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, t := range base {
		add(t)
	}
	if len(idx.segments) == 0 {
		return out
	}
	newest := idx.segments[len(idx.segments)-1]
	for _, t := range base {
		for _, candidate := range newest.Terms() {
			if !seen[candidate] && editDistance(t, candidate) <= 2 {
				add(candidate)
			}
		}
	}
	return out
}

// matchesFilters applies the conjunction-of-fields, OR-within-field (set
// membership) filter semantics §4.11 specifies for vector queries and
// this package applies identically to its own post-scan filter step
// (§4.10 step 5).
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

// docFreqFor is a small overlay helper kept here (rather than on Overlay)
// since it only matters for scoring.
func (o *Overlay) docFreqFor(term string) int {
	return len(o.lookup(term))
}

// hitHeap is a min-heap over Hit ordered by (score asc, creation_time asc,
// doc id), so popping the minimum repeatedly and keeping size <= limit
// yields the top-limit results by the descending order §4.10 specifies.
type hitHeap struct {
	items    []Hit
	creation map[value.DocumentID]float64
}

func (h *hitHeap) Len() int { return len(h.items) }
func (h *hitHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	ca, cb := h.creation[a.DocID], h.creation[b.DocID]
	if ca != cb {
		return ca < cb
	}
	return a.DocID.Less(b.DocID)
}
func (h *hitHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *hitHeap) Push(x any)    { h.items = append(h.items, x.(Hit)) }
func (h *hitHeap) Pop() any {
	old := h.items
	n := len(old)
	x := old[n-1]
	h.items = old[:n-1]
	return x
}

