package vector

import (
	"sync"

	"github.com/riftdb/rift/value"
)

type overlayEntry struct {
	vector  []float32
	filters map[string]value.Value
	deleted bool
}

// Overlay is the flat list of recently written vectors queried by
// brute-force cosine similarity, per §4.11's "overlay is a flat list of
// recent vectors".
type Overlay struct {
	mu   sync.RWMutex
	docs map[value.DocumentID]overlayEntry
}

func newOverlay() *Overlay {
	return &Overlay{docs: make(map[value.DocumentID]overlayEntry)}
}

func (o *Overlay) put(id value.DocumentID, v []float32, filters map[string]value.Value) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.docs[id] = overlayEntry{vector: v, filters: filters}
}

func (o *Overlay) delete(id value.DocumentID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.docs[id] = overlayEntry{deleted: true}
}

// search returns every live overlay vector's cosine similarity to query.
func (o *Overlay) search(query []float32) []Hit {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var hits []Hit
	for id, e := range o.docs {
		if e.deleted {
			continue
		}
		hits = append(hits, Hit{
			DocID:   id,
			Score:   cosineSimilarity(query, e.vector),
			filters: e.filters,
		})
	}
	return hits
}

// drain removes every live vector from the overlay, for sealing into a
// new segment by the flush worker.
func (o *Overlay) drain() []VecInput {
	o.mu.Lock()
	defer o.mu.Unlock()
	inputs := make([]VecInput, 0, len(o.docs))
	for id, e := range o.docs {
		if e.deleted {
			continue
		}
		inputs = append(inputs, VecInput{ID: id, Vector: e.vector, Filters: e.filters})
	}
	o.docs = make(map[value.DocumentID]overlayEntry)
	return inputs
}
