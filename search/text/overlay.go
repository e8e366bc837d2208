package text

import (
	"sync"

	"github.com/riftdb/rift/value"
)

// overlayDoc is one document's tokenized state held in the in-memory
// overlay, for writes that landed after the newest sealed segment.
type overlayDoc struct {
	tokens       []string
	filters      map[string]value.Value
	creationTime float64
	deleted      bool
}

// Overlay holds documents written since the most recently sealed segment,
// so queries see them without waiting on the next flush (§4.10: "an
// in-memory overlay for recent writes").
type Overlay struct {
	mu   sync.RWMutex
	docs map[value.DocumentID]overlayDoc
}

func newOverlay() *Overlay {
	return &Overlay{docs: make(map[value.DocumentID]overlayDoc)}
}

func (o *Overlay) put(id value.DocumentID, tokens []string, filters map[string]value.Value, creationTime float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.docs[id] = overlayDoc{tokens: tokens, filters: filters, creationTime: creationTime}
}

func (o *Overlay) delete(id value.DocumentID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.docs[id] = overlayDoc{deleted: true}
}

// lookup returns the postings for term among overlay documents, plus each
// matching document's length, for BM25 scoring alongside segment hits.
func (o *Overlay) lookup(term string) []overlayHit {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var hits []overlayHit
	for id, d := range o.docs {
		if d.deleted {
			continue
		}
		freq := uint32(0)
		for _, t := range d.tokens {
			if t == term {
				freq++
			}
		}
		if freq > 0 {
			hits = append(hits, overlayHit{
				id:           id,
				termFreq:     freq,
				length:       uint32(len(d.tokens)),
				creationTime: d.creationTime,
				filters:      d.filters,
			})
		}
	}
	return hits
}

// snapshotStats returns the overlay's current doc count and summed length,
// for average-document-length normalization in BM25.
func (o *Overlay) snapshotStats() (count int, totalLength uint64) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, d := range o.docs {
		if d.deleted {
			continue
		}
		count++
		totalLength += uint64(len(d.tokens))
	}
	return count, totalLength
}

// drain removes every live document from the overlay and returns them as
// DocInputs ready for BuildSegment, used by the flush worker (§4.12).
func (o *Overlay) drain() []DocInput {
	o.mu.Lock()
	defer o.mu.Unlock()
	inputs := make([]DocInput, 0, len(o.docs))
	for id, d := range o.docs {
		if d.deleted {
			continue
		}
		inputs = append(inputs, DocInput{
			ID:           id,
			Tokens:       d.tokens,
			Filters:      d.filters,
			CreationTime: d.creationTime,
		})
	}
	o.docs = make(map[value.DocumentID]overlayDoc)
	return inputs
}

// isDeleted reports whether id has an explicit delete recorded in the
// overlay (as opposed to simply being absent).
func (o *Overlay) isDeleted(id value.DocumentID) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	d, ok := o.docs[id]
	return ok && d.deleted
}

type overlayHit struct {
	id           value.DocumentID
	termFreq     uint32
	length       uint32
	creationTime float64
	filters      map[string]value.Value
}
