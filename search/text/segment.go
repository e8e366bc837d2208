package text

import (
	"bytes"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/blevesearch/vellum"
	"github.com/riftdb/rift/value"
)

// Posting is one (document, term frequency) pair for a term, plus enough
// of the document's stored fields to support filtering and ordering.
type Posting struct {
	InternalID   uint32
	TermFreq     uint32
	CreationTime float64
}

// FilterDoc holds the declared filter fields' values for one document,
// used by the post-scan filter pass in §4.10 step 5.
type FilterDoc struct {
	Fields map[string]value.Value
}

// Segment is an immutable, in-memory slice of the index (segments are not
// written to persistence and do not survive a restart): a term
// dictionary (FST, grounded on the teacher pack's bleve/scorch segment
// design, which also keeps segments immutable and swaps a root pointer
// rather than mutating in place) mapping term -> offset into postings,
// plus a per-document filter-field store and a tombstone bitmap.
type Segment struct {
	BaseTS int64

	fst       *vellum.FST
	postings  [][]Posting
	docs      []value.DocumentID // internal id -> doc id
	filters   []FilterDoc        // internal id -> filter fields
	lengths   []uint32           // internal id -> token count, for BM25 normalization
	creation  []float64          // internal id -> creation time
	tombstone *roaring.Bitmap

	mu sync.RWMutex // guards only Tombstone(), which may be updated post-publish
}

// BuildSegment seals a batch of tokenized documents into an immutable
// segment. docs maps document id -> (tokens, filter fields, creation
// time); callers (the flush worker, §4.12) own batching cadence.
func BuildSegment(baseTS int64, docs []DocInput) (*Segment, error) {
	termPostings := make(map[string][]Posting)
	ids := make([]value.DocumentID, len(docs))
	filters := make([]FilterDoc, len(docs))
	lengths := make([]uint32, len(docs))
	creation := make([]float64, len(docs))

	for i, d := range docs {
		ids[i] = d.ID
		filters[i] = FilterDoc{Fields: d.Filters}
		lengths[i] = uint32(len(d.Tokens))
		creation[i] = d.CreationTime
		freq := make(map[string]uint32)
		for _, tok := range d.Tokens {
			freq[tok]++
		}
		for term, f := range freq {
			termPostings[term] = append(termPostings[term], Posting{
				InternalID:   uint32(i),
				TermFreq:     f,
				CreationTime: d.CreationTime,
			})
		}
	}

	terms := make([]string, 0, len(termPostings))
	for t := range termPostings {
		terms = append(terms, t)
	}
	sort.Strings(terms)

	postings := make([][]Posting, len(terms))
	var buf bytes.Buffer
	builder, err := vellum.New(&buf, nil)
	if err != nil {
		return nil, err
	}
	for i, t := range terms {
		postings[i] = termPostings[t]
		if err := builder.Insert([]byte(t), uint64(i)); err != nil {
			return nil, err
		}
	}
	if err := builder.Close(); err != nil {
		return nil, err
	}
	fst, err := vellum.Load(buf.Bytes())
	if err != nil {
		return nil, err
	}

	return &Segment{
		BaseTS:    baseTS,
		fst:       fst,
		postings:  postings,
		docs:      ids,
		filters:   filters,
		lengths:   lengths,
		creation:  creation,
		tombstone: roaring.New(),
	}, nil
}

// DocInput is one document fed into BuildSegment.
type DocInput struct {
	ID           value.DocumentID
	Tokens       []string
	Filters      map[string]value.Value
	CreationTime float64
}

// Lookup returns the postings for term, or nil if absent.
func (s *Segment) Lookup(term string) []Posting {
	idx, exists, err := s.fst.Get([]byte(term))
	if err != nil || !exists {
		return nil
	}
	return s.postings[idx]
}

// DocFreq is the number of documents (pre-tombstone) containing term.
func (s *Segment) DocFreq(term string) int {
	return len(s.Lookup(term))
}

// DocCount is the total number of documents sealed into this segment.
func (s *Segment) DocCount() int { return len(s.docs) }

// TotalLength sums every document's token count, for average-length BM25
// normalization.
func (s *Segment) TotalLength() uint64 {
	var total uint64
	for _, l := range s.lengths {
		total += uint64(l)
	}
	return total
}

// DocID resolves an internal id to its document id.
func (s *Segment) DocID(internalID uint32) value.DocumentID { return s.docs[internalID] }

// Length returns a document's token count.
func (s *Segment) Length(internalID uint32) uint32 { return s.lengths[internalID] }

// Filters returns a document's stored filter field values.
func (s *Segment) Filters(internalID uint32) FilterDoc { return s.filters[internalID] }

// CreationTime returns a document's recorded creation time.
func (s *Segment) CreationTime(internalID uint32) float64 { return s.creation[internalID] }

// Tombstoned reports whether internalID has been deleted since this
// segment was sealed.
func (s *Segment) Tombstoned(internalID uint32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tombstone.Contains(internalID)
}

// MarkTombstoned records a delete against a document still living in this
// sealed segment, per §4.10's "tagged ... with ... a tombstone bitmap
// keyed by doc id".
func (s *Segment) MarkTombstoned(internalID uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tombstone.Add(internalID)
}

// LiveDocCount is DocCount minus tombstoned documents.
func (s *Segment) LiveDocCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs) - int(s.tombstone.GetCardinality())
}

// Tokens reconstructs the token multiset for a document by scanning the
// term dictionary for postings referencing internalID, used by the
// compaction worker to rebuild a DocInput when merging segments (the
// segment keeps per-term postings, not a per-doc token list, so this
// walks the dictionary once per document being carried forward).
func (s *Segment) Tokens(internalID uint32) []string {
	var tokens []string
	for termIdx, postings := range s.postings {
		for _, p := range postings {
			if p.InternalID != internalID {
				continue
			}
			term := s.termAt(termIdx)
			for i := uint32(0); i < p.TermFreq; i++ {
				tokens = append(tokens, term)
			}
		}
	}
	return tokens
}

// termAt returns the term string stored at dictionary offset idx by
// scanning the FST iterator until reaching it; offsets are stable since
// segments are immutable once built.
func (s *Segment) termAt(idx int) string {
	itr, err := s.fst.Iterator(nil, nil)
	i := 0
	for err == nil {
		key, val := itr.Current()
		if int(val) == idx {
			return string(key)
		}
		i++
		err = itr.Next()
	}
	return ""
}

// Terms returns every term in this segment's dictionary, used by fuzzy
// query expansion (§4.10 step 1) to find candidates within an edit-
// distance budget of a query term.
func (s *Segment) Terms() []string {
	terms := make([]string, 0, len(s.postings))
	itr, err := s.fst.Iterator(nil, nil)
	for err == nil {
		key, _ := itr.Current()
		terms = append(terms, string(key))
		err = itr.Next()
	}
	return terms
}
