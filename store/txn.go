package store

import (
	"bytes"
	"context"
	"sort"

	"github.com/riftdb/rift/rifterr"
	"github.com/riftdb/rift/value"
)

// Identity is the caller identity attached to a transaction, opaque to the
// core beyond carrying it through to authorization checks performed by
// callers outside this module's scope (§1 "auth-provider adapters").
type Identity struct {
	Subject string
}

// KeyRange is an inclusive range over order-preserving encoded index keys.
type KeyRange struct {
	Lo, Hi []byte
}

// indexRead is one range read recorded in a transaction's read set.
type indexRead struct {
	IndexID uint32
	Range   KeyRange
}

// ReadSet is the §4.7 growing record of everything a transaction observed:
// point reads by document id, and range reads by (index_id, key_range).
type ReadSet struct {
	Points map[value.DocumentID]struct{}
	Ranges []indexRead
}

func newReadSet() ReadSet {
	return ReadSet{Points: make(map[value.DocumentID]struct{})}
}

// Intersects reports whether w touches any span in the read set, the
// predicate the committer's OCC validation and the subscription engine's
// invalidation both evaluate (§4.8 step 2, §4.9).
func (rs ReadSet) Intersects(w Write, deltas []IndexDelta) bool {
	if _, ok := rs.Points[w.ID]; ok {
		return true
	}
	for _, d := range deltas {
		for _, r := range rs.Ranges {
			if r.IndexID == d.IndexID && keyInRange(d.Key, r.Range) {
				return true
			}
		}
	}
	return false
}

func keyInRange(key []byte, r KeyRange) bool {
	return bytesCompare(key, r.Lo) >= 0 && bytesCompare(key, r.Hi) <= 0
}

func bytesCompare(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

type stagedWrite struct {
	TableNumber uint16
	Old         *Document
	New         *Document // nil means delete
}

// Token is a frozen read set plus the ts at which it was observed (§4.7
// into_token, GLOSSARY "Token"), used to subscribe for invalidation.
type Token struct {
	TS      int64
	ReadSet ReadSet
}

// Transaction is the §4.7 unit of work: a read snapshot, a growing read
// set, a staged write set, the caller identity, and a usage counter.
type Transaction struct {
	snapshot Snapshot
	reader   *Reader
	writeLog *WriteLog
	identity Identity

	reads  ReadSet
	writes map[value.DocumentID]*stagedWrite

	bytesRead    int64
	bytesWritten int64
}

// New starts a transaction pinned to snapshot. writeLog may be nil for
// callers that never use DocumentDeltas (e.g. isolated tests).
func New(snapshot Snapshot, reader *Reader, writeLog *WriteLog, identity Identity) *Transaction {
	return &Transaction{
		snapshot: snapshot,
		reader:   reader,
		writeLog: writeLog,
		identity: identity,
		reads:    newReadSet(),
		writes:   make(map[value.DocumentID]*stagedWrite),
	}
}

func (t *Transaction) Snapshot() Snapshot { return t.snapshot }
func (t *Transaction) Identity() Identity { return t.identity }

// Get resolves id, preferring a locally staged write (read-your-own-writes,
// §4.7 invariant) before falling back to the persisted snapshot.
func (t *Transaction) Get(id value.DocumentID) (*Document, error) {
	t.reads.Points[id] = struct{}{}
	if sw, ok := t.writes[id]; ok {
		return sw.New, nil
	}
	info, ok := t.snapshot.Tables.ByNumber(id.TableNumber())
	if !ok {
		return nil, rifterr.BadRequest(rifterr.CodeTableDoesNotExist, "table number %d not found", id.TableNumber())
	}
	doc, err := t.reader.LoadDocument(id, info.TabletID, t.snapshot.TS)
	if err != nil {
		return nil, err
	}
	if doc != nil {
		t.bytesRead += int64(len(value.EncodeDoc(doc.Value)))
	}
	return doc, nil
}

// GetIndexRange resolves a database-index range read, merging staged
// writes over the persisted result (read-your-own-writes).
func (t *Transaction) GetIndexRange(indexID uint32, r KeyRange, reverse bool, limit int) ([]*Document, error) {
	t.reads.Ranges = append(t.reads.Ranges, indexRead{IndexID: indexID, Range: r})
	hits, err := t.reader.LoadIndexRange(indexID, r.Lo, r.Hi, t.snapshot.TS, reverse, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*Document, 0, len(hits))
	for _, h := range hits {
		doc, err := t.Get(h.DocID)
		if err != nil {
			return nil, err
		}
		if doc != nil {
			out = append(out, doc)
		}
	}
	return out, nil
}

// Count returns the table summary's live document count, merged with any
// locally staged inserts/deletes not yet reflected in the summary.
func (t *Transaction) Count(tableNumber uint16) int64 {
	count := t.snapshot.Summaries[tableNumber].Count
	for id, sw := range t.writes {
		if id.TableNumber() != tableNumber {
			continue
		}
		switch {
		case sw.Old == nil && sw.New != nil:
			count++
		case sw.Old != nil && sw.New == nil:
			count--
		}
	}
	return count
}

// unboundedHi upper-bounds a full-table by_id scan, mirroring
// indexworker's unboundedHi for the same purpose.
var unboundedHi = bytes.Repeat([]byte{0xFF}, 64)

// Page is one page of a ListSnapshot scan (§6 list_snapshot).
type Page struct {
	Documents []*Document
	Cursor    []byte // pass back as the next call's cursor; nil means no more pages
}

// ListSnapshot pages through every live document in table in by_id index
// order, for streaming export (§6 list_snapshot(cursor, filter, page_size)).
func (t *Transaction) ListSnapshot(tableName string, cursor []byte, pageSize int) (Page, error) {
	info, ok := t.snapshot.Tables.ByName(tableName)
	if !ok {
		return Page{}, rifterr.BadRequest(rifterr.CodeTableDoesNotExist, "table %q not found", tableName)
	}
	idx, ok := t.snapshot.Indexes.ByName(info.Number, ByIDIndexName)
	if !ok {
		return Page{}, rifterr.Bug("table %q missing its by_id index", tableName)
	}
	lo := cursor
	if lo == nil {
		lo = []byte{}
	}
	t.reads.Ranges = append(t.reads.Ranges, indexRead{IndexID: idx.ID, Range: KeyRange{Lo: lo, Hi: unboundedHi}})
	hits, err := t.reader.LoadIndexRange(idx.ID, lo, unboundedHi, t.snapshot.TS, false, pageSize+2)
	if err != nil {
		return Page{}, err
	}
	// A cursor is the key of the last document returned by the previous
	// page; LoadIndexRange's range is inclusive, so that document reappears
	// as the first hit here and must be dropped.
	if len(cursor) > 0 && len(hits) > 0 && bytes.Equal(hits[0].Key, cursor) {
		hits = hits[1:]
	}
	more := len(hits) > pageSize
	if more {
		hits = hits[:pageSize]
	}
	docs := make([]*Document, 0, len(hits))
	for _, h := range hits {
		doc, err := t.Get(h.DocID)
		if err != nil {
			return Page{}, err
		}
		if doc != nil {
			docs = append(docs, doc)
		}
	}
	page := Page{Documents: docs}
	if more && len(hits) > 0 {
		page.Cursor = append([]byte(nil), hits[len(hits)-1].Key...)
	}
	return page, nil
}

// DocumentDelta is one changed document exposed by DocumentDeltas, tagged
// with the commit ts it changed at.
type DocumentDelta struct {
	TS    int64
	Write Write
}

// DocumentDeltas streams every write committed in (fromTS, current snapshot
// ts] on table, for streaming export (§6 document_deltas(from_ts, filter)).
// Returns LogGap if fromTS predates what the write log still retains.
func (t *Transaction) DocumentDeltas(fromTS int64, tableName string) ([]DocumentDelta, error) {
	info, ok := t.snapshot.Tables.ByName(tableName)
	if !ok {
		return nil, rifterr.BadRequest(rifterr.CodeTableDoesNotExist, "table %q not found", tableName)
	}
	if t.writeLog == nil {
		return nil, rifterr.Bug("transaction has no write log attached")
	}
	batches, err := t.writeLog.Range(fromTS, t.snapshot.TS)
	if err != nil {
		return nil, err
	}
	var out []DocumentDelta
	for _, b := range batches {
		for _, w := range b.Writes {
			if w.ID.TableNumber() == info.Number {
				out = append(out, DocumentDelta{TS: b.TS, Write: w})
			}
		}
	}
	return out, nil
}

func (t *Transaction) stage(id value.DocumentID, tableNumber uint16, old, newDoc *Document) {
	t.writes[id] = &stagedWrite{TableNumber: tableNumber, Old: old, New: newDoc}
	if newDoc != nil {
		t.bytesWritten += int64(len(value.EncodeDoc(newDoc.Value)))
	}
}

// Insert validates v and stages a new document on table.
func (t *Transaction) Insert(tableName string, id value.DocumentID, v value.Value) error {
	if err := value.Validate(v); err != nil {
		return err
	}
	info, ok := t.snapshot.Tables.ByName(tableName)
	if !ok {
		return rifterr.BadRequest(rifterr.CodeTableDoesNotExist, "table %q not found", tableName)
	}
	doc := &Document{ID: id, CreationTime: float64(t.snapshot.TS), Value: v}
	t.stage(id, info.Number, nil, doc)
	return nil
}

// Replace overwrites an existing document's value wholesale.
func (t *Transaction) Replace(id value.DocumentID, v value.Value) error {
	if err := value.Validate(v); err != nil {
		return err
	}
	old, err := t.Get(id)
	if err != nil {
		return err
	}
	if old == nil {
		return rifterr.BadRequest(rifterr.CodeInvalidId, "document %s does not exist", id)
	}
	newDoc := &Document{ID: id, CreationTime: old.CreationTime, Value: v}
	t.stage(id, id.TableNumber(), old, newDoc)
	return nil
}

// Patch merges fields into an existing object-typed document, replacing
// exactly the named top-level fields and leaving others untouched.
func (t *Transaction) Patch(id value.DocumentID, fields []value.Field) error {
	old, err := t.Get(id)
	if err != nil {
		return err
	}
	if old == nil {
		return rifterr.BadRequest(rifterr.CodeInvalidId, "document %s does not exist", id)
	}
	existing, _ := old.Value.AsFields()
	merged := make(map[string]value.Value, len(existing)+len(fields))
	for _, f := range existing {
		merged[f.Key] = f.Val
	}
	for _, f := range fields {
		merged[f.Key] = f.Val
	}
	newVal := value.Object(mapToFields(merged)...)
	if err := value.Validate(newVal); err != nil {
		return err
	}
	newDoc := &Document{ID: id, CreationTime: old.CreationTime, Value: newVal}
	t.stage(id, id.TableNumber(), old, newDoc)
	return nil
}

// mapToFields sorts by key, mirroring value.Map's determinism, so that two
// Patch calls over the same logical field set produce byte-identical
// documents regardless of Go's randomized map iteration order.
func mapToFields(m map[string]value.Value) []value.Field {
	out := make([]value.Field, 0, len(m))
	for k, v := range m {
		out = append(out, value.Field{Key: k, Val: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Delete tombstones an existing document.
func (t *Transaction) Delete(id value.DocumentID) error {
	old, err := t.Get(id)
	if err != nil {
		return err
	}
	if old == nil {
		return rifterr.BadRequest(rifterr.CodeInvalidId, "document %s does not exist", id)
	}
	t.stage(id, id.TableNumber(), old, nil)
	return nil
}

// Commit hands this transaction to committer and blocks for the result.
func (t *Transaction) Commit(ctx context.Context, committer *Committer) (int64, error) {
	return committer.Submit(ctx, t)
}

// IntoToken freezes the current read set into a subscription Token (§4.7).
func (t *Transaction) IntoToken() Token {
	return Token{TS: t.snapshot.TS, ReadSet: t.reads}
}

// stagedWrites returns every staged change as a Write, in no particular
// order, for handoff to the committer.
func (t *Transaction) stagedWrites() []Write {
	out := make([]Write, 0, len(t.writes))
	for id, sw := range t.writes {
		out = append(out, Write{ID: id, Old: sw.Old, New: sw.New})
	}
	return out
}
