package store

import (
	"context"
	"sync"
	"time"

	"github.com/riftdb/rift/metrics"
	"github.com/riftdb/rift/persist"
	"github.com/riftdb/rift/rifterr"
	"github.com/riftdb/rift/value"
	"golang.org/x/time/rate"
)

// IndexDelta is one index-entry change produced by materializing a staged
// write against a live index, per §4.8 step 4.
type IndexDelta struct {
	IndexID uint32
	Key     []byte // order-preserving key, including the document id suffix
	DocID   value.DocumentID
	Deleted bool
}

// IndexSink receives every write touching a text or vector index so their
// segment/overlay structures (owned by search/text, search/vector) stay
// current; database indexes are materialized directly by the committer
// into persistence and need no sink.
type IndexSink interface {
	IndexWrite(meta IndexMeta, w Write, ts int64)
}

// SchemaValidator enforces the schema bound to a table, if any (§4.8
// step 3). Returning nil means the write is accepted.
type SchemaValidator func(tableNumber uint16, v value.Value) error

// Committer is the §4.8 single-writer actor serializing all commits.
type Committer struct {
	db        persist.Store
	writeLog  *WriteLog
	snapshots *Manager
	limiter   *rate.Limiter
	validator SchemaValidator

	sinksMu sync.RWMutex
	sinks   map[IndexKind]IndexSink

	reqCh chan *commitRequest

	tsMu   sync.Mutex
	nextTS int64

	maxWriteBytes int64
}

type commitRequest struct {
	txn    *Transaction
	respCh chan commitResult
}

type commitResult struct {
	ts  int64
	err error
}

// NewCommitter constructs a Committer. bytesPerWindow/window configure the
// write throughput limiter from §4.8; maxUserWriteBytes enforces
// TRANSACTION_MAX_USER_WRITE_SIZE_BYTES.
func NewCommitter(db persist.Store, writeLog *WriteLog, snapshots *Manager, bytesPerWindow int, windowSeconds float64, maxUserWriteBytes int64) *Committer {
	limit := rate.Limit(float64(bytesPerWindow) / windowSeconds)
	return &Committer{
		db:            db,
		writeLog:      writeLog,
		snapshots:     snapshots,
		limiter:       rate.NewLimiter(limit, bytesPerWindow),
		sinks:         make(map[IndexKind]IndexSink),
		reqCh:         make(chan *commitRequest, 256),
		nextTS:        snapshots.Latest().TS,
		maxWriteBytes: maxUserWriteBytes,
	}
}

// SetSchemaValidator installs the schema-enforcement hook.
func (c *Committer) SetSchemaValidator(v SchemaValidator) { c.validator = v }

// RegisterSink wires a text/vector index's overlay updater into commits.
func (c *Committer) RegisterSink(kind IndexKind, sink IndexSink) {
	c.sinksMu.Lock()
	defer c.sinksMu.Unlock()
	c.sinks[kind] = sink
}

// Run drives the single committer goroutine until ctx is canceled, the
// "explicit task + bounded channel" actor shape from §9 Design Notes.
func (c *Committer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-c.reqCh:
			ts, err := c.process(req.txn)
			req.respCh <- commitResult{ts: ts, err: err}
		}
	}
}

// Submit hands a transaction to the committer and blocks for the result,
// the queue producers (Transaction.Commit, scheduler, admin tools) go
// through. Returns RejectedBeforeExecution if the bounded queue is full.
func (c *Committer) Submit(ctx context.Context, txn *Transaction) (int64, error) {
	req := &commitRequest{txn: txn, respCh: make(chan commitResult, 1)}
	select {
	case c.reqCh <- req:
	default:
		return 0, rifterr.AsRejectedBeforeExecution(rifterr.RejectedBeforeExecution("committer queue is full"))
	}
	select {
	case res := <-req.respCh:
		return res.ts, res.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (c *Committer) process(txn *Transaction) (int64, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.CommitDuration)

	writes := txn.stagedWrites()
	if len(writes) == 0 {
		return txn.snapshot.TS, nil
	}

	totalBytes := int64(0)
	for _, w := range writes {
		if w.New != nil {
			totalBytes += int64(len(value.EncodeDoc(w.New.Value)))
		}
	}
	if c.maxWriteBytes > 0 && totalBytes > c.maxWriteBytes {
		return 0, rifterr.BadRequest(rifterr.CodeArgumentValidationError,
			"commit writes %d bytes, exceeds the %d byte cap", totalBytes, c.maxWriteBytes)
	}
	if !c.limiter.AllowN(time.Now(), int(totalBytes)) {
		return 0, rifterr.Overloaded("write throughput limiter rejected a %d byte commit", totalBytes)
	}

	c.tsMu.Lock()
	defer c.tsMu.Unlock()

	commitTS := c.nextTS + 1
	if commitTS <= txn.snapshot.TS {
		commitTS = txn.snapshot.TS + 1
	}

	if err := c.validateOCC(txn, commitTS); err != nil {
		metrics.OCCFailuresTotal.Inc()
		return 0, err
	}

	if c.validator != nil {
		for _, w := range writes {
			if w.New == nil {
				continue
			}
			if err := c.validator(w.ID.TableNumber(), w.New.Value); err != nil {
				return 0, err
			}
		}
	}

	snapshot := c.snapshots.Latest()
	deltas := c.materializeIndexDeltas(snapshot, writes)

	if err := c.persist(snapshot, writes, deltas, commitTS); err != nil {
		return 0, err
	}

	c.nextTS = commitTS
	batch := Batch{TS: commitTS, Writes: writes, IndexDeltas: deltas}
	c.writeLog.Append(batch)

	next := snapshot.withCommit(commitTS, writes, snapshot.Tables, snapshot.Indexes)
	c.snapshots.Publish(next)

	c.dispatchSinks(snapshot, writes, commitTS)

	metrics.CommitsTotal.Inc()
	return commitTS, nil
}

// mutateRegistry serializes a table/index registry mutation behind the
// same single-writer lock as ordinary commits, bumping ts exactly like a
// document write would (§4.4: registry mutations are "ordinary writes to
// the bootstrap tables" as far as ordering is concerned).
func (c *Committer) mutateRegistry(fn func(Snapshot) (Snapshot, error)) error {
	c.tsMu.Lock()
	defer c.tsMu.Unlock()

	snapshot := c.snapshots.Latest()
	next, err := fn(snapshot)
	if err != nil {
		return err
	}
	commitTS := c.nextTS + 1
	next.TS = commitTS
	c.nextTS = commitTS
	c.writeLog.Append(Batch{TS: commitTS})
	c.snapshots.Publish(next)
	return nil
}

func (c *Committer) validateOCC(txn *Transaction, commitTS int64) error {
	batches, err := c.writeLog.Range(txn.snapshot.TS, commitTS-1)
	if err != nil {
		return err
	}
	for _, b := range batches {
		for _, w := range b.Writes {
			if txn.reads.Intersects(w, nil) {
				return rifterr.OCC("read set conflicts with a write committed at ts %d", b.TS)
			}
		}
	}
	for _, r := range txn.reads.Ranges {
		for _, b := range batches {
			for _, d := range b.IndexDeltas {
				if d.IndexID == r.IndexID && keyInRange(d.Key, r.Range) {
					return rifterr.OCC("index range conflicts with a write committed at ts %d", b.TS)
				}
			}
		}
	}
	return nil
}

func (c *Committer) materializeIndexDeltas(snapshot Snapshot, writes []Write) []IndexDelta {
	var deltas []IndexDelta
	byTable := make(map[uint16][]Write)
	for _, w := range writes {
		byTable[w.ID.TableNumber()] = append(byTable[w.ID.TableNumber()], w)
	}
	for tn, ws := range byTable {
		for _, meta := range snapshot.Indexes.OnTable(tn) {
			if meta.Kind != IndexKindDatabase {
				continue
			}
			for _, w := range ws {
				if w.Old != nil {
					if key, ok := buildIndexKey(meta, w.Old.Value, w.ID); ok {
						deltas = append(deltas, IndexDelta{IndexID: meta.ID, Key: key, DocID: w.ID, Deleted: true})
					}
				}
				if w.New != nil {
					if key, ok := buildIndexKey(meta, w.New.Value, w.ID); ok {
						deltas = append(deltas, IndexDelta{IndexID: meta.ID, Key: key, DocID: w.ID, Deleted: false})
					}
				}
			}
		}
	}
	return deltas
}

// buildIndexKey computes the order-preserving key for a database index,
// per §3: each declared field's encoding in order, then the document id.
func buildIndexKey(meta IndexMeta, v value.Value, id value.DocumentID) ([]byte, bool) {
	if meta.Name == ByIDIndexName {
		return value.EncodeIndexKey(id.AsValue()), true
	}
	var key []byte
	for _, field := range meta.Fields {
		fv, ok := v.Field(field)
		if !ok {
			fv = value.Null()
		}
		key = append(key, value.EncodeIndexKey(fv)...)
	}
	key = append(key, value.EncodeIndexKey(id.AsValue())...)
	return key, true
}

func (c *Committer) persist(snapshot Snapshot, writes []Write, deltas []IndexDelta, ts int64) error {
	return persist.Update(c.db, func(txn persist.Txn) error {
		for _, w := range writes {
			info, ok := snapshot.Tables.ByNumber(w.ID.TableNumber())
			if !ok {
				return rifterr.Corrupt(nil, "table number %d missing from snapshot during commit", w.ID.TableNumber())
			}
			var doc Document
			if w.New != nil {
				doc = *w.New
			} else {
				doc = Document{ID: w.ID, Deleted: true}
				if w.Old != nil {
					doc.CreationTime = w.Old.CreationTime
				}
			}
			if err := txn.Set(docKey(info.TabletID, w.ID, ts), encodeDocValue(doc)); err != nil {
				return err
			}
		}
		for _, d := range deltas {
			val := encodeIndexValue(IndexEntryValue{DocID: d.DocID, Deleted: d.Deleted})
			if err := txn.Set(indexKey(d.IndexID, d.Key, ts), val); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *Committer) dispatchSinks(snapshot Snapshot, writes []Write, ts int64) {
	c.sinksMu.RLock()
	defer c.sinksMu.RUnlock()
	byTable := make(map[uint16][]Write)
	for _, w := range writes {
		byTable[w.ID.TableNumber()] = append(byTable[w.ID.TableNumber()], w)
	}
	for tn, ws := range byTable {
		for _, meta := range snapshot.Indexes.OnTable(tn) {
			sink, ok := c.sinks[meta.Kind]
			if !ok {
				continue
			}
			for _, w := range ws {
				sink.IndexWrite(meta, w, ts)
			}
		}
	}
}
