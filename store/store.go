package store

import (
	"context"

	"github.com/riftdb/rift/persist"
	"github.com/riftdb/rift/rifterr"
	"github.com/riftdb/rift/value"
)

// Store wires together every core component: persistence, the snapshot
// manager, the write log, the committer, and retention. Generalized from
// the teacher's dynamodb/ddbstore.Store (which held one *badger.DB plus a
// table/GSI schema map) into the full C1-C9 transactional core.
type Store struct {
	db        persist.Store
	reader    *Reader
	writeLog  *WriteLog
	snapshots *Manager
	committer *Committer
	retention *Retention
}

// Options configures a new Store.
type Options struct {
	WriteLogCapacity       int
	BytesPerWindow         int
	WindowSeconds          float64
	MaxUserWriteBytes      int64
	RetentionScanBatchHint int
}

// Open constructs a Store over an already-opened persistence engine,
// bootstrapping an empty initial snapshot with only the reserved bootstrap
// tables registered (§3).
func Open(db persist.Store, opts Options) *Store {
	reader := NewReader(db)
	initial := Snapshot{
		TS:        0,
		Tables:    NewTableMapping(),
		Indexes:   NewIndexRegistry(),
		Summaries: make(map[uint16]TableSummary),
		Schemas:   make(map[uint16]Schema),
		Overlays:  make(map[uint32]any),
	}
	snapshots := NewManager(initial)
	writeLog := NewWriteLog(opts.WriteLogCapacity)
	committer := NewCommitter(db, writeLog, snapshots, opts.BytesPerWindow, opts.WindowSeconds, opts.MaxUserWriteBytes)
	retention := NewRetention(db)
	s := &Store{
		db:        db,
		reader:    reader,
		writeLog:  writeLog,
		snapshots: snapshots,
		committer: committer,
		retention: retention,
	}
	committer.SetSchemaValidator(func(tableNumber uint16, v value.Value) error {
		schema, ok := s.snapshots.Latest().Schemas[tableNumber]
		if !ok {
			return nil
		}
		return schema.Validate(v)
	})
	return s
}

func (s *Store) Committer() *Committer  { return s.committer }
func (s *Store) WriteLog() *WriteLog    { return s.writeLog }
func (s *Store) Snapshots() *Manager    { return s.snapshots }
func (s *Store) Retention() *Retention  { return s.retention }
func (s *Store) Reader() *Reader        { return s.reader }
func (s *Store) Persistence() persist.Store { return s.db }

// Begin opens a new transaction pinned to the latest snapshot and a
// retention handle that holds it alive until the transaction ends.
func (s *Store) Begin(identity Identity) (*Transaction, *Handle) {
	snapshot := s.snapshots.Latest()
	handle := s.retention.Acquire(snapshot.TS)
	return New(snapshot, s.reader, s.writeLog, identity), handle
}

// Run starts the committer's actor loop; callers run it in its own
// goroutine and cancel ctx to shut down.
func (s *Store) Run(ctx context.Context) {
	s.committer.Run(ctx)
}

// CreateTable issues a create_table operation through the committer,
// which republishes the snapshot with the new table mapping and the
// table's by_id index. Table mapping mutations bypass the ordinary
// staged-write path because they change the snapshot's TableMapping
// itself, not a document; no document is written to the bootstrap
// tables, so the mapping lives only in the published snapshot.
func (s *Store) CreateTable(ctx context.Context, name string) (TableInfo, error) {
	var info TableInfo
	err := s.mutateRegistry(ctx, func(snap Snapshot) (Snapshot, error) {
		tables, created, err := snap.Tables.CreateTable(name)
		if err != nil {
			return snap, err
		}
		info = created
		snap.Tables = tables
		snap.Indexes = snap.Indexes.CreateByIDIndex(created.Number)
		snap.Summaries[created.Number] = TableSummary{InferredShape: make(map[string]value.Kind)}
		return snap, nil
	})
	return info, err
}

// CreateIndex registers a new index in Backfilling state (§3, §4.4).
func (s *Store) CreateIndex(ctx context.Context, meta IndexMeta) (IndexMeta, error) {
	var created IndexMeta
	err := s.mutateRegistry(ctx, func(snap Snapshot) (Snapshot, error) {
		indexes, m, err := snap.Indexes.CreateIndex(meta)
		if err != nil {
			return snap, err
		}
		created = m
		snap.Indexes = indexes
		return snap, nil
	})
	return created, err
}

// SetSchema binds schema to table, enforced on every subsequent commit to
// that table (§4.8 step 3). Passing a zero-value Schema clears it.
func (s *Store) SetSchema(ctx context.Context, tableName string, schema Schema) error {
	return s.mutateRegistry(ctx, func(snap Snapshot) (Snapshot, error) {
		info, ok := snap.Tables.ByName(tableName)
		if !ok {
			return snap, rifterr.BadRequest(rifterr.CodeTableDoesNotExist, "table %q not found", tableName)
		}
		snap.Schemas[info.Number] = schema
		return snap, nil
	})
}

// DeleteTable removes a table from the registry, refusing non-empty or
// system tables (§4.4).
func (s *Store) DeleteTable(ctx context.Context, name string) error {
	return s.mutateRegistry(ctx, func(snap Snapshot) (Snapshot, error) {
		info, ok := snap.Tables.ByName(name)
		if !ok {
			return snap, rifterr.BadRequest(rifterr.CodeTableDoesNotExist, "table %q does not exist", name)
		}
		if snap.Summaries[info.Number].Count != 0 {
			return snap, rifterr.BadRequest(rifterr.CodeArgumentValidationError, "table %q is not empty", name)
		}
		tables, err := snap.Tables.DeleteTable(name)
		if err != nil {
			return snap, err
		}
		snap.Tables = tables
		delete(snap.Summaries, info.Number)
		return snap, nil
	})
}

// ChangeIndexState transitions an index's phase, used by index workers.
func (s *Store) ChangeIndexState(ctx context.Context, indexID uint32, phase IndexPhase, snapshotTS int64) error {
	return s.mutateRegistry(ctx, func(snap Snapshot) (Snapshot, error) {
		indexes, err := snap.Indexes.ChangeIndexState(indexID, phase, snapshotTS)
		if err != nil {
			return snap, err
		}
		snap.Indexes = indexes
		return snap, nil
	})
}

// mutateRegistry applies fn to the latest snapshot and republishes the
// result under the committer's single-writer ordering, bumping ts by one
// the same way an ordinary document commit would.
func (s *Store) mutateRegistry(ctx context.Context, fn func(Snapshot) (Snapshot, error)) error {
	return s.committer.mutateRegistry(fn)
}
