package store

import (
	"github.com/riftdb/rift/rifterr"
)

// IndexKind distinguishes the three index sum-type variants from §3.
type IndexKind int

const (
	IndexKindDatabase IndexKind = iota
	IndexKindText
	IndexKindVector
)

func (k IndexKind) String() string {
	switch k {
	case IndexKindDatabase:
		return "database"
	case IndexKindText:
		return "text"
	case IndexKindVector:
		return "vector"
	default:
		return "unknown"
	}
}

// IndexPhase is the state machine position for an index, collapsing the
// per-kind state machines from §3/§4.10/§4.11 into one enum: database
// indexes only ever occupy Backfilling/Backfilled/Enabled; text/vector
// additionally use SnapshottedAt.
type IndexPhase int

const (
	PhaseBackfilling IndexPhase = iota
	PhaseBackfilled
	PhaseEnabled
	PhaseSnapshottedAt
)

func (p IndexPhase) String() string {
	switch p {
	case PhaseBackfilling:
		return "Backfilling"
	case PhaseBackfilled:
		return "Backfilled"
	case PhaseEnabled:
		return "Enabled"
	case PhaseSnapshottedAt:
		return "SnapshottedAt"
	default:
		return "Unknown"
	}
}

// ByIDIndexName is the reserved index every table always has, per §3's
// invariant "a table's by_id index always exists and is Enabled".
const ByIDIndexName = "by_id"

// IndexMeta is one entry of the index registry: the sum type from §3,
// flattened into one struct with kind-tagged fields.
type IndexMeta struct {
	ID           uint32
	Name         string
	TableNumber  uint16
	Kind         IndexKind
	Fields       []string // Database
	SearchField  string   // Text
	FilterFields []string // Text, Vector
	Dimensions   int       // Vector, in [2,4096]
	Phase        IndexPhase

	// BackfillCursor is the last document id the backfill worker has
	// processed, persisted so the worker resumes after restart.
	BackfillCursor *[16]byte
	// SnapshotTS is the ts at which a Backfilled/SnapshottedAt index's
	// segments are valid.
	SnapshotTS int64
}

// IndexRegistry is the copy-on-write mapping of index metadata, held
// alongside the TableMapping inside every Snapshot.
type IndexRegistry struct {
	byID        map[uint32]IndexMeta
	byTableName map[uint16]map[string]uint32
	nextID      uint32
}

func NewIndexRegistry() IndexRegistry {
	return IndexRegistry{
		byID:        make(map[uint32]IndexMeta),
		byTableName: make(map[uint16]map[string]uint32),
		nextID:      1,
	}
}

func (ir IndexRegistry) clone() IndexRegistry {
	out := IndexRegistry{
		byID:        make(map[uint32]IndexMeta, len(ir.byID)),
		byTableName: make(map[uint16]map[string]uint32, len(ir.byTableName)),
		nextID:      ir.nextID,
	}
	for k, v := range ir.byID {
		out.byID[k] = v
	}
	for t, m := range ir.byTableName {
		inner := make(map[string]uint32, len(m))
		for k, v := range m {
			inner[k] = v
		}
		out.byTableName[t] = inner
	}
	return out
}

// ByID looks up an index by its internal id, used when encoding/decoding
// index entry keys.
func (ir IndexRegistry) ByID(id uint32) (IndexMeta, bool) {
	m, ok := ir.byID[id]
	return m, ok
}

// ByName looks up an index on a table by its declared name.
func (ir IndexRegistry) ByName(tableNumber uint16, name string) (IndexMeta, bool) {
	names, ok := ir.byTableName[tableNumber]
	if !ok {
		return IndexMeta{}, false
	}
	id, ok := names[name]
	if !ok {
		return IndexMeta{}, false
	}
	m, ok := ir.byID[id]
	return m, ok
}

// OnTable returns every index registered on a table.
func (ir IndexRegistry) OnTable(tableNumber uint16) []IndexMeta {
	names, ok := ir.byTableName[tableNumber]
	if !ok {
		return nil
	}
	out := make([]IndexMeta, 0, len(names))
	for _, id := range names {
		out = append(out, ir.byID[id])
	}
	return out
}

// All returns every registered index, used by the index worker
// orchestrator to discover which indexes need a backfill/flush/compaction
// worker running.
func (ir IndexRegistry) All() []IndexMeta {
	out := make([]IndexMeta, 0, len(ir.byID))
	for _, m := range ir.byID {
		out = append(out, m)
	}
	return out
}

// CreateByIDIndex registers the mandatory by_id index for a newly created
// table, immediately Enabled per §3's invariant.
func (ir IndexRegistry) CreateByIDIndex(tableNumber uint16) IndexRegistry {
	out := ir.clone()
	id := out.nextID
	out.nextID++
	out.byID[id] = IndexMeta{
		ID:          id,
		Name:        ByIDIndexName,
		TableNumber: tableNumber,
		Kind:        IndexKindDatabase,
		Fields:      nil,
		Phase:       PhaseEnabled,
	}
	if out.byTableName[tableNumber] == nil {
		out.byTableName[tableNumber] = make(map[string]uint32)
	}
	out.byTableName[tableNumber][ByIDIndexName] = id
	return out
}

// CreateIndex registers a new index, starting life in Backfilling (§3:
// indexes transition through state machines under index workers' control).
func (ir IndexRegistry) CreateIndex(meta IndexMeta) (IndexRegistry, IndexMeta, error) {
	if _, exists := ir.ByName(meta.TableNumber, meta.Name); exists {
		return ir, IndexMeta{}, rifterr.BadRequest(rifterr.CodeArgumentValidationError,
			"index %q already exists on table", meta.Name)
	}
	if meta.Kind == IndexKindVector && (meta.Dimensions < 2 || meta.Dimensions > 4096) {
		return ir, IndexMeta{}, rifterr.BadRequest(rifterr.CodeArgumentValidationError,
			"vector index dimensions must be in [2,4096], got %d", meta.Dimensions)
	}
	out := ir.clone()
	id := out.nextID
	out.nextID++
	meta.ID = id
	meta.Phase = PhaseBackfilling
	out.byID[id] = meta
	if out.byTableName[meta.TableNumber] == nil {
		out.byTableName[meta.TableNumber] = make(map[string]uint32)
	}
	out.byTableName[meta.TableNumber][meta.Name] = id
	return out, meta, nil
}

// ChangeIndexState transitions an index's phase, used by index workers via
// the committer (§4.4, §4.12).
func (ir IndexRegistry) ChangeIndexState(id uint32, phase IndexPhase, snapshotTS int64) (IndexRegistry, error) {
	meta, ok := ir.byID[id]
	if !ok {
		return ir, rifterr.BadRequest(rifterr.CodeIndexNotFound, "index %d not found", id)
	}
	if meta.Name == ByIDIndexName {
		return ir, rifterr.SchemaInvariantViolated("the by_id index must remain Enabled")
	}
	out := ir.clone()
	meta.Phase = phase
	meta.SnapshotTS = snapshotTS
	out.byID[id] = meta
	return out, nil
}

// Live reports whether entries in this index are visible to queries:
// Enabled for database indexes, SnapshottedAt for text/vector (§3).
func (m IndexMeta) Live() bool {
	return m.Phase == PhaseEnabled || m.Phase == PhaseSnapshottedAt
}
