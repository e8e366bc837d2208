package store

import (
	"sort"
	"sync"

	"github.com/riftdb/rift/value"
)

// TableSummary is the §4.5 cheap per-table materialized view: a live count
// and an inferred field-name -> most-recently-seen-kind shape, used for
// `count(table)` and shape display without a full table scan.
type TableSummary struct {
	Count         int64
	InferredShape map[string]value.Kind
}

func (s TableSummary) clone() TableSummary {
	shape := make(map[string]value.Kind, len(s.InferredShape))
	for k, v := range s.InferredShape {
		shape[k] = v
	}
	return TableSummary{Count: s.Count, InferredShape: shape}
}

func (s TableSummary) applyWrite(w Write) TableSummary {
	out := s.clone()
	switch {
	case w.Old == nil && w.New != nil:
		out.Count++
	case w.Old != nil && w.New == nil:
		out.Count--
	}
	if w.New != nil {
		if fields, ok := w.New.Value.AsFields(); ok {
			for _, f := range fields {
				out.InferredShape[f.Key] = f.Val.Kind()
			}
		}
	}
	return out
}

// Snapshot is the §3/§4.5 immutable (ts, table_mapping, index_registry,
// table_summaries, overlays) tuple. Cheaply clonable because TableMapping
// and IndexRegistry are themselves copy-on-write.
type Snapshot struct {
	TS        int64
	Tables    TableMapping
	Indexes   IndexRegistry
	Summaries map[uint16]TableSummary
	// Schemas holds the optional schema bound to each table, enforced by
	// the committer at commit time (§4.8 step 3). A table with no entry
	// has no schema and accepts any well-formed document.
	Schemas map[uint16]Schema
	// Overlays is an opaque per-index slot; nothing in this module fills
	// it. The text and vector overlays live in the search/text and
	// search/vector Index values, not in the snapshot. Database indexes
	// have no overlay: their entries live directly in persistence and are
	// read through persist.Store at ts.
	Overlays map[uint32]any
}

func (s Snapshot) cloneSummaries() map[uint16]TableSummary {
	out := make(map[uint16]TableSummary, len(s.Summaries))
	for k, v := range s.Summaries {
		out[k] = v
	}
	return out
}

func (s Snapshot) cloneSchemas() map[uint16]Schema {
	out := make(map[uint16]Schema, len(s.Schemas))
	for k, v := range s.Schemas {
		out[k] = v
	}
	return out
}

func (s Snapshot) cloneOverlays() map[uint32]any {
	out := make(map[uint32]any, len(s.Overlays))
	for k, v := range s.Overlays {
		out[k] = v
	}
	return out
}

// withCommit produces the next snapshot reflecting one committed batch,
// per §4.5's "updated incrementally on commit" contract.
func (s Snapshot) withCommit(ts int64, writes []Write, tables TableMapping, indexes IndexRegistry) Snapshot {
	next := Snapshot{
		TS:        ts,
		Tables:    tables,
		Indexes:   indexes,
		Summaries: s.cloneSummaries(),
		Schemas:   s.cloneSchemas(),
		Overlays:  s.cloneOverlays(),
	}
	byTable := make(map[uint16][]Write)
	for _, w := range writes {
		tn := w.ID.TableNumber()
		byTable[tn] = append(byTable[tn], w)
	}
	for tn, ws := range byTable {
		summary, ok := next.Summaries[tn]
		if !ok {
			summary = TableSummary{InferredShape: make(map[string]value.Kind)}
		}
		for _, w := range ws {
			summary = summary.applyWrite(w)
		}
		next.Summaries[tn] = summary
	}
	return next
}

// Manager holds snapshots down to min_snapshot_ts and exposes the
// currently-latest one, per §4.5 and §4.3's retention coupling.
type Manager struct {
	mu        sync.RWMutex
	snapshots map[int64]Snapshot
	order     []int64 // ascending ts, kept sorted
	latest    int64
}

func NewManager(initial Snapshot) *Manager {
	return &Manager{
		snapshots: map[int64]Snapshot{initial.TS: initial},
		order:     []int64{initial.TS},
		latest:    initial.TS,
	}
}

// Latest returns the most recently published snapshot.
func (m *Manager) Latest() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshots[m.latest]
}

// At returns the snapshot valid at exactly ts, if still retained.
func (m *Manager) At(ts int64) (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.snapshots[ts]
	return s, ok
}

// Publish installs a new snapshot as the latest.
func (m *Manager) Publish(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[s.TS] = s
	i := sort.SearchInts(intsOf(m.order), int(s.TS))
	m.order = append(m.order, 0)
	copy(m.order[i+1:], m.order[i:])
	m.order[i] = s.TS
	if s.TS > m.latest {
		m.latest = s.TS
	}
}

// EvictBelow drops every retained snapshot with ts < minTS, honoring
// §4.5's "retains snapshots down to min_snapshot_ts".
func (m *Manager) EvictBelow(minTS int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.order[:0:0]
	for _, ts := range m.order {
		if ts < minTS && ts != m.latest {
			delete(m.snapshots, ts)
			continue
		}
		kept = append(kept, ts)
	}
	m.order = kept
}

func intsOf(ts []int64) []int {
	out := make([]int, len(ts))
	for i, t := range ts {
		out[i] = int(t)
	}
	return out
}
