package text

import (
	"sync"

	"github.com/riftdb/rift/store"
)

// Manager owns every live text Index in the database and is the single
// store.IndexSink registered for store.IndexKindText (§4.8's "index
// sink dispatch"), fanning each write out to the index it belongs to.
type Manager struct {
	mu      sync.RWMutex
	indexes map[uint32]*Index
}

func NewManager() *Manager {
	return &Manager{indexes: make(map[uint32]*Index)}
}

// Ensure returns the Index for meta.ID, creating it on first use (e.g.
// when a backfill worker starts materializing a freshly created index).
func (m *Manager) Ensure(meta store.IndexMeta) *Index {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.indexes[meta.ID]
	if !ok {
		idx = NewIndex(meta)
		m.indexes[meta.ID] = idx
	}
	return idx
}

// Get returns the Index for indexID, or nil if none has been created.
func (m *Manager) Get(indexID uint32) *Index {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.indexes[indexID]
}

// Drop removes an index, e.g. when it's dropped from the registry.
func (m *Manager) Drop(indexID uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.indexes, indexID)
}

// IndexWrite implements store.IndexSink, routing each write to the Index
// matching meta.ID (creating it lazily so a write landing mid-backfill
// isn't dropped).
func (m *Manager) IndexWrite(meta store.IndexMeta, w store.Write, ts int64) {
	m.Ensure(meta).IndexWrite(meta, w, ts)
}
