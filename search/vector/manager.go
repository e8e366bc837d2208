package vector

import (
	"sync"

	"github.com/riftdb/rift/store"
)

// Manager owns every live vector Index and is the store.IndexSink
// registered for store.IndexKindVector, mirroring search/text.Manager.
type Manager struct {
	mu      sync.RWMutex
	indexes map[uint32]*Index
}

func NewManager() *Manager {
	return &Manager{indexes: make(map[uint32]*Index)}
}

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

func (m *Manager) Get(indexID uint32) *Index {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.indexes[indexID]
}

func (m *Manager) Drop(indexID uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.indexes, indexID)
}

func (m *Manager) IndexWrite(meta store.IndexMeta, w store.Write, ts int64) {
	m.Ensure(meta).IndexWrite(meta, w, ts)
}
