package annindex

import (
	"context"
	"sync"
)

// VectorSource lets Manager rebuild every user's graph from the backing
// store on startup.
type VectorSource interface {
	IterateUserVectors(ctx context.Context, fn func(userID, memoryID string, vector []float32) error) error
}

// Manager partitions the HNSW graph by user_id: a search or insert for
// one user never touches another's graph, and per-user indexes are
// created lazily on first use.
type Manager struct {
	cfg Config

	mu      sync.RWMutex
	indexes map[string]*Index
}

// NewManager builds a Manager applying cfg to every per-user Index it
// creates.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg, indexes: make(map[string]*Index)}
}

func (m *Manager) indexFor(userID string) *Index {
	m.mu.RLock()
	idx, ok := m.indexes[userID]
	m.mu.RUnlock()
	if ok {
		return idx
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if idx, ok = m.indexes[userID]; ok {
		return idx
	}
	idx = New(m.cfg)
	m.indexes[userID] = idx
	return idx
}

// Insert is idempotent by memory_id within userID's graph.
func (m *Manager) Insert(ctx context.Context, userID, memoryID string, vector []float32) {
	m.indexFor(userID).Insert(ctx, memoryID, vector)
}

// Delete removes memoryID from userID's graph, if present.
func (m *Manager) Delete(ctx context.Context, userID, memoryID string) {
	m.mu.RLock()
	idx, ok := m.indexes[userID]
	m.mu.RUnlock()
	if ok {
		idx.Delete(ctx, memoryID)
	}
}

// DeleteUser drops userID's entire graph. Used by the GDPR erasure path
// so no u-keyed vectors remain in memory once a deletion completes.
func (m *Manager) DeleteUser(userID string) {
	m.mu.Lock()
	delete(m.indexes, userID)
	m.mu.Unlock()
}

// Search never crosses users: it only ever touches userID's own graph.
func (m *Manager) Search(ctx context.Context, userID string, query []float32, k int) []Candidate {
	m.mu.RLock()
	idx, ok := m.indexes[userID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	return idx.Search(ctx, query, k)
}

// WarmUp rebuilds every user's graph from src, traversing the store once
// and bulk-inserting vectors. Intended to run once at startup.
func (m *Manager) WarmUp(ctx context.Context, src VectorSource) error {
	return src.IterateUserVectors(ctx, func(userID, memoryID string, vector []float32) error {
		m.Insert(ctx, userID, memoryID, vector)
		return nil
	})
}

// Size reports the number of vectors held for userID.
func (m *Manager) Size(userID string) int {
	m.mu.RLock()
	idx, ok := m.indexes[userID]
	m.mu.RUnlock()
	if !ok {
		return 0
	}
	return idx.Len()
}
