package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// L1 is the exact embedding cache: key = hash(text, model), value = the
// 768-dim vector. Its entire purpose is to let the retrieval and ingestion
// pipelines skip the embedding client for repeated input.
type L1 struct {
	stats statCounters
	store *lru.Cache[string, []float32]
}

// NewL1 builds an exact cache bounded to size entries (default 1000).
func NewL1(size int) (*L1, error) {
	if size <= 0 {
		size = 1000
	}
	store, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &L1{store: store}, nil
}

// Get looks up the embedding for (text, model).
func (l *L1) Get(text, model string) ([]float32, bool) {
	v, ok := l.store.Get(HashKey(text, model))
	if ok {
		l.stats.hits.Add(1)
	} else {
		l.stats.misses.Add(1)
	}
	return v, ok
}

// Set stores the embedding for (text, model).
func (l *L1) Set(text, model string, embedding []float32) {
	evicted := l.store.Add(HashKey(text, model), embedding)
	if evicted {
		l.stats.evictions.Add(1)
	}
	l.stats.bytes.Add(int64(len(embedding) * 4))
}

// Stats returns a snapshot of hit/miss/eviction counters.
func (l *L1) Stats() CacheStats { return l.stats.snapshot() }

// Purge evicts every entry, used on a scoped cache-invalidation event.
func (l *L1) Purge() { l.store.Purge() }
