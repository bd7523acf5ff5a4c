package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/driftline/memorycore/internal/memory/vecmath"
)

// L2Result is a cached page associated with a query vector: the result
// set is reused for any later query whose embedding is cosine-close
// enough to the one that produced it.
type L2Result struct {
	Vector  []float32
	Results interface{}
}

type l2Entry struct {
	vector  []float32
	norm    float64
	results interface{}
}

// L2 is the semantic-similarity cache. Unlike L1 it cannot be keyed by an
// exact hash of the query vector, so lookups scan the bounded entry set
// and reuse the closest one above the similarity threshold. The backing
// LRU still bounds size and handles recency-based eviction; the scan
// itself stays cheap because entries are capped (default a few hundred).
type L2 struct {
	stats     statCounters
	mu        sync.RWMutex
	store     *lru.Cache[string, *l2Entry]
	threshold float64
}

// NewL2 builds a semantic cache bounded to size entries (default 256),
// matching incoming queries above threshold (default 0.95) cosine
// similarity.
func NewL2(size int, threshold float64) (*L2, error) {
	if size <= 0 {
		size = 256
	}
	if threshold <= 0 {
		threshold = 0.95
	}
	store, err := lru.New[string, *l2Entry](size)
	if err != nil {
		return nil, err
	}
	return &L2{store: store, threshold: threshold}, nil
}

// Lookup returns the cached result for the closest stored vector whose
// cosine similarity to query meets the threshold, or ok=false.
func (l *L2) Lookup(canonicalKey string, query []float32) (interface{}, bool) {
	l.mu.RLock()
	keys := l.store.Keys()
	queryNorm := vecmath.Norm(query)

	var bestKey string
	var bestEntry *l2Entry
	bestSim := -1.0
	for _, k := range keys {
		entry, ok := l.store.Peek(k)
		if !ok {
			continue
		}
		sim := vecmath.CosineSimilarityWithNorms(query, entry.vector, queryNorm, entry.norm)
		if sim > bestSim {
			bestSim = sim
			bestKey = k
			bestEntry = entry
		}
	}
	l.mu.RUnlock()

	if bestEntry == nil || bestSim < l.threshold {
		l.stats.misses.Add(1)
		return nil, false
	}

	l.mu.Lock()
	l.store.Get(bestKey) // promote recency
	l.mu.Unlock()

	l.stats.hits.Add(1)
	return bestEntry.results, true
}

// Set stores results for the given canonical key and query vector.
func (l *L2) Set(canonicalKey string, query []float32, results interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	evicted := l.store.Add(canonicalKey, &l2Entry{
		vector:  query,
		norm:    vecmath.Norm(query),
		results: results,
	})
	if evicted {
		l.stats.evictions.Add(1)
	}
	l.stats.bytes.Add(int64(len(query) * 4))
}

// Stats returns a snapshot of hit/miss/eviction counters.
func (l *L2) Stats() CacheStats { return l.stats.snapshot() }

// Purge evicts every entry.
func (l *L2) Purge() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.store.Purge()
}
