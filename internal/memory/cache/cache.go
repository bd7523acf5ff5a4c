// Package cache implements the three bounded, LRU-evicted caches that sit
// in front of the embedding client and retrieval pipeline: an exact
// embedding cache (L1), a semantic-similarity cache keyed on query vector
// proximity (L2), and a TTL'd result-page cache (L3).
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"
)

// CacheStats is the hit/miss/eviction/byte-size surface every tier exposes.
type CacheStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Bytes     int64
}

// statCounters is embedded by each tier so Stats() is uniform.
type statCounters struct {
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
	bytes     atomic.Int64
}

func (s *statCounters) snapshot() CacheStats {
	return CacheStats{
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Evictions: s.evictions.Load(),
		Bytes:     s.bytes.Load(),
	}
}

// HashKey derives a stable cache key from arbitrary parts (text, model,
// user_id, query_hash, limit, ...).
func HashKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
