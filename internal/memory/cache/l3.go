package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ResultCache is the L3 boundary: a TTL'd page cache keyed by
// (user_id, query_hash, limit). InProcessL3 satisfies it directly;
// RedisL3 (cache/redis.go) satisfies it for a deployment that wants a
// shared L3 across replicas.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
	Stats() CacheStats
	Close() error
}

type l3Entry struct {
	value     []byte
	expiresAt time.Time
}

// InProcessL3 is an in-process result cache. hashicorp/golang-lru has no
// native TTL, so each entry carries its own expiresAt and is lazily
// skipped (and evicted) on read when expired.
type InProcessL3 struct {
	stats statCounters
	mu    sync.Mutex
	store *lru.Cache[string, *l3Entry]
	ttl   time.Duration
}

// NewInProcessL3 builds a result cache bounded to size entries (default
// 2000) with defaultTTL (default 5 minutes) applied when Set's ttl is 0.
func NewInProcessL3(size int, defaultTTL time.Duration) (*InProcessL3, error) {
	if size <= 0 {
		size = 2000
	}
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	store, err := lru.New[string, *l3Entry](size)
	if err != nil {
		return nil, err
	}
	return &InProcessL3{store: store, ttl: defaultTTL}, nil
}

func (l *InProcessL3) Get(ctx context.Context, key string) ([]byte, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.store.Get(key)
	if !ok {
		l.stats.misses.Add(1)
		return nil, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		l.store.Remove(key)
		l.stats.misses.Add(1)
		l.stats.evictions.Add(1)
		return nil, false, nil
	}
	l.stats.hits.Add(1)
	return entry.value, true, nil
}

func (l *InProcessL3) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = l.ttl
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	evicted := l.store.Add(key, &l3Entry{value: value, expiresAt: time.Now().Add(ttl)})
	if evicted {
		l.stats.evictions.Add(1)
	}
	l.stats.bytes.Add(int64(len(value)))
	return nil
}

func (l *InProcessL3) Delete(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.store.Remove(key)
	return nil
}

// DeletePrefix walks every key and removes matches. Used for per-user
// cache invalidation on ingest; the in-process store is small enough
// (entry-bounded) for a linear scan to be cheap.
func (l *InProcessL3) DeletePrefix(ctx context.Context, prefix string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, k := range l.store.Keys() {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			l.store.Remove(k)
		}
	}
	return nil
}

func (l *InProcessL3) Stats() CacheStats { return l.stats.snapshot() }

func (l *InProcessL3) Close() error { return nil }
