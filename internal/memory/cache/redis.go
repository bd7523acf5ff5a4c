package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisL3 backs the L3 result cache with Redis so a deployment can share
// it across replicas instead of each process keeping its own in-process
// page cache. It satisfies the same ResultCache interface as InProcessL3.
type RedisL3 struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedisL3 wraps an already-connected *redis.Client.
func NewRedisL3(client *redis.Client, keyPrefix string, defaultTTL time.Duration) *RedisL3 {
	if keyPrefix == "" {
		keyPrefix = "memorycore:l3:"
	}
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &RedisL3{client: client, keyPrefix: keyPrefix, ttl: defaultTTL}
}

func (r *RedisL3) fullKey(key string) string { return r.keyPrefix + key }

func (r *RedisL3) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, r.fullKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		r.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	r.hits.Add(1)
	return val, true, nil
}

func (r *RedisL3) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.ttl
	}
	return r.client.Set(ctx, r.fullKey(key), value, ttl).Err()
}

func (r *RedisL3) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.fullKey(key)).Err()
}

// DeletePrefix scans for keys under prefix and deletes them. Redis has no
// native prefix-delete; SCAN keeps this from blocking the server the way
// KEYS would.
func (r *RedisL3) DeletePrefix(ctx context.Context, prefix string) error {
	pattern := r.fullKey(prefix) + "*"
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisL3) Stats() CacheStats {
	return CacheStats{Hits: r.hits.Load(), Misses: r.misses.Load()}
}

func (r *RedisL3) Close() error { return r.client.Close() }
