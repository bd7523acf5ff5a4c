package cache

import (
	"context"
	"time"

	"github.com/driftline/memorycore/internal/memory/observability"
)

// TieredConfig bounds each tier.
type TieredConfig struct {
	L1Size             int
	L2Size             int
	L2Threshold        float64
	L3Size             int
	L3TTL              time.Duration
	Redis              ResultCache // optional; overrides the in-process L3 when set
}

// TieredCache composes the L1 exact, L2 semantic, and L3 result caches
// behind one entry point, matching the data-flow the retrieval pipeline
// expects: probe L1/L2/L3 before calling the embedding client or the ANN
// index, populate on miss.
type TieredCache struct {
	L1      *L1
	L2      *L2
	L3      ResultCache
	metrics observability.MetricsClient
}

// NewTieredCache builds all three tiers, applying SPEC defaults for any
// zero field in cfg.
func NewTieredCache(cfg TieredConfig, metrics observability.MetricsClient) (*TieredCache, error) {
	l1, err := NewL1(cfg.L1Size)
	if err != nil {
		return nil, err
	}
	l2, err := NewL2(cfg.L2Size, cfg.L2Threshold)
	if err != nil {
		return nil, err
	}
	l3 := cfg.Redis
	if l3 == nil {
		l3, err = NewInProcessL3(cfg.L3Size, cfg.L3TTL)
		if err != nil {
			return nil, err
		}
	}
	if metrics == nil {
		metrics = observability.NewNoopMetrics()
	}
	return &TieredCache{L1: l1, L2: l2, L3: l3, metrics: metrics}, nil
}

// Stats aggregates the three tiers' counters, labeled by tier.
func (t *TieredCache) Stats() map[string]CacheStats {
	return map[string]CacheStats{
		"l1": t.L1.Stats(),
		"l2": t.L2.Stats(),
		"l3": t.L3.Stats(),
	}
}

// InvalidateUser drops every L3 page belonging to userID and clears the
// L2 semantic cache, matching the ingest side-effect in spec §4.7 ("L3
// cache invalidation by user_id"). L1 is untouched: it's keyed by raw
// text content, not by user, so ingesting a memory for one user never
// stales another's entries there.
func (t *TieredCache) InvalidateUser(ctx context.Context, userID string) error {
	if err := t.L3.DeletePrefix(ctx, userID+":"); err != nil {
		return err
	}
	t.L2.Purge()
	return nil
}

func (t *TieredCache) Close() error {
	return t.L3.Close()
}
