package decay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/driftline/memorycore/internal/memory/model"
	"github.com/driftline/memorycore/internal/memory/observability"
	"github.com/driftline/memorycore/internal/memory/storageexport"
	"github.com/driftline/memorycore/internal/memory/vecmath"
	"github.com/jmoiron/sqlx"
)

// mergeSimilarityFloor: clusters whose centroids cosine-match at or
// above this are folded together by cluster optimization.
const mergeSimilarityFloor = 0.9

// decayFloor: a memory is eligible for decayed-cleanup once its
// decay_factor drops below decayFloor and its updated_at is at least
// Config.CleanupMinAge old.
const decayFloor = 0.1

// minSignificantDelta: a recomputed decay_factor only gets written back
// (and logged) when it moves by more than this much.
const minSignificantDelta = 0.01

// Config tunes the engine's periods and horizons, all defaulted to spec
// values.
type Config struct {
	HalfLife              time.Duration
	SweepInterval          time.Duration
	CleanupMinAge          time.Duration
	RetentionHorizon       time.Duration
	RetentionImportanceCeiling float64
	ClusterOptimizeInterval time.Duration
	SweepBatchSize         int
}

func (c *Config) applyDefaults() {
	if c.HalfLife == 0 {
		c.HalfLife = 30 * 24 * time.Hour
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = time.Hour
	}
	if c.CleanupMinAge == 0 {
		c.CleanupMinAge = 30 * 24 * time.Hour
	}
	if c.RetentionHorizon == 0 {
		c.RetentionHorizon = 90 * 24 * time.Hour
	}
	if c.RetentionImportanceCeiling == 0 {
		c.RetentionImportanceCeiling = 0.8
	}
	if c.ClusterOptimizeInterval == 0 {
		c.ClusterOptimizeInterval = 6 * time.Hour
	}
	if c.SweepBatchSize == 0 {
		c.SweepBatchSize = 500
	}
}

// SweepResult reports a decay sweep's outcome.
type SweepResult struct {
	Examined int
	Updated  int
	Skipped  bool
}

// Snapshotter writes a compliance record of a memory's sealed content
// somewhere durable before RetentionPurge deletes it from the primary
// store. storageexport.Client satisfies it.
type Snapshotter interface {
	Put(ctx context.Context, snap storageexport.Snapshot) error
}

// Engine runs the four periodic maintenance tasks behind three
// try-acquire mutexes (Sweep and OptimizeClusters share maintenanceMutex)
// so overlapping schedules never run the same task twice concurrently,
// and a forced/manual invocation can still block for the lock rather than
// skip.
type Engine struct {
	store    Store
	snapshot Snapshotter
	cfg      Config
	metrics  observability.MetricsClient
	now      func() time.Time

	maintenanceMutex sync.Mutex
	vacuumMutex      sync.Mutex
	retentionMutex   sync.Mutex
}

// Store is the persistence surface the decay engine needs. store.Store
// satisfies it. UpdateDecay/InsertDecayLog take an explicit *sqlx.Tx so
// a caller wrapping a sweep in a larger transaction can pass one through;
// the engine itself always passes nil, letting each row write
// independently.
type Store interface {
	DecayCandidates(ctx context.Context, cutoff time.Time, limit int) ([]*model.Memory, error)
	UpdateDecay(ctx context.Context, tx *sqlx.Tx, id string, decayFactor, importance float64) error
	InsertDecayLog(ctx context.Context, tx *sqlx.Tx, entry model.DecayLogEntry) error
	DeleteDecayed(ctx context.Context, floor float64, minAge time.Duration) (int64, error)
	RetentionCandidates(ctx context.Context, cutoff time.Time, importanceCeiling float64, limit int) ([]*model.Memory, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
	DeleteDecayLogOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	AllClusterUserIDs(ctx context.Context) ([]string, error)
	ListClusters(ctx context.Context, userID string) ([]*model.Cluster, error)
	MergeClusters(ctx context.Context, targetID, sourceID string, mergedCentroid []float32, mergedMemberCount int64, mergedAvgImportance float64) error
}

// NewEngine builds a decay Engine. snapshot is nil when no S3 export
// destination is configured; RetentionPurge simply skips the snapshot
// step in that case.
func NewEngine(store Store, snapshot Snapshotter, cfg Config, metrics observability.MetricsClient) *Engine {
	cfg.applyDefaults()
	if metrics == nil {
		metrics = observability.NewNoopMetrics()
	}
	return &Engine{store: store, snapshot: snapshot, cfg: cfg, metrics: metrics, now: time.Now}
}

// Sweep recomputes decay_factor for every due memory. Returns
// SweepResult{Skipped: true} without doing any work if another sweep is
// already in flight.
func (e *Engine) Sweep(ctx context.Context) (SweepResult, error) {
	if !e.maintenanceMutex.TryLock() {
		return SweepResult{Skipped: true}, nil
	}
	defer e.maintenanceMutex.Unlock()
	return e.sweepLocked(ctx)
}

// ForceSweep blocks for the maintenance lock instead of skipping, for the
// manual/forced operational path.
func (e *Engine) ForceSweep(ctx context.Context) (SweepResult, error) {
	e.maintenanceMutex.Lock()
	defer e.maintenanceMutex.Unlock()
	return e.sweepLocked(ctx)
}

func (e *Engine) sweepLocked(ctx context.Context) (SweepResult, error) {
	now := e.now()
	candidates, err := e.store.DecayCandidates(ctx, now, e.cfg.SweepBatchSize)
	if err != nil {
		return SweepResult{}, fmt.Errorf("load decay candidates: %w", err)
	}

	result := SweepResult{Examined: len(candidates)}
	for _, m := range candidates {
		age := now.Sub(m.CreatedAt)
		newDecay := recompute(age, e.cfg.HalfLife, m.EmotionalWeight, m.AccessFrequency, m.ImportanceScore)
		if absDelta(newDecay, m.DecayFactor) <= minSignificantDelta {
			continue
		}
		if err := e.store.UpdateDecay(ctx, nil, m.ID, newDecay, m.ImportanceScore); err != nil {
			return result, fmt.Errorf("update decay for %s: %w", m.ID, err)
		}
		if err := e.store.InsertDecayLog(ctx, nil, model.DecayLogEntry{
			MemoryID:          m.ID,
			DecayFactorBefore: m.DecayFactor,
			DecayFactorAfter:  newDecay,
			Reason:            "scheduled decay sweep",
		}); err != nil {
			return result, fmt.Errorf("log decay for %s: %w", m.ID, err)
		}
		result.Updated++
	}
	e.metrics.IncrementCounter("decay_sweep_updated_total", float64(result.Updated), nil)
	return result, nil
}

// Cleanup deletes memories that have decayed below decayFloor and whose
// updated_at is at least CleanupMinAge old. Skips if a vacuum-class task is already
// running.
func (e *Engine) Cleanup(ctx context.Context) (int64, bool, error) {
	if !e.vacuumMutex.TryLock() {
		return 0, true, nil
	}
	defer e.vacuumMutex.Unlock()

	n, err := e.store.DeleteDecayed(ctx, decayFloor, e.cfg.CleanupMinAge)
	if err != nil {
		return 0, false, fmt.Errorf("decayed cleanup: %w", err)
	}
	e.metrics.IncrementCounter("decay_cleanup_deleted_total", float64(n), nil)
	return n, false, nil
}

// RetentionPurge deletes memories past the retention horizon with low
// importance, plus stale decay-log rows past the same horizon. Skips if
// another retention purge is already running.
func (e *Engine) RetentionPurge(ctx context.Context) (int64, bool, error) {
	if !e.retentionMutex.TryLock() {
		return 0, true, nil
	}
	defer e.retentionMutex.Unlock()

	cutoff := e.now().Add(-e.cfg.RetentionHorizon)
	candidates, err := e.store.RetentionCandidates(ctx, cutoff, e.cfg.RetentionImportanceCeiling, e.cfg.SweepBatchSize)
	if err != nil {
		return 0, false, fmt.Errorf("load retention candidates: %w", err)
	}

	purgedAt := e.now()
	ids := make([]string, 0, len(candidates))
	for _, m := range candidates {
		ids = append(ids, m.ID)
		if e.snapshot == nil {
			continue
		}
		algorithm := ""
		if m.Encryption != nil {
			algorithm = m.Encryption.Algorithm
		}
		if err := e.snapshot.Put(ctx, storageexport.Snapshot{
			MemoryID:            m.ID,
			UserID:              m.UserID,
			SealedContent:       []byte(m.Content),
			EncryptionAlgorithm: algorithm,
			CreatedAt:           m.CreatedAt,
			PurgedAt:            purgedAt,
		}); err != nil {
			return 0, false, fmt.Errorf("snapshot memory %s before purge: %w", m.ID, err)
		}
	}

	deleted, err := e.store.DeleteByIDs(ctx, ids)
	if err != nil {
		return 0, false, fmt.Errorf("retention purge: %w", err)
	}
	if _, err := e.store.DeleteDecayLogOlderThan(ctx, cutoff); err != nil {
		return deleted, false, fmt.Errorf("purge decay log: %w", err)
	}
	e.metrics.IncrementCounter("retention_purge_deleted_total", float64(deleted), nil)
	return deleted, false, nil
}

// OptimizeClusters recomputes cluster groupings per user, merging any
// pair whose centroids cosine-match at or above mergeSimilarityFloor.
// Shares the maintenance mutex with Sweep: the spec requires the decay
// engine and vacuum/optimize tasks never to run concurrently with each
// other, not a dedicated third lock for this task.
func (e *Engine) OptimizeClusters(ctx context.Context) (int, bool, error) {
	if !e.maintenanceMutex.TryLock() {
		return 0, true, nil
	}
	defer e.maintenanceMutex.Unlock()

	userIDs, err := e.store.AllClusterUserIDs(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("list cluster users: %w", err)
	}

	merges := 0
	for _, userID := range userIDs {
		clusters, err := e.store.ListClusters(ctx, userID)
		if err != nil {
			return merges, false, fmt.Errorf("list clusters for %s: %w", userID, err)
		}
		merges += e.mergeUserClusters(ctx, clusters)
	}
	e.metrics.IncrementCounter("cluster_merges_total", float64(merges), nil)
	return merges, false, nil
}

func (e *Engine) mergeUserClusters(ctx context.Context, clusters []*model.Cluster) int {
	merged := 0
	alive := make([]*model.Cluster, len(clusters))
	copy(alive, clusters)

	for i := 0; i < len(alive); i++ {
		if alive[i] == nil {
			continue
		}
		for j := i + 1; j < len(alive); j++ {
			if alive[j] == nil {
				continue
			}
			sim := vecmath.CosineSimilarity(alive[i].Centroid, alive[j].Centroid)
			if sim < mergeSimilarityFloor {
				continue
			}
			target, source := alive[i], alive[j]
			mergedCentroid := weightedAverage(target.Centroid, target.MemberCount, source.Centroid, source.MemberCount)
			mergedCount := target.MemberCount + source.MemberCount
			mergedImportance := weightedScalarAverage(target.AvgImportance, target.MemberCount, source.AvgImportance, source.MemberCount)
			if err := e.store.MergeClusters(ctx, target.ID, source.ID, mergedCentroid, mergedCount, mergedImportance); err != nil {
				continue
			}
			target.Centroid = mergedCentroid
			target.MemberCount = mergedCount
			target.AvgImportance = mergedImportance
			alive[j] = nil
			merged++
		}
	}
	return merged
}

func weightedAverage(a []float32, aCount int64, b []float32, bCount int64) []float32 {
	if len(a) != len(b) {
		return a
	}
	total := aCount + bCount
	if total == 0 {
		return a
	}
	out := make([]float32, len(a))
	for i := range a {
		out[i] = float32((float64(a[i])*float64(aCount) + float64(b[i])*float64(bCount)) / float64(total))
	}
	return out
}

func weightedScalarAverage(a float64, aCount int64, b float64, bCount int64) float64 {
	total := aCount + bCount
	if total == 0 {
		return a
	}
	return (a*float64(aCount) + b*float64(bCount)) / float64(total)
}

func absDelta(a, b float64) float64 {
	if a < b {
		return b - a
	}
	return a - b
}
