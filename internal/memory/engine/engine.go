// Package engine wires ingestion, retrieval, decay, security, and
// monitoring into the single façade cmd/memoryd drives: one Ingest call,
// one GetRelevant call, and the data-subject rights operations, each
// already carrying the right decrypt-on-read and cache-invalidation
// behavior so callers never touch the lower-level packages directly.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/driftline/memorycore/internal/memory/cache"
	"github.com/driftline/memorycore/internal/memory/decay"
	"github.com/driftline/memorycore/internal/memory/ingestion"
	"github.com/driftline/memorycore/internal/memory/lifecycle"
	"github.com/driftline/memorycore/internal/memory/metrics"
	"github.com/driftline/memorycore/internal/memory/model"
	"github.com/driftline/memorycore/internal/memory/observability"
	"github.com/driftline/memorycore/internal/memory/retrieval"
	"github.com/driftline/memorycore/internal/memory/sealing"
	"github.com/driftline/memorycore/internal/memory/security"
)

// Store is the read surface Engine needs directly, beyond what it hands
// to ingestion/retrieval/security/decay. store.Store satisfies it.
type Store interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]*model.Memory, error)
	security.RelationshipLookup
}

// exportListLimit bounds a single GDPR export's row count; a user with
// more stored memories than this needs a paginated export, which is out
// of scope for the single-document Export call.
const exportListLimit = 100000

// ANNUserIndex is the per-user deletion surface Engine needs from the
// ANN manager, beyond what retrieval/ingestion already use.
type ANNUserIndex interface {
	DeleteUser(userID string)
}

// ExportStore is the per-user deletion surface Engine needs from the S3
// export client, so erasure reaches retention-purge snapshots too.
// storageexport.Client satisfies it; nil when export isn't configured.
type ExportStore interface {
	DeleteUser(ctx context.Context, userID string) error
}

// Config bundles the already-constructed components Engine coordinates.
// Every field is required except Export and Enc (nil when S3 export or
// encryption isn't configured), GDPR (which SetGDPR may attach after New),
// and Decay/Lifecycle/Monitor, which are nil when those subsystems aren't
// running in this process.
type Config struct {
	Store      Store
	Ingest     *ingestion.Pipeline
	Retrieve   *retrieval.Pipeline
	Cache      *cache.TieredCache
	ANN        ANNUserIndex
	Export     ExportStore
	Enc        *security.EncryptionService
	GDPR       *security.GDPR
	Decay      *decay.Engine
	Lifecycle  *lifecycle.Manager
	Monitor    *metrics.Monitor
	Metrics    observability.MetricsClient
	Logger     observability.Logger
}

// Engine is the top-level entry point for every operation memoryd's
// transport layer calls.
type Engine struct {
	store     Store
	ingest    *ingestion.Pipeline
	retrieve  *retrieval.Pipeline
	cache     *cache.TieredCache
	ann       ANNUserIndex
	export    ExportStore
	sealer    *sealing.Sealer
	gdpr      *security.GDPR
	decayEng  *decay.Engine
	lifecycle *lifecycle.Manager
	monitor   *metrics.Monitor
	metrics   observability.MetricsClient
	logger    observability.Logger
}

// New builds an Engine from already-constructed components.
func New(cfg Config) *Engine {
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewNoopMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNoopLogger()
	}
	return &Engine{
		store:     cfg.Store,
		ingest:    cfg.Ingest,
		retrieve:  cfg.Retrieve,
		cache:     cfg.Cache,
		ann:       cfg.ANN,
		export:    cfg.Export,
		sealer:    sealing.NewSealer(cfg.Enc),
		gdpr:      cfg.GDPR,
		decayEng:  cfg.Decay,
		lifecycle: cfg.Lifecycle,
		monitor:   cfg.Monitor,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}
}

// SetGDPR attaches the data-subject rights handle. Exists as a separate
// setter because security.NewGDPR's Exporter is typically the Engine
// itself (ExportUser needs the fully-built engine to unseal content),
// so it can't be constructed before New returns.
func (e *Engine) SetGDPR(g *security.GDPR) {
	e.gdpr = g
}

// Ingest stores a new utterance, deduplicating, scoring, sealing, and
// indexing it per the ingestion pipeline's contract.
func (e *Engine) Ingest(ctx context.Context, in ingestion.Input) (*model.Memory, error) {
	return e.ingest.Ingest(ctx, in)
}

// GetRelevant runs the hybrid retrieval pipeline — which unseals every
// candidate's content itself before scoring it, so composite scoring and
// keyword fusion never see sealed bytes — and applies the cross-character
// access check before handing plaintext results to the caller.
func (e *Engine) GetRelevant(ctx context.Context, userID, characterID, queryText string, k int) (*retrieval.Result, error) {
	result, err := e.retrieve.GetRelevant(ctx, userID, queryText, characterID, k)
	if err != nil {
		return nil, err
	}

	allowed := result.Memories[:0]
	for _, scored := range result.Memories {
		if err := security.CheckAccess(ctx, e.store, scored.Memory, userID, characterID); err != nil {
			continue
		}
		allowed = append(allowed, scored)
	}
	result.Memories = allowed
	return result, nil
}

// DeleteUserData permanently erases every memory belonging to userID
// (the right to erasure), then scrubs the caches and ANN graph so no
// u-keyed state survives the call anywhere in the process.
func (e *Engine) DeleteUserData(ctx context.Context, userID string) (int64, error) {
	n, err := e.gdpr.Delete(ctx, userID)
	if err != nil {
		return n, err
	}
	if err := e.cache.InvalidateUser(ctx, userID); err != nil {
		e.logger.Error("failed to invalidate cache after delete", map[string]interface{}{
			"user_id": userID, "error": err.Error(),
		})
	}
	e.ann.DeleteUser(userID)
	if e.export != nil {
		if err := e.export.DeleteUser(ctx, userID); err != nil {
			e.logger.Error("failed to delete export snapshots after delete", map[string]interface{}{
				"user_id": userID, "error": err.Error(),
			})
		}
	}
	return n, nil
}

// ExportRecord is one memory as it appears in a data-portability export:
// plaintext content, never the sealed on-disk bytes.
type ExportRecord struct {
	ID              string    `json:"id"`
	CharacterID     *string   `json:"character_id,omitempty"`
	ConversationID  *string   `json:"conversation_id,omitempty"`
	Content         string    `json:"content"`
	MemoryType      string    `json:"memory_type"`
	ImportanceScore float64   `json:"importance_score"`
	EmotionalWeight float64   `json:"emotional_weight"`
	DecayFactor     float64   `json:"decay_factor"`
	AccessFrequency int64     `json:"access_frequency"`
	CreatedAt       time.Time `json:"created_at"`
	LastAccessed    time.Time `json:"last_accessed"`
}

// ExportUser implements security.Exporter: every stored memory for
// userID, unsealed to plaintext, suitable for a data-portability
// response.
func (e *Engine) ExportUser(ctx context.Context, userID string) (interface{}, error) {
	memories, err := e.store.ListByUser(ctx, userID, exportListLimit)
	if err != nil {
		return nil, fmt.Errorf("listing memories for export: %w", err)
	}

	records := make([]ExportRecord, 0, len(memories))
	for _, m := range memories {
		if err := e.sealer.Unseal(m); err != nil {
			return nil, fmt.Errorf("unsealing memory %s for export: %w", m.ID, err)
		}
		records = append(records, ExportRecord{
			ID:              m.ID,
			CharacterID:     m.CharacterID,
			ConversationID:  m.ConversationID,
			Content:         m.Content,
			MemoryType:      string(m.MemoryType),
			ImportanceScore: m.ImportanceScore,
			EmotionalWeight: m.EmotionalWeight,
			DecayFactor:     m.DecayFactor,
			AccessFrequency: m.AccessFrequency,
			CreatedAt:       m.CreatedAt,
			LastAccessed:    m.LastAccessed,
		})
	}
	return records, nil
}

// Export produces the audited data-portability document for userID.
func (e *Engine) Export(ctx context.Context, userID string) ([]byte, error) {
	return e.gdpr.Export(ctx, userID)
}

// StartBackground registers the decay sweep, cleanup, retention purge,
// and cluster optimization loops on the engine's
// lifecycle manager, mirroring the intervals named in the component's
// configuration. Safe to call at most once.
func (e *Engine) StartBackground(decaySweepInterval, cleanupInterval, retentionInterval, clusterOptimizeInterval time.Duration) {
	if e.decayEng == nil || e.lifecycle == nil {
		return
	}
	e.lifecycle.RegisterInterval("decay-sweep", decaySweepInterval, func(ctx context.Context) {
		if _, err := e.decayEng.Sweep(ctx); err != nil {
			e.logger.Error("decay sweep failed", map[string]interface{}{"error": err.Error()})
		}
	})
	e.lifecycle.RegisterInterval("decay-cleanup", cleanupInterval, func(ctx context.Context) {
		if _, _, err := e.decayEng.Cleanup(ctx); err != nil {
			e.logger.Error("decay cleanup failed", map[string]interface{}{"error": err.Error()})
		}
	})
	e.lifecycle.RegisterInterval("retention-purge", retentionInterval, func(ctx context.Context) {
		if _, _, err := e.decayEng.RetentionPurge(ctx); err != nil {
			e.logger.Error("retention purge failed", map[string]interface{}{"error": err.Error()})
		}
	})
	e.lifecycle.RegisterInterval("cluster-optimize", clusterOptimizeInterval, func(ctx context.Context) {
		if _, _, err := e.decayEng.OptimizeClusters(ctx); err != nil {
			e.logger.Error("cluster optimization failed", map[string]interface{}{"error": err.Error()})
		}
	})
}

// Shutdown tears down every background activity the engine registered.
func (e *Engine) Shutdown(ctx context.Context) error {
	if e.lifecycle == nil {
		return nil
	}
	return e.lifecycle.Shutdown(ctx)
}
