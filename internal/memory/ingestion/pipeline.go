package ingestion

import (
	"context"
	"fmt"
	"strings"

	"github.com/driftline/memorycore/internal/memory/cache"
	"github.com/driftline/memorycore/internal/memory/embedding"
	"github.com/driftline/memorycore/internal/memory/errs"
	"github.com/driftline/memorycore/internal/memory/model"
	"github.com/driftline/memorycore/internal/memory/observability"
	"github.com/driftline/memorycore/internal/memory/retrieval"
	"github.com/driftline/memorycore/internal/memory/sealing"
	"github.com/driftline/memorycore/internal/memory/security"
	"github.com/driftline/memorycore/internal/memory/store"
	"github.com/driftline/memorycore/internal/memory/vecmath"
)

// minContentLength rejects utterances too short to carry any signal.
const minContentLength = 10

// newClusterSimilarityFloor: below this cosine similarity to every
// existing centroid, a new cluster is created instead of joining the
// nearest one.
const newClusterSimilarityFloor = 0.7

// relationshipImportanceFloor and relationshipEmotionFloor gate the
// cross-character relationship update: a memory only strengthens a
// relationship when it's significant enough to be worth sharing.
const (
	relationshipImportanceFloor = 0.7
	relationshipEmotionFloor    = 0.6
)

// emotionalEvolutionFloor gates whether an ingested memory is
// significant enough to log a point in the character's emotional
// time series.
const emotionalEvolutionFloor = 0.3

// Store is the persistence surface Ingest needs.
type Store interface {
	GetByContentHash(ctx context.Context, userID, contentHash string) (*model.Memory, error)
	TouchAccess(ctx context.Context, userID, id string) error
	Insert(ctx context.Context, m *model.Memory, contentBytes []byte) error
	ListClusters(ctx context.Context, userID string) ([]*model.Cluster, error)
	CreateCluster(ctx context.Context, userID string, centroid []float32, keywords []string) (string, error)
	UpdateClusterCentroid(ctx context.Context, clusterID string, centroid []float32, memberCount int64, avgImportance float64) error
	RelationshipUpsert(ctx context.Context, r model.Relationship) error
	EmotionalEvolutionInsert(ctx context.Context, e model.EmotionalEvolution) error
}

// EmbeddingClient is the subset of embedding.Client Ingest needs.
type EmbeddingClient interface {
	Embed(ctx context.Context, text string) (*embedding.Response, error)
}

// ANNIndex is the subset of annindex.Manager Ingest needs.
type ANNIndex interface {
	Insert(ctx context.Context, userID, memoryID string, vector []float32)
}

// Config tunes deny-list and rejection behavior.
type Config struct {
	DenyList []string
}

// Input is one piece of content to ingest.
type Input struct {
	UserID         string
	CharacterID    *string
	ConversationID *string
	Text           string
	MemoryType     model.MemoryType
	MetadataFlags  map[string]bool

	// WitnessCharacterIDs lists other characters present for this
	// utterance. A sufficiently important or emotionally charged memory
	// strengthens the relationship between CharacterID and each witness.
	WitnessCharacterIDs []string
}

// Pipeline implements Ingest: dedup, embed, cluster, score, encrypt,
// persist, index, invalidate, and the cross-character/emotional-series
// side effects.
type Pipeline struct {
	store   Store
	embed   EmbeddingClient
	ann     ANNIndex
	cache   *cache.TieredCache
	sealer  *sealing.Sealer
	scorer  *Scorer
	lexicon *retrieval.Lexicon
	cfg     Config
	metrics observability.MetricsClient
}

// NewPipeline builds an ingestion Pipeline. enc is nil when encryption
// is disabled for this deployment; content is still sealed (compressed)
// either way.
func NewPipeline(store Store, embed EmbeddingClient, ann ANNIndex, tiered *cache.TieredCache, enc *security.EncryptionService, lexicon *retrieval.Lexicon, cfg Config, metrics observability.MetricsClient) *Pipeline {
	if lexicon == nil {
		lexicon = retrieval.DefaultLexicon()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetrics()
	}
	return &Pipeline{
		store:   store,
		embed:   embed,
		ann:     ann,
		cache:   tiered,
		sealer:  sealing.NewSealer(enc),
		scorer:  NewScorer(lexicon),
		lexicon: lexicon,
		cfg:     cfg,
		metrics: metrics,
	}
}

// Ingest stores one piece of content, deduplicating on exact-content
// match and otherwise embedding, scoring, encrypting, and persisting it.
// Returns the persisted (or pre-existing, on dedup) memory.
func (p *Pipeline) Ingest(ctx context.Context, in Input) (*model.Memory, error) {
	if err := p.validate(in); err != nil {
		return nil, err
	}

	contentHash := store.ContentHash(in.Text)
	if existing, err := p.store.GetByContentHash(ctx, in.UserID, contentHash); err == nil {
		if touchErr := p.store.TouchAccess(ctx, in.UserID, existing.ID); touchErr != nil {
			return nil, fmt.Errorf("touch duplicate memory: %w", touchErr)
		}
		existing.AccessFrequency++
		return existing, nil
	} else if !errs.Is(err, errs.NotFound) {
		return nil, fmt.Errorf("dedup lookup: %w", err)
	}

	resp, err := p.embed.Embed(ctx, in.Text)
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}

	clusterID, err := p.assignCluster(ctx, in.UserID, resp.Embedding)
	if err != nil {
		return nil, fmt.Errorf("assign cluster: %w", err)
	}

	importance := p.scorer.Importance(in.Text, in.MetadataFlags)
	emotionalWeight := p.scorer.EmotionalWeight(in.Text)

	memoryType := in.MemoryType
	if memoryType == "" {
		memoryType = model.MemoryTypeConversation
	}

	m := &model.Memory{
		UserID:          in.UserID,
		CharacterID:     in.CharacterID,
		ConversationID:  in.ConversationID,
		Content:         in.Text,
		ContentHash:     contentHash,
		Embedding:       resp.Embedding,
		ImportanceScore: importance,
		EmotionalWeight: emotionalWeight,
		DecayFactor:     1.0,
		MemoryType:      memoryType,
	}
	if clusterID != "" {
		m.SemanticClusterID = &clusterID
	}

	contentBytes, algorithm, err := p.sealer.Seal(in.Text, in.UserID)
	if err != nil {
		return nil, fmt.Errorf("seal content: %w", err)
	}
	if algorithm != "" {
		m.Encryption = &model.EncryptionMetadata{Algorithm: algorithm}
	}

	if err := p.store.Insert(ctx, m, contentBytes); err != nil {
		return nil, fmt.Errorf("persist memory: %w", err)
	}

	p.ann.Insert(ctx, in.UserID, m.ID, m.Embedding)

	if err := p.cache.InvalidateUser(ctx, in.UserID); err != nil {
		return nil, fmt.Errorf("invalidate cache: %w", err)
	}

	if in.CharacterID != nil && emotionalWeight > emotionalEvolutionFloor {
		tone := p.lexicon.ToneOf(in.Text)
		valence := 0.0
		switch tone {
		case retrieval.TonePositive:
			valence = emotionalWeight
		case retrieval.ToneNegative:
			valence = -emotionalWeight
		}
		if err := p.store.EmotionalEvolutionInsert(ctx, model.EmotionalEvolution{
			UserID:      in.UserID,
			CharacterID: *in.CharacterID,
			Valence:     valence,
			Arousal:     emotionalWeight,
			Confidence:  importance,
			Delta:       valence,
		}); err != nil {
			return nil, fmt.Errorf("record emotional evolution: %w", err)
		}
	}

	if in.CharacterID != nil && len(in.WitnessCharacterIDs) > 0 &&
		(importance > relationshipImportanceFloor || absFloat(emotionalWeight) > relationshipEmotionFloor) {
		m.CrossCharacterShared = true
		for _, witness := range in.WitnessCharacterIDs {
			if witness == "" || witness == *in.CharacterID {
				continue
			}
			if err := p.store.RelationshipUpsert(ctx, model.Relationship{
				UserID:          in.UserID,
				CharacterA:      *in.CharacterID,
				CharacterB:      witness,
				Strength:        importance,
				SharedMemoryIDs: []string{m.ID},
			}); err != nil {
				return nil, fmt.Errorf("upsert relationship: %w", err)
			}
		}
	}

	return m, nil
}

func (p *Pipeline) validate(in Input) error {
	if in.UserID == "" {
		return fmt.Errorf("%w: missing user id", errs.InvalidInput)
	}
	if len(strings.TrimSpace(in.Text)) < minContentLength {
		return fmt.Errorf("%w: content too short", errs.InvalidInput)
	}
	lower := strings.ToLower(in.Text)
	for _, denied := range p.cfg.DenyList {
		if denied == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(denied)) {
			return fmt.Errorf("%w: content matches deny-list", errs.InvalidInput)
		}
	}
	return nil
}

// assignCluster finds the nearest existing cluster by cosine similarity
// and folds the new vector into its centroid, or creates a fresh cluster
// when nothing is close enough.
func (p *Pipeline) assignCluster(ctx context.Context, userID string, vector []float32) (string, error) {
	clusters, err := p.store.ListClusters(ctx, userID)
	if err != nil {
		return "", err
	}

	var best *model.Cluster
	bestSim := -1.0
	for _, c := range clusters {
		sim := vecmath.CosineSimilarity(vector, c.Centroid)
		if sim > bestSim {
			bestSim = sim
			best = c
		}
	}

	if best == nil || bestSim < newClusterSimilarityFloor {
		id, err := p.store.CreateCluster(ctx, userID, vector, nil)
		if err != nil {
			return "", err
		}
		return id, nil
	}

	merged := averageVectors(best.Centroid, best.MemberCount, vector)
	if err := p.store.UpdateClusterCentroid(ctx, best.ID, merged, best.MemberCount+1, best.AvgImportance); err != nil {
		return "", err
	}
	return best.ID, nil
}

func averageVectors(centroid []float32, memberCount int64, next []float32) []float32 {
	if len(centroid) != len(next) || memberCount <= 0 {
		return next
	}
	out := make([]float32, len(centroid))
	n := float64(memberCount)
	for i := range centroid {
		out[i] = float32((float64(centroid[i])*n + float64(next[i])) / (n + 1))
	}
	return out
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
