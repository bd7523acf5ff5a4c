// Package retrieval implements the scoring, caching, and fusion logic
// behind GetRelevant: the read path that turns a natural-language query
// into a ranked list of a user's own memories.
package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/driftline/memorycore/internal/memory/annindex"
	"github.com/driftline/memorycore/internal/memory/cache"
	"github.com/driftline/memorycore/internal/memory/embedding"
	"github.com/driftline/memorycore/internal/memory/model"
	"github.com/driftline/memorycore/internal/memory/observability"
	"github.com/driftline/memorycore/internal/memory/sealing"
	"github.com/driftline/memorycore/internal/memory/security"
	"github.com/driftline/memorycore/internal/memory/vecmath"
)

// MemoryStore is the read/write surface the pipeline needs from the
// persistent store. store.Store satisfies it.
type MemoryStore interface {
	CountByUser(ctx context.Context, userID string) (int64, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*model.Memory, error)
	GetByIDs(ctx context.Context, userID string, ids []string) ([]*model.Memory, error)
	ListClusters(ctx context.Context, userID string) ([]*model.Cluster, error)
	TouchAccess(ctx context.Context, userID, id string) error
}

// EmbeddingClient is the subset of embedding.Client the pipeline needs.
type EmbeddingClient interface {
	Embed(ctx context.Context, text string) (*embedding.Response, error)
}

// ANNIndex is the subset of annindex.Manager the pipeline needs.
type ANNIndex interface {
	Search(ctx context.Context, userID string, query []float32, k int) []annindex.Candidate
}

// Config tunes the pipeline's thresholds, all defaulted to spec values.
type Config struct {
	// NAnnThreshold: above this many memories for a user, candidate
	// generation uses the ANN index instead of a linear scan.
	NAnnThreshold int
	DefaultK      int
	RerankPoolSize int
	DiversityPenalty float64
	EnableHybridFusion bool
	EnableMMR          bool
}

func (c *Config) applyDefaults() {
	if c.NAnnThreshold == 0 {
		c.NAnnThreshold = 1000
	}
	if c.DefaultK == 0 {
		c.DefaultK = 10
	}
	if c.RerankPoolSize == 0 {
		c.RerankPoolSize = 100
	}
	if c.DiversityPenalty == 0 {
		c.DiversityPenalty = defaultDiversityPenalty
	}
}

// Result is the ranked output of GetRelevant.
type Result struct {
	Memories []Scored
	CacheHit bool
}

// Pipeline implements GetRelevant.
type Pipeline struct {
	store   MemoryStore
	embed   EmbeddingClient
	ann     ANNIndex
	cache   *cache.TieredCache
	sealer  *sealing.Sealer
	lexicon *Lexicon
	cfg     Config
	metrics observability.MetricsClient
	now     func() time.Time
}

// NewPipeline builds a retrieval Pipeline. enc is nil when encryption is
// disabled for this deployment; either way every candidate is unsealed
// before scoring, since stored content may still be flate-compressed.
func NewPipeline(store MemoryStore, embed EmbeddingClient, ann ANNIndex, tiered *cache.TieredCache, enc *security.EncryptionService, lexicon *Lexicon, cfg Config, metrics observability.MetricsClient) *Pipeline {
	cfg.applyDefaults()
	if lexicon == nil {
		lexicon = DefaultLexicon()
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
		lexicon: lexicon,
		cfg:     cfg,
		metrics: metrics,
		now:     time.Now,
	}
}

type cachedPage struct {
	IDs []string `json:"ids"`
}

// GetRelevant implements spec §4.6 steps 1-9: cache probe, embed, ANN/
// linear-scan candidate generation, cluster bias, composite rescoring,
// relevance gate, optional diversity re-rank, optional RRF fusion with
// a BM25-style keyword score, and the read-time side effects.
func (p *Pipeline) GetRelevant(ctx context.Context, userID, queryText, characterID string, k int) (*Result, error) {
	if k <= 0 {
		k = p.cfg.DefaultK
	}
	// l3Key carries a recoverable userID prefix (rather than a bare hash)
	// so TieredCache.InvalidateUser's DeletePrefix(userID+":") can find and
	// evict every page belonging to that user.
	l3Key := userID + ":" + cache.HashKey(userID, queryText, strconv.Itoa(k), characterID)

	// Step 1a: L3 probe by the (user_id, query hash, k, character_id) key.
	if raw, ok, err := p.cache.L3.Get(ctx, l3Key); err == nil && ok {
		var page cachedPage
		if err := json.Unmarshal(raw, &page); err == nil {
			memories, err := p.store.GetByIDs(ctx, userID, page.IDs)
			if err == nil {
				return &Result{Memories: p.unsealScored(hydrateOrder(page.IDs, memories)), CacheHit: true}, nil
			}
		}
	}

	// Step 2: query embedding.
	resp, err := p.embed.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	query := resp.Embedding

	// Step 1b: L2 semantic-proximity probe, now that the embedding exists.
	if cached, ok := p.cache.L2.Lookup(l3Key, query); ok {
		if page, ok := cached.(cachedPage); ok {
			memories, err := p.store.GetByIDs(ctx, userID, page.IDs)
			if err == nil {
				return &Result{Memories: p.unsealScored(hydrateOrder(page.IDs, memories)), CacheHit: true}, nil
			}
		}
	}

	// Step 3: candidate generation. Candidates are unsealed here, before
	// composite scoring and keyword fusion, since both read Memory.Content
	// directly and must never see sealed (encrypted/compressed) bytes.
	candidates, err := p.generateCandidates(ctx, userID, query, k)
	if err != nil {
		return nil, err
	}
	candidates = p.unsealScored(candidates)
	if len(candidates) == 0 {
		return &Result{}, nil
	}

	// Step 4: cluster bias.
	bestCluster, err := p.nearestCluster(ctx, userID, query)
	if err != nil {
		return nil, err
	}

	// Step 5-6: composite rescoring + relevance gate.
	now := p.now()
	scored := make([]Scored, 0, len(candidates))
	for _, c := range candidates {
		inCluster := bestCluster != nil && c.Memory.SemanticClusterID != nil && *c.Memory.SemanticClusterID == bestCluster.ID
		composite := Composite(p.lexicon, c.Memory, c.ContentSimilarity, queryText, inCluster, now)
		if !PassesGate(composite, c.Memory) {
			continue
		}
		c.Composite = composite
		scored = append(scored, c)
	}
	sortByCompositeDesc(scored)

	// Step 7: optional diversity re-rank over the top rerank pool.
	if p.cfg.EnableMMR {
		pool := scored
		if len(pool) > p.cfg.RerankPoolSize {
			pool = pool[:p.cfg.RerankPoolSize]
		}
		scored = DiversityRerank(pool, p.cfg.DiversityPenalty)
	}

	// Step 8: optional hybrid fusion with a BM25-style keyword score.
	if p.cfg.EnableHybridFusion {
		scored = p.fuseWithKeywordScore(scored, queryText)
	}

	if len(scored) > k {
		scored = scored[:k]
	}

	// Step 9: side effects.
	ids := make([]string, 0, len(scored))
	for _, s := range scored {
		ids = append(ids, s.Memory.ID)
		if err := p.store.TouchAccess(ctx, userID, s.Memory.ID); err != nil {
			continue
		}
		s.Memory.AccessFrequency++
		s.Memory.LastAccessed = now
	}
	p.writeCaches(ctx, l3Key, query, ids)

	return &Result{Memories: scored}, nil
}

// unsealScored reverses sealing on each candidate's content in place,
// dropping any memory that fails to unseal (e.g. encryption disabled for
// this process but the content was encrypted) rather than letting ciphertext
// reach scoring.
func (p *Pipeline) unsealScored(scored []Scored) []Scored {
	out := scored[:0]
	for _, s := range scored {
		if err := p.sealer.Unseal(s.Memory); err != nil {
			p.metrics.IncrementCounter("retrieval_unseal_errors", 1, nil)
			continue
		}
		out = append(out, s)
	}
	return out
}

func (p *Pipeline) generateCandidates(ctx context.Context, userID string, query []float32, k int) ([]Scored, error) {
	count, err := p.store.CountByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	poolSize := p.cfg.RerankPoolSize
	if poolSize < k {
		poolSize = k
	}

	if count > int64(p.cfg.NAnnThreshold) {
		hits := p.ann.Search(ctx, userID, query, poolSize)
		if len(hits) == 0 {
			return nil, nil
		}
		ids := make([]string, len(hits))
		scoreByID := make(map[string]float64, len(hits))
		for i, h := range hits {
			ids[i] = h.MemoryID
			scoreByID[h.MemoryID] = h.Score
		}
		memories, err := p.store.GetByIDs(ctx, userID, ids)
		if err != nil {
			return nil, err
		}
		out := make([]Scored, 0, len(memories))
		for _, m := range memories {
			out = append(out, Scored{Memory: m, ContentSimilarity: scoreByID[m.ID]})
		}
		return out, nil
	}

	memories, err := p.store.ListByUser(ctx, userID, poolSize*4)
	if err != nil {
		return nil, err
	}
	out := make([]Scored, 0, len(memories))
	for _, m := range memories {
		out = append(out, Scored{Memory: m, ContentSimilarity: cosineAgainst(query, m.Embedding)})
	}
	return out, nil
}

func (p *Pipeline) nearestCluster(ctx context.Context, userID string, query []float32) (*model.Cluster, error) {
	clusters, err := p.store.ListClusters(ctx, userID)
	if err != nil {
		return nil, err
	}
	var best *model.Cluster
	bestSim := -1.0
	for _, c := range clusters {
		sim := cosineAgainst(query, c.Centroid)
		if sim > bestSim {
			bestSim = sim
			best = c
		}
	}
	return best, nil
}

func (p *Pipeline) fuseWithKeywordScore(scored []Scored, queryText string) []Scored {
	docs := make(map[string]string, len(scored))
	semanticOrder := make([]string, len(scored))
	byID := make(map[string]Scored, len(scored))
	for i, s := range scored {
		docs[s.Memory.ID] = s.Memory.Content
		semanticOrder[i] = s.Memory.ID
		byID[s.Memory.ID] = s
	}

	bm25 := NewBM25Scorer(docs)
	keywordRanked := make([]rankedPair, 0, len(scored))
	for id := range docs {
		keywordRanked = append(keywordRanked, rankedPair{id: id, score: bm25.Score(id, queryText)})
	}
	sortRankedDesc(keywordRanked)
	keywordOrder := make([]string, len(keywordRanked))
	for i, r := range keywordRanked {
		keywordOrder[i] = r.id
		s := byID[r.id]
		s.KeywordScore = r.score
		byID[r.id] = s
	}

	fused := ReciprocalRankFusion(semanticOrder, keywordOrder, defaultRRFK, defaultSemanticWeight, defaultKeywordWeight)

	out := make([]Scored, 0, len(scored))
	for id, s := range byID {
		s.Composite = fused[id]
		out = append(out, s)
		byID[id] = s
	}
	sortByCompositeDesc(out)
	return out
}

func (p *Pipeline) writeCaches(ctx context.Context, l3Key string, query []float32, ids []string) {
	page := cachedPage{IDs: ids}
	raw, err := json.Marshal(page)
	if err != nil {
		return
	}
	_ = p.cache.L3.Set(ctx, l3Key, raw, 0)
	p.cache.L2.Set(l3Key, query, page)
}

func hydrateOrder(ids []string, memories []*model.Memory) []Scored {
	byID := make(map[string]*model.Memory, len(memories))
	for _, m := range memories {
		byID[m.ID] = m
	}
	out := make([]Scored, 0, len(ids))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			out = append(out, Scored{Memory: m})
		}
	}
	return out
}

func cosineAgainst(a, b []float32) float64 {
	return vecmath.CosineSimilarity(a, b)
}

func sortByCompositeDesc(s []Scored) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j].Composite > s[j-1].Composite; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

type rankedPair struct {
	id    string
	score float64
}

func sortRankedDesc(r []rankedPair) {
	for i := 1; i < len(r); i++ {
		for j := i; j > 0 && r[j].score > r[j-1].score; j-- {
			r[j], r[j-1] = r[j-1], r[j]
		}
	}
}
