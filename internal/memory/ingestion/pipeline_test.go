package ingestion

import (
	"context"
	"strings"
	"testing"

	"github.com/driftline/memorycore/internal/memory/cache"
	"github.com/driftline/memorycore/internal/memory/embedding"
	"github.com/driftline/memorycore/internal/memory/errs"
	"github.com/driftline/memorycore/internal/memory/model"
	"github.com/driftline/memorycore/internal/memory/retrieval"
	"github.com/driftline/memorycore/internal/memory/security"
	"github.com/driftline/memorycore/internal/memory/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	byHash       map[string]*model.Memory
	inserted     []*model.Memory
	touched      []string
	clusters     []*model.Cluster
	created      [][]float32
	centroidUpds []string
	relUpserts   []model.Relationship
	emotions     []model.EmotionalEvolution
}

func newFakeStore() *fakeStore {
	return &fakeStore{byHash: map[string]*model.Memory{}}
}

func (s *fakeStore) GetByContentHash(ctx context.Context, userID, contentHash string) (*model.Memory, error) {
	if m, ok := s.byHash[userID+":"+contentHash]; ok {
		return m, nil
	}
	return nil, errs.NotFound
}

func (s *fakeStore) TouchAccess(ctx context.Context, userID, id string) error {
	s.touched = append(s.touched, id)
	return nil
}

func (s *fakeStore) Insert(ctx context.Context, m *model.Memory, contentBytes []byte) error {
	m.ID = "generated-id"
	s.inserted = append(s.inserted, m)
	s.byHash[m.UserID+":"+m.ContentHash] = m
	return nil
}

func (s *fakeStore) ListClusters(ctx context.Context, userID string) ([]*model.Cluster, error) {
	return s.clusters, nil
}

func (s *fakeStore) CreateCluster(ctx context.Context, userID string, centroid []float32, keywords []string) (string, error) {
	s.created = append(s.created, centroid)
	return "new-cluster", nil
}

func (s *fakeStore) UpdateClusterCentroid(ctx context.Context, clusterID string, centroid []float32, memberCount int64, avgImportance float64) error {
	s.centroidUpds = append(s.centroidUpds, clusterID)
	return nil
}

func (s *fakeStore) RelationshipUpsert(ctx context.Context, r model.Relationship) error {
	s.relUpserts = append(s.relUpserts, r)
	return nil
}

func (s *fakeStore) EmotionalEvolutionInsert(ctx context.Context, e model.EmotionalEvolution) error {
	s.emotions = append(s.emotions, e)
	return nil
}

type fakeEmbed struct {
	vector []float32
	calls  int
}

func (f *fakeEmbed) Embed(ctx context.Context, text string) (*embedding.Response, error) {
	f.calls++
	return &embedding.Response{Embedding: f.vector}, nil
}

type fakeANN struct {
	inserted []string
}

func (f *fakeANN) Insert(ctx context.Context, userID, memoryID string, vector []float32) {
	f.inserted = append(f.inserted, memoryID)
}

func newTestCache(t *testing.T) *cache.TieredCache {
	t.Helper()
	tc, err := cache.NewTieredCache(cache.TieredConfig{}, nil)
	require.NoError(t, err)
	return tc
}

func TestIngest_RejectsTooShortContent(t *testing.T) {
	p := NewPipeline(newFakeStore(), &fakeEmbed{}, &fakeANN{}, newTestCache(t), nil, nil, Config{}, nil)
	_, err := p.Ingest(context.Background(), Input{UserID: "u1", Text: "hi"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.InvalidInput))
}

func TestIngest_RejectsDenyListedContent(t *testing.T) {
	p := NewPipeline(newFakeStore(), &fakeEmbed{}, &fakeANN{}, newTestCache(t), nil, nil, Config{DenyList: []string{"forbidden phrase"}}, nil)
	_, err := p.Ingest(context.Background(), Input{UserID: "u1", Text: "this contains a Forbidden Phrase in it"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.InvalidInput))
}

func TestIngest_DedupIncrementsAccessAndSkipsEmbedding(t *testing.T) {
	store := newFakeStore()
	existing := &model.Memory{ID: "m1", UserID: "u1", ContentHash: store.ContentHash("a repeated memory worth storing")}
	store.byHash["u1:"+existing.ContentHash] = existing
	embed := &fakeEmbed{vector: []float32{1, 0, 0}}
	p := NewPipeline(store, embed, &fakeANN{}, newTestCache(t), nil, nil, Config{}, nil)

	got, err := p.Ingest(context.Background(), Input{UserID: "u1", Text: "a repeated memory worth storing"})
	require.NoError(t, err)
	assert.Equal(t, "m1", got.ID)
	assert.Contains(t, store.touched, "m1")
	assert.Equal(t, 0, embed.calls)
}

func TestIngest_NewContentEmbedsScoresAndPersists(t *testing.T) {
	store := newFakeStore()
	embed := &fakeEmbed{vector: []float32{1, 0, 0}}
	ann := &fakeANN{}
	p := NewPipeline(store, embed, ann, newTestCache(t), nil, retrieval.DefaultLexicon(), Config{}, nil)

	charID := "alice"
	got, err := p.Ingest(context.Background(), Input{
		UserID:      "u1",
		CharacterID: &charID,
		Text:        "I am so grateful for this wonderful day, thank you!",
	})
	require.NoError(t, err)
	require.Len(t, store.inserted, 1)
	assert.Equal(t, "generated-id", got.ID)
	assert.Equal(t, 1, embed.calls)
	assert.Contains(t, ann.inserted, "generated-id")
	assert.Greater(t, got.ImportanceScore, 0.5)
	assert.Greater(t, got.EmotionalWeight, 0.0)
	assert.Len(t, store.created, 1, "first memory for a user creates a fresh cluster")
}

func TestIngest_JoinsNearbyClusterInsteadOfCreatingNew(t *testing.T) {
	store := newFakeStore()
	store.clusters = []*model.Cluster{{ID: "c1", Centroid: []float32{1, 0, 0}, MemberCount: 3}}
	embed := &fakeEmbed{vector: []float32{1, 0, 0}}
	p := NewPipeline(store, embed, &fakeANN{}, newTestCache(t), nil, nil, Config{}, nil)

	_, err := p.Ingest(context.Background(), Input{UserID: "u1", Text: "another normal statement about my day"})
	require.NoError(t, err)
	assert.Empty(t, store.created)
	assert.Contains(t, store.centroidUpds, "c1")
}

func TestIngest_EncryptsContentWhenConfigured(t *testing.T) {
	store := newFakeStore()
	embed := &fakeEmbed{vector: []float32{1, 0, 0}}
	enc := security.NewEncryptionService("a test master key", 0)
	p := NewPipeline(store, embed, &fakeANN{}, newTestCache(t), enc, nil, Config{}, nil)

	_, err := p.Ingest(context.Background(), Input{UserID: "u1", Text: "a secret memory that should be encrypted at rest"})
	require.NoError(t, err)
	require.Len(t, store.inserted, 1)
	assert.NotNil(t, store.inserted[0].Encryption)
	assert.Equal(t, "aes-256-gcm", store.inserted[0].Encryption.Algorithm)
}

func TestIngest_RecordsFlateAlgorithmWhenCompressedButNotEncrypted(t *testing.T) {
	store := newFakeStore()
	embed := &fakeEmbed{vector: []float32{1, 0, 0}}
	p := NewPipeline(store, embed, &fakeANN{}, newTestCache(t), nil, nil, Config{}, nil)

	longText := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 40)
	_, err := p.Ingest(context.Background(), Input{UserID: "u1", Text: longText})
	require.NoError(t, err)
	require.Len(t, store.inserted, 1)
	require.NotNil(t, store.inserted[0].Encryption, "compressed-but-unencrypted content must still record its algorithm tag so a reader knows to inflate it")
	assert.Equal(t, "flate", store.inserted[0].Encryption.Algorithm)
}

func TestIngest_StrengthensRelationshipForImportantSharedMemory(t *testing.T) {
	store := newFakeStore()
	embed := &fakeEmbed{vector: []float32{1, 0, 0}}
	p := NewPipeline(store, embed, &fakeANN{}, newTestCache(t), nil, retrieval.DefaultLexicon(), Config{}, nil)

	charID := "alice"
	longImportant := strings.Repeat("I am so incredibly grateful and happy about this, thank you so much. ", 8)
	_, err := p.Ingest(context.Background(), Input{
		UserID:              "u1",
		CharacterID:         &charID,
		Text:                longImportant,
		WitnessCharacterIDs: []string{"bob"},
	})
	require.NoError(t, err)
	require.Len(t, store.relUpserts, 1)
	assert.Equal(t, "alice", store.relUpserts[0].CharacterA)
	assert.Equal(t, "bob", store.relUpserts[0].CharacterB)
}
