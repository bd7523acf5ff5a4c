package embedding

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	calls   atomic.Int64
	failing bool
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) HealthCheck(ctx context.Context) error { return nil }

func (s *stubProvider) GenerateEmbedding(ctx context.Context, req Request) (*Response, error) {
	s.calls.Add(1)
	if s.failing {
		return nil, errors.New("stub failure")
	}
	return &Response{Embedding: make([]float32, Dimensions), Model: "stub"}, nil
}

func (s *stubProvider) BatchGenerateEmbeddings(ctx context.Context, req BatchRequest) (*BatchResponse, error) {
	out := make([]Response, len(req.Texts))
	for i := range req.Texts {
		r, err := s.GenerateEmbedding(ctx, Request{Text: req.Texts[i]})
		if err != nil {
			return nil, err
		}
		out[i] = *r
	}
	return &BatchResponse{Embeddings: out}, nil
}

func TestClient_EmbedUsesPrimaryWhenHealthy(t *testing.T) {
	stub := &stubProvider{}
	client := NewClient(stub, ClientConfig{MaxRetries: 1}, nil, nil)

	resp, err := client.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.False(t, resp.Fallback)
	assert.Equal(t, int64(1), client.Stats().TotalEmbeddings)
}

func TestClient_EmbedDegradesToFallback(t *testing.T) {
	stub := &stubProvider{failing: true}
	client := NewClient(stub, ClientConfig{MaxRetries: 1}, nil, nil)

	resp, err := client.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.True(t, resp.Fallback)
	assert.Equal(t, Dimensions, len(resp.Embedding))
	assert.Equal(t, int64(1), client.Stats().Errors)
}

func TestClient_EmbedBatchPreservesOrder(t *testing.T) {
	stub := &stubProvider{}
	client := NewClient(stub, ClientConfig{BatchSize: 2, ConcurrencyCeiling: 2}, nil, nil)

	texts := []string{"a", "b", "c", "d", "e"}
	resp, err := client.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	assert.Len(t, resp.Embeddings, len(texts))
	for _, e := range resp.Embeddings {
		assert.Equal(t, Dimensions, len(e.Embedding))
	}
}
