package embedding

import (
	"context"
	"crypto/sha256"
	"math"
	"strings"
)

// FallbackProvider is the degraded-mode embedding generator: a
// deterministic vector built from layered content hashes plus lexical
// features, so retrieval still functions (at reduced quality) when the
// model host is unavailable. It is never unhealthy — HealthCheck always
// succeeds — so it can be used unconditionally as the last resort in a
// provider chain.
type FallbackProvider struct{}

func NewFallbackProvider() *FallbackProvider { return &FallbackProvider{} }

func (p *FallbackProvider) Name() string { return "fallback" }

func (p *FallbackProvider) HealthCheck(ctx context.Context) error { return nil }

func (p *FallbackProvider) GenerateEmbedding(ctx context.Context, req Request) (*Response, error) {
	return &Response{Embedding: Generate(req.Text), Model: "fallback", Fallback: true}, nil
}

func (p *FallbackProvider) BatchGenerateEmbeddings(ctx context.Context, req BatchRequest) (*BatchResponse, error) {
	out := make([]Response, len(req.Texts))
	for i, text := range req.Texts {
		out[i] = Response{Embedding: Generate(text), Model: "fallback", Fallback: true}
	}
	return &BatchResponse{Embeddings: out, Model: "fallback"}, nil
}

// Generate builds a deterministic 768-dim vector from text: the bulk of
// the vector is layered SHA-256 hash material (each layer re-hashes the
// previous digest, so dimensions don't simply repeat every 32 bytes), and
// the final few dimensions carry lexical features — token count, unique
// token ratio, mean token length, and a positional sinusoid — so that
// texts of similar shape land near each other even under this degraded
// mode. The whole vector is L2-normalized.
func Generate(text string) []float32 {
	// hashWeight scales the hash material down so the handful of lexical
	// feature dimensions still move the normalized vector's direction.
	const hashWeight = 0.2

	out := make([]float32, Dimensions)

	layers := (Dimensions + sha256.Size - 1) / sha256.Size
	digest := sha256.Sum256([]byte(text))
	idx := 0
	for l := 0; l < layers && idx < Dimensions; l++ {
		for _, b := range digest {
			if idx >= Dimensions {
				break
			}
			// Map byte [0,255] to roughly [-1,1], then apply hashWeight.
			out[idx] = (float32(b)/127.5 - 1.0) * hashWeight
			idx++
		}
		digest = sha256.Sum256(digest[:])
	}

	features := lexicalFeatures(text)
	featureStart := Dimensions - len(features)
	if featureStart < 0 {
		featureStart = 0
	}
	for i, f := range features {
		if featureStart+i >= Dimensions {
			break
		}
		out[featureStart+i] = f
	}

	normalize(out)
	return out
}

func lexicalFeatures(text string) []float32 {
	tokens := strings.Fields(text)
	tokenCount := float64(len(tokens))

	unique := make(map[string]struct{}, len(tokens))
	var totalLen float64
	for _, tok := range tokens {
		unique[strings.ToLower(tok)] = struct{}{}
		totalLen += float64(len(tok))
	}

	uniqueRatio := 0.0
	meanLen := 0.0
	if tokenCount > 0 {
		uniqueRatio = float64(len(unique)) / tokenCount
		meanLen = totalLen / tokenCount
	}

	const sinusoidDims = 8
	feats := make([]float32, 4+sinusoidDims)
	feats[0] = float32(math.Tanh(tokenCount / 50.0))
	feats[1] = float32(uniqueRatio)
	feats[2] = float32(math.Tanh(meanLen / 10.0))
	feats[3] = float32(math.Tanh(float64(len(text)) / 500.0))
	for i := 0; i < sinusoidDims; i++ {
		freq := math.Pow(2, float64(i))
		feats[4+i] = float32(math.Sin(tokenCount * freq / 100.0))
	}
	return feats
}

func normalize(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return
	}
	norm := math.Sqrt(sumSq)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}
