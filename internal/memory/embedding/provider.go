// Package embedding provides the 768-dimensional embedding client: an
// HTTP-backed provider talking to a local model host, a deterministic
// fallback generator for when that host is unreachable, and a Client that
// batches, retries, and circuit-breaks calls to either.
package embedding

import (
	"context"
)

// Dimensions is the fixed embedding width the rest of the engine assumes.
const Dimensions = 768

// Request describes a single embedding call.
type Request struct {
	Text  string
	Model string
}

// BatchRequest describes a batch embedding call.
type BatchRequest struct {
	Texts []string
	Model string
}

// Response carries the generated vector plus provenance.
type Response struct {
	Embedding []float32
	Model     string
	Fallback  bool
}

// BatchResponse carries one vector per input text, in order.
type BatchResponse struct {
	Embeddings []Response
	Model      string
}

// Provider is a single embedding backend (a local model host, a remote
// API, or a deterministic fallback generator).
type Provider interface {
	Name() string
	GenerateEmbedding(ctx context.Context, req Request) (*Response, error)
	BatchGenerateEmbeddings(ctx context.Context, req BatchRequest) (*BatchResponse, error)
	HealthCheck(ctx context.Context) error
}
