package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPProviderConfig configures the local model host client.
type HTTPProviderConfig struct {
	Endpoint       string
	Model          string
	RequestTimeout time.Duration
}

func (c *HTTPProviderConfig) applyDefaults() {
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.Model == "" {
		c.Model = "nomic-embed-text"
	}
}

// HTTPProvider talks to a local, Ollama-style model host: a model-listing
// probe for availability and a synchronous embedding endpoint.
type HTTPProvider struct {
	config HTTPProviderConfig
	client *http.Client
}

// NewHTTPProvider builds a provider against an already-reachable host.
// Availability is verified separately via HealthCheck.
func NewHTTPProvider(config HTTPProviderConfig) *HTTPProvider {
	config.applyDefaults()
	return &HTTPProvider{
		config: config,
		client: &http.Client{Timeout: config.RequestTimeout},
	}
}

func (p *HTTPProvider) Name() string { return "http-local" }

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

type modelListResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// HealthCheck lists installed models and confirms the configured model is
// among them.
func (p *HTTPProvider) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.Endpoint+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("build health check request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("embedding host unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("embedding host returned status %d", resp.StatusCode)
	}
	var listed modelListResponse
	if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
		return fmt.Errorf("decode model list: %w", err)
	}
	for _, m := range listed.Models {
		if m.Name == p.config.Model {
			return nil
		}
	}
	return fmt.Errorf("model %q not present on embedding host", p.config.Model)
}

// GenerateEmbedding calls the synchronous embedding endpoint.
func (p *HTTPProvider) GenerateEmbedding(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = p.config.Model
	}

	body, err := json.Marshal(embedRequest{Model: model, Prompt: req.Text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Endpoint+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("embedding host call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding host status %d: %s", resp.StatusCode, string(payload))
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(decoded.Embedding) != Dimensions {
		return nil, fmt.Errorf("embedding host returned %d dimensions, want %d", len(decoded.Embedding), Dimensions)
	}

	return &Response{Embedding: decoded.Embedding, Model: model}, nil
}

// BatchGenerateEmbeddings issues one request per text; the host has no
// native batch endpoint, so concurrency is the caller's (Client's) job.
func (p *HTTPProvider) BatchGenerateEmbeddings(ctx context.Context, req BatchRequest) (*BatchResponse, error) {
	out := make([]Response, len(req.Texts))
	for i, text := range req.Texts {
		resp, err := p.GenerateEmbedding(ctx, Request{Text: text, Model: req.Model})
		if err != nil {
			return nil, fmt.Errorf("embedding text %d of %d: %w", i+1, len(req.Texts), err)
		}
		out[i] = *resp
	}
	return &BatchResponse{Embeddings: out, Model: req.Model}, nil
}
