package embedding

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/driftline/memorycore/internal/memory/observability"
	"github.com/driftline/memorycore/internal/memory/resilience"
)

// ClientConfig tunes batching, concurrency, and retry behavior.
type ClientConfig struct {
	BatchSize         int
	ConcurrencyCeiling int
	MaxRetries        int
	RetryBaseDelay    time.Duration
}

func (c *ClientConfig) applyDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = 10
	}
	if c.ConcurrencyCeiling == 0 {
		c.ConcurrencyCeiling = 5
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBaseDelay == 0 {
		c.RetryBaseDelay = 200 * time.Millisecond
	}
}

// Stats mirrors the embedding contract's statistics surface.
type Stats struct {
	TotalEmbeddings int64
	CacheHits       int64
	CacheMisses     int64
	Errors          int64
	AverageLatency  time.Duration
}

// Client is the public embedding contract: embed(text), embed_batch(texts),
// backed by a primary Provider with circuit-breaker protection and a
// fallback generator for degraded-mode operation.
type Client struct {
	primary  Provider
	fallback Provider
	breaker  *resilience.CircuitBreaker
	config   ClientConfig
	logger   observability.Logger
	metrics  observability.MetricsClient

	mu            sync.Mutex
	totalEmbeddings int64
	errorCount      int64
	latencySum      time.Duration
	latencyCount    int64
}

// NewClient wires primary (an HTTPProvider, typically) behind a circuit
// breaker, falling back to a deterministic generator on primary failure
// or when the breaker is open.
func NewClient(primary Provider, config ClientConfig, logger observability.Logger, metrics observability.MetricsClient) *Client {
	config.applyDefaults()
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetrics()
	}
	return &Client{
		primary:  primary,
		fallback: NewFallbackProvider(),
		breaker: resilience.NewCircuitBreaker("embedding-client", resilience.CircuitBreakerConfig{
			TimeoutThreshold: 10 * time.Second,
		}, logger, metrics),
		config:  config,
		logger:  logger,
		metrics: metrics,
	}
}

// Embed returns a 768-dim vector for text, retrying the primary provider
// with exponential backoff before degrading to the fallback generator.
func (c *Client) Embed(ctx context.Context, text string) (*Response, error) {
	start := time.Now()
	resp, err := c.embedWithRetry(ctx, text)
	c.recordLatency(time.Since(start))
	if err != nil {
		c.incErrors()
		c.logger.Warn("embedding primary failed, using fallback", map[string]interface{}{"error": err.Error()})
		c.metrics.IncrementCounter("embedding_fallback_total", 1, nil)
		fb, fbErr := c.fallback.GenerateEmbedding(ctx, Request{Text: text})
		if fbErr != nil {
			return nil, fbErr
		}
		c.incTotal()
		return fb, nil
	}
	c.incTotal()
	return resp, nil
}

func (c *Client) embedWithRetry(ctx context.Context, text string) (*Response, error) {
	var result *Response
	err := resilience.Retry(ctx, resilience.RetryConfig{
		MaxRetries:     c.config.MaxRetries,
		InitialBackoff: c.config.RetryBaseDelay,
	}, func() error {
		v, cbErr := c.breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
			return c.primary.GenerateEmbedding(ctx, Request{Text: text})
		})
		if cbErr != nil {
			return cbErr
		}
		result = v.(*Response)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// EmbedBatch embeds texts in batches of config.BatchSize, issuing up to
// ConcurrencyCeiling batches concurrently. Ordering of the returned slice
// matches the input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) (*BatchResponse, error) {
	if len(texts) == 0 {
		return &BatchResponse{}, nil
	}

	out := make([]Response, len(texts))
	sem := make(chan struct{}, c.config.ConcurrencyCeiling)
	var wg sync.WaitGroup
	var firstErr atomic.Value

	batchSize := c.config.BatchSize
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		start, end := start, end

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			for i := start; i < end; i++ {
				resp, err := c.Embed(ctx, texts[i])
				if err != nil {
					firstErr.CompareAndSwap(nil, err)
					continue
				}
				out[i] = *resp
			}
		}()
	}
	wg.Wait()

	if v := firstErr.Load(); v != nil {
		return nil, v.(error)
	}
	return &BatchResponse{Embeddings: out}, nil
}

// Stats returns a snapshot of embedding statistics.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	avg := time.Duration(0)
	if c.latencyCount > 0 {
		avg = c.latencySum / time.Duration(c.latencyCount)
	}
	return Stats{
		TotalEmbeddings: c.totalEmbeddings,
		Errors:          c.errorCount,
		AverageLatency:  avg,
	}
}

func (c *Client) incTotal() {
	c.mu.Lock()
	c.totalEmbeddings++
	c.mu.Unlock()
}

func (c *Client) incErrors() {
	c.mu.Lock()
	c.errorCount++
	c.mu.Unlock()
}

func (c *Client) recordLatency(d time.Duration) {
	c.mu.Lock()
	c.latencySum += d
	c.latencyCount++
	c.mu.Unlock()
	c.metrics.RecordLatency("embedding", d)
}
