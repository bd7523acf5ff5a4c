// Package pool layers retry and circuit-breaker protection over the
// store's native *sqlx.DB connection pool.
package pool

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/driftline/memorycore/internal/memory/observability"
	"github.com/driftline/memorycore/internal/memory/resilience"
	"github.com/sony/gobreaker"
)

// Config tunes acquisition timeout and retry behavior.
type Config struct {
	AcquireTimeout time.Duration
	MaxRetries     int
}

func (c *Config) applyDefaults() {
	if c.AcquireTimeout == 0 {
		c.AcquireTimeout = 30 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
}

// Stats mirrors the connection pool's observable surface.
type Stats struct {
	Active             int64
	Queued             int64
	AcquireLatency     time.Duration
	RetryCount         int64
	FailedAcquisitions int64
}

// Pool wraps store operations with two independent resilience layers:
// per-operation retry goes through our own resilience.CircuitBreaker,
// while the pool's own coarse health gate uses sony/gobreaker directly —
// deliberately two idioms side by side rather than collapsing to one.
type Pool struct {
	cfg     Config
	breaker *resilience.CircuitBreaker
	health  *gobreaker.CircuitBreaker

	logger  observability.Logger
	metrics observability.MetricsClient

	retryCount         atomic.Int64
	failedAcquisitions atomic.Int64
}

// NewPool builds a Pool. name identifies the breaker in logs/metrics.
func NewPool(name string, cfg Config, logger observability.Logger, metrics observability.MetricsClient) *Pool {
	cfg.applyDefaults()
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetrics()
	}

	health := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name + "-pool-health",
		MaxRequests: 5,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(n string, from, to gobreaker.State) {
			logger.Info("pool health breaker state change", map[string]interface{}{"name": n, "from": from.String(), "to": to.String()})
		},
	})

	return &Pool{
		cfg: cfg,
		breaker: resilience.NewCircuitBreaker(name+"-operations", resilience.CircuitBreakerConfig{
			TimeoutThreshold: cfg.AcquireTimeout,
		}, logger, metrics),
		health:  health,
		logger:  logger,
		metrics: metrics,
	}
}

// ExecuteWithRetry runs op with at-least-once semantics for idempotent
// reads: retries through resilience.Retry, gated by both the
// per-operation circuit breaker and the pool's coarse health breaker.
// Mutations that are not inherently idempotent must be retried only with
// a caller-supplied idempotency key, matching spec's at-most-once
// guidance for writes — this helper does not enforce that distinction
// itself; callers choose retries accordingly.
func (p *Pool) ExecuteWithRetry(ctx context.Context, op func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	start := time.Now()

	var result interface{}
	err := resilience.Retry(ctx, resilience.RetryConfig{MaxRetries: p.cfg.MaxRetries}, func() error {
		v, err := p.health.Execute(func() (interface{}, error) {
			return p.breaker.Execute(ctx, op)
		})
		if err != nil {
			p.retryCount.Add(1)
			return err
		}
		result = v
		return nil
	})

	p.metrics.RecordLatency("pool_acquire", time.Since(start))
	if err != nil {
		p.failedAcquisitions.Add(1)
		p.metrics.IncrementCounter("pool_failed_acquisitions_total", 1, nil)
		return nil, err
	}
	return result, nil
}

// Stats returns a point-in-time snapshot of pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		RetryCount:         p.retryCount.Load(),
		FailedAcquisitions: p.failedAcquisitions.Load(),
	}
}
