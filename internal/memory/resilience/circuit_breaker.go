// Package resilience provides the circuit breaker and retry primitives
// shared by the embedding client and the connection pool.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/driftline/memorycore/internal/memory/observability"
)

// CircuitBreakerState is one of closed/open/half-open.
type CircuitBreakerState int

const (
	CircuitBreakerClosed CircuitBreakerState = iota
	CircuitBreakerOpen
	CircuitBreakerHalfOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case CircuitBreakerClosed:
		return "closed"
	case CircuitBreakerOpen:
		return "open"
	case CircuitBreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	ErrCircuitBreakerOpen  = errors.New("circuit breaker is open")
	ErrCircuitTimeout      = errors.New("circuit breaker timeout")
	ErrMaxRequestsExceeded = errors.New("max requests exceeded in half-open state")
)

// CircuitBreakerConfig tunes the breaker. Zero values are replaced with
// the defaults below.
type CircuitBreakerConfig struct {
	FailureThreshold    int
	FailureRatio        float64
	ResetTimeout        time.Duration
	SuccessThreshold    int
	TimeoutThreshold    time.Duration
	MaxRequestsHalfOpen int
	MinimumRequestCount int
}

func (c *CircuitBreakerConfig) applyDefaults() {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.FailureRatio == 0 {
		c.FailureRatio = 0.6
	}
	if c.ResetTimeout == 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = 2
	}
	if c.TimeoutThreshold == 0 {
		c.TimeoutThreshold = 5 * time.Second
	}
	if c.MaxRequestsHalfOpen == 0 {
		c.MaxRequestsHalfOpen = 5
	}
	if c.MinimumRequestCount == 0 {
		c.MinimumRequestCount = 10
	}
}

type counts struct {
	Requests             int64
	Failures             int64
	ConsecutiveSuccesses int64
	ConsecutiveFailures  int64
}

func (c *counts) recordSuccess() {
	c.Requests++
	c.ConsecutiveSuccesses++
	c.ConsecutiveFailures = 0
}

func (c *counts) recordFailure() {
	c.Requests++
	c.Failures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
}

// CircuitBreaker wraps a fallible operation, tripping to Open after
// repeated failures and probing back to Closed via a Half-Open window.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig

	mu              sync.Mutex
	state           CircuitBreakerState
	counts          counts
	lastFailureTime time.Time
	lastStateChange time.Time

	halfOpenRequests atomic.Int32

	logger  observability.Logger
	metrics observability.MetricsClient
}

// NewCircuitBreaker builds a breaker named name, applying config defaults.
func NewCircuitBreaker(name string, config CircuitBreakerConfig, logger observability.Logger, metrics observability.MetricsClient) *CircuitBreaker {
	config.applyDefaults()
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetrics()
	}
	return &CircuitBreaker{
		name:            name,
		config:          config,
		state:           CircuitBreakerClosed,
		lastStateChange: time.Now(),
		logger:          logger,
		metrics:         metrics,
	}
}

// Execute runs fn under breaker protection. fn runs in its own goroutine
// with a context bounded by TimeoutThreshold; Execute returns as soon as
// fn finishes, ctx is cancelled, or the timeout elapses. On cancellation
// or timeout fn's context is cancelled but Execute does not wait for fn
// to return.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	start := time.Now()

	if err := cb.canExecute(); err != nil {
		cb.recordFailure()
		cb.metrics.RecordOperation("circuit_breaker", cb.name, false, time.Since(start).Seconds(), map[string]string{"result": "rejected"})
		return nil, fmt.Errorf("circuit breaker %q: %w", cb.name, err)
	}

	if cb.getState() == CircuitBreakerHalfOpen {
		cb.halfOpenRequests.Add(1)
		defer cb.halfOpenRequests.Add(-1)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, cb.config.TimeoutThreshold)
	defer cancel()

	type outcome struct {
		value interface{}
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(timeoutCtx)
		done <- outcome{value: v, err: err}
	}()

	select {
	case <-timeoutCtx.Done():
		cb.recordFailure()
		cb.metrics.RecordOperation("circuit_breaker", cb.name, false, time.Since(start).Seconds(), map[string]string{"result": "timeout"})
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrCircuitTimeout
	case o := <-done:
		if o.err != nil {
			cb.recordFailure()
			cb.metrics.RecordOperation("circuit_breaker", cb.name, false, time.Since(start).Seconds(), map[string]string{"result": "failure"})
			return nil, o.err
		}
		cb.recordSuccess()
		cb.metrics.RecordOperation("circuit_breaker", cb.name, true, time.Since(start).Seconds(), map[string]string{"result": "success"})
		return o.value, nil
	}
}

func (cb *CircuitBreaker) canExecute() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitBreakerClosed:
		return nil
	case CircuitBreakerOpen:
		if time.Since(cb.lastFailureTime) > cb.config.ResetTimeout {
			cb.transitionTo(CircuitBreakerHalfOpen)
			return nil
		}
		return ErrCircuitBreakerOpen
	case CircuitBreakerHalfOpen:
		if int(cb.halfOpenRequests.Load()) >= cb.config.MaxRequestsHalfOpen {
			return ErrMaxRequestsExceeded
		}
		return nil
	default:
		return fmt.Errorf("unknown circuit breaker state: %v", cb.state)
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.counts.recordSuccess()
	if cb.state == CircuitBreakerHalfOpen && cb.counts.ConsecutiveSuccesses >= int64(cb.config.SuccessThreshold) {
		cb.transitionTo(CircuitBreakerClosed)
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.counts.recordFailure()
	cb.lastFailureTime = time.Now()

	switch cb.state {
	case CircuitBreakerClosed:
		if cb.counts.ConsecutiveFailures >= int64(cb.config.FailureThreshold) {
			cb.transitionTo(CircuitBreakerOpen)
		} else if cb.counts.Requests >= int64(cb.config.MinimumRequestCount) {
			if float64(cb.counts.Failures)/float64(cb.counts.Requests) >= cb.config.FailureRatio {
				cb.transitionTo(CircuitBreakerOpen)
			}
		}
	case CircuitBreakerHalfOpen:
		cb.transitionTo(CircuitBreakerOpen)
	}
}

// transitionTo must be called with cb.mu held.
func (cb *CircuitBreaker) transitionTo(newState CircuitBreakerState) {
	if cb.state == newState {
		return
	}
	old := cb.state
	cb.state = newState
	cb.lastStateChange = time.Now()
	if newState == CircuitBreakerClosed {
		cb.counts = counts{}
	}
	cb.logger.Info("circuit breaker state change", map[string]interface{}{
		"name": cb.name,
		"from": old.String(),
		"to":   newState.String(),
	})
	cb.metrics.RecordGauge("circuit_breaker_state", float64(newState), map[string]string{"name": cb.name})
}

func (cb *CircuitBreaker) getState() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// State reports the breaker's current state.
func (cb *CircuitBreaker) State() CircuitBreakerState { return cb.getState() }

// Reset forces the breaker back to Closed, clearing counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transitionTo(CircuitBreakerClosed)
}
