package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig bounds an exponential backoff retry loop.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (c RetryConfig) backoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if c.InitialBackoff > 0 {
		b.InitialInterval = c.InitialBackoff
	}
	if c.MaxBackoff > 0 {
		b.MaxInterval = c.MaxBackoff
	}
	var bo backoff.BackOff = b
	if c.MaxRetries > 0 {
		bo = backoff.WithMaxRetries(b, uint64(c.MaxRetries))
	}
	return backoff.WithContext(bo, ctx)
}

// Retry runs op until it succeeds, ctx is cancelled, or retries are
// exhausted. op should wrap non-retryable failures in backoff.Permanent.
func Retry(ctx context.Context, cfg RetryConfig, op func() error) error {
	return backoff.Retry(op, cfg.backoff(ctx))
}
