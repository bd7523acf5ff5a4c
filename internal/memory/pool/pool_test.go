package pool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_ExecuteWithRetry_Success(t *testing.T) {
	p := NewPool("test", Config{MaxRetries: 1}, nil, nil)

	v, err := p.ExecuteWithRetry(context.Background(), func(ctx context.Context) (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestPool_ExecuteWithRetry_PropagatesFailure(t *testing.T) {
	p := NewPool("test", Config{MaxRetries: 1}, nil, nil)

	_, err := p.ExecuteWithRetry(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("db down")
	})
	require.Error(t, err)
	assert.Equal(t, int64(1), p.Stats().FailedAcquisitions)
}
