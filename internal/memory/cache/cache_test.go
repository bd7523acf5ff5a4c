package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestL1_SetGet(t *testing.T) {
	l1, err := NewL1(10)
	require.NoError(t, err)

	_, ok := l1.Get("hello", "m1")
	assert.False(t, ok)

	l1.Set("hello", "m1", []float32{1, 2, 3})
	v, ok := l1.Get("hello", "m1")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2, 3}, v)
	assert.Equal(t, int64(1), l1.Stats().Hits)
	assert.Equal(t, int64(1), l1.Stats().Misses)
}

func TestL2_ReusesCloseEnoughVector(t *testing.T) {
	l2, err := NewL2(10, 0.95)
	require.NoError(t, err)

	stored := []float32{1, 0, 0}
	l2.Set("k1", stored, "cached-results")

	close := []float32{0.999, 0.001, 0}
	v, ok := l2.Lookup("k2", close)
	require.True(t, ok)
	assert.Equal(t, "cached-results", v)
}

func TestL2_RejectsBelowThreshold(t *testing.T) {
	l2, err := NewL2(10, 0.95)
	require.NoError(t, err)

	l2.Set("k1", []float32{1, 0, 0}, "cached-results")

	far := []float32{0, 1, 0}
	_, ok := l2.Lookup("k2", far)
	assert.False(t, ok)
}

func TestInProcessL3_ExpiresEntries(t *testing.T) {
	l3, err := NewInProcessL3(10, 10*time.Millisecond)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, l3.Set(ctx, "k", []byte("v"), 0))
	v, ok, err := l3.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	time.Sleep(20 * time.Millisecond)
	_, ok, err = l3.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInProcessL3_DeletePrefix(t *testing.T) {
	l3, err := NewInProcessL3(10, time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, l3.Set(ctx, "user1:a", []byte("1"), 0))
	require.NoError(t, l3.Set(ctx, "user1:b", []byte("2"), 0))
	require.NoError(t, l3.Set(ctx, "user2:a", []byte("3"), 0))

	require.NoError(t, l3.DeletePrefix(ctx, "user1:"))

	_, ok, _ := l3.Get(ctx, "user1:a")
	assert.False(t, ok)
	_, ok, _ = l3.Get(ctx, "user2:a")
	assert.True(t, ok)
}

func TestTieredCache_InvalidateUser(t *testing.T) {
	tc, err := NewTieredCache(TieredConfig{}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, tc.L3.Set(ctx, "u1:q1", []byte("page"), 0))
	tc.L2.Set("k1", []float32{1, 0}, "results")

	require.NoError(t, tc.InvalidateUser(ctx, "u1"))

	_, ok, _ := tc.L3.Get(ctx, "u1:q1")
	assert.False(t, ok)
	_, ok = tc.L2.Lookup("k2", []float32{1, 0})
	assert.False(t, ok)
}
