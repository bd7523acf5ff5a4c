package lifecycle

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_RegisterInterval_FiresRepeatedly(t *testing.T) {
	m := NewManager(nil)
	var count int64
	m.RegisterInterval("tick", 5*time.Millisecond, func(ctx context.Context) {
		atomic.AddInt64(&count, 1)
	})

	time.Sleep(30 * time.Millisecond)
	m.ClearInterval("tick")
	got := atomic.LoadInt64(&count)
	assert.Greater(t, got, int64(1))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, got, atomic.LoadInt64(&count), "no further fires after ClearInterval")
}

func TestManager_RegisterTimeout_FiresOnceUnlessCleared(t *testing.T) {
	m := NewManager(nil)
	var fired int64
	m.RegisterTimeout("once", 5*time.Millisecond, func(ctx context.Context) {
		atomic.AddInt64(&fired, 1)
	})
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int64(1), atomic.LoadInt64(&fired))

	m.RegisterTimeout("cleared", 20*time.Millisecond, func(ctx context.Context) {
		atomic.AddInt64(&fired, 100)
	})
	m.ClearTimeout("cleared")
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int64(1), atomic.LoadInt64(&fired))
}

func TestManager_RegisterWorker_StopsOnClear(t *testing.T) {
	m := NewManager(nil)
	started := make(chan struct{})
	stopped := make(chan struct{})
	m.RegisterWorker("w1", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(stopped)
	})

	<-started
	m.ClearWorker("w1")
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestManager_Shutdown_StopsEverythingAndRunsCleanups(t *testing.T) {
	m := NewManager(nil)
	var intervalFires, cleanupRuns int64
	m.RegisterInterval("tick", 5*time.Millisecond, func(ctx context.Context) {
		atomic.AddInt64(&intervalFires, 1)
	})
	workerStopped := make(chan struct{})
	m.RegisterWorker("w1", func(ctx context.Context) {
		<-ctx.Done()
		close(workerStopped)
	})
	m.RegisterCleanup("c1", func() {
		atomic.AddInt64(&cleanupRuns, 1)
	})

	err := m.Shutdown(context.Background())
	require.NoError(t, err)
	select {
	case <-workerStopped:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop during shutdown")
	}
	assert.Equal(t, int64(1), atomic.LoadInt64(&cleanupRuns))

	afterShutdown := atomic.LoadInt64(&intervalFires)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, afterShutdown, atomic.LoadInt64(&intervalFires))
}

func TestManager_Shutdown_IsIdempotentAndConcurrencySafe(t *testing.T) {
	m := NewManager(nil)
	var cleanupRuns int64
	m.RegisterCleanup("c1", func() {
		atomic.AddInt64(&cleanupRuns, 1)
	})

	done := make(chan error, 5)
	for i := 0; i < 5; i++ {
		go func() { done <- m.Shutdown(context.Background()) }()
	}
	for i := 0; i < 5; i++ {
		require.NoError(t, <-done)
	}
	assert.Equal(t, int64(1), atomic.LoadInt64(&cleanupRuns))
}
