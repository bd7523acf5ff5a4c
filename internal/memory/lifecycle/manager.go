// Package lifecycle owns every long-lived background activity the memory
// engine starts: scheduled intervals, timeouts, worker goroutines, and
// arbitrary cleanup hooks, so a single call can tear all of it down in
// dependency order.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/driftline/memorycore/internal/memory/observability"
)

// Manager registers and terminates the engine's background activity.
// Every registration is keyed by id so a caller can replace or clear one
// without affecting the others; Shutdown is idempotent and safe to call
// from multiple goroutines.
type Manager struct {
	logger observability.Logger

	mu        sync.Mutex
	intervals map[string]*intervalHandle
	timeouts  map[string]*timeoutHandle
	workers   map[string]*workerHandle
	cleanups  []cleanupEntry

	shutdownOnce sync.Once
	shutdown     chan struct{}
}

type intervalHandle struct {
	ticker *time.Ticker
	done   chan struct{}
}

type timeoutHandle struct {
	timer *time.Timer
}

type workerHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type cleanupEntry struct {
	id string
	fn func()
}

// NewManager builds a Manager. logger may be nil (falls back to a no-op).
func NewManager(logger observability.Logger) *Manager {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Manager{
		logger:    logger,
		intervals: make(map[string]*intervalHandle),
		timeouts:  make(map[string]*timeoutHandle),
		workers:   make(map[string]*workerHandle),
		shutdown:  make(chan struct{}),
	}
}

// RegisterInterval runs fn every period until ClearInterval(id) or
// Shutdown. Re-registering the same id first clears the previous one.
func (m *Manager) RegisterInterval(id string, period time.Duration, fn func(ctx context.Context)) {
	m.ClearInterval(id)

	ticker := time.NewTicker(period)
	done := make(chan struct{})
	m.mu.Lock()
	m.intervals[id] = &intervalHandle{ticker: ticker, done: done}
	m.mu.Unlock()

	go func() {
		for {
			select {
			case <-ticker.C:
				func() {
					defer m.recoverPanic(id)
					fn(context.Background())
				}()
			case <-done:
				return
			case <-m.shutdown:
				return
			}
		}
	}()
}

// ClearInterval stops and forgets id's interval, if registered.
func (m *Manager) ClearInterval(id string) {
	m.mu.Lock()
	h, ok := m.intervals[id]
	if ok {
		delete(m.intervals, id)
	}
	m.mu.Unlock()
	if ok {
		h.ticker.Stop()
		close(h.done)
	}
}

// RegisterTimeout runs fn once after delay unless ClearTimeout(id) fires
// first.
func (m *Manager) RegisterTimeout(id string, delay time.Duration, fn func(ctx context.Context)) {
	m.ClearTimeout(id)

	timer := time.AfterFunc(delay, func() {
		defer m.recoverPanic(id)
		m.mu.Lock()
		delete(m.timeouts, id)
		m.mu.Unlock()
		fn(context.Background())
	})
	m.mu.Lock()
	m.timeouts[id] = &timeoutHandle{timer: timer}
	m.mu.Unlock()
}

// ClearTimeout cancels a pending timeout, if registered and not yet fired.
func (m *Manager) ClearTimeout(id string) {
	m.mu.Lock()
	h, ok := m.timeouts[id]
	if ok {
		delete(m.timeouts, id)
	}
	m.mu.Unlock()
	if ok {
		h.timer.Stop()
	}
}

// RegisterWorker starts fn in its own goroutine with a context canceled
// on ClearWorker(id) or Shutdown. fn must return when ctx is done.
func (m *Manager) RegisterWorker(id string, fn func(ctx context.Context)) {
	m.ClearWorker(id)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.mu.Lock()
	m.workers[id] = &workerHandle{cancel: cancel, done: done}
	m.mu.Unlock()

	go func() {
		defer close(done)
		defer m.recoverPanic(id)
		fn(ctx)
	}()
}

// ClearWorker cancels id's worker and waits for it to return.
func (m *Manager) ClearWorker(id string) {
	m.mu.Lock()
	h, ok := m.workers[id]
	if ok {
		delete(m.workers, id)
	}
	m.mu.Unlock()
	if ok {
		h.cancel()
		<-h.done
	}
}

// RegisterCleanup adds fn to the set run once, in registration order,
// during Shutdown.
func (m *Manager) RegisterCleanup(id string, fn func()) {
	m.mu.Lock()
	m.cleanups = append(m.cleanups, cleanupEntry{id: id, fn: fn})
	m.mu.Unlock()
}

// Shutdown stops every interval, timeout, and worker, then runs cleanups
// in registration order. Safe to call more than once or concurrently:
// only the first call does anything, and every caller blocks until it
// completes.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.shutdownOnce.Do(func() {
		close(m.shutdown)

		m.mu.Lock()
		intervals := m.intervals
		timeouts := m.timeouts
		workers := m.workers
		cleanups := m.cleanups
		m.intervals = make(map[string]*intervalHandle)
		m.timeouts = make(map[string]*timeoutHandle)
		m.workers = make(map[string]*workerHandle)
		m.cleanups = nil
		m.mu.Unlock()

		for _, h := range intervals {
			h.ticker.Stop()
		}
		for _, h := range timeouts {
			h.timer.Stop()
		}

		var wg sync.WaitGroup
		for id, h := range workers {
			wg.Add(1)
			go func(id string, h *workerHandle) {
				defer wg.Done()
				h.cancel()
				select {
				case <-h.done:
				case <-ctx.Done():
					m.logger.Warn("worker did not stop before shutdown deadline", map[string]interface{}{"worker_id": id})
				}
			}(id, h)
		}
		wg.Wait()

		for _, c := range cleanups {
			func() {
				defer func() {
					if r := recover(); r != nil {
						m.logger.Error("cleanup panicked", map[string]interface{}{"cleanup_id": c.id, "panic": fmt.Sprint(r)})
					}
				}()
				c.fn()
			}()
		}
	})
	return nil
}

func (m *Manager) recoverPanic(id string) {
	if r := recover(); r != nil {
		m.logger.Error("background task panicked", map[string]interface{}{"task_id": id, "panic": fmt.Sprint(r)})
	}
}
