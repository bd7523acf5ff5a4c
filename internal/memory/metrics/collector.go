package metrics

import (
	"context"
	"time"

	"github.com/driftline/memorycore/internal/memory/lifecycle"
)

// Gauges is the set of point-in-time values the evaluation loop samples
// each tick. A real deployment wires this to OS/runtime/queue
// introspection; tests supply a fake.
type Gauges interface {
	MemoryRSSBytes() float64
	RetrievalP99Seconds() float64
	QueueDepth() float64
	CacheHitRate() float64
}

// Collector periodically samples Gauges and feeds each value into a
// Monitor, registered as a named interval on a lifecycle.Manager so it
// starts and stops alongside every other background activity.
type Collector struct {
	monitor *Monitor
	gauges  Gauges
}

// NewCollector builds a Collector over monitor and gauges.
func NewCollector(monitor *Monitor, gauges Gauges) *Collector {
	return &Collector{monitor: monitor, gauges: gauges}
}

// Start registers the sampling loop on mgr under id, ticking every
// interval until mgr.ClearInterval(id) or mgr.Shutdown.
func (c *Collector) Start(mgr *lifecycle.Manager, id string, interval time.Duration) {
	mgr.RegisterInterval(id, interval, func(ctx context.Context) {
		c.sampleOnce()
	})
}

func (c *Collector) sampleOnce() {
	c.monitor.Observe("high_memory_rss", c.gauges.MemoryRSSBytes())
	c.monitor.Observe("slow_retrieval_p99", c.gauges.RetrievalP99Seconds())
	c.monitor.Observe("high_queue_depth", c.gauges.QueueDepth())
	c.monitor.Observe("low_cache_hit_rate", c.gauges.CacheHitRate())
}
