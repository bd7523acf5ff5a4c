package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsClient is the counter/gauge/histogram contract every component
// records against. A no-op and a Prometheus-backed implementation are
// provided; a deployment may substitute its own.
type MetricsClient interface {
	IncrementCounter(name string, value float64, labels map[string]string)
	RecordGauge(name string, value float64, labels map[string]string)
	RecordHistogram(name string, value float64, labels map[string]string)
	RecordLatency(operation string, duration time.Duration)
	RecordCacheOperation(operation string, hit bool, durationSeconds float64)
	RecordOperation(component, operation string, success bool, durationSeconds float64, labels map[string]string)
	StartTimer(name string, labels map[string]string) func()
	Close() error
}

// PrometheusMetrics registers and exposes the engine's metrics through the
// default Prometheus client, lazily creating a vector per metric name so
// callers never have to pre-declare label sets.
type PrometheusMetrics struct {
	registry *prometheus.Registry
	mu       sync.Mutex
	counters map[string]*prometheus.CounterVec
	gauges   map[string]*prometheus.GaugeVec
	hists    map[string]*prometheus.HistogramVec
}

// NewPrometheusMetrics returns a MetricsClient registered against reg, or
// against a fresh private registry if reg is nil.
func NewPrometheusMetrics(reg *prometheus.Registry) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &PrometheusMetrics{
		registry: reg,
		counters: make(map[string]*prometheus.CounterVec),
		gauges:   make(map[string]*prometheus.GaugeVec),
		hists:    make(map[string]*prometheus.HistogramVec),
	}
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	return names
}

func (p *PrometheusMetrics) counterVec(name string, labels map[string]string) *prometheus.CounterVec {
	p.mu.Lock()
	defer p.mu.Unlock()
	cv, ok := p.counters[name]
	if !ok {
		cv = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "memorycore_" + name}, labelNames(labels))
		p.registry.MustRegister(cv)
		p.counters[name] = cv
	}
	return cv
}

func (p *PrometheusMetrics) gaugeVec(name string, labels map[string]string) *prometheus.GaugeVec {
	p.mu.Lock()
	defer p.mu.Unlock()
	gv, ok := p.gauges[name]
	if !ok {
		gv = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "memorycore_" + name}, labelNames(labels))
		p.registry.MustRegister(gv)
		p.gauges[name] = gv
	}
	return gv
}

func (p *PrometheusMetrics) histVec(name string, labels map[string]string) *prometheus.HistogramVec {
	p.mu.Lock()
	defer p.mu.Unlock()
	hv, ok := p.hists[name]
	if !ok {
		hv = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "memorycore_" + name}, labelNames(labels))
		p.registry.MustRegister(hv)
		p.hists[name] = hv
	}
	return hv
}

func (p *PrometheusMetrics) IncrementCounter(name string, value float64, labels map[string]string) {
	p.counterVec(name, labels).With(labels).Add(value)
}

func (p *PrometheusMetrics) RecordGauge(name string, value float64, labels map[string]string) {
	p.gaugeVec(name, labels).With(labels).Set(value)
}

func (p *PrometheusMetrics) RecordHistogram(name string, value float64, labels map[string]string) {
	p.histVec(name, labels).With(labels).Observe(value)
}

func (p *PrometheusMetrics) RecordLatency(operation string, duration time.Duration) {
	p.RecordHistogram("latency_seconds", duration.Seconds(), map[string]string{"operation": operation})
}

func (p *PrometheusMetrics) RecordCacheOperation(operation string, hit bool, durationSeconds float64) {
	result := "miss"
	if hit {
		result = "hit"
	}
	p.IncrementCounter("cache_operations_total", 1, map[string]string{"operation": operation, "result": result})
	p.RecordHistogram("cache_operation_seconds", durationSeconds, map[string]string{"operation": operation})
}

func (p *PrometheusMetrics) RecordOperation(component, operation string, success bool, durationSeconds float64, labels map[string]string) {
	merged := map[string]string{"component": component, "operation": operation, "success": boolLabel(success)}
	for k, v := range labels {
		merged[k] = v
	}
	p.IncrementCounter("operations_total", 1, merged)
	p.RecordHistogram("operation_seconds", durationSeconds, map[string]string{"component": component, "operation": operation})
}

func (p *PrometheusMetrics) StartTimer(name string, labels map[string]string) func() {
	start := time.Now()
	return func() {
		p.RecordHistogram(name, time.Since(start).Seconds(), labels)
	}
}

func (p *PrometheusMetrics) Close() error { return nil }

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// NoopMetrics discards every call.
type NoopMetrics struct{}

func NewNoopMetrics() *NoopMetrics { return &NoopMetrics{} }

func (NoopMetrics) IncrementCounter(string, float64, map[string]string)                  {}
func (NoopMetrics) RecordGauge(string, float64, map[string]string)                       {}
func (NoopMetrics) RecordHistogram(string, float64, map[string]string)                   {}
func (NoopMetrics) RecordLatency(string, time.Duration)                                  {}
func (NoopMetrics) RecordCacheOperation(string, bool, float64)                            {}
func (NoopMetrics) RecordOperation(string, string, bool, float64, map[string]string)      {}
func (NoopMetrics) StartTimer(string, map[string]string) func()                          { return func() {} }
func (NoopMetrics) Close() error                                                          { return nil }
