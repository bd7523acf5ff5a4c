// Package metrics layers named alert thresholds with cool-down
// auto-resolve on top of the raw counters, gauges, and histograms
// recorded via observability.MetricsClient.
package metrics

import (
	"sync"
	"time"

	"github.com/driftline/memorycore/internal/memory/observability"
)

// Comparator decides whether an observed value breaches a threshold.
type Comparator func(observed, threshold float64) bool

// Above and Below are the two comparators every named alert is built
// from (e.g. "queue depth above N", "cache hit rate below N").
func Above(observed, threshold float64) bool { return observed > threshold }
func Below(observed, threshold float64) bool { return observed < threshold }

// ThresholdRule names one alert condition.
type ThresholdRule struct {
	Name      string
	Threshold float64
	Compare   Comparator
	CoolDown  time.Duration
}

func (r *ThresholdRule) applyDefaults() {
	if r.Compare == nil {
		r.Compare = Above
	}
	if r.CoolDown == 0 {
		r.CoolDown = time.Minute
	}
}

// Alert is the current state of one raised condition.
type Alert struct {
	Name      string
	Value     float64
	Threshold float64
	RaisedAt  time.Time
}

type alertState struct {
	rule           ThresholdRule
	active         bool
	raisedAt       time.Time
	lastValue      float64
	belowSinceTime time.Time
	hasBelowSince  bool
}

// Monitor evaluates a fixed set of named threshold rules against
// observed values, raising and — after a rule's cool-down window spent
// entirely below (or above, for a Below rule) threshold — auto-resolving
// alerts, and mirrors every transition into the engine's metrics client
// as a gauge so it shows up on the same dashboards as everything else.
type Monitor struct {
	metrics observability.MetricsClient
	now     func() time.Time

	mu     sync.Mutex
	states map[string]*alertState
}

// NewMonitor builds a Monitor over rules. metrics may be nil (falls back
// to a no-op client).
func NewMonitor(rules []ThresholdRule, metricsClient observability.MetricsClient) *Monitor {
	if metricsClient == nil {
		metricsClient = observability.NewNoopMetrics()
	}
	states := make(map[string]*alertState, len(rules))
	for _, r := range rules {
		r.applyDefaults()
		states[r.Name] = &alertState{rule: r}
	}
	return &Monitor{metrics: metricsClient, now: time.Now, states: states}
}

// Observe feeds one value for the named rule, updating alert state.
// Unknown names are ignored (the caller's metric isn't alert-worthy).
func (m *Monitor) Observe(name string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[name]
	if !ok {
		return
	}

	now := m.now()
	st.lastValue = value
	breaching := st.rule.Compare(value, st.rule.Threshold)

	if breaching {
		st.hasBelowSince = false
		if !st.active {
			st.active = true
			st.raisedAt = now
			m.metrics.RecordGauge("alert_active", 1, map[string]string{"alert": name})
		}
		return
	}

	if !st.active {
		return
	}

	if !st.hasBelowSince {
		st.hasBelowSince = true
		st.belowSinceTime = now
		return
	}

	if now.Sub(st.belowSinceTime) >= st.rule.CoolDown {
		st.active = false
		st.hasBelowSince = false
		m.metrics.RecordGauge("alert_active", 0, map[string]string{"alert": name})
	}
}

// Active returns every currently-raised alert, sorted by name for
// deterministic output.
func (m *Monitor) Active() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Alert, 0, len(m.states))
	for name, st := range m.states {
		if st.active {
			out = append(out, Alert{Name: name, Value: st.lastValue, Threshold: st.rule.Threshold, RaisedAt: st.raisedAt})
		}
	}
	sortAlertsByName(out)
	return out
}

func sortAlertsByName(a []Alert) {
	for i := 1; i < len(a); i++ {
		for j := i; j > 0 && a[j].Name < a[j-1].Name; j-- {
			a[j], a[j-1] = a[j-1], a[j]
		}
	}
}

// DefaultRules returns the named alerts spec §4.11 calls out by example:
// high memory, slow response, high queue length.
func DefaultRules() []ThresholdRule {
	return []ThresholdRule{
		{Name: "high_memory_rss", Threshold: 1 << 30, Compare: Above, CoolDown: 2 * time.Minute},
		{Name: "slow_retrieval_p99", Threshold: 1.0, Compare: Above, CoolDown: time.Minute},
		{Name: "high_queue_depth", Threshold: 1000, Compare: Above, CoolDown: time.Minute},
		{Name: "low_cache_hit_rate", Threshold: 0.2, Compare: Below, CoolDown: 5 * time.Minute},
	}
}
