package observability

import (
	"sync"
	"time"
)

// MockMetricsRegistry records labelled counter increments so tests can assert
// on them. Latency observations are discarded.
type MockMetricsRegistry struct {
	mu       sync.Mutex
	counters map[string]int
	loaded   int
}

func (m *MockMetricsRegistry) inc(name, label string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = make(map[string]int)
	}
	m.counters[name+":"+label] += n
}

// Count returns the value recorded for name and label, e.g.
// Count("displays", "success").
func (m *MockMetricsRegistry) Count(name, label string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name+":"+label]
}

// CampaignsLoaded returns the last value passed to SetCampaignsLoaded.
func (m *MockMetricsRegistry) CampaignsLoaded() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

func (m *MockMetricsRegistry) IncrementRequests(endpoint, method, status string) {
	m.inc("requests", endpoint+" "+method+" "+status, 1)
}
func (m *MockMetricsRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (m *MockMetricsRegistry) IncrementSignals(kind string)                                         { m.inc("signals", kind, 1) }
func (m *MockMetricsRegistry) IncrementSignalsSkipped(reason string)                                { m.inc("skipped", reason, 1) }
func (m *MockMetricsRegistry) IncrementSelections(outcome string)                                   { m.inc("selections", outcome, 1) }
func (m *MockMetricsRegistry) RecordSelectionDuration(duration time.Duration)                       {}
func (m *MockMetricsRegistry) IncrementDisplays(status string)                                      { m.inc("displays", status, 1) }
func (m *MockMetricsRegistry) IncrementJITRequests(outcome string)                                  { m.inc("jit", outcome, 1) }
func (m *MockMetricsRegistry) RecordJITLatency(duration time.Duration)                              {}
func (m *MockMetricsRegistry) IncrementRefreshes(outcome string)                                    { m.inc("refreshes", outcome, 1) }
func (m *MockMetricsRegistry) AddDroppedRecords(n int)                                              { m.inc("dropped", "", n) }
func (m *MockMetricsRegistry) IncrementRateLimitRequests(key string)                                { m.inc("ratelimit_requests", key, 1) }
func (m *MockMetricsRegistry) IncrementRateLimitHits(key string)                                    { m.inc("ratelimit_hits", key, 1) }

func (m *MockMetricsRegistry) SetCampaignsLoaded(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = n
}
