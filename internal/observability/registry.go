package observability

import "time"

// MetricsRegistry provides an interface for recording application metrics.
// Components receive it by injection instead of touching the global
// Prometheus collectors.
type MetricsRegistry interface {
	// HTTP Request metrics
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	// Signal and selection metrics
	IncrementSignals(kind string)
	IncrementSignalsSkipped(reason string)
	IncrementSelections(outcome string)
	RecordSelectionDuration(duration time.Duration)
	IncrementDisplays(status string)

	// JIT metrics
	IncrementJITRequests(outcome string)
	RecordJITLatency(duration time.Duration)

	// Payload metrics
	IncrementRefreshes(outcome string)
	SetCampaignsLoaded(n int)
	AddDroppedRecords(n int)

	// Rate limiting metrics
	IncrementRateLimitRequests(key string)
	IncrementRateLimitHits(key string)
}

// PrometheusRegistry implements MetricsRegistry using the global Prometheus metrics
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementSignals(kind string) {
	SignalCount.WithLabelValues(kind).Inc()
}

func (r *PrometheusRegistry) IncrementSignalsSkipped(reason string) {
	SignalSkippedCount.WithLabelValues(reason).Inc()
}

func (r *PrometheusRegistry) IncrementSelections(outcome string) {
	SelectionCount.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) RecordSelectionDuration(duration time.Duration) {
	SelectionDuration.Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementDisplays(status string) {
	DisplayCount.WithLabelValues(status).Inc()
}

func (r *PrometheusRegistry) IncrementJITRequests(outcome string) {
	JITRequests.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) RecordJITLatency(duration time.Duration) {
	JITLatency.Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementRefreshes(outcome string) {
	RefreshCount.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) SetCampaignsLoaded(n int) {
	CampaignsLoaded.Set(float64(n))
}

func (r *PrometheusRegistry) AddDroppedRecords(n int) {
	DroppedRecords.Add(float64(n))
}

func (r *PrometheusRegistry) IncrementRateLimitRequests(key string) {
	RateLimitRequests.WithLabelValues(key).Inc()
}

func (r *PrometheusRegistry) IncrementRateLimitHits(key string) {
	RateLimitHits.WithLabelValues(key).Inc()
}

// NoOpRegistry implements MetricsRegistry with no-op methods for testing
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

func (r *NoOpRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (r *NoOpRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (r *NoOpRegistry) IncrementSignals(kind string)                                         {}
func (r *NoOpRegistry) IncrementSignalsSkipped(reason string)                                {}
func (r *NoOpRegistry) IncrementSelections(outcome string)                                   {}
func (r *NoOpRegistry) RecordSelectionDuration(duration time.Duration)                       {}
func (r *NoOpRegistry) IncrementDisplays(status string)                                      {}
func (r *NoOpRegistry) IncrementJITRequests(outcome string)                                  {}
func (r *NoOpRegistry) RecordJITLatency(duration time.Duration)                              {}
func (r *NoOpRegistry) IncrementRefreshes(outcome string)                                    {}
func (r *NoOpRegistry) SetCampaignsLoaded(n int)                                             {}
func (r *NoOpRegistry) AddDroppedRecords(n int)                                              {}
func (r *NoOpRegistry) IncrementRateLimitRequests(key string)                                {}
func (r *NoOpRegistry) IncrementRateLimitHits(key string)                                    {}
