package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inapp_requests_total",
			Help: "Total API requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inapp_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// signals received, labelled by kind (event, session_start)
	SignalCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inapp_signals_total",
			Help: "Total signals received",
		},
		[]string{"kind"},
	)

	// signals that were not evaluated, labelled by reason
	SignalSkippedCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inapp_signals_skipped_total",
			Help: "Total signals dropped before selection",
		},
		[]string{"reason"},
	)

	// selection passes labelled by outcome
	SelectionCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inapp_selections_total",
			Help: "Total selection passes",
		},
		[]string{"outcome"},
	)

	SelectionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "inapp_selection_duration_seconds",
			Help:    "Duration of selection passes",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		},
	)

	// campaign displays labelled by status
	DisplayCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inapp_displays_total",
			Help: "Total campaign display attempts",
		},
		[]string{"status"},
	)

	// JIT eligibility requests labelled by outcome
	JITRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inapp_jit_requests_total",
			Help: "Total JIT eligibility requests",
		},
		[]string{"outcome"},
	)

	JITLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "inapp_jit_request_duration_seconds",
			Help:    "Duration of JIT eligibility requests",
			Buckets: prometheus.DefBuckets,
		},
	)

	// campaign payload refreshes labelled by outcome
	RefreshCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inapp_refreshes_total",
			Help: "Total campaign payload refreshes",
		},
		[]string{"outcome"},
	)

	CampaignsLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "inapp_campaigns_loaded",
			Help: "Number of campaigns in the active list",
		},
	)

	DroppedRecords = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "inapp_payload_dropped_records_total",
			Help: "Total malformed campaign records dropped while parsing payloads",
		},
	)

	// rate limit hits per key
	RateLimitHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inapp_ratelimit_hits_total",
			Help: "Total rate limit hits per key",
		},
		[]string{"key"},
	)

	// rate limit requests per key
	RateLimitRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inapp_ratelimit_requests_total",
			Help: "Total rate limit requests per key",
		},
		[]string{"key"},
	)
)

func init() {
	// register all metrics
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		SignalCount,
		SignalSkippedCount,
		SelectionCount,
		SelectionDuration,
		DisplayCount,
		JITRequests,
		JITLatency,
		RefreshCount,
		CampaignsLoaded,
		DroppedRecords,
		RateLimitHits,
		RateLimitRequests,
	)
}
