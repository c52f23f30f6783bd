package observability

import (
	gu "github.com/xraph/go-utils/metrics"
)

// Metrics holds metric instruments for the pipeline, backed by any go-utils
// MetricFactory.
type Metrics struct {
	EventsAcceptedTotal Counter
	EventsDedupedTotal  Counter
	RateLimitedTotal    Counter
	DispatchesTotal     Counter
	DispatchLatency     Histogram
	DLQSize             Gauge
	PendingJobs         Gauge
}

// Counter, Gauge and Histogram alias the go-utils instrument interfaces so
// callers outside this package do not import them directly.
type (
	Counter   = gu.Counter
	Gauge     = gu.Gauge
	Histogram = gu.Histogram
)

// NewMetrics creates pipeline metric instruments using the supplied factory.
// Pass metrics.NewMetricsCollector() for standalone usage.
func NewMetrics(factory gu.MetricFactory) *Metrics {
	return &Metrics{
		EventsAcceptedTotal: factory.Counter("beacon_events_accepted_total"),
		EventsDedupedTotal:  factory.Counter("beacon_events_deduped_total"),
		RateLimitedTotal:    factory.Counter("beacon_rate_limited_total"),
		DispatchesTotal:     factory.Counter("beacon_dispatches_total"),
		DispatchLatency:     factory.Histogram("beacon_dispatch_latency_seconds"),
		DLQSize:             factory.Gauge("beacon_dlq_size"),
		PendingJobs:         factory.Gauge("beacon_pending_jobs"),
	}
}

// RecordDispatch records a dispatch attempt outcome with its latency.
func (m *Metrics) RecordDispatch(outcome string, latencySeconds float64) {
	m.DispatchesTotal.WithLabels(map[string]string{"outcome": outcome}).Inc()
	m.DispatchLatency.Observe(latencySeconds)
}
