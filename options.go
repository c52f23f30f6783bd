package beacon

import (
	"log/slog"
	"time"

	"github.com/beaconhq/beacon/observability"
	"github.com/beaconhq/beacon/store"
)

// Option configures a Pipeline instance.
type Option func(*Pipeline) error

// WithStore sets the persistence backend for the Pipeline instance.
func WithStore(s store.Store) Option {
	return func(p *Pipeline) error {
		p.store = s
		return nil
	}
}

// WithVaultKey sets the key destination credentials are sealed with.
func WithVaultKey(key string) Option {
	return func(p *Pipeline) error {
		p.config.VaultKey = key
		return nil
	}
}

// WithLogger sets the structured logger for the Pipeline instance.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		p.logger = logger
		return nil
	}
}

// WithConcurrency sets the number of dispatch worker goroutines.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) error {
		p.config.Concurrency = n
		return nil
	}
}

// WithPollInterval sets how often the worker pool checks for due jobs.
func WithPollInterval(d time.Duration) Option {
	return func(p *Pipeline) error {
		p.config.PollInterval = d
		return nil
	}
}

// WithBatchSize sets the maximum number of jobs claimed per poll cycle.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) error {
		p.config.BatchSize = n
		return nil
	}
}

// WithRequestTimeout sets the HTTP timeout per connector send.
func WithRequestTimeout(d time.Duration) Option {
	return func(p *Pipeline) error {
		p.config.RequestTimeout = d
		return nil
	}
}

// WithMaxRetries sets the attempt budget per forwarding job.
func WithMaxRetries(n int) Option {
	return func(p *Pipeline) error {
		p.config.MaxRetries = n
		return nil
	}
}

// WithRetrySchedule sets the backoff intervals between retry attempts.
func WithRetrySchedule(schedule []time.Duration) Option {
	return func(p *Pipeline) error {
		p.config.RetrySchedule = schedule
		return nil
	}
}

// WithShutdownTimeout sets the maximum time to wait for in-flight dispatches
// on shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(p *Pipeline) error {
		p.config.ShutdownTimeout = d
		return nil
	}
}

// WithMetrics sets the metric instruments recorded by the pipeline.
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Pipeline) error {
		p.metrics = m
		return nil
	}
}

// WithTracer sets the tracer used around dispatch attempts.
func WithTracer(t *observability.Tracer) Option {
	return func(p *Pipeline) error {
		p.tracer = t
		return nil
	}
}
