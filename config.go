package beacon

import (
	"time"

	"github.com/beaconhq/beacon/forward"
)

// Config holds the configuration for a Pipeline instance.
type Config struct {
	// VaultKey is the process-wide key destination credentials are sealed
	// with. Must be at least 32 characters.
	VaultKey string

	// Concurrency is the number of dispatch worker goroutines.
	Concurrency int

	// PollInterval is how often the worker pool checks for due jobs.
	PollInterval time.Duration

	// BatchSize is the maximum number of jobs claimed per poll cycle.
	BatchSize int

	// RequestTimeout is the HTTP timeout per connector send.
	RequestTimeout time.Duration

	// MaxRetries is the attempt budget per forwarding job.
	MaxRetries int

	// RetrySchedule defines the backoff intervals between retry attempts.
	RetrySchedule []time.Duration

	// ShutdownTimeout is the maximum time to wait for in-flight dispatches
	// on shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:     10,
		PollInterval:    1 * time.Second,
		BatchSize:       50,
		RequestTimeout:  10 * time.Second,
		MaxRetries:      forward.DefaultMaxAttempts,
		RetrySchedule:   forward.DefaultRetrySchedule,
		ShutdownTimeout: 30 * time.Second,
	}
}
