// Package ratelimit implements sliding-window admission control keyed by
// caller identity, backed by a shared ordered counter store.
package ratelimit

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"
)

// Policy defines the admission policy for one API surface.
type Policy struct {
	// Window is the sliding time window.
	Window time.Duration

	// MaxRequests is the maximum number of requests per identity per window.
	MaxRequests int

	// KeyPrefix namespaces counter keys so surfaces do not share budgets.
	KeyPrefix string
}

// Result is the outcome of an admission check.
type Result struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// Remaining is the number of requests left in the current window.
	Remaining int

	// ResetAt is when the window fully elapses for this identity.
	ResetAt time.Time

	// RetryAfter is how long the caller should wait before retrying.
	// Zero when Allowed.
	RetryAfter time.Duration
}

// CounterStore is the shared ordered counter the sliding window runs over.
// Every ingestion request mutates it under per-key atomic read-modify-write.
type CounterStore interface {
	// Record evicts entries older than now minus window, records member at
	// now, and returns the number of entries that were inside the window
	// before the add.
	Record(ctx context.Context, key, member string, now time.Time, window time.Duration) (int64, error)

	// Retract removes a previously recorded member, undoing a provisional
	// record for a rejected request.
	Retract(ctx context.Context, key, member string) error
}

// DefaultCheckTimeout bounds how long an admission check may block the
// caller before degrading to fail-open.
const DefaultCheckTimeout = 1 * time.Second

// Limiter performs sliding-window admission checks.
//
// Failure policy: if the counter store is unreachable or slow, the limiter
// fails open. Availability of event admission outranks throttling precision.
type Limiter struct {
	store   CounterStore
	timeout time.Duration
	logger  *slog.Logger
}

// NewLimiter creates a limiter over the given counter store.
func NewLimiter(store CounterStore, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		store:   store,
		timeout: DefaultCheckTimeout,
		logger:  logger,
	}
}

// Check runs one admission decision for the given identity under the policy.
func (l *Limiter) Check(ctx context.Context, identity string, p Policy) Result {
	now := time.Now()
	key := p.KeyPrefix + ":" + identity
	member := member(now)

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	count, err := l.store.Record(ctx, key, member, now, p.Window)
	if err != nil {
		// Fail open: never block legitimate traffic on limiter infrastructure.
		l.logger.WarnContext(ctx, "rate limit check failed, allowing request",
			"key", key, "error", err)
		return Result{
			Allowed:   true,
			Remaining: p.MaxRequests,
			ResetAt:   now.Add(p.Window),
		}
	}

	if count >= int64(p.MaxRequests) {
		// Over budget: retract the provisional record so rejected requests
		// do not consume window capacity.
		if retractErr := l.store.Retract(ctx, key, member); retractErr != nil {
			l.logger.WarnContext(ctx, "rate limit retract failed",
				"key", key, "error", retractErr)
		}
		return Result{
			Allowed:    false,
			Remaining:  0,
			ResetAt:    now.Add(p.Window),
			RetryAfter: p.Window,
		}
	}

	remaining := p.MaxRequests - int(count) - 1
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   true,
		Remaining: remaining,
		ResetAt:   now.Add(p.Window),
	}
}

// member builds a unique counter entry for one request. The random suffix
// keeps concurrent requests in the same nanosecond distinct.
func member(now time.Time) string {
	b := make([]byte, 4)
	rand.Read(b) //nolint:errcheck // crypto/rand.Read never fails on supported platforms
	return fmt.Sprintf("%d-%s", now.UnixNano(), hex.EncodeToString(b))
}
