package ratelimit_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/beaconhq/beacon/ratelimit"
)

func ctx() context.Context { return context.Background() }

func TestCheckAllowsUpToMax(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryCounter(), nil)
	policy := ratelimit.Policy{Window: time.Minute, MaxRequests: 3, KeyPrefix: "rl:test"}

	for i := 0; i < 3; i++ {
		res := limiter.Check(ctx(), "ip:1.2.3.4", policy)
		if !res.Allowed {
			t.Fatalf("request %d rejected, want allowed", i+1)
		}
		if want := 3 - i - 1; res.Remaining != want {
			t.Errorf("request %d remaining = %d, want %d", i+1, res.Remaining, want)
		}
	}

	// The (N+1)th call within the window is rejected.
	res := limiter.Check(ctx(), "ip:1.2.3.4", policy)
	if res.Allowed {
		t.Fatal("4th request allowed, want rejected")
	}
	if res.Remaining != 0 {
		t.Errorf("rejected remaining = %d, want 0", res.Remaining)
	}
	if res.RetryAfter != time.Minute {
		t.Errorf("RetryAfter = %v, want %v", res.RetryAfter, time.Minute)
	}
}

func TestCheckIdentitiesIsolated(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryCounter(), nil)
	policy := ratelimit.Policy{Window: time.Minute, MaxRequests: 1, KeyPrefix: "rl:test"}

	if res := limiter.Check(ctx(), "ip:1.1.1.1", policy); !res.Allowed {
		t.Fatal("first identity rejected")
	}
	if res := limiter.Check(ctx(), "ip:1.1.1.1", policy); res.Allowed {
		t.Fatal("first identity should be exhausted")
	}

	// A different identity has its own budget.
	if res := limiter.Check(ctx(), "ip:2.2.2.2", policy); !res.Allowed {
		t.Fatal("second identity rejected, want allowed")
	}
}

func TestCheckWindowElapses(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryCounter(), nil)
	policy := ratelimit.Policy{Window: 30 * time.Millisecond, MaxRequests: 1, KeyPrefix: "rl:test"}

	if res := limiter.Check(ctx(), "ip:1.2.3.4", policy); !res.Allowed {
		t.Fatal("first request rejected")
	}
	if res := limiter.Check(ctx(), "ip:1.2.3.4", policy); res.Allowed {
		t.Fatal("second request allowed inside window")
	}

	time.Sleep(40 * time.Millisecond)

	if res := limiter.Check(ctx(), "ip:1.2.3.4", policy); !res.Allowed {
		t.Fatal("request after window elapsed rejected, want allowed")
	}
}

func TestRejectedRequestDoesNotConsumeBudget(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryCounter(), nil)
	policy := ratelimit.Policy{Window: 50 * time.Millisecond, MaxRequests: 2, KeyPrefix: "rl:test"}

	limiter.Check(ctx(), "ip:1.2.3.4", policy)
	limiter.Check(ctx(), "ip:1.2.3.4", policy)

	// Rejected calls are retracted, so they must not extend the rejection
	// past the original two entries' window.
	for i := 0; i < 5; i++ {
		if res := limiter.Check(ctx(), "ip:1.2.3.4", policy); res.Allowed {
			t.Fatalf("call %d allowed, want rejected", i+3)
		}
	}

	time.Sleep(60 * time.Millisecond)

	if res := limiter.Check(ctx(), "ip:1.2.3.4", policy); !res.Allowed {
		t.Fatal("request after window rejected; rejected calls consumed budget")
	}
}

// failingCounter simulates an unreachable counter store.
type failingCounter struct{}

func (failingCounter) Record(context.Context, string, string, time.Time, time.Duration) (int64, error) {
	return 0, errors.New("connection refused")
}

func (failingCounter) Retract(context.Context, string, string) error {
	return errors.New("connection refused")
}

func TestCheckFailsOpen(t *testing.T) {
	limiter := ratelimit.NewLimiter(failingCounter{}, nil)
	policy := ratelimit.Policy{Window: time.Minute, MaxRequests: 1, KeyPrefix: "rl:test"}

	for i := 0; i < 5; i++ {
		res := limiter.Check(ctx(), "ip:1.2.3.4", policy)
		if !res.Allowed {
			t.Fatal("expected fail-open when counter store is unreachable")
		}
		if res.Remaining != policy.MaxRequests {
			t.Errorf("fail-open remaining = %d, want %d", res.Remaining, policy.MaxRequests)
		}
	}
}

func TestIdentity(t *testing.T) {
	tests := []struct {
		name   string
		auth   string
		fwd    string
		remote string
		want   string
	}{
		{name: "auth header wins", auth: "Bearer abcdefghijklmnopqrstuvwxyz012345TRUNCATED", want: "user:Bearer abcdefghijklmnopqrstuvwxy"},
		{name: "short auth header", auth: "tok", want: "user:tok"},
		{name: "forwarded for first hop", fwd: "203.0.113.9, 10.0.0.1", want: "ip:203.0.113.9"},
		{name: "remote addr fallback", remote: "198.51.100.7:4411", want: "ip:198.51.100.7"},
		{name: "anonymous", remote: "bad-addr", want: "anonymous"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/track", nil)
			r.RemoteAddr = tt.remote
			if tt.auth != "" {
				r.Header.Set("Authorization", tt.auth)
			}
			if tt.fwd != "" {
				r.Header.Set("X-Forwarded-For", tt.fwd)
			}

			if got := ratelimit.Identity(r); got != tt.want {
				t.Errorf("Identity() = %q, want %q", got, tt.want)
			}
		})
	}
}
