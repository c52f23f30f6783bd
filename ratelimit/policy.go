package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"time"
)

// Per-surface admission policies. Tracking admits more than conversion or
// administrative surfaces; auth is deliberately strict.
var (
	// Tracking covers the high-frequency event ingestion endpoint.
	Tracking = Policy{Window: time.Minute, MaxRequests: 100, KeyPrefix: "rl:track"}

	// Conversions covers the conversion webhook endpoint.
	Conversions = Policy{Window: time.Minute, MaxRequests: 30, KeyPrefix: "rl:conv"}

	// Admin covers the destination management surface.
	Admin = Policy{Window: time.Minute, MaxRequests: 60, KeyPrefix: "rl:admin"}

	// Public covers unauthenticated read endpoints.
	Public = Policy{Window: time.Minute, MaxRequests: 100, KeyPrefix: "rl:public"}

	// Auth covers credential exchange, sized against brute force.
	Auth = Policy{Window: 15 * time.Minute, MaxRequests: 5, KeyPrefix: "rl:auth"}
)

// Identity resolves the rate-limit identity for a request: an
// authenticated-caller token prefix when present, else the originating
// address. Callers with neither share a single anonymous bucket.
func Identity(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if len(auth) > 32 {
			auth = auth[:32]
		}
		return "user:" + auth
	}

	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return "ip:" + ip
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return "ip:" + host
	}

	return "anonymous"
}
