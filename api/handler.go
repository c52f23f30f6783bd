// Package api provides the HTTP surface for the pipeline: public event
// ingestion, the conversion webhook, and the token-gated admin API.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/beaconhq/beacon"
	"github.com/beaconhq/beacon/ratelimit"
)

// maxBodyBytes caps inbound request bodies.
const maxBodyBytes = 1 << 20

// Config carries the handler's authentication material.
type Config struct {
	// WebhookSecret is the shared HMAC secret for the conversion webhook.
	// When empty the signature gate is disabled.
	WebhookSecret string

	// AdminToken gates the admin routes. When empty the admin API is
	// disabled entirely.
	AdminToken string
}

// Handler is the root HTTP handler.
type Handler struct {
	pipeline *beacon.Pipeline
	limiter  *ratelimit.Limiter
	config   Config
	logger   *slog.Logger
	mux      *http.ServeMux
}

// NewHandler creates the HTTP handler over a pipeline. A nil limiter gets an
// in-process counter, which is fine for a single instance.
func NewHandler(p *beacon.Pipeline, limiter *ratelimit.Limiter, cfg Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if limiter == nil {
		limiter = ratelimit.NewLimiter(ratelimit.NewMemoryCounter(), logger)
	}

	h := &Handler{
		pipeline: p,
		limiter:  limiter,
		config:   cfg,
		logger:   logger,
		mux:      http.NewServeMux(),
	}

	h.registerRoutes()
	return h
}

func (h *Handler) registerRoutes() {
	// Public ingestion
	h.mux.HandleFunc("POST /track", h.track)
	h.mux.HandleFunc("POST /conversions", h.recordConversion)

	// Destinations
	h.mux.HandleFunc("POST /admin/destinations", h.admin(h.upsertDestination))
	h.mux.HandleFunc("GET /admin/destinations", h.admin(h.listDestinations))
	h.mux.HandleFunc("GET /admin/destinations/{id}", h.admin(h.getDestination))
	h.mux.HandleFunc("DELETE /admin/destinations/{id}", h.admin(h.deleteDestination))

	// Events and conversions, read-only
	h.mux.HandleFunc("GET /admin/events", h.admin(h.listEvents))
	h.mux.HandleFunc("GET /admin/events/{id}", h.admin(h.getEvent))
	h.mux.HandleFunc("GET /admin/conversions", h.admin(h.listConversions))

	// Forwarding jobs
	h.mux.HandleFunc("GET /admin/jobs", h.admin(h.listJobs))
	h.mux.HandleFunc("GET /admin/jobs/{id}", h.admin(h.getJob))
	h.mux.HandleFunc("POST /admin/jobs/purge", h.admin(h.purgeJobs))

	// DLQ
	h.mux.HandleFunc("GET /admin/dlq", h.admin(h.listDLQ))
	h.mux.HandleFunc("POST /admin/dlq/{id}/replay", h.admin(h.replayDLQ))
	h.mux.HandleFunc("POST /admin/dlq/replay", h.admin(h.replayBulkDLQ))
	h.mux.HandleFunc("POST /admin/dlq/purge", h.admin(h.purgeDLQ))

	// Stats and health
	h.mux.HandleFunc("GET /admin/stats", h.admin(h.getStats))
	h.mux.HandleFunc("GET /healthz", h.health)
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.withMiddleware(h.mux).ServeHTTP(w, r)
}

func (h *Handler) withMiddleware(next http.Handler) http.Handler {
	return h.panicRecovery(h.logging(next))
}

func (h *Handler) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		h.logger.Info("api request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (h *Handler) panicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("panic recovered",
					"error", rec,
					"stack", string(debug.Stack()),
				)
				writeFailure(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// admin wraps a handler with token auth and the administrative rate policy.
func (h *Handler) admin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.config.AdminToken == "" {
			writeError(w, http.StatusForbidden, "admin API disabled")
			return
		}
		token := r.Header.Get("X-Admin-Token")
		if subtle.ConstantTimeCompare([]byte(token), []byte(h.config.AdminToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid admin token")
			return
		}
		if !h.allow(w, r, ratelimit.Admin) {
			return
		}
		next(w, r)
	}
}

// allow runs one admission check and writes rate-limit headers. On rejection
// it writes the 429 response and returns false.
func (h *Handler) allow(w http.ResponseWriter, r *http.Request, p ratelimit.Policy) bool {
	res := h.limiter.Check(r.Context(), ratelimit.Identity(r), p)

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(p.MaxRequests))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

	if !res.Allowed {
		if m := h.pipeline.Metrics(); m != nil {
			m.RateLimitedTotal.Inc()
		}
		retryAfter := int(res.RetryAfter / time.Second)
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		writeFailure(w, http.StatusTooManyRequests, "rate limit exceeded")
		return false
	}
	return true
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// JSON helpers.

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best effort
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeFailure is the error shape of the public ingestion endpoints, which
// pair every response with an ok flag.
func writeFailure(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes)).Decode(v)
}

// queryParam returns a query parameter value, or empty string if not present.
func queryParam(r *http.Request, key string) string {
	return r.URL.Query().Get(key)
}

// queryInt returns a query parameter as int or a default value.
func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	var n int
	for _, c := range v {
		if c < '0' || c > '9' {
			return defaultVal
		}
		n = n*10 + int(c-'0')
	}
	return n
}
