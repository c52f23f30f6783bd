// Package connector adapts events to third-party platform delivery APIs.
//
// Each platform gets one Connector. Connectors never return Go errors to
// callers; every outcome, including transport failure, is reported through
// Result so the dispatch loop can apply a uniform retry policy.
package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/beaconhq/beacon/destination"
	"github.com/beaconhq/beacon/event"
)

const maxResponseBody = 2048 // cap on stored response body

// Result is the outcome of one delivery attempt to one platform.
type Result struct {
	// OK reports whether the platform accepted the event.
	OK bool

	// StatusCode is the HTTP status of the attempt, zero on transport
	// failure.
	StatusCode int

	// Response is the (truncated) platform response body.
	Response string

	// Error describes the failure when OK is false.
	Error string

	// LatencyMs is the round-trip time of the attempt.
	LatencyMs int
}

func failure(format string, args ...any) Result {
	return Result{Error: fmt.Sprintf(format, args...)}
}

// Connector delivers one event to one platform using the destination's
// decrypted configuration.
type Connector interface {
	// Send delivers the event. Implementations report all failures via
	// Result rather than panicking or returning errors.
	Send(ctx context.Context, cfg map[string]any, evt *event.Event) Result
}

// ── Registry ─────────────────────────────────────────────────────────────

// Registry maps destination types to their connectors.
type Registry struct {
	connectors map[destination.Type]Connector
}

// NewRegistry creates a registry with every built-in connector registered,
// all sharing the given HTTP client. A nil client gets a 10s-timeout default.
func NewRegistry(client *http.Client) *Registry {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	r := &Registry{connectors: make(map[destination.Type]Connector)}
	r.Register(destination.TypeGA4, NewGA4(client))
	r.Register(destination.TypePostHog, NewPostHog(client))
	r.Register(destination.TypeMetaCAPI, NewMeta(client))
	r.Register(destination.TypeTikTokEventsAPI, NewTikTok(client))
	r.Register(destination.TypeSnapCAPI, NewSnapchat(client))
	r.Register(destination.TypePinterestCAPI, NewPinterest(client))
	r.Register(destination.TypeGoogleAdsOffline, NewGoogleAds(client))
	r.Register(destination.TypeMicrosoftAdsOffline, NewMicrosoftAds(client))
	return r
}

// Register installs or replaces the connector for a destination type.
func (r *Registry) Register(t destination.Type, c Connector) {
	r.connectors[t] = c
}

// Get returns the connector for a destination type.
func (r *Registry) Get(t destination.Type) (Connector, bool) {
	c, ok := r.connectors[t]
	return c, ok
}

// ── Shared HTTP plumbing ─────────────────────────────────────────────────

// postJSON sends a JSON POST and folds the outcome into a Result. A 2xx
// status marks the result OK; connectors with stricter acceptance rules
// (TikTok's body code, Google Ads partial failures) refine it afterwards.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body any) Result {
	raw, err := json.Marshal(body)
	if err != nil {
		return failure("marshal payload: %v", err)
	}
	return post(ctx, client, url, "application/json", headers, raw)
}

func post(ctx context.Context, client *http.Client, url, contentType string, headers map[string]string, body []byte) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return failure("create request: %v", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", "Beacon/1.0")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := client.Do(req)
	latency := int(time.Since(start).Milliseconds())
	if err != nil {
		return Result{Error: err.Error(), LatencyMs: latency}
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if readErr != nil {
		return Result{
			StatusCode: resp.StatusCode,
			Error:      fmt.Sprintf("read response: %v", readErr),
			LatencyMs:  latency,
		}
	}

	res := Result{
		StatusCode: resp.StatusCode,
		Response:   string(respBody),
		LatencyMs:  latency,
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		res.OK = true
	} else {
		res.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	return res
}

// ── Config and payload helpers ───────────────────────────────────────────

// cfgString reads a required string field from a decrypted destination
// config.
func cfgString(cfg map[string]any, key string) (string, bool) {
	s, ok := cfg[key].(string)
	return s, ok && s != ""
}

// cfgStringDefault reads an optional string field with a fallback.
func cfgStringDefault(cfg map[string]any, key, fallback string) string {
	if s, ok := cfgString(cfg, key); ok {
		return s
	}
	return fallback
}

func payloadString(evt *event.Event, key string) string {
	s, _ := evt.Payload[key].(string)
	return s
}

// eventValue extracts the monetary value and currency carried in the event
// payload. Value is returned in major units.
func eventValue(evt *event.Event) (float64, string) {
	currency, _ := evt.Payload["currency"].(string)
	if currency == "" {
		currency = "USD"
	}

	switch v := evt.Payload["value_cents"].(type) {
	case int64:
		return float64(v) / 100, currency
	case int:
		return float64(v) / 100, currency
	case float64:
		return v / 100, currency
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f / 100, currency
		}
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f / 100, currency
		}
	}
	return 0, currency
}

// dedupID is the cross-platform event identifier used for downstream
// deduplication. External IDs win so client and server sends collapse.
func dedupID(evt *event.Event) string {
	if evt.ExternalEventID != "" {
		return evt.ExternalEventID
	}
	return evt.ID.String()
}

func formatUnix(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// distinctID picks the strongest visitor identifier available.
func distinctID(evt *event.Event) string {
	switch {
	case evt.UserID != "":
		return evt.UserID
	case evt.DeviceID != "":
		return evt.DeviceID
	default:
		return evt.SessionID
	}
}
