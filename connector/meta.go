package connector

import (
	"context"
	"net/http"
	"net/url"

	"github.com/beaconhq/beacon/event"
)

const defaultMetaBaseURL = "https://graph.facebook.com/v20.0"

// metaEventNames maps conversion outcomes to Meta standard events.
var metaEventNames = map[string]string{
	"lead_submitted":    "Lead",
	"booking_confirmed": "Schedule",
	"job_completed":     "Purchase",
}

// Meta delivers conversions to the Meta Conversions API.
//
// Config keys: pixel_id, access_token, test_event_code (optional).
type Meta struct {
	client *http.Client

	// BaseURL overrides the Graph API host, used in tests.
	BaseURL string
}

// NewMeta creates a Meta CAPI connector.
func NewMeta(client *http.Client) *Meta {
	return &Meta{client: client, BaseURL: defaultMetaBaseURL}
}

// Send implements Connector.
func (c *Meta) Send(ctx context.Context, cfg map[string]any, evt *event.Event) Result {
	pixelID, ok := cfgString(cfg, "pixel_id")
	if !ok {
		return failure("meta: missing pixel_id")
	}
	accessToken, ok := cfgString(cfg, "access_token")
	if !ok {
		return failure("meta: missing access_token")
	}

	eventName, ok := metaEventNames[evt.Name]
	if !ok {
		eventName = evt.Name
	}

	userData := map[string]any{}
	if h := HashEmail(payloadString(evt, "email")); h != "" {
		userData["em"] = []string{h}
	}
	if h := HashPhone(payloadString(evt, "phone")); h != "" {
		userData["ph"] = []string{h}
	}
	if evt.FBCLID != "" {
		userData["fbc"] = "fb.1." + formatUnix(evt.CreatedAt) + "." + evt.FBCLID
	}
	if evt.UserID != "" {
		userData["external_id"] = []string{sha256Hex(evt.UserID)}
	}

	data := map[string]any{
		"event_name":    eventName,
		"event_time":    evt.CreatedAt.Unix(),
		"event_id":      dedupID(evt),
		"action_source": "website",
		"user_data":     userData,
	}
	if evt.LandingURL != "" {
		data["event_source_url"] = evt.LandingURL
	}
	if value, currency := eventValue(evt); value > 0 {
		data["custom_data"] = map[string]any{"value": value, "currency": currency}
	}

	body := map[string]any{"data": []map[string]any{data}}
	if code, ok := cfgString(cfg, "test_event_code"); ok {
		body["test_event_code"] = code
	}

	endpoint := c.BaseURL + "/" + pixelID + "/events?" + url.Values{
		"access_token": {accessToken},
	}.Encode()

	return postJSON(ctx, c.client, endpoint, nil, body)
}
