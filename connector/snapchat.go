package connector

import (
	"context"
	"net/http"

	"github.com/beaconhq/beacon/event"
)

const defaultSnapchatBaseURL = "https://tr.snapchat.com"

// snapEventNames maps conversion outcomes to Snapchat event types.
var snapEventNames = map[string]string{
	"lead_submitted":    "SIGN_UP",
	"booking_confirmed": "RESERVE",
	"job_completed":     "PURCHASE",
}

// Snapchat delivers conversions to the Snapchat Conversions API.
//
// Config keys: pixel_id, access_token.
type Snapchat struct {
	client *http.Client

	// BaseURL overrides the conversion endpoint host, used in tests.
	BaseURL string
}

// NewSnapchat creates a Snapchat connector.
func NewSnapchat(client *http.Client) *Snapchat {
	return &Snapchat{client: client, BaseURL: defaultSnapchatBaseURL}
}

// Send implements Connector.
func (c *Snapchat) Send(ctx context.Context, cfg map[string]any, evt *event.Event) Result {
	pixelID, ok := cfgString(cfg, "pixel_id")
	if !ok {
		return failure("snapchat: missing pixel_id")
	}
	accessToken, ok := cfgString(cfg, "access_token")
	if !ok {
		return failure("snapchat: missing access_token")
	}

	eventType, ok := snapEventNames[evt.Name]
	if !ok {
		eventType = "CUSTOM_EVENT_1"
	}

	body := map[string]any{
		"pixel_id":              pixelID,
		"event_type":            eventType,
		"event_conversion_type": "WEB",
		"timestamp":             evt.CreatedAt.UnixMilli(),
		"client_dedup_id":       dedupID(evt),
	}
	if h := HashEmail(payloadString(evt, "email")); h != "" {
		body["hashed_email"] = h
	}
	if h := HashPhone(payloadString(evt, "phone")); h != "" {
		body["hashed_phone_number"] = h
	}
	if evt.LandingURL != "" {
		body["page_url"] = evt.LandingURL
	}
	if value, currency := eventValue(evt); value > 0 {
		body["price"] = value
		body["currency"] = currency
	}

	return postJSON(ctx, c.client, c.BaseURL+"/v2/conversion",
		map[string]string{"Authorization": "Bearer " + accessToken}, body)
}
