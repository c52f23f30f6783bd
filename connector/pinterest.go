package connector

import (
	"context"
	"net/http"

	"github.com/beaconhq/beacon/event"
)

const defaultPinterestBaseURL = "https://api.pinterest.com/v5"

// pinterestEventNames maps conversion outcomes to Pinterest event names.
var pinterestEventNames = map[string]string{
	"lead_submitted":    "lead",
	"booking_confirmed": "custom",
	"job_completed":     "checkout",
}

// Pinterest delivers conversions to the Pinterest Conversions API.
//
// Config keys: ad_account_id, access_token. Pinterest strips interior
// spaces from identifiers before hashing.
type Pinterest struct {
	client *http.Client

	// BaseURL overrides the API host, used in tests.
	BaseURL string
}

// NewPinterest creates a Pinterest connector.
func NewPinterest(client *http.Client) *Pinterest {
	return &Pinterest{client: client, BaseURL: defaultPinterestBaseURL}
}

// Send implements Connector.
func (c *Pinterest) Send(ctx context.Context, cfg map[string]any, evt *event.Event) Result {
	adAccountID, ok := cfgString(cfg, "ad_account_id")
	if !ok {
		return failure("pinterest: missing ad_account_id")
	}
	accessToken, ok := cfgString(cfg, "access_token")
	if !ok {
		return failure("pinterest: missing access_token")
	}

	eventName, ok := pinterestEventNames[evt.Name]
	if !ok {
		eventName = "custom"
	}

	userData := map[string]any{}
	if h := HashEmailStripped(payloadString(evt, "email")); h != "" {
		userData["em"] = []string{h}
	}
	if h := HashPhone(payloadString(evt, "phone")); h != "" {
		userData["ph"] = []string{h}
	}

	data := map[string]any{
		"event_name":    eventName,
		"action_source": "web",
		"event_time":    evt.CreatedAt.Unix(),
		"event_id":      dedupID(evt),
		"user_data":     userData,
	}
	if evt.LandingURL != "" {
		data["event_source_url"] = evt.LandingURL
	}
	if value, currency := eventValue(evt); value > 0 {
		data["custom_data"] = map[string]any{
			"value":    formatFloat(value),
			"currency": currency,
		}
	}

	body := map[string]any{"data": []map[string]any{data}}

	return postJSON(ctx, c.client, c.BaseURL+"/ad_accounts/"+adAccountID+"/events",
		map[string]string{"Authorization": "Bearer " + accessToken}, body)
}
