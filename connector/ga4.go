package connector

import (
	"context"
	"net/http"
	"net/url"

	"github.com/beaconhq/beacon/event"
)

const defaultGA4BaseURL = "https://www.google-analytics.com"

// GA4 delivers events over the Google Analytics 4 Measurement Protocol.
//
// Config keys: measurement_id, api_secret.
type GA4 struct {
	client *http.Client

	// BaseURL overrides the Measurement Protocol host, used in tests.
	BaseURL string
}

// NewGA4 creates a GA4 connector.
func NewGA4(client *http.Client) *GA4 {
	return &GA4{client: client, BaseURL: defaultGA4BaseURL}
}

// Send implements Connector.
func (c *GA4) Send(ctx context.Context, cfg map[string]any, evt *event.Event) Result {
	measurementID, ok := cfgString(cfg, "measurement_id")
	if !ok {
		return failure("ga4: missing measurement_id")
	}
	apiSecret, ok := cfgString(cfg, "api_secret")
	if !ok {
		return failure("ga4: missing api_secret")
	}

	clientID := distinctID(evt)
	if clientID == "" {
		clientID = dedupID(evt)
	}

	params := map[string]any{
		"session_id":           evt.SessionID,
		"engagement_time_msec": 1,
	}
	if evt.LandingURL != "" {
		params["page_location"] = evt.LandingURL
	}
	if evt.Referrer != "" {
		params["page_referrer"] = evt.Referrer
	}
	if evt.UTMSource != "" {
		params["source"] = evt.UTMSource
	}
	if evt.UTMMedium != "" {
		params["medium"] = evt.UTMMedium
	}
	if evt.UTMCampaign != "" {
		params["campaign"] = evt.UTMCampaign
	}
	if value, currency := eventValue(evt); value > 0 {
		params["value"] = value
		params["currency"] = currency
	}

	body := map[string]any{
		"client_id": clientID,
		"events": []map[string]any{
			{"name": evt.Name, "params": params},
		},
	}
	if evt.UserID != "" {
		body["user_id"] = evt.UserID
	}

	endpoint := c.BaseURL + "/mp/collect?" + url.Values{
		"measurement_id": {measurementID},
		"api_secret":     {apiSecret},
	}.Encode()

	return postJSON(ctx, c.client, endpoint, nil, body)
}
