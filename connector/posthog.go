package connector

import (
	"context"
	"net/http"
	"time"

	"github.com/beaconhq/beacon/event"
)

const defaultPostHogHost = "https://us.i.posthog.com"

// PostHog delivers events to the PostHog capture API.
//
// Config keys: api_key, host (optional).
type PostHog struct {
	client *http.Client
}

// NewPostHog creates a PostHog connector.
func NewPostHog(client *http.Client) *PostHog {
	return &PostHog{client: client}
}

// Send implements Connector.
func (c *PostHog) Send(ctx context.Context, cfg map[string]any, evt *event.Event) Result {
	apiKey, ok := cfgString(cfg, "api_key")
	if !ok {
		return failure("posthog: missing api_key")
	}
	host := cfgStringDefault(cfg, "host", defaultPostHogHost)

	properties := map[string]any{
		"$session_id": evt.SessionID,
		"source":      evt.Source,
	}
	if evt.LandingURL != "" {
		properties["$current_url"] = evt.LandingURL
	}
	if evt.Referrer != "" {
		properties["$referrer"] = evt.Referrer
	}
	if evt.UTMSource != "" {
		properties["utm_source"] = evt.UTMSource
	}
	if evt.UTMMedium != "" {
		properties["utm_medium"] = evt.UTMMedium
	}
	if evt.UTMCampaign != "" {
		properties["utm_campaign"] = evt.UTMCampaign
	}
	for k, v := range evt.Payload {
		properties[k] = v
	}

	body := map[string]any{
		"api_key":     apiKey,
		"event":       evt.Name,
		"distinct_id": distinctID(evt),
		"timestamp":   evt.CreatedAt.UTC().Format(time.RFC3339),
		"properties":  properties,
	}

	return postJSON(ctx, c.client, host+"/capture/", nil, body)
}
