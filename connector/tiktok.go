package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/beaconhq/beacon/event"
)

const defaultTikTokBaseURL = "https://business-api.tiktok.com"

// tiktokEventNames maps conversion outcomes to TikTok standard events.
var tiktokEventNames = map[string]string{
	"lead_submitted":    "SubmitForm",
	"booking_confirmed": "Schedule",
	"job_completed":     "CompletePayment",
}

// TikTok delivers conversions to the TikTok Events API.
//
// Config keys: pixel_code, access_token.
//
// TikTok reports application errors with HTTP 200 and a nonzero body code,
// so acceptance requires both a 2xx status and code 0.
type TikTok struct {
	client *http.Client

	// BaseURL overrides the Events API host, used in tests.
	BaseURL string
}

// NewTikTok creates a TikTok connector.
func NewTikTok(client *http.Client) *TikTok {
	return &TikTok{client: client, BaseURL: defaultTikTokBaseURL}
}

// Send implements Connector.
func (c *TikTok) Send(ctx context.Context, cfg map[string]any, evt *event.Event) Result {
	pixelCode, ok := cfgString(cfg, "pixel_code")
	if !ok {
		return failure("tiktok: missing pixel_code")
	}
	accessToken, ok := cfgString(cfg, "access_token")
	if !ok {
		return failure("tiktok: missing access_token")
	}

	eventName, ok := tiktokEventNames[evt.Name]
	if !ok {
		eventName = evt.Name
	}

	user := map[string]any{}
	if h := HashEmail(payloadString(evt, "email")); h != "" {
		user["email"] = h
	}
	if h := HashPhone(payloadString(evt, "phone")); h != "" {
		user["phone"] = h
	}
	if evt.TTCLID != "" {
		user["ttclid"] = evt.TTCLID
	}

	data := map[string]any{
		"event":      eventName,
		"event_time": evt.CreatedAt.Unix(),
		"event_id":   dedupID(evt),
		"user":       user,
	}
	if evt.LandingURL != "" {
		data["page"] = map[string]any{"url": evt.LandingURL}
	}
	if value, currency := eventValue(evt); value > 0 {
		data["properties"] = map[string]any{"value": value, "currency": currency}
	}

	body := map[string]any{
		"event_source":    "web",
		"event_source_id": pixelCode,
		"data":            []map[string]any{data},
	}

	res := postJSON(ctx, c.client, c.BaseURL+"/open_api/v1.3/event/track/",
		map[string]string{"Access-Token": accessToken}, body)
	if !res.OK {
		return res
	}

	var reply struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(res.Response), &reply); err != nil {
		res.OK = false
		res.Error = "tiktok: unreadable response body"
		return res
	}
	if reply.Code != 0 {
		res.OK = false
		res.Error = fmt.Sprintf("tiktok: code %d: %s", reply.Code, reply.Message)
	}
	return res
}
