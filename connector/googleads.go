package connector

import (
	"context"
	"net/http"
	"strings"

	"github.com/beaconhq/beacon/event"
)

const defaultGoogleAdsBaseURL = "https://googleads.googleapis.com/v17"

// GoogleAds uploads offline click conversions to the Google Ads API.
//
// Config keys: customer_id, conversion_action, developer_token,
// access_token, login_customer_id (optional).
//
// Uploads run with partialFailure, so a 2xx status can still carry a
// rejected conversion; the response is inspected for a partial failure
// error before the attempt counts as accepted.
type GoogleAds struct {
	client *http.Client

	// BaseURL overrides the API host, used in tests.
	BaseURL string
}

// NewGoogleAds creates a Google Ads connector.
func NewGoogleAds(client *http.Client) *GoogleAds {
	return &GoogleAds{client: client, BaseURL: defaultGoogleAdsBaseURL}
}

// Send implements Connector.
func (c *GoogleAds) Send(ctx context.Context, cfg map[string]any, evt *event.Event) Result {
	customerID, ok := cfgString(cfg, "customer_id")
	if !ok {
		return failure("googleads: missing customer_id")
	}
	conversionAction, ok := cfgString(cfg, "conversion_action")
	if !ok {
		return failure("googleads: missing conversion_action")
	}
	developerToken, ok := cfgString(cfg, "developer_token")
	if !ok {
		return failure("googleads: missing developer_token")
	}
	accessToken, ok := cfgString(cfg, "access_token")
	if !ok {
		return failure("googleads: missing access_token")
	}

	conversion := map[string]any{
		"conversionAction":   "customers/" + customerID + "/conversionActions/" + conversionAction,
		"conversionDateTime": evt.CreatedAt.Format("2006-01-02 15:04:05-07:00"),
	}
	switch {
	case evt.GCLID != "":
		conversion["gclid"] = evt.GCLID
	case evt.GBRAID != "":
		conversion["gbraid"] = evt.GBRAID
	case evt.WBRAID != "":
		conversion["wbraid"] = evt.WBRAID
	default:
		// Nothing to attribute against; retrying will never change that.
		return Result{OK: true, Response: "skipped: no google click identifier"}
	}
	if value, currency := eventValue(evt); value > 0 {
		conversion["conversionValue"] = value
		conversion["currencyCode"] = currency
	}

	body := map[string]any{
		"conversions":    []map[string]any{conversion},
		"partialFailure": true,
	}

	headers := map[string]string{
		"Authorization":   "Bearer " + accessToken,
		"developer-token": developerToken,
	}
	if login, ok := cfgString(cfg, "login_customer_id"); ok {
		headers["login-customer-id"] = login
	}

	res := postJSON(ctx, c.client,
		c.BaseURL+"/customers/"+customerID+":uploadClickConversions", headers, body)
	if res.OK && strings.Contains(res.Response, "partialFailureError") {
		res.OK = false
		res.Error = "googleads: partial failure: " + res.Response
	}
	return res
}
