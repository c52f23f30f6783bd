package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/beaconhq/beacon/event"
)

const (
	defaultMicrosoftTokenURL = "https://login.microsoftonline.com/common/oauth2/v2.0/token"
	defaultMicrosoftSOAPURL  = "https://campaign.api.bingads.microsoft.com/Api/Advertiser/CampaignManagement/v13/CampaignManagementService.svc"

	microsoftAdsScope = "https://ads.microsoft.com/msads.manage offline_access"
)

// MicrosoftAds uploads offline conversions through the Bing Ads SOAP API.
//
// Config keys: developer_token, customer_id, customer_account_id,
// client_id, refresh_token, conversion_name, client_secret (optional).
//
// Each send exchanges the stored refresh token for an access token, then
// posts an ApplyOfflineConversions envelope. Microsoft reports per-record
// rejections inside a 200 response, so the body is inspected for partial
// errors. Identifiers are hashed with interior spaces removed.
type MicrosoftAds struct {
	client *http.Client

	// TokenURL and SOAPURL override the OAuth and SOAP endpoints, used
	// in tests.
	TokenURL string
	SOAPURL  string
}

// NewMicrosoftAds creates a Microsoft Ads connector.
func NewMicrosoftAds(client *http.Client) *MicrosoftAds {
	return &MicrosoftAds{
		client:   client,
		TokenURL: defaultMicrosoftTokenURL,
		SOAPURL:  defaultMicrosoftSOAPURL,
	}
}

// Send implements Connector.
func (c *MicrosoftAds) Send(ctx context.Context, cfg map[string]any, evt *event.Event) Result {
	developerToken, ok := cfgString(cfg, "developer_token")
	if !ok {
		return failure("microsoftads: missing developer_token")
	}
	customerID, ok := cfgString(cfg, "customer_id")
	if !ok {
		return failure("microsoftads: missing customer_id")
	}
	accountID, ok := cfgString(cfg, "customer_account_id")
	if !ok {
		return failure("microsoftads: missing customer_account_id")
	}
	conversionName, ok := cfgString(cfg, "conversion_name")
	if !ok {
		return failure("microsoftads: missing conversion_name")
	}

	if evt.MSCLKID == "" {
		// Nothing to attribute against; retrying will never change that.
		return Result{OK: true, Response: "skipped: no microsoft click identifier"}
	}

	accessToken, errRes := c.refreshAccessToken(ctx, cfg)
	if errRes != nil {
		return *errRes
	}

	envelope := c.buildEnvelope(developerToken, customerID, accountID, accessToken, conversionName, evt)

	res := post(ctx, c.client, c.SOAPURL, "text/xml; charset=utf-8",
		map[string]string{"SOAPAction": "ApplyOfflineConversions"}, envelope)
	if !res.OK {
		return res
	}
	if strings.Contains(res.Response, "<faultcode") {
		res.OK = false
		res.Error = "microsoftads: soap fault: " + res.Response
		return res
	}
	if strings.Contains(res.Response, "<BatchError") {
		res.OK = false
		res.Error = "microsoftads: partial errors: " + res.Response
	}
	return res
}

// refreshAccessToken exchanges the configured refresh token for a live
// access token.
func (c *MicrosoftAds) refreshAccessToken(ctx context.Context, cfg map[string]any) (string, *Result) {
	clientID, ok := cfgString(cfg, "client_id")
	if !ok {
		res := failure("microsoftads: missing client_id")
		return "", &res
	}
	refreshToken, ok := cfgString(cfg, "refresh_token")
	if !ok {
		res := failure("microsoftads: missing refresh_token")
		return "", &res
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {clientID},
		"refresh_token": {refreshToken},
		"scope":         {microsoftAdsScope},
	}
	if secret, ok := cfgString(cfg, "client_secret"); ok {
		form.Set("client_secret", secret)
	}

	res := post(ctx, c.client, c.TokenURL, "application/x-www-form-urlencoded", nil,
		[]byte(form.Encode()))
	if !res.OK {
		res.Error = "microsoftads: token refresh failed: " + res.Error
		return "", &res
	}

	var token struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal([]byte(res.Response), &token); err != nil || token.AccessToken == "" {
		res.OK = false
		res.Error = "microsoftads: token refresh returned no access token"
		return "", &res
	}
	return token.AccessToken, nil
}

func (c *MicrosoftAds) buildEnvelope(developerToken, customerID, accountID, accessToken, conversionName string, evt *event.Event) []byte {
	value, currency := eventValue(evt)

	var valueXML string
	if value > 0 {
		valueXML = fmt.Sprintf(
			"<ConversionValue>%s</ConversionValue><ConversionCurrencyCode>%s</ConversionCurrencyCode>",
			formatFloat(value), xmlEscape(currency))
	}

	body := fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/">
  <s:Header xmlns="https://bingads.microsoft.com/CampaignManagement/v13">
    <Action mustUnderstand="1">ApplyOfflineConversions</Action>
    <AuthenticationToken>%s</AuthenticationToken>
    <CustomerAccountId>%s</CustomerAccountId>
    <CustomerId>%s</CustomerId>
    <DeveloperToken>%s</DeveloperToken>
  </s:Header>
  <s:Body>
    <ApplyOfflineConversionsRequest xmlns="https://bingads.microsoft.com/CampaignManagement/v13">
      <OfflineConversions>
        <OfflineConversion>
          <ConversionName>%s</ConversionName>
          <ConversionTime>%s</ConversionTime>
          %s
          <MicrosoftClickId>%s</MicrosoftClickId>
        </OfflineConversion>
      </OfflineConversions>
    </ApplyOfflineConversionsRequest>
  </s:Body>
</s:Envelope>`,
		xmlEscape(accessToken),
		xmlEscape(accountID),
		xmlEscape(customerID),
		xmlEscape(developerToken),
		xmlEscape(conversionName),
		evt.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		valueXML,
		xmlEscape(evt.MSCLKID),
	)
	return []byte(body)
}

func xmlEscape(s string) string {
	var buf bytes.Buffer
	if err := xml.EscapeText(&buf, []byte(s)); err != nil {
		return ""
	}
	return buf.String()
}
