package connector_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/beaconhq/beacon/connector"
	"github.com/beaconhq/beacon/destination"
	"github.com/beaconhq/beacon/event"
	"github.com/beaconhq/beacon/id"
	"github.com/beaconhq/beacon/internal/entity"
)

func testEvent(t *testing.T, name string) *event.Event {
	t.Helper()
	cents := int64(48500)
	return &event.Event{
		Entity:     entity.New(),
		ID:         id.NewEventID(),
		Name:       name,
		Source:     "web",
		SessionID:  "sess-1",
		DeviceID:   "dev-1",
		LandingURL: "https://example.com/drain-cleaning",
		GCLID:      "gclid-123",
		MSCLKID:    "msclk-456",
		FBCLID:     "fbclid-789",
		TTCLID:     "ttclid-012",
		Consent:    event.FullConsent(),
		Payload: map[string]any{
			"email":       "User@Example.com",
			"phone":       "(555) 867-5309",
			"value_cents": cents,
			"currency":    "USD",
		},
	}
}

func ctx() context.Context { return context.Background() }

func TestGA4Send(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := connector.NewGA4(srv.Client())
	c.BaseURL = srv.URL

	res := c.Send(ctx(), map[string]any{
		"measurement_id": "G-TEST1",
		"api_secret":     "secret",
	}, testEvent(t, "page_view"))

	if !res.OK {
		t.Fatalf("Send() not OK: %s", res.Error)
	}
	if res.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", res.StatusCode)
	}
	if !strings.Contains(gotPath, "/mp/collect") || !strings.Contains(gotPath, "measurement_id=G-TEST1") {
		t.Errorf("unexpected request path %q", gotPath)
	}
	events, _ := gotBody["events"].([]any)
	if len(events) != 1 {
		t.Fatalf("events length = %d, want 1", len(events))
	}
	if name := events[0].(map[string]any)["name"]; name != "page_view" {
		t.Errorf("event name = %v, want page_view", name)
	}
}

func TestGA4MissingConfig(t *testing.T) {
	c := connector.NewGA4(http.DefaultClient)
	res := c.Send(ctx(), map[string]any{"api_secret": "s"}, testEvent(t, "page_view"))
	if res.OK {
		t.Fatal("expected failure for missing measurement_id")
	}
	if !strings.Contains(res.Error, "measurement_id") {
		t.Errorf("error %q should name the missing field", res.Error)
	}
}

func TestPostHogSend(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/capture/" {
			t.Errorf("path = %q, want /capture/", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := connector.NewPostHog(srv.Client())
	res := c.Send(ctx(), map[string]any{
		"api_key": "phc_test",
		"host":    srv.URL,
	}, testEvent(t, "cta_click"))

	if !res.OK {
		t.Fatalf("Send() not OK: %s", res.Error)
	}
	if gotBody["event"] != "cta_click" {
		t.Errorf("event = %v, want cta_click", gotBody["event"])
	}
	if gotBody["distinct_id"] != "dev-1" {
		t.Errorf("distinct_id = %v, want dev-1", gotBody["distinct_id"])
	}
}

func TestMetaSendHashesPII(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		io.WriteString(w, `{"events_received": 1}`)
	}))
	defer srv.Close()

	c := connector.NewMeta(srv.Client())
	c.BaseURL = srv.URL

	res := c.Send(ctx(), map[string]any{
		"pixel_id":     "12345",
		"access_token": "tok",
	}, testEvent(t, "lead_submitted"))

	if !res.OK {
		t.Fatalf("Send() not OK: %s", res.Error)
	}

	data := gotBody["data"].([]any)[0].(map[string]any)
	if data["event_name"] != "Lead" {
		t.Errorf("event_name = %v, want Lead", data["event_name"])
	}
	userData := data["user_data"].(map[string]any)
	em := userData["em"].([]any)
	if em[0] != connector.HashEmail("user@example.com") {
		t.Errorf("em hash mismatch: %v", em[0])
	}
	raw, _ := json.Marshal(gotBody)
	if strings.Contains(string(raw), "User@Example.com") || strings.Contains(string(raw), "867-5309") {
		t.Error("raw PII leaked into request body")
	}
}

func TestTikTokBodyCodeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Access-Token") != "tok" {
			t.Errorf("Access-Token = %q, want tok", r.Header.Get("Access-Token"))
		}
		io.WriteString(w, `{"code": 40001, "message": "invalid pixel"}`)
	}))
	defer srv.Close()

	c := connector.NewTikTok(srv.Client())
	c.BaseURL = srv.URL

	res := c.Send(ctx(), map[string]any{
		"pixel_code":   "PIX",
		"access_token": "tok",
	}, testEvent(t, "lead_submitted"))

	if res.OK {
		t.Fatal("expected failure for nonzero body code on HTTP 200")
	}
	if !strings.Contains(res.Error, "40001") {
		t.Errorf("error %q should carry the platform code", res.Error)
	}
}

func TestTikTokBodyCodeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"code": 0, "message": "OK"}`)
	}))
	defer srv.Close()

	c := connector.NewTikTok(srv.Client())
	c.BaseURL = srv.URL

	res := c.Send(ctx(), map[string]any{
		"pixel_code":   "PIX",
		"access_token": "tok",
	}, testEvent(t, "job_completed"))

	if !res.OK {
		t.Fatalf("Send() not OK: %s", res.Error)
	}
}

func TestSnapchatSend(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := connector.NewSnapchat(srv.Client())
	c.BaseURL = srv.URL

	res := c.Send(ctx(), map[string]any{
		"pixel_id":     "pix",
		"access_token": "tok",
	}, testEvent(t, "job_completed"))

	if !res.OK {
		t.Fatalf("Send() not OK: %s", res.Error)
	}
	if gotBody["event_type"] != "PURCHASE" {
		t.Errorf("event_type = %v, want PURCHASE", gotBody["event_type"])
	}
	if gotBody["hashed_email"] != connector.HashEmail("user@example.com") {
		t.Error("hashed_email mismatch")
	}
}

func TestGoogleAdsPartialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("developer-token"); got != "devtok" {
			t.Errorf("developer-token = %q", got)
		}
		io.WriteString(w, `{"partialFailureError": {"code": 3, "message": "gclid expired"}}`)
	}))
	defer srv.Close()

	c := connector.NewGoogleAds(srv.Client())
	c.BaseURL = srv.URL

	res := c.Send(ctx(), map[string]any{
		"customer_id":       "111",
		"conversion_action": "222",
		"developer_token":   "devtok",
		"access_token":      "tok",
	}, testEvent(t, "job_completed"))

	if res.OK {
		t.Fatal("expected failure when response carries partialFailureError")
	}
}

func TestGoogleAdsSkipsWithoutClickID(t *testing.T) {
	evt := testEvent(t, "job_completed")
	evt.GCLID, evt.GBRAID, evt.WBRAID = "", "", ""

	c := connector.NewGoogleAds(http.DefaultClient)
	c.BaseURL = "http://127.0.0.1:1" // must never be contacted

	res := c.Send(ctx(), map[string]any{
		"customer_id":       "111",
		"conversion_action": "222",
		"developer_token":   "devtok",
		"access_token":      "tok",
	}, evt)

	if !res.OK {
		t.Fatalf("expected skip to report OK, got error %q", res.Error)
	}
	if !strings.Contains(res.Response, "skipped") {
		t.Errorf("response %q should note the skip", res.Response)
	}
}

func TestMicrosoftAdsRefreshAndUpload(t *testing.T) {
	var gotSOAP string
	soap := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("SOAPAction"); got != "ApplyOfflineConversions" {
			t.Errorf("SOAPAction = %q", got)
		}
		raw, _ := io.ReadAll(r.Body)
		gotSOAP = string(raw)
		io.WriteString(w, `<s:Envelope><s:Body><ApplyOfflineConversionsResponse><PartialErrors/></ApplyOfflineConversionsResponse></s:Body></s:Envelope>`)
	}))
	defer soap.Close()

	token := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse token form: %v", err)
		}
		if r.Form.Get("grant_type") != "refresh_token" {
			t.Errorf("grant_type = %q", r.Form.Get("grant_type"))
		}
		io.WriteString(w, `{"access_token": "fresh-token", "expires_in": 3600}`)
	}))
	defer token.Close()

	c := connector.NewMicrosoftAds(http.DefaultClient)
	c.TokenURL = token.URL
	c.SOAPURL = soap.URL

	res := c.Send(ctx(), map[string]any{
		"developer_token":     "devtok",
		"customer_id":         "c-1",
		"customer_account_id": "a-1",
		"client_id":           "app-id",
		"refresh_token":       "refresh",
		"conversion_name":     "JobCompleted",
	}, testEvent(t, "job_completed"))

	if !res.OK {
		t.Fatalf("Send() not OK: %s", res.Error)
	}
	if !strings.Contains(gotSOAP, "<AuthenticationToken>fresh-token</AuthenticationToken>") {
		t.Error("envelope missing refreshed access token")
	}
	if !strings.Contains(gotSOAP, "<MicrosoftClickId>msclk-456</MicrosoftClickId>") {
		t.Error("envelope missing click id")
	}
	if !strings.Contains(gotSOAP, "<ConversionValue>485</ConversionValue>") {
		t.Error("envelope missing conversion value in major units")
	}
}

func TestMicrosoftAdsBatchErrorFails(t *testing.T) {
	soap := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<s:Envelope><s:Body><PartialErrors><BatchError><Code>5324</Code></BatchError></PartialErrors></s:Body></s:Envelope>`)
	}))
	defer soap.Close()

	token := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"access_token": "tok"}`)
	}))
	defer token.Close()

	c := connector.NewMicrosoftAds(http.DefaultClient)
	c.TokenURL = token.URL
	c.SOAPURL = soap.URL

	res := c.Send(ctx(), map[string]any{
		"developer_token":     "devtok",
		"customer_id":         "c-1",
		"customer_account_id": "a-1",
		"client_id":           "app-id",
		"refresh_token":       "refresh",
		"conversion_name":     "JobCompleted",
	}, testEvent(t, "job_completed"))

	if res.OK {
		t.Fatal("expected failure when response carries batch errors")
	}
}

func TestConnectorReportsTransportFailure(t *testing.T) {
	c := connector.NewPinterest(&http.Client{Timeout: 200 * time.Millisecond})
	c.BaseURL = "http://127.0.0.1:1"

	res := c.Send(ctx(), map[string]any{
		"ad_account_id": "acc",
		"access_token":  "tok",
	}, testEvent(t, "lead_submitted"))

	if res.OK {
		t.Fatal("expected transport failure")
	}
	if res.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0 on transport failure", res.StatusCode)
	}
	if res.Error == "" {
		t.Error("transport failure should carry an error description")
	}
}

func TestRegistryCoversAllDestinationTypes(t *testing.T) {
	r := connector.NewRegistry(nil)
	for _, dt := range destination.All() {
		if _, ok := r.Get(dt); !ok {
			t.Errorf("registry missing connector for %s", dt)
		}
	}
}
