package schema_test

import (
	"encoding/json"
	"testing"

	"github.com/beaconhq/beacon/schema"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatalf("decode test body: %v", err)
	}
	return v
}

func TestValidateTrack(t *testing.T) {
	v := schema.NewValidator()

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{
			name: "minimal valid",
			body: `{"name": "page_view"}`,
		},
		{
			name: "full valid",
			body: `{
				"name": "lead_submitted",
				"source": "web",
				"session_id": "s-1",
				"device_id": "d-1",
				"utm_source": "google",
				"utm_medium": "cpc",
				"gclid": "abc123",
				"landing_url": "https://example.com/plumbing",
				"external_event_id": "form-789",
				"consent": {"ad_storage": "granted", "analytics_storage": "granted"},
				"payload": {"form": "contact"}
			}`,
		},
		{
			name:    "missing name",
			body:    `{"source": "web"}`,
			wantErr: true,
		},
		{
			name:    "empty name",
			body:    `{"name": ""}`,
			wantErr: true,
		},
		{
			name:    "uppercase name rejected",
			body:    `{"name": "PageView"}`,
			wantErr: true,
		},
		{
			name:    "unknown top-level field",
			body:    `{"name": "page_view", "surprise": true}`,
			wantErr: true,
		},
		{
			name:    "bad consent value",
			body:    `{"name": "page_view", "consent": {"ad_storage": "maybe"}}`,
			wantErr: true,
		},
		{
			name:    "unknown consent flag",
			body:    `{"name": "page_view", "consent": {"tracking": "granted"}}`,
			wantErr: true,
		},
		{
			name:    "payload must be object",
			body:    `{"name": "page_view", "payload": [1, 2]}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateTrack(decode(t, tt.body))
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTrack() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateConversion(t *testing.T) {
	v := schema.NewValidator()

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{
			name: "minimal valid",
			body: `{"status": "lead_submitted"}`,
		},
		{
			name: "full valid",
			body: `{
				"status": "job_completed",
				"value_cents": 48500,
				"currency": "USD",
				"job_id": "job-42",
				"session_id": "s-1",
				"gclid": "abc123",
				"payload": {"service": "drain_cleaning"}
			}`,
		},
		{
			name:    "missing status",
			body:    `{"value_cents": 100}`,
			wantErr: true,
		},
		{
			name:    "unknown status",
			body:    `{"status": "upsold"}`,
			wantErr: true,
		},
		{
			name:    "negative value",
			body:    `{"status": "job_completed", "value_cents": -1}`,
			wantErr: true,
		},
		{
			name:    "fractional value",
			body:    `{"status": "job_completed", "value_cents": 10.5}`,
			wantErr: true,
		},
		{
			name:    "lowercase currency",
			body:    `{"status": "job_completed", "currency": "usd"}`,
			wantErr: true,
		},
		{
			name:    "unknown field",
			body:    `{"status": "lead_submitted", "notes": "called back"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateConversion(decode(t, tt.body))
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateConversion() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
