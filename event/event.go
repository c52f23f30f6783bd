// Package event defines the canonical marketing event model and its
// persistence contract.
package event

import (
	"time"

	"github.com/beaconhq/beacon/id"
	"github.com/beaconhq/beacon/internal/entity"
)

// Event represents a single tracked marketing event. Once persisted it is
// immutable: the forwarding pipeline reads it but never writes it back.
type Event struct {
	entity.Entity

	// ID is the unique TypeID for this event.
	ID id.ID `json:"id"`

	// Name is the event name (e.g. "page_view", "lead_submitted").
	Name string `json:"name"`

	// Source identifies where the event originated ("web" or "server").
	Source string `json:"source"`

	// Visitor identifiers. All optional.
	SessionID string `json:"session_id,omitempty"`
	DeviceID  string `json:"device_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`

	// Attribution fields.
	UTMSource   string `json:"utm_source,omitempty"`
	UTMMedium   string `json:"utm_medium,omitempty"`
	UTMCampaign string `json:"utm_campaign,omitempty"`
	UTMTerm     string `json:"utm_term,omitempty"`
	UTMContent  string `json:"utm_content,omitempty"`
	Referrer    string `json:"referrer,omitempty"`
	LandingURL  string `json:"landing_url,omitempty"`

	// Ad-platform click identifiers.
	GCLID   string `json:"gclid,omitempty"`
	GBRAID  string `json:"gbraid,omitempty"`
	WBRAID  string `json:"wbraid,omitempty"`
	MSCLKID string `json:"msclkid,omitempty"`
	FBCLID  string `json:"fbclid,omitempty"`
	TTCLID  string `json:"ttclid,omitempty"`

	// ExternalEventID is the caller-supplied idempotency key. When present it
	// is unique across all events; a duplicate insert returns the existing
	// record instead of erroring.
	ExternalEventID string `json:"external_event_id,omitempty"`

	// Consent captures the visitor's consent state at the time of the event.
	Consent Consent `json:"consent"`

	// Payload is the free-form event payload.
	Payload map[string]any `json:"payload,omitempty"`
}

// ListOpts configures filtering and pagination for event listing.
type ListOpts struct {
	Offset int
	Limit  int
	Name   string
	From   *time.Time
	To     *time.Time
}
