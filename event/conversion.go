package event

import (
	"github.com/beaconhq/beacon/id"
	"github.com/beaconhq/beacon/internal/entity"
)

// Conversion is a downstream business outcome (lead, booking, completed job)
// recorded separately from the tracking event stream. Each conversion also
// spawns a synthetic server-originated Event carrying full consent.
type Conversion struct {
	entity.Entity

	// ID is the unique TypeID for this conversion.
	ID id.ID `json:"id"`

	// Status is the conversion outcome name (e.g. "lead_submitted",
	// "booking_confirmed", "job_completed").
	Status string `json:"status"`

	// ValueCents is the monetary value in cents, when known.
	ValueCents *int64 `json:"value_cents,omitempty"`

	// Currency is the ISO 4217 currency code for ValueCents.
	Currency string `json:"currency"`

	// Business record references.
	LeadID    string `json:"lead_id,omitempty"`
	JobID     string `json:"job_id,omitempty"`
	InvoiceID string `json:"invoice_id,omitempty"`

	// Visitor identifiers carried over from the originating session.
	SessionID string `json:"session_id,omitempty"`
	DeviceID  string `json:"device_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`

	// Attribution fields.
	UTMSource   string `json:"utm_source,omitempty"`
	UTMMedium   string `json:"utm_medium,omitempty"`
	UTMCampaign string `json:"utm_campaign,omitempty"`
	GCLID       string `json:"gclid,omitempty"`
	MSCLKID     string `json:"msclkid,omitempty"`

	// Payload is the free-form conversion payload.
	Payload map[string]any `json:"payload,omitempty"`
}

// SyntheticEvent builds the server-originated event emitted alongside this
// conversion. The event name is the conversion status and consent is fully
// granted.
func (c *Conversion) SyntheticEvent() *Event {
	payload := map[string]any{"conversion_id": c.ID.String()}
	for k, v := range c.Payload {
		payload[k] = v
	}
	if c.ValueCents != nil {
		payload["value_cents"] = *c.ValueCents
	}
	if c.Currency != "" {
		payload["currency"] = c.Currency
	}

	return &Event{
		Entity:      entity.New(),
		ID:          id.NewEventID(),
		Name:        c.Status,
		Source:      "server",
		SessionID:   c.SessionID,
		DeviceID:    c.DeviceID,
		UserID:      c.UserID,
		UTMSource:   c.UTMSource,
		UTMMedium:   c.UTMMedium,
		UTMCampaign: c.UTMCampaign,
		GCLID:       c.GCLID,
		MSCLKID:     c.MSCLKID,
		Consent:     FullConsent(),
		Payload:     payload,
	}
}
