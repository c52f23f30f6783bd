package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/beaconhq/beacon/destination"
	"github.com/beaconhq/beacon/dlq"
	"github.com/beaconhq/beacon/event"
	"github.com/beaconhq/beacon/forward"
	"github.com/beaconhq/beacon/id"
	"github.com/beaconhq/beacon/internal/entity"
)

// --- Event models ---

type eventModel struct {
	grove.BaseModel `grove:"table:beacon_events"`

	ID              string          `grove:"id,pk"`
	Name            string          `grove:"name"`
	Source          string          `grove:"source"`
	SessionID       string          `grove:"session_id"`
	DeviceID        string          `grove:"device_id"`
	UserID          string          `grove:"user_id"`
	UTMSource       string          `grove:"utm_source"`
	UTMMedium       string          `grove:"utm_medium"`
	UTMCampaign     string          `grove:"utm_campaign"`
	UTMTerm         string          `grove:"utm_term"`
	UTMContent      string          `grove:"utm_content"`
	Referrer        string          `grove:"referrer"`
	LandingURL      string          `grove:"landing_url"`
	GCLID           string          `grove:"gclid"`
	GBRAID          string          `grove:"gbraid"`
	WBRAID          string          `grove:"wbraid"`
	MSCLKID         string          `grove:"msclkid"`
	FBCLID          string          `grove:"fbclid"`
	TTCLID          string          `grove:"ttclid"`
	ExternalEventID string          `grove:"external_event_id"`
	Consent         json.RawMessage `grove:"consent,type:jsonb"`
	Payload         json.RawMessage `grove:"payload,type:jsonb"`
	CreatedAt       time.Time       `grove:"created_at"`
	UpdatedAt       time.Time       `grove:"updated_at"`
}

func toEventModel(evt *event.Event) *eventModel {
	consent, _ := json.Marshal(evt.Consent)  //nolint:errcheck // best-effort serialization
	payload, _ := json.Marshal(evt.Payload)  //nolint:errcheck // best-effort serialization
	return &eventModel{
		ID:              evt.ID.String(),
		Name:            evt.Name,
		Source:          evt.Source,
		SessionID:       evt.SessionID,
		DeviceID:        evt.DeviceID,
		UserID:          evt.UserID,
		UTMSource:       evt.UTMSource,
		UTMMedium:       evt.UTMMedium,
		UTMCampaign:     evt.UTMCampaign,
		UTMTerm:         evt.UTMTerm,
		UTMContent:      evt.UTMContent,
		Referrer:        evt.Referrer,
		LandingURL:      evt.LandingURL,
		GCLID:           evt.GCLID,
		GBRAID:          evt.GBRAID,
		WBRAID:          evt.WBRAID,
		MSCLKID:         evt.MSCLKID,
		FBCLID:          evt.FBCLID,
		TTCLID:          evt.TTCLID,
		ExternalEventID: evt.ExternalEventID,
		Consent:         consent,
		Payload:         payload,
		CreatedAt:       evt.CreatedAt,
		UpdatedAt:       evt.UpdatedAt,
	}
}

func fromEventModel(m *eventModel) (*event.Event, error) {
	evtID, err := id.ParseEventID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", m.ID, err)
	}
	var consent event.Consent
	if len(m.Consent) > 0 {
		if err := json.Unmarshal(m.Consent, &consent); err != nil {
			return nil, fmt.Errorf("decode consent for %s: %w", m.ID, err)
		}
	}
	var payload map[string]any
	if len(m.Payload) > 0 {
		if err := json.Unmarshal(m.Payload, &payload); err != nil {
			return nil, fmt.Errorf("decode payload for %s: %w", m.ID, err)
		}
	}
	return &event.Event{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:              evtID,
		Name:            m.Name,
		Source:          m.Source,
		SessionID:       m.SessionID,
		DeviceID:        m.DeviceID,
		UserID:          m.UserID,
		UTMSource:       m.UTMSource,
		UTMMedium:       m.UTMMedium,
		UTMCampaign:     m.UTMCampaign,
		UTMTerm:         m.UTMTerm,
		UTMContent:      m.UTMContent,
		Referrer:        m.Referrer,
		LandingURL:      m.LandingURL,
		GCLID:           m.GCLID,
		GBRAID:          m.GBRAID,
		WBRAID:          m.WBRAID,
		MSCLKID:         m.MSCLKID,
		FBCLID:          m.FBCLID,
		TTCLID:          m.TTCLID,
		ExternalEventID: m.ExternalEventID,
		Consent:         consent,
		Payload:         payload,
	}, nil
}

// --- Conversion models ---

type conversionModel struct {
	grove.BaseModel `grove:"table:beacon_conversions"`

	ID          string          `grove:"id,pk"`
	Status      string          `grove:"status"`
	ValueCents  *int64          `grove:"value_cents"`
	Currency    string          `grove:"currency"`
	LeadID      string          `grove:"lead_id"`
	JobID       string          `grove:"job_id"`
	InvoiceID   string          `grove:"invoice_id"`
	SessionID   string          `grove:"session_id"`
	DeviceID    string          `grove:"device_id"`
	UserID      string          `grove:"user_id"`
	UTMSource   string          `grove:"utm_source"`
	UTMMedium   string          `grove:"utm_medium"`
	UTMCampaign string          `grove:"utm_campaign"`
	GCLID       string          `grove:"gclid"`
	MSCLKID     string          `grove:"msclkid"`
	Payload     json.RawMessage `grove:"payload,type:jsonb"`
	CreatedAt   time.Time       `grove:"created_at"`
	UpdatedAt   time.Time       `grove:"updated_at"`
}

func toConversionModel(conv *event.Conversion) *conversionModel {
	payload, _ := json.Marshal(conv.Payload) //nolint:errcheck // best-effort serialization
	return &conversionModel{
		ID:          conv.ID.String(),
		Status:      conv.Status,
		ValueCents:  conv.ValueCents,
		Currency:    conv.Currency,
		LeadID:      conv.LeadID,
		JobID:       conv.JobID,
		InvoiceID:   conv.InvoiceID,
		SessionID:   conv.SessionID,
		DeviceID:    conv.DeviceID,
		UserID:      conv.UserID,
		UTMSource:   conv.UTMSource,
		UTMMedium:   conv.UTMMedium,
		UTMCampaign: conv.UTMCampaign,
		GCLID:       conv.GCLID,
		MSCLKID:     conv.MSCLKID,
		Payload:     payload,
		CreatedAt:   conv.CreatedAt,
		UpdatedAt:   conv.UpdatedAt,
	}
}

func fromConversionModel(m *conversionModel) (*event.Conversion, error) {
	convID, err := id.ParseConversionID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse conversion ID %q: %w", m.ID, err)
	}
	var payload map[string]any
	if len(m.Payload) > 0 {
		if err := json.Unmarshal(m.Payload, &payload); err != nil {
			return nil, fmt.Errorf("decode payload for %s: %w", m.ID, err)
		}
	}
	return &event.Conversion{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          convID,
		Status:      m.Status,
		ValueCents:  m.ValueCents,
		Currency:    m.Currency,
		LeadID:      m.LeadID,
		JobID:       m.JobID,
		InvoiceID:   m.InvoiceID,
		SessionID:   m.SessionID,
		DeviceID:    m.DeviceID,
		UserID:      m.UserID,
		UTMSource:   m.UTMSource,
		UTMMedium:   m.UTMMedium,
		UTMCampaign: m.UTMCampaign,
		GCLID:       m.GCLID,
		MSCLKID:     m.MSCLKID,
		Payload:     payload,
	}, nil
}

// --- Destination models ---

type destinationModel struct {
	grove.BaseModel `grove:"table:beacon_destinations"`

	ID            string    `grove:"id,pk"`
	Type          string    `grove:"type"`
	Name          string    `grove:"name"`
	Enabled       bool      `grove:"enabled"`
	ConfigEnc     string    `grove:"config_enc"`
	IncludeEvents []string  `grove:"include_events,array"`
	ExcludeEvents []string  `grove:"exclude_events,array"`
	CreatedAt     time.Time `grove:"created_at"`
	UpdatedAt     time.Time `grove:"updated_at"`
}

func toDestinationModel(dest *destination.Destination) *destinationModel {
	return &destinationModel{
		ID:            dest.ID.String(),
		Type:          string(dest.Type),
		Name:          dest.Name,
		Enabled:       dest.Enabled,
		ConfigEnc:     dest.ConfigEnc,
		IncludeEvents: dest.IncludeEvents,
		ExcludeEvents: dest.ExcludeEvents,
		CreatedAt:     dest.CreatedAt,
		UpdatedAt:     dest.UpdatedAt,
	}
}

func fromDestinationModel(m *destinationModel) (*destination.Destination, error) {
	destID, err := id.ParseDestinationID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse destination ID %q: %w", m.ID, err)
	}
	return &destination.Destination{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:            destID,
		Type:          destination.Type(m.Type),
		Name:          m.Name,
		Enabled:       m.Enabled,
		ConfigEnc:     m.ConfigEnc,
		IncludeEvents: m.IncludeEvents,
		ExcludeEvents: m.ExcludeEvents,
	}, nil
}

// --- Job models ---

type jobModel struct {
	grove.BaseModel `grove:"table:beacon_jobs"`

	ID             string     `grove:"id,pk"`
	EventID        string     `grove:"event_id"`
	State          string     `grove:"state"`
	Intended       []string   `grove:"intended,array"`
	Pending        []string   `grove:"pending,array"`
	HasPending     bool       `grove:"has_pending"`
	AttemptCount   int        `grove:"attempt_count"`
	MaxAttempts    int        `grove:"max_attempts"`
	NextAttemptAt  time.Time  `grove:"next_attempt_at"`
	LastError      string     `grove:"last_error"`
	LastStatusCode int        `grove:"last_status_code"`
	CompletedAt    *time.Time `grove:"completed_at"`
	CreatedAt      time.Time  `grove:"created_at"`
	UpdatedAt      time.Time  `grove:"updated_at"`
}

func toJobModel(j *forward.Job) *jobModel {
	intended := make([]string, len(j.Intended))
	for i, t := range j.Intended {
		intended[i] = string(t)
	}
	var pending []string
	if j.Pending != nil {
		pending = make([]string, len(j.Pending))
		for i, destID := range j.Pending {
			pending[i] = destID.String()
		}
	}
	return &jobModel{
		ID:             j.ID.String(),
		EventID:        j.EventID.String(),
		State:          string(j.State),
		Intended:       intended,
		Pending:        pending,
		HasPending:     j.Pending != nil,
		AttemptCount:   j.AttemptCount,
		MaxAttempts:    j.MaxAttempts,
		NextAttemptAt:  j.NextAttemptAt,
		LastError:      j.LastError,
		LastStatusCode: j.LastStatusCode,
		CompletedAt:    j.CompletedAt,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
	}
}

func fromJobModel(m *jobModel) (*forward.Job, error) {
	jobID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse job ID %q: %w", m.ID, err)
	}
	evtID, err := id.ParseEventID(m.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", m.EventID, err)
	}
	intended := make([]destination.Type, len(m.Intended))
	for i, t := range m.Intended {
		intended[i] = destination.Type(t)
	}
	var pending []id.ID
	if m.HasPending {
		pending = make([]id.ID, len(m.Pending))
		for i, raw := range m.Pending {
			destID, err := id.ParseDestinationID(raw)
			if err != nil {
				return nil, fmt.Errorf("parse destination ID %q: %w", raw, err)
			}
			pending[i] = destID
		}
	}
	return &forward.Job{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             jobID,
		EventID:        evtID,
		State:          forward.State(m.State),
		Intended:       intended,
		Pending:        pending,
		AttemptCount:   m.AttemptCount,
		MaxAttempts:    m.MaxAttempts,
		NextAttemptAt:  m.NextAttemptAt,
		LastError:      m.LastError,
		LastStatusCode: m.LastStatusCode,
		CompletedAt:    m.CompletedAt,
	}, nil
}

// --- DLQ models ---

type dlqEntryModel struct {
	grove.BaseModel `grove:"table:beacon_dlq"`

	ID              string     `grove:"id,pk"`
	JobID           string     `grove:"job_id"`
	EventID         string     `grove:"event_id"`
	DestinationID   string     `grove:"destination_id"`
	DestinationType string     `grove:"destination_type"`
	EventName       string     `grove:"event_name"`
	Error           string     `grove:"error"`
	LastStatusCode  int        `grove:"last_status_code"`
	Response        string     `grove:"response"`
	AttemptCount    int        `grove:"attempt_count"`
	ReplayedAt      *time.Time `grove:"replayed_at"`
	FailedAt        time.Time  `grove:"failed_at"`
	CreatedAt       time.Time  `grove:"created_at"`
	UpdatedAt       time.Time  `grove:"updated_at"`
}

func toDLQEntryModel(e *dlq.Entry) *dlqEntryModel {
	return &dlqEntryModel{
		ID:              e.ID.String(),
		JobID:           e.JobID.String(),
		EventID:         e.EventID.String(),
		DestinationID:   e.DestinationID.String(),
		DestinationType: string(e.DestinationType),
		EventName:       e.EventName,
		Error:           e.Error,
		LastStatusCode:  e.LastStatusCode,
		Response:        e.Response,
		AttemptCount:    e.AttemptCount,
		ReplayedAt:      e.ReplayedAt,
		FailedAt:        e.FailedAt,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
}

func fromDLQEntryModel(m *dlqEntryModel) (*dlq.Entry, error) {
	dlqID, err := id.ParseDLQID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse DLQ ID %q: %w", m.ID, err)
	}
	jobID, err := id.ParseJobID(m.JobID)
	if err != nil {
		return nil, fmt.Errorf("parse job ID %q: %w", m.JobID, err)
	}
	evtID, err := id.ParseEventID(m.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", m.EventID, err)
	}
	destID, err := id.ParseDestinationID(m.DestinationID)
	if err != nil {
		return nil, fmt.Errorf("parse destination ID %q: %w", m.DestinationID, err)
	}
	return &dlq.Entry{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:              dlqID,
		JobID:           jobID,
		EventID:         evtID,
		DestinationID:   destID,
		DestinationType: destination.Type(m.DestinationType),
		EventName:       m.EventName,
		Error:           m.Error,
		LastStatusCode:  m.LastStatusCode,
		Response:        m.Response,
		AttemptCount:    m.AttemptCount,
		ReplayedAt:      m.ReplayedAt,
		FailedAt:        m.FailedAt,
	}, nil
}
