package redis

import (
	"context"
	"fmt"
	"math"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/beaconhq/beacon"
	"github.com/beaconhq/beacon/event"
	"github.com/beaconhq/beacon/id"
	"github.com/beaconhq/beacon/internal/entity"
)

// eventModel is the JSON representation stored in Redis.
type eventModel struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Source          string         `json:"source"`
	SessionID       string         `json:"session_id,omitempty"`
	DeviceID        string         `json:"device_id,omitempty"`
	UserID          string         `json:"user_id,omitempty"`
	UTMSource       string         `json:"utm_source,omitempty"`
	UTMMedium       string         `json:"utm_medium,omitempty"`
	UTMCampaign     string         `json:"utm_campaign,omitempty"`
	UTMTerm         string         `json:"utm_term,omitempty"`
	UTMContent      string         `json:"utm_content,omitempty"`
	Referrer        string         `json:"referrer,omitempty"`
	LandingURL      string         `json:"landing_url,omitempty"`
	GCLID           string         `json:"gclid,omitempty"`
	GBRAID          string         `json:"gbraid,omitempty"`
	WBRAID          string         `json:"wbraid,omitempty"`
	MSCLKID         string         `json:"msclkid,omitempty"`
	FBCLID          string         `json:"fbclid,omitempty"`
	TTCLID          string         `json:"ttclid,omitempty"`
	ExternalEventID string         `json:"external_event_id,omitempty"`
	Consent         event.Consent  `json:"consent"`
	Payload         map[string]any `json:"payload,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func toEventModel(evt *event.Event) *eventModel {
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
		Consent:         evt.Consent,
		Payload:         evt.Payload,
		CreatedAt:       evt.CreatedAt,
		UpdatedAt:       evt.UpdatedAt,
	}
}

func fromEventModel(m *eventModel) (*event.Event, error) {
	evtID, err := id.ParseEventID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", m.ID, err)
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
		Consent:         m.Consent,
		Payload:         m.Payload,
	}, nil
}

// InsertIfAbsent persists an event keyed by its external event ID. SET NX
// on the unique index is the serialization point: exactly one concurrent
// writer wins, everyone else reads the winner's record back.
//
// The entity blob is written before the index claim. The index must never
// point at a record that is not yet readable: a loser reading back in the
// claim window has to find the winner, and a write failure after a won
// claim must not poison the key for every later submission.
func (s *Store) InsertIfAbsent(ctx context.Context, evt *event.Event) (*event.Event, bool, error) {
	m := toEventModel(evt)

	if err := s.setEntity(ctx, entityKey(prefixEvent, m.ID), m); err != nil {
		return nil, false, fmt.Errorf("beacon/redis: insert event: %w", err)
	}

	if m.ExternalEventID != "" {
		wasSet, err := s.rdb.SetNX(ctx, uniqueEventExtID+m.ExternalEventID, m.ID, 0).Result()
		if err != nil {
			// The claim outcome is unknown; the blob stays so the index,
			// if it did commit, still resolves to a readable record.
			return nil, false, fmt.Errorf("beacon/redis: insert event idem check: %w", err)
		}
		if !wasSet {
			// Lost the claim: drop our unreachable blob and return the
			// winner's record.
			s.rdb.Del(ctx, entityKey(prefixEvent, m.ID))

			existingRaw, err := s.rdb.Get(ctx, uniqueEventExtID+m.ExternalEventID).Result()
			if err != nil {
				return nil, false, fmt.Errorf("beacon/redis: read idem winner: %w", err)
			}
			existingID, err := id.ParseEventID(existingRaw)
			if err != nil {
				return nil, false, fmt.Errorf("beacon/redis: corrupt idem index %q: %w", existingRaw, err)
			}
			existing, err := s.GetEvent(ctx, existingID)
			if err != nil {
				return nil, false, err
			}
			return existing, false, nil
		}
	}

	if err := s.rdb.ZAdd(ctx, zEventAll, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID}).Err(); err != nil {
		return nil, false, fmt.Errorf("beacon/redis: insert event index: %w", err)
	}
	return evt, true, nil
}

// GetEvent returns an event by ID.
func (s *Store) GetEvent(ctx context.Context, evtID id.ID) (*event.Event, error) {
	var m eventModel
	if err := s.getEntity(ctx, entityKey(prefixEvent, evtID.String()), &m); err != nil {
		if isNotFound(err) {
			return nil, beacon.ErrEventNotFound
		}
		return nil, fmt.Errorf("beacon/redis: get event: %w", err)
	}
	return fromEventModel(&m)
}

// ListEvents returns events, optionally filtered by name or time range.
func (s *Store) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	minScore := math.Inf(-1)
	maxScore := math.Inf(1)
	if opts.From != nil {
		minScore = scoreFromTime(*opts.From)
	}
	if opts.To != nil {
		maxScore = scoreFromTime(*opts.To)
	}

	ids, err := s.zRangeByScoreIDs(ctx, zEventAll, minScore, maxScore)
	if err != nil {
		return nil, fmt.Errorf("beacon/redis: list events: %w", err)
	}

	result := make([]*event.Event, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- { // reverse for DESC order
		var m eventModel
		if err := s.getEntity(ctx, entityKey(prefixEvent, ids[i]), &m); err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		if opts.Name != "" && m.Name != opts.Name {
			continue
		}
		evt, err := fromEventModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, evt)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// conversionModel is the JSON representation stored in Redis.
type conversionModel struct {
	ID          string         `json:"id"`
	Status      string         `json:"status"`
	ValueCents  *int64         `json:"value_cents,omitempty"`
	Currency    string         `json:"currency,omitempty"`
	LeadID      string         `json:"lead_id,omitempty"`
	JobID       string         `json:"job_id,omitempty"`
	InvoiceID   string         `json:"invoice_id,omitempty"`
	SessionID   string         `json:"session_id,omitempty"`
	DeviceID    string         `json:"device_id,omitempty"`
	UserID      string         `json:"user_id,omitempty"`
	UTMSource   string         `json:"utm_source,omitempty"`
	UTMMedium   string         `json:"utm_medium,omitempty"`
	UTMCampaign string         `json:"utm_campaign,omitempty"`
	GCLID       string         `json:"gclid,omitempty"`
	MSCLKID     string         `json:"msclkid,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// CreateConversion persists a conversion record.
func (s *Store) CreateConversion(ctx context.Context, conv *event.Conversion) error {
	m := &conversionModel{
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
		Payload:     conv.Payload,
		CreatedAt:   conv.CreatedAt,
		UpdatedAt:   conv.UpdatedAt,
	}

	if err := s.setEntity(ctx, entityKey(prefixConversion, m.ID), m); err != nil {
		return fmt.Errorf("beacon/redis: create conversion: %w", err)
	}
	if err := s.rdb.ZAdd(ctx, zConversionAll, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID}).Err(); err != nil {
		return fmt.Errorf("beacon/redis: create conversion index: %w", err)
	}
	return nil
}

// ListConversions returns conversions, newest first.
func (s *Store) ListConversions(ctx context.Context, opts event.ListOpts) ([]*event.Conversion, error) {
	minScore := math.Inf(-1)
	maxScore := math.Inf(1)
	if opts.From != nil {
		minScore = scoreFromTime(*opts.From)
	}
	if opts.To != nil {
		maxScore = scoreFromTime(*opts.To)
	}

	ids, err := s.zRangeByScoreIDs(ctx, zConversionAll, minScore, maxScore)
	if err != nil {
		return nil, fmt.Errorf("beacon/redis: list conversions: %w", err)
	}

	result := make([]*event.Conversion, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		var m conversionModel
		if err := s.getEntity(ctx, entityKey(prefixConversion, ids[i]), &m); err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		convID, err := id.ParseConversionID(m.ID)
		if err != nil {
			return nil, fmt.Errorf("parse conversion ID %q: %w", m.ID, err)
		}
		result = append(result, &event.Conversion{
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
			Payload:     m.Payload,
		})
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}
