package event

import (
	"context"

	"github.com/beaconhq/beacon/id"
)

// Store defines the persistence contract for events and conversions.
//
// The uniqueness constraint on ExternalEventID is the sole serialization
// point for idempotency: concurrent duplicate submissions must resolve to a
// single stored record without producing two rows.
type Store interface {
	// InsertIfAbsent persists an event keyed by its ExternalEventID when
	// present. If another event with the same key already exists, the
	// pre-existing record is returned with wasNew=false and no row is
	// created. An absent key always inserts. Must be durable before
	// returning.
	InsertIfAbsent(ctx context.Context, evt *Event) (*Event, bool, error)

	// GetEvent returns an event by ID.
	GetEvent(ctx context.Context, evtID id.ID) (*Event, error)

	// ListEvents returns events, optionally filtered by name or time range.
	ListEvents(ctx context.Context, opts ListOpts) ([]*Event, error)

	// CreateConversion persists a conversion record.
	CreateConversion(ctx context.Context, conv *Conversion) error

	// ListConversions returns conversions, newest first.
	ListConversions(ctx context.Context, opts ListOpts) ([]*Conversion, error)
}
