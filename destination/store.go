package destination

import (
	"context"

	"github.com/beaconhq/beacon/id"
)

// Store defines the persistence contract for destinations.
//
// Destination rows are written by the administrative service and read-shared
// by the routing and dispatch components. Config is persisted only in its
// sealed form.
type Store interface {
	// UpsertDestination creates or updates a destination keyed by
	// (Type, Name). On update the stored ID is preserved and written back
	// to dest.
	UpsertDestination(ctx context.Context, dest *Destination) error

	// GetDestination returns a destination by ID.
	GetDestination(ctx context.Context, destID id.ID) (*Destination, error)

	// DeleteDestination removes a destination.
	DeleteDestination(ctx context.Context, destID id.ID) error

	// ListDestinations returns all destinations, most recently updated first.
	ListDestinations(ctx context.Context) ([]*Destination, error)

	// ListEnabledByType returns the enabled destinations of the given
	// platform type in stable order.
	ListEnabledByType(ctx context.Context, t Type) ([]*Destination, error)
}
