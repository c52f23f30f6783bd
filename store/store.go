// Package store defines the composite Store interface for all pipeline
// persistence.
//
// Each subsystem defines its own store interface and the aggregate Store
// composes them all, so backends implement one surface and subsystems
// depend only on their own slice of it.
package store

import (
	"context"

	"github.com/beaconhq/beacon/destination"
	"github.com/beaconhq/beacon/dlq"
	"github.com/beaconhq/beacon/event"
	"github.com/beaconhq/beacon/forward"
)

// Store is the aggregate persistence interface.
type Store interface {
	event.Store
	destination.Store
	forward.Store
	dlq.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
