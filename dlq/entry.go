// Package dlq retains per-destination delivery failures that exhausted
// their retry budget, and supports replaying them.
package dlq

import (
	"time"

	"github.com/beaconhq/beacon/destination"
	"github.com/beaconhq/beacon/id"
	"github.com/beaconhq/beacon/internal/entity"
)

// Entry represents one destination's permanently failed delivery of one
// event. A job failing against several destinations produces one entry
// per destination, so each can be inspected and replayed independently.
type Entry struct {
	entity.Entity

	// ID is the unique TypeID for this DLQ entry.
	ID id.ID `json:"id"`

	// JobID references the exhausted forwarding job.
	JobID id.ID `json:"job_id"`

	// EventID references the original event.
	EventID id.ID `json:"event_id"`

	// DestinationID references the destination that kept failing.
	DestinationID id.ID `json:"destination_id"`

	// DestinationType is the platform type at the time of failure.
	DestinationType destination.Type `json:"destination_type"`

	// EventName is the event name for filtering.
	EventName string `json:"event_name"`

	// Error is the error from the final attempt.
	Error string `json:"error"`

	// LastStatusCode is the HTTP status from the final attempt.
	LastStatusCode int `json:"last_status_code,omitempty"`

	// Response is the truncated platform response from the final attempt.
	Response string `json:"response,omitempty"`

	// AttemptCount is the total number of attempts made.
	AttemptCount int `json:"attempt_count"`

	// ReplayedAt is set when the entry has been replayed.
	ReplayedAt *time.Time `json:"replayed_at,omitempty"`

	// FailedAt is when delivery permanently failed.
	FailedAt time.Time `json:"failed_at"`
}

// ListOpts configures filtering and pagination for DLQ listing.
type ListOpts struct {
	Offset          int
	Limit           int
	DestinationID   *id.ID
	DestinationType *destination.Type
	From            *time.Time
	To              *time.Time
}
