// Package forward implements the durable forwarding queue and the dispatch
// worker pool that drains it.
package forward

import (
	"time"

	"github.com/beaconhq/beacon/destination"
	"github.com/beaconhq/beacon/id"
	"github.com/beaconhq/beacon/internal/entity"
)

// State represents the current state of a forwarding job.
type State string

const (
	// StateQueued indicates the job is awaiting dispatch or retry.
	StateQueued State = "queued"

	// StateCompleted indicates every intended destination accepted the
	// event.
	StateCompleted State = "completed"

	// StateFailed indicates the job exhausted its attempts with at least
	// one destination still failing. Failed jobs are retained for
	// operator inspection.
	StateFailed State = "failed"
)

// Job is one unit of queued forwarding work for one accepted event.
//
// A job is created once per accepted event and never mutated by its
// producer after enqueue; only the dispatch worker advances its state.
type Job struct {
	entity.Entity

	// ID is the unique TypeID for this job.
	ID id.ID `json:"id"`

	// EventID references the event being forwarded.
	EventID id.ID `json:"event_id"`

	// State is the current job state.
	State State `json:"state"`

	// Intended is the set of destination types routing selected at
	// enqueue time.
	Intended []destination.Type `json:"intended"`

	// Pending narrows retry attempts to the concrete destinations that
	// failed previously. Nil until the first attempt resolves concrete
	// destinations from Intended.
	Pending []id.ID `json:"pending,omitempty"`

	// AttemptCount is the number of dispatch attempts made so far.
	AttemptCount int `json:"attempt_count"`

	// MaxAttempts is the attempt budget before the job is marked failed.
	MaxAttempts int `json:"max_attempts"`

	// NextAttemptAt is when the job next becomes visible to workers.
	NextAttemptAt time.Time `json:"next_attempt_at"`

	// LastError is the error from the most recent failed destination.
	LastError string `json:"last_error,omitempty"`

	// LastStatusCode is the HTTP status behind LastError, when any.
	LastStatusCode int `json:"last_status_code,omitempty"`

	// CompletedAt is when the job reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Terminal reports whether the job has reached a terminal state.
func (j *Job) Terminal() bool {
	return j.State == StateCompleted || j.State == StateFailed
}

// ListOpts configures filtering and pagination for job listing.
type ListOpts struct {
	Offset int
	Limit  int
	State  *State
}
