package forward

import (
	"context"

	"github.com/beaconhq/beacon/id"
)

// Store is the durable queue contract for forwarding jobs.
//
// DequeueJobs must claim atomically: a job returned to one caller is
// invisible to every other caller until its next UpdateJob, so at most one
// worker processes a given job at a time.
type Store interface {
	// EnqueueJob persists a new job, visible immediately.
	EnqueueJob(ctx context.Context, j *Job) error

	// DequeueJobs claims up to limit queued jobs whose NextAttemptAt has
	// passed.
	DequeueJobs(ctx context.Context, limit int) ([]*Job, error)

	// UpdateJob persists job state after an attempt and releases the
	// claim.
	UpdateJob(ctx context.Context, j *Job) error

	// GetJob returns a job by id.
	GetJob(ctx context.Context, jobID id.ID) (*Job, error)

	// ListJobs returns jobs matching the filter, newest first.
	ListJobs(ctx context.Context, opts ListOpts) ([]*Job, error)

	// PurgeCompletedJobs removes completed jobs, returning the count.
	// Failed jobs are retained.
	PurgeCompletedJobs(ctx context.Context) (int, error)
}
