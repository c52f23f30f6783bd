package forward

import "time"

// DefaultRetrySchedule is the doubling backoff applied between attempts.
var DefaultRetrySchedule = []time.Duration{
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
	32 * time.Second,
}

// DefaultMaxAttempts is the total attempt budget per job.
const DefaultMaxAttempts = 5

// Decision is the outcome of evaluating a job after a dispatch attempt.
type Decision int

const (
	// Completed means every intended destination accepted the event.
	Completed Decision = iota

	// Retry means at least one destination failed and attempts remain.
	Retry

	// Exhausted means the job has used its attempt budget with failures
	// remaining; the failed destinations move to the DLQ.
	Exhausted
)

// Retrier decides what to do with a job after an attempt.
//
// The policy is uniform across failure kinds: any destination failure is
// retried on the backoff schedule until the attempt budget runs out.
// Delivery reliability against flaky external platforms outranks giving up
// early on responses that look permanent.
type Retrier struct {
	schedule []time.Duration
}

// NewRetrier creates a retrier with the given backoff schedule.
func NewRetrier(schedule []time.Duration) *Retrier {
	if len(schedule) == 0 {
		schedule = DefaultRetrySchedule
	}
	return &Retrier{schedule: schedule}
}

// Decide determines what to do with a job after an attempt that left
// failedCount destinations undelivered.
func (r *Retrier) Decide(failedCount int, j *Job) Decision {
	if failedCount == 0 {
		return Completed
	}
	if j.AttemptCount < j.MaxAttempts {
		return Retry
	}
	return Exhausted
}

// ComputeNextAttempt returns when the next attempt should run, based on
// how many attempts have been made. The schedule's last delay repeats if
// attempts outnumber schedule entries.
func (r *Retrier) ComputeNextAttempt(attemptCount int) time.Time {
	idx := attemptCount - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(r.schedule) {
		idx = len(r.schedule) - 1
	}
	return time.Now().UTC().Add(r.schedule[idx])
}
