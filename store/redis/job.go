package redis

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/beaconhq/beacon"
	"github.com/beaconhq/beacon/destination"
	"github.com/beaconhq/beacon/forward"
	"github.com/beaconhq/beacon/id"
	"github.com/beaconhq/beacon/internal/entity"
)

// jobModel is the JSON representation stored in Redis.
type jobModel struct {
	ID             string     `json:"id"`
	EventID        string     `json:"event_id"`
	State          string     `json:"state"`
	Intended       []string   `json:"intended"`
	Pending        []string   `json:"pending,omitempty"`
	AttemptCount   int        `json:"attempt_count"`
	MaxAttempts    int        `json:"max_attempts"`
	NextAttemptAt  time.Time  `json:"next_attempt_at"`
	LastError      string     `json:"last_error,omitempty"`
	LastStatusCode int        `json:"last_status_code,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
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
	if m.Pending != nil {
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

// claimLease is how long a claimed job stays invisible to other workers.
// A worker that crashes mid-attempt loses its claim when the lease expires
// and the job becomes due again.
const claimLease = 2 * time.Minute

// dequeueScript atomically claims due members of the queued index by
// rescoring them past the claim lease. UpdateJob later rescores or removes
// the member; a claim that is never released becomes due again when the
// lease lapses.
var dequeueScript = goredis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, id in ipairs(ids) do
    redis.call('ZADD', KEYS[1], ARGV[3], id)
end
return ids
`)

// EnqueueJob persists a new job, visible immediately.
func (s *Store) EnqueueJob(ctx context.Context, j *forward.Job) error {
	m := toJobModel(j)
	if err := s.setEntity(ctx, entityKey(prefixJob, m.ID), m); err != nil {
		return fmt.Errorf("beacon/redis: enqueue job: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, zJobAll, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
	pipe.ZAdd(ctx, zJobQueued, goredis.Z{Score: scoreFromTime(m.NextAttemptAt), Member: m.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("beacon/redis: enqueue job index: %w", err)
	}
	return nil
}

// DequeueJobs claims up to limit queued jobs whose NextAttemptAt has passed.
func (s *Store) DequeueJobs(ctx context.Context, limit int) ([]*forward.Job, error) {
	if limit <= 0 {
		return nil, nil
	}

	claimed := now()
	raw, err := dequeueScript.Run(ctx, s.rdb, []string{zJobQueued},
		scoreFromTime(claimed), limit, scoreFromTime(claimed.Add(claimLease))).StringSlice()
	if err != nil && !isRedisNil(err) {
		return nil, fmt.Errorf("beacon/redis: dequeue jobs: %w", err)
	}

	jobs := make([]*forward.Job, 0, len(raw))
	for _, jobID := range raw {
		var m jobModel
		if err := s.getEntity(ctx, entityKey(prefixJob, jobID), &m); err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		j, err := fromJobModel(&m)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// UpdateJob persists job state after an attempt and releases the claim. A
// job still queued goes back on the queued index scored by NextAttemptAt.
func (s *Store) UpdateJob(ctx context.Context, j *forward.Job) error {
	j.UpdatedAt = now()
	m := toJobModel(j)
	if err := s.setEntity(ctx, entityKey(prefixJob, m.ID), m); err != nil {
		return fmt.Errorf("beacon/redis: update job: %w", err)
	}

	if j.State == forward.StateQueued {
		if err := s.rdb.ZAdd(ctx, zJobQueued, goredis.Z{Score: scoreFromTime(m.NextAttemptAt), Member: m.ID}).Err(); err != nil {
			return fmt.Errorf("beacon/redis: update job index: %w", err)
		}
	} else {
		if err := s.rdb.ZRem(ctx, zJobQueued, m.ID).Err(); err != nil {
			return fmt.Errorf("beacon/redis: update job index: %w", err)
		}
	}
	return nil
}

// GetJob returns a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.ID) (*forward.Job, error) {
	var m jobModel
	if err := s.getEntity(ctx, entityKey(prefixJob, jobID.String()), &m); err != nil {
		if isNotFound(err) {
			return nil, beacon.ErrJobNotFound
		}
		return nil, fmt.Errorf("beacon/redis: get job: %w", err)
	}
	return fromJobModel(&m)
}

// ListJobs returns jobs matching the filter, newest first.
func (s *Store) ListJobs(ctx context.Context, opts forward.ListOpts) ([]*forward.Job, error) {
	ids, err := s.zRangeByScoreIDs(ctx, zJobAll, math.Inf(-1), math.Inf(1))
	if err != nil {
		return nil, fmt.Errorf("beacon/redis: list jobs: %w", err)
	}

	result := make([]*forward.Job, 0, len(ids))
	for _, jobID := range ids {
		var m jobModel
		if err := s.getEntity(ctx, entityKey(prefixJob, jobID), &m); err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		if opts.State != nil && forward.State(m.State) != *opts.State {
			continue
		}
		j, err := fromJobModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, j)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// PurgeCompletedJobs removes completed jobs, returning the count. Failed
// jobs are retained.
func (s *Store) PurgeCompletedJobs(ctx context.Context) (int, error) {
	ids, err := s.zRangeByScoreIDs(ctx, zJobAll, math.Inf(-1), math.Inf(1))
	if err != nil {
		return 0, fmt.Errorf("beacon/redis: purge jobs: %w", err)
	}

	purged := 0
	for _, jobID := range ids {
		var m jobModel
		if err := s.getEntity(ctx, entityKey(prefixJob, jobID), &m); err != nil {
			if isNotFound(err) {
				continue
			}
			return purged, err
		}
		if forward.State(m.State) != forward.StateCompleted {
			continue
		}

		pipe := s.rdb.Pipeline()
		pipe.Del(ctx, entityKey(prefixJob, jobID))
		pipe.ZRem(ctx, zJobAll, jobID)
		pipe.ZRem(ctx, zJobQueued, jobID)
		if _, err := pipe.Exec(ctx); err != nil {
			return purged, fmt.Errorf("beacon/redis: purge job %s: %w", jobID, err)
		}
		purged++
	}
	return purged, nil
}
