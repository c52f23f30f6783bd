package redis

import (
	"context"
	"fmt"
	"math"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/beaconhq/beacon"
	"github.com/beaconhq/beacon/destination"
	"github.com/beaconhq/beacon/dlq"
	"github.com/beaconhq/beacon/forward"
	"github.com/beaconhq/beacon/id"
	"github.com/beaconhq/beacon/internal/entity"
)

// dlqEntryModel is the JSON representation stored in Redis.
type dlqEntryModel struct {
	ID              string     `json:"id"`
	JobID           string     `json:"job_id"`
	EventID         string     `json:"event_id"`
	DestinationID   string     `json:"destination_id"`
	DestinationType string     `json:"destination_type"`
	EventName       string     `json:"event_name"`
	Error           string     `json:"error"`
	LastStatusCode  int        `json:"last_status_code,omitempty"`
	Response        string     `json:"response,omitempty"`
	AttemptCount    int        `json:"attempt_count"`
	ReplayedAt      *time.Time `json:"replayed_at,omitempty"`
	FailedAt        time.Time  `json:"failed_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
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
		return nil, fmt.Errorf("parse dlq ID %q: %w", m.ID, err)
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

// Push records a permanently failed destination delivery.
func (s *Store) Push(ctx context.Context, e *dlq.Entry) error {
	m := toDLQEntryModel(e)
	if err := s.setEntity(ctx, entityKey(prefixDLQ, m.ID), m); err != nil {
		return fmt.Errorf("beacon/redis: push dlq entry: %w", err)
	}

	score := scoreFromTime(m.FailedAt)
	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, zDLQAll, goredis.Z{Score: score, Member: m.ID})
	pipe.ZAdd(ctx, zDLQDest+m.DestinationID, goredis.Z{Score: score, Member: m.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("beacon/redis: push dlq index: %w", err)
	}
	return nil
}

// ListDLQ returns DLQ entries, optionally filtered, newest first.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	minScore := math.Inf(-1)
	maxScore := math.Inf(1)
	if opts.From != nil {
		minScore = scoreFromTime(*opts.From)
	}
	if opts.To != nil {
		maxScore = scoreFromTime(*opts.To)
	}

	indexKey := zDLQAll
	if opts.DestinationID != nil {
		indexKey = zDLQDest + opts.DestinationID.String()
	}

	ids, err := s.zRangeByScoreIDs(ctx, indexKey, minScore, maxScore)
	if err != nil {
		return nil, fmt.Errorf("beacon/redis: list dlq: %w", err)
	}

	result := make([]*dlq.Entry, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		var m dlqEntryModel
		if err := s.getEntity(ctx, entityKey(prefixDLQ, ids[i]), &m); err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		if opts.DestinationType != nil && destination.Type(m.DestinationType) != *opts.DestinationType {
			continue
		}
		e, err := fromDLQEntryModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// GetDLQ returns a DLQ entry by ID.
func (s *Store) GetDLQ(ctx context.Context, dlqID id.ID) (*dlq.Entry, error) {
	var m dlqEntryModel
	if err := s.getEntity(ctx, entityKey(prefixDLQ, dlqID.String()), &m); err != nil {
		if isNotFound(err) {
			return nil, beacon.ErrDLQNotFound
		}
		return nil, fmt.Errorf("beacon/redis: get dlq entry: %w", err)
	}
	return fromDLQEntryModel(&m)
}

// Replay re-enqueues a forwarding job for the entry's event narrowed to its
// destination, and stamps ReplayedAt. Entries are retained after replay.
func (s *Store) Replay(ctx context.Context, dlqID id.ID) error {
	e, err := s.GetDLQ(ctx, dlqID)
	if err != nil {
		return err
	}
	return s.replayEntry(ctx, e)
}

// ReplayBulk replays all unreplayed DLQ entries in a time window.
func (s *Store) ReplayBulk(ctx context.Context, from, to time.Time) (int64, error) {
	entries, err := s.ListDLQ(ctx, dlq.ListOpts{From: &from, To: &to})
	if err != nil {
		return 0, err
	}

	var replayed int64
	for _, e := range entries {
		if e.ReplayedAt != nil {
			continue
		}
		if err := s.replayEntry(ctx, e); err != nil {
			return replayed, err
		}
		replayed++
	}
	return replayed, nil
}

func (s *Store) replayEntry(ctx context.Context, e *dlq.Entry) error {
	j := &forward.Job{
		Entity:        entity.New(),
		ID:            id.NewJobID(),
		EventID:       e.EventID,
		State:         forward.StateQueued,
		Intended:      []destination.Type{e.DestinationType},
		Pending:       []id.ID{e.DestinationID},
		MaxAttempts:   forward.DefaultMaxAttempts,
		NextAttemptAt: now(),
	}
	if err := s.EnqueueJob(ctx, j); err != nil {
		return fmt.Errorf("beacon/redis: replay dlq entry: %w", err)
	}

	ts := now()
	e.ReplayedAt = &ts
	e.UpdatedAt = ts
	if err := s.setEntity(ctx, entityKey(prefixDLQ, e.ID.String()), toDLQEntryModel(e)); err != nil {
		return fmt.Errorf("beacon/redis: stamp dlq replay: %w", err)
	}
	return nil
}

// Purge deletes DLQ entries that failed before a threshold.
func (s *Store) Purge(ctx context.Context, before time.Time) (int64, error) {
	ids, err := s.zRangeByScoreIDs(ctx, zDLQAll, math.Inf(-1), scoreFromTime(before))
	if err != nil {
		return 0, fmt.Errorf("beacon/redis: purge dlq: %w", err)
	}

	var purged int64
	for _, dlqID := range ids {
		var m dlqEntryModel
		if err := s.getEntity(ctx, entityKey(prefixDLQ, dlqID), &m); err != nil {
			if isNotFound(err) {
				continue
			}
			return purged, err
		}

		pipe := s.rdb.Pipeline()
		pipe.Del(ctx, entityKey(prefixDLQ, dlqID))
		pipe.ZRem(ctx, zDLQAll, dlqID)
		pipe.ZRem(ctx, zDLQDest+m.DestinationID, dlqID)
		if _, err := pipe.Exec(ctx); err != nil {
			return purged, fmt.Errorf("beacon/redis: purge dlq entry %s: %w", dlqID, err)
		}
		purged++
	}
	return purged, nil
}

// CountDLQ returns the total number of DLQ entries.
func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	n, err := s.rdb.ZCard(ctx, zDLQAll).Result()
	if err != nil {
		return 0, fmt.Errorf("beacon/redis: count dlq: %w", err)
	}
	return n, nil
}
