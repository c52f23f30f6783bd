// Package memory provides an in-memory Store implementation for unit
// testing and local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/beaconhq/beacon"
	"github.com/beaconhq/beacon/destination"
	"github.com/beaconhq/beacon/dlq"
	"github.com/beaconhq/beacon/event"
	"github.com/beaconhq/beacon/forward"
	"github.com/beaconhq/beacon/id"
	"github.com/beaconhq/beacon/internal/entity"
	beaconstore "github.com/beaconhq/beacon/store"
)

// compile-time interface check.
var _ beaconstore.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	events        map[string]*event.Event             // keyed by ID string
	eventsByExtID map[string]*event.Event             // keyed by external event ID
	conversions   map[string]*event.Conversion        // keyed by ID string
	destinations  map[string]*destination.Destination // keyed by ID string
	jobs          map[string]*forward.Job             // keyed by ID string
	locked        map[string]bool                     // simulates SKIP LOCKED
	dlqEntries    map[string]*dlq.Entry               // keyed by ID string

	closed bool
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		events:        make(map[string]*event.Event),
		eventsByExtID: make(map[string]*event.Event),
		conversions:   make(map[string]*event.Conversion),
		destinations:  make(map[string]*destination.Destination),
		jobs:          make(map[string]*forward.Job),
		locked:        make(map[string]bool),
		dlqEntries:    make(map[string]*dlq.Entry),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the in-memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping is a no-op for the in-memory store.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return beacon.ErrStoreClosed
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// event.Store
// ──────────────────────────────────────────────────

// InsertIfAbsent persists an event keyed by its external event ID. The map
// write under the store mutex is the serialization point, mirroring a
// unique-constraint insert.
func (s *Store) InsertIfAbsent(_ context.Context, evt *event.Event) (*event.Event, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if evt.ExternalEventID != "" {
		if existing, ok := s.eventsByExtID[evt.ExternalEventID]; ok {
			return existing, false, nil
		}
		s.eventsByExtID[evt.ExternalEventID] = evt
	}

	s.events[evt.ID.String()] = evt
	return evt, true, nil
}

// GetEvent returns an event by ID.
func (s *Store) GetEvent(_ context.Context, evtID id.ID) (*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evt, ok := s.events[evtID.String()]
	if !ok {
		return nil, beacon.ErrEventNotFound
	}
	return evt, nil
}

// ListEvents returns events, optionally filtered.
func (s *Store) ListEvents(_ context.Context, opts event.ListOpts) ([]*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*event.Event, 0, len(s.events))
	for _, evt := range s.events {
		if opts.Name != "" && evt.Name != opts.Name {
			continue
		}
		if opts.From != nil && evt.CreatedAt.Before(*opts.From) {
			continue
		}
		if opts.To != nil && evt.CreatedAt.After(*opts.To) {
			continue
		}
		result = append(result, evt)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// CreateConversion persists a conversion record.
func (s *Store) CreateConversion(_ context.Context, conv *event.Conversion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversions[conv.ID.String()] = conv
	return nil
}

// ListConversions returns conversions, newest first.
func (s *Store) ListConversions(_ context.Context, opts event.ListOpts) ([]*event.Conversion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*event.Conversion, 0, len(s.conversions))
	for _, conv := range s.conversions {
		if opts.From != nil && conv.CreatedAt.Before(*opts.From) {
			continue
		}
		if opts.To != nil && conv.CreatedAt.After(*opts.To) {
			continue
		}
		result = append(result, conv)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// ──────────────────────────────────────────────────
// destination.Store
// ──────────────────────────────────────────────────

// UpsertDestination creates or updates a destination keyed by (Type, Name).
func (s *Store) UpsertDestination(_ context.Context, dest *destination.Destination) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.destinations {
		if existing.Type == dest.Type && existing.Name == dest.Name {
			dest.ID = existing.ID
			dest.CreatedAt = existing.CreatedAt
			dest.UpdatedAt = time.Now().UTC()
			s.destinations[existing.ID.String()] = dest
			return nil
		}
	}

	s.destinations[dest.ID.String()] = dest
	return nil
}

// GetDestination returns a destination by ID.
func (s *Store) GetDestination(_ context.Context, destID id.ID) (*destination.Destination, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.destinations[destID.String()]
	if !ok {
		return nil, beacon.ErrDestinationNotFound
	}
	return d, nil
}

// DeleteDestination removes a destination.
func (s *Store) DeleteDestination(_ context.Context, destID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.destinations[destID.String()]; !ok {
		return beacon.ErrDestinationNotFound
	}
	delete(s.destinations, destID.String())
	return nil
}

// ListDestinations returns all destinations, most recently updated first.
func (s *Store) ListDestinations(_ context.Context) ([]*destination.Destination, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*destination.Destination, 0, len(s.destinations))
	for _, d := range s.destinations {
		result = append(result, d)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return result, nil
}

// ListEnabledByType returns the enabled destinations of a platform type.
func (s *Store) ListEnabledByType(_ context.Context, t destination.Type) ([]*destination.Destination, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*destination.Destination
	for _, d := range s.destinations {
		if d.Type == t && d.Enabled {
			result = append(result, d)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// ──────────────────────────────────────────────────
// forward.Store
// ──────────────────────────────────────────────────

// EnqueueJob creates a queued forwarding job.
func (s *Store) EnqueueJob(_ context.Context, j *forward.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[j.ID.String()] = j
	return nil
}

// copyJob returns a shallow copy of the job.
func copyJob(j *forward.Job) *forward.Job {
	cp := *j
	return &cp
}

// DequeueJobs claims queued jobs ready for attempt (concurrent-safe).
// Returns copies so callers can mutate without holding a lock.
func (s *Store) DequeueJobs(_ context.Context, limit int) ([]*forward.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	candidates := make([]*forward.Job, 0, len(s.jobs))

	for _, j := range s.jobs {
		if j.State != forward.StateQueued {
			continue
		}
		if j.NextAttemptAt.After(now) {
			continue
		}
		if s.locked[j.ID.String()] {
			continue
		}
		candidates = append(candidates, j)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].NextAttemptAt.Before(candidates[j].NextAttemptAt)
	})

	if limit > 0 && limit < len(candidates) {
		candidates = candidates[:limit]
	}

	result := make([]*forward.Job, 0, len(candidates))
	for _, j := range candidates {
		s.locked[j.ID.String()] = true
		result = append(result, copyJob(j))
	}

	return result, nil
}

// UpdateJob modifies a job and releases its claim.
func (s *Store) UpdateJob(_ context.Context, j *forward.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[j.ID.String()]; !ok {
		return beacon.ErrJobNotFound
	}
	j.UpdatedAt = time.Now().UTC()
	s.jobs[j.ID.String()] = j
	delete(s.locked, j.ID.String())
	return nil
}

// GetJob returns a copy of the job by ID.
func (s *Store) GetJob(_ context.Context, jobID id.ID) (*forward.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[jobID.String()]
	if !ok {
		return nil, beacon.ErrJobNotFound
	}
	return copyJob(j), nil
}

// ListJobs returns jobs matching the filter, newest first.
func (s *Store) ListJobs(_ context.Context, opts forward.ListOpts) ([]*forward.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*forward.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if opts.State != nil && j.State != *opts.State {
			continue
		}
		result = append(result, copyJob(j))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// PurgeCompletedJobs removes completed jobs; failed jobs are retained.
func (s *Store) PurgeCompletedJobs(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for key, j := range s.jobs {
		if j.State == forward.StateCompleted {
			delete(s.jobs, key)
			count++
		}
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// dlq.Store
// ──────────────────────────────────────────────────

// Push records a permanently failed destination delivery.
func (s *Store) Push(_ context.Context, entry *dlq.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dlqEntries[entry.ID.String()] = entry
	return nil
}

// ListDLQ returns DLQ entries, optionally filtered.
func (s *Store) ListDLQ(_ context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*dlq.Entry, 0, len(s.dlqEntries))
	for _, e := range s.dlqEntries {
		if opts.DestinationID != nil && e.DestinationID.String() != opts.DestinationID.String() {
			continue
		}
		if opts.DestinationType != nil && e.DestinationType != *opts.DestinationType {
			continue
		}
		if opts.From != nil && e.FailedAt.Before(*opts.From) {
			continue
		}
		if opts.To != nil && e.FailedAt.After(*opts.To) {
			continue
		}
		result = append(result, e)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].FailedAt.After(result[j].FailedAt)
	})

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// GetDLQ returns a DLQ entry by ID.
func (s *Store) GetDLQ(_ context.Context, dlqID id.ID) (*dlq.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.dlqEntries[dlqID.String()]
	if !ok {
		return nil, beacon.ErrDLQNotFound
	}
	return e, nil
}

// Replay re-enqueues a forwarding job narrowed to the entry's destination.
func (s *Store) Replay(_ context.Context, dlqID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.dlqEntries[dlqID.String()]
	if !ok {
		return beacon.ErrDLQNotFound
	}

	now := time.Now().UTC()
	e.ReplayedAt = &now
	s.enqueueReplayLocked(e, now)
	return nil
}

// ReplayBulk replays all unreplayed DLQ entries in a time window.
func (s *Store) ReplayBulk(_ context.Context, from, to time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	var count int64

	for _, e := range s.dlqEntries {
		if e.FailedAt.Before(from) || e.FailedAt.After(to) {
			continue
		}
		if e.ReplayedAt != nil {
			continue
		}

		e.ReplayedAt = &now
		s.enqueueReplayLocked(e, now)
		count++
	}
	return count, nil
}

// enqueueReplayLocked creates a fresh job for one DLQ entry. Pending is
// pre-narrowed to the failed destination so the replay does not re-send to
// destinations that already accepted the event. Caller holds s.mu.
func (s *Store) enqueueReplayLocked(e *dlq.Entry, now time.Time) {
	j := &forward.Job{
		Entity:        entity.New(),
		ID:            id.NewJobID(),
		EventID:       e.EventID,
		State:         forward.StateQueued,
		Intended:      []destination.Type{e.DestinationType},
		Pending:       []id.ID{e.DestinationID},
		MaxAttempts:   forward.DefaultMaxAttempts,
		NextAttemptAt: now,
	}
	s.jobs[j.ID.String()] = j
}

// Purge deletes DLQ entries that failed before a threshold.
func (s *Store) Purge(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for key, e := range s.dlqEntries {
		if e.FailedAt.Before(before) {
			delete(s.dlqEntries, key)
			count++
		}
	}
	return count, nil
}

// CountDLQ returns the total number of DLQ entries.
func (s *Store) CountDLQ(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.dlqEntries)), nil
}

// applyPagination slices result sets by offset and limit.
func applyPagination[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
