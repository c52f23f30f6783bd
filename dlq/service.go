package dlq

import (
	"context"
	"log/slog"
	"time"

	"github.com/beaconhq/beacon/connector"
	"github.com/beaconhq/beacon/destination"
	"github.com/beaconhq/beacon/event"
	"github.com/beaconhq/beacon/forward"
	"github.com/beaconhq/beacon/id"
	"github.com/beaconhq/beacon/internal/entity"
)

// Service manages the dead letter queue.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a new DLQ service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		logger: logger,
	}
}

// PushFailed records one destination's exhausted delivery. Implements
// forward.DLQPusher.
func (svc *Service) PushFailed(ctx context.Context, j *forward.Job, d *destination.Destination, evt *event.Event, res connector.Result) error {
	entry := &Entry{
		Entity:          entity.New(),
		ID:              id.NewDLQID(),
		JobID:           j.ID,
		EventID:         j.EventID,
		DestinationID:   d.ID,
		DestinationType: d.Type,
		EventName:       evt.Name,
		Error:           res.Error,
		LastStatusCode:  res.StatusCode,
		Response:        res.Response,
		AttemptCount:    j.AttemptCount,
		FailedAt:        time.Now().UTC(),
	}

	return svc.store.Push(ctx, entry)
}

// List returns DLQ entries matching the given options.
func (svc *Service) List(ctx context.Context, opts ListOpts) ([]*Entry, error) {
	return svc.store.ListDLQ(ctx, opts)
}

// Get returns a DLQ entry by ID.
func (svc *Service) Get(ctx context.Context, dlqID id.ID) (*Entry, error) {
	return svc.store.GetDLQ(ctx, dlqID)
}

// Replay re-enqueues delivery for a single DLQ entry.
func (svc *Service) Replay(ctx context.Context, dlqID id.ID) error {
	return svc.store.Replay(ctx, dlqID)
}

// ReplayBulk re-enqueues delivery for all DLQ entries in a time range.
func (svc *Service) ReplayBulk(ctx context.Context, from, to time.Time) (int64, error) {
	return svc.store.ReplayBulk(ctx, from, to)
}

// Purge removes old DLQ entries.
func (svc *Service) Purge(ctx context.Context, before time.Time) (int64, error) {
	return svc.store.Purge(ctx, before)
}

// Count returns the total number of DLQ entries.
func (svc *Service) Count(ctx context.Context) (int64, error) {
	return svc.store.CountDLQ(ctx)
}
