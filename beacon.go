package beacon

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/beaconhq/beacon/connector"
	"github.com/beaconhq/beacon/destination"
	"github.com/beaconhq/beacon/dlq"
	"github.com/beaconhq/beacon/event"
	"github.com/beaconhq/beacon/forward"
	"github.com/beaconhq/beacon/id"
	"github.com/beaconhq/beacon/internal/entity"
	"github.com/beaconhq/beacon/observability"
	"github.com/beaconhq/beacon/routing"
	"github.com/beaconhq/beacon/schema"
	"github.com/beaconhq/beacon/store"
	"github.com/beaconhq/beacon/vault"
)

// Pipeline is the root event ingestion and forwarding engine.
type Pipeline struct {
	config    Config
	store     store.Store
	vault     *vault.Vault
	validator *schema.Validator
	registry  *connector.Registry
	destSvc   *destination.Service
	dlqSvc    *dlq.Service
	worker    *forward.Worker
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	logger    *slog.Logger
}

// New creates a new Pipeline with the given options.
func New(opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	if p.store == nil {
		return nil, ErrNoStore
	}
	if len(p.config.VaultKey) < vault.MinKeyLength {
		return nil, ErrNoVaultKey
	}
	p.wireServices()
	return p, nil
}

// wireServices initializes the internal services after options have been applied.
func (p *Pipeline) wireServices() {
	p.vault = vault.New(p.config.VaultKey)

	p.validator = schema.NewValidator()

	p.registry = connector.NewRegistry(&http.Client{
		Timeout: p.config.RequestTimeout,
	})

	p.destSvc = destination.NewService(p.store, p.vault, p.logger)

	p.dlqSvc = dlq.NewService(p.store, p.logger)

	p.worker = forward.NewWorker(p.store, p.registry, p.vault, p.dlqSvc, forward.Config{
		Concurrency:   p.config.Concurrency,
		PollInterval:  p.config.PollInterval,
		BatchSize:     p.config.BatchSize,
		RetrySchedule: p.config.RetrySchedule,
		Metrics:       p.metrics,
		Tracer:        p.tracer,
	}, p.logger)
}

// Start begins the dispatch worker pool.
func (p *Pipeline) Start(ctx context.Context) {
	p.worker.Start(ctx)
}

// Stop gracefully shuts down the dispatch worker pool.
func (p *Pipeline) Stop(ctx context.Context) {
	p.worker.Stop(ctx)
}

// IngestResult reports the outcome of an event submission.
type IngestResult struct {
	// Event is the stored record: the new one, or the pre-existing one
	// when the submission was a duplicate.
	Event *event.Event

	// Deduped is true when an event with the same external event ID was
	// already accepted. Duplicates enqueue nothing.
	Deduped bool

	// Intended is the set of destination types routing selected.
	Intended []destination.Type
}

// Ingest accepts one tracked event and queues forwarding work for it.
//
// The critical path:
//  1. Reject events without a name.
//  2. Normalize consent so absent flags read as denied.
//  3. Persist via InsertIfAbsent; a duplicate external event ID returns
//     the original record and enqueues nothing.
//  4. Route the event name to destination types.
//  5. Enqueue one forwarding job carrying the intended set.
func (p *Pipeline) Ingest(ctx context.Context, evt *event.Event) (*IngestResult, error) {
	if evt.Name == "" {
		return nil, ErrEventNameRequired
	}

	evt.Consent = evt.Consent.Normalize()
	if evt.Source == "" {
		evt.Source = "web"
	}
	if evt.ID.IsNil() {
		evt.Entity = entity.New()
		evt.ID = id.NewEventID()
	}

	stored, wasNew, err := p.store.InsertIfAbsent(ctx, evt)
	if err != nil {
		return nil, err
	}
	if !wasNew {
		if p.metrics != nil {
			p.metrics.EventsDedupedTotal.Inc()
		}
		p.logger.DebugContext(ctx, "duplicate event suppressed",
			"event_id", stored.ID,
			"external_event_id", stored.ExternalEventID,
		)
		return &IngestResult{Event: stored, Deduped: true}, nil
	}

	intended := routing.RoutesFor(stored.Name)
	if p.metrics != nil {
		p.metrics.EventsAcceptedTotal.Inc()
	}

	if len(intended) == 0 {
		p.logger.DebugContext(ctx, "event accepted without routes",
			"event_id", stored.ID,
			"name", stored.Name,
		)
		return &IngestResult{Event: stored}, nil
	}

	j := &forward.Job{
		Entity:        entity.New(),
		ID:            id.NewJobID(),
		EventID:       stored.ID,
		State:         forward.StateQueued,
		Intended:      intended,
		MaxAttempts:   p.config.MaxRetries,
		NextAttemptAt: stored.CreatedAt,
	}
	if err := p.store.EnqueueJob(ctx, j); err != nil {
		return nil, err
	}
	if p.metrics != nil {
		p.metrics.PendingJobs.Inc()
	}

	p.logger.DebugContext(ctx, "event accepted",
		"event_id", stored.ID,
		"name", stored.Name,
		"intended", len(intended),
	)

	return &IngestResult{Event: stored, Intended: intended}, nil
}

// RecordConversion persists a conversion outcome and ingests its synthetic
// server-originated event, which carries full consent.
func (p *Pipeline) RecordConversion(ctx context.Context, conv *event.Conversion) (*IngestResult, error) {
	if conv.Status == "" {
		return nil, ErrConversionStatusRequired
	}

	if conv.ID.IsNil() {
		conv.Entity = entity.New()
		conv.ID = id.NewConversionID()
	}
	if err := p.store.CreateConversion(ctx, conv); err != nil {
		return nil, err
	}

	return p.Ingest(ctx, conv.SyntheticEvent())
}

// ValidateTrack checks an inbound track request body against the event schema.
func (p *Pipeline) ValidateTrack(data any) error {
	return p.validator.ValidateTrack(data)
}

// ValidateConversion checks an inbound conversion body against its schema.
func (p *Pipeline) ValidateConversion(data any) error {
	return p.validator.ValidateConversion(data)
}

// Destinations returns the destination management service.
func (p *Pipeline) Destinations() *destination.Service {
	return p.destSvc
}

// DLQ returns the dead letter queue service.
func (p *Pipeline) DLQ() *dlq.Service {
	return p.dlqSvc
}

// Store returns the underlying store.
func (p *Pipeline) Store() store.Store {
	return p.store
}

// Connectors returns the platform connector registry.
func (p *Pipeline) Connectors() *connector.Registry {
	return p.registry
}

// Metrics returns the metric instruments, or nil when none were configured.
func (p *Pipeline) Metrics() *observability.Metrics {
	return p.metrics
}
