package forward

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/beaconhq/beacon/connector"
	"github.com/beaconhq/beacon/destination"
	"github.com/beaconhq/beacon/event"
	"github.com/beaconhq/beacon/id"
	"github.com/beaconhq/beacon/observability"
	"github.com/beaconhq/beacon/vault"
)

// WorkerStore is the interface the worker needs for dispatch operations.
type WorkerStore interface {
	DequeueJobs(ctx context.Context, limit int) ([]*Job, error)
	UpdateJob(ctx context.Context, j *Job) error
	GetEvent(ctx context.Context, evtID id.ID) (*event.Event, error)
	GetDestination(ctx context.Context, destID id.ID) (*destination.Destination, error)
	ListEnabledByType(ctx context.Context, t destination.Type) ([]*destination.Destination, error)
}

// DLQPusher records destinations that exhausted their attempt budget.
type DLQPusher interface {
	PushFailed(ctx context.Context, j *Job, d *destination.Destination, evt *event.Event, res connector.Result) error
}

// Config holds worker pool configuration.
type Config struct {
	Concurrency   int
	PollInterval  time.Duration
	BatchSize     int
	RetrySchedule []time.Duration
	Metrics       *observability.Metrics
	Tracer        *observability.Tracer
}

// Worker is the dispatch pool that dequeues and processes forwarding jobs.
type Worker struct {
	store    WorkerStore
	registry *connector.Registry
	vault    *vault.Vault
	retrier  *Retrier
	dlq      DLQPusher
	config   Config
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker creates a dispatch worker pool.
func NewWorker(store WorkerStore, registry *connector.Registry, v *vault.Vault, dlq DLQPusher, cfg Config, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		store:    store,
		registry: registry,
		vault:    v,
		retrier:  NewRetrier(cfg.RetrySchedule),
		dlq:      dlq,
		config:   cfg,
		logger:   logger,
	}
}

// Start begins the dispatch workers and poll loop.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.pollLoop(ctx)
	}()
}

// Stop cancels the poll loop and waits for in-flight jobs to finish.
func (w *Worker) Stop(_ context.Context) {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

// pollLoop periodically dequeues due jobs and dispatches them to workers.
func (w *Worker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	sem := make(chan struct{}, w.config.Concurrency)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			batch, err := w.store.DequeueJobs(ctx, w.config.BatchSize)
			if err != nil {
				w.logger.ErrorContext(ctx, "dequeue failed", "error", err)
				continue
			}

			for _, j := range batch {
				select {
				case <-ctx.Done():
					return
				case sem <- struct{}{}:
				}

				w.wg.Add(1)
				go func(job *Job) {
					defer w.wg.Done()
					defer func() { <-sem }()
					w.Process(ctx, job)
				}(j)
			}
		}
	}
}

// Process runs one dispatch attempt for a claimed job: resolve targets,
// invoke connectors, evaluate, persist. Exported so replays can dispatch a
// job synchronously.
func (w *Worker) Process(ctx context.Context, j *Job) {
	var span trace.Span
	if w.config.Tracer != nil {
		ctx, span = w.config.Tracer.StartDispatchSpan(ctx, j.ID.String(), j.EventID.String(), j.AttemptCount+1)
	}

	evt, err := w.store.GetEvent(ctx, j.EventID)
	if err != nil {
		w.logger.ErrorContext(ctx, "get event failed",
			"job_id", j.ID, "event_id", j.EventID, "error", err)
		w.releaseAfterError(ctx, j, err)
		if span != nil {
			w.config.Tracer.EndDispatchSpan(span, 0, 0, err.Error())
		}
		return
	}

	targets, err := w.resolveTargets(ctx, j, evt)
	if err != nil {
		w.logger.ErrorContext(ctx, "resolve destinations failed",
			"job_id", j.ID, "error", err)
		w.releaseAfterError(ctx, j, err)
		if span != nil {
			w.config.Tracer.EndDispatchSpan(span, 0, 0, err.Error())
		}
		return
	}

	j.AttemptCount++
	start := time.Now()

	// Per-destination isolation: every target gets its own attempt and its
	// own outcome. One platform failing neither blocks nor retries the
	// others.
	type failed struct {
		dest *destination.Destination
		res  connector.Result
	}
	var failures []failed
	delivered := 0

	for _, d := range targets {
		res := w.dispatchOne(ctx, d, evt)
		if res.OK {
			delivered++
			w.logger.DebugContext(ctx, "destination delivered",
				"job_id", j.ID, "destination", d.Type, "status", res.StatusCode, "latency_ms", res.LatencyMs)
			continue
		}
		failures = append(failures, failed{dest: d, res: res})
		j.LastError = res.Error
		j.LastStatusCode = res.StatusCode
		w.logger.WarnContext(ctx, "destination failed",
			"job_id", j.ID, "destination", d.Type, "status", res.StatusCode, "error", res.Error)
	}

	latencySeconds := time.Since(start).Seconds()

	switch w.retrier.Decide(len(failures), j) {
	case Completed:
		now := time.Now().UTC()
		j.State = StateCompleted
		j.Pending = nil
		j.CompletedAt = &now
		j.LastError = ""
		j.LastStatusCode = 0
		if w.config.Metrics != nil {
			w.config.Metrics.RecordDispatch("completed", latencySeconds)
			w.config.Metrics.PendingJobs.Dec()
		}
		w.logger.DebugContext(ctx, "job completed",
			"job_id", j.ID, "destinations", delivered, "attempt", j.AttemptCount)

	case Retry:
		j.Pending = make([]id.ID, 0, len(failures))
		for _, f := range failures {
			j.Pending = append(j.Pending, f.dest.ID)
		}
		j.NextAttemptAt = w.retrier.ComputeNextAttempt(j.AttemptCount)
		if w.config.Metrics != nil {
			w.config.Metrics.RecordDispatch("retried", latencySeconds)
		}
		w.logger.DebugContext(ctx, "retry scheduled",
			"job_id", j.ID, "attempt", j.AttemptCount, "failed", len(failures), "next_at", j.NextAttemptAt)

	case Exhausted:
		now := time.Now().UTC()
		j.State = StateFailed
		j.Pending = make([]id.ID, 0, len(failures))
		for _, f := range failures {
			j.Pending = append(j.Pending, f.dest.ID)
			if w.dlq == nil {
				continue
			}
			if dlqErr := w.dlq.PushFailed(ctx, j, f.dest, evt, f.res); dlqErr != nil {
				w.logger.ErrorContext(ctx, "push to DLQ failed",
					"job_id", j.ID, "destination", f.dest.Type, "error", dlqErr)
			} else if w.config.Metrics != nil {
				w.config.Metrics.DLQSize.Inc()
			}
		}
		j.CompletedAt = &now
		if w.config.Metrics != nil {
			w.config.Metrics.RecordDispatch("failed", latencySeconds)
			w.config.Metrics.PendingJobs.Dec()
		}
		w.logger.WarnContext(ctx, "job failed permanently",
			"job_id", j.ID, "failed", len(failures), "attempts", j.AttemptCount)
	}

	if span != nil {
		w.config.Tracer.EndDispatchSpan(span, delivered, len(failures), j.LastError)
	}

	if updateErr := w.store.UpdateJob(ctx, j); updateErr != nil {
		w.logger.ErrorContext(ctx, "update job failed",
			"job_id", j.ID, "error", updateErr)
	}
}

// releaseAfterError releases a claimed job after a failure that happened
// before any connector was invoked. The job must always go back through
// UpdateJob: a bare return would leave the claim held and the job invisible
// forever. The failure consumes an attempt so a job whose event is
// permanently gone cannot cycle without bound.
func (w *Worker) releaseAfterError(ctx context.Context, j *Job, cause error) {
	j.AttemptCount++
	j.LastError = cause.Error()
	j.LastStatusCode = 0

	if w.retrier.Decide(1, j) == Retry {
		j.NextAttemptAt = w.retrier.ComputeNextAttempt(j.AttemptCount)
		w.logger.DebugContext(ctx, "retry scheduled",
			"job_id", j.ID, "attempt", j.AttemptCount, "next_at", j.NextAttemptAt)
	} else {
		now := time.Now().UTC()
		j.State = StateFailed
		j.CompletedAt = &now
		if w.config.Metrics != nil {
			w.config.Metrics.RecordDispatch("failed", 0)
			w.config.Metrics.PendingJobs.Dec()
		}
		w.logger.WarnContext(ctx, "job failed permanently",
			"job_id", j.ID, "attempts", j.AttemptCount, "error", j.LastError)
	}

	if err := w.store.UpdateJob(ctx, j); err != nil {
		w.logger.ErrorContext(ctx, "update job failed",
			"job_id", j.ID, "error", err)
	}
}

// resolveTargets returns the concrete destinations for this attempt. The
// first attempt expands the intended types against currently enabled
// destinations and their event filters; retries narrow to the destinations
// that failed last time, skipping any disabled or deleted since.
func (w *Worker) resolveTargets(ctx context.Context, j *Job, evt *event.Event) ([]*destination.Destination, error) {
	if j.Pending != nil {
		out := make([]*destination.Destination, 0, len(j.Pending))
		for _, destID := range j.Pending {
			d, err := w.store.GetDestination(ctx, destID)
			if err != nil {
				w.logger.WarnContext(ctx, "pending destination unavailable, dropping",
					"job_id", j.ID, "destination_id", destID, "error", err)
				continue
			}
			if !d.Enabled {
				continue
			}
			out = append(out, d)
		}
		return out, nil
	}

	seen := make(map[id.ID]bool)
	var out []*destination.Destination
	for _, t := range j.Intended {
		ds, err := w.store.ListEnabledByType(ctx, t)
		if err != nil {
			return nil, err
		}
		for _, d := range ds {
			if seen[d.ID] {
				continue
			}
			seen[d.ID] = true
			if !d.AcceptsEvent(evt.Name) {
				continue
			}
			out = append(out, d)
		}
	}
	return out, nil
}

// dispatchOne delivers the event to a single destination, applying consent
// gating and credential resolution first. All failures fold into the
// connector Result shape.
func (w *Worker) dispatchOne(ctx context.Context, d *destination.Destination, evt *event.Event) connector.Result {
	deliver, gated := gateConsent(evt, d)
	if !deliver {
		// Suppression is a policy outcome, not a delivery failure.
		return connector.Result{OK: true, Response: "suppressed by consent"}
	}

	if d.ConfigEnc == "" {
		return connector.Result{Error: "destination has no credentials configured"}
	}
	cfg, err := w.vault.Open(d.ConfigEnc)
	if err != nil {
		return connector.Result{Error: "open destination config: " + err.Error()}
	}

	conn, ok := w.registry.Get(d.Type)
	if !ok {
		return connector.Result{Error: "no connector registered for " + string(d.Type)}
	}

	return conn.Send(ctx, cfg, gated)
}
