package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/beaconhq/beacon"

// Tracer provides OpenTelemetry tracing for dispatch attempts.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a pipeline tracer.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// StartDispatchSpan starts a span covering one forwarding job attempt.
func (t *Tracer) StartDispatchSpan(ctx context.Context, jobID, eventID string, attempt int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "beacon.dispatch",
		trace.WithAttributes(
			attribute.String("beacon.job_id", jobID),
			attribute.String("beacon.event_id", eventID),
			attribute.Int("beacon.attempt", attempt),
		),
	)
}

// EndDispatchSpan ends a dispatch span with per-attempt outcome attributes.
func (t *Tracer) EndDispatchSpan(span trace.Span, delivered, failed int, err string) {
	span.SetAttributes(
		attribute.Int("beacon.destinations_delivered", delivered),
		attribute.Int("beacon.destinations_failed", failed),
	)
	if err != "" {
		span.SetAttributes(attribute.String("beacon.error", err))
	}
	span.End()
}
