package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation name for supervision spans.
const TracerName = "notewatch"

// Span attribute keys.
const (
	AttrEventID   = "event_id"
	AttrStartAt   = "start_at"
	AttrSessionID = "session_id"
	AttrAttempt   = "attempt"
	AttrOutcome   = "outcome"
)

// Span names.
const (
	SpanSupervision = "notewatch.supervision"
	SpanAttempt     = "notewatch.attempt"
	SpanTick        = "notewatch.tick"
)

// Tracer wraps the otel tracer for supervision operations.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a notewatch tracer.
func NewTracer() *Tracer {
	return &Tracer{tracer: otel.Tracer(TracerName)}
}

// StartSupervisionSpan starts the root span for one supervision.
func (t *Tracer) StartSupervisionSpan(ctx context.Context, eventID, startAt string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanSupervision,
		trace.WithAttributes(
			attribute.String(AttrEventID, eventID),
			attribute.String(AttrStartAt, startAt),
		),
	)
}

// StartAttemptSpan starts a span for one capture attempt.
func (t *Tracer) StartAttemptSpan(ctx context.Context, attempt int, sessionID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanAttempt,
		trace.WithAttributes(
			attribute.Int(AttrAttempt, attempt),
			attribute.String(AttrSessionID, sessionID),
		),
	)
}

// StartTickSpan starts a span for one poll tick.
func (t *Tracer) StartTickSpan(ctx context.Context) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanTick)
}
