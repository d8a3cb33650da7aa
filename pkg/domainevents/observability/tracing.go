package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartDispatchSpan starts a span covering a dispatch until its last
	// handler has run.
	StartDispatchSpan(ctx context.Context, eventName, dispatchID string, handlers int) (context.Context, trace.Span)

	// StartHandlerSpan starts a span for one handler invocation.
	// It should be a child of the dispatch span.
	StartHandlerSpan(ctx context.Context, eventName, handler string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
// The tracer is looked up per span so provider changes are honored.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses the global OTel tracer provider.
// Configure the provider before dispatching:
//
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

func (m *otelSpanManager) tracer() trace.Tracer {
	return otel.Tracer("domainevents")
}

// StartDispatchSpan starts a dispatch span.
func (m *otelSpanManager) StartDispatchSpan(ctx context.Context, eventName, dispatchID string, handlers int) (context.Context, trace.Span) {
	return m.tracer().Start(ctx, "domainevents.dispatch",
		trace.WithAttributes(
			attribute.String("event.name", eventName),
			attribute.String("dispatch.id", dispatchID),
			attribute.Int("dispatch.handlers", handlers),
		),
		trace.WithSpanKind(trace.SpanKindProducer),
	)
}

// StartHandlerSpan starts a handler span.
func (m *otelSpanManager) StartHandlerSpan(ctx context.Context, eventName, handler string) (context.Context, trace.Span) {
	return m.tracer().Start(ctx, "domainevents.handle",
		trace.WithAttributes(
			attribute.String("event.name", eventName),
			attribute.String("handler", handler),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
