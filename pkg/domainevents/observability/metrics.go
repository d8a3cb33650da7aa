package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records event bus metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordDispatch records one Dispatch call and its fan-out width.
	RecordDispatch(ctx context.Context, eventName string, handlers int)

	// RecordHandler records one handler invocation with its duration and error status.
	RecordHandler(ctx context.Context, eventName, handler string, duration time.Duration, err error)

	// RecordFailureStored records a failure record written to a failure store.
	RecordFailureStored(ctx context.Context, eventName string, err error)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	dispatches     metric.Int64Counter
	fanOut         metric.Int64Histogram
	invocations    metric.Int64Counter
	failures       metric.Int64Counter
	handlerLatency metric.Float64Histogram
	storedFailures metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics lazily initializes the shared OTel metrics instance.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("domainevents")

	dispatches, err := meter.Int64Counter("domainevents.dispatches",
		metric.WithDescription("Number of dispatched events"),
	)
	if err != nil {
		return nil, err
	}

	fanOut, err := meter.Int64Histogram("domainevents.dispatch.handlers",
		metric.WithDescription("Handlers scheduled per dispatch"),
	)
	if err != nil {
		return nil, err
	}

	invocations, err := meter.Int64Counter("domainevents.handler.invocations",
		metric.WithDescription("Number of handler invocations"),
	)
	if err != nil {
		return nil, err
	}

	failures, err := meter.Int64Counter("domainevents.handler.failures",
		metric.WithDescription("Number of handler invocations that failed or panicked"),
	)
	if err != nil {
		return nil, err
	}

	handlerLatency, err := meter.Float64Histogram("domainevents.handler.latency_ms",
		metric.WithDescription("Handler latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	storedFailures, err := meter.Int64Counter("domainevents.failures.stored",
		metric.WithDescription("Failure records written to the failure store"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		dispatches:     dispatches,
		fanOut:         fanOut,
		invocations:    invocations,
		failures:       failures,
		handlerLatency: handlerLatency,
		storedFailures: storedFailures,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordDispatch records a dispatch.
func (m *otelMetrics) RecordDispatch(ctx context.Context, eventName string, handlers int) {
	attrs := metric.WithAttributes(attribute.String("event.name", eventName))
	m.dispatches.Add(ctx, 1, attrs)
	m.fanOut.Record(ctx, int64(handlers), attrs)
}

// RecordHandler records a handler invocation.
func (m *otelMetrics) RecordHandler(ctx context.Context, eventName, handler string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("event.name", eventName),
		attribute.String("handler", handler),
	)

	m.invocations.Add(ctx, 1, attrs)
	m.handlerLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)

	if err != nil {
		m.failures.Add(ctx, 1, attrs)
	}
}

// RecordFailureStored records a failure store write.
func (m *otelMetrics) RecordFailureStored(ctx context.Context, eventName string, err error) {
	m.storedFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event.name", eventName),
		attribute.Bool("success", err == nil),
	))
}
