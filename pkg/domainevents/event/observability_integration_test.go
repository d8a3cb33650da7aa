package event_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/danielemariani/domain-events/pkg/domainevents/event"
	"github.com/danielemariani/domain-events/pkg/domainevents/observability"
)

func TestBus_Tracing(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(original)
		_ = tp.Shutdown(context.Background())
	})

	bus := event.NewBus(event.BusConfig{
		SchedulerKind: event.SchedulerQueue,
		Spans:         observability.NewSpanManager(),
	})
	defer bus.Close()

	require.NoError(t, bus.RegisterFunc("NAME", func(context.Context, *event.Event) error { return nil }))
	require.NoError(t, bus.RegisterFunc("NAME", func(context.Context, *event.Event) error {
		return errors.New("projection failed")
	}))

	done, err := bus.Dispatch(context.Background(), event.MustNew("NAME", nil))
	require.NoError(t, err)
	done.Wait()

	spans := exporter.GetSpans()
	require.Len(t, spans, 3)

	dispatch := spans[2]
	assert.Equal(t, "domainevents.dispatch", dispatch.Name)
	assert.Equal(t, codes.Error, dispatch.Status.Code, "a failed handler marks the dispatch span")

	for _, handler := range spans[:2] {
		assert.Equal(t, "domainevents.handle", handler.Name)
		assert.Equal(t, dispatch.SpanContext.TraceID(), handler.SpanContext.TraceID())
		assert.Equal(t, dispatch.SpanContext.SpanID(), handler.Parent.SpanID())
	}
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
	assert.Equal(t, codes.Error, spans[1].Status.Code)
}

func TestBus_Logging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	bus := event.NewBus(event.BusConfig{
		SchedulerKind: event.SchedulerQueue,
		Logger:        logger,
	})
	defer bus.Close()

	require.NoError(t, bus.RegisterFunc("NAME", func(context.Context, *event.Event) error {
		panic("nil map write")
	}))

	done, err := bus.Dispatch(context.Background(), event.MustNew("NAME", nil))
	require.NoError(t, err)
	done.Wait()

	var messages []string
	var panicEntry map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		msg, _ := entry["msg"].(string)
		messages = append(messages, msg)
		if msg == "event handler panicked" {
			panicEntry = entry
		}
	}

	assert.Equal(t, []string{
		"handler registered",
		"dispatching event",
		"event handler panicked",
		"dispatch completed",
	}, messages)

	require.NotNil(t, panicEntry)
	assert.Equal(t, "NAME", panicEntry["event_name"])
	assert.Equal(t, done.DispatchID(), panicEntry["dispatch_id"])
	assert.Contains(t, panicEntry["panic"], "nil map write")
}
