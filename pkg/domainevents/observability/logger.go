// Package observability provides logging, metrics, and tracing for the
// event bus.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
// Every logging helper accepts a nil logger and does nothing with it.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds dispatch context to a logger.
//
// Example:
//
//	enriched := EnrichLogger(logger, "ORDER_PLACED", dispatchID)
//	enriched.Info("handling") // includes event_name, dispatch_id
func EnrichLogger(logger *slog.Logger, eventName, dispatchID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("event_name", eventName),
		slog.String("dispatch_id", dispatchID),
	)
}

// LogRegister logs a handler registration. An empty event name means the
// handler receives every event.
func LogRegister(logger *slog.Logger, eventName, handler string) {
	if logger == nil {
		return
	}
	if eventName == "" {
		eventName = "*"
	}
	logger.Debug("handler registered",
		slog.String("event_name", eventName),
		slog.String("handler", handler),
	)
}

// LogDispatch logs the start of a dispatch.
func LogDispatch(logger *slog.Logger, eventName, dispatchID string, handlers int) {
	if logger == nil {
		return
	}
	logger.Debug("dispatching event",
		slog.String("event_name", eventName),
		slog.String("dispatch_id", dispatchID),
		slog.Int("handlers", handlers),
	)
}

// LogDispatchComplete logs that every handler of a dispatch has run.
func LogDispatchComplete(logger *slog.Logger, eventName, dispatchID string, durationMs float64, handlers, failures int) {
	if logger == nil {
		return
	}
	logger.Debug("dispatch completed",
		slog.String("event_name", eventName),
		slog.String("dispatch_id", dispatchID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("handlers", handlers),
		slog.Int("failures", failures),
	)
}

// LogHandlerError logs a handler that returned an error.
func LogHandlerError(logger *slog.Logger, eventName, dispatchID, handler string, err error) {
	if logger == nil {
		return
	}
	logger.Error("event handler failed",
		slog.String("event_name", eventName),
		slog.String("dispatch_id", dispatchID),
		slog.String("handler", handler),
		slog.String("error", err.Error()),
	)
}

// LogHandlerPanic logs a handler that panicked.
func LogHandlerPanic(logger *slog.Logger, eventName, dispatchID, handler string, recovered any) {
	if logger == nil {
		return
	}
	logger.Error("event handler panicked",
		slog.String("event_name", eventName),
		slog.String("dispatch_id", dispatchID),
		slog.String("handler", handler),
		slog.Any("panic", recovered),
	)
}

// LogFailureStoreError logs a failure record that could not be saved (non-fatal).
func LogFailureStoreError(logger *slog.Logger, eventName, handler string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("failure record not saved",
		slog.String("event_name", eventName),
		slog.String("handler", handler),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
