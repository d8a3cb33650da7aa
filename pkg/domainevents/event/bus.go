package event

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/danielemariani/domain-events/pkg/domainevents/failure"
	"github.com/danielemariani/domain-events/pkg/domainevents/observability"
)

// BusConfig configures bus behavior.
type BusConfig struct {
	// Scheduler runs handler invocations. When nil, one is built from
	// SchedulerKind and MaxConcurrency.
	Scheduler Scheduler

	// SchedulerKind selects a built-in scheduler: SchedulerGoroutine or SchedulerQueue.
	// Default: SchedulerGoroutine
	SchedulerKind string

	// MaxConcurrency bounds concurrently running handlers for the goroutine scheduler.
	// Default: 0 (unbounded)
	MaxConcurrency int

	// Logger receives registration, dispatch, and failure logs. Nil disables logging.
	Logger *slog.Logger

	// Metrics records dispatch and handler metrics. Default: no-op.
	Metrics observability.MetricsRecorder

	// Spans traces dispatches and handler invocations. Default: no-op.
	Spans observability.SpanManager

	// Failures collects failed handler invocations (optional).
	Failures failure.Store

	// OnError is called for every failed handler invocation.
	OnError func(evt *Event, handler string, err error)
}

// DefaultBusConfig provides reasonable defaults.
var DefaultBusConfig = BusConfig{
	SchedulerKind: SchedulerGoroutine,
}

// registration is a handler bound to the bus.
type registration struct {
	handler Handler
	name    string
}

// Bus routes events to handlers registered by event name and to
// wildcard handlers that receive every event.
//
// Dispatch never runs a handler on the caller's goroutine. The set of
// handlers is fixed when Dispatch is called and submitted to the scheduler:
// wildcard handlers first, then handlers registered for the event name,
// each in registration order. Only submission order is guaranteed: the
// default goroutine scheduler may run invocations concurrently and in any
// order. Use SchedulerQueue when handlers must run strictly in that order.
type Bus struct {
	config    BusConfig
	scheduler Scheduler
	metrics   observability.MetricsRecorder
	spans     observability.SpanManager

	mu         sync.RWMutex
	byName     map[string][]registration
	wildcards  []registration
	middleware []MiddlewareFunc
	closed     bool
}

// NewBus creates a new event bus.
func NewBus(config BusConfig) *Bus {
	if config.SchedulerKind == "" {
		config.SchedulerKind = DefaultBusConfig.SchedulerKind
	}

	bus := &Bus{
		config:    config,
		scheduler: config.Scheduler,
		metrics:   config.Metrics,
		spans:     config.Spans,
		byName:    make(map[string][]registration),
	}
	if bus.scheduler == nil {
		bus.scheduler = newScheduler(config.SchedulerKind, config.MaxConcurrency)
	}
	if bus.metrics == nil {
		bus.metrics = observability.NoopMetrics{}
	}
	if bus.spans == nil {
		bus.spans = observability.NoopSpanManager{}
	}
	return bus
}

// Register adds handler for events named name.
// Registering the same handler twice makes it run twice per dispatch.
func (b *Bus) Register(handler Handler, name string) error {
	if name == "" {
		return ErrInvalidName
	}
	return b.register(handler, name)
}

// RegisterAll adds handler for every event, regardless of name.
func (b *Bus) RegisterAll(handler Handler) error {
	return b.register(handler, "")
}

// RegisterFunc adds fn for events named name.
func (b *Bus) RegisterFunc(name string, fn func(ctx context.Context, evt *Event) error) error {
	if fn == nil {
		return ErrInvalidHandler
	}
	return b.Register(HandlerFunc(fn), name)
}

// RegisterAllFunc adds fn for every event.
func (b *Bus) RegisterAllFunc(fn func(ctx context.Context, evt *Event) error) error {
	if fn == nil {
		return ErrInvalidHandler
	}
	return b.RegisterAll(HandlerFunc(fn))
}

func (b *Bus) register(handler Handler, name string) error {
	if isNilHandler(handler) {
		return ErrInvalidHandler
	}

	entry := registration{handler: handler, name: handlerName(handler)}

	b.mu.Lock()
	if name == "" {
		b.wildcards = append(b.wildcards, entry)
	} else {
		b.byName[name] = append(b.byName[name], entry)
	}
	b.mu.Unlock()

	observability.LogRegister(b.config.Logger, name, entry.name)
	return nil
}

// Use adds middleware applied to every handler invocation dispatched
// after the call.
func (b *Bus) Use(middleware MiddlewareFunc) {
	if middleware == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, middleware)
}

// Handlers returns how many handlers are registered for name,
// not counting wildcard handlers.
func (b *Bus) Handlers(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byName[name])
}

// WildcardHandlers returns how many handlers receive every event.
func (b *Bus) WildcardHandlers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.wildcards)
}

// Dispatch schedules evt for every matching handler and returns without
// running any of them. Validation errors are returned synchronously;
// handler failures are reported through logs, metrics, the OnError hook,
// and the failure store, never through the Completion.
//
// Handlers receive a context carrying ctx's values but not its
// cancellation: once scheduled, an invocation always runs.
func (b *Bus) Dispatch(ctx context.Context, evt *Event) (*Completion, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if !evt.valid() {
		return nil, ErrInvalidEvent
	}

	// The read lock is held while scheduling so Close cannot stop the
	// scheduler between the snapshot and the last Schedule call.
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrBusClosed
	}

	named := b.byName[evt.Name()]
	entries := make([]registration, 0, len(b.wildcards)+len(named))
	entries = append(entries, b.wildcards...)
	entries = append(entries, named...)
	middleware := b.middleware

	dispatchID := uuid.NewString()
	ctx = context.WithoutCancel(ctx)
	ctx, span := b.spans.StartDispatchSpan(ctx, evt.Name(), dispatchID, len(entries))
	b.metrics.RecordDispatch(ctx, evt.Name(), len(entries))
	observability.LogDispatch(b.config.Logger, evt.Name(), dispatchID, len(entries))

	elapsed := observability.TimedOperation()
	completion := newCompletion(dispatchID, len(entries), func(failures int) {
		observability.LogDispatchComplete(b.config.Logger, evt.Name(), dispatchID, elapsed(), len(entries), failures)
		var err error
		if failures > 0 {
			err = fmt.Errorf("%d of %d handlers failed", failures, len(entries))
		}
		b.spans.EndSpanWithError(span, err)
	})

	for _, entry := range entries {
		b.scheduler.Schedule(func() {
			b.invoke(ctx, evt, dispatchID, entry, middleware, completion)
		})
	}

	return completion, nil
}

// invoke runs one handler and reports its outcome.
func (b *Bus) invoke(ctx context.Context, evt *Event, dispatchID string, entry registration, middleware []MiddlewareFunc, completion *Completion) {
	name := entry.name
	ctx, span := b.spans.StartHandlerSpan(ctx, evt.Name(), name)
	start := time.Now()

	err := safeHandle(ctx, entry.handler, middleware, evt)

	b.metrics.RecordHandler(ctx, evt.Name(), name, time.Since(start), err)
	b.spans.EndSpanWithError(span, err)

	if err != nil {
		b.reportFailure(ctx, evt, dispatchID, name, err)
	}
	completion.finish(err != nil)
}

// safeHandle wraps handler in middleware and runs it, converting a panic
// from either into an *EventError.
func safeHandle(ctx context.Context, handler Handler, middleware []MiddlewareFunc, evt *Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &EventError{
				EventName: evt.Name(),
				Message:   fmt.Sprintf("handler panic: %v", r),
				Panicked:  true,
				Timestamp: time.Now(),
			}
		}
	}()
	return ChainMiddleware(handler, middleware...).Handle(ctx, evt)
}

// reportFailure logs, hooks, and stores one failed invocation.
func (b *Bus) reportFailure(ctx context.Context, evt *Event, dispatchID, handler string, err error) {
	// Handlers may return a shared *EventError, so it is copied before
	// being annotated.
	var evtErr *EventError
	if direct, ok := err.(*EventError); ok {
		cp := *direct
		evtErr = &cp
	} else {
		evtErr = &EventError{
			EventName: evt.Name(),
			Message:   "handler returned error",
			Err:       err,
			Timestamp: time.Now(),
		}
	}
	err = evtErr
	evtErr.DispatchID = dispatchID
	evtErr.Handler = handler
	if evtErr.Timestamp.IsZero() {
		evtErr.Timestamp = time.Now()
	}

	if evtErr.Panicked {
		observability.LogHandlerPanic(b.config.Logger, evt.Name(), dispatchID, handler, evtErr.Message)
	} else {
		observability.LogHandlerError(b.config.Logger, evt.Name(), dispatchID, handler, err)
	}

	if b.config.OnError != nil {
		b.config.OnError(evt, handler, err)
	}

	if b.config.Failures == nil {
		return
	}

	data, serr := evt.Serialize()
	if serr != nil {
		observability.LogFailureStoreError(b.config.Logger, evt.Name(), handler, serr)
		return
	}
	rec := &failure.Record{
		ID:         uuid.NewString(),
		DispatchID: dispatchID,
		EventName:  evt.Name(),
		EventData:  data,
		Handler:    handler,
		Error:      err.Error(),
		Panicked:   evtErr.Panicked,
		FailedAt:   evtErr.Timestamp.UTC(),
	}
	serr = b.config.Failures.Save(ctx, rec)
	b.metrics.RecordFailureStored(ctx, evt.Name(), serr)
	if serr != nil {
		observability.LogFailureStoreError(b.config.Logger, evt.Name(), handler, serr)
	}
}

// Close stops accepting dispatches and waits for scheduled handlers to
// finish. Close must not be called from a handler.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.scheduler.Close()
	return nil
}
