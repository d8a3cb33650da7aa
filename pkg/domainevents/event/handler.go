package event

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

// Handler processes a dispatched event.
//
// Handlers run on the bus scheduler, never on the goroutine that called
// Dispatch. A returned error or a panic is reported by the bus and does
// not affect other handlers of the same dispatch.
type Handler interface {
	Handle(ctx context.Context, evt *Event) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, evt *Event) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, evt *Event) error {
	return f(ctx, evt)
}

// TypedHandler wraps a function that receives the payload decoded as T.
// Events whose payload does not decode into T fail with an *EventError.
func TypedHandler[T any](fn func(ctx context.Context, payload T, evt *Event) error) Handler {
	return &typedHandler[T]{fn: fn}
}

type typedHandler[T any] struct {
	fn func(ctx context.Context, payload T, evt *Event) error
}

func (h *typedHandler[T]) Handle(ctx context.Context, evt *Event) error {
	var payload T
	if err := evt.PayloadInto(&payload); err != nil {
		return &EventError{
			EventName: evt.Name(),
			Handler:   fmt.Sprintf("%T", h),
			Message:   "failed to decode payload to expected type",
			Err:       err,
		}
	}
	return h.fn(ctx, payload, evt)
}

// MiddlewareFunc wraps handlers to add cross-cutting concerns.
type MiddlewareFunc func(next Handler) Handler

// ChainMiddleware applies middleware in order, with first middleware outermost.
func ChainMiddleware(handler Handler, middleware ...MiddlewareFunc) Handler {
	for i := len(middleware) - 1; i >= 0; i-- {
		handler = middleware[i](handler)
	}
	return handler
}

// isNilHandler reports whether h is nil or wraps a nil pointer or func.
func isNilHandler(h Handler) bool {
	if h == nil {
		return true
	}
	v := reflect.ValueOf(h)
	switch v.Kind() {
	case reflect.Pointer, reflect.Func, reflect.Map, reflect.Chan, reflect.Slice, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// handlerName extracts a name for a handler (for logging/metrics).
func handlerName(h Handler) string {
	if f, ok := h.(HandlerFunc); ok {
		if fn := runtime.FuncForPC(reflect.ValueOf(f).Pointer()); fn != nil {
			name := fn.Name()
			if i := strings.LastIndex(name, "/"); i >= 0 {
				name = name[i+1:]
			}
			return name
		}
	}
	return fmt.Sprintf("%T", h)
}
