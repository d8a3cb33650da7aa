package event

import (
	"errors"
	"fmt"
	"time"
)

// Root error classes. Every validation error returned by this package
// matches one of them with errors.Is.
var (
	// ErrInvalidArgument indicates a caller passed a value the operation cannot accept.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrParse indicates serialized event text is malformed or incomplete.
	ErrParse = errors.New("parse error")
)

// Sentinel errors for construction, registration, and dispatch.
var (
	// ErrInvalidName indicates an event name or registration name is empty or not a string.
	ErrInvalidName = fmt.Errorf("%w: event name must be a non-empty string", ErrInvalidArgument)

	// ErrInvalidPayload indicates the payload cannot be encoded as JSON.
	ErrInvalidPayload = fmt.Errorf("%w: payload must be JSON encodable", ErrInvalidArgument)

	// ErrInvalidHandler indicates a nil handler was registered.
	ErrInvalidHandler = fmt.Errorf("%w: handler must be non-nil", ErrInvalidArgument)

	// ErrInvalidEvent indicates a value that was not built by New or Deserialize.
	ErrInvalidEvent = fmt.Errorf("%w: not a constructed event", ErrInvalidArgument)

	// ErrNilContext indicates Dispatch was called with a nil context.
	ErrNilContext = fmt.Errorf("%w: context cannot be nil", ErrInvalidArgument)

	// ErrBusClosed indicates Dispatch was called after Close.
	ErrBusClosed = errors.New("event bus closed")

	// ErrDefaultInitialized indicates the default bus was already created.
	ErrDefaultInitialized = errors.New("default event bus already initialized")
)

// EventError describes a handler failure during dispatch.
type EventError struct {
	EventName  string    // Name of the event being handled
	DispatchID string    // Dispatch the invocation belonged to
	Handler    string    // Handler that failed
	Message    string    // Error message
	Err        error     // Underlying error, nil for panics
	Panicked   bool      // Handler panicked instead of returning an error
	Timestamp  time.Time // When the failure was observed
}

// Error implements error interface.
func (e *EventError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("event %s: handler %s: %s: %v", e.EventName, e.Handler, e.Message, e.Err)
	}
	return fmt.Sprintf("event %s: handler %s: %s", e.EventName, e.Handler, e.Message)
}

// Unwrap returns the underlying error.
func (e *EventError) Unwrap() error {
	return e.Err
}
