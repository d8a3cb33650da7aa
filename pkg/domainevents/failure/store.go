// Package failure collects handler failures reported by the event bus.
//
// Records are kept for inspection only. The bus never redelivers a
// recorded event; callers that want to replay one rebuild it with
// event.Deserialize(record.EventData) and dispatch it themselves.
package failure

import (
	"context"
	"errors"
	"time"
)

// Record describes one failed handler invocation.
type Record struct {
	ID         string    `json:"id"`
	DispatchID string    `json:"dispatch_id"`
	EventName  string    `json:"event_name"`
	EventData  string    `json:"event_data"` // serialized event text
	Handler    string    `json:"handler"`
	Error      string    `json:"error"`
	Panicked   bool      `json:"panicked,omitempty"`
	FailedAt   time.Time `json:"failed_at"`
}

// Store persists failure records.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save stores a record. Saving an existing ID overwrites it.
	Save(ctx context.Context, rec *Record) error

	// Get retrieves a record by ID.
	// Returns ErrNotFound if the record doesn't exist.
	Get(ctx context.Context, id string) (*Record, error)

	// List returns up to limit records, newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]*Record, error)

	// ListByEvent returns up to limit records for one event name, newest first.
	ListByEvent(ctx context.Context, eventName string, limit int) ([]*Record, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// Delete removes a record. Returns nil if it doesn't exist.
	Delete(ctx context.Context, id string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Sentinel errors for failure store operations.
var (
	// ErrNotFound indicates a record doesn't exist.
	ErrNotFound = errors.New("failure record not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("failure store closed")

	// ErrInvalidRecord indicates a record without an ID.
	ErrInvalidRecord = errors.New("failure record requires an id")
)
