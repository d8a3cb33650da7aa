package failure

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists failure records to SQLite.
// It is suitable for single-process production use.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens (or creates) a failure store at path.
// The path should be a file path (e.g., "./failures.db") or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS handler_failures (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			dispatch_id TEXT NOT NULL,
			event_name TEXT NOT NULL,
			event_data TEXT NOT NULL,
			handler TEXT NOT NULL,
			error TEXT NOT NULL,
			panicked INTEGER NOT NULL DEFAULT 0,
			failed_at INTEGER NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_handler_failures_event
		ON handler_failures(event_name, failed_at)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, rec *Record) error {
	if rec == nil || rec.ID == "" {
		return ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO handler_failures
			(id, dispatch_id, event_name, event_data, handler, error, panicked, failed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			dispatch_id = excluded.dispatch_id,
			event_name = excluded.event_name,
			event_data = excluded.event_data,
			handler = excluded.handler,
			error = excluded.error,
			panicked = excluded.panicked,
			failed_at = excluded.failed_at
	`, rec.ID, rec.DispatchID, rec.EventName, rec.EventData, rec.Handler, rec.Error,
		rec.Panicked, rec.FailedAt.UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("save failure record: %w", err)
	}
	return nil
}

const selectColumns = `id, dispatch_id, event_name, event_data, handler, error, panicked, failed_at`

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+selectColumns+` FROM handler_failures WHERE id = ?
	`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load failure record: %w", err)
	}
	return rec, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]*Record, error) {
	return s.query(ctx, `
		SELECT `+selectColumns+` FROM handler_failures
		ORDER BY failed_at DESC, seq DESC
		LIMIT ?
	`, sqlLimit(limit))
}

// ListByEvent implements Store.
func (s *SQLiteStore) ListByEvent(ctx context.Context, eventName string, limit int) ([]*Record, error) {
	return s.query(ctx, `
		SELECT `+selectColumns+` FROM handler_failures
		WHERE event_name = ?
		ORDER BY failed_at DESC, seq DESC
		LIMIT ?
	`, eventName, sqlLimit(limit))
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list failure records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan failure record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failure records: %w", err)
	}
	return records, nil
}

// Count implements Store.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM handler_failures`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count failure records: %w", err)
	}
	return n, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM handler_failures WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete failure record: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec      Record
		failedAt int64
	)
	if err := row.Scan(&rec.ID, &rec.DispatchID, &rec.EventName, &rec.EventData,
		&rec.Handler, &rec.Error, &rec.Panicked, &failedAt); err != nil {
		return nil, err
	}
	rec.FailedAt = time.Unix(0, failedAt).UTC()
	return &rec, nil
}

// sqlLimit maps "no limit" to SQLite's -1.
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
