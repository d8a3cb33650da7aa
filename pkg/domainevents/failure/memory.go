package failure

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps failure records in memory.
// Data is lost when the process exits.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]storedRecord
	seq     int64
	closed  bool
}

// storedRecord keeps insertion order so equal timestamps still sort stably.
type storedRecord struct {
	rec Record
	seq int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]storedRecord),
	}
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, rec *Record) error {
	if rec == nil || rec.ID == "" {
		return ErrInvalidRecord
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	m.seq++
	m.records[rec.ID] = storedRecord{rec: *rec, seq: m.seq}
	return nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	stored, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	rec := stored.rec
	return &rec, nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context, limit int) ([]*Record, error) {
	return m.list(func(*Record) bool { return true }, limit)
}

// ListByEvent implements Store.
func (m *MemoryStore) ListByEvent(_ context.Context, eventName string, limit int) ([]*Record, error) {
	return m.list(func(r *Record) bool { return r.EventName == eventName }, limit)
}

func (m *MemoryStore) list(match func(*Record) bool, limit int) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	matched := make([]storedRecord, 0, len(m.records))
	for _, stored := range m.records {
		if match(&stored.rec) {
			matched = append(matched, stored)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.rec.FailedAt.Equal(b.rec.FailedAt) {
			return a.rec.FailedAt.After(b.rec.FailedAt)
		}
		return a.seq > b.seq
	})

	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	result := make([]*Record, len(matched))
	for i := range matched {
		rec := matched[i].rec
		result[i] = &rec
	}
	return result, nil
}

// Count implements Store.
func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrStoreClosed
	}
	return len(m.records), nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	delete(m.records, id)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.records = nil
	return nil
}
