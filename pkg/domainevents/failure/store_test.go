package failure_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielemariani/domain-events/pkg/domainevents/failure"
)

// storeFactory creates a store instance for testing.
type storeFactory func(t *testing.T) failure.Store

var baseTime = time.Date(2024, 6, 10, 12, 0, 0, 123456789, time.UTC)

func newRecord(id, eventName string, offset time.Duration) *failure.Record {
	return &failure.Record{
		ID:         id,
		DispatchID: "dispatch-" + id,
		EventName:  eventName,
		EventData:  fmt.Sprintf(`{"name":%q,"payload":null,"createdAt":100}`, eventName),
		Handler:    "event_test.projection",
		Error:      "projection failed",
		FailedAt:   baseTime.Add(offset),
	}
}

func ids(records []*failure.Record) []string {
	out := make([]string, len(records))
	for i, rec := range records {
		out[i] = rec.ID
	}
	return out
}

// storeContractTest runs contract tests against any Store implementation.
func storeContractTest(t *testing.T, name string, factory storeFactory) {
	ctx := context.Background()

	t.Run(name+"/Save_and_Get", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		rec := newRecord("r1", "ORDER_PLACED", 0)
		rec.Panicked = true
		require.NoError(t, store.Save(ctx, rec))

		got, err := store.Get(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)
		assert.Equal(t, rec.DispatchID, got.DispatchID)
		assert.Equal(t, rec.EventName, got.EventName)
		assert.Equal(t, rec.EventData, got.EventData)
		assert.Equal(t, rec.Handler, got.Handler)
		assert.Equal(t, rec.Error, got.Error)
		assert.True(t, got.Panicked)
		assert.True(t, rec.FailedAt.Equal(got.FailedAt), "FailedAt: want %v, got %v", rec.FailedAt, got.FailedAt)
	})

	t.Run(name+"/Get_NotFound", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		_, err := store.Get(ctx, "missing")
		assert.ErrorIs(t, err, failure.ErrNotFound)
	})

	t.Run(name+"/Save_Invalid", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		assert.ErrorIs(t, store.Save(ctx, nil), failure.ErrInvalidRecord)
		assert.ErrorIs(t, store.Save(ctx, &failure.Record{}), failure.ErrInvalidRecord)
	})

	t.Run(name+"/Save_Overwrite", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		rec := newRecord("r1", "ORDER_PLACED", 0)
		require.NoError(t, store.Save(ctx, rec))

		rec.Error = "second attempt failed"
		require.NoError(t, store.Save(ctx, rec))

		got, err := store.Get(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, "second attempt failed", got.Error)

		n, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run(name+"/Save_CopiesRecord", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		rec := newRecord("r1", "ORDER_PLACED", 0)
		require.NoError(t, store.Save(ctx, rec))
		rec.Error = "mutated after save"

		got, err := store.Get(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, "projection failed", got.Error)
	})

	t.Run(name+"/List_Empty", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		records, err := store.List(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run(name+"/List_NewestFirst", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Save(ctx, newRecord("old", "ORDER_PLACED", 0)))
		require.NoError(t, store.Save(ctx, newRecord("new", "ORDER_CANCELLED", 2*time.Second)))
		require.NoError(t, store.Save(ctx, newRecord("mid", "ORDER_PLACED", time.Second)))

		records, err := store.List(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"new", "mid", "old"}, ids(records))

		limited, err := store.List(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"new", "mid"}, ids(limited))
	})

	t.Run(name+"/List_SameTimestampUsesInsertionOrder", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Save(ctx, newRecord("first", "ORDER_PLACED", 0)))
		require.NoError(t, store.Save(ctx, newRecord("second", "ORDER_PLACED", 0)))

		records, err := store.List(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"second", "first"}, ids(records))
	})

	t.Run(name+"/ListByEvent", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Save(ctx, newRecord("p1", "ORDER_PLACED", 0)))
		require.NoError(t, store.Save(ctx, newRecord("c1", "ORDER_CANCELLED", time.Second)))
		require.NoError(t, store.Save(ctx, newRecord("p2", "ORDER_PLACED", 2*time.Second)))

		placed, err := store.ListByEvent(ctx, "ORDER_PLACED", 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"p2", "p1"}, ids(placed))

		limited, err := store.ListByEvent(ctx, "ORDER_PLACED", 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"p2"}, ids(limited))

		none, err := store.ListByEvent(ctx, "ORDER_SHIPPED", 0)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run(name+"/Delete", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Save(ctx, newRecord("r1", "ORDER_PLACED", 0)))
		require.NoError(t, store.Delete(ctx, "r1"))
		require.NoError(t, store.Delete(ctx, "r1"), "deleting a missing record is not an error")

		_, err := store.Get(ctx, "r1")
		assert.ErrorIs(t, err, failure.ErrNotFound)

		n, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run(name+"/Closed", func(t *testing.T) {
		store := factory(t)
		require.NoError(t, store.Close())

		assert.ErrorIs(t, store.Save(ctx, newRecord("r1", "ORDER_PLACED", 0)), failure.ErrStoreClosed)
		_, err := store.Get(ctx, "r1")
		assert.ErrorIs(t, err, failure.ErrStoreClosed)
		_, err = store.List(ctx, 0)
		assert.ErrorIs(t, err, failure.ErrStoreClosed)
		_, err = store.ListByEvent(ctx, "ORDER_PLACED", 0)
		assert.ErrorIs(t, err, failure.ErrStoreClosed)
		_, err = store.Count(ctx)
		assert.ErrorIs(t, err, failure.ErrStoreClosed)
		assert.ErrorIs(t, store.Delete(ctx, "r1"), failure.ErrStoreClosed)
		assert.NoError(t, store.Close(), "Close is idempotent")
	})
}

func TestMemoryStore_Contract(t *testing.T) {
	storeContractTest(t, "MemoryStore", func(t *testing.T) failure.Store {
		return failure.NewMemoryStore()
	})
}

func TestSQLiteStore_Contract(t *testing.T) {
	storeContractTest(t, "SQLiteStore", func(t *testing.T) failure.Store {
		store, err := failure.NewSQLiteStore(":memory:")
		require.NoError(t, err)
		return store
	})
}
