package failure_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielemariani/domain-events/pkg/domainevents/failure"
)

func TestMemoryStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	store := failure.NewMemoryStore()

	var wg sync.WaitGroup
	for w := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				assert.NoError(t, store.Save(ctx, newRecord(fmt.Sprintf("w%d-%d", w, i), "ORDER_PLACED", 0)))
				_, err := store.List(ctx, 5)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 500, n)
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := failure.NewMemoryStore()
	require.NoError(t, store.Save(ctx, newRecord("r1", "ORDER_PLACED", 0)))

	got, err := store.Get(ctx, "r1")
	require.NoError(t, err)
	got.Error = "changed by caller"

	again, err := store.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "projection failed", again.Error)
}
