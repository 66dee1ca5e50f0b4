// Package outboxtest holds a behavioral suite shared by every outbox.Store implementation.
package outboxtest

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/leadcapture/internal/outbox"
)

// Factory builds a fresh, empty store for one subtest.
type Factory func(t *testing.T) outbox.Store

// RunContract exercises the ordering, removal and id guarantees of outbox.Store.
func RunContract(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("enqueue assigns increasing ids", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		first, err := store.Enqueue(ctx, []byte(`{"name":"a"}`))
		require.NoError(t, err)
		second, err := store.Enqueue(ctx, []byte(`{"name":"b"}`))
		require.NoError(t, err)
		require.Equal(t, int64(1), first)
		require.Greater(t, second, first)
	})

	t.Run("list is oldest first and byte exact", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		payloads := [][]byte{
			[]byte(`{"name":"A"}`),
			[]byte("not json at all \x00\xff"),
			[]byte(`{"name":"C","interests":["travel_sales"]}`),
		}
		for _, p := range payloads {
			_, err := store.Enqueue(ctx, p)
			require.NoError(t, err)
		}
		entries, err := store.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, entries, len(payloads))
		for i, e := range entries {
			require.Equal(t, payloads[i], e.Payload)
			require.False(t, e.EnqueuedAt.IsZero())
			if i > 0 {
				require.Greater(t, e.ID, entries[i-1].ID)
			}
		}
		count, err := store.Count(ctx)
		require.NoError(t, err)
		require.Equal(t, len(entries), count)
	})

	t.Run("list is a snapshot", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		_, err := store.Enqueue(ctx, []byte("x"))
		require.NoError(t, err)
		entries, err := store.ListAll(ctx)
		require.NoError(t, err)
		entries[0].Payload[0] = 'y'
		_, err = store.Enqueue(ctx, []byte("z"))
		require.NoError(t, err)
		require.Len(t, entries, 1)

		again, err := store.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, again, 2)
		require.Equal(t, []byte("x"), again[0].Payload)
	})

	t.Run("remove deletes only the given id", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		var ids []int64
		for i := 0; i < 3; i++ {
			id, err := store.Enqueue(ctx, []byte(fmt.Sprintf("entry-%d", i)))
			require.NoError(t, err)
			ids = append(ids, id)
		}
		require.NoError(t, store.Remove(ctx, ids[1]))
		entries, err := store.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		require.Equal(t, ids[0], entries[0].ID)
		require.Equal(t, ids[2], entries[1].ID)
	})

	t.Run("remove absent id is a no-op", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		_, err := store.Enqueue(ctx, []byte("keep"))
		require.NoError(t, err)
		require.NoError(t, store.Remove(ctx, 999))
		count, err := store.Count(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, count)
	})

	t.Run("ids are never reused", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		id, err := store.Enqueue(ctx, []byte("one"))
		require.NoError(t, err)
		require.NoError(t, store.Remove(ctx, id))
		next, err := store.Enqueue(ctx, []byte("two"))
		require.NoError(t, err)
		require.Greater(t, next, id)
	})

	t.Run("closed store reports storage unavailable", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Close())
		_, err := store.Enqueue(context.Background(), []byte("lost?"))
		require.ErrorIs(t, err, outbox.ErrStorageUnavailable)
	})
}
