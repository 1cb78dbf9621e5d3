// Package kvtest holds the behavior every kv.KV backend must share.
package kvtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/bell/internal/core/kv"
)

// Run exercises store against the kv.KV contract. newStore must return an
// empty store for each call.
func Run(t *testing.T, newStore func(t *testing.T) kv.KV) {
	t.Helper()

	type record struct {
		ID   string `json:"id"`
		Read bool   `json:"read"`
	}

	t.Run("set and get", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		in := []record{{ID: "a"}, {ID: "b", Read: true}}
		require.NoError(t, store.Set(ctx, "notifications:u1", in))

		var out []record
		require.NoError(t, store.Get(ctx, "notifications:u1", &out))
		assert.Equal(t, in, out)
	})

	t.Run("missing key", func(t *testing.T) {
		store := newStore(t)

		var out []record
		err := store.Get(context.Background(), "absent", &out)
		assert.True(t, kv.IsNotFound(err), "want ErrNotFound, got %v", err)
	})

	t.Run("overwrite", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.Set(ctx, "k", "first"))
		require.NoError(t, store.Set(ctx, "k", "second"))

		var got string
		require.NoError(t, store.Get(ctx, "k", &got))
		assert.Equal(t, "second", got)
	})

	t.Run("delete", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.Set(ctx, "k", 1))
		require.NoError(t, store.Delete(ctx, "k"))
		require.NoError(t, store.Delete(ctx, "k"), "deleting a missing key is not an error")

		ok, err := store.Has(ctx, "k")
		require.NoError(t, err)
		assert.False(t, ok)

		var got int
		assert.True(t, kv.IsNotFound(store.Get(ctx, "k", &got)))
	})

	t.Run("has and list keys", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.Set(ctx, "notifications:b", 1))
		require.NoError(t, store.Set(ctx, "notifications:a", 2))

		ok, err := store.Has(ctx, "notifications:a")
		require.NoError(t, err)
		assert.True(t, ok)

		keys, err := store.ListKeys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"notifications:a", "notifications:b"}, keys)
	})

	t.Run("ttl expiry", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.SetTTL(ctx, "short", "v", 50*time.Millisecond))
		require.NoError(t, store.SetTTL(ctx, "long", "v", time.Hour))

		require.Eventually(t, func() bool {
			ok, err := store.Has(ctx, "short")
			return err == nil && !ok
		}, 5*time.Second, 20*time.Millisecond)

		var got string
		assert.True(t, kv.IsNotFound(store.Get(ctx, "short", &got)))
		require.NoError(t, store.Get(ctx, "long", &got))

		keys, err := store.ListKeys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"long"}, keys)
	})
}
