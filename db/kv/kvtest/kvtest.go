// Package kvtest checks a kv.Driver against the behaviour the projector and
// the stats engine rely on.
package kvtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innotter/stats/codec"
	"github.com/innotter/stats/db/kv"
)

// Run exercises an initialized, empty driver.
func Run(t *testing.T, store kv.Driver) {
	t.Helper()

	ctx := context.Background()

	t.Run("ping", func(t *testing.T) {
		require.NoError(t, store.Ping(ctx))
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := store.Get(ctx, "pages", 1)
		require.ErrorIs(t, err, kv.ErrNotFound)
	})

	t.Run("put replaces and sets id", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "pages", 1, codec.Record{
			"name":  codec.String("a"),
			"extra": codec.Bool(true),
		}))
		require.NoError(t, store.Put(ctx, "pages", 1, codec.Record{
			"name":  codec.String("a"),
			"blob":  codec.Binary([]byte{1, 2}),
			"owner": codec.Null(),
		}))

		got, err := store.Get(ctx, "pages", 1)
		require.NoError(t, err)
		assert.Equal(t, codec.Record{
			"id":    codec.Int(1),
			"name":  codec.String("a"),
			"blob":  codec.Binary([]byte{1, 2}),
			"owner": codec.Null(),
		}, got)
	})

	t.Run("update merges", func(t *testing.T) {
		patch, err := codec.EncodePatch(map[string]any{"name": "b", "followers": 2})
		require.NoError(t, err)
		require.NoError(t, store.Update(ctx, "pages", 1, patch))

		got, err := store.Get(ctx, "pages", 1)
		require.NoError(t, err)
		assert.Equal(t, "b", got["name"].String())
		assert.Equal(t, "2", got["followers"].String())
		assert.Equal(t, codec.Binary([]byte{1, 2}), got["blob"])
	})

	t.Run("update missing upserts", func(t *testing.T) {
		patch, err := codec.EncodePatch(map[string]any{"liked_by": 1})
		require.NoError(t, err)
		require.NoError(t, store.Update(ctx, "posts", 9, patch))

		got, err := store.Get(ctx, "posts", 9)
		require.NoError(t, err)
		assert.Equal(t, codec.Record{"id": codec.Int(9), "liked_by": codec.Int(1)}, got)
	})

	t.Run("scan walks one table", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "pages", 3, codec.Record{"id": codec.Int(3)}))
		require.NoError(t, store.Put(ctx, "pages", 2, codec.Record{"id": codec.Int(2)}))

		records, err := store.Scan(ctx, "pages")
		require.NoError(t, err)
		require.Len(t, records, 3)

		ids := make([]string, 0, len(records))
		for _, record := range records {
			ids = append(ids, record["id"].String())
		}

		assert.ElementsMatch(t, []string{"1", "2", "3"}, ids)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "pages", 3))
		require.NoError(t, store.Delete(ctx, "pages", 3))
		require.NoError(t, store.Delete(ctx, "unknown", 3))

		_, err := store.Get(ctx, "pages", 3)
		require.ErrorIs(t, err, kv.ErrNotFound)
	})

	t.Run("scan unknown table", func(t *testing.T) {
		records, err := store.Scan(ctx, "users")
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}
