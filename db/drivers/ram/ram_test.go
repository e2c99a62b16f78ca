package ram

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innotter/stats/codec"
	"github.com/innotter/stats/db/kv"
	"github.com/innotter/stats/db/kv/kvtest"
)

func TestDriverContract(t *testing.T) {
	store := New()
	require.NoError(t, store.Init(context.Background()))

	kvtest.Run(t, store)
}

func TestRAM(t *testing.T) {
	ctx := context.Background()
	store := New()
	require.NoError(t, store.Init(ctx))

	t.Run("get missing", func(t *testing.T) {
		_, err := store.Get(ctx, "pages", 1)
		require.ErrorIs(t, err, kv.ErrNotFound)
	})

	t.Run("put then patch", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "pages", 1, codec.Record{
			"id":   codec.Int(1),
			"name": codec.String("a"),
		}))

		patch, err := codec.EncodePatch(map[string]any{"name": "b", "followers": 2})
		require.NoError(t, err)
		require.NoError(t, store.Update(ctx, "pages", 1, patch))

		got, err := store.Get(ctx, "pages", 1)
		require.NoError(t, err)
		assert.Equal(t, codec.Record{
			"id":        codec.Int(1),
			"name":      codec.String("b"),
			"followers": codec.Int(2),
		}, got)
	})

	t.Run("patch missing upserts", func(t *testing.T) {
		patch, err := codec.EncodePatch(map[string]any{"liked_by": 1})
		require.NoError(t, err)
		require.NoError(t, store.Update(ctx, "posts", 9, patch))

		got, err := store.Get(ctx, "posts", 9)
		require.NoError(t, err)
		assert.Equal(t, codec.Record{"id": codec.Int(9), "liked_by": codec.Int(1)}, got)
	})

	t.Run("returned records are copies", func(t *testing.T) {
		got, err := store.Get(ctx, "pages", 1)
		require.NoError(t, err)

		got["name"] = codec.String("mutated")

		again, err := store.Get(ctx, "pages", 1)
		require.NoError(t, err)
		assert.Equal(t, codec.String("b"), again["name"])
	})

	t.Run("scan is ordered by id", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "pages", 3, codec.Record{"id": codec.Int(3)}))
		require.NoError(t, store.Put(ctx, "pages", 2, codec.Record{"id": codec.Int(2)}))

		records, err := store.Scan(ctx, "pages")
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, "1", records[0]["id"].String())
		assert.Equal(t, "2", records[1]["id"].String())
		assert.Equal(t, "3", records[2]["id"].String())
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
