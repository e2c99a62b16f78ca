package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/rueidis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innotter/stats/codec"
	"github.com/innotter/stats/db/kv"
	"github.com/innotter/stats/db/kv/kvtest"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)

	store := NewWithClient(client)
	require.NoError(t, store.Init(context.Background()))

	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	return store, mr
}

func TestDriverContract(t *testing.T) {
	store, _ := newTestStore(t)

	kvtest.Run(t, store)
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	record, err := codec.Encode(map[string]any{
		"id":         41,
		"owner_id":   1,
		"name":       "page",
		"is_private": false,
		"unblock":    nil,
	})
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "pages", 41, record))

	t.Run("record is a hash indexed by table set", func(t *testing.T) {
		assert.True(t, mr.Exists("pages:41"))

		members, err := mr.Members("pages")
		require.NoError(t, err)
		assert.Equal(t, []string{"41"}, members)
	})

	t.Run("get returns typed values", func(t *testing.T) {
		got, err := store.Get(ctx, "pages", 41)
		require.NoError(t, err)
		assert.Equal(t, record, got)
	})

	t.Run("update merges and put replaces", func(t *testing.T) {
		patch, err := codec.EncodePatch(map[string]any{"followers": 5})
		require.NoError(t, err)
		require.NoError(t, store.Update(ctx, "pages", 41, patch))

		got, err := store.Get(ctx, "pages", 41)
		require.NoError(t, err)
		assert.Equal(t, codec.Int(5), got["followers"])
		assert.Equal(t, codec.String("page"), got["name"])

		require.NoError(t, store.Put(ctx, "pages", 41, codec.Record{"id": codec.Int(41)}))

		got, err = store.Get(ctx, "pages", 41)
		require.NoError(t, err)
		assert.Equal(t, codec.Record{"id": codec.Int(41)}, got)
	})

	t.Run("update of a missing id upserts", func(t *testing.T) {
		patch, err := codec.EncodePatch(map[string]any{"liked_by": 3})
		require.NoError(t, err)
		require.NoError(t, store.Update(ctx, "posts", 100, patch))

		got, err := store.Get(ctx, "posts", 100)
		require.NoError(t, err)
		assert.Equal(t, codec.Record{"id": codec.Int(100), "liked_by": codec.Int(3)}, got)
	})

	t.Run("scan", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "pages", 42, codec.Record{"id": codec.Int(42)}))

		records, err := store.Scan(ctx, "pages")
		require.NoError(t, err)
		assert.Len(t, records, 2)

		empty, err := store.Scan(ctx, "users")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "pages", 42))
		require.NoError(t, store.Delete(ctx, "pages", 42))

		_, err := store.Get(ctx, "pages", 42)
		require.ErrorIs(t, err, kv.ErrNotFound)

		members, err := mr.Members("pages")
		require.NoError(t, err)
		assert.Equal(t, []string{"41"}, members)
	})

	t.Run("ping", func(t *testing.T) {
		require.NoError(t, store.Ping(ctx))
	})
}

func TestTransactionCommandErrorsAreReported(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	// the id set of "pages" is shadowed by a string, so SADD fails inside EXEC
	require.NoError(t, mr.Set("pages", "not-a-set"))

	err := store.Put(ctx, "pages", 7, codec.Record{"name": codec.String("p")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WRONGTYPE")

	// a string at the record key makes HSET fail for a patch
	require.NoError(t, mr.Set("posts:9", "not-a-hash"))

	err = store.Update(ctx, "posts", 9, codec.Record{"liked_by": codec.Int(1)}.Patch())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WRONGTYPE")

	require.NoError(t, store.Delete(ctx, "users", 1))
}
