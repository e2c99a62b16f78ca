package leveldb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/innotter/stats/codec"
	"github.com/innotter/stats/config"
	"github.com/innotter/stats/db/kv/kvtest"
)

func newStore(t *testing.T, path string) *Store {
	t.Helper()

	cfg, err := config.New()
	require.NoError(t, err)
	cfg.Set("STORE_LEVELDB_PATH", path)

	store := New(cfg)
	require.NoError(t, store.Init(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestDriverContract(t *testing.T) {
	kvtest.Run(t, newStore(t, ""))
}

func TestReopenKeepsRecords(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir()

	store := newStore(t, path)
	require.NoError(t, store.Put(ctx, "users", 7, codec.Record{"username": codec.String("u")}))
	require.NoError(t, store.Close())

	got, err := newStore(t, path).Get(ctx, "users", 7)
	require.NoError(t, err)
	require.Equal(t, "u", got["username"].String())
}

func TestPingAfterClose(t *testing.T) {
	store := newStore(t, "")
	require.NoError(t, store.Close())

	require.Error(t, store.Ping(context.Background()))
}
