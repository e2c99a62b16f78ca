package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/innotter/stats/codec"
	"github.com/innotter/stats/config"
	"github.com/innotter/stats/db/kv/kvtest"
)

func newStore(t *testing.T, env map[string]string) *Store {
	t.Helper()

	for key, value := range env {
		t.Setenv(key, value)
	}

	cfg, err := config.New()
	require.NoError(t, err)

	store := New(cfg)
	require.NoError(t, store.Init(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestDriverContract(t *testing.T) {
	kvtest.Run(t, newStore(t, map[string]string{"STORE_BADGER_IN_MEMORY": "true"}))
}

func TestReopenKeepsRecords(t *testing.T) {
	ctx := context.Background()
	env := map[string]string{"STORE_BADGER_PATH": t.TempDir()}

	store := newStore(t, env)
	require.NoError(t, store.Put(ctx, "users", 7, codec.Record{"username": codec.String("u")}))
	require.NoError(t, store.Close())

	reopened := newStore(t, env)

	got, err := reopened.Get(ctx, "users", 7)
	require.NoError(t, err)
	require.Equal(t, "u", got["username"].String())
}

func TestPingAfterClose(t *testing.T) {
	store := newStore(t, map[string]string{"STORE_BADGER_IN_MEMORY": "true"})
	require.NoError(t, store.Close())

	require.Error(t, store.Ping(context.Background()))
}
