package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/innotter/stats/codec"
	"github.com/innotter/stats/config"
	"github.com/innotter/stats/db/kv/kvtest"
)

func newStore(t *testing.T, path string) *Store {
	t.Helper()

	t.Setenv("STORE_SQLITE_PATH", path)

	cfg, err := config.New()
	require.NoError(t, err)

	store := New(nil, nil, cfg)
	require.NoError(t, store.Init(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestDriverContract(t *testing.T) {
	kvtest.Run(t, newStore(t, ":memory:"))
}

func TestReopenKeepsRecords(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "stats.sqlite")

	store := newStore(t, path)
	require.NoError(t, store.Put(ctx, "users", 7, codec.Record{"username": codec.String("u")}))
	require.NoError(t, store.Close())

	got, err := newStore(t, path).Get(ctx, "users", 7)
	require.NoError(t, err)
	require.Equal(t, "u", got["username"].String())
}

func TestInitRecordsMigration(t *testing.T) {
	store := newStore(t, filepath.Join(t.TempDir(), "stats.sqlite"))

	var version int

	err := store.client.QueryRowContext(context.Background(),
		`SELECT version FROM schema_migrations_stats`).Scan(&version)
	require.NoError(t, err)
	require.Equal(t, 1, version)
}
