package db_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innotter/stats/codec"
	"github.com/innotter/stats/config"
	"github.com/innotter/stats/db"
	"github.com/innotter/stats/logger"
)

func newDeps(t *testing.T) (logger.Logger, *config.Config) {
	t.Helper()

	log, err := logger.New(logger.Configuration{Writer: &bytes.Buffer{}, Level: logger.INFO_LEVEL})
	require.NoError(t, err)

	cfg, err := config.New()
	require.NoError(t, err)

	return log, cfg
}

func TestNewDefaultsToRAM(t *testing.T) {
	ctx := context.Background()
	log, cfg := newDeps(t)

	store, err := db.New(ctx, log, nil, nil, cfg)
	require.NoError(t, err)
	assert.Equal(t, "ram", store.Type())

	require.NoError(t, store.Put(ctx, "users", 1, codec.Record{"username": codec.String("admin")}))

	got, err := store.Get(ctx, "users", 1)
	require.NoError(t, err)
	assert.Equal(t, codec.String("admin"), got["username"])

	require.NoError(t, store.Ping(ctx))
	require.NoError(t, store.Close())
}

func TestNotFoundIsWrapped(t *testing.T) {
	ctx := context.Background()
	log, cfg := newDeps(t)

	store, err := db.New(ctx, log, nil, nil, cfg)
	require.NoError(t, err)

	_, err = store.Get(ctx, "pages", 7)
	require.ErrorIs(t, err, db.ErrNotFound)

	var storeErr *db.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "get", storeErr.Op)
	assert.Equal(t, "pages", storeErr.Table)
}

func TestUnknownStoreType(t *testing.T) {
	t.Setenv("STORE_TYPE", "cassandra")

	log, cfg := newDeps(t)

	_, err := db.New(context.Background(), log, nil, nil, cfg)
	require.ErrorIs(t, err, db.ErrUnknownStoreType)
}

func TestEmbeddedStoreTypes(t *testing.T) {
	for _, tc := range []struct {
		storeType string
		env       map[string]string
	}{
		{storeType: "badger", env: map[string]string{"STORE_BADGER_IN_MEMORY": "true"}},
		{storeType: "leveldb", env: map[string]string{"STORE_LEVELDB_PATH": t.TempDir()}},
		{storeType: "sqlite", env: map[string]string{"STORE_SQLITE_PATH": ":memory:"}},
	} {
		t.Run(tc.storeType, func(t *testing.T) {
			t.Setenv("STORE_TYPE", tc.storeType)

			for key, value := range tc.env {
				t.Setenv(key, value)
			}

			ctx := context.Background()
			log, cfg := newDeps(t)

			store, err := db.New(ctx, log, nil, nil, cfg)
			require.NoError(t, err)
			t.Cleanup(func() { _ = store.Close() })

			assert.Equal(t, tc.storeType, store.Type())

			require.NoError(t, store.Put(ctx, "posts", 3, codec.Record{"liked_by": codec.Int(2)}))

			records, err := store.Scan(ctx, "posts")
			require.NoError(t, err)
			require.Len(t, records, 1)
			assert.Equal(t, "3", records[0]["id"].String())
		})
	}
}
