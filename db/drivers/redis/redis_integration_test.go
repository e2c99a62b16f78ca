//go:build integration

package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/innotter/stats/config"
	"github.com/innotter/stats/db/kv/kvtest"
)

func TestRedisStoreAgainstServer(t *testing.T) {
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7.4-alpine")
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	t.Setenv("STORE_REDIS_URI", endpoint)

	cfg, err := config.New()
	require.NoError(t, err)

	store := New(nil, nil, cfg)
	require.NoError(t, store.Init(ctx))
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Ping(ctx))

	kvtest.Run(t, store)
}
