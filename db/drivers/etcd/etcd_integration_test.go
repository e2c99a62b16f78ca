//go:build integration

package etcd

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/innotter/stats/codec"
	"github.com/innotter/stats/config"
	"github.com/innotter/stats/db/kv/kvtest"
)

func runEtcd(t *testing.T) string {
	t.Helper()

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "quay.io/coreos/etcd:v3.6.6",
			ExposedPorts: []string{"2379/tcp"},
			Cmd: []string{
				"etcd",
				"--listen-client-urls=http://0.0.0.0:2379",
				"--advertise-client-urls=http://0.0.0.0:2379",
			},
			WaitingFor: wait.ForListeningPort("2379/tcp"),
		},
		Started: true,
	})
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	endpoint, err := container.PortEndpoint(ctx, "2379/tcp", "")
	require.NoError(t, err)

	return endpoint
}

func TestEtcdStore(t *testing.T) {
	t.Setenv("STORE_ETCD_URI", runEtcd(t))

	cfg, err := config.New()
	require.NoError(t, err)

	store := New(cfg)
	require.NoError(t, store.Init(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	kvtest.Run(t, store)

	t.Run("concurrent patches are not lost", func(t *testing.T) {
		ctx := context.Background()

		var wg sync.WaitGroup

		for i := range 8 {
			wg.Add(1)

			go func() {
				defer wg.Done()

				patch := codec.Record{"f" + string(rune('a'+i)): codec.Int(int64(i))}.Patch()
				assert.NoError(t, store.Update(ctx, "pages", 42, patch))
			}()
		}

		wg.Wait()

		got, err := store.Get(ctx, "pages", 42)
		require.NoError(t, err)
		require.Len(t, got, 9) // id plus eight fields
	})
}
