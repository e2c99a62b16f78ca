package httpserver_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innotter/stats/config"
	httpserver "github.com/innotter/stats/http/server"
)

func TestNewAppliesConfig(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("HTTP_SERVER_READ_TIMEOUT", "3s")

	cfg, err := config.New()
	require.NoError(t, err)

	serverConfig := httpserver.LoadConfig(cfg)
	assert.Equal(t, 9090, serverConfig.Port)
	assert.Equal(t, time.Minute, serverConfig.Timeout)

	server := httpserver.New(context.Background(), http.NotFoundHandler(), serverConfig, nil, cfg)
	assert.Equal(t, ":9090", server.Addr)
	assert.Equal(t, 3*time.Second, server.ReadTimeout)
	assert.Equal(t, time.Minute+5*time.Second, server.WriteTimeout)
}

func TestNewTimesOutSlowHandlers(t *testing.T) {
	cfg, err := config.New()
	require.NoError(t, err)

	release := make(chan struct{})
	defer close(release)

	slow := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-release
	})

	server := httpserver.New(context.Background(), slow, httpserver.Config{Timeout: 10 * time.Millisecond}, nil, cfg)

	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, httpserver.TimeoutMessage, rec.Body.String())
}
