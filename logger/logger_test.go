package logger_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/goleak"

	"github.com/innotter/stats/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)

	os.Exit(m.Run())
}

func newLogger(t *testing.T, level int) (*logger.SlogLogger, *bytes.Buffer) {
	t.Helper()

	var buffer bytes.Buffer

	log, err := logger.New(logger.Configuration{
		Level:      level,
		Writer:     &buffer,
		TimeFormat: time.RFC822,
	})
	require.NoError(t, err, "Error init a logger")

	return log, &buffer
}

func decode(t *testing.T, buffer *bytes.Buffer) map[string]any {
	t.Helper()

	var response map[string]any
	require.NoError(t, json.Unmarshal(buffer.Bytes(), &response), "Error unmarshalling")

	return response
}

func TestOutputInfo(t *testing.T) {
	log, buffer := newLogger(t, logger.INFO_LEVEL)

	log.Info("Hello World", slog.String("hello", "world"), slog.Int("first", 1))

	response := decode(t, buffer)
	assert.Equal(t, "INFO", response["level"])
	assert.Equal(t, "Hello World", response["msg"])
	assert.Equal(t, "world", response["hello"])
	assert.Equal(t, float64(1), response["first"])
	assert.Equal(t, time.Now().Format(time.RFC822), response["time"])

	source, ok := response["source"].(map[string]any)
	require.True(t, ok)
	assert.True(t, strings.HasSuffix(source["file"].(string), "logger_test.go"), "source should point at the caller")
}

func TestLevelFiltering(t *testing.T) {
	log, buffer := newLogger(t, logger.WARN_LEVEL)

	log.Info("skipped")
	log.Debug("skipped")
	assert.Empty(t, buffer.String())

	log.Warn("kept")
	assert.Contains(t, buffer.String(), `"msg":"kept"`)
}

func TestInvalidLevel(t *testing.T) {
	_, err := logger.New(logger.Configuration{Level: 42})
	require.ErrorIs(t, err, logger.ErrInvalidLogLevel)
}

func TestWithContextAddsTraceID(t *testing.T) {
	log, buffer := newLogger(t, logger.INFO_LEVEL)

	provider := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	ctx, span := provider.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	log.ErrorWithContext(ctx, "event dropped", slog.String("method", "update_posts"))

	response := decode(t, buffer)
	assert.Equal(t, span.SpanContext().TraceID().String(), response["traceID"])
	assert.Equal(t, "update_posts", response["method"])
}

func TestWithContextWithoutSpan(t *testing.T) {
	log, buffer := newLogger(t, logger.INFO_LEVEL)

	log.InfoWithContext(context.Background(), "plain")

	response := decode(t, buffer)
	assert.NotContains(t, response, "traceID")
}

func TestWithFields(t *testing.T) {
	log, buffer := newLogger(t, logger.INFO_LEVEL)

	log.WithFields(slog.String("service", "innotter-stats")).
		WithFields(slog.String("table", "pages")).
		Info("store failed", slog.String("error", errors.New("test error").Error()))

	response := decode(t, buffer)
	assert.Equal(t, "innotter-stats", response["service"])
	assert.Equal(t, "test error", response["error"])
	assert.Equal(t, "pages", response["table"])

	assert.Same(t, log, log.WithFields())
}

func TestParseLevel(t *testing.T) {
	for raw, want := range map[string]int{
		"error": logger.ERROR_LEVEL,
		"WARN":  logger.WARN_LEVEL,
		"":      logger.INFO_LEVEL,
		"debug": logger.DEBUG_LEVEL,
		"1":     logger.WARN_LEVEL,
	} {
		got, err := logger.ParseLevel(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	for _, raw := range []string{"trace", "7", "-1"} {
		_, err := logger.ParseLevel(raw)
		require.ErrorIs(t, err, logger.ErrInvalidLogLevel, raw)
	}
}
