package tracing_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/innotter/stats/config"
	"github.com/innotter/stats/logger"
	"github.com/innotter/stats/observability/tracing"
)

func TestNewDisabledInstallsPropagator(t *testing.T) {
	buffer := &bytes.Buffer{}
	log, err := logger.New(logger.Configuration{Writer: buffer, Level: logger.INFO_LEVEL})
	require.NoError(t, err)

	cfg, err := config.New()
	require.NoError(t, err)

	tp, cleanup, err := tracing.New(context.Background(), log, cfg)
	require.NoError(t, err)
	t.Cleanup(cleanup)

	_, span := tp.Tracer("test").Start(context.Background(), "noop")
	assert.False(t, span.IsRecording())
	span.End()

	assert.ElementsMatch(t, []string{"traceparent", "tracestate", "baggage"}, otel.GetTextMapPropagator().Fields())
	assert.Contains(t, buffer.String(), "Tracing disable")
}
