package tracer

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTraceIDWithoutSpan(t *testing.T) {
	assert.Empty(t, TraceID(context.Background()))
}

func TestRecordLogAddsSpanEvent(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	ctx, span := provider.Tracer("test").Start(context.Background(), "op")
	require.NotEmpty(t, TraceID(ctx))

	RecordLog(ctx, slog.LevelWarn, "event dropped", slog.String("method", "create_pages"))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	require.Len(t, spans[0].Events(), 1)

	event := spans[0].Events()[0]
	assert.Equal(t, "event dropped", event.Name)
	assert.Contains(t, event.Attributes, attribute.String("method", "create_pages"))
	assert.Contains(t, event.Attributes, attribute.String("level", "WARN"))
}

func TestFieldsToOpenTelemetry(t *testing.T) {
	attrs := FieldsToOpenTelemetry(
		slog.String("s", "v"),
		slog.Bool("b", true),
		slog.Int("i", 7),
		slog.Float64("f", 1.5),
		slog.Any("e", []string{"x"}),
	)

	assert.Equal(t, []attribute.KeyValue{
		attribute.String("s", "v"),
		attribute.Bool("b", true),
		attribute.Int64("i", 7),
		attribute.Float64("f", 1.5),
		attribute.String("e", "[x]"),
	}, attrs)
}
