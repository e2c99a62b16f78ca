package tracer

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TraceID returns the trace id of the span stored in ctx, or "".
func TraceID(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.HasTraceID() {
		return ""
	}

	return spanCtx.TraceID().String()
}

// RecordLog attaches a log line to the active span as an event.
// It is a no-op when the span is not recording.
func RecordLog(ctx context.Context, level slog.Level, msg string, fields ...slog.Attr) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	attrs := make([]attribute.KeyValue, 0, len(fields)+1)
	attrs = append(attrs, attribute.String("level", level.String()))
	attrs = append(attrs, FieldsToOpenTelemetry(fields...)...)

	span.AddEvent(msg, trace.WithAttributes(attrs...))
}

// FieldsToOpenTelemetry converts slog attributes to OpenTelemetry attributes.
func FieldsToOpenTelemetry(fields ...slog.Attr) []attribute.KeyValue {
	if len(fields) == 0 {
		return nil
	}

	out := make([]attribute.KeyValue, 0, len(fields))

	for _, field := range fields {
		value := field.Value.Resolve()

		switch value.Kind() {
		case slog.KindString:
			out = append(out, attribute.String(field.Key, value.String()))
		case slog.KindBool:
			out = append(out, attribute.Bool(field.Key, value.Bool()))
		case slog.KindInt64:
			out = append(out, attribute.Int64(field.Key, value.Int64()))
		case slog.KindFloat64:
			out = append(out, attribute.Float64(field.Key, value.Float64()))
		default:
			out = append(out, attribute.String(field.Key, fmt.Sprintf("%v", value.Any())))
		}
	}

	return out
}
