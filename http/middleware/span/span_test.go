package span_middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSpanMiddleware(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "test-span")
	defer span.End()

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody).WithContext(ctx)
	rr := httptest.NewRecorder()

	Span()(okHandler()).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, span.SpanContext().TraceID().String(), rr.Header().Get(TraceIDHeader))
}

func TestSpanMiddleware_NoSpan(t *testing.T) {
	rr := httptest.NewRecorder()

	Span()(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	assert.Empty(t, rr.Header().Get(TraceIDHeader), "trace id header should not be set without a span")
}
