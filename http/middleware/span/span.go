package span_middleware

import (
	"net/http"

	"go.opentelemetry.io/otel/trace"
)

// TraceIDHeader is the response header carrying the request trace id.
const TraceIDHeader = "Trace-Id"

type span struct{}

// Span echoes the trace id of the request span in the response headers so
// a client can quote it when reporting an error.
func Span() func(next http.Handler) http.Handler {
	return span{}.middleware
}

func (span) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		spanCtx := trace.SpanContextFromContext(r.Context())
		if spanCtx.HasTraceID() && w.Header().Get(TraceIDHeader) == "" {
			w.Header().Set(TraceIDHeader, spanCtx.TraceID().String())
		}

		next.ServeHTTP(w, r)
	})
}
