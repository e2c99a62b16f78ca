package logger_middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"

	"github.com/innotter/stats/http/api"
	"github.com/innotter/stats/logger"
)

type chilogger struct {
	log logger.Logger
}

// Logger logs every request once it completes, at a level chosen by the
// response status, and turns a panic into a 500. The trace id is added by
// the logger itself.
func Logger(log logger.Logger) func(next http.Handler) http.Handler {
	return chilogger{log: log}.middleware
}

func (c chilogger) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			if rec := recover(); rec != nil {
				c.log.ErrorWithContext(r.Context(), "panic recovered",
					slog.Any("panic", rec),
					slog.String("stack", string(debug.Stack())),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				api.WriteError(ww, api.ErrInternal)

				return
			}

			c.completed(r, ww, time.Since(start))
		}()

		next.ServeHTTP(ww, r)
	})
}

func (c chilogger) completed(r *http.Request, ww middleware.WrapResponseWriter, latency time.Duration) {
	status := ww.Status()

	fields := []slog.Attr{
		slog.Int("status", status),
		slog.Int("bytes", ww.BytesWritten()),
		slog.Int64("took_ms", latency.Milliseconds()),
		slog.String("remote", r.RemoteAddr),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("query", r.URL.RawQuery),
		slog.String("user_agent", r.UserAgent()),
	}

	if id := middleware.GetReqID(r.Context()); id != "" {
		fields = append(fields, slog.String("request_id", id))
	}

	// filled in by the router once the request has been matched
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			fields = append(fields, slog.String("route", pattern))
		}

		if userID := rctx.URLParam(api.UserIDParam); userID != "" {
			fields = append(fields, slog.String(api.UserIDParam, userID))
		}
	}

	if spanCtx := trace.SpanContextFromContext(r.Context()); spanCtx.HasSpanID() {
		fields = append(fields, slog.String("span_id", spanCtx.SpanID().String()))
	}

	switch {
	case status >= http.StatusInternalServerError:
		c.log.ErrorWithContext(r.Context(), "request completed", fields...)
	case status >= http.StatusBadRequest:
		c.log.WarnWithContext(r.Context(), "request completed", fields...)
	default:
		c.log.InfoWithContext(r.Context(), "request completed", fields...)
	}
}
