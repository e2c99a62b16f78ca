package flight_trace_middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/innotter/stats/config"
	"github.com/innotter/stats/logger"
	"github.com/innotter/stats/observability/profiling"
	"github.com/innotter/stats/s3"
)

// DebugHeader forces a dump for a single request.
const DebugHeader = "X-Debug-Trace"

// Dumper is satisfied by *profiling.Recorder.
type Dumper interface {
	Dump(name string) (string, error)
}

var _ Dumper = (*profiling.Recorder)(nil)

// Archiver ships a written dump off the host.
type Archiver interface {
	Archive(ctx context.Context, file string) (string, error)
}

var _ Archiver = (*s3.Client)(nil)

type Option func(*options)

type options struct {
	archiver Archiver
}

// WithArchiver uploads every dump after it is written, bounded by
// FLIGHT_TRACE_ARCHIVE_TIMEOUT.
func WithArchiver(archiver Archiver) Option {
	return func(o *options) {
		o.archiver = archiver
	}
}

// FlightTrace dumps the flight recorder when a request carries
// "X-Debug-Trace: true" or runs longer than FLIGHT_TRACE_LATENCY_THRESHOLD.
// The dump runs after the response is written; its name is attached to the
// request span. A nil recorder turns the middleware into a pass-through.
func FlightTrace(recorder Dumper, log logger.Logger, cfg *config.Config, opts ...Option) func(http.Handler) http.Handler {
	cfg.SetDefault("FLIGHT_TRACE_LATENCY_THRESHOLD", "1s")
	cfg.SetDefault("FLIGHT_TRACE_ARCHIVE_TIMEOUT", "30s")

	threshold := cfg.GetDuration("FLIGHT_TRACE_LATENCY_THRESHOLD")
	archiveTimeout := cfg.GetDuration("FLIGHT_TRACE_ARCHIVE_TIMEOUT")

	conf := &options{}
	for _, opt := range opts {
		opt(conf)
	}

	return func(next http.Handler) http.Handler {
		if recorder == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			latency := time.Since(start)
			if r.Header.Get(DebugHeader) != "true" && latency <= threshold {
				return
			}

			name := uuid.NewString()

			trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("flight_trace.name", name))

			ctx := r.Context()
			method, uri := r.Method, r.RequestURI

			go func() {
				path, err := recorder.Dump(name)
				if err != nil {
					log.WarnWithContext(ctx, "flight recorder dump failed",
						slog.String("error", err.Error()),
					)

					return
				}

				log.InfoWithContext(ctx, "flight recorder dump written",
					slog.String("file", path),
					slog.Duration("latency", latency),
					slog.String("method", method),
					slog.String("uri", uri),
				)

				if conf.archiver == nil {
					return
				}

				archiveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
				defer cancel()

				location, err := conf.archiver.Archive(archiveCtx, path)
				if err != nil {
					log.WarnWithContext(ctx, "flight recorder dump upload failed",
						slog.String("file", path),
						slog.String("error", err.Error()),
					)

					return
				}

				log.InfoWithContext(ctx, "flight recorder dump archived",
					slog.String("location", location),
				)
			}()
		})
	}
}
