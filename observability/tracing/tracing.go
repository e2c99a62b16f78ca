/*
Tracing wrapping
*/
package tracing

import (
	"context"
	"log/slog"

	otelpyroscope "github.com/grafana/otel-profiling-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	traceProvider "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/innotter/stats/config"
	"github.com/innotter/stats/logger"
	"github.com/innotter/stats/observability/common"
)

// Config describes the exporter target.
type Config struct {
	ServiceName    string
	ServiceVersion string
	URI            string
}

// New returns the process tracer provider. The W3C trace context and
// baggage propagators are installed even when TRACER_ENABLED is false, so
// trace headers still flow through the broker.
//
//nolint:ireturn // noop and sdk providers share only the interface
func New(ctx context.Context, log logger.Logger, cfg *config.Config) (traceProvider.TracerProvider, func(), error) {
	cfg.SetDefault("TRACER_ENABLED", false)
	cfg.SetDefault("TRACER_URI", "localhost:4317") // Tracing addr:host
	cfg.SetDefault("SERVICE_NAME", "innotter-stats")
	cfg.SetDefault("SERVICE_VERSION", "dev")

	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	if !cfg.GetBool("TRACER_ENABLED") {
		log.Info("Tracing disable")

		return noop.NewTracerProvider(), func() {}, nil
	}

	conf := Config{
		ServiceName:    cfg.GetString("SERVICE_NAME"),
		ServiceVersion: cfg.GetString("SERVICE_VERSION"),
		URI:            cfg.GetString("TRACER_URI"),
	}

	tp, cleanup, err := Init(ctx, conf, log, cfg)
	if err != nil {
		return nil, nil, err
	}

	return tp, cleanup, nil
}

// Init builds an OTLP gRPC exporting provider that samples every root trace.
func Init(ctx context.Context, cnf Config, log logger.Logger, cfg *config.Config) (*trace.TracerProvider, func(), error) {
	res, err := common.NewResource(ctx, cnf.ServiceName, cnf.ServiceVersion)
	if err != nil {
		return nil, nil, err
	}

	tp, err := newTraceProvider(ctx, res, cnf.URI, cfg)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		// Shutdown flushes the remaining spans; ctx may already be done.
		if errShutdown := tp.Shutdown(context.WithoutCancel(ctx)); errShutdown != nil {
			log.Error("Tracing disable",
				slog.String("uri", cnf.URI),
				slog.Any("err", errShutdown),
			)
		}
	}

	log.Info("Tracing enable",
		slog.String("uri", cnf.URI),
	)

	return tp, cleanup, nil
}

func newTraceProvider(ctx context.Context, res *resource.Resource, uri string, cfg *config.Config) (*trace.TracerProvider, error) {
	cfg.SetDefault("TRACING_INITIAL_INTERVAL", "2s")
	cfg.SetDefault("TRACING_MAX_INTERVAL", "30s")
	cfg.SetDefault("TRACING_MAX_ELAPSED_TIME", "1m")

	initialInterval := cfg.GetDuration("TRACING_INITIAL_INTERVAL")

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithEndpoint(uri),
		otlptracegrpc.WithRetry(otlptracegrpc.RetryConfig{
			Enabled:         true,
			InitialInterval: initialInterval,
			MaxInterval:     cfg.GetDuration("TRACING_MAX_INTERVAL"),
			MaxElapsedTime:  cfg.GetDuration("TRACING_MAX_ELAPSED_TIME"),
		}),
	)
	if err != nil {
		return nil, err
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(traceExporter, trace.WithBatchTimeout(initialInterval)),
		trace.WithResource(res),
		trace.WithSampler(trace.ParentBased(trace.AlwaysSample())),
	)

	otel.SetTracerProvider(otelpyroscope.NewTracerProvider(tp))

	return tp, nil
}
