/*
Package metrics runs the monitoring endpoints: Prometheus metrics, liveness
and readiness.
*/
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	promExporter "go.opentelemetry.io/otel/exporters/prometheus"
	api "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/exemplar"
	"go.opentelemetry.io/otel/trace"

	"github.com/innotter/stats/config"
	httpserver "github.com/innotter/stats/http/server"
	"github.com/innotter/stats/logger"
	"github.com/innotter/stats/observability/common"
)

type Monitoring struct {
	Handler    *http.ServeMux
	Prometheus *prometheus.Registry
	Metrics    *api.MeterProvider

	health   healthcheck.Handler
	exporter *otlpmetricgrpc.Exporter
	log      logger.Logger
	cfg      *config.Config
}

// New builds the meter provider and the monitoring handler. Nothing listens
// until Serve is called.
func New(ctx context.Context, log logger.Logger, cfg *config.Config) (*Monitoring, func(), error) {
	cfg.SetDefault("SERVICE_NAME", "innotter-stats")
	cfg.SetDefault("SERVICE_VERSION", "dev")
	cfg.SetDefault("OTEL_METRIC_SHUTDOWN_TIMEOUT", "10s")

	monitoring := &Monitoring{
		log: log,
		cfg: cfg,
	}

	if err := monitoring.SetPrometheus(); err != nil {
		return nil, nil, err
	}

	var err error

	monitoring.Metrics, err = monitoring.SetMetrics(ctx)
	if err != nil {
		return nil, nil, err
	}

	monitoring.Handler = monitoring.SetHandler()

	return monitoring, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GetDuration("OTEL_METRIC_SHUTDOWN_TIMEOUT"))
		defer cancel()

		if errShutdown := monitoring.Metrics.Shutdown(shutdownCtx); errShutdown != nil {
			log.ErrorWithContext(shutdownCtx, errShutdown.Error())
		}
	}, nil
}

// SetMetrics - Create a "common" meter provider for metrics
func (m *Monitoring) SetMetrics(ctx context.Context) (*api.MeterProvider, error) {
	m.cfg.SetDefault("OTEL_METRIC_OTLP_ENABLED", false)
	m.cfg.SetDefault("OTEL_METRIC_EXPORT_INTERVAL", "60s")
	m.cfg.SetDefault("OTEL_METRIC_EXPORT_TIMEOUT", "30s")

	res, err := common.NewResource(ctx, m.cfg.GetString("SERVICE_NAME"), m.cfg.GetString("SERVICE_VERSION"))
	if err != nil {
		return nil, err
	}

	prometheusReader, err := promExporter.New(
		promExporter.WithRegisterer(m.Prometheus),
	)
	if err != nil {
		return nil, err
	}

	opts := []api.Option{
		api.WithResource(res),
		api.WithReader(prometheusReader),
		api.WithExemplarFilter(exemplar.TraceBasedFilter),
	}

	// Push to the OpenTelemetry Collector as well, configured by the
	// standard OTEL_EXPORTER_OTLP_* variables.
	if m.cfg.GetBool("OTEL_METRIC_OTLP_ENABLED") {
		m.exporter, err = otlpmetricgrpc.New(ctx)
		if err != nil {
			return nil, err
		}

		opts = append(opts, api.WithReader(api.NewPeriodicReader(
			m.exporter,
			api.WithInterval(m.cfg.GetDuration("OTEL_METRIC_EXPORT_INTERVAL")),
			api.WithTimeout(m.cfg.GetDuration("OTEL_METRIC_EXPORT_TIMEOUT")),
		)))
	}

	provider := api.NewMeterProvider(opts...)

	otel.SetMeterProvider(provider)

	return provider, nil
}

// SetHandler - Create a "common" handler for metrics
func (m *Monitoring) SetHandler() *http.ServeMux {
	handler := http.NewServeMux()

	handler.Handle("/metrics", promhttp.HandlerFor(
		m.Prometheus,
		promhttp.HandlerOpts{
			// Opt into OpenMetrics to support exemplars.
			EnableOpenMetrics: true,

			ErrorHandling: promhttp.ContinueOnError,
		},
	))

	// The health check related metrics are prefixed with the namespace.
	m.health = healthcheck.NewMetricsHandler(m.Prometheus, "stats")

	handler.HandleFunc("/live", m.health.LiveEndpoint)
	handler.HandleFunc("/ready", m.health.ReadyEndpoint)

	return handler
}

// SetPrometheus - Create a new Prometheus registry
func (m *Monitoring) SetPrometheus() error {
	m.Prometheus = prometheus.NewRegistry()

	return errors.Join(
		m.Prometheus.Register(collectors.NewBuildInfoCollector()),
		m.Prometheus.Register(collectors.NewGoCollector()),
		m.Prometheus.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})),
	)
}

// AddReadinessCheck makes /ready fail while check returns an error.
func (m *Monitoring) AddReadinessCheck(name string, check func() error) {
	m.health.AddReadinessCheck(name, check)
}

// AddLivenessCheck makes /live fail while check returns an error.
func (m *Monitoring) AddLivenessCheck(name string, check func() error) {
	m.health.AddLivenessCheck(name, check)
}

// Serve listens on MONITORING_PORT until ctx is done.
func (m *Monitoring) Serve(ctx context.Context, tracer trace.TracerProvider) error {
	m.cfg.SetDefault("MONITORING_PORT", 9090)     // port for Prometheus metrics and health checks
	m.cfg.SetDefault("MONITORING_TIMEOUT", "30s") // per-request timeout of the monitoring server

	serverConfig := httpserver.Config{
		Port:    m.cfg.GetInt("MONITORING_PORT"),
		Timeout: m.cfg.GetDuration("MONITORING_TIMEOUT"),
	}

	server := httpserver.New(ctx, m.Handler, serverConfig, tracer, m.cfg)

	m.log.Info("Run monitoring",
		slog.String("addr", server.Addr),
	)

	return listen(ctx, server)
}

func listen(ctx context.Context, server *http.Server) error {
	errCh := make(chan error, 1)

	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("monitoring server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second) //nolint:mnd // grace period for scrapes in flight
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
