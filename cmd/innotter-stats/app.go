package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/innotter/stats/config"
	"github.com/innotter/stats/db"
	"github.com/innotter/stats/domain"
	"github.com/innotter/stats/logger"
	mqrabbit "github.com/innotter/stats/mq/rabbit"
	"github.com/innotter/stats/observability/metrics"
	"github.com/innotter/stats/observability/profiling"
	"github.com/innotter/stats/observability/tracing"
	"github.com/innotter/stats/projector"
	"github.com/innotter/stats/watermill"
	"github.com/innotter/stats/watermill/backends/gochannel"
	"github.com/innotter/stats/watermill/backends/kafka"
	rabbitbackend "github.com/innotter/stats/watermill/backends/rabbit"
)

const (
	mqRabbit    = "rabbitmq"
	mqKafka     = "kafka"
	mqGoChannel = "gochannel"
)

var ErrUnknownMQType = errors.New("unknown MQ_TYPE")

// app holds the dependencies shared by every command.
type app struct {
	log        logger.Logger
	cfg        *config.Config
	tracer     trace.TracerProvider
	monitoring *metrics.Monitoring
	store      *db.Store

	cleanups []func()
}

func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, logCleanup, err := logger.NewDefault(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &app{log: log, cfg: cfg}
	a.onClose(logCleanup)

	a.tracer, err = a.initTracing(ctx)
	if err != nil {
		a.close()

		return nil, err
	}

	monitoring, monitoringCleanup, err := metrics.New(ctx, log, cfg)
	if err != nil {
		a.close()

		return nil, fmt.Errorf("init metrics: %w", err)
	}

	a.monitoring = monitoring
	a.onClose(monitoringCleanup)

	profiling.Start(ctx, log, cfg)

	a.store, err = db.New(ctx, log, a.tracer, monitoring.Metrics, cfg)
	if err != nil {
		a.close()

		return nil, fmt.Errorf("init store: %w", err)
	}

	a.onClose(func() {
		if errClose := a.store.Close(); errClose != nil {
			log.Error("failed to close store", slog.String("error", errClose.Error()))
		}
	})

	monitoring.AddReadinessCheck("store", func() error {
		return a.store.Ping(ctx)
	})

	return a, nil
}

func (a *app) initTracing(ctx context.Context) (trace.TracerProvider, error) {
	tp, cleanup, err := tracing.New(ctx, a.log, a.cfg)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	a.onClose(cleanup)

	return tp, nil
}

// messaging builds the router and publisher over MQ_TYPE. Broker
// reachability is reported through the readiness endpoint.
func (a *app) messaging(ctx context.Context, options ...watermill.Option) (*watermill.Client, error) {
	a.cfg.SetDefault("MQ_TYPE", mqRabbit) // Select: rabbitmq, kafka, gochannel

	var backend watermill.Backend

	switch mqType := strings.ToLower(a.cfg.GetString("MQ_TYPE")); mqType {
	case mqRabbit:
		conn := mqrabbit.New(a.log, a.cfg)
		if err := conn.Connect(ctx); err != nil {
			a.log.Warn("rabbitmq unavailable at startup, reconnecting in background",
				slog.String("error", err.Error()),
			)
		}

		go conn.Supervise(ctx)

		a.onClose(func() { _ = conn.Close() })
		a.monitoring.AddReadinessCheck("broker", conn.Check)

		backend = rabbitbackend.New(a.log, a.cfg, conn)
	case mqKafka:
		kafkaBackend, err := kafka.New(a.log, a.cfg, routedKeys()...)
		if err != nil {
			return nil, fmt.Errorf("init kafka: %w", err)
		}

		backend = kafkaBackend
	case mqGoChannel:
		backend = gochannel.New(a.log, projector.BindingKey(a.cfg), routedKeys()...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMQType, mqType)
	}

	client, err := watermill.New(a.log, a.cfg, backend, a.monitoring.Metrics, a.tracer, options...)
	if err != nil {
		_ = backend.Close()

		return nil, fmt.Errorf("init messaging: %w", err)
	}

	a.monitoring.AddReadinessCheck("messaging", client.Check)

	return client, nil
}

// routedKeys are the default routing keys of the producer.
func routedKeys() []string {
	keys := make([]string, 0, len(domain.Methods()))
	for _, method := range domain.Methods() {
		if table := method.Entity.Table(); !slices.Contains(keys, table) {
			keys = append(keys, table)
		}
	}

	return keys
}

func (a *app) onClose(fn func()) {
	a.cleanups = append(a.cleanups, fn)
}

// close runs the cleanups in reverse order.
func (a *app) close() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}

	a.cleanups = nil
}
