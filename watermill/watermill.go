/*
Package watermill wires the message router used by the projector and the
publisher used by the producer over a pluggable broker backend.
*/
package watermill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
	wmmid "github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/innotter/stats/config"
	"github.com/innotter/stats/logger"
)

var ErrNilBackend = errors.New("watermill: backend is nil")

// Backend is a broker implementation (RabbitMQ, in-process channel).
type Backend interface {
	Publisher() message.Publisher
	Subscriber() message.Subscriber
	Close() error
}

// HealthChecker is implemented by backends that can report broker reachability.
type HealthChecker interface {
	Check() error
}

// Client bundles the router with the instrumented publisher and subscriber.
type Client struct {
	Router     *message.Router
	Publisher  message.Publisher
	Subscriber message.Subscriber

	log     logger.Logger
	backend Backend
}

// New builds the router and its middleware chain:
// correlation id, tracing, poison queue, metrics, timeout, circuit breaker,
// retry, recoverer. Nil providers fall back to no-op implementations.
func New(
	log logger.Logger,
	cfg *config.Config,
	backend Backend,
	meterProvider metric.MeterProvider,
	tracerProvider trace.TracerProvider,
	options ...Option,
) (*Client, error) {
	if backend == nil {
		return nil, ErrNilBackend
	}

	if meterProvider == nil {
		meterProvider = metricnoop.NewMeterProvider()
	}

	if tracerProvider == nil {
		tracerProvider = tracenoop.NewTracerProvider()
	}

	opts := defaultOptions(cfg)
	for _, opt := range options {
		if opt != nil {
			opt(&opts)
		}
	}

	wmLogger := NewWatermillLogger(log)

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, err
	}

	otelMW := NewOTELMiddleware(tracerProvider)

	metricsMW, err := NewMetricsMiddleware(meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics middleware: %w", err)
	}

	publisher := metricsMW.PublisherWrapper(backend.Publisher(), otelMW)

	router.AddMiddleware(wmmid.CorrelationID)
	router.AddMiddleware(otelMW.HandlerMiddleware())

	if opts.DLQ.Enabled {
		poison, err := NewPoisonMiddleware(log, publisher, opts.DLQ.Topic, opts.ServiceName)
		if err != nil {
			return nil, err
		}

		router.AddMiddleware(poison)
		log.Info("configured poison queue middleware", slog.String("topic", opts.DLQ.Topic))
	}

	router.AddMiddleware(metricsMW.HandlerMiddleware())
	configureResilience(router, log, wmLogger, opts)

	return &Client{
		Router:     router,
		Publisher:  publisher,
		Subscriber: backend.Subscriber(),
		log:        log,
		backend:    backend,
	}, nil
}

// AddHandler subscribes handler to topic. The message is acked when the
// handler returns nil.
func (c *Client) AddHandler(name, topic string, handler message.NoPublishHandlerFunc) *message.Handler {
	return c.Router.AddNoPublisherHandler(name, topic, c.Subscriber, handler)
}

// Run starts the router and blocks until ctx is done or Close is called.
func (c *Client) Run(ctx context.Context) error {
	return c.Router.Run(ctx)
}

// Running is closed once all handlers are subscribed.
func (c *Client) Running() chan struct{} {
	return c.Router.Running()
}

// Check reports broker reachability when the backend supports it.
func (c *Client) Check() error {
	if checker, ok := c.backend.(HealthChecker); ok {
		return checker.Check()
	}

	return nil
}

// Close gracefully closes all resources and collects all errors.
func (c *Client) Close() error {
	var errs *multierror.Error

	if c.Router != nil {
		if err := c.Router.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("failed to close router: %w", err))
		}
	}

	if c.backend != nil {
		if err := c.backend.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("failed to close backend: %w", err))
		}
	}

	return errs.ErrorOrNil()
}
