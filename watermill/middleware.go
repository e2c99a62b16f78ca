package watermill

import (
	"context"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	wmmid "github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/innotter/stats/logger"
)

// configureResilience adds timeout, circuit breaker and retry, outermost
// first, followed by the recoverer so panics are retried like errors.
func configureResilience(router *message.Router, log logger.Logger, wmLogger watermill.LoggerAdapter, opts Options) {
	if opts.Timeout.Enabled {
		router.AddMiddleware(wmmid.Timeout(opts.Timeout.Duration))
		log.Info("configured timeout middleware",
			slog.String("duration", opts.Timeout.Duration.String()),
		)
	}

	if opts.CircuitBreaker.Enabled {
		cb := wmmid.NewCircuitBreaker(opts.CircuitBreaker.Settings)
		router.AddMiddleware(cb.Middleware)
		log.Info("configured circuit breaker middleware",
			slog.String("name", opts.CircuitBreaker.Settings.Name),
			slog.String("timeout", opts.CircuitBreaker.Settings.Timeout.String()),
			slog.Uint64("max_requests", uint64(opts.CircuitBreaker.Settings.MaxRequests)),
		)
	}

	if opts.Retry.Enabled {
		retry := wmmid.Retry{
			MaxRetries:          opts.Retry.MaxRetries,
			InitialInterval:     opts.Retry.InitialInterval,
			MaxInterval:         opts.Retry.MaxInterval,
			Multiplier:          opts.Retry.Multiplier,
			MaxElapsedTime:      opts.Retry.MaxElapsedTime,
			RandomizationFactor: opts.Retry.Jitter,
			ResetContextOnRetry: opts.Retry.ResetContextOnRetry,
			Logger:              wmLogger,
		}
		router.AddMiddleware(retry.Middleware)

		log.Info("configured retry middleware",
			slog.Int("max_retries", opts.Retry.MaxRetries),
			slog.String("initial_interval", opts.Retry.InitialInterval.String()),
			slog.String("max_interval", opts.Retry.MaxInterval.String()),
		)
	}

	router.AddMiddleware(wmmid.Recoverer)
}

// MetricsMiddleware counts and times published and consumed messages.
type MetricsMiddleware struct {
	published metric.Int64Counter
	consumed  metric.Int64Counter
	failed    metric.Int64Counter

	pubLatency metric.Float64Histogram
	conLatency metric.Float64Histogram
}

func NewMetricsMiddleware(provider metric.MeterProvider) (*MetricsMiddleware, error) {
	m := provider.Meter("github.com/innotter/stats/watermill")

	published, err := m.Int64Counter("watermill_messages_published_total",
		metric.WithDescription("Total number of messages published"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	consumed, err := m.Int64Counter("watermill_messages_consumed_total",
		metric.WithDescription("Total number of messages handled successfully"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	failed, err := m.Int64Counter("watermill_messages_failed_total",
		metric.WithDescription("Total number of failed publish or consume attempts"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	pubLatency, err := m.Float64Histogram("watermill_publish_latency_seconds",
		metric.WithDescription("Latency of message publishing in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	conLatency, err := m.Float64Histogram("watermill_consume_latency_seconds",
		metric.WithDescription("Latency of message handling in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &MetricsMiddleware{
		published:  published,
		consumed:   consumed,
		failed:     failed,
		pubLatency: pubLatency,
		conLatency: conLatency,
	}, nil
}

func (m *MetricsMiddleware) HandlerMiddleware() message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			start := time.Now()
			ctx := ensureContext(msg.Context())
			topic := msg.Metadata.Get(MetaRoutingKey)

			msgs, err := h(msg)
			if err != nil {
				m.failed.Add(ctx, 1, metric.WithAttributes(
					attribute.String("topic", topic),
					attribute.String("stage", "consume"),
				))

				return msgs, err
			}

			attrs := metric.WithAttributes(attribute.String("topic", topic))
			m.consumed.Add(ctx, 1, attrs)
			m.conLatency.Record(ctx, time.Since(start).Seconds(), attrs)

			return msgs, nil
		}
	}
}

// PublisherWrapper adds a producer span, trace propagation and metrics to pub.
func (m *MetricsMiddleware) PublisherWrapper(pub message.Publisher, otelMW *OTelMiddleware) message.Publisher {
	return &publisherWrapper{
		pub:     pub,
		metrics: m,
		otel:    otelMW,
	}
}

type publisherWrapper struct {
	pub     message.Publisher
	metrics *MetricsMiddleware
	otel    *OTelMiddleware
}

func (pw *publisherWrapper) Publish(topic string, msgs ...*message.Message) error {
	ctx := context.Background()
	if len(msgs) > 0 {
		ctx = ensureContext(msgs[0].Context())
	}

	start := time.Now()

	ctx, span := pw.otel.tracer.Start(ctx, "watermill.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attribute.String("messaging.destination", topic)),
	)
	defer span.End()

	for _, msg := range msgs {
		msg.SetContext(ctx)
		InjectTrace(ctx, msg)
	}

	err := pw.pub.Publish(topic, msgs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		pw.metrics.failed.Add(ctx, 1, metric.WithAttributes(
			attribute.String("topic", topic),
			attribute.String("stage", "publish"),
		))

		return err
	}

	attrs := metric.WithAttributes(attribute.String("topic", topic))
	pw.metrics.published.Add(ctx, int64(len(msgs)), attrs)
	pw.metrics.pubLatency.Record(ctx, time.Since(start).Seconds(), attrs)

	return nil
}

func (pw *publisherWrapper) Close() error {
	return pw.pub.Close()
}
