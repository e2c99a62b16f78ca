/*
Package projector consumes mutation envelopes and mirrors them into the
projection store, one message at a time.
*/
package projector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/innotter/stats/codec"
	"github.com/innotter/stats/config"
	"github.com/innotter/stats/db"
	"github.com/innotter/stats/domain"
	"github.com/innotter/stats/logger"
	"github.com/innotter/stats/watermill"
)

const handlerName = "projector"

var (
	ErrUnknownAckMode = errors.New("unknown ack mode")
	ErrMissingOwner   = errors.New("page has no owner_id")
	ErrNoClient       = errors.New("projector: no message client")
)

// Store is the part of the projection store the projector writes to.
type Store interface {
	Get(ctx context.Context, table string, id int64) (codec.Record, error)
	Put(ctx context.Context, table string, id int64, record codec.Record) error
	Update(ctx context.Context, table string, id int64, patch codec.Patch) error
	Delete(ctx context.Context, table string, id int64) error
}

type Projector struct {
	log        logger.Logger
	store      Store
	client     *watermill.Client
	tracer     trace.Tracer
	events     metric.Int64Counter
	mode       AckMode
	bindingKey string

	once sync.Once
}

// New reads PROJECTOR_ACK_MODE and PROJECTOR_BINDING_KEY from cfg.
// client may be nil when only Apply is used.
func New(
	log logger.Logger,
	cfg *config.Config,
	store Store,
	client *watermill.Client,
	tracerProvider trace.TracerProvider,
	meterProvider metric.MeterProvider,
) (*Projector, error) {
	cfg.SetDefault("PROJECTOR_ACK_MODE", string(AckAuto)) // Select: auto, after_apply

	mode, err := ParseAckMode(cfg.GetString("PROJECTOR_ACK_MODE"))
	if err != nil {
		return nil, err
	}

	if tracerProvider == nil {
		tracerProvider = tracenoop.NewTracerProvider()
	}

	if meterProvider == nil {
		meterProvider = metricnoop.NewMeterProvider()
	}

	events, err := meterProvider.Meter("github.com/innotter/stats/projector").Int64Counter(
		"projector_events_total",
		metric.WithDescription("Envelopes handled by the projector, by method and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create projector counter: %w", err)
	}

	return &Projector{
		log:        log,
		store:      store,
		client:     client,
		tracer:     tracerProvider.Tracer("github.com/innotter/stats/projector"),
		events:     events,
		mode:       mode,
		bindingKey: BindingKey(cfg),
	}, nil
}

// BindingKey is the routing pattern the projector queue is bound with.
func BindingKey(cfg *config.Config) string {
	cfg.SetDefault("PROJECTOR_BINDING_KEY", "#")

	return cfg.GetString("PROJECTOR_BINDING_KEY")
}

// Mode returns the configured acknowledgement mode.
func (p *Projector) Mode() AckMode {
	return p.mode
}

// Apply routes env to the store by its method.
func (p *Projector) Apply(ctx context.Context, env domain.Envelope) error {
	ctx, span := p.tracer.Start(ctx, "projector.apply",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("method", env.Method.String())),
	)
	defer span.End()

	err := p.apply(ctx, env)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return err
}

func (p *Projector) apply(ctx context.Context, env domain.Envelope) error {
	if err := env.Validate(); err != nil {
		return err
	}

	id, err := env.ID()
	if err != nil {
		return err
	}

	table := env.Method.Entity.Table()

	switch env.Method.Op {
	case domain.OpCreate:
		if env.Method.Entity == domain.EntityPage {
			return p.createPage(ctx, env, id)
		}

		record, err := codec.Encode(env.Payload)
		if err != nil {
			return err
		}

		return p.store.Put(ctx, table, id, record)
	case domain.OpUpdate, domain.OpLike:
		patch, err := codec.EncodePatch(env.Payload)
		if err != nil {
			return err
		}

		return p.store.Update(ctx, table, id, patch)
	case domain.OpDelete:
		return p.store.Delete(ctx, table, id)
	default:
		return fmt.Errorf("%w: %s", domain.ErrUnknownMethod, env.Method)
	}
}

// createPage stores the page and, when the owner is not projected yet,
// a user built from the owner_ attributes. Both records are encoded before
// anything is written.
func (p *Projector) createPage(ctx context.Context, env domain.Envelope, id int64) error {
	owner := env.OwnerAttributes()

	ownerID, err := domain.ToInt64(owner[domain.PrimaryKey])
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMissingOwner, err)
	}

	ownerRecord, err := codec.Encode(owner)
	if err != nil {
		return err
	}

	page, err := codec.Encode(env.Payload)
	if err != nil {
		return err
	}

	users := domain.EntityUser.Table()

	_, err = p.store.Get(ctx, users, ownerID)
	switch {
	case errors.Is(err, db.ErrNotFound):
		if err := p.store.Put(ctx, users, ownerID, ownerRecord); err != nil {
			return err
		}

		p.log.DebugWithContext(ctx, "owner materialized", slog.Int64("user_id", ownerID))
	case err != nil:
		return err
	}

	return p.store.Put(ctx, domain.EntityPage.Table(), id, page)
}

// Handle decodes and applies one message. In auto mode every failure is
// logged and swallowed so the message is acked; in after_apply mode it is
// returned to the router.
func (p *Projector) Handle(msg *message.Message) error {
	ctx := msg.Context()
	tag := msg.Metadata.Get(domain.MethodMetadataKey)

	err := p.handle(ctx, tag, msg.Payload)

	outcome := "applied"
	if err != nil {
		outcome = "failed"
	}

	p.events.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", tag),
		attribute.String("outcome", outcome),
	))

	if err == nil {
		return nil
	}

	fields := []slog.Attr{
		slog.String("message_uuid", msg.UUID),
		slog.String("method", tag),
		slog.String("error", err.Error()),
	}

	if p.mode == AckAuto {
		p.log.ErrorWithContext(ctx, "event dropped", fields...)

		return nil
	}

	p.log.WarnWithContext(ctx, "event not applied", fields...)

	return err
}

func (p *Projector) handle(ctx context.Context, tag string, body []byte) error {
	env, err := domain.DecodeEnvelope(tag, body)
	if err != nil {
		return err
	}

	return p.Apply(ctx, env)
}

// Register subscribes Handle to the binding key. It is safe to call more
// than once.
func (p *Projector) Register() error {
	if p.client == nil {
		return ErrNoClient
	}

	p.once.Do(func() {
		p.client.AddHandler(handlerName, p.bindingKey, p.Handle)
	})

	return nil
}

// Run registers the handler and blocks until ctx is done or Stop is called.
func (p *Projector) Run(ctx context.Context) error {
	if err := p.Register(); err != nil {
		return err
	}

	p.log.Info("projector started",
		slog.String("binding_key", p.bindingKey),
		slog.String("ack_mode", string(p.mode)),
	)

	return p.client.Run(ctx)
}

// Stop closes the router and the broker backend. A message being applied
// is not rolled back.
func (p *Projector) Stop() error {
	if p.client == nil {
		return ErrNoClient
	}

	return p.client.Close()
}
