/*
Package rabbit is the AMQP backend. The producer publishes to a durable
topic exchange with the entity table as routing key; the projector
consumes one durable queue bound to that exchange. Both sides share the
supervised connection from mq/rabbit.
*/
package rabbit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/innotter/stats/config"
	"github.com/innotter/stats/logger"
	mqrabbit "github.com/innotter/stats/mq/rabbit"
	"github.com/innotter/stats/watermill"
)

var ErrClosed = errors.New("rabbit backend closed")

type Backend struct {
	conn       *mqrabbit.Connection
	publisher  *publisher
	subscriber *subscriber
}

var _ watermill.HealthChecker = (*Backend)(nil)

func New(log logger.Logger, cfg *config.Config, conn *mqrabbit.Connection) *Backend {
	return NewWithConfig(log, Load(cfg), conn)
}

func NewWithConfig(log logger.Logger, conf Config, conn *mqrabbit.Connection) *Backend {
	marshaler := Marshaler{ContentTypeKey: conf.ContentTypeKey}

	return &Backend{
		conn: conn,
		publisher: &publisher{
			conn:      conn,
			config:    conf,
			marshaler: marshaler,
		},
		subscriber: &subscriber{
			log:       log,
			conn:      conn,
			config:    conf,
			marshaler: marshaler,
			closing:   make(chan struct{}),
		},
	}
}

func (b *Backend) Publisher() message.Publisher {
	return b.publisher
}

func (b *Backend) Subscriber() message.Subscriber {
	return b.subscriber
}

// Check reports whether the broker connection is up.
func (b *Backend) Check() error {
	return b.conn.Check()
}

// Close stops consumers and the publishing channel. The connection is
// owned by the caller.
func (b *Backend) Close() error {
	return errors.Join(b.subscriber.Close(), b.publisher.Close())
}

func declareExchange(ch *amqp.Channel, name string) error {
	return ch.ExchangeDeclare(name, amqp.ExchangeTopic, true, false, false, false, nil)
}

// publisher opens its channel lazily and never waits for the broker:
// while disconnected Publish fails fast with mq/rabbit.ErrNotConnected.
type publisher struct {
	conn      *mqrabbit.Connection
	config    Config
	marshaler Marshaler

	mu     sync.Mutex
	ch     *amqp.Channel
	closed bool
}

func (p *publisher) Publish(topic string, msgs ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	ch, err := p.channel()
	if err != nil {
		return err
	}

	for _, msg := range msgs {
		publishing, err := p.marshaler.Marshal(msg)
		if err != nil {
			return err
		}

		ctx := msg.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		if err := ch.PublishWithContext(ctx, p.config.Exchange, topic, false, false, publishing); err != nil {
			_ = ch.Close()
			p.ch = nil

			return err
		}
	}

	return nil
}

// channel returns the open publishing channel. Callers hold mu.
func (p *publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return nil, err
	}

	if err := declareExchange(ch, p.config.Exchange); err != nil {
		_ = ch.Close()

		return nil, err
	}

	p.ch = ch

	return ch, nil
}

func (p *publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true

	if p.ch == nil || p.ch.IsClosed() {
		return nil
	}

	err := p.ch.Close()
	p.ch = nil

	return err
}

// subscriber consumes the configured queue. The topic passed to Subscribe
// is the binding key. Consumption survives reconnects: when the delivery
// channel closes it waits for the connection and declares everything again.
type subscriber struct {
	log       logger.Logger
	conn      *mqrabbit.Connection
	config    Config
	marshaler Marshaler

	wg        sync.WaitGroup
	closing   chan struct{}
	closeOnce sync.Once
}

func (s *subscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	select {
	case <-s.closing:
		return nil, ErrClosed
	default:
	}

	out := make(chan *message.Message)

	s.wg.Add(1)

	go s.consume(ctx, topic, out)

	return out, nil
}

func (s *subscriber) consume(ctx context.Context, bindingKey string, out chan<- *message.Message) {
	defer s.wg.Done()
	defer close(out)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-s.closing:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		ch, err := s.conn.WaitChannel(ctx)
		if err != nil {
			return
		}

		deliveries, err := s.setup(ctx, ch, bindingKey)
		if err != nil {
			s.log.WarnWithContext(ctx, "rabbitmq consumer setup failed",
				slog.String("queue", s.config.Queue),
				slog.String("error", err.Error()),
			)
			_ = ch.Close()

			select {
			case <-ctx.Done():
				return
			case <-time.After(s.conn.ReconnectDelay()):
			}

			continue
		}

		s.log.InfoWithContext(ctx, "consuming",
			slog.String("exchange", s.config.Exchange),
			slog.String("queue", s.config.Queue),
			slog.String("binding_key", bindingKey),
		)

		stopped := s.drain(ctx, deliveries, out)

		if !ch.IsClosed() {
			_ = ch.Close()
		}

		if stopped {
			return
		}
	}
}

func (s *subscriber) setup(ctx context.Context, ch *amqp.Channel, bindingKey string) (<-chan amqp.Delivery, error) {
	if err := declareExchange(ch, s.config.Exchange); err != nil {
		return nil, err
	}

	if _, err := ch.QueueDeclare(s.config.Queue, true, false, false, false, nil); err != nil {
		return nil, err
	}

	if err := ch.QueueBind(s.config.Queue, bindingKey, s.config.Exchange, false, nil); err != nil {
		return nil, err
	}

	if err := ch.Qos(s.config.Prefetch, 0, false); err != nil {
		return nil, err
	}

	return ch.ConsumeWithContext(ctx, s.config.Queue, "", false, false, false, false, nil)
}

// drain forwards deliveries one at a time and settles each before taking
// the next. It returns true when consumption must stop for good.
func (s *subscriber) drain(ctx context.Context, deliveries <-chan amqp.Delivery, out chan<- *message.Message) bool {
	for {
		var (
			delivery amqp.Delivery
			ok       bool
		)

		select {
		case <-ctx.Done():
			return true
		case delivery, ok = <-deliveries:
			if !ok {
				return ctx.Err() != nil
			}
		}

		msg, err := s.marshaler.Unmarshal(delivery)
		if err != nil {
			_ = delivery.Nack(false, false)

			continue
		}

		msg.Metadata.Set(watermill.MetaReceivedTopic, s.config.Queue)

		msgCtx, cancel := context.WithCancel(ctx)
		msg.SetContext(msgCtx)

		select {
		case out <- msg:
		case <-ctx.Done():
			cancel()
			_ = delivery.Nack(false, true)

			return true
		}

		select {
		case <-msg.Acked():
			_ = delivery.Ack(false)
		case <-msg.Nacked():
			_ = delivery.Nack(false, true)
		case <-ctx.Done():
			cancel()
			_ = delivery.Nack(false, true)

			return true
		}

		cancel()
	}
}

func (s *subscriber) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)
	})

	s.wg.Wait()

	return nil
}
