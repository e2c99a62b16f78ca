// Package kafka carries the exchange over a single Kafka topic.
//
// Kafka has no topic exchange, so every routed key is published to
// MQ_KAFKA_TOPIC with the key in the routing_key header and used as the
// partition key. A subscription to a binding pattern reads that topic and
// acks, without delivering, the messages whose routing key does not match.
// Topics outside the routed keys (dead letters) are published and consumed
// as they are.
package kafka

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	wmkafka "github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/hashicorp/go-multierror"

	"github.com/innotter/stats/config"
	"github.com/innotter/stats/logger"
	"github.com/innotter/stats/watermill"
)

// Backend satisfies watermill.Backend.
type Backend struct {
	pub    message.Publisher
	sub    message.Subscriber
	topic  string
	routed []string
}

// New connects the publisher and the consumer group.
func New(log logger.Logger, cfg *config.Config, routed ...string) (*Backend, error) {
	conf, err := loadSettings(cfg)
	if err != nil {
		return nil, err
	}

	wmLogger := watermill.NewWatermillLogger(log)
	marshaler := wmkafka.NewWithPartitioningMarshaler(func(_ string, msg *message.Message) (string, error) {
		return msg.Metadata.Get(watermill.MetaRoutingKey), nil
	})

	pub, err := wmkafka.NewPublisher(wmkafka.PublisherConfig{
		Brokers:               conf.brokers,
		Marshaler:             marshaler,
		OverwriteSaramaConfig: conf.publisherSarama,
		OTELEnabled:           conf.enableOTEL,
	}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("create kafka publisher: %w", err)
	}

	sub, err := wmkafka.NewSubscriber(wmkafka.SubscriberConfig{
		Brokers:               conf.brokers,
		Unmarshaler:           marshaler,
		OverwriteSaramaConfig: conf.subscriberSarama,
		ConsumerGroup:         conf.consumerGroup,
		NackResendSleep:       conf.nackSleep,
		ReconnectRetrySleep:   conf.reconnectSleep,
		OTELEnabled:           conf.enableOTEL,
	}, wmLogger)
	if err != nil {
		_ = pub.Close()

		return nil, fmt.Errorf("create kafka subscriber: %w", err)
	}

	return NewWithTransport(pub, sub, conf.topic, routed...), nil
}

// NewWithTransport applies the routing over an existing publisher and
// subscriber. With no routed keys every topic goes to topic.
func NewWithTransport(pub message.Publisher, sub message.Subscriber, topic string, routed ...string) *Backend {
	return &Backend{pub: pub, sub: sub, topic: topic, routed: routed}
}

func (b *Backend) Publisher() message.Publisher {
	return &publisher{backend: b}
}

func (b *Backend) Subscriber() message.Subscriber {
	return &subscriber{backend: b}
}

// Close stops the publisher and the consumer group, joining all errors.
func (b *Backend) Close() error {
	var errs *multierror.Error

	if err := b.pub.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("close publisher: %w", err))
	}

	if err := b.sub.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("close subscriber: %w", err))
	}

	return errs.ErrorOrNil()
}

// isRouted reports whether key, a routing key or a binding pattern, lives
// on the shared topic.
func (b *Backend) isRouted(key string) bool {
	if len(b.routed) == 0 {
		return true
	}

	for _, routed := range b.routed {
		if routed == key || watermill.MatchRoutingKey(key, routed) {
			return true
		}
	}

	return false
}

type publisher struct {
	backend *Backend
}

func (p *publisher) Publish(topic string, msgs ...*message.Message) error {
	destination := topic
	if p.backend.isRouted(topic) {
		destination = p.backend.topic
	}

	for _, msg := range msgs {
		msg.Metadata.Set(watermill.MetaRoutingKey, topic)
	}

	return p.backend.pub.Publish(destination, msgs...)
}

// Close is a no-op; the backend owns the producer.
func (*publisher) Close() error {
	return nil
}

type subscriber struct {
	backend *Backend
}

func (s *subscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if !s.backend.isRouted(topic) {
		in, err := s.backend.sub.Subscribe(ctx, topic)
		if err != nil {
			return nil, err
		}

		return relay(ctx, in, topic, false), nil
	}

	in, err := s.backend.sub.Subscribe(ctx, s.backend.topic)
	if err != nil {
		return nil, err
	}

	return relay(ctx, in, topic, true), nil
}

// Close is a no-op; the backend owns the consumer group.
func (*subscriber) Close() error {
	return nil
}

// relay forwards messages from in, stamping the subscribed topic. With
// filter set, messages whose routing key does not match pattern are acked
// and dropped.
func relay(ctx context.Context, in <-chan *message.Message, pattern string, filter bool) <-chan *message.Message {
	out := make(chan *message.Message)

	go func() {
		defer close(out)

		for msg := range in {
			if filter && !watermill.MatchRoutingKey(pattern, msg.Metadata.Get(watermill.MetaRoutingKey)) {
				msg.Ack()

				continue
			}

			msg.Metadata.Set(watermill.MetaReceivedTopic, pattern)

			select {
			case out <- msg:
			case <-ctx.Done():
				msg.Nack()

				return
			}
		}
	}()

	return out
}
