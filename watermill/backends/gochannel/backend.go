// Package gochannel is an in-process backend for tests and single-binary
// local runs. It behaves like one queue bound to a topic exchange with the
// queue name as binding pattern: a publish to a routed key matching the
// pattern lands on the queue topic, a routed key that does not match is
// dropped as the exchange would, and other topics (dead letters) are
// delivered as is.
// Publish returns once the subscriber acked, which keeps delivery ordered.
package gochannel

import (
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/innotter/stats/logger"
	"github.com/innotter/stats/watermill"
)

type Backend struct {
	pubsub *gochannel.GoChannel
	queue  string
	routed map[string]struct{}
}

// New creates the backend. Subscribers of the routed keys must subscribe
// to queue. With no routed keys every topic is treated as routed.
func New(log logger.Logger, queue string, routed ...string) *Backend {
	keys := make(map[string]struct{}, len(routed))
	for _, key := range routed {
		keys[key] = struct{}{}
	}

	return &Backend{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            64,
			Persistent:                     true,
			BlockPublishUntilSubscriberAck: true,
		}, watermill.NewWatermillLogger(log)),
		queue:  queue,
		routed: keys,
	}
}

func (b *Backend) Publisher() message.Publisher {
	return &publisher{backend: b}
}

func (b *Backend) Subscriber() message.Subscriber {
	return b.pubsub
}

func (b *Backend) Close() error {
	return b.pubsub.Close()
}

// destination resolves where a publish to topic goes. ok is false when
// topic is routed but the queue's binding pattern does not match it.
func (b *Backend) destination(topic string) (string, bool) {
	if _, routed := b.routed[topic]; !routed && len(b.routed) > 0 {
		return topic, true
	}

	if !watermill.MatchRoutingKey(b.queue, topic) {
		return "", false
	}

	return b.queue, true
}

type publisher struct {
	backend *Backend
}

func (p *publisher) Publish(topic string, msgs ...*message.Message) error {
	destination, ok := p.backend.destination(topic)
	if !ok {
		return nil
	}

	for _, msg := range msgs {
		msg.Metadata.Set(watermill.MetaRoutingKey, topic)
		msg.Metadata.Set(watermill.MetaReceivedTopic, destination)
	}

	return p.backend.pubsub.Publish(destination, msgs...)
}

// Close is a no-op; the backend owns the channel.
func (*publisher) Close() error {
	return nil
}
