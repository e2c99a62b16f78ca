package watermill

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/innotter/stats/logger"
	"github.com/innotter/stats/watermill/dlq"
)

// DefaultDLQTopic receives poisoned messages when no topic is configured
// and the message carries no routing key.
const DefaultDLQTopic = "stats.dlq"

var ErrNilPublisher = errors.New("watermill: poison middleware requires a publisher")

type originalMessageCtxKey struct{}

// NewPoisonMiddleware acks a message whose handler kept failing and
// forwards it to the dead-letter topic. An empty dlqTopic derives
// "<routing key>.dlq" from the message.
func NewPoisonMiddleware(log logger.Logger, publisher message.Publisher, dlqTopic, serviceName string) (message.HandlerMiddleware, error) {
	if publisher == nil {
		return nil, ErrNilPublisher
	}

	poisonTopic := dlqTopic
	if poisonTopic == "" {
		poisonTopic = DefaultDLQTopic
	}

	poisonMW, err := middleware.PoisonQueue(&poisonPublisher{
		log:         log,
		topic:       dlqTopic,
		publisher:   publisher,
		serviceName: serviceName,
	}, poisonTopic)
	if err != nil {
		return nil, fmt.Errorf("poison middleware: %w", err)
	}

	return func(h message.HandlerFunc) message.HandlerFunc {
		return poisonMW(func(msg *message.Message) ([]*message.Message, error) {
			ctx := context.WithValue(ensureContext(msg.Context()), originalMessageCtxKey{}, snapshotMessage(msg))
			msg.SetContext(ctx)

			return h(msg)
		})
	}, nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}

	return context.Background()
}

// snapshotMessage copies msg before handlers get a chance to mutate it.
func snapshotMessage(msg *message.Message) *message.Message {
	cloned := msg.Copy()
	cloned.SetContext(msg.Context())

	return cloned
}

type poisonPublisher struct {
	log         logger.Logger
	topic       string
	publisher   message.Publisher
	serviceName string
}

func (p *poisonPublisher) Publish(_ string, msgs ...*message.Message) error {
	for _, poisoned := range msgs {
		ctx := ensureContext(poisoned.Context())

		original, _ := ctx.Value(originalMessageCtxKey{}).(*message.Message)
		if original == nil {
			original = snapshotMessage(poisoned)
		}

		event := dlq.Event{
			FailedAt:    time.Now().UTC(),
			Reason:      poisoned.Metadata.Get(middleware.ReasonForPoisonedKey),
			OriginalMsg: original,
			Stacktrace:  string(debug.Stack()),
			ServiceName: p.serviceName,
		}

		if event.Reason == "" {
			event.Reason = "handler returned error"
		}

		if err := dlq.Publish(ctx, p.log, p.publisher, p.resolveTopic(poisoned), event); err != nil {
			return err
		}
	}

	return nil
}

func (p *poisonPublisher) Close() error {
	return p.publisher.Close()
}

func (p *poisonPublisher) resolveTopic(msg *message.Message) string {
	if p.topic != "" {
		return p.topic
	}

	if key := msg.Metadata.Get(MetaRoutingKey); key != "" {
		return key + ".dlq"
	}

	return DefaultDLQTopic
}
