package dlq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/innotter/stats/logger"
)

var (
	ErrNilPublisher = errors.New("dlq publisher is nil")
	ErrEmptyTopic   = errors.New("dlq topic is empty")
)

// Publish builds the dead-letter message and sends it to topic.
func Publish(ctx context.Context, log logger.Logger, publisher message.Publisher, topic string, event Event) error {
	if publisher == nil {
		return ErrNilPublisher
	}

	if topic == "" {
		return ErrEmptyTopic
	}

	msg, err := Build(event)
	if err != nil {
		return fmt.Errorf("build dlq message: %w", err)
	}

	msg.SetContext(ctx)
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(msg.Metadata))

	if err := publisher.Publish(topic, msg); err != nil {
		log.ErrorWithContext(ctx, "failed to publish dead letter",
			slog.String("topic", topic),
			slog.String("reason", event.Reason),
			slog.String("message_id", event.OriginalMsg.UUID),
			slog.String("error", err.Error()),
		)

		return fmt.Errorf("publish dlq message: %w", err)
	}

	log.WarnWithContext(ctx, "message dead-lettered",
		slog.String("topic", topic),
		slog.String("reason", event.Reason),
		slog.String("message_id", event.OriginalMsg.UUID),
	)

	return nil
}
