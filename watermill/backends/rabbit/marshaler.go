package rabbit

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/innotter/stats/watermill"
)

// Marshaler maps watermill messages onto AMQP publishings. Metadata travels
// as headers; the value under ContentTypeKey is also written to the
// content_type property, and read back from it when the header is absent,
// so producers that only set content_type are understood.
type Marshaler struct {
	ContentTypeKey string
}

func (m Marshaler) Marshal(msg *message.Message) (amqp.Publishing, error) {
	headers := make(amqp.Table, len(msg.Metadata))
	for k, v := range msg.Metadata {
		headers[k] = v
	}

	return amqp.Publishing{
		Headers:      headers,
		ContentType:  msg.Metadata.Get(m.ContentTypeKey),
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.UUID,
		Timestamp:    time.Now().UTC(),
		Body:         msg.Payload,
	}, nil
}

func (m Marshaler) Unmarshal(delivery amqp.Delivery) (*message.Message, error) {
	id := delivery.MessageId
	if id == "" {
		id = uuid.NewString()
	}

	msg := message.NewMessage(id, delivery.Body)

	for k, v := range delivery.Headers {
		switch value := v.(type) {
		case string:
			msg.Metadata.Set(k, value)
		case []byte:
			msg.Metadata.Set(k, string(value))
		default:
			msg.Metadata.Set(k, fmt.Sprint(value))
		}
	}

	if m.ContentTypeKey != "" && msg.Metadata.Get(m.ContentTypeKey) == "" && delivery.ContentType != "" {
		msg.Metadata.Set(m.ContentTypeKey, delivery.ContentType)
	}

	msg.Metadata.Set(watermill.MetaRoutingKey, delivery.RoutingKey)

	return msg, nil
}
