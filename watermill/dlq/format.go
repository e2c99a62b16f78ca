// Package dlq builds and publishes dead-letter messages for events the
// projector gave up on.
package dlq

import (
	"encoding/base64"
	"errors"
	"maps"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
)

// Version of the dead-letter payload layout.
const Version = "1"

var ErrMissingOriginal = errors.New("dlq event missing original message")

// Event describes why a message was dead-lettered.
type Event struct {
	FailedAt    time.Time
	Reason      string
	OriginalMsg *message.Message
	Stacktrace  string
	ServiceName string
}

type eventJSON struct {
	FailedAt    time.Time    `json:"failed_at"`
	Reason      string       `json:"reason"`
	Stacktrace  string       `json:"stacktrace,omitempty"`
	ServiceName string       `json:"service_name,omitempty"`
	Original    originalJSON `json:"original_message"`
}

type originalJSON struct {
	UUID          string            `json:"uuid"`
	Metadata      map[string]string `json:"metadata"`
	Payload       json.RawMessage   `json:"payload,omitempty"`
	PayloadBase64 string            `json:"payload_base64,omitempty"`
}

// Build serializes the event. Metadata of the original message is copied
// with an "original_" prefix so routing information survives.
func Build(event Event) (*message.Message, error) {
	if event.OriginalMsg == nil {
		return nil, ErrMissingOriginal
	}

	if event.FailedAt.IsZero() {
		event.FailedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	msg := message.NewMessage(uuid.NewString(), payload)

	for k, v := range event.OriginalMsg.Metadata {
		msg.Metadata.Set("original_"+k, v)
	}

	msg.Metadata.Set("poison_reason", event.Reason)
	msg.Metadata.Set("service_name", event.ServiceName)
	msg.Metadata.Set("dlq_version", Version)

	return msg, nil
}

// MarshalJSON keeps the original payload inline when it is JSON and base64 otherwise.
func (event Event) MarshalJSON() ([]byte, error) {
	if event.OriginalMsg == nil {
		return nil, ErrMissingOriginal
	}

	original := originalJSON{
		UUID:     event.OriginalMsg.UUID,
		Metadata: map[string]string{},
	}

	maps.Copy(original.Metadata, event.OriginalMsg.Metadata)

	switch {
	case len(event.OriginalMsg.Payload) == 0:
		original.Payload = json.RawMessage("null")
	case json.Valid(event.OriginalMsg.Payload):
		original.Payload = json.RawMessage(event.OriginalMsg.Payload)
	default:
		original.PayloadBase64 = base64.StdEncoding.EncodeToString(event.OriginalMsg.Payload)
	}

	return json.Marshal(eventJSON{
		FailedAt:    event.FailedAt,
		Reason:      event.Reason,
		Stacktrace:  event.Stacktrace,
		ServiceName: event.ServiceName,
		Original:    original,
	})
}
