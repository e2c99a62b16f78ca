package domain

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/segmentio/encoding/json"
)

// MethodMetadataKey is the message metadata entry holding the operation tag.
const MethodMetadataKey = "method"

// ErrInvalidPayload is returned for a body that is not a flat JSON object.
var ErrInvalidPayload = errors.New("invalid payload")

// DecodeEnvelope parses the wire form of an event: the operation tag and
// a JSON object body. Numbers are kept as json.Number so ids survive intact.
func DecodeEnvelope(tag string, body []byte) (Envelope, error) {
	method, err := ParseMethod(tag)
	if err != nil {
		return Envelope{}, err
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	if payload == nil {
		return Envelope{}, fmt.Errorf("%w: empty body", ErrInvalidPayload)
	}

	return Envelope{Method: method, Payload: payload}, nil
}

// Body renders the payload as JSON.
func (e Envelope) Body() ([]byte, error) {
	return json.Marshal(e.Payload)
}
