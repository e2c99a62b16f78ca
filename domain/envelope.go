package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/segmentio/encoding/json"
)

// PrimaryKey is the attribute every projected record is keyed by.
const PrimaryKey = "id"

// OwnerPrefix marks the denormalised owner attributes carried by create_pages.
const OwnerPrefix = "owner_"

// Envelope is one operation plus its payload as published on the exchange.
type Envelope struct {
	Method  Method
	Payload map[string]any
}

// ID returns the payload primary key.
func (e Envelope) ID() (int64, error) {
	raw, ok := e.Payload[PrimaryKey]
	if !ok {
		return 0, ErrMissingID
	}

	id, err := ToInt64(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMissingID, err)
	}

	return id, nil
}

// Validate checks the method tag and the presence of the id.
func (e Envelope) Validate() error {
	if !e.Method.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownMethod, e.Method)
	}

	_, err := e.ID()

	return err
}

// OwnerAttributes returns the owner_* fields with the prefix stripped,
// so owner_id becomes id.
func (e Envelope) OwnerAttributes() map[string]any {
	owner := make(map[string]any)

	for field, value := range e.Payload {
		if name, ok := strings.CutPrefix(field, OwnerPrefix); ok && name != "" {
			owner[name] = value
		}
	}

	return owner
}

// ToInt64 converts the integer shapes a decoded payload can carry.
func ToInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint32:
		return int64(v), nil
	case json.Number:
		return strconv.ParseInt(v.String(), 10, 64)
	case string:
		return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("non-integral number %v", v)
		}

		return int64(v), nil
	default:
		return 0, fmt.Errorf("unsupported id type %T", value)
	}
}
