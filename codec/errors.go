package codec

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidObjectType is matched by every *InvalidObjectTypeError.
	ErrInvalidObjectType = errors.New("unsupported type")

	// ErrInvalidValue is returned for a malformed stored value.
	ErrInvalidValue = errors.New("invalid typed value")
)

// InvalidObjectTypeError reports a payload field whose Go type has no tag.
type InvalidObjectTypeError struct {
	Field string
	Type  string
}

func (e *InvalidObjectTypeError) Error() string {
	return fmt.Sprintf("field %q: %s %s", e.Field, ErrInvalidObjectType, e.Type)
}

func (e *InvalidObjectTypeError) Is(target error) bool {
	return target == ErrInvalidObjectType
}
