package domain

import "errors"

var (
	// ErrUnknownMethod is returned for an operation tag outside the supported set.
	ErrUnknownMethod = errors.New("unknown method")

	// ErrUnknownEntity is returned for a table name that maps to no entity.
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrMissingID is returned when a payload carries no usable "id".
	ErrMissingID = errors.New("payload has no valid id")
)
