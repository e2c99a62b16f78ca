package db

import (
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"github.com/innotter/stats/config"
	"github.com/innotter/stats/db/kv"
)

// Store is the projection store facade over the configured driver.
type Store struct {
	driver kv.Driver
	tracer trace.Tracer

	typeStore string
	cfg       *config.Config
}

// StoreError describes a failed store operation.
type StoreError struct {
	Op      string
	Table   string
	Err     error
	Details string
}

func (e *StoreError) Error() string {
	msg := fmt.Sprintf("store %s", e.Op)
	if e.Table != "" {
		msg += " " + e.Table
	}

	msg += ": " + e.Err.Error()
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}

	return msg
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
