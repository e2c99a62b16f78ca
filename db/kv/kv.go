// Package kv declares the contract shared by the projection store drivers.
package kv

import (
	"context"
	"errors"

	"github.com/innotter/stats/codec"
)

// ErrNotFound is returned by Get when the table holds no record with the id.
var ErrNotFound = errors.New("record not found")

// Driver is a table-per-entity key-value store. Records are keyed by an
// integer id and are independent of each other.
type Driver interface {
	Init(ctx context.Context) error

	Get(ctx context.Context, table string, id int64) (codec.Record, error)
	// Put replaces the whole record.
	Put(ctx context.Context, table string, id int64, record codec.Record) error
	// Update merges the patch into the record, creating it when absent.
	Update(ctx context.Context, table string, id int64, patch codec.Patch) error
	// Delete removes the record. A missing id is not an error.
	Delete(ctx context.Context, table string, id int64) error
	Scan(ctx context.Context, table string) ([]codec.Record, error)

	Ping(ctx context.Context) error
	Close() error
}
