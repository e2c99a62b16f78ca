/*
Data Base package
*/
package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/innotter/stats/codec"
	"github.com/innotter/stats/config"
	"github.com/innotter/stats/db/drivers/badger"
	"github.com/innotter/stats/db/drivers/dynamodb"
	"github.com/innotter/stats/db/drivers/etcd"
	"github.com/innotter/stats/db/drivers/leveldb"
	"github.com/innotter/stats/db/drivers/ram"
	"github.com/innotter/stats/db/drivers/redis"
	"github.com/innotter/stats/db/drivers/sqlite"
	"github.com/innotter/stats/db/kv"
	"github.com/innotter/stats/logger"
)

// ErrNotFound is returned by Get for an unknown id.
var ErrNotFound = kv.ErrNotFound

// ErrUnknownStoreType is returned for an unsupported STORE_TYPE.
var ErrUnknownStoreType = errors.New("unknown store type")

// New - return implementation of db
func New(ctx context.Context, log logger.Logger, tracer trace.TracerProvider, metrics *metric.MeterProvider, cfg *config.Config) (*Store, error) {
	if tracer == nil {
		tracer = noop.NewTracerProvider()
	}

	store := &Store{
		tracer: tracer.Tracer("github.com/innotter/stats/db"),
		cfg:    cfg,
	}

	// Set configuration
	store.setConfig()

	switch store.typeStore {
	case "redis":
		store.driver = redis.New(tracer, metrics, cfg)
	case "dynamodb":
		store.driver = dynamodb.New(cfg)
	case "badger":
		store.driver = badger.New(cfg)
	case "leveldb":
		store.driver = leveldb.New(cfg)
	case "etcd":
		store.driver = etcd.New(cfg)
	case "sqlite":
		store.driver = sqlite.New(tracer, metrics, cfg)
	case "ram":
		store.driver = ram.New()
	default:
		return nil, &StoreError{Op: "init", Err: ErrUnknownStoreType, Details: store.typeStore}
	}

	if err := store.driver.Init(ctx); err != nil {
		return nil, &StoreError{Op: "init", Err: err, Details: store.typeStore}
	}

	log.Info("run db",
		slog.String("db", store.typeStore),
	)

	return store, nil
}

// NewWithDriver wraps an already initialized driver.
func NewWithDriver(driver kv.Driver) *Store {
	return &Store{
		driver:    driver,
		tracer:    noop.NewTracerProvider().Tracer(""),
		typeStore: "custom",
	}
}

// Type returns the configured driver name.
func (s *Store) Type() string {
	return s.typeStore
}

func (s *Store) Get(ctx context.Context, table string, id int64) (codec.Record, error) {
	ctx, span := s.start(ctx, "get", table, id)
	defer span.End()

	record, err := s.driver.Get(ctx, table, id)

	return record, s.fail(span, "get", table, id, err)
}

func (s *Store) Put(ctx context.Context, table string, id int64, record codec.Record) error {
	ctx, span := s.start(ctx, "put", table, id)
	defer span.End()

	return s.fail(span, "put", table, id, s.driver.Put(ctx, table, id, record))
}

func (s *Store) Update(ctx context.Context, table string, id int64, patch codec.Patch) error {
	ctx, span := s.start(ctx, "update", table, id)
	defer span.End()

	return s.fail(span, "update", table, id, s.driver.Update(ctx, table, id, patch))
}

func (s *Store) Delete(ctx context.Context, table string, id int64) error {
	ctx, span := s.start(ctx, "delete", table, id)
	defer span.End()

	return s.fail(span, "delete", table, id, s.driver.Delete(ctx, table, id))
}

func (s *Store) Scan(ctx context.Context, table string) ([]codec.Record, error) {
	ctx, span := s.tracer.Start(ctx, "db.scan", trace.WithAttributes(attribute.String("db.table", table)))
	defer span.End()

	records, err := s.driver.Scan(ctx, table)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())

		return nil, &StoreError{Op: "scan", Table: table, Err: err}
	}

	span.SetAttributes(attribute.Int("db.records", len(records)))

	return records, nil
}

// Ping reports whether the backing store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.driver.Ping(ctx); err != nil {
		return &StoreError{Op: "ping", Err: err}
	}

	return nil
}

func (s *Store) Close() error {
	return s.driver.Close()
}

func (s *Store) start(ctx context.Context, op, table string, id int64) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "db."+op, trace.WithAttributes(
		attribute.String("db.table", table),
		attribute.Int64("db.id", id),
	))
}

func (*Store) fail(span trace.Span, op, table string, id int64, err error) error {
	if err == nil {
		return nil
	}

	if !errors.Is(err, kv.ErrNotFound) {
		span.SetStatus(codes.Error, err.Error())
	}

	return &StoreError{Op: op, Table: table, Err: err, Details: fmt.Sprintf("id=%d", id)}
}

// setConfig - set configuration
func (s *Store) setConfig() {
	s.cfg.SetDefault("STORE_TYPE", "ram") // Select: ram, redis, dynamodb, etcd, badger, leveldb, sqlite

	s.typeStore = s.cfg.GetString("STORE_TYPE")
	if s.typeStore == "" {
		s.typeStore = "ram"
	}
}
