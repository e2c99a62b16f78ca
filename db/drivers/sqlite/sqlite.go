// Package sqlite keeps the projection in a single SQLite file. All entity
// tables share one physical table keyed by (tbl, id); record bodies are
// msgpack.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/XSAM/otelsql"
	_ "github.com/mattn/go-sqlite3" // driver
	"go.opentelemetry.io/otel/sdk/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/innotter/stats/codec"
	"github.com/innotter/stats/config"
	"github.com/innotter/stats/db/kv"
)

var _ kv.Driver = (*Store)(nil)

const recordsTable = "records"

// Config - config
type Config struct {
	Path            string
	MigrationsTable string
}

// Store implementation of kv.Driver
type Store struct {
	client  *sql.DB
	config  Config
	tracer  trace.TracerProvider
	metrics *metric.MeterProvider
	cfg     *config.Config
}

func New(tracer trace.TracerProvider, metrics *metric.MeterProvider, cfg *config.Config) *Store {
	return &Store{
		tracer:  tracer,
		metrics: metrics,
		cfg:     cfg,
	}
}

// Init - initialize
func (s *Store) Init(ctx context.Context) error {
	s.setConfig()

	options := []otelsql.Option{
		otelsql.WithAttributes(semconv.DBSystemNameKey.String("sqlite")),
	}

	if s.tracer != nil {
		options = append(options, otelsql.WithTracerProvider(s.tracer))
	}

	if s.metrics != nil {
		options = append(options, otelsql.WithMeterProvider(s.metrics))
	}

	client, err := otelsql.Open("sqlite3", s.config.Path, options...)
	if err != nil {
		return fmt.Errorf("open sqlite %q: %w", s.config.Path, err)
	}

	// one connection: writes are serialized by SQLite anyway and ":memory:"
	// is per connection
	client.SetMaxOpenConns(1)

	if err := client.PingContext(ctx); err != nil {
		_ = client.Close()

		return fmt.Errorf("ping sqlite: %w", err)
	}

	if err := migration(client, s.config.MigrationsTable); err != nil {
		_ = client.Close()

		return err
	}

	if s.metrics != nil {
		if _, err := otelsql.RegisterDBStatsMetrics(client, options...); err != nil {
			_ = client.Close()

			return fmt.Errorf("register sqlite stats metrics: %w", err)
		}
	}

	s.client = client

	return nil
}

func (s *Store) Get(ctx context.Context, table string, id int64) (codec.Record, error) {
	return get(ctx, s.client, table, id)
}

func (s *Store) Put(ctx context.Context, table string, id int64, record codec.Record) error {
	return put(ctx, s.client, table, id, record)
}

func (s *Store) Update(ctx context.Context, table string, id int64, patch codec.Patch) error {
	tx, err := s.client.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() { _ = tx.Rollback() }()

	record, err := get(ctx, tx, table, id)
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		return err
	}

	if err := put(ctx, tx, table, id, patch.Apply(record)); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) Delete(ctx context.Context, table string, id int64) error {
	query, args, err := sq.Delete(recordsTable).Where(sq.Eq{"tbl": table, "id": id}).ToSql()
	if err != nil {
		return err
	}

	_, err = s.client.ExecContext(ctx, query, args...)

	return err
}

func (s *Store) Scan(ctx context.Context, table string) ([]codec.Record, error) {
	query, args, err := sq.Select("body").
		From(recordsTable).
		Where(sq.Eq{"tbl": table}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.client.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []codec.Record{}

	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}

		record, err := kv.UnmarshalRecord(body)
		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	return records, rows.Err()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.PingContext(ctx)
}

// Close - close
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}

	return s.client.Close()
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func get(ctx context.Context, q querier, table string, id int64) (codec.Record, error) {
	query, args, err := sq.Select("body").From(recordsTable).Where(sq.Eq{"tbl": table, "id": id}).ToSql()
	if err != nil {
		return nil, err
	}

	var body []byte

	err = q.QueryRowContext(ctx, query, args...).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kv.ErrNotFound
	}

	if err != nil {
		return nil, err
	}

	return kv.UnmarshalRecord(body)
}

func put(ctx context.Context, q querier, table string, id int64, record codec.Record) error {
	body, err := kv.MarshalRecord(id, record)
	if err != nil {
		return err
	}

	query, args, err := sq.Insert(recordsTable).
		Columns("tbl", "id", "body").
		Values(table, id, body).
		Suffix("ON CONFLICT (tbl, id) DO UPDATE SET body = excluded.body").
		ToSql()
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx, query, args...)

	return err
}

// setConfig - set configuration
func (s *Store) setConfig() {
	s.cfg.SetDefault("STORE_SQLITE_PATH", "/tmp/innotter-stats.sqlite")          // SQLite file, or :memory:
	s.cfg.SetDefault("STORE_SQLITE_MIGRATIONS_TABLE", "schema_migrations_stats") // golang-migrate version table

	s.config = Config{
		Path:            s.cfg.GetString("STORE_SQLITE_PATH"),
		MigrationsTable: s.cfg.GetString("STORE_SQLITE_MIGRATIONS_TABLE"),
	}
}
