// Package redis stores every projection record as a hash keyed
// "<table>:<id>" and keeps the ids of each table in the set "<table>".
// Hash fields hold msgpack-encoded typed values.
package redis

import (
	"context"
	"fmt"
	"maps"
	"strconv"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/rueidisotel"
	"github.com/vmihailenco/msgpack/v5"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/innotter/stats/codec"
	"github.com/innotter/stats/config"
	"github.com/innotter/stats/db/kv"
)

var _ kv.Driver = (*Store)(nil)

func New(tracer trace.TracerProvider, metrics *metric.MeterProvider, cfg *config.Config) *Store {
	return &Store{
		tracer:  tracer,
		metrics: metrics,
		cfg:     cfg,
	}
}

// NewWithClient wraps an existing client.
func NewWithClient(client rueidis.Client) *Store {
	return &Store{client: client}
}

// Client returns the connection opened by Init.
func (s *Store) Client() rueidis.Client {
	return s.client
}

// Init - initialize
func (s *Store) Init(context.Context) error {
	if s.client != nil {
		return nil
	}

	// Set configuration
	s.setConfig()

	if len(s.config.Host) == 0 {
		return fmt.Errorf("%w: redis host configuration is empty", ErrInvalidURI)
	}

	opts := []rueidisotel.Option{}
	if s.tracer != nil {
		opts = append(opts, rueidisotel.WithTracerProvider(s.tracer))
	}

	if s.metrics != nil {
		opts = append(opts, rueidisotel.WithMeterProvider(s.metrics))
	}

	client, err := rueidisotel.NewClient(rueidis.ClientOption{
		InitAddress:  s.config.Host,
		Username:     s.config.Username,
		Password:     s.config.Password,
		DisableCache: s.config.DisableCache,
		SelectDB:     0, // use default DB
	}, opts...)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrClientConnection, err)
	}

	s.client = client

	return nil
}

func (s *Store) Get(ctx context.Context, table string, id int64) (codec.Record, error) {
	fields, err := s.client.Do(ctx, s.client.B().Hgetall().Key(recordKey(table, id)).Build()).AsStrMap()
	if err != nil {
		return nil, err
	}

	if len(fields) == 0 {
		return nil, kv.ErrNotFound
	}

	return decodeRecord(fields)
}

func (s *Store) Put(ctx context.Context, table string, id int64, record codec.Record) error {
	return s.write(ctx, table, id, record, true)
}

func (s *Store) Update(ctx context.Context, table string, id int64, patch codec.Patch) error {
	return s.write(ctx, table, id, patch.Apply(nil), false)
}

func (s *Store) Delete(ctx context.Context, table string, id int64) error {
	return s.client.Dedicated(func(c rueidis.DedicatedClient) error {
		return exec(ctx, c,
			c.B().Del().Key(recordKey(table, id)).Build(),
			c.B().Srem().Key(table).Member(strconv.FormatInt(id, 10)).Build(),
		)
	})
}

func (s *Store) Scan(ctx context.Context, table string) ([]codec.Record, error) {
	ids, err := s.client.Do(ctx, s.client.B().Smembers().Key(table).Build()).AsStrSlice()
	if err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return []codec.Record{}, nil
	}

	cmds := make(rueidis.Commands, 0, len(ids))
	for _, id := range ids {
		cmds = append(cmds, s.client.B().Hgetall().Key(table+":"+id).Build())
	}

	records := make([]codec.Record, 0, len(ids))

	for _, resp := range s.client.DoMulti(ctx, cmds...) {
		fields, err := resp.AsStrMap()
		if err != nil {
			return nil, err
		}

		// removed between SMEMBERS and HGETALL
		if len(fields) == 0 {
			continue
		}

		record, err := decodeRecord(fields)
		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	return records, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Do(ctx, s.client.B().Ping().Build()).Error()
}

func (s *Store) Close() error {
	if s.client != nil {
		s.client.Close()
	}

	return nil
}

// write stores the record fields, dropping the old hash first when replace is set.
func (s *Store) write(ctx context.Context, table string, id int64, record codec.Record, replace bool) error {
	record = maps.Clone(record)
	if record == nil {
		record = codec.Record{}
	}

	record["id"] = codec.Int(id)

	key := recordKey(table, id)

	return s.client.Dedicated(func(c rueidis.DedicatedClient) error {
		hset := c.B().Hset().Key(key).FieldValue()

		for field, value := range record {
			body, err := msgpack.Marshal(value)
			if err != nil {
				return fmt.Errorf("encode field %q: %w", field, err)
			}

			hset = hset.FieldValue(field, rueidis.BinaryString(body))
		}

		cmds := make(rueidis.Commands, 0, 3)
		if replace {
			cmds = append(cmds, c.B().Del().Key(key).Build())
		}

		cmds = append(cmds,
			hset.Build(),
			c.B().Sadd().Key(table).Member(strconv.FormatInt(id, 10)).Build(),
		)

		return exec(ctx, c, cmds...)
	})
}

// exec runs cmds inside MULTI/EXEC on a dedicated connection. Commands that
// fail while executing report their error inside the EXEC reply.
func exec(ctx context.Context, c rueidis.DedicatedClient, cmds ...rueidis.Completed) error {
	batch := make(rueidis.Commands, 0, len(cmds)+2)
	batch = append(batch, c.B().Multi().Build())
	batch = append(batch, cmds...)
	batch = append(batch, c.B().Exec().Build())

	resps := c.DoMulti(ctx, batch...)

	for _, resp := range resps {
		if err := resp.Error(); err != nil {
			return err
		}
	}

	replies, err := resps[len(resps)-1].ToArray()
	if err != nil {
		return err
	}

	if len(replies) != len(cmds) {
		return fmt.Errorf("%w: %d replies for %d commands", ErrTxAborted, len(replies), len(cmds))
	}

	for i, reply := range replies {
		if err := reply.Error(); err != nil {
			return fmt.Errorf("transaction command %d: %w", i, err)
		}
	}

	return nil
}

func recordKey(table string, id int64) string {
	return table + ":" + strconv.FormatInt(id, 10)
}

func decodeRecord(fields map[string]string) (codec.Record, error) {
	record := make(codec.Record, len(fields))

	for field, body := range fields {
		var value codec.Value
		if err := msgpack.Unmarshal([]byte(body), &value); err != nil {
			return nil, fmt.Errorf("decode field %q: %w", field, err)
		}

		record[field] = value
	}

	return record, nil
}

// setConfig - set configuration
func (s *Store) setConfig() {
	s.cfg.SetDefault("STORE_REDIS_URI", "localhost:6379") // Redis Hosts
	s.cfg.SetDefault("STORE_REDIS_USERNAME", "")          // Redis Username
	s.cfg.SetDefault("STORE_REDIS_PASSWORD", "")          // Redis Password
	s.cfg.SetDefault("STORE_REDIS_DISABLE_CACHE", false)  // Client side caching

	s.config = Config{
		Host:         s.cfg.GetStringSlice("STORE_REDIS_URI"),
		Username:     s.cfg.GetString("STORE_REDIS_USERNAME"),
		Password:     s.cfg.GetString("STORE_REDIS_PASSWORD"),
		DisableCache: s.cfg.GetBool("STORE_REDIS_DISABLE_CACHE"),
	}
}
