// Package etcd keeps the projection in etcd under STORE_ETCD_PREFIX.
// Updates run as software transactions so concurrent patches to one record
// are retried instead of lost.
package etcd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/innotter/stats/codec"
	"github.com/innotter/stats/config"
	"github.com/innotter/stats/db/kv"
)

var _ kv.Driver = (*Store)(nil)

var ErrClientConnection = errors.New("failed to create etcd client")

// Config - config
type Config struct {
	URI         []string
	DialTimeout time.Duration
	Prefix      string
}

// Store implementation of kv.Driver
type Store struct {
	client *clientv3.Client
	config Config
	cfg    *config.Config
}

func New(cfg *config.Config) *Store {
	return &Store{cfg: cfg}
}

// Init - initialize. The client dials lazily; Ping reports reachability.
func (s *Store) Init(context.Context) error {
	s.setConfig()

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   s.config.URI,
		DialTimeout: s.config.DialTimeout,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrClientConnection, err)
	}

	s.client = client

	return nil
}

func (s *Store) Get(ctx context.Context, table string, id int64) (codec.Record, error) {
	resp, err := s.client.Get(ctx, s.key(table, id))
	if err != nil {
		return nil, err
	}

	if len(resp.Kvs) == 0 {
		return nil, kv.ErrNotFound
	}

	return kv.UnmarshalRecord(resp.Kvs[0].Value)
}

func (s *Store) Put(ctx context.Context, table string, id int64, record codec.Record) error {
	body, err := kv.MarshalRecord(id, record)
	if err != nil {
		return err
	}

	_, err = s.client.Put(ctx, s.key(table, id), string(body))

	return err
}

func (s *Store) Update(ctx context.Context, table string, id int64, patch codec.Patch) error {
	key := s.key(table, id)

	_, err := concurrency.NewSTM(s.client, func(stm concurrency.STM) error {
		var record codec.Record

		if raw := stm.Get(key); raw != "" {
			var err error

			record, err = kv.UnmarshalRecord([]byte(raw))
			if err != nil {
				return err
			}
		}

		body, err := kv.MarshalRecord(id, patch.Apply(record))
		if err != nil {
			return err
		}

		stm.Put(key, string(body))

		return nil
	}, concurrency.WithAbortContext(ctx))

	return err
}

func (s *Store) Delete(ctx context.Context, table string, id int64) error {
	_, err := s.client.Delete(ctx, s.key(table, id))

	return err
}

func (s *Store) Scan(ctx context.Context, table string) ([]codec.Record, error) {
	resp, err := s.client.Get(ctx, s.config.Prefix+string(kv.TablePrefix(table)),
		clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend),
	)
	if err != nil {
		return nil, err
	}

	records := make([]codec.Record, 0, len(resp.Kvs))

	for _, item := range resp.Kvs {
		record, err := kv.UnmarshalRecord(item.Value)
		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	return records, nil
}

// Ping asks the first endpoint for its status.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.DialTimeout)
	defer cancel()

	_, err := s.client.Status(ctx, s.config.URI[0])

	return err
}

// Close - close
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}

	return s.client.Close()
}

func (s *Store) key(table string, id int64) string {
	return s.config.Prefix + string(kv.RecordKey(table, id))
}

// setConfig - set configuration
func (s *Store) setConfig() {
	s.cfg.SetDefault("STORE_ETCD_URI", "localhost:2379")     // ETCD URI, comma separated
	s.cfg.SetDefault("STORE_ETCD_TIMEOUT", "5s")             // ETCD timeout
	s.cfg.SetDefault("STORE_ETCD_PREFIX", "/innotter-stats/") // key namespace

	uri := strings.Split(s.cfg.GetString("STORE_ETCD_URI"), ",")

	s.config = Config{
		URI:         uri,
		DialTimeout: s.cfg.GetDuration("STORE_ETCD_TIMEOUT"),
		Prefix:      s.cfg.GetString("STORE_ETCD_PREFIX"),
	}
}
