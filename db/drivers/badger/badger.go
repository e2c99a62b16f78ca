// Package badger keeps the projection in an embedded Badger database.
// Each record is one msgpack value under kv.RecordKey.
package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/innotter/stats/codec"
	"github.com/innotter/stats/config"
	"github.com/innotter/stats/db/kv"
)

var _ kv.Driver = (*Store)(nil)

var ErrBadgerOpen = errors.New("failed to open badger database")

// Config - config
type Config struct {
	Path     string
	InMemory bool
}

// Store implementation of kv.Driver
type Store struct {
	client *badger.DB
	config Config
	cfg    *config.Config
}

func New(cfg *config.Config) *Store {
	return &Store{cfg: cfg}
}

// Init - initialize
func (s *Store) Init(context.Context) error {
	s.setConfig()

	opts := badger.DefaultOptions(s.config.Path).WithLogger(nil)
	if s.config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}

	client, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("%w at %q: %w", ErrBadgerOpen, s.config.Path, err)
	}

	s.client = client

	return nil
}

func (s *Store) Get(_ context.Context, table string, id int64) (codec.Record, error) {
	var record codec.Record

	err := s.client.View(func(txn *badger.Txn) error {
		var err error

		record, err = get(txn, table, id)

		return err
	})

	return record, err
}

func (s *Store) Put(_ context.Context, table string, id int64, record codec.Record) error {
	body, err := kv.MarshalRecord(id, record)
	if err != nil {
		return err
	}

	return s.client.Update(func(txn *badger.Txn) error {
		return txn.Set(kv.RecordKey(table, id), body)
	})
}

// Update merges inside one transaction. A concurrent writer to the same
// record makes it fail with badger.ErrConflict.
func (s *Store) Update(_ context.Context, table string, id int64, patch codec.Patch) error {
	return s.client.Update(func(txn *badger.Txn) error {
		record, err := get(txn, table, id)
		if err != nil && !errors.Is(err, kv.ErrNotFound) {
			return err
		}

		body, err := kv.MarshalRecord(id, patch.Apply(record))
		if err != nil {
			return err
		}

		return txn.Set(kv.RecordKey(table, id), body)
	})
}

func (s *Store) Delete(_ context.Context, table string, id int64) error {
	return s.client.Update(func(txn *badger.Txn) error {
		return txn.Delete(kv.RecordKey(table, id))
	})
}

func (s *Store) Scan(_ context.Context, table string) ([]codec.Record, error) {
	records := []codec.Record{}

	err := s.client.View(func(txn *badger.Txn) error {
		prefix := kv.TablePrefix(table)

		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			body, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}

			record, err := kv.UnmarshalRecord(body)
			if err != nil {
				return err
			}

			records = append(records, record)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

func (s *Store) Ping(context.Context) error {
	if s.client == nil || s.client.IsClosed() {
		return badger.ErrDBClosed
	}

	return nil
}

// Close - close
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}

	return s.client.Close()
}

func get(txn *badger.Txn, table string, id int64) (codec.Record, error) {
	item, err := txn.Get(kv.RecordKey(table, id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, kv.ErrNotFound
	}

	if err != nil {
		return nil, err
	}

	body, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}

	return kv.UnmarshalRecord(body)
}

// setConfig - set configuration
func (s *Store) setConfig() {
	s.cfg.SetDefault("STORE_BADGER_PATH", "/tmp/innotter-stats.badger") // Badger data directory
	s.cfg.SetDefault("STORE_BADGER_IN_MEMORY", false)                   // keep everything in RAM, nothing on disk

	s.config = Config{
		Path:     s.cfg.GetString("STORE_BADGER_PATH"),
		InMemory: s.cfg.GetBool("STORE_BADGER_IN_MEMORY"),
	}
}
