// Package leveldb keeps the projection in an embedded LevelDB database.
package leveldb

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/innotter/stats/codec"
	"github.com/innotter/stats/config"
	"github.com/innotter/stats/db/kv"
)

var _ kv.Driver = (*Store)(nil)

var ErrDatabaseOpen = errors.New("failed to open leveldb database")

// Config - config
type Config struct {
	Path string
}

// Store implementation of kv.Driver
type Store struct {
	client *leveldb.DB
	config Config
	cfg    *config.Config

	// LevelDB has no read-modify-write transaction; Update holds this.
	mu sync.Mutex
}

func New(cfg *config.Config) *Store {
	return &Store{cfg: cfg}
}

// Init - initialize. An empty STORE_LEVELDB_PATH opens an in-memory database.
func (s *Store) Init(context.Context) error {
	s.setConfig()

	var err error

	if s.config.Path == "" {
		s.client, err = leveldb.Open(storage.NewMemStorage(), nil)
	} else {
		s.client, err = leveldb.OpenFile(s.config.Path, nil)
	}

	if err != nil {
		return fmt.Errorf("%w at %q: %w", ErrDatabaseOpen, s.config.Path, err)
	}

	return nil
}

func (s *Store) Get(_ context.Context, table string, id int64) (codec.Record, error) {
	return s.get(table, id)
}

func (s *Store) Put(_ context.Context, table string, id int64, record codec.Record) error {
	body, err := kv.MarshalRecord(id, record)
	if err != nil {
		return err
	}

	return s.client.Put(kv.RecordKey(table, id), body, nil)
}

func (s *Store) Update(_ context.Context, table string, id int64, patch codec.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.get(table, id)
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		return err
	}

	body, err := kv.MarshalRecord(id, patch.Apply(record))
	if err != nil {
		return err
	}

	return s.client.Put(kv.RecordKey(table, id), body, nil)
}

func (s *Store) Delete(_ context.Context, table string, id int64) error {
	return s.client.Delete(kv.RecordKey(table, id), nil)
}

func (s *Store) Scan(_ context.Context, table string) ([]codec.Record, error) {
	it := s.client.NewIterator(util.BytesPrefix(kv.TablePrefix(table)), nil)
	defer it.Release()

	records := []codec.Record{}

	for it.Next() {
		record, err := kv.UnmarshalRecord(it.Value())
		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	if err := it.Error(); err != nil {
		return nil, err
	}

	return records, nil
}

func (s *Store) Ping(context.Context) error {
	_, err := s.client.GetProperty("leveldb.stats")

	return err
}

// Close - close
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}

	return s.client.Close()
}

func (s *Store) get(table string, id int64) (codec.Record, error) {
	body, err := s.client.Get(kv.RecordKey(table, id), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, kv.ErrNotFound
	}

	if err != nil {
		return nil, err
	}

	return kv.UnmarshalRecord(body)
}

// setConfig - set configuration
func (s *Store) setConfig() {
	s.cfg.SetDefault("STORE_LEVELDB_PATH", "/tmp/innotter-stats.leveldb") // LevelDB directory; empty keeps it in memory

	s.config = Config{
		Path: s.cfg.GetString("STORE_LEVELDB_PATH"),
	}
}
