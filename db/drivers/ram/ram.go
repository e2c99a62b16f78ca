// Package ram keeps projections in process memory. Used for tests and local runs.
package ram

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/innotter/stats/codec"
	"github.com/innotter/stats/db/kv"
)

// Store implementation of db interface
type Store struct {
	mu     sync.RWMutex
	tables map[string]map[int64]codec.Record
}

var _ kv.Driver = (*Store)(nil)

func New() *Store {
	return &Store{tables: make(map[string]map[int64]codec.Record)}
}

// Init - initialize
func (*Store) Init(context.Context) error {
	return nil
}

func (s *Store) Get(_ context.Context, table string, id int64) (codec.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.tables[table][id]
	if !ok {
		return nil, kv.ErrNotFound
	}

	return maps.Clone(record), nil
}

func (s *Store) Put(_ context.Context, table string, id int64, record codec.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record = maps.Clone(record)
	if record == nil {
		record = codec.Record{}
	}

	record["id"] = codec.Int(id)
	s.table(table)[id] = record

	return nil
}

func (s *Store) Update(_ context.Context, table string, id int64, patch codec.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.table(table)

	record, ok := rows[id]
	if !ok {
		record = codec.Record{"id": codec.Int(id)}
	}

	rows[id] = patch.Apply(record)

	return nil
}

func (s *Store) Delete(_ context.Context, table string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tables[table], id)

	return nil
}

// Scan returns records ordered by id.
func (s *Store) Scan(_ context.Context, table string) ([]codec.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.tables[table]
	ids := slices.Sorted(maps.Keys(rows))

	records := make([]codec.Record, 0, len(ids))
	for _, id := range ids {
		records = append(records, maps.Clone(rows[id]))
	}

	return records, nil
}

func (*Store) Ping(context.Context) error {
	return nil
}

func (*Store) Close() error {
	return nil
}

// table returns the rows of name, creating them. Callers hold the write lock.
func (s *Store) table(name string) map[int64]codec.Record {
	rows, ok := s.tables[name]
	if !ok {
		rows = make(map[int64]codec.Record)
		s.tables[name] = rows
	}

	return rows
}
