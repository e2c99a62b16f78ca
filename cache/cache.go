/*
Package cache keeps recently seen projection records in process memory,
optionally backed by a Redis tier shared between replicas.

The JWT middleware resolves the token's user on every request; Users
absorbs those reads with a TinyLFU cache. Lookup failures, not-found
included, are never cached, so a user projected a moment ago is visible
on the next request.
*/
package cache

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/rueidis"

	"github.com/innotter/stats/codec"
	"github.com/innotter/stats/config"
)

// Store is the read side being cached.
type Store interface {
	Get(ctx context.Context, table string, id int64) (codec.Record, error)
}

type Users struct {
	store Store
	cache *cache.Cache
	ttl   time.Duration

	hits  atomic.Uint64
	loads atomic.Uint64
}

const keyPrefix = "auth-cache:"

type Option func(*cache.Options)

// WithRedis adds conn as a second tier behind the local cache.
func WithRedis(conn rueidis.Client) Option {
	return func(opts *cache.Options) {
		opts.Redis = newClient(conn)
	}
}

// New reads AUTH_CACHE_TTL and AUTH_CACHE_COUNT from cfg. A zero TTL
// disables caching.
func New(cfg *config.Config, store Store, options ...Option) *Users {
	cfg.SetDefault("AUTH_CACHE_TTL", "30s")   // how long a resolved user is trusted
	cfg.SetDefault("AUTH_CACHE_COUNT", 10000) // max entries held locally

	ttl := cfg.GetDuration("AUTH_CACHE_TTL")
	if ttl <= 0 {
		return &Users{store: store}
	}

	opts := &cache.Options{
		LocalCache: cache.NewTinyLFU(cfg.GetInt("AUTH_CACHE_COUNT"), ttl),
	}

	for _, option := range options {
		option(opts)
	}

	return &Users{
		store: store,
		ttl:   ttl,
		cache: cache.New(opts),
	}
}

// Get returns the record from memory or loads it from the store. Concurrent
// misses for the same key share one store read.
func (u *Users) Get(ctx context.Context, table string, id int64) (codec.Record, error) {
	if u.cache == nil {
		return u.store.Get(ctx, table, id)
	}

	var (
		record codec.Record
		loaded bool
	)

	err := u.cache.Once(&cache.Item{
		Ctx:   ctx,
		Key:   key(table, id),
		Value: &record,
		TTL:   u.ttl,
		Do: func(*cache.Item) (any, error) {
			loaded = true

			u.loads.Add(1)

			return u.store.Get(ctx, table, id)
		},
	})
	if err != nil {
		return nil, err
	}

	if !loaded {
		u.hits.Add(1)
	}

	return record, nil
}

// Register exposes hit and miss counters on reg.
func (u *Users) Register(reg prometheus.Registerer) error {
	if u.cache == nil {
		return nil
	}

	hits := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "stats_auth_cache_hits_total",
		Help: "User lookups answered from memory.",
	}, func() float64 {
		return float64(u.hits.Load())
	})

	misses := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "stats_auth_cache_misses_total",
		Help: "User lookups that went to the store.",
	}, func() float64 {
		return float64(u.loads.Load())
	})

	for _, collector := range []prometheus.Collector{hits, misses} {
		if err := reg.Register(collector); err != nil {
			return err
		}
	}

	return nil
}

// key is namespaced so the Redis tier can share a database with the redis
// store, whose record hashes live at "<table>:<id>".
func key(table string, id int64) string {
	return keyPrefix + table + ":" + strconv.FormatInt(id, 10)
}
