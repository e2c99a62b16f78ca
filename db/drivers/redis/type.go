package redis

import (
	"errors"

	"github.com/redis/rueidis"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/innotter/stats/config"
)

var (
	ErrInvalidURI       = errors.New("invalid redis URI")
	ErrClientConnection = errors.New("redis client connection failed")
	ErrTxAborted        = errors.New("redis transaction aborted")
)

// Config - config
type Config struct {
	Username     string
	Password     string
	Host         []string
	DisableCache bool
}

// Store implementation of db interface
type Store struct {
	client rueidis.Client

	tracer  trace.TracerProvider
	metrics *metric.MeterProvider

	config Config
	cfg    *config.Config
}
