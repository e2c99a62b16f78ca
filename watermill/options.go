package watermill

import (
	"time"

	"github.com/sony/gobreaker"

	"github.com/innotter/stats/config"
)

// Option adjusts the router middleware chain.
type Option func(*Options)

// Options is the middleware chain of the projector router, outermost first:
// timeout, circuit breaker, poison queue, retry.
type Options struct {
	Retry          RetryOptions
	Timeout        TimeoutOptions
	CircuitBreaker CircuitBreakerOptions
	DLQ            DLQOptions
	ServiceName    string
}

// RetryOptions is an exponential backoff between handler attempts.
type RetryOptions struct {
	Enabled             bool
	MaxRetries          int
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	Jitter              float64
	MaxElapsedTime      time.Duration
	ResetContextOnRetry bool
}

type TimeoutOptions struct {
	Enabled  bool
	Duration time.Duration
}

// CircuitBreakerOptions stop consuming while the store keeps failing.
type CircuitBreakerOptions struct {
	Enabled  bool
	Settings gobreaker.Settings
}

// DLQOptions configure the poison queue. Without it a message whose
// handler fails is nacked and redelivered.
type DLQOptions struct {
	Enabled bool
	Topic   string
}

func defaultOptions(cfg *config.Config) Options {
	serviceName := cfg.StringOr("SERVICE_NAME", "innotter-stats")

	return Options{
		Retry:          loadRetry(cfg),
		Timeout:        loadTimeout(cfg),
		CircuitBreaker: loadCircuitBreaker(cfg, serviceName),
		DLQ:            loadDLQ(cfg),
		ServiceName:    serviceName,
	}
}

func loadRetry(cfg *config.Config) RetryOptions {
	cfg.SetDefault("WATERMILL_RETRY_MAX_RETRIES", 3)            // attempts after the first
	cfg.SetDefault("WATERMILL_RETRY_INITIAL_INTERVAL", "150ms") // first backoff
	cfg.SetDefault("WATERMILL_RETRY_MAX_INTERVAL", "2s")        // backoff cap
	cfg.SetDefault("WATERMILL_RETRY_MULTIPLIER", 2.0)           // backoff growth
	cfg.SetDefault("WATERMILL_RETRY_JITTER", 0.15)              // randomization factor
	cfg.SetDefault("WATERMILL_RETRY_MAX_ELAPSED", "0s")         // 0 means bounded by retries only
	cfg.SetDefault("WATERMILL_RETRY_RESET_CONTEXT", false)      // fresh context per attempt

	return RetryOptions{
		Enabled:             true,
		MaxRetries:          max(cfg.GetInt("WATERMILL_RETRY_MAX_RETRIES"), 0),
		InitialInterval:     cfg.GetDuration("WATERMILL_RETRY_INITIAL_INTERVAL"),
		MaxInterval:         cfg.GetDuration("WATERMILL_RETRY_MAX_INTERVAL"),
		Multiplier:          cfg.GetFloat64("WATERMILL_RETRY_MULTIPLIER"),
		Jitter:              cfg.GetFloat64("WATERMILL_RETRY_JITTER"),
		MaxElapsedTime:      cfg.GetDuration("WATERMILL_RETRY_MAX_ELAPSED"),
		ResetContextOnRetry: cfg.GetBool("WATERMILL_RETRY_RESET_CONTEXT"),
	}
}

func loadTimeout(cfg *config.Config) TimeoutOptions {
	cfg.SetDefault("WATERMILL_HANDLER_TIMEOUT_ENABLED", true)
	cfg.SetDefault("WATERMILL_HANDLER_TIMEOUT", "20s") // one envelope is at most two store calls

	timeout := cfg.GetDuration("WATERMILL_HANDLER_TIMEOUT")
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	return TimeoutOptions{
		Enabled:  cfg.GetBool("WATERMILL_HANDLER_TIMEOUT_ENABLED"),
		Duration: timeout,
	}
}

func loadCircuitBreaker(cfg *config.Config, serviceName string) CircuitBreakerOptions {
	cfg.SetDefault("WATERMILL_CB_ENABLED", true)
	cfg.SetDefault("WATERMILL_CB_TIMEOUT", "30s")           // open state duration
	cfg.SetDefault("WATERMILL_CB_INTERVAL", "0s")           // 0 never clears closed-state counts
	cfg.SetDefault("WATERMILL_CB_FAILURE_THRESHOLD", 5)     // consecutive failures to open
	cfg.SetDefault("WATERMILL_CB_HALFOPEN_MAX_REQUESTS", 1) // probes while half-open

	threshold := uint32(max(cfg.GetInt("WATERMILL_CB_FAILURE_THRESHOLD"), 1)) //nolint:gosec // bounded below

	settings := gobreaker.Settings{
		Name:        serviceName + "_" + handlerBreakerName,
		Timeout:     cfg.GetDuration("WATERMILL_CB_TIMEOUT"),
		Interval:    cfg.GetDuration("WATERMILL_CB_INTERVAL"),
		MaxRequests: uint32(max(cfg.GetInt("WATERMILL_CB_HALFOPEN_MAX_REQUESTS"), 1)), //nolint:gosec // bounded below
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	}

	if settings.Timeout <= 0 {
		settings.Timeout = 30 * time.Second
	}

	return CircuitBreakerOptions{
		Enabled:  cfg.GetBool("WATERMILL_CB_ENABLED"),
		Settings: settings,
	}
}

func loadDLQ(cfg *config.Config) DLQOptions {
	cfg.SetDefault("WATERMILL_DLQ_ENABLED", true)
	cfg.SetDefault("WATERMILL_DLQ_TOPIC", DefaultDLQTopic)

	return DLQOptions{
		Enabled: cfg.GetBool("WATERMILL_DLQ_ENABLED"),
		Topic:   cfg.GetString("WATERMILL_DLQ_TOPIC"),
	}
}

const handlerBreakerName = "projector"

func WithRetryOptions(opts RetryOptions) Option {
	return func(o *Options) {
		o.Retry = opts
	}
}

func DisableRetry() Option {
	return func(o *Options) {
		o.Retry.Enabled = false
	}
}

// WithDLQ routes messages that exhausted their retries to topic.
func WithDLQ(topic string) Option {
	return func(o *Options) {
		o.DLQ = DLQOptions{Enabled: true, Topic: topic}
	}
}

// DisableDLQ removes the poison queue. Producers that never consume use it.
func DisableDLQ() Option {
	return func(o *Options) {
		o.DLQ.Enabled = false
	}
}

func DisableCircuitBreaker() Option {
	return func(o *Options) {
		o.CircuitBreaker.Enabled = false
	}
}
