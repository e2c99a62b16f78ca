/*
Package rabbit owns the AMQP connection shared by the publisher and the
consumer. The connection is dialed once at startup and kept alive by
Supervise, which redials with exponential backoff whenever the broker
drops it.
*/
package rabbit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/innotter/stats/config"
	"github.com/innotter/stats/logger"
)

var (
	// ErrNotConnected is returned while no broker connection is open.
	ErrNotConnected = errors.New("rabbitmq: not connected")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("rabbitmq: connection closed")
)

// Dialer opens a broker connection.
type Dialer func(uri string) (*amqp.Connection, error)

// Connection manages a single AMQP connection.
type Connection struct {
	log    logger.Logger
	config *Config
	dial   Dialer

	mu    sync.RWMutex
	conn  *amqp.Connection
	ready chan struct{} // closed while conn is usable

	done      chan struct{}
	closeOnce sync.Once
}

func New(log logger.Logger, cfg *config.Config) *Connection {
	return NewWithConfig(log, loadConfig(cfg), amqp.Dial)
}

// NewWithConfig builds a manager with an explicit configuration and dialer.
func NewWithConfig(log logger.Logger, conf *Config, dial Dialer) *Connection {
	return &Connection{
		log:    log,
		config: conf,
		dial:   dial,
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Connect dials the broker once.
func (c *Connection) Connect(ctx context.Context) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	conn, err := c.dial(c.config.URI)
	if err != nil {
		return err
	}

	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		_ = conn.Close()

		return ErrClosed
	case <-c.ready:
	default:
		close(c.ready)
	}

	c.conn = conn
	c.mu.Unlock()

	c.log.InfoWithContext(ctx, "connected to rabbitmq")

	return nil
}

// Supervise redials after every connection loss until ctx is done or
// Close is called. It blocks.
func (c *Connection) Supervise(ctx context.Context) {
	for {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		if conn != nil && !conn.IsClosed() {
			lost := conn.NotifyClose(make(chan *amqp.Error, 1))

			select {
			case <-ctx.Done():
				return
			case <-c.done:
				return
			case amqpErr := <-lost:
				c.markDisconnected()

				if amqpErr != nil {
					c.log.WarnWithContext(ctx, "rabbitmq connection lost",
						slog.String("reason", amqpErr.Reason),
						slog.Int("code", amqpErr.Code),
					)
				}
			}
		} else {
			c.markDisconnected()
		}

		if err := c.reconnect(ctx); err != nil {
			return
		}
	}
}

func (c *Connection) reconnect(ctx context.Context) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.config.ReconnectTime
	policy.MaxInterval = 10 * c.config.ReconnectTime
	policy.MaxElapsedTime = 0

	stop, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-c.done:
			cancel()
		case <-stop.Done():
		}
	}()

	return backoff.RetryNotify(func() error {
		if err := c.Connect(stop); err != nil {
			if errors.Is(err, ErrClosed) {
				return backoff.Permanent(err)
			}

			return err
		}

		return nil
	}, backoff.WithContext(policy, stop), func(err error, next time.Duration) {
		c.log.WarnWithContext(ctx, "rabbitmq reconnect failed",
			slog.String("error", err.Error()),
			slog.Duration("retry_in", next),
		)
	})
}

func (c *Connection) markDisconnected() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.ready:
		c.ready = make(chan struct{})
	default:
	}

	c.conn = nil
}

// Channel opens a channel on the current connection without waiting.
func (c *Connection) Channel() (*amqp.Channel, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return nil, ErrNotConnected
	}

	return conn.Channel()
}

// WaitChannel blocks until a connection is available and opens a channel on it.
func (c *Connection) WaitChannel(ctx context.Context) (*amqp.Channel, error) {
	for {
		c.mu.RLock()
		ready := c.ready
		c.mu.RUnlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.done:
			return nil, ErrClosed
		case <-ready:
		}

		ch, err := c.Channel()
		if err == nil {
			return ch, nil
		}

		// The connection dropped between the signal and the open; let
		// Supervise notice and retry after the reconnect interval.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.done:
			return nil, ErrClosed
		case <-time.After(c.config.ReconnectTime):
		}
	}
}

// Healthy reports whether the connection is open.
func (c *Connection) Healthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.conn != nil && !c.conn.IsClosed()
}

// ReconnectDelay is the base interval between reconnect attempts.
func (c *Connection) ReconnectDelay() time.Duration {
	return c.config.ReconnectTime
}

// Check adapts Healthy to a readiness probe.
func (c *Connection) Check() error {
	if !c.Healthy() {
		return ErrNotConnected
	}

	return nil
}

// Close stops supervision and closes the connection.
func (c *Connection) Close() error {
	var err error

	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		conn := c.conn
		c.conn = nil
		c.mu.Unlock()

		if conn != nil && !conn.IsClosed() {
			err = conn.Close()
		}
	})

	return err
}
