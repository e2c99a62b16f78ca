package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/innotter/stats/config"
	"github.com/innotter/stats/domain"
	"github.com/innotter/stats/logger"
	mqrabbit "github.com/innotter/stats/mq/rabbit"
	"github.com/innotter/stats/producer"
	"github.com/innotter/stats/watermill"
	"github.com/innotter/stats/watermill/backends/kafka"
	rabbitbackend "github.com/innotter/stats/watermill/backends/rabbit"
)

var ErrPublishNeedsBroker = errors.New("publish requires MQ_TYPE=rabbitmq or kafka")

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish one event to the exchange",
	Example: `  innotter-stats publish --method create_pages \
    --body '{"id":1,"name":"p","owner_id":7,"owner_email":"a@b.c","owner_username":"u"}'`,
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().String("method", "", "operation tag, e.g. create_pages")
	publishCmd.Flags().String("routing-key", "", "routing key (defaults to the entity table)")
	publishCmd.Flags().String("body", "", "JSON payload")
	publishCmd.Flags().Duration("timeout", 10*time.Second, "broker connect timeout")

	_ = publishCmd.MarkFlagRequired("method")
	_ = publishCmd.MarkFlagRequired("body")
}

func runPublish(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()

	tag, _ := flags.GetString("method")
	routingKey, _ := flags.GetString("routing-key")
	body, _ := flags.GetString("body")
	timeout, _ := flags.GetDuration("timeout")

	env, err := domain.DecodeEnvelope(tag, []byte(body))
	if err != nil {
		return err
	}

	if err := env.Validate(); err != nil {
		return err
	}

	if routingKey == "" {
		routingKey = env.Method.Entity.Table()
	}

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	cfg.SetDefault("MQ_TYPE", mqRabbit)

	log, cleanup, err := logger.NewDefault(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	backend, err := brokerBackend(ctx, log, cfg)
	if err != nil {
		return err
	}

	client, err := watermill.New(log, cfg, backend, nil, nil, watermill.DisableDLQ())
	if err != nil {
		_ = backend.Close()

		return fmt.Errorf("init messaging: %w", err)
	}

	defer func() {
		if errClose := client.Close(); errClose != nil {
			log.Warn("close messaging", slog.String("error", errClose.Error()))
		}
	}()

	// A one-shot publish must report failures, whatever the service policy.
	pub := producer.NewWithPolicy(log, client.Publisher, producer.FailClosed)

	if err := pub.Publish(ctx, routingKey, env.Method, env.Payload); err != nil {
		return err
	}

	log.Info("event published",
		slog.String("method", env.Method.String()),
		slog.String("routing_key", routingKey),
	)

	return nil
}

// brokerBackend connects to the broker named by MQ_TYPE. The in-process
// channel is rejected: nothing would consume the event.
func brokerBackend(ctx context.Context, log logger.Logger, cfg *config.Config) (watermill.Backend, error) {
	switch mqType := strings.ToLower(cfg.GetString("MQ_TYPE")); mqType {
	case mqRabbit:
		conn := mqrabbit.New(log, cfg)
		if err := conn.Connect(ctx); err != nil {
			return nil, fmt.Errorf("connect rabbitmq: %w", err)
		}

		return &ownedConn{Backend: rabbitbackend.New(log, cfg, conn), conn: conn}, nil
	case mqKafka:
		return kafka.New(log, cfg, routedKeys()...)
	default:
		return nil, fmt.Errorf("%w: got %q", ErrPublishNeedsBroker, mqType)
	}
}

// ownedConn closes the AMQP connection together with the backend.
type ownedConn struct {
	*rabbitbackend.Backend
	conn *mqrabbit.Connection
}

func (o *ownedConn) Close() error {
	return errors.Join(o.Backend.Close(), o.conn.Close())
}
