/*
Package producer publishes page, post and user mutations to the exchange.

Delivery is best effort by default: when the broker is unreachable the
event is logged and dropped, and callers never see an error. The
fail_closed policy returns ErrBrokerUnavailable instead.
*/
package producer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"

	"github.com/innotter/stats/config"
	"github.com/innotter/stats/domain"
	"github.com/innotter/stats/logger"
)

// Policy selects what Publish does when the broker rejects a message.
type Policy string

const (
	FailOpen   Policy = "fail_open"
	FailClosed Policy = "fail_closed"
)

var (
	ErrBrokerUnavailable = errors.New("broker unavailable")
	ErrUnknownPolicy     = errors.New("unknown publish policy")
)

type Publisher struct {
	log    logger.Logger
	pub    message.Publisher
	policy Policy
}

// New reads MQ_PUBLISH_POLICY from cfg.
func New(log logger.Logger, cfg *config.Config, pub message.Publisher) (*Publisher, error) {
	cfg.SetDefault("MQ_PUBLISH_POLICY", string(FailOpen)) // Select: fail_open, fail_closed

	policy := Policy(cfg.GetString("MQ_PUBLISH_POLICY"))
	if policy != FailOpen && policy != FailClosed {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, policy)
	}

	return NewWithPolicy(log, pub, policy), nil
}

func NewWithPolicy(log logger.Logger, pub message.Publisher, policy Policy) *Publisher {
	return &Publisher{
		log:    log,
		pub:    pub,
		policy: policy,
	}
}

// Publish sends body under method with the given routing key.
func (p *Publisher) Publish(ctx context.Context, routingKey string, method domain.Method, body map[string]any) error {
	if !method.Valid() {
		return fmt.Errorf("%w: %s", domain.ErrUnknownMethod, method)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s body: %w", method, err)
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.Metadata.Set(domain.MethodMetadataKey, method.String())
	msg.SetContext(ctx)

	if err := p.pub.Publish(routingKey, msg); err != nil {
		if p.policy == FailOpen {
			p.log.WarnWithContext(ctx, "event dropped, broker unavailable",
				slog.String("method", method.String()),
				slog.String("routing_key", routingKey),
				slog.String("error", err.Error()),
			)

			return nil
		}

		return fmt.Errorf("%w: %w", ErrBrokerUnavailable, err)
	}

	p.log.DebugWithContext(ctx, "event published",
		slog.String("method", method.String()),
		slog.String("routing_key", routingKey),
		slog.String("message_id", msg.UUID),
	)

	return nil
}

// PublishPage publishes op on page, routed by the pages table.
func (p *Publisher) PublishPage(ctx context.Context, op domain.Operation, page domain.Page) error {
	method := domain.Method{Op: op, Entity: domain.EntityPage}

	return p.Publish(ctx, domain.EntityPage.Table(), method, PageBody(op, page))
}

// PublishPost publishes op on post, routed by the posts table.
func (p *Publisher) PublishPost(ctx context.Context, op domain.Operation, post domain.Post) error {
	method := domain.Method{Op: op, Entity: domain.EntityPost}

	return p.Publish(ctx, domain.EntityPost.Table(), method, PostBody(op, post))
}

// PublishUser publishes op on user, routed by the users table.
func (p *Publisher) PublishUser(ctx context.Context, op domain.Operation, user domain.User) error {
	method := domain.Method{Op: op, Entity: domain.EntityUser}

	return p.Publish(ctx, domain.EntityUser.Table(), method, UserBody(user))
}
