package watermill

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// InjectTrace writes the span context of ctx into the message metadata
// using the global propagator (W3C traceparent).
func InjectTrace(ctx context.Context, msg *message.Message) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(msg.Metadata))
}

// ExtractTrace returns parent enriched with the remote span context found
// in the message metadata.
func ExtractTrace(parent context.Context, msg *message.Message) context.Context {
	return otel.GetTextMapPropagator().Extract(parent, propagation.MapCarrier(msg.Metadata))
}

// OTelMiddleware opens a span per published and per consumed message.
type OTelMiddleware struct {
	tracer trace.Tracer
}

func NewOTELMiddleware(provider trace.TracerProvider) *OTelMiddleware {
	return &OTelMiddleware{
		tracer: provider.Tracer("github.com/innotter/stats/watermill"),
	}
}

func (o *OTelMiddleware) HandlerMiddleware() message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			ctx := ExtractTrace(ensureContext(msg.Context()), msg)

			ctx, span := o.tracer.Start(ctx, "watermill.consume",
				trace.WithSpanKind(trace.SpanKindConsumer),
				trace.WithAttributes(
					attribute.String("messaging.destination", msg.Metadata.Get(MetaRoutingKey)),
					attribute.String("messaging.message_id", msg.UUID),
				),
			)
			defer span.End()

			msg.SetContext(ctx)

			msgs, err := h(msg)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}

			return msgs, err
		}
	}
}
