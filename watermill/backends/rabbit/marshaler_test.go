package rabbit

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innotter/stats/watermill"
)

func TestMarshalMirrorsContentType(t *testing.T) {
	m := Marshaler{ContentTypeKey: "method"}

	msg := message.NewMessage("uuid-1", []byte(`{"id":41}`))
	msg.Metadata.Set("method", "create_pages")

	publishing, err := m.Marshal(msg)
	require.NoError(t, err)

	assert.Equal(t, "create_pages", publishing.ContentType)
	assert.Equal(t, "create_pages", publishing.Headers["method"])
	assert.Equal(t, "uuid-1", publishing.MessageId)
	assert.Equal(t, amqp.Persistent, publishing.DeliveryMode)
	assert.JSONEq(t, `{"id":41}`, string(publishing.Body))
}

func TestUnmarshalFallsBackToContentType(t *testing.T) {
	m := Marshaler{ContentTypeKey: "method"}

	msg, err := m.Unmarshal(amqp.Delivery{
		ContentType: "update_posts",
		RoutingKey:  "posts",
		Body:        []byte(`{"id":100,"liked_by":3}`),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, msg.UUID)
	assert.Equal(t, "update_posts", msg.Metadata.Get("method"))
	assert.Equal(t, "posts", msg.Metadata.Get(watermill.MetaRoutingKey))
}

func TestUnmarshalPrefersHeader(t *testing.T) {
	m := Marshaler{ContentTypeKey: "method"}

	msg, err := m.Unmarshal(amqp.Delivery{
		MessageId:   "uuid-2",
		ContentType: "application/json",
		Headers: amqp.Table{
			"method":      "delete_pages",
			"traceparent": []byte("00-463ac35c9f6413ad48485a3953bb6124-0020000000000001-01"),
			"attempt":     int32(2),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "uuid-2", msg.UUID)
	assert.Equal(t, "delete_pages", msg.Metadata.Get("method"))
	assert.Equal(t, "00-463ac35c9f6413ad48485a3953bb6124-0020000000000001-01", msg.Metadata.Get("traceparent"))
	assert.Equal(t, "2", msg.Metadata.Get("attempt"))
}
