package watermill

// Metadata keys set by the backends on every received message.
const (
	// MetaRoutingKey carries the key the message was published with.
	MetaRoutingKey = "routing_key"
	// MetaReceivedTopic carries the topic the handler subscribed to.
	MetaReceivedTopic = "received_topic"
)
