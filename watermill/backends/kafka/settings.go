package kafka

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	wmkafka "github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"

	"github.com/innotter/stats/config"
)

var (
	ErrNoBrokers     = errors.New("MQ_KAFKA_BROKERS must not be empty")
	ErrInvalidOption = errors.New("invalid kafka option")
)

type settings struct {
	brokers        []string
	topic          string
	consumerGroup  string
	enableOTEL     bool
	nackSleep      time.Duration
	reconnectSleep time.Duration

	publisherSarama  *sarama.Config
	subscriberSarama *sarama.Config
}

func loadSettings(cfg *config.Config) (*settings, error) {
	cfg.SetDefault("MQ_KAFKA_BROKERS", "localhost:9092")         // comma separated
	cfg.SetDefault("MQ_KAFKA_TOPIC", "innotter")                 // topic carrying pages, posts and users events
	cfg.SetDefault("MQ_KAFKA_CONSUMER_GROUP", "stats")           // projector consumer group
	cfg.SetDefault("MQ_KAFKA_CLIENT_ID", "innotter-stats")       // sarama client id
	cfg.SetDefault("MQ_KAFKA_CONSUMER_INITIAL_OFFSET", "oldest") // Select: oldest, newest
	cfg.SetDefault("MQ_KAFKA_REBALANCE_STRATEGY", "range")       // Select: range, roundrobin, sticky
	cfg.SetDefault("MQ_KAFKA_SARAMA_VERSION", "default")         // default, max or a version such as 3.6.0
	cfg.SetDefault("MQ_KAFKA_PRODUCER_COMPRESSION", "snappy")    // Select: none, gzip, lz4, snappy, zstd
	cfg.SetDefault("MQ_KAFKA_PRODUCER_RETRY_MAX", 10)            // sarama producer retries
	cfg.SetDefault("MQ_KAFKA_PRODUCER_IDEMPOTENT", true)         // exactly-once per partition on the producer side
	cfg.SetDefault("MQ_KAFKA_OTEL_ENABLED", true)                // sarama spans through otelsarama
	cfg.SetDefault("MQ_KAFKA_SUBSCRIBER_NACK_SLEEP", "100ms")    // pause before redelivering a nacked message
	cfg.SetDefault("MQ_KAFKA_SUBSCRIBER_RECONNECT_SLEEP", "1s")  // pause between consumer group reconnects

	brokers := splitList(cfg.GetString("MQ_KAFKA_BROKERS"))
	if len(brokers) == 0 {
		return nil, ErrNoBrokers
	}

	initialOffset, err := parseInitialOffset(cfg.GetString("MQ_KAFKA_CONSUMER_INITIAL_OFFSET"))
	if err != nil {
		return nil, err
	}

	strategy, err := parseRebalanceStrategy(cfg.GetString("MQ_KAFKA_REBALANCE_STRATEGY"))
	if err != nil {
		return nil, err
	}

	version, err := parseKafkaVersion(cfg.GetString("MQ_KAFKA_SARAMA_VERSION"))
	if err != nil {
		return nil, err
	}

	compression, err := parseCompressionCodec(cfg.GetString("MQ_KAFKA_PRODUCER_COMPRESSION"))
	if err != nil {
		return nil, err
	}

	clientID := cfg.GetString("MQ_KAFKA_CLIENT_ID")
	idempotent := cfg.GetBool("MQ_KAFKA_PRODUCER_IDEMPOTENT")

	pub := wmkafka.DefaultSaramaSyncPublisherConfig()
	pub.ClientID = clientID
	pub.Version = version
	pub.Producer.Retry.Max = cfg.GetInt("MQ_KAFKA_PRODUCER_RETRY_MAX")
	pub.Producer.RequiredAcks = sarama.WaitForAll
	pub.Producer.Idempotent = idempotent
	pub.Producer.Compression = compression

	if idempotent {
		pub.Net.MaxOpenRequests = 1
	}

	sub := wmkafka.DefaultSaramaSubscriberConfig()
	sub.ClientID = clientID
	sub.Version = version
	sub.Consumer.Offsets.Initial = initialOffset
	sub.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{strategy}

	return &settings{
		brokers:          brokers,
		topic:            cfg.GetString("MQ_KAFKA_TOPIC"),
		consumerGroup:    cfg.GetString("MQ_KAFKA_CONSUMER_GROUP"),
		enableOTEL:       cfg.GetBool("MQ_KAFKA_OTEL_ENABLED"),
		nackSleep:        cfg.GetDuration("MQ_KAFKA_SUBSCRIBER_NACK_SLEEP"),
		reconnectSleep:   cfg.GetDuration("MQ_KAFKA_SUBSCRIBER_RECONNECT_SLEEP"),
		publisherSarama:  pub,
		subscriberSarama: sub,
	}, nil
}

func splitList(raw string) []string {
	result := []string{}

	for value := range strings.SplitSeq(raw, ",") {
		if value = strings.TrimSpace(value); value != "" {
			result = append(result, value)
		}
	}

	return result
}

func parseInitialOffset(raw string) (int64, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "latest", "newest":
		return sarama.OffsetNewest, nil
	case "", "oldest", "earliest":
		return sarama.OffsetOldest, nil
	default:
		return 0, fmt.Errorf("%w: MQ_KAFKA_CONSUMER_INITIAL_OFFSET=%q", ErrInvalidOption, raw)
	}
}

func parseRebalanceStrategy(raw string) (sarama.BalanceStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "range":
		return sarama.NewBalanceStrategyRange(), nil
	case "roundrobin", "round_robin":
		return sarama.NewBalanceStrategyRoundRobin(), nil
	case "sticky":
		return sarama.NewBalanceStrategySticky(), nil
	default:
		return nil, fmt.Errorf("%w: MQ_KAFKA_REBALANCE_STRATEGY=%q", ErrInvalidOption, raw)
	}
}

func parseKafkaVersion(raw string) (sarama.KafkaVersion, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "default":
		return sarama.DefaultVersion, nil
	case "max":
		return sarama.MaxVersion, nil
	default:
		version, err := sarama.ParseKafkaVersion(raw)
		if err != nil {
			return sarama.KafkaVersion{}, fmt.Errorf("%w: MQ_KAFKA_SARAMA_VERSION: %w", ErrInvalidOption, err)
		}

		return version, nil
	}
}

func parseCompressionCodec(raw string) (sarama.CompressionCodec, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "none":
		return sarama.CompressionNone, nil
	case "gzip":
		return sarama.CompressionGZIP, nil
	case "lz4":
		return sarama.CompressionLZ4, nil
	case "snappy":
		return sarama.CompressionSnappy, nil
	case "zstd":
		return sarama.CompressionZSTD, nil
	default:
		return sarama.CompressionNone, fmt.Errorf("%w: MQ_KAFKA_PRODUCER_COMPRESSION=%q", ErrInvalidOption, raw)
	}
}
