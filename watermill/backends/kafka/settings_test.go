package kafka

import (
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innotter/stats/config"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg, err := config.New()
	require.NoError(t, err)

	return cfg
}

func TestLoadSettingsDefaults(t *testing.T) {
	conf, err := loadSettings(newTestConfig(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"localhost:9092"}, conf.brokers)
	assert.Equal(t, "innotter", conf.topic)
	assert.Equal(t, "stats", conf.consumerGroup)
	assert.True(t, conf.enableOTEL)
	assert.Equal(t, 100*time.Millisecond, conf.nackSleep)
	assert.Equal(t, time.Second, conf.reconnectSleep)

	assert.Equal(t, "innotter-stats", conf.publisherSarama.ClientID)
	assert.Equal(t, sarama.DefaultVersion, conf.publisherSarama.Version)
	assert.Equal(t, sarama.CompressionSnappy, conf.publisherSarama.Producer.Compression)
	assert.Equal(t, 10, conf.publisherSarama.Producer.Retry.Max)
	assert.True(t, conf.publisherSarama.Producer.Idempotent)
	assert.Equal(t, 1, conf.publisherSarama.Net.MaxOpenRequests)

	assert.Equal(t, sarama.OffsetOldest, conf.subscriberSarama.Consumer.Offsets.Initial)
	assert.Equal(t, sarama.RangeBalanceStrategyName,
		conf.subscriberSarama.Consumer.Group.Rebalance.GroupStrategies[0].Name())
}

func TestLoadSettingsOverrides(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Set("MQ_KAFKA_BROKERS", "broker1:9092, broker2:9092")
	cfg.Set("MQ_KAFKA_TOPIC", "events")
	cfg.Set("MQ_KAFKA_CONSUMER_GROUP", "custom-group")
	cfg.Set("MQ_KAFKA_CONSUMER_INITIAL_OFFSET", "newest")
	cfg.Set("MQ_KAFKA_REBALANCE_STRATEGY", "roundrobin")
	cfg.Set("MQ_KAFKA_SARAMA_VERSION", "2.5.0")
	cfg.Set("MQ_KAFKA_PRODUCER_COMPRESSION", "gzip")
	cfg.Set("MQ_KAFKA_PRODUCER_IDEMPOTENT", false)

	conf, err := loadSettings(cfg)
	require.NoError(t, err)

	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, conf.brokers)
	assert.Equal(t, "events", conf.topic)
	assert.Equal(t, "custom-group", conf.consumerGroup)
	assert.Equal(t, sarama.OffsetNewest, conf.subscriberSarama.Consumer.Offsets.Initial)
	assert.Equal(t, sarama.RoundRobinBalanceStrategyName,
		conf.subscriberSarama.Consumer.Group.Rebalance.GroupStrategies[0].Name())

	version, err := sarama.ParseKafkaVersion("2.5.0")
	require.NoError(t, err)
	assert.Equal(t, version, conf.publisherSarama.Version)
	assert.Equal(t, sarama.CompressionGZIP, conf.publisherSarama.Producer.Compression)
	assert.False(t, conf.publisherSarama.Producer.Idempotent)
}

func TestLoadSettingsRejectsBadOptions(t *testing.T) {
	for key, value := range map[string]string{
		"MQ_KAFKA_CONSUMER_INITIAL_OFFSET": "middle",
		"MQ_KAFKA_REBALANCE_STRATEGY":      "random",
		"MQ_KAFKA_SARAMA_VERSION":          "not-a-version",
		"MQ_KAFKA_PRODUCER_COMPRESSION":    "brotli",
	} {
		t.Run(key, func(t *testing.T) {
			cfg := newTestConfig(t)
			cfg.Set(key, value)

			_, err := loadSettings(cfg)
			require.ErrorIs(t, err, ErrInvalidOption)
		})
	}

	cfg := newTestConfig(t)
	cfg.Set("MQ_KAFKA_BROKERS", " , ")

	_, err := loadSettings(cfg)
	require.ErrorIs(t, err, ErrNoBrokers)
}
