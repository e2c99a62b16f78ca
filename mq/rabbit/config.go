package rabbit

import (
	"time"

	"github.com/innotter/stats/config"
)

type Config struct {
	URI           string
	ReconnectTime time.Duration
}

// loadConfig - Construct a new RabbitMQ configuration.
func loadConfig(cfg *config.Config) *Config {
	cfg.SetDefault("MQ_RABBIT_URI", "amqp://localhost:5672") // RabbitMQ URI
	// RabbitMQ reconnects after delay seconds
	cfg.SetDefault("MQ_RECONNECT_DELAY_SECONDS", 3)

	delay := time.Duration(cfg.GetInt("MQ_RECONNECT_DELAY_SECONDS")) * time.Second
	if delay <= 0 {
		delay = time.Second
	}

	return &Config{
		URI:           cfg.GetString("MQ_RABBIT_URI"),
		ReconnectTime: delay,
	}
}
