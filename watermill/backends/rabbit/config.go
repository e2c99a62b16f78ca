package rabbit

import (
	"github.com/innotter/stats/config"
)

type Config struct {
	Exchange       string
	Queue          string
	Prefetch       int
	ContentTypeKey string
}

func Load(cfg *config.Config) Config {
	cfg.SetDefault("MQ_RABBIT_EXCHANGE", "innotter")       // Topic exchange the producer publishes to
	cfg.SetDefault("MQ_RABBIT_QUEUE", "stats")             // Durable queue the projector consumes
	cfg.SetDefault("MQ_RABBIT_PREFETCH", 1)                // Unacked deliveries per consumer
	cfg.SetDefault("MQ_RABBIT_CONTENT_TYPE_KEY", "method") // Metadata key mirrored into content_type

	conf := Config{
		Exchange:       cfg.GetString("MQ_RABBIT_EXCHANGE"),
		Queue:          cfg.GetString("MQ_RABBIT_QUEUE"),
		Prefetch:       cfg.GetInt("MQ_RABBIT_PREFETCH"),
		ContentTypeKey: cfg.GetString("MQ_RABBIT_CONTENT_TYPE_KEY"),
	}

	if conf.Prefetch <= 0 {
		conf.Prefetch = 1
	}

	return conf
}
