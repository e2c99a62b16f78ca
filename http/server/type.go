// Package httpserver provides HTTP server configuration and initialization.
package httpserver

import (
	"time"

	"github.com/innotter/stats/config"
)

// Config contains base configuration for the HTTP API server.
type Config struct {
	Port    int
	Timeout time.Duration
}

// LoadConfig reads HTTP_PORT and HTTP_TIMEOUT.
func LoadConfig(cfg *config.Config) Config {
	cfg.SetDefault("HTTP_PORT", 8000)     // port of the stats API
	cfg.SetDefault("HTTP_TIMEOUT", "60s") // per-request handler timeout

	return Config{
		Port:    cfg.GetInt("HTTP_PORT"),
		Timeout: cfg.GetDuration("HTTP_TIMEOUT"),
	}
}
