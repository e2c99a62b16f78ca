package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/innotter/stats/config"
)

// NewDefault builds the process logger from LOG_LEVEL and LOG_TIME_FORMAT.
// Every record carries the service name and version.
//
//nolint:ireturn // callers depend on the interface
func NewDefault(_ context.Context, cfg *config.Config) (Logger, func(), error) {
	cfg.SetDefault("LOG_LEVEL", "info") // Select: error, warn, info, debug (or 0-3)
	cfg.SetDefault("LOG_TIME_FORMAT", time.RFC3339Nano)
	cfg.SetDefault("SERVICE_NAME", "innotter-stats")
	cfg.SetDefault("SERVICE_VERSION", "dev")

	level, err := ParseLevel(cfg.GetString("LOG_LEVEL"))
	if err != nil {
		return nil, nil, err
	}

	log, err := New(Configuration{
		Level:      level,
		TimeFormat: cfg.GetString("LOG_TIME_FORMAT"),
	})
	if err != nil {
		return nil, nil, err
	}

	tagged := log.WithFields(
		slog.String("service", cfg.GetString("SERVICE_NAME")),
		slog.String("version", cfg.GetString("SERVICE_VERSION")),
	)

	cleanup := func() {
		_ = tagged.Close() //nolint:errcheck // nothing buffered
	}

	return tagged, cleanup, nil
}

// ParseLevel accepts a level name or its number.
func ParseLevel(raw string) (int, error) {
	switch value := strings.ToLower(strings.TrimSpace(raw)); value {
	case "error":
		return ERROR_LEVEL, nil
	case "warn", "warning":
		return WARN_LEVEL, nil
	case "", "info":
		return INFO_LEVEL, nil
	case "debug":
		return DEBUG_LEVEL, nil
	default:
		level, err := strconv.Atoi(value)
		if err != nil || level < ERROR_LEVEL || level > DEBUG_LEVEL {
			return 0, fmt.Errorf("%w: %q", ErrInvalidLogLevel, raw)
		}

		return level, nil
	}
}
