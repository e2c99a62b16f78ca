package logger

import (
	"os"
	"time"
)

// Log levels, ordered from the least to the most verbose.
const (
	ERROR_LEVEL = iota
	WARN_LEVEL
	INFO_LEVEL
	DEBUG_LEVEL
)

// Validate fills empty fields with defaults and rejects unknown levels.
func (c *Configuration) Validate() error {
	if c.Writer == nil {
		c.Writer = os.Stdout
	}

	if c.TimeFormat == "" {
		c.TimeFormat = time.RFC3339Nano
	}

	if c.Level < ERROR_LEVEL || c.Level > DEBUG_LEVEL {
		return ErrInvalidLogLevel
	}

	return nil
}
