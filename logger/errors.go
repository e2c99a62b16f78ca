package logger

import "errors"

// ErrInvalidLogLevel is returned for a level outside ERROR_LEVEL..DEBUG_LEVEL.
var ErrInvalidLogLevel = errors.New("invalid log level")
