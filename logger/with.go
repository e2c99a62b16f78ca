package logger

import "log/slog"

// WithFields returns a logger that adds fields to every record.
func (log *SlogLogger) WithFields(fields ...slog.Attr) *SlogLogger {
	if len(fields) == 0 {
		return log
	}

	args := make([]any, 0, len(fields))
	for _, field := range fields {
		args = append(args, field)
	}

	return &SlogLogger{logger: log.logger.With(args...)}
}
