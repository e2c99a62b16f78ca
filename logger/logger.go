package logger

import (
	"context"
	"log/slog"
	"time"

	"github.com/innotter/stats/logger/tracer"
)

type SlogLogger struct {
	logger *slog.Logger
}

func New(cfg Configuration) (*SlogLogger, error) {
	// Check config and set default values if needed
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	handler := slog.NewJSONHandler(cfg.Writer, &slog.HandlerOptions{
		Level:     convertLevel(cfg.Level),
		AddSource: true,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, a.Value.Time().Format(cfg.TimeFormat))
			}
			return a
		},
	})

	return &SlogLogger{logger: slog.New(handler)}, nil
}

func (log *SlogLogger) Close() error {
	// slog.Logger doesn't have a Close method
	return nil
}

// Slog exposes the underlying *slog.Logger for libraries that want one.
func (log *SlogLogger) Slog() *slog.Logger {
	return log.logger
}

// convertLevel converts our log level to slog level
func convertLevel(level int) slog.Level {
	switch level {
	case ERROR_LEVEL:
		return slog.LevelError
	case WARN_LEVEL:
		return slog.LevelWarn
	case INFO_LEVEL:
		return slog.LevelInfo
	case DEBUG_LEVEL:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

func (log *SlogLogger) log(ctx context.Context, level slog.Level, msg string, fields []slog.Attr) {
	if !log.logger.Enabled(ctx, level) {
		return
	}

	attrs := fields

	if traceID := tracer.TraceID(ctx); traceID != "" {
		tracer.RecordLog(ctx, level, msg, fields...)
		attrs = append(attrs[:len(attrs):len(attrs)], slog.String("traceID", traceID))
	}

	record := slog.NewRecord(time.Now(), level, msg, callerPC())
	record.AddAttrs(attrs...)

	_ = log.logger.Handler().Handle(ctx, record) //nolint:errcheck // nothing to do with a broken writer
}
