package logger

import (
	"context"
	"log/slog"
	"runtime"
)

// callerDepth skips runtime.Callers, callerPC, (*SlogLogger).log and the level method.
const callerDepth = 4

func callerPC() uintptr {
	var pcs [1]uintptr
	runtime.Callers(callerDepth, pcs[:])

	return pcs[0]
}

// Warn ================================================================================================================

func (log *SlogLogger) Warn(msg string, fields ...slog.Attr) {
	log.log(context.Background(), slog.LevelWarn, msg, fields)
}

func (log *SlogLogger) WarnWithContext(ctx context.Context, msg string, fields ...slog.Attr) {
	log.log(ctx, slog.LevelWarn, msg, fields)
}

// Error ===============================================================================================================

func (log *SlogLogger) Error(msg string, fields ...slog.Attr) {
	log.log(context.Background(), slog.LevelError, msg, fields)
}

func (log *SlogLogger) ErrorWithContext(ctx context.Context, msg string, fields ...slog.Attr) {
	log.log(ctx, slog.LevelError, msg, fields)
}

// Info ================================================================================================================

func (log *SlogLogger) Info(msg string, fields ...slog.Attr) {
	log.log(context.Background(), slog.LevelInfo, msg, fields)
}

func (log *SlogLogger) InfoWithContext(ctx context.Context, msg string, fields ...slog.Attr) {
	log.log(ctx, slog.LevelInfo, msg, fields)
}

// Debug ===============================================================================================================

func (log *SlogLogger) Debug(msg string, fields ...slog.Attr) {
	log.log(context.Background(), slog.LevelDebug, msg, fields)
}

func (log *SlogLogger) DebugWithContext(ctx context.Context, msg string, fields ...slog.Attr) {
	log.log(ctx, slog.LevelDebug, msg, fields)
}
