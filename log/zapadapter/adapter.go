// Package zapadapter provides a logger that writes to a go.uber.org/zap.Logger.
package zapadapter

import (
	"context"

	"github.com/jackc/pgcore"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	logger *zap.Logger
}

func NewLogger(logger *zap.Logger) *Logger {
	return &Logger{logger: logger.WithOptions(zap.AddCallerSkip(1))}
}

func (pl *Logger) Log(ctx context.Context, level pgcore.LogLevel, msg string, data map[string]interface{}) {
	fields := make([]zapcore.Field, len(data))
	i := 0
	for k, v := range data {
		fields[i] = zap.Any(k, v)
		i++
	}

	switch level {
	case pgcore.LogLevelTrace:
		pl.logger.Debug(msg, append(fields, zap.Stringer("PGCORE_LOG_LEVEL", level))...)
	case pgcore.LogLevelDebug:
		pl.logger.Debug(msg, fields...)
	case pgcore.LogLevelInfo:
		pl.logger.Info(msg, fields...)
	case pgcore.LogLevelWarn:
		pl.logger.Warn(msg, fields...)
	case pgcore.LogLevelError:
		pl.logger.Error(msg, fields...)
	default:
		pl.logger.Error(msg, append(fields, zap.Stringer("PGCORE_LOG_LEVEL", level))...)
	}
}
