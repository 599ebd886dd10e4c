// Package kitlogadapter provides a logger that writes to a
// github.com/go-kit/log.Logger.
package kitlogadapter

import (
	"context"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/jackc/pgcore"
)

type Logger struct {
	l log.Logger
}

func NewLogger(l log.Logger) *Logger {
	return &Logger{l: l}
}

func (l *Logger) Log(ctx context.Context, lvl pgcore.LogLevel, msg string, data map[string]interface{}) {
	logger := l.l
	for k, v := range data {
		logger = log.With(logger, k, v)
	}

	switch lvl {
	case pgcore.LogLevelTrace:
		level.Debug(logger).Log("PGCORE_LOG_LEVEL", lvl, "msg", msg)
	case pgcore.LogLevelDebug:
		level.Debug(logger).Log("msg", msg)
	case pgcore.LogLevelInfo:
		level.Info(logger).Log("msg", msg)
	case pgcore.LogLevelWarn:
		level.Warn(logger).Log("msg", msg)
	case pgcore.LogLevelError:
		level.Error(logger).Log("msg", msg)
	default:
		level.Error(logger).Log("INVALID_PGCORE_LOG_LEVEL", lvl, "error", msg)
	}
}
