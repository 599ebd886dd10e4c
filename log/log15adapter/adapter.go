// Package log15adapter provides a logger that writes to a
// gopkg.in/inconshreveable/log15.v2.Logger.
package log15adapter

import (
	"context"

	"github.com/jackc/pgcore"
	log "gopkg.in/inconshreveable/log15.v2"
)

// Logger is a pgcore logging facade over log15.
type Logger struct {
	l log.Logger
}

func NewLogger(l log.Logger) *Logger {
	return &Logger{l: l}
}

func (l *Logger) Log(ctx context.Context, level pgcore.LogLevel, msg string, data map[string]interface{}) {
	logArgs := make([]interface{}, 0, len(data)*2)
	for k, v := range data {
		logArgs = append(logArgs, k, v)
	}

	switch level {
	case pgcore.LogLevelTrace:
		logArgs = append(logArgs, "PGCORE_LOG_LEVEL", level)
		l.l.Debug(msg, logArgs...)
	case pgcore.LogLevelDebug:
		l.l.Debug(msg, logArgs...)
	case pgcore.LogLevelInfo:
		l.l.Info(msg, logArgs...)
	case pgcore.LogLevelWarn:
		l.l.Warn(msg, logArgs...)
	case pgcore.LogLevelError:
		l.l.Error(msg, logArgs...)
	default:
		logArgs = append(logArgs, "INVALID_PGCORE_LOG_LEVEL", level)
		l.l.Error(msg, logArgs...)
	}
}
