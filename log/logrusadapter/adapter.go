// Package logrusadapter provides a logger that writes to a
// github.com/sirupsen/logrus.Logger.
package logrusadapter

import (
	"context"

	"github.com/jackc/pgcore"
	"github.com/sirupsen/logrus"
)

type Logger struct {
	l logrus.FieldLogger
}

func NewLogger(l logrus.FieldLogger) *Logger {
	return &Logger{l: l}
}

func (l *Logger) Log(ctx context.Context, level pgcore.LogLevel, msg string, data map[string]interface{}) {
	var logger logrus.FieldLogger
	if data != nil {
		logger = l.l.WithFields(data)
	} else {
		logger = l.l
	}

	switch level {
	case pgcore.LogLevelTrace:
		logger.WithField("PGCORE_LOG_LEVEL", level).Debug(msg)
	case pgcore.LogLevelDebug:
		logger.Debug(msg)
	case pgcore.LogLevelInfo:
		logger.Info(msg)
	case pgcore.LogLevelWarn:
		logger.Warn(msg)
	case pgcore.LogLevelError:
		logger.Error(msg)
	default:
		logger.WithField("INVALID_PGCORE_LOG_LEVEL", level).Error(msg)
	}
}
