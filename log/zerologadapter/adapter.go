// Package zerologadapter provides a logger that writes to a
// github.com/rs/zerolog.
package zerologadapter

import (
	"context"

	"github.com/jackc/pgcore"
	"github.com/rs/zerolog"
)

type Logger struct {
	logger zerolog.Logger
}

// NewLogger accepts a zerolog.Logger as input and returns a new custom
// pgcore logging facade as output.
func NewLogger(logger zerolog.Logger) *Logger {
	return &Logger{
		logger: logger.With().Str("module", "pgcore").Logger(),
	}
}

func (pl *Logger) Log(ctx context.Context, level pgcore.LogLevel, msg string, data map[string]interface{}) {
	var zlevel zerolog.Level
	switch level {
	case pgcore.LogLevelNone:
		zlevel = zerolog.NoLevel
	case pgcore.LogLevelError:
		zlevel = zerolog.ErrorLevel
	case pgcore.LogLevelWarn:
		zlevel = zerolog.WarnLevel
	case pgcore.LogLevelInfo:
		zlevel = zerolog.InfoLevel
	case pgcore.LogLevelDebug:
		zlevel = zerolog.DebugLevel
	default:
		zlevel = zerolog.DebugLevel
	}

	pgcorelog := pl.logger.With().Fields(data).Logger()
	pgcorelog.WithLevel(zlevel).Msg(msg)
}
