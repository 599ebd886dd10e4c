package pgcore

import (
	"github.com/jackc/pgcore/pgconn"
)

// Logger is the interface used to get logging from pgcore internals. The
// adapters under log/ wrap common logging libraries in it.
type Logger = pgconn.Logger

// LogLevel is re-exported for adapter implementations.
type LogLevel = pgconn.LogLevel

const (
	LogLevelTrace = pgconn.LogLevelTrace
	LogLevelDebug = pgconn.LogLevelDebug
	LogLevelInfo  = pgconn.LogLevelInfo
	LogLevelWarn  = pgconn.LogLevelWarn
	LogLevelError = pgconn.LogLevelError
	LogLevelNone  = pgconn.LogLevelNone
)

// LogLevelFromString converts a log level string to its constant.
func LogLevelFromString(s string) (LogLevel, error) {
	return pgconn.LogLevelFromString(s)
}
