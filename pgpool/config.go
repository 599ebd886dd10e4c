// Package pgpool is a concurrency-safe connection pool for pgconn. Callers
// lease connections with Acquire or run scoped work with AcquireFunc; a
// long-lived Run drives keepalive, idle eviction, minimum-size maintenance
// and graceful shutdown.
package pgpool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/jackc/pgcore/pgconn"
)

var (
	// ErrPoolShutdown is returned by Acquire after shutdown has begun.
	ErrPoolShutdown = errors.New("pool is shutting down")
	// ErrConnectionLimitReached is returned by TryAcquire when no connection
	// is idle.
	ErrConnectionLimitReached = errors.New("connection limit reached")
)

const (
	defaultBackoffBase       = 100 * time.Millisecond
	defaultBackoffCap        = time.Minute
	defaultHealthCheckPeriod = time.Minute
	defaultKeepAliveQuery    = "SELECT 1"
)

// PoolConn is the connection surface the pool manages. *pgconn.PgConn
// implements it; tests substitute fakes.
type PoolConn interface {
	Query(ctx context.Context, sql string, args ...interface{}) (*pgconn.RowStream, error)
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error)
	ExecPrepared(ctx context.Context, desc *pgconn.StatementDescription, args ...interface{}) (*pgconn.RowStream, error)
	Listen(ctx context.Context, channel string) (*pgconn.NotificationStream, error)
	CloseGracefully(ctx context.Context) error
	Close(ctx context.Context) error
	IsClosed() bool
}

// ConnectFunc creates one connection. The pool cancels ctx to abort
// creations during shutdown; implementations must observe it.
type ConnectFunc func(ctx context.Context) (PoolConn, error)

// Config is the pool configuration. Create it with ParseConfig or populate
// it manually; NewPool fills defaults for zero fields.
type Config struct {
	ConnConfig *pgconn.Config

	// ConnectFunc overrides how connections are established. Defaults to
	// pgconn.ConnectConfig with ConnConfig.
	ConnectFunc ConnectFunc

	// MinConns is kept open whenever the server is reachable.
	MinConns int32

	// MaxConns is the soft limit: ordinary demand never grows the pool past
	// it.
	MaxConns int32

	// MaxConnsHardLimit caps burst growth for starved waiters. Zero means
	// equal to MaxConns.
	MaxConnsHardLimit int32

	// MaxConnIdleTime closes connections idle longer than this, while more
	// than MinConns remain. Zero disables idle eviction.
	MaxConnIdleTime time.Duration

	// KeepAlivePeriod runs KeepAliveQuery on connections idle this long.
	// Zero disables keepalive.
	KeepAlivePeriod time.Duration
	KeepAliveQuery  string

	// BackoffBase and BackoffCap bound the exponential delay between
	// attempts when connection creation fails.
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// HealthCheckPeriod is the cadence of the Run maintenance pass.
	HealthCheckPeriod time.Duration

	Tracer Tracer
}

func (c *Config) hardLimit() int32 {
	if c.MaxConnsHardLimit > 0 {
		return c.MaxConnsHardLimit
	}
	return c.MaxConns
}

// ParseConfig parses a libpq connection string with pgconn.ParseConfig and
// applies the pool options carried in it:
//
//	pool_min_conns: integer
//	pool_max_conns: integer greater than 0
//	pool_max_conn_hard_limit: integer >= pool_max_conns
//	pool_max_conn_idle_time: duration string
//	pool_keepalive_period: duration string
//	pool_health_check_period: duration string
func ParseConfig(connString string) (*Config, error) {
	connConfig, err := pgconn.ParseConfig(connString)
	if err != nil {
		return nil, err
	}

	config := &Config{ConnConfig: connConfig}

	if s, ok := connConfig.RuntimeParams["pool_min_conns"]; ok {
		delete(connConfig.RuntimeParams, "pool_min_conns")
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("cannot parse pool_min_conns: %w", err)
		}
		config.MinConns = int32(n)
	}

	if s, ok := connConfig.RuntimeParams["pool_max_conns"]; ok {
		delete(connConfig.RuntimeParams, "pool_max_conns")
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("cannot parse pool_max_conns: %w", err)
		}
		if n < 1 {
			return nil, fmt.Errorf("pool_max_conns too small: %d", n)
		}
		config.MaxConns = int32(n)
	} else {
		config.MaxConns = int32(4)
		if numCPU := int32(runtime.NumCPU()); numCPU > config.MaxConns {
			config.MaxConns = numCPU
		}
	}

	if s, ok := connConfig.RuntimeParams["pool_max_conn_hard_limit"]; ok {
		delete(connConfig.RuntimeParams, "pool_max_conn_hard_limit")
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("cannot parse pool_max_conn_hard_limit: %w", err)
		}
		if int32(n) < config.MaxConns {
			return nil, fmt.Errorf("pool_max_conn_hard_limit smaller than pool_max_conns: %d", n)
		}
		config.MaxConnsHardLimit = int32(n)
	}

	durationSettings := []struct {
		name string
		dst  *time.Duration
	}{
		{"pool_max_conn_idle_time", &config.MaxConnIdleTime},
		{"pool_keepalive_period", &config.KeepAlivePeriod},
		{"pool_health_check_period", &config.HealthCheckPeriod},
	}
	for _, setting := range durationSettings {
		if s, ok := connConfig.RuntimeParams[setting.name]; ok {
			delete(connConfig.RuntimeParams, setting.name)
			d, err := time.ParseDuration(s)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", setting.name, err)
			}
			*setting.dst = d
		}
	}

	return config, nil
}
