package pgpool

import (
	"context"
	"sync"

	"github.com/jackc/pgcore/pgconn"
)

// Conn is a leased connection. It must be released (or hijacked) exactly
// once; Release is idempotent.
type Conn struct {
	pool *Pool
	pc   *poolConn
	once sync.Once
}

// ID returns the pool-assigned connection id.
func (c *Conn) ID() int64 {
	return c.pc.id
}

// Conn exposes the underlying connection for operations the wrappers below
// do not cover. The lease still owns it; do not close it directly.
func (c *Conn) Conn() PoolConn {
	return c.pc.conn
}

// Release returns the connection to the pool.
func (c *Conn) Release() {
	c.once.Do(func() {
		c.pool.release(c.pc)
	})
}

// Hijack detaches the connection from the pool and transfers ownership to
// the caller.
func (c *Conn) Hijack() PoolConn {
	var conn PoolConn
	c.once.Do(func() {
		conn = c.pc.conn
		c.pool.hijack(c.pc)
	})
	return conn
}

func (c *Conn) Query(ctx context.Context, sql string, args ...interface{}) (*pgconn.RowStream, error) {
	return c.pc.conn.Query(ctx, sql, args...)
}

func (c *Conn) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return c.pc.conn.Exec(ctx, sql, args...)
}

func (c *Conn) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return c.pc.conn.Prepare(ctx, name, sql)
}

func (c *Conn) ExecPrepared(ctx context.Context, desc *pgconn.StatementDescription, args ...interface{}) (*pgconn.RowStream, error) {
	return c.pc.conn.ExecPrepared(ctx, desc, args...)
}

func (c *Conn) Listen(ctx context.Context, channel string) (*pgconn.NotificationStream, error) {
	return c.pc.conn.Listen(ctx, channel)
}
