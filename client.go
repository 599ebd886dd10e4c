package pgcore

import (
	"context"

	"github.com/jackc/pgcore/pgconn"
	"github.com/jackc/pgcore/pgpool"
	"github.com/jackc/pgcore/pgwire"
)

// Client is the pooled, high-level entry point. Each operation leases a
// connection from the pool for its duration; row streams hold the lease
// until closed or exhausted.
type Client struct {
	pool *pgpool.Pool
}

// NewClient parses a libpq connection string (including pool_* options) and
// builds a Client. Call Run to start pool maintenance and Close to shut
// down.
func NewClient(connString string) (*Client, error) {
	config, err := pgpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}
	return NewClientConfig(config)
}

// NewClientConfig builds a Client from an explicit pool configuration.
func NewClientConfig(config *pgpool.Config) (*Client, error) {
	pool, err := pgpool.NewPool(config)
	if err != nil {
		return nil, err
	}
	return &Client{pool: pool}, nil
}

// Run drives pool maintenance until ctx is cancelled, then drains the pool
// and returns.
func (c *Client) Run(ctx context.Context) error {
	return c.pool.Run(ctx)
}

// Close shuts the pool down for clients that never started Run.
func (c *Client) Close() {
	c.pool.Close()
}

// CloseGracefully shuts the pool down, letting outstanding work finish and
// terminating idle connections politely. Cancelling ctx falls back to an
// immediate close.
func (c *Client) CloseGracefully(ctx context.Context) error {
	return c.pool.CloseGracefully(ctx)
}

// Pool exposes the underlying pool for leases and statistics.
func (c *Client) Pool() *pgpool.Pool {
	return c.pool
}

// WithConnection leases a connection, runs op, and releases the connection
// on every exit path.
func (c *Client) WithConnection(ctx context.Context, op func(*pgpool.Conn) error) error {
	return c.pool.AcquireFunc(ctx, op)
}

// Query runs a parameterized query and returns its row stream. The
// connection returns to the pool when the stream is exhausted, fails, or is
// closed.
func (c *Client) Query(ctx context.Context, sql string, args ...interface{}) (*Rows, error) {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	stream, err := conn.Query(ctx, sql, args...)
	if err != nil {
		conn.Release()
		return nil, err
	}

	return &Rows{stream: stream, conn: conn}, nil
}

// Exec runs a statement, discards any rows, and returns the command tag.
func (c *Client) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	var tag pgconn.CommandTag
	err := c.pool.AcquireFunc(ctx, func(conn *pgpool.Conn) error {
		var err error
		tag, err = conn.Exec(ctx, sql, args...)
		return err
	})
	return tag, err
}

// Prepare creates a named server-side prepared statement on one pooled
// connection and returns its description. Statements are per-connection
// state; execute the description with WithConnection on the same lease, or
// reuse the SQL through Query.
func (c *Client) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	var desc *pgconn.StatementDescription
	err := c.pool.AcquireFunc(ctx, func(conn *pgpool.Conn) error {
		var err error
		desc, err = conn.Prepare(ctx, name, sql)
		return err
	})
	return desc, err
}

// Listen subscribes to a notification channel. The lease is held for the
// life of the subscription: closing the returned stream releases it.
func (c *Client) Listen(ctx context.Context, channel string) (*Notifications, error) {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	stream, err := conn.Listen(ctx, channel)
	if err != nil {
		conn.Release()
		return nil, err
	}

	return &Notifications{stream: stream, conn: conn}, nil
}

// Rows couples a row stream to its pool lease.
type Rows struct {
	stream   *pgconn.RowStream
	conn     *pgpool.Conn
	released bool
}

// Next advances to the next row, releasing the lease once the stream ends.
func (r *Rows) Next(ctx context.Context) bool {
	ok := r.stream.Next(ctx)
	if !ok {
		r.release()
	}
	return ok
}

// Row returns the current row.
func (r *Rows) Row() *pgconn.Row {
	return r.stream.Row()
}

// Err returns the stream's terminal error, if any.
func (r *Rows) Err() error {
	return r.stream.Err()
}

// CommandTag is valid after Next has returned false with no error.
func (r *Rows) CommandTag() pgconn.CommandTag {
	return r.stream.CommandTag()
}

// FieldDescriptions describes the result columns.
func (r *Rows) FieldDescriptions() []pgwire.FieldDescription {
	return r.stream.FieldDescriptions()
}

// Close cancels the stream and releases the lease. Safe to call more than
// once.
func (r *Rows) Close() {
	r.stream.Close()
	r.release()
}

// Collect reads all remaining rows.
func (r *Rows) Collect(ctx context.Context) ([]*pgconn.Row, error) {
	rows, err := r.stream.Collect(ctx)
	r.release()
	return rows, err
}

func (r *Rows) release() {
	if !r.released {
		r.released = true
		r.conn.Release()
	}
}

// Notifications couples a notification stream to its pool lease.
type Notifications struct {
	stream *pgconn.NotificationStream
	conn   *pgpool.Conn
}

// Next blocks for the next notification.
func (n *Notifications) Next(ctx context.Context) (*pgconn.Notification, error) {
	return n.stream.Next(ctx)
}

// Close ends the subscription and releases the lease.
func (n *Notifications) Close() error {
	err := n.stream.Close()
	n.conn.Release()
	return err
}
