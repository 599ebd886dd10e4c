// Package pgconn is a low-level PostgreSQL database driver. It operates at
// nearly the same level as the C library libpq: connections speak the
// extended query protocol, stream rows with backpressure, and carry
// LISTEN/NOTIFY traffic. Connection pooling lives in pgpool.
package pgconn

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/jackc/pgcore/pgtype"
	"github.com/jackc/pgcore/pgwire"
)

// maxBindParameters is the most binds one Bind message can carry; the wire
// count field is an int16.
const maxBindParameters = 32767

// PgConn is a single PostgreSQL session. One query is in flight at a time;
// concurrent submissions queue in FIFO order. All exported methods are safe
// for concurrent use.
type PgConn struct {
	config *Config

	conn     net.Conn
	frontend *pgwire.Frontend

	mu      sync.Mutex
	machine *machine
	stream  *RowStream

	readyCh    chan struct{} // closed on first ReadyForQuery
	readyOnce  sync.Once
	closedCh   chan struct{} // closed when the machine reaches its terminal state
	closedOnce sync.Once
	closeErr   *Error

	notifMu     sync.Mutex
	subscribers map[string][]*NotificationStream
}

// Connect establishes a connection using the libpq connection string
// connString. See ParseConfig.
func Connect(ctx context.Context, connString string) (*PgConn, error) {
	config, err := ParseConfig(connString)
	if err != nil {
		return nil, err
	}
	return ConnectConfig(ctx, config)
}

// ConnectConfig establishes a connection using config. config must have been
// produced by ParseConfig or be fully populated by hand.
func ConnectConfig(ctx context.Context, config *Config) (*PgConn, error) {
	if config.User == "" {
		return nil, &connectError{config: config, msg: "user is required"}
	}
	if config.DialFunc == nil {
		config.DialFunc = makeDefaultDialer().DialContext
	}

	fallbacks := append([]*FallbackConfig{{
		Host:      config.Host,
		Port:      config.Port,
		TLSMode:   config.TLSMode,
		TLSConfig: config.TLSConfig,
	}}, config.Fallbacks...)

	var firstErr error
	for _, fb := range fallbacks {
		conn, err := connectFallback(ctx, config, fb)
		if err == nil {
			return conn, nil
		}
		if firstErr == nil {
			firstErr = err
		}
		if ctx.Err() != nil {
			break
		}
	}

	return nil, firstErr
}

func connectFallback(ctx context.Context, config *Config, fb *FallbackConfig) (*PgConn, error) {
	if config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.ConnectTimeout)
		defer cancel()
	}

	network, address := NetworkAddress(fb.Host, fb.Port)
	netConn, err := config.DialFunc(ctx, network, address)
	if err != nil {
		return nil, &connectError{config: config, msg: "dial error", err: normalizeTimeoutError(ctx, err)}
	}

	c := &PgConn{
		config: config,
		conn:   netConn,
		machine: newMachine(machineConfig{
			user:                  config.User,
			password:              config.Password,
			database:              config.Database,
			runtimeParams:         config.RuntimeParams,
			requireBackendKeyData: config.RequireBackendKeyData,
		}),
		readyCh:     make(chan struct{}),
		closedCh:    make(chan struct{}),
		subscribers: make(map[string][]*NotificationStream),
	}

	if err := c.startup(ctx, fb); err != nil {
		netConn.Close()
		return nil, &connectError{config: config, msg: "startup failed", err: err}
	}

	go c.readLoop()

	select {
	case <-c.readyCh:
		c.log(ctx, LogLevelInfo, "connection established", map[string]interface{}{"tls": fb.TLSMode != TLSDisable})
		return c, nil
	case <-c.closedCh:
		err := c.takeCloseErr()
		return nil, &connectError{config: config, msg: "startup failed", err: err}
	case <-ctx.Done():
		c.conn.Close()
		<-c.closedCh
		return nil, &connectError{config: config, msg: "startup failed", err: normalizeTimeoutError(ctx, ctx.Err())}
	}
}

// startup drives the machine through TLS negotiation and the startup message
// synchronously, before the read loop exists.
func (c *PgConn) startup(ctx context.Context, fb *FallbackConfig) error {
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(deadline)
		defer c.conn.SetDeadline(time.Time{})
	}

	actions := c.machine.handle(eventConnected{tlsMode: fb.TLSMode})

	for len(actions) > 0 {
		var next []action
		for _, a := range actions {
			switch a := a.(type) {
			case actionSendSSLRequest:
				if _, err := c.conn.Write((&pgwire.SSLRequest{}).Encode(nil)); err != nil {
					return err
				}

				reply := make([]byte, 1)
				if _, err := io.ReadFull(c.conn, reply); err != nil {
					return err
				}

				switch reply[0] {
				case 'S':
					if err := c.assertNoPlaintextBuffered(); err != nil {
						return err
					}
					next = append(next, c.machine.handle(eventSSLReply{supported: true})...)
				case 'N':
					next = append(next, c.machine.handle(eventSSLReply{supported: false})...)
				default:
					return newError(ErrCodeMessageDecodingFailure, fmt.Errorf("invalid SSL reply: %q", reply[0]))
				}

			case actionEstablishTLS:
				tlsConn := tls.Client(c.conn, tlsConfigForHost(fb.TLSConfig, fb.Host, c.config.TLSServerName))
				if err := tlsConn.HandshakeContext(ctx); err != nil {
					return newError(ErrCodeFailedToAddSSLHandler, err)
				}
				c.conn = tlsConn
				next = append(next, c.machine.handle(eventTLSEstablished{})...)

			case actionSendStartup:
				c.frontend = pgwire.NewFrontend(c.conn, c.conn)
				c.frontend.Send(c.startupMessage())
				if err := c.frontend.Flush(); err != nil {
					return err
				}

			case actionCloseConnection:
				if a.err != nil {
					return a.err
				}
				return newError(ErrCodeConnectionError, errors.New("connection closed during startup"))

			default:
				return newError(ErrCodeConnectionError, fmt.Errorf("unexpected startup action %s", a.actionName()))
			}
		}
		actions = next
	}

	if c.frontend == nil {
		c.frontend = pgwire.NewFrontend(c.conn, c.conn)
	}

	return nil
}

// assertNoPlaintextBuffered checks that no bytes arrived between the
// server's 'S' reply and the TLS handshake. Anything there was injected by
// something other than the TLS peer.
func (c *PgConn) assertNoPlaintextBuffered() error {
	// Injected bytes travel with the 'S' reply, so a short poll is enough to
	// see them without stalling legitimate startups.
	c.conn.SetReadDeadline(time.Now().Add(time.Millisecond))
	var peek [1]byte
	n, _ := c.conn.Read(peek[:])
	c.conn.SetReadDeadline(time.Time{})
	if n > 0 {
		return newError(ErrCodeReceivedUnencryptedDataAfterSSLRequest, nil)
	}
	return nil
}

func (c *PgConn) startupMessage() *pgwire.StartupMessage {
	params := map[string]string{
		"client_encoding": "UTF8",
	}
	for k, v := range c.config.RuntimeParams {
		params[k] = v
	}
	params["user"] = c.config.User
	if c.config.Database != "" {
		params["database"] = c.config.Database
	}

	return &pgwire.StartupMessage{
		ProtocolVersion: pgwire.ProtocolVersionNumber,
		Parameters:      params,
	}
}

// readLoop is the connection's single reader. Every backend message funnels
// through the state machine; row backpressure pauses reading between
// messages.
func (c *PgConn) readLoop() {
	for {
		msg, err := c.frontend.Receive()
		if err != nil {
			c.advance(eventErrorHappened{err: classifyReadError(err)})
			break
		}

		c.advance(eventBackendMessage{msg: msg})

		if c.isTerminal() {
			break
		}

		if rs := c.currentStream(); rs != nil {
			rs.waitDemand()
		}
	}

	c.advance(eventChannelInactive{})
	c.conn.Close()
}

func classifyReadError(err error) *Error {
	switch {
	case errors.Is(err, io.EOF):
		return newError(ErrCodeServerClosedConnection, err)
	case errors.Is(err, io.ErrUnexpectedEOF):
		return newError(ErrCodeUncleanShutdown, err)
	case errors.Is(err, net.ErrClosed):
		return newError(ErrCodeClientClosedConnection, err)
	}

	var authErr *pgwire.UnsupportedAuthTypeError
	if errors.As(err, &authErr) {
		return newError(ErrCodeUnsupportedAuthMechanism, err)
	}

	var unknownMsg *pgwire.UnknownMessageTypeError
	var badLen *pgwire.InvalidMessageLengthError
	if errors.As(err, &unknownMsg) || errors.As(err, &badLen) {
		return newError(ErrCodeMessageDecodingFailure, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return newError(ErrCodeConnectionError, err)
	}

	return newError(ErrCodeMessageDecodingFailure, err)
}

// advance feeds one event to the machine and performs the resulting actions.
// It is the only place machine.handle is called after startup.
func (c *PgConn) advance(ev event) {
	c.mu.Lock()
	actions := c.machine.handle(ev)
	c.performActions(actions)
	terminal := c.machine.state == stateClosed
	c.mu.Unlock()

	if terminal {
		c.closedOnce.Do(func() { close(c.closedCh) })
		c.failSubscribers()
	}
}

func (c *PgConn) performActions(actions []action) {
	for _, a := range actions {
		switch a := a.(type) {
		case actionSendMessages:
			for _, msg := range a.msgs {
				c.frontend.Send(msg)
			}
			if err := c.frontend.Flush(); err != nil {
				// The write failed; the read side will observe the broken
				// socket, but do not wait for it.
				c.conn.Close()
			}

		case actionSendPassword:
			c.frontend.Send(&pgwire.PasswordMessage{Password: a.password})
			c.flushOrClose()

		case actionSendSASLInitial:
			c.frontend.Send(&pgwire.SASLInitialResponse{AuthMechanism: a.mechanism, Data: a.data})
			c.flushOrClose()

		case actionSendSASLResponse:
			c.frontend.Send(&pgwire.SASLResponse{Data: a.data})
			c.flushOrClose()

		case actionSucceedQuery:
			rs := newRowStream(a.fields, nil)
			c.stream = rs
			a.t.complete(taskResult{stream: rs})

		case actionForwardRow:
			if c.stream != nil {
				c.stream.push(newRow(c.stream.fields, c.stream.nameIdx, a.values))
			}

		case actionCompleteStream:
			if c.stream != nil {
				c.stream.finish(CommandTag(a.commandTag))
				c.stream = nil
			}

		case actionFailStream:
			if c.stream != nil {
				c.stream.fail(a.err)
				c.stream = nil
			}

		case actionSucceedPrepare:
			a.t.complete(taskResult{desc: a.desc})

		case actionSucceedClose:
			a.t.complete(taskResult{})

		case actionFailTask:
			a.t.complete(taskResult{err: a.err})

		case actionForwardNotice:
			if c.stream != nil {
				c.stream.notice(a.notice)
			}

		case actionForwardNotification:
			c.forwardNotification(a.n)

		case actionFireReadyForQuery:
			c.readyOnce.Do(func() { close(c.readyCh) })

		case actionSendTerminate:
			c.frontend.Send(&pgwire.Terminate{})
			c.frontend.Flush()

		case actionCloseConnection:
			if a.err != nil && c.closeErr == nil {
				c.closeErr = a.err
			}
			c.conn.Close()

		case actionSendSSLRequest, actionEstablishTLS, actionSendStartup:
			// Startup-only actions never occur after the read loop starts.

		default:
			panic(fmt.Sprintf("pgconn: unhandled action %s", a.actionName()))
		}
	}
}

func (c *PgConn) flushOrClose() {
	if err := c.frontend.Flush(); err != nil {
		c.conn.Close()
	}
}

func (c *PgConn) currentStream() *RowStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream
}

func (c *PgConn) isTerminal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.state == stateClosed
}

func (c *PgConn) takeCloseErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closeErr != nil {
		return c.closeErr
	}
	if c.machine.closeErr != nil {
		return c.machine.closeErr
	}
	return newError(ErrCodeConnectionError, nil)
}

// Query submits sql with bind arguments and returns the row stream once the
// server has described the result. Parameter types are inferred from the Go
// argument types; results arrive in binary format.
func (c *PgConn) Query(ctx context.Context, sql string, args ...interface{}) (*RowStream, error) {
	t, err := buildQueryTask(sql, args)
	if err != nil {
		return nil, err
	}
	c.log(ctx, LogLevelDebug, "query", map[string]interface{}{"sql": sql, "args": logQueryArgs(args)})
	r, err := c.submit(ctx, t)
	if err != nil {
		c.log(ctx, LogLevelError, "query failed", map[string]interface{}{"sql": sql, "err": err})
		return nil, err
	}
	return r.stream, nil
}

// Exec submits sql, drains all rows, and returns the command tag.
func (c *PgConn) Exec(ctx context.Context, sql string, args ...interface{}) (CommandTag, error) {
	rs, err := c.Query(ctx, sql, args...)
	if err != nil {
		return "", err
	}
	for rs.Next(ctx) {
	}
	if err := rs.Err(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return rs.CommandTag(), nil
}

// Prepare creates a named server-side prepared statement and returns its
// description.
func (c *PgConn) Prepare(ctx context.Context, name, sql string) (*StatementDescription, error) {
	t := &task{
		kind: taskPrepare,
		name: name,
		sql:  sql,
		done: make(chan taskResult, 1),
	}
	r, err := c.submit(ctx, t)
	if err != nil {
		return nil, err
	}
	return r.desc, nil
}

// ExecPrepared binds and executes a statement previously created by Prepare.
// Result formats are binary for every column this package can decode.
func (c *PgConn) ExecPrepared(ctx context.Context, desc *StatementDescription, args ...interface{}) (*RowStream, error) {
	t, err := buildExecTask(desc, args)
	if err != nil {
		return nil, err
	}
	r, err := c.submit(ctx, t)
	if err != nil {
		return nil, err
	}
	return r.stream, nil
}

// CloseStatement releases a named prepared statement on the server.
func (c *PgConn) CloseStatement(ctx context.Context, name string) error {
	t := &task{
		kind:       taskCloseStmt,
		objectType: pgwire.TargetStatement,
		name:       name,
		done:       make(chan taskResult, 1),
	}
	_, err := c.submit(ctx, t)
	return err
}

// ClosePortal releases a named portal on the server.
func (c *PgConn) ClosePortal(ctx context.Context, name string) error {
	t := &task{
		kind:       taskCloseStmt,
		objectType: pgwire.TargetPortal,
		name:       name,
		done:       make(chan taskResult, 1),
	}
	_, err := c.submit(ctx, t)
	return err
}

func (c *PgConn) submit(ctx context.Context, t *task) (taskResult, error) {
	if err := ctx.Err(); err != nil {
		return taskResult{}, err
	}

	c.advance(eventEnqueue{t: t})

	select {
	case r := <-t.done:
		if r.err != nil {
			return taskResult{}, r.err
		}
		return r, nil
	case <-ctx.Done():
		// The task may still run; make sure its eventual stream is drained.
		go func() {
			r := <-t.done
			if r.stream != nil {
				r.stream.Cancel()
			}
		}()
		return taskResult{}, ctx.Err()
	}
}

func buildQueryTask(sql string, args []interface{}) (*task, error) {
	if len(args) > maxBindParameters {
		return nil, &Error{Code: ErrCodeTooManyParameters, Query: sql}
	}

	t := &task{
		kind: taskQuery,
		sql:  sql,
		done: make(chan taskResult, 1),
	}

	for _, arg := range args {
		oid, format, data, err := pgtype.EncodeParam(arg)
		if err != nil {
			return nil, newError(ErrCodeCasting, err)
		}
		t.paramOIDs = append(t.paramOIDs, oid)
		t.paramFormats = append(t.paramFormats, format)
		t.paramValues = append(t.paramValues, data)
	}

	return t, nil
}

func buildExecTask(desc *StatementDescription, args []interface{}) (*task, error) {
	if len(args) > maxBindParameters {
		return nil, &Error{Code: ErrCodeTooManyParameters, Query: desc.SQL}
	}

	t := &task{
		kind: taskExecPrepared,
		desc: desc,
		sql:  desc.SQL,
		done: make(chan taskResult, 1),
	}

	for _, arg := range args {
		_, format, data, err := pgtype.EncodeParam(arg)
		if err != nil {
			return nil, newError(ErrCodeCasting, err)
		}
		t.paramFormats = append(t.paramFormats, format)
		t.paramValues = append(t.paramValues, data)
	}

	t.resultFormats = make([]int16, len(desc.Fields))
	for i, fd := range desc.Fields {
		if pgtype.BinaryDecodable(fd.DataTypeOID) {
			t.resultFormats[i] = pgwire.BinaryFormat
		} else {
			t.resultFormats[i] = pgwire.TextFormat
		}
	}

	return t, nil
}

// Close hard-closes the connection. Pending and in-flight tasks fail
// immediately.
func (c *PgConn) Close(ctx context.Context) error {
	c.advance(eventClose{})

	select {
	case <-c.closedCh:
		return nil
	case <-ctx.Done():
		c.conn.Close()
		<-c.closedCh
		return ctx.Err()
	}
}

// CloseGracefully lets queued work finish, sends Terminate, and closes the
// socket. Cancelling ctx falls back to an immediate close.
func (c *PgConn) CloseGracefully(ctx context.Context) error {
	c.advance(eventGracefulClose{})

	select {
	case <-c.closedCh:
		return nil
	case <-ctx.Done():
		c.advance(eventClose{})
		<-c.closedCh
		return ctx.Err()
	}
}

// IsClosed reports whether the connection has reached its terminal state.
func (c *PgConn) IsClosed() bool {
	select {
	case <-c.closedCh:
		return true
	default:
		return false
	}
}

// ParameterStatus returns the value of a parameter reported by the server
// (e.g. server_version). Returns an empty string for unknown parameters.
// Values reflect the most recent ParameterStatus; mid-query updates become
// visible no later than the next query.
func (c *PgConn) ParameterStatus(key string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.serverParams[key]
}

// ServerVersion parses the server_version parameter. Vendor suffixes (e.g.
// "14.2 (Debian 14.2-1)") are ignored.
func (c *PgConn) ServerVersion() (*semver.Version, error) {
	raw := c.ParameterStatus("server_version")
	if raw == "" {
		return nil, errors.New("server_version not reported")
	}
	if idx := strings.IndexByte(raw, ' '); idx != -1 {
		raw = raw[:idx]
	}
	return semver.NewVersion(raw)
}

// BackendKeyData returns the cancel key sent by the server, or nil.
func (c *PgConn) BackendKeyData() *BackendKeyData {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.backendKeyData
}

// TxStatus returns the transaction status from the latest ReadyForQuery:
// 'I' idle, 'T' in transaction, 'E' in failed transaction.
func (c *PgConn) TxStatus() byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.txStatus
}

// CancelRequest sends a cancel request to the server over a new connection.
// It is the only way to interrupt a query the server is already running.
func (c *PgConn) CancelRequest(ctx context.Context) error {
	key := c.BackendKeyData()
	if key == nil {
		return errors.New("no backend key data available")
	}

	network, address := NetworkAddress(c.config.Host, c.config.Port)
	cancelConn, err := c.config.DialFunc(ctx, network, address)
	if err != nil {
		return err
	}
	defer cancelConn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		cancelConn.SetDeadline(deadline)
	}

	msg := &pgwire.CancelRequest{ProcessID: key.PID, SecretKey: key.SecretKey}
	if _, err := cancelConn.Write(msg.Encode(nil)); err != nil {
		return err
	}

	// The server closes the connection without replying.
	_, err = cancelConn.Read(make([]byte, 1))
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
