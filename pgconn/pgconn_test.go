package pgconn

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/jackc/pgmock"
	"github.com/jackc/pgproto3/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startMockServer serves one connection with the given script and reports
// the script outcome on the returned channel.
func startMockServer(t *testing.T, script *pgmock.Script) (*Config, <-chan error) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	serverErrCh := make(chan error, 1)
	go func() {
		defer close(serverErrCh)

		conn, err := ln.Accept()
		if err != nil {
			serverErrCh <- err
			return
		}
		defer conn.Close()

		conn.SetDeadline(time.Now().Add(10 * time.Second))

		backend := pgproto3.NewBackend(pgproto3.NewChunkReader(conn), conn)
		if err := script.Run(backend); err != nil {
			serverErrCh <- err
		}
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.ParseUint(portStr, 10, 16)
	require.NoError(t, err)

	config := &Config{
		Host:     host,
		Port:     uint16(port),
		User:     "user",
		Password: "password",
		Database: "db",
		TLSMode:  TLSDisable,
	}
	return config, serverErrCh
}

func selectOneSteps() []pgmock.Step {
	return []pgmock.Step{
		pgmock.ExpectMessage(&pgproto3.Parse{Query: "SELECT 1"}),
		pgmock.ExpectMessage(&pgproto3.Describe{ObjectType: 'S'}),
		pgmock.ExpectAnyMessage(&pgproto3.Bind{}),
		pgmock.ExpectMessage(&pgproto3.Execute{}),
		pgmock.ExpectMessage(&pgproto3.Sync{}),
		pgmock.SendMessage(&pgproto3.ParseComplete{}),
		pgmock.SendMessage(&pgproto3.ParameterDescription{}),
		pgmock.SendMessage(&pgproto3.RowDescription{Fields: []pgproto3.FieldDescription{
			{Name: []byte("?column?"), DataTypeOID: 23, DataTypeSize: 4, TypeModifier: -1, Format: 0},
		}}),
		pgmock.SendMessage(&pgproto3.BindComplete{}),
		pgmock.SendMessage(&pgproto3.DataRow{Values: [][]byte{{0, 0, 0, 1}}}),
		pgmock.SendMessage(&pgproto3.CommandComplete{CommandTag: []byte("SELECT 1")}),
		pgmock.SendMessage(&pgproto3.ReadyForQuery{TxStatus: 'I'}),
	}
}

func TestConnectQueryAndGracefulClose(t *testing.T) {
	script := &pgmock.Script{Steps: pgmock.AcceptUnauthenticatedConnRequestSteps()}
	script.Steps = append(script.Steps, selectOneSteps()...)
	script.Steps = append(script.Steps, pgmock.ExpectMessage(&pgproto3.Terminate{}))

	config, serverErrCh := startMockServer(t, script)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := ConnectConfig(ctx, config)
	require.NoError(t, err)

	rows, err := conn.Query(ctx, "SELECT 1")
	require.NoError(t, err)

	require.True(t, rows.Next(ctx))
	var n int32
	require.NoError(t, rows.Row().Decode(0, &n))
	assert.Equal(t, int32(1), n)

	assert.False(t, rows.Next(ctx))
	require.NoError(t, rows.Err())
	assert.Equal(t, CommandTag("SELECT 1"), rows.CommandTag())

	require.NoError(t, conn.CloseGracefully(ctx))
	assert.True(t, conn.IsClosed())

	require.NoError(t, <-serverErrCh)
}

func TestConnectMD5Auth(t *testing.T) {
	salt := [4]byte{0x01, 0x02, 0x03, 0x04}
	expectedPassword := digestMD5Password("password", "user", salt)

	script := &pgmock.Script{Steps: []pgmock.Step{
		pgmock.ExpectAnyMessage(&pgproto3.StartupMessage{ProtocolVersion: pgproto3.ProtocolVersionNumber, Parameters: map[string]string{}}),
		pgmock.SendMessage(&pgproto3.AuthenticationMD5Password{Salt: salt}),
		pgmock.ExpectMessage(&pgproto3.PasswordMessage{Password: expectedPassword}),
		pgmock.SendMessage(&pgproto3.AuthenticationOk{}),
		pgmock.SendMessage(&pgproto3.BackendKeyData{ProcessID: 5, SecretKey: 6}),
		pgmock.SendMessage(&pgproto3.ReadyForQuery{TxStatus: 'I'}),
		pgmock.ExpectMessage(&pgproto3.Terminate{}),
	}}

	config, serverErrCh := startMockServer(t, script)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := ConnectConfig(ctx, config)
	require.NoError(t, err)

	key := conn.BackendKeyData()
	require.NotNil(t, key)
	assert.Equal(t, uint32(5), key.PID)

	require.NoError(t, conn.CloseGracefully(ctx))
	require.NoError(t, <-serverErrCh)
}

func TestConnectUnsupportedAuthMechanism(t *testing.T) {
	script := &pgmock.Script{Steps: []pgmock.Step{
		pgmock.ExpectAnyMessage(&pgproto3.StartupMessage{ProtocolVersion: pgproto3.ProtocolVersionNumber, Parameters: map[string]string{}}),
		pgmock.SendMessage(&pgproto3.AuthenticationGSS{}),
	}}

	config, serverErrCh := startMockServer(t, script)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := ConnectConfig(ctx, config)
	require.Error(t, err)

	var pgerr *Error
	require.True(t, errors.As(err, &pgerr))
	assert.Equal(t, ErrCodeUnsupportedAuthMechanism, pgerr.Code)

	require.NoError(t, <-serverErrCh)
}

func TestConnectTLSRequireDeclined(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		// Read the SSLRequest and decline.
		buf := make([]byte, 8)
		if _, err := io.ReadFull(conn, buf); err != nil {
			return
		}
		conn.Write([]byte{'N'})

		// No startup message should follow.
		conn.SetReadDeadline(time.Now().Add(time.Second))
		extra := make([]byte, 1)
		if n, _ := conn.Read(extra); n > 0 {
			panic("client sent data after TLS was declined")
		}
	}()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.ParseUint(portStr, 10, 16)

	config := &Config{
		Host:    host,
		Port:    uint16(port),
		User:    "user",
		TLSMode: TLSRequire,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = ConnectConfig(ctx, config)
	require.Error(t, err)

	var pgerr *Error
	require.True(t, errors.As(err, &pgerr))
	assert.Equal(t, ErrCodeSSLUnsupported, pgerr.Code)
}

func TestServerErrorDoesNotKillConnection(t *testing.T) {
	script := &pgmock.Script{Steps: pgmock.AcceptUnauthenticatedConnRequestSteps()}
	script.Steps = append(script.Steps,
		pgmock.ExpectMessage(&pgproto3.Parse{Query: "SELECT bad"}),
		pgmock.ExpectMessage(&pgproto3.Describe{ObjectType: 'S'}),
		pgmock.ExpectAnyMessage(&pgproto3.Bind{}),
		pgmock.ExpectMessage(&pgproto3.Execute{}),
		pgmock.ExpectMessage(&pgproto3.Sync{}),
		pgmock.SendMessage(&pgproto3.ParseComplete{}),
		pgmock.SendMessage(&pgproto3.ParameterDescription{}),
		pgmock.SendMessage(&pgproto3.RowDescription{Fields: []pgproto3.FieldDescription{
			{Name: []byte("c"), DataTypeOID: 23, DataTypeSize: 4, TypeModifier: -1, Format: 0},
		}}),
		pgmock.SendMessage(&pgproto3.BindComplete{}),
		pgmock.SendMessage(&pgproto3.DataRow{Values: [][]byte{{0, 0, 0, 1}}}),
		pgmock.SendMessage(&pgproto3.ErrorResponse{Severity: "ERROR", Code: "22P02", Message: "invalid input"}),
		pgmock.SendMessage(&pgproto3.ReadyForQuery{TxStatus: 'E'}),
	)
	script.Steps = append(script.Steps, selectOneSteps()...)
	script.Steps = append(script.Steps, pgmock.ExpectMessage(&pgproto3.Terminate{}))

	config, serverErrCh := startMockServer(t, script)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := ConnectConfig(ctx, config)
	require.NoError(t, err)

	rows, err := conn.Query(ctx, "SELECT bad")
	require.NoError(t, err)

	for rows.Next(ctx) {
	}
	err = rows.Err()
	require.Error(t, err)

	var pgerr *Error
	require.True(t, errors.As(err, &pgerr))
	assert.Equal(t, ErrCodeServer, pgerr.Code)
	require.NotNil(t, pgerr.Server)
	assert.Equal(t, "22P02", pgerr.Server.Code)

	// The connection survived; a second query succeeds.
	require.False(t, conn.IsClosed())

	rows, err = conn.Query(ctx, "SELECT 1")
	require.NoError(t, err)
	require.True(t, rows.Next(ctx))
	var n int32
	require.NoError(t, rows.Row().Decode(0, &n))
	assert.Equal(t, int32(1), n)
	assert.False(t, rows.Next(ctx))
	require.NoError(t, rows.Err())

	require.NoError(t, conn.CloseGracefully(ctx))
	require.NoError(t, <-serverErrCh)
}

func TestListenReceivesNotification(t *testing.T) {
	script := &pgmock.Script{Steps: pgmock.AcceptUnauthenticatedConnRequestSteps()}
	script.Steps = append(script.Steps,
		pgmock.ExpectMessage(&pgproto3.Parse{Query: `LISTEN "events"`}),
		pgmock.ExpectMessage(&pgproto3.Describe{ObjectType: 'S'}),
		pgmock.ExpectAnyMessage(&pgproto3.Bind{}),
		pgmock.ExpectMessage(&pgproto3.Execute{}),
		pgmock.ExpectMessage(&pgproto3.Sync{}),
		pgmock.SendMessage(&pgproto3.ParseComplete{}),
		pgmock.SendMessage(&pgproto3.ParameterDescription{}),
		pgmock.SendMessage(&pgproto3.NoData{}),
		pgmock.SendMessage(&pgproto3.BindComplete{}),
		pgmock.SendMessage(&pgproto3.CommandComplete{CommandTag: []byte("LISTEN")}),
		pgmock.SendMessage(&pgproto3.ReadyForQuery{TxStatus: 'I'}),
		pgmock.SendMessage(&pgproto3.NotificationResponse{PID: 9, Channel: "events", Payload: "hello"}),
	)

	config, serverErrCh := startMockServer(t, script)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := ConnectConfig(ctx, config)
	require.NoError(t, err)

	sub, err := conn.Listen(ctx, "events")
	require.NoError(t, err)

	n, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "events", n.Channel)
	assert.Equal(t, "hello", n.Payload)

	conn.Close(ctx)
	require.NoError(t, <-serverErrCh)
}

func TestStartupParameters(t *testing.T) {
	receivedParams := make(chan map[string]string, 1)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		backend := pgproto3.NewBackend(pgproto3.NewChunkReader(conn), conn)
		msg, err := backend.ReceiveStartupMessage()
		if err != nil {
			return
		}
		if startup, ok := msg.(*pgproto3.StartupMessage); ok {
			receivedParams <- startup.Parameters
		}

		backend.Send(&pgproto3.AuthenticationOk{})
		backend.Send(&pgproto3.ReadyForQuery{TxStatus: 'I'})
	}()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.ParseUint(portStr, 10, 16)

	config := &Config{
		Host:          host,
		Port:          uint16(port),
		User:          "alice",
		Database:      "inventory",
		TLSMode:       TLSDisable,
		RuntimeParams: map[string]string{"application_name": "pgcore-test"},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := ConnectConfig(ctx, config)
	require.NoError(t, err)
	defer conn.Close(ctx)

	params := <-receivedParams
	assert.Equal(t, "alice", params["user"])
	assert.Equal(t, "inventory", params["database"])
	assert.Equal(t, "UTF8", params["client_encoding"])
	assert.Equal(t, "pgcore-test", params["application_name"])
}
