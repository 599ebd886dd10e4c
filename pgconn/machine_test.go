package pgconn

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackc/pgcore/pgwire"
)

func testMachine() *machine {
	return newMachine(machineConfig{
		user:     "user",
		password: "password",
		database: "db",
		nonce: func(buf []byte) error {
			for i := range buf {
				buf[i] = byte(i)
			}
			return nil
		},
	})
}

func newTestTask(kind taskKind, sql string) *task {
	return &task{kind: kind, sql: sql, done: make(chan taskResult, 1)}
}

func drive(m *machine, events ...event) []action {
	var acts []action
	for _, ev := range events {
		acts = append(acts, m.handle(ev)...)
	}
	return acts
}

func actionNames(acts []action) []string {
	names := make([]string, len(acts))
	for i, a := range acts {
		names[i] = a.actionName()
	}
	return names
}

// startupToReady drives a trust-authenticated startup and returns the
// actions emitted by the final ReadyForQuery.
func startupToReady(m *machine) []action {
	drive(m,
		eventConnected{tlsMode: TLSDisable},
		eventBackendMessage{msg: &pgwire.AuthenticationOk{}},
		eventBackendMessage{msg: &pgwire.ParameterStatus{Name: "server_version", Value: "16.1"}},
		eventBackendMessage{msg: &pgwire.BackendKeyData{ProcessID: 10, SecretKey: 20}},
	)
	return m.handle(eventBackendMessage{msg: &pgwire.ReadyForQuery{TxStatus: pgwire.TxStatusIdle}})
}

func TestMachineTrustStartup(t *testing.T) {
	m := testMachine()

	acts := m.handle(eventConnected{tlsMode: TLSDisable})
	require.Equal(t, []string{"sendStartup"}, actionNames(acts))
	assert.Equal(t, stateAuthenticating, m.state)

	acts = m.handle(eventBackendMessage{msg: &pgwire.AuthenticationOk{}})
	assert.Empty(t, acts)
	assert.Equal(t, stateAuthenticated, m.state)

	drive(m,
		eventBackendMessage{msg: &pgwire.ParameterStatus{Name: "server_version", Value: "16.1"}},
		eventBackendMessage{msg: &pgwire.BackendKeyData{ProcessID: 10, SecretKey: 20}},
	)
	assert.Equal(t, "16.1", m.serverParams["server_version"])
	assert.Equal(t, uint32(10), m.backendKeyData.PID)

	acts = m.handle(eventBackendMessage{msg: &pgwire.ReadyForQuery{TxStatus: pgwire.TxStatusIdle}})
	require.Equal(t, []string{"fireReadyForQuery"}, actionNames(acts))
	assert.Equal(t, stateReadyForQuery, m.state)
	assert.Equal(t, byte(pgwire.TxStatusIdle), m.txStatus)
}

func TestMachineMD5Auth(t *testing.T) {
	m := testMachine()
	m.handle(eventConnected{tlsMode: TLSDisable})

	acts := m.handle(eventBackendMessage{msg: &pgwire.AuthenticationMD5Password{Salt: [4]byte{0x01, 0x02, 0x03, 0x04}}})
	require.Len(t, acts, 1)

	pw := acts[0].(actionSendPassword)
	assert.Equal(t, digestMD5Password("password", "user", [4]byte{0x01, 0x02, 0x03, 0x04}), pw.password)
	// The digest is deterministic: md5(md5(password+user)+salt), hex, with
	// the md5 prefix.
	assert.Equal(t, "md5", pw.password[:3])
	assert.Len(t, pw.password, 35)
}

func TestMachineMD5AuthRequiresPassword(t *testing.T) {
	m := newMachine(machineConfig{user: "user"})
	m.handle(eventConnected{tlsMode: TLSDisable})

	acts := m.handle(eventBackendMessage{msg: &pgwire.AuthenticationMD5Password{Salt: [4]byte{1, 2, 3, 4}}})
	require.Equal(t, []string{"closeConnection"}, actionNames(acts))

	cc := acts[0].(actionCloseConnection)
	assert.Equal(t, ErrCodeAuthMechanismRequiresPassword, cc.err.Code)
	assert.Equal(t, stateClosing, m.state)
}

func TestMachineSASLAuth(t *testing.T) {
	m := testMachine()
	m.handle(eventConnected{tlsMode: TLSDisable})

	acts := m.handle(eventBackendMessage{msg: &pgwire.AuthenticationSASL{AuthMechanisms: []string{"SCRAM-SHA-256-PLUS", "SCRAM-SHA-256"}}})
	require.Len(t, acts, 1)

	initial := acts[0].(actionSendSASLInitial)
	assert.Equal(t, "SCRAM-SHA-256", initial.mechanism)
	assert.Equal(t, "n,,n=,r=", string(initial.data[:8]))

	clientNonce := string(initial.data[8:])

	serverFirst := fmt.Sprintf("r=%sSERVER,s=c2FsdA==,i=4096", clientNonce)
	acts = m.handle(eventBackendMessage{msg: &pgwire.AuthenticationSASLContinue{Data: []byte(serverFirst)}})
	require.Len(t, acts, 1)

	final := acts[0].(actionSendSASLResponse)
	assert.Contains(t, string(final.data), "c=biws,r="+clientNonce+"SERVER")
	assert.Contains(t, string(final.data), ",p=")

	// A wrong server signature is rejected and closes the connection.
	acts = m.handle(eventBackendMessage{msg: &pgwire.AuthenticationSASLFinal{Data: []byte("v=Zm9yZ2VyeQ==")}})
	require.Equal(t, []string{"closeConnection"}, actionNames(acts))
	assert.Equal(t, ErrCodeSASLError, acts[0].(actionCloseConnection).err.Code)
}

func TestMachineSASLUnsupportedMechanism(t *testing.T) {
	m := testMachine()
	m.handle(eventConnected{tlsMode: TLSDisable})

	acts := m.handle(eventBackendMessage{msg: &pgwire.AuthenticationSASL{AuthMechanisms: []string{"SCRAM-SHA-1"}}})
	require.Equal(t, []string{"closeConnection"}, actionNames(acts))
	assert.Equal(t, ErrCodeUnsupportedAuthMechanism, acts[0].(actionCloseConnection).err.Code)
}

func TestMachineTLSRequireDeclined(t *testing.T) {
	m := testMachine()

	acts := m.handle(eventConnected{tlsMode: TLSRequire})
	require.Equal(t, []string{"sendSSLRequest"}, actionNames(acts))

	acts = m.handle(eventSSLReply{supported: false})
	require.Equal(t, []string{"closeConnection"}, actionNames(acts))
	assert.Equal(t, ErrCodeSSLUnsupported, acts[0].(actionCloseConnection).err.Code)
	// No startup message was ever requested.
	assert.Equal(t, stateClosing, m.state)
}

func TestMachineTLSPreferDeclinedFallsBack(t *testing.T) {
	m := testMachine()

	m.handle(eventConnected{tlsMode: TLSPrefer})
	acts := m.handle(eventSSLReply{supported: false})
	require.Equal(t, []string{"sendStartup"}, actionNames(acts))
	assert.Equal(t, stateAuthenticating, m.state)
}

func TestMachineTLSSupportedPath(t *testing.T) {
	m := testMachine()

	m.handle(eventConnected{tlsMode: TLSRequire})
	acts := m.handle(eventSSLReply{supported: true})
	require.Equal(t, []string{"establishTLS"}, actionNames(acts))

	acts = m.handle(eventTLSEstablished{})
	require.Equal(t, []string{"sendStartup"}, actionNames(acts))
}

func TestMachineQueryLifecycle(t *testing.T) {
	m := testMachine()
	startupToReady(m)

	task1 := newTestTask(taskQuery, "SELECT 1")
	acts := m.handle(eventEnqueue{t: task1})
	require.Equal(t, []string{"sendMessages"}, actionNames(acts))
	assert.Equal(t, stateExtendedQuery, m.state)

	msgs := acts[0].(actionSendMessages).msgs
	require.Len(t, msgs, 5)
	assert.Equal(t, "SELECT 1", msgs[0].(*pgwire.Parse).Query)
	assert.IsType(t, &pgwire.Describe{}, msgs[1])
	assert.Equal(t, []int16{pgwire.BinaryFormat}, msgs[2].(*pgwire.Bind).ResultFormatCodes)
	assert.IsType(t, &pgwire.Execute{}, msgs[3])
	assert.IsType(t, &pgwire.Sync{}, msgs[4])

	drive(m,
		eventBackendMessage{msg: &pgwire.ParseComplete{}},
		eventBackendMessage{msg: &pgwire.ParameterDescription{}},
	)

	acts = m.handle(eventBackendMessage{msg: &pgwire.RowDescription{Fields: []pgwire.FieldDescription{
		{Name: "?column?", DataTypeOID: 23, DataTypeSize: 4, Format: pgwire.TextFormat},
	}}})
	require.Equal(t, []string{"succeedQuery"}, actionNames(acts))
	// The Bind requested binary results, so the description is patched.
	assert.Equal(t, int16(pgwire.BinaryFormat), acts[0].(actionSucceedQuery).fields[0].Format)

	m.handle(eventBackendMessage{msg: &pgwire.BindComplete{}})

	acts = m.handle(eventBackendMessage{msg: &pgwire.DataRow{Values: [][]byte{{0, 0, 0, 1}}}})
	require.Equal(t, []string{"forwardRow"}, actionNames(acts))

	acts = m.handle(eventBackendMessage{msg: &pgwire.CommandComplete{CommandTag: []byte("SELECT 1")}})
	require.Equal(t, []string{"completeStream"}, actionNames(acts))
	assert.Equal(t, "SELECT 1", acts[0].(actionCompleteStream).commandTag)

	acts = m.handle(eventBackendMessage{msg: &pgwire.ReadyForQuery{TxStatus: pgwire.TxStatusIdle}})
	require.Equal(t, []string{"fireReadyForQuery"}, actionNames(acts))
	assert.Equal(t, stateReadyForQuery, m.state)
}

// At most one task is dispatched to the wire between consecutive
// ReadyForQuery signals.
func TestMachineOneTaskInFlight(t *testing.T) {
	m := testMachine()
	startupToReady(m)

	task1 := newTestTask(taskQuery, "SELECT 1")
	task2 := newTestTask(taskQuery, "SELECT 2")

	acts := m.handle(eventEnqueue{t: task1})
	require.Equal(t, []string{"sendMessages"}, actionNames(acts))

	// The second task queues; nothing goes to the wire.
	acts = m.handle(eventEnqueue{t: task2})
	assert.Empty(t, acts)
	require.Len(t, m.queue, 1)

	drive(m,
		eventBackendMessage{msg: &pgwire.ParseComplete{}},
		eventBackendMessage{msg: &pgwire.NoData{}},
		eventBackendMessage{msg: &pgwire.BindComplete{}},
		eventBackendMessage{msg: &pgwire.CommandComplete{CommandTag: []byte("SELECT 0")}},
	)

	// Only the ReadyForQuery dispatches the second task.
	acts = m.handle(eventBackendMessage{msg: &pgwire.ReadyForQuery{TxStatus: pgwire.TxStatusIdle}})
	require.Equal(t, []string{"sendMessages"}, actionNames(acts))
	assert.Equal(t, "SELECT 2", acts[0].(actionSendMessages).msgs[0].(*pgwire.Parse).Query)
	assert.Empty(t, m.queue)
}

// Every task enqueued before close receives exactly one completion by the
// time the machine reaches its terminal state.
func TestMachineCleanupFailsAllTasks(t *testing.T) {
	m := testMachine()
	startupToReady(m)

	tasks := []*task{
		newTestTask(taskQuery, "SELECT 1"),
		newTestTask(taskQuery, "SELECT 2"),
		newTestTask(taskPrepare, "SELECT 3"),
	}
	for _, tk := range tasks {
		m.handle(eventEnqueue{t: tk})
	}

	acts := m.handle(eventErrorHappened{err: newError(ErrCodeConnectionError, errors.New("broken pipe"))})

	var failed []*task
	for _, a := range acts {
		if ft, ok := a.(actionFailTask); ok {
			failed = append(failed, ft.t)
			assert.Equal(t, ErrCodeConnectionError, ft.err.Code)
		}
	}
	assert.Len(t, failed, 3)
	assert.Equal(t, stateClosing, m.state)

	// Late enqueues fail synchronously.
	late := newTestTask(taskQuery, "SELECT 4")
	acts = m.handle(eventEnqueue{t: late})
	require.Equal(t, []string{"failTask"}, actionNames(acts))

	acts = m.handle(eventChannelInactive{})
	assert.Empty(t, acts)
	assert.Equal(t, stateClosed, m.state)
}

// A server error during streaming fails the stream but keeps the connection;
// the next query proceeds normally.
func TestMachineServerErrorDuringStreaming(t *testing.T) {
	m := testMachine()
	startupToReady(m)

	task1 := newTestTask(taskQuery, "SELECT bad")
	m.handle(eventEnqueue{t: task1})

	drive(m,
		eventBackendMessage{msg: &pgwire.ParseComplete{}},
		eventBackendMessage{msg: &pgwire.RowDescription{Fields: []pgwire.FieldDescription{{Name: "c", DataTypeOID: 23}}}},
		eventBackendMessage{msg: &pgwire.BindComplete{}},
		eventBackendMessage{msg: &pgwire.DataRow{Values: [][]byte{{0, 0, 0, 1}}}},
	)

	acts := m.handle(eventBackendMessage{msg: &pgwire.ErrorResponse{Severity: "ERROR", Code: "22P02", Message: "bad"}})
	require.Equal(t, []string{"failStream"}, actionNames(acts))
	assert.Equal(t, "22P02", acts[0].(actionFailStream).err.Server.Code)

	// Rows after the error are drained silently.
	acts = m.handle(eventBackendMessage{msg: &pgwire.DataRow{Values: [][]byte{{0, 0, 0, 2}}}})
	assert.Empty(t, acts)

	acts = m.handle(eventBackendMessage{msg: &pgwire.ReadyForQuery{TxStatus: pgwire.TxStatusInFailedTx}})
	require.Equal(t, []string{"fireReadyForQuery"}, actionNames(acts))
	assert.Equal(t, stateReadyForQuery, m.state)

	// The connection still accepts work.
	task2 := newTestTask(taskQuery, "SELECT 1")
	acts = m.handle(eventEnqueue{t: task2})
	require.Equal(t, []string{"sendMessages"}, actionNames(acts))
}

// SQLSTATE class 28 (invalid authorization) closes the connection even when
// it arrives during a query.
func TestMachineAuthClassServerErrorCloses(t *testing.T) {
	m := testMachine()
	startupToReady(m)

	task1 := newTestTask(taskQuery, "SELECT 1")
	m.handle(eventEnqueue{t: task1})

	acts := m.handle(eventBackendMessage{msg: &pgwire.ErrorResponse{Severity: "FATAL", Code: "28P01", Message: "password authentication failed"}})
	require.Equal(t, []string{"failTask"}, actionNames(acts))

	acts = m.handle(eventBackendMessage{msg: &pgwire.ReadyForQuery{TxStatus: pgwire.TxStatusIdle}})
	require.Equal(t, []string{"closeConnection"}, actionNames(acts))
	assert.Equal(t, stateClosing, m.state)
}

func TestMachinePortalSuspendedIsProtocolViolation(t *testing.T) {
	m := testMachine()
	startupToReady(m)

	task1 := newTestTask(taskQuery, "SELECT 1")
	m.handle(eventEnqueue{t: task1})
	drive(m,
		eventBackendMessage{msg: &pgwire.ParseComplete{}},
		eventBackendMessage{msg: &pgwire.RowDescription{Fields: []pgwire.FieldDescription{{Name: "c", DataTypeOID: 23}}}},
		eventBackendMessage{msg: &pgwire.BindComplete{}},
	)

	acts := m.handle(eventBackendMessage{msg: &pgwire.PortalSuspended{}})
	names := actionNames(acts)
	require.Contains(t, names, "closeConnection")
	assert.Equal(t, ErrCodeUnexpectedBackendMessage, acts[len(acts)-1].(actionCloseConnection).err.Code)
}

func TestMachinePrepareLifecycle(t *testing.T) {
	m := testMachine()
	startupToReady(m)

	prep := &task{kind: taskPrepare, name: "stmt1", sql: "SELECT $1::int8", done: make(chan taskResult, 1)}
	acts := m.handle(eventEnqueue{t: prep})
	require.Equal(t, []string{"sendMessages"}, actionNames(acts))

	msgs := acts[0].(actionSendMessages).msgs
	require.Len(t, msgs, 3)
	assert.Equal(t, "stmt1", msgs[0].(*pgwire.Parse).Name)
	assert.IsType(t, &pgwire.Describe{}, msgs[1])
	assert.IsType(t, &pgwire.Sync{}, msgs[2])

	drive(m,
		eventBackendMessage{msg: &pgwire.ParseComplete{}},
		eventBackendMessage{msg: &pgwire.ParameterDescription{ParameterOIDs: []uint32{20}}},
		eventBackendMessage{msg: &pgwire.RowDescription{Fields: []pgwire.FieldDescription{{Name: "int8", DataTypeOID: 20}}}},
	)

	acts = m.handle(eventBackendMessage{msg: &pgwire.ReadyForQuery{TxStatus: pgwire.TxStatusIdle}})
	require.Equal(t, []string{"succeedPrepare", "fireReadyForQuery"}, actionNames(acts))

	desc := acts[0].(actionSucceedPrepare).desc
	assert.Equal(t, "stmt1", desc.Name)
	assert.Equal(t, []uint32{20}, desc.ParamOIDs)
	require.Len(t, desc.Fields, 1)
}

func TestMachineGracefulCloseWaitsForQueue(t *testing.T) {
	m := testMachine()
	startupToReady(m)

	task1 := newTestTask(taskQuery, "SELECT 1")
	m.handle(eventEnqueue{t: task1})

	acts := m.handle(eventGracefulClose{})
	assert.Empty(t, acts)
	assert.Equal(t, stateExtendedQuery, m.state)

	drive(m,
		eventBackendMessage{msg: &pgwire.ParseComplete{}},
		eventBackendMessage{msg: &pgwire.NoData{}},
		eventBackendMessage{msg: &pgwire.BindComplete{}},
		eventBackendMessage{msg: &pgwire.CommandComplete{CommandTag: []byte("SELECT 0")}},
	)

	acts = m.handle(eventBackendMessage{msg: &pgwire.ReadyForQuery{TxStatus: pgwire.TxStatusIdle}})
	require.Equal(t, []string{"sendTerminate", "closeConnection"}, actionNames(acts))
	assert.True(t, acts[1].(actionCloseConnection).clientInitiated)
	assert.Equal(t, stateClosing, m.state)

	acts = m.handle(eventChannelInactive{})
	assert.Empty(t, acts)
	assert.Equal(t, stateClosed, m.state)
}

func TestMachineGracefulCloseWhenIdle(t *testing.T) {
	m := testMachine()
	startupToReady(m)

	acts := m.handle(eventGracefulClose{})
	require.Equal(t, []string{"sendTerminate", "closeConnection"}, actionNames(acts))
	assert.Equal(t, stateClosing, m.state)
}

func TestMachineServerClosedUnexpectedly(t *testing.T) {
	m := testMachine()
	startupToReady(m)

	task1 := newTestTask(taskQuery, "SELECT 1")
	m.handle(eventEnqueue{t: task1})

	acts := m.handle(eventChannelInactive{})
	require.Equal(t, []string{"failTask"}, actionNames(acts))
	assert.Equal(t, ErrCodeServerClosedConnection, acts[0].(actionFailTask).err.Code)
	assert.Equal(t, stateClosed, m.state)
}

func TestMachineRequireBackendKeyData(t *testing.T) {
	m := newMachine(machineConfig{user: "user", requireBackendKeyData: true})
	drive(m,
		eventConnected{tlsMode: TLSDisable},
		eventBackendMessage{msg: &pgwire.AuthenticationOk{}},
	)

	acts := m.handle(eventBackendMessage{msg: &pgwire.ReadyForQuery{TxStatus: pgwire.TxStatusIdle}})
	require.Equal(t, []string{"closeConnection"}, actionNames(acts))
	assert.Equal(t, ErrCodeUnexpectedBackendMessage, acts[0].(actionCloseConnection).err.Code)
}

func TestMachineNotificationForwarding(t *testing.T) {
	m := testMachine()
	startupToReady(m)

	acts := m.handle(eventBackendMessage{msg: &pgwire.NotificationResponse{PID: 9, Channel: "jobs", Payload: "go"}})
	require.Equal(t, []string{"forwardNotification"}, actionNames(acts))

	n := acts[0].(actionForwardNotification).n
	assert.Equal(t, "jobs", n.Channel)
	assert.Equal(t, "go", n.Payload)
}

// Two machines fed the same event sequence emit the same action sequence.
func TestMachineDeterminism(t *testing.T) {
	events := func(tasks []*task) []event {
		return []event{
			eventConnected{tlsMode: TLSDisable},
			eventBackendMessage{msg: &pgwire.AuthenticationOk{}},
			eventBackendMessage{msg: &pgwire.BackendKeyData{ProcessID: 1, SecretKey: 2}},
			eventBackendMessage{msg: &pgwire.ReadyForQuery{TxStatus: pgwire.TxStatusIdle}},
			eventEnqueue{t: tasks[0]},
			eventEnqueue{t: tasks[1]},
			eventBackendMessage{msg: &pgwire.ParseComplete{}},
			eventBackendMessage{msg: &pgwire.RowDescription{Fields: []pgwire.FieldDescription{{Name: "c", DataTypeOID: 23}}}},
			eventBackendMessage{msg: &pgwire.BindComplete{}},
			eventBackendMessage{msg: &pgwire.DataRow{Values: [][]byte{{0, 0, 0, 5}}}},
			eventBackendMessage{msg: &pgwire.ErrorResponse{Severity: "ERROR", Code: "22012", Message: "division by zero"}},
			eventBackendMessage{msg: &pgwire.ReadyForQuery{TxStatus: pgwire.TxStatusIdle}},
			eventBackendMessage{msg: &pgwire.ParseComplete{}},
			eventBackendMessage{msg: &pgwire.NoData{}},
			eventBackendMessage{msg: &pgwire.BindComplete{}},
			eventBackendMessage{msg: &pgwire.CommandComplete{CommandTag: []byte("SELECT 0")}},
			eventBackendMessage{msg: &pgwire.ReadyForQuery{TxStatus: pgwire.TxStatusIdle}},
			eventGracefulClose{},
			eventChannelInactive{},
		}
	}

	tasksA := []*task{newTestTask(taskQuery, "SELECT 1"), newTestTask(taskQuery, "SELECT 2")}
	tasksB := []*task{newTestTask(taskQuery, "SELECT 1"), newTestTask(taskQuery, "SELECT 2")}

	ma := testMachine()
	mb := testMachine()

	actsA := drive(ma, events(tasksA)...)
	actsB := drive(mb, events(tasksB)...)

	assert.Equal(t, actionNames(actsA), actionNames(actsB))
	assert.Equal(t, ma.state, mb.state)
}

func TestMachineReentrancyPanics(t *testing.T) {
	m := testMachine()
	m.state = stateModifying

	assert.Panics(t, func() {
		m.handle(eventGracefulClose{})
	})
}
