package pgconn

import (
	"errors"
	"fmt"

	"github.com/jackc/pgcore/pgwire"
)

// connState is the top-level connection state. Transitions are driven
// exclusively through machine.handle; the I/O driver performs the returned
// actions.
type connState int

const (
	stateInitialized connState = iota
	stateSSLRequestSent
	stateSSLNegotiated
	stateAuthenticating
	stateAuthenticated
	stateReadyForQuery
	stateExtendedQuery
	stateCloseCommand
	stateClosing
	stateClosed

	// stateModifying is a sentinel installed while a transition runs. It must
	// never be observed at rest; seeing it means handle was re-entered from
	// inside an action.
	stateModifying
)

func (s connState) String() string {
	switch s {
	case stateInitialized:
		return "initialized"
	case stateSSLRequestSent:
		return "sslRequestSent"
	case stateSSLNegotiated:
		return "sslNegotiated"
	case stateAuthenticating:
		return "authenticating"
	case stateAuthenticated:
		return "authenticated"
	case stateReadyForQuery:
		return "readyForQuery"
	case stateExtendedQuery:
		return "extendedQuery"
	case stateCloseCommand:
		return "closeCommand"
	case stateClosing:
		return "closing"
	case stateClosed:
		return "closed"
	case stateModifying:
		return "modifying"
	default:
		return fmt.Sprintf("connState(%d)", int(s))
	}
}

// Events.

type event interface{ eventName() string }

type eventConnected struct{ tlsMode TLSMode }
type eventSSLReply struct{ supported bool }
type eventTLSEstablished struct{}
type eventBackendMessage struct{ msg pgwire.BackendMessage }
type eventEnqueue struct{ t *task }
type eventErrorHappened struct{ err *Error }
type eventGracefulClose struct{}
type eventClose struct{}
type eventChannelInactive struct{}

func (eventConnected) eventName() string      { return "connected" }
func (eventSSLReply) eventName() string       { return "sslReply" }
func (eventTLSEstablished) eventName() string { return "tlsEstablished" }
func (eventBackendMessage) eventName() string { return "backendMessage" }
func (eventEnqueue) eventName() string        { return "enqueue" }
func (eventErrorHappened) eventName() string  { return "errorHappened" }
func (eventGracefulClose) eventName() string  { return "gracefulClose" }
func (eventClose) eventName() string          { return "close" }
func (eventChannelInactive) eventName() string { return "channelInactive" }

// Actions. The machine never touches the socket or any completion handle
// itself; it tells the driver what to do.

type action interface{ actionName() string }

type actionSendSSLRequest struct{}
type actionEstablishTLS struct{}
type actionSendStartup struct{}
type actionSendPassword struct{ password string }
type actionSendSASLInitial struct {
	mechanism string
	data      []byte
}
type actionSendSASLResponse struct{ data []byte }
type actionSendMessages struct{ msgs []pgwire.FrontendMessage }
type actionSucceedQuery struct {
	t      *task
	fields []pgwire.FieldDescription
}
type actionForwardRow struct{ values [][]byte }
type actionCompleteStream struct{ commandTag string }
type actionFailStream struct{ err *Error }
type actionSucceedPrepare struct {
	t    *task
	desc *StatementDescription
}
type actionSucceedClose struct{ t *task }
type actionFailTask struct {
	t   *task
	err *Error
}
type actionForwardNotice struct{ notice *Notice }
type actionForwardNotification struct{ n *Notification }
type actionFireReadyForQuery struct{}
type actionSendTerminate struct{}
type actionCloseConnection struct {
	err             *Error
	clientInitiated bool
}

func (actionSendSSLRequest) actionName() string      { return "sendSSLRequest" }
func (actionEstablishTLS) actionName() string        { return "establishTLS" }
func (actionSendStartup) actionName() string         { return "sendStartup" }
func (actionSendPassword) actionName() string        { return "sendPassword" }
func (actionSendSASLInitial) actionName() string     { return "sendSASLInitial" }
func (actionSendSASLResponse) actionName() string    { return "sendSASLResponse" }
func (actionSendMessages) actionName() string        { return "sendMessages" }
func (actionSucceedQuery) actionName() string        { return "succeedQuery" }
func (actionForwardRow) actionName() string          { return "forwardRow" }
func (actionCompleteStream) actionName() string      { return "completeStream" }
func (actionFailStream) actionName() string          { return "failStream" }
func (actionSucceedPrepare) actionName() string      { return "succeedPrepare" }
func (actionSucceedClose) actionName() string        { return "succeedClose" }
func (actionFailTask) actionName() string            { return "failTask" }
func (actionForwardNotice) actionName() string       { return "forwardNotice" }
func (actionForwardNotification) actionName() string { return "forwardNotification" }
func (actionFireReadyForQuery) actionName() string   { return "fireReadyForQuery" }
func (actionSendTerminate) actionName() string       { return "sendTerminate" }
func (actionCloseConnection) actionName() string     { return "closeConnection" }

// Tasks.

type taskKind int

const (
	taskQuery taskKind = iota
	taskPrepare
	taskExecPrepared
	taskCloseStmt
)

type task struct {
	kind taskKind

	sql        string
	name       string // statement name for prepare and close
	objectType byte   // close target kind: 'S' or 'P'

	paramOIDs     []uint32
	paramFormats  []int16
	paramValues   [][]byte
	resultFormats []int16

	desc *StatementDescription // set for taskExecPrepared

	done chan taskResult // buffered with capacity 1
}

type taskResult struct {
	stream *RowStream
	desc   *StatementDescription
	err    error
}

func (t *task) complete(r taskResult) {
	select {
	case t.done <- r:
	default:
		// Already completed. Completion is exactly-once; a second attempt is
		// dropped.
	}
}

// StatementDescription holds everything learned about a prepared statement.
type StatementDescription struct {
	Name      string
	SQL       string
	ParamOIDs []uint32
	Fields    []pgwire.FieldDescription
}

// Notification is a decoded NotificationResponse.
type Notification struct {
	PID     uint32
	Channel string
	Payload string
}

// Notice is a non-error message from the server with the same fields as
// PgError.
type Notice PgError

// BackendKeyData identifies the server process for cancel requests.
type BackendKeyData struct {
	PID       uint32
	SecretKey uint32
}

// machineConfig is the slice of Config the state machine needs.
type machineConfig struct {
	user                  string
	password              string
	database              string
	runtimeParams         map[string]string
	requireBackendKeyData bool
	nonce                 func([]byte) error // nil uses crypto/rand
}

// extended-query sub-state machine phases.
type eqPhase int

const (
	eqAwaitingHead eqPhase = iota // burst sent, stream not yet started
	eqStreaming
	eqDrain
	eqComplete
)

type extendedQuerySM struct {
	phase     eqPhase
	paramOIDs []uint32                  // from ParameterDescription (prepare)
	fields    []pgwire.FieldDescription // recorded statement fields (prepare)
	err       *Error
}

// machine is the per-connection state machine. It is pure: handle maps an
// event to actions and the next state, with no I/O. All calls must come from
// one goroutine at a time (the driver serializes them).
type machine struct {
	cfg   machineConfig
	state connState

	tlsMode TLSMode
	scram   *scramClient

	backendKeyData *BackendKeyData
	serverParams   map[string]string
	txStatus       byte

	queue   []*task
	current *task
	eq      extendedQuerySM

	gracefulClose        bool
	clientInitiatedClose bool
	closeErr             *Error
}

func newMachine(cfg machineConfig) *machine {
	return &machine{
		cfg:          cfg,
		state:        stateInitialized,
		serverParams: make(map[string]string),
	}
}

// handle runs one transition. It asserts against re-entrancy with the
// stateModifying sentinel: any action handler that synchronously feeds
// another event panics here instead of corrupting state.
func (m *machine) handle(ev event) []action {
	if m.state == stateModifying {
		panic("pgconn: state machine re-entered during transition")
	}

	prev := m.state
	m.state = stateModifying

	actions, next := m.transition(prev, ev)

	if m.state != stateModifying {
		panic("pgconn: state mutated outside transition")
	}
	m.state = next

	return actions
}

func (m *machine) transition(s connState, ev event) ([]action, connState) {
	switch ev := ev.(type) {
	case eventConnected:
		if s != stateInitialized {
			return m.closeWithError(s, newError(ErrCodeConnectionError, errors.New("connected event in wrong state")))
		}
		m.tlsMode = ev.tlsMode
		if ev.tlsMode == TLSDisable {
			return []action{actionSendStartup{}}, stateAuthenticating
		}
		return []action{actionSendSSLRequest{}}, stateSSLRequestSent

	case eventSSLReply:
		if s != stateSSLRequestSent {
			return m.closeWithError(s, newError(ErrCodeUnexpectedBackendMessage, errors.New("ssl reply in wrong state")))
		}
		if ev.supported {
			return []action{actionEstablishTLS{}}, stateSSLNegotiated
		}
		if m.tlsMode == TLSRequire {
			return m.closeWithError(s, newError(ErrCodeSSLUnsupported, nil))
		}
		// prefer: continue in plaintext on the same socket
		return []action{actionSendStartup{}}, stateAuthenticating

	case eventTLSEstablished:
		if s != stateSSLNegotiated {
			return m.closeWithError(s, newError(ErrCodeFailedToAddSSLHandler, errors.New("tls established in wrong state")))
		}
		return []action{actionSendStartup{}}, stateAuthenticating

	case eventBackendMessage:
		return m.handleBackendMessage(s, ev.msg)

	case eventEnqueue:
		return m.handleEnqueue(s, ev.t)

	case eventErrorHappened:
		if s == stateClosing || s == stateClosed {
			return nil, s
		}
		if !ev.err.shouldCloseConnection() {
			return nil, s
		}
		return m.closeWithError(s, ev.err)

	case eventGracefulClose:
		switch s {
		case stateClosing, stateClosed:
			return nil, s
		case stateReadyForQuery:
			if len(m.queue) == 0 {
				m.clientInitiatedClose = true
				return []action{actionSendTerminate{}, actionCloseConnection{clientInitiated: true}}, stateClosing
			}
		case stateInitialized:
			m.clientInitiatedClose = true
			return []action{actionCloseConnection{clientInitiated: true}}, stateClosing
		}
		m.gracefulClose = true
		return nil, s

	case eventClose:
		if s == stateClosing || s == stateClosed {
			return nil, s
		}
		m.clientInitiatedClose = true
		acts := m.failAllTasks(newError(ErrCodeClientClosedConnection, nil))
		acts = append(acts, actionCloseConnection{clientInitiated: true})
		return acts, stateClosing

	case eventChannelInactive:
		if s == stateClosing {
			return nil, stateClosed
		}
		if s == stateClosed {
			return nil, s
		}
		err := newError(ErrCodeServerClosedConnection, nil)
		m.closeErr = err
		acts := m.failAllTasks(err)
		return acts, stateClosed

	default:
		panic(fmt.Sprintf("pgconn: unknown event %T", ev))
	}
}

// closeWithError fails every queued and in-flight task with err and tells the
// driver to tear the connection down.
func (m *machine) closeWithError(s connState, err *Error) ([]action, connState) {
	if s == stateClosing || s == stateClosed {
		return nil, s
	}
	m.closeErr = err
	acts := m.failAllTasks(err)
	acts = append(acts, actionCloseConnection{err: err})
	return acts, stateClosing
}

func (m *machine) failAllTasks(err *Error) []action {
	var acts []action

	if m.current != nil {
		if m.eq.phase == eqStreaming {
			acts = append(acts, actionFailStream{err: err})
		} else if m.eq.err == nil {
			// Tasks that already failed (drain phase) were completed when the
			// error was first seen.
			acts = append(acts, actionFailTask{t: m.current, err: err})
		}
		m.current = nil
	}

	for _, t := range m.queue {
		acts = append(acts, actionFailTask{t: t, err: err})
	}
	m.queue = nil

	return acts
}

func (m *machine) handleEnqueue(s connState, t *task) ([]action, connState) {
	if m.gracefulClose || s == stateClosing || s == stateClosed {
		code := ErrCodeServerClosedConnection
		if m.clientInitiatedClose || m.gracefulClose {
			code = ErrCodeClientClosedConnection
		}
		return []action{actionFailTask{t: t, err: newError(code, nil)}}, s
	}

	if s == stateReadyForQuery {
		return m.startTask(t)
	}

	// Busy or still starting up: wait for the next ReadyForQuery.
	m.queue = append(m.queue, t)
	return nil, s
}

func (m *machine) handleBackendMessage(s connState, msg pgwire.BackendMessage) ([]action, connState) {
	// Messages that can arrive in any post-startup state.
	switch msg := msg.(type) {
	case *pgwire.ParameterStatus:
		if s == stateAuthenticating || s == stateAuthenticated || s == stateReadyForQuery ||
			s == stateExtendedQuery || s == stateCloseCommand || s == stateClosing {
			m.serverParams[msg.Name] = msg.Value
			return nil, s
		}
	case *pgwire.NotificationResponse:
		if s != stateInitialized && s != stateSSLRequestSent && s != stateSSLNegotiated {
			return []action{actionForwardNotification{n: &Notification{PID: msg.PID, Channel: msg.Channel, Payload: msg.Payload}}}, s
		}
	}

	switch s {
	case stateAuthenticating:
		return m.handleAuthMessage(s, msg)

	case stateAuthenticated:
		switch msg := msg.(type) {
		case *pgwire.BackendKeyData:
			m.backendKeyData = &BackendKeyData{PID: msg.ProcessID, SecretKey: msg.SecretKey}
			return nil, s
		case *pgwire.NoticeResponse:
			return []action{actionForwardNotice{notice: noticeFromWire(msg)}}, s
		case *pgwire.ReadyForQuery:
			if m.cfg.requireBackendKeyData && m.backendKeyData == nil {
				return m.closeWithError(s, newError(ErrCodeUnexpectedBackendMessage, errors.New("server did not send backend key data")))
			}
			m.txStatus = msg.TxStatus
			return m.dispatchReady()
		case *pgwire.ErrorResponse:
			return m.closeWithError(s, serverError(pgErrorFromWire(msg)))
		}

	case stateReadyForQuery:
		switch msg := msg.(type) {
		case *pgwire.NoticeResponse:
			return []action{actionForwardNotice{notice: noticeFromWire(msg)}}, s
		case *pgwire.ErrorResponse:
			// A FATAL error between queries (e.g. idle timeout, admin
			// shutdown) arrives here; the socket closes next.
			return m.closeWithError(s, serverError(pgErrorFromWire(msg)))
		}

	case stateExtendedQuery:
		return m.handleExtendedQueryMessage(s, msg)

	case stateCloseCommand:
		return m.handleCloseCommandMessage(s, msg)

	case stateClosing, stateClosed:
		// Late messages during teardown are dropped.
		return nil, s
	}

	return m.closeWithError(s, newError(ErrCodeUnexpectedBackendMessage,
		fmt.Errorf("unexpected %T in state %v", msg, s)))
}

func (m *machine) handleAuthMessage(s connState, msg pgwire.BackendMessage) ([]action, connState) {
	switch msg := msg.(type) {
	case *pgwire.AuthenticationOk:
		return nil, stateAuthenticated

	case *pgwire.AuthenticationCleartextPassword:
		if m.cfg.password == "" {
			return m.closeWithError(s, newError(ErrCodeAuthMechanismRequiresPassword, nil))
		}
		return []action{actionSendPassword{password: m.cfg.password}}, s

	case *pgwire.AuthenticationMD5Password:
		if m.cfg.password == "" {
			return m.closeWithError(s, newError(ErrCodeAuthMechanismRequiresPassword, nil))
		}
		return []action{actionSendPassword{password: digestMD5Password(m.cfg.password, m.cfg.user, msg.Salt)}}, s

	case *pgwire.AuthenticationSASL:
		if m.cfg.password == "" {
			return m.closeWithError(s, newError(ErrCodeAuthMechanismRequiresPassword, nil))
		}
		sc, err := newScramClient(msg.AuthMechanisms, m.cfg.password, m.cfg.nonce)
		if err != nil {
			var pgerr *Error
			if !errors.As(err, &pgerr) {
				pgerr = newError(ErrCodeSASLError, err)
			}
			return m.closeWithError(s, pgerr)
		}
		m.scram = sc
		return []action{actionSendSASLInitial{mechanism: scramMechanism, data: sc.clientFirstMessage()}}, s

	case *pgwire.AuthenticationSASLContinue:
		if m.scram == nil {
			return m.closeWithError(s, newError(ErrCodeUnexpectedBackendMessage, errors.New("SASL continue without SASL start")))
		}
		if err := m.scram.recvServerFirstMessage(msg.Data); err != nil {
			return m.closeWithError(s, err.(*Error))
		}
		return []action{actionSendSASLResponse{data: m.scram.clientFinalMessage()}}, s

	case *pgwire.AuthenticationSASLFinal:
		if m.scram == nil {
			return m.closeWithError(s, newError(ErrCodeUnexpectedBackendMessage, errors.New("SASL final without SASL start")))
		}
		if err := m.scram.recvServerFinalMessage(msg.Data); err != nil {
			return m.closeWithError(s, err.(*Error))
		}
		return nil, s

	case *pgwire.NoticeResponse:
		return []action{actionForwardNotice{notice: noticeFromWire(msg)}}, s

	case *pgwire.ErrorResponse:
		return m.closeWithError(s, serverError(pgErrorFromWire(msg)))

	case *pgwire.BackendKeyData:
		m.backendKeyData = &BackendKeyData{PID: msg.ProcessID, SecretKey: msg.SecretKey}
		return nil, s

	default:
		return m.closeWithError(s, newError(ErrCodeUnexpectedBackendMessage,
			fmt.Errorf("unexpected %T during authentication", msg)))
	}
}

func (m *machine) handleExtendedQueryMessage(s connState, msg pgwire.BackendMessage) ([]action, connState) {
	t := m.current

	switch msg := msg.(type) {
	case *pgwire.ParseComplete:
		return nil, s

	case *pgwire.BindComplete:
		if t.kind == taskExecPrepared && m.eq.phase == eqAwaitingHead {
			fields := effectiveFields(t.desc.Fields, t.resultFormats)
			m.eq.phase = eqStreaming
			return []action{actionSucceedQuery{t: t, fields: fields}}, s
		}
		return nil, s

	case *pgwire.ParameterDescription:
		m.eq.paramOIDs = append([]uint32(nil), msg.ParameterOIDs...)
		return nil, s

	case *pgwire.RowDescription:
		fields := copyFields(msg.Fields)
		if t.kind == taskPrepare {
			m.eq.fields = fields
			return nil, s
		}
		// The burst requested binary for every result column.
		for i := range fields {
			fields[i].Format = pgwire.BinaryFormat
		}
		m.eq.phase = eqStreaming
		return []action{actionSucceedQuery{t: t, fields: fields}}, s

	case *pgwire.NoData:
		if t.kind == taskPrepare {
			m.eq.fields = nil
			return nil, s
		}
		m.eq.phase = eqStreaming
		return []action{actionSucceedQuery{t: t, fields: nil}}, s

	case *pgwire.DataRow:
		switch m.eq.phase {
		case eqStreaming:
			return []action{actionForwardRow{values: msg.Values}}, s
		case eqDrain:
			return nil, s
		default:
			return m.closeWithError(s, newError(ErrCodeUnexpectedBackendMessage, errors.New("DataRow before RowDescription")))
		}

	case *pgwire.CommandComplete:
		if m.eq.phase == eqDrain {
			return nil, s
		}
		tag := string(msg.CommandTag)
		if tag == "" {
			return m.closeWithError(s, newError(ErrCodeInvalidCommandTag, nil))
		}
		if m.eq.phase != eqStreaming {
			return m.closeWithError(s, newError(ErrCodeUnexpectedBackendMessage, errors.New("CommandComplete before RowDescription")))
		}
		m.eq.phase = eqComplete
		return []action{actionCompleteStream{commandTag: tag}}, s

	case *pgwire.EmptyQueryResponse:
		if m.eq.phase == eqDrain {
			return nil, s
		}
		if m.eq.phase == eqAwaitingHead {
			// No statement, no row description: surface an empty result.
			m.eq.phase = eqStreaming
			acts := []action{actionSucceedQuery{t: t, fields: nil}, actionCompleteStream{commandTag: ""}}
			m.eq.phase = eqComplete
			return acts, s
		}
		m.eq.phase = eqComplete
		return []action{actionCompleteStream{commandTag: ""}}, s

	case *pgwire.PortalSuspended:
		// Execute is always issued with no row limit, so the server can never
		// suspend a portal.
		return m.closeWithError(s, newError(ErrCodeUnexpectedBackendMessage, errors.New("unexpected PortalSuspended")))

	case *pgwire.ErrorResponse:
		err := serverError(pgErrorFromWire(msg))
		err.Query = t.sql
		m.eq.err = err
		var acts []action
		if m.eq.phase == eqStreaming {
			acts = append(acts, actionFailStream{err: err})
		} else {
			acts = append(acts, actionFailTask{t: t, err: err})
		}
		m.eq.phase = eqDrain
		return acts, s

	case *pgwire.NoticeResponse:
		return []action{actionForwardNotice{notice: noticeFromWire(msg)}}, s

	case *pgwire.ReadyForQuery:
		m.txStatus = msg.TxStatus
		return m.finishCurrentTask()

	default:
		return m.closeWithError(s, newError(ErrCodeUnexpectedBackendMessage,
			fmt.Errorf("unexpected %T during extended query", msg)))
	}
}

func (m *machine) finishCurrentTask() ([]action, connState) {
	t := m.current
	m.current = nil

	var acts []action

	if m.eq.err != nil {
		if m.eq.err.shouldCloseConnection() {
			err := m.eq.err
			m.eq = extendedQuerySM{}
			m.closeErr = err
			acts = m.failAllTasks(err)
			acts = append(acts, actionCloseConnection{err: err})
			return acts, stateClosing
		}
	} else {
		switch {
		case t.kind == taskPrepare:
			desc := &StatementDescription{
				Name:      t.name,
				SQL:       t.sql,
				ParamOIDs: m.eq.paramOIDs,
				Fields:    m.eq.fields,
			}
			acts = append(acts, actionSucceedPrepare{t: t, desc: desc})
		case m.eq.phase != eqComplete:
			// The server skipped the completion message; the task would
			// otherwise never resolve.
			acts = append(acts, actionFailTask{t: t, err: newError(ErrCodeUnexpectedBackendMessage, errors.New("query ended without completion"))})
		}
	}
	m.eq = extendedQuerySM{}

	d, next := m.dispatchReady()
	return append(acts, d...), next
}

func (m *machine) handleCloseCommandMessage(s connState, msg pgwire.BackendMessage) ([]action, connState) {
	t := m.current

	switch msg := msg.(type) {
	case *pgwire.CloseComplete:
		m.eq.phase = eqComplete
		return nil, s

	case *pgwire.ErrorResponse:
		err := serverError(pgErrorFromWire(msg))
		m.eq.err = err
		m.eq.phase = eqDrain
		return []action{actionFailTask{t: t, err: err}}, s

	case *pgwire.NoticeResponse:
		return []action{actionForwardNotice{notice: noticeFromWire(msg)}}, s

	case *pgwire.ReadyForQuery:
		m.txStatus = msg.TxStatus
		m.current = nil
		var acts []action
		if m.eq.err == nil {
			acts = append(acts, actionSucceedClose{t: t})
		} else if m.eq.err.shouldCloseConnection() {
			err := m.eq.err
			m.eq = extendedQuerySM{}
			return m.closeWithError(s, err)
		}
		m.eq = extendedQuerySM{}
		d, next := m.dispatchReady()
		return append(acts, d...), next

	default:
		return m.closeWithError(s, newError(ErrCodeUnexpectedBackendMessage,
			fmt.Errorf("unexpected %T during close command", msg)))
	}
}

// dispatchReady runs after every ReadyForQuery: start the next queued task,
// begin graceful shutdown, or report idleness.
func (m *machine) dispatchReady() ([]action, connState) {
	if len(m.queue) == 0 {
		if m.gracefulClose {
			m.clientInitiatedClose = true
			return []action{actionSendTerminate{}, actionCloseConnection{clientInitiated: true}}, stateClosing
		}
		return []action{actionFireReadyForQuery{}}, stateReadyForQuery
	}

	t := m.queue[0]
	m.queue = m.queue[1:]
	return m.startTask(t)
}

func (m *machine) startTask(t *task) ([]action, connState) {
	m.current = t
	m.eq = extendedQuerySM{}

	next := stateExtendedQuery
	if t.kind == taskCloseStmt {
		next = stateCloseCommand
	}

	return []action{actionSendMessages{msgs: taskMessages(t)}}, next
}

// taskMessages builds the frontend burst for a task. Every burst ends with
// Sync, which guarantees a matching ReadyForQuery.
func taskMessages(t *task) []pgwire.FrontendMessage {
	switch t.kind {
	case taskQuery:
		return []pgwire.FrontendMessage{
			&pgwire.Parse{Name: "", Query: t.sql, ParameterOIDs: t.paramOIDs},
			&pgwire.Describe{ObjectType: pgwire.TargetStatement, Name: ""},
			&pgwire.Bind{
				ParameterFormatCodes: t.paramFormats,
				Parameters:           t.paramValues,
				ResultFormatCodes:    []int16{pgwire.BinaryFormat},
			},
			&pgwire.Execute{},
			&pgwire.Sync{},
		}
	case taskExecPrepared:
		return []pgwire.FrontendMessage{
			&pgwire.Bind{
				PreparedStatement:    t.desc.Name,
				ParameterFormatCodes: t.paramFormats,
				Parameters:           t.paramValues,
				ResultFormatCodes:    t.resultFormats,
			},
			&pgwire.Execute{},
			&pgwire.Sync{},
		}
	case taskPrepare:
		return []pgwire.FrontendMessage{
			&pgwire.Parse{Name: t.name, Query: t.sql},
			&pgwire.Describe{ObjectType: pgwire.TargetStatement, Name: t.name},
			&pgwire.Sync{},
		}
	case taskCloseStmt:
		return []pgwire.FrontendMessage{
			&pgwire.Close{ObjectType: t.objectType, Name: t.name},
			&pgwire.Sync{},
		}
	default:
		panic(fmt.Sprintf("pgconn: unknown task kind %d", t.kind))
	}
}

func copyFields(fields []pgwire.FieldDescription) []pgwire.FieldDescription {
	if fields == nil {
		return nil
	}
	out := make([]pgwire.FieldDescription, len(fields))
	copy(out, fields)
	return out
}

// effectiveFields overlays the result formats a Bind requested onto a
// statement description's fields.
func effectiveFields(fields []pgwire.FieldDescription, formats []int16) []pgwire.FieldDescription {
	out := copyFields(fields)
	for i := range out {
		switch {
		case len(formats) == 1:
			out[i].Format = formats[0]
		case i < len(formats):
			out[i].Format = formats[i]
		default:
			out[i].Format = pgwire.TextFormat
		}
	}
	return out
}

func pgErrorFromWire(msg *pgwire.ErrorResponse) *PgError {
	return &PgError{
		Severity:         msg.Severity,
		Code:             msg.Code,
		Message:          msg.Message,
		Detail:           msg.Detail,
		Hint:             msg.Hint,
		Position:         msg.Position,
		InternalPosition: msg.InternalPosition,
		InternalQuery:    msg.InternalQuery,
		Where:            msg.Where,
		SchemaName:       msg.SchemaName,
		TableName:        msg.TableName,
		ColumnName:       msg.ColumnName,
		DataTypeName:     msg.DataTypeName,
		ConstraintName:   msg.ConstraintName,
		File:             msg.File,
		Line:             msg.Line,
		Routine:          msg.Routine,
	}
}

func noticeFromWire(msg *pgwire.NoticeResponse) *Notice {
	return (*Notice)(pgErrorFromWire((*pgwire.ErrorResponse)(msg)))
}
