package pgwire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/jackc/chunkreader/v2"
)

// Frontend acts as a client for the PostgreSQL wire protocol version 3.
type Frontend struct {
	cr *chunkreader.ChunkReader
	w  io.Writer

	wbuf []byte

	// Backend message flyweights. The message returned by Receive is only
	// valid until the next call to Receive.
	authenticationOk                AuthenticationOk
	authenticationCleartextPassword AuthenticationCleartextPassword
	authenticationMD5Password       AuthenticationMD5Password
	authenticationSASL              AuthenticationSASL
	authenticationSASLContinue      AuthenticationSASLContinue
	authenticationSASLFinal         AuthenticationSASLFinal
	backendKeyData                  BackendKeyData
	bindComplete                    BindComplete
	closeComplete                   CloseComplete
	commandComplete                 CommandComplete
	dataRow                         DataRow
	emptyQueryResponse              EmptyQueryResponse
	errorResponse                   ErrorResponse
	noData                          NoData
	noticeResponse                  NoticeResponse
	notificationResponse            NotificationResponse
	parameterDescription            ParameterDescription
	parameterStatus                 ParameterStatus
	parseComplete                   ParseComplete
	portalSuspended                 PortalSuspended
	readyForQuery                   ReadyForQuery
	rowDescription                  RowDescription

	bodyLen    int
	msgType    byte
	partialMsg bool
	authType   uint32
}

// NewFrontend creates a new Frontend reading backend messages from r and
// writing frontend messages to w.
func NewFrontend(r io.Reader, w io.Writer) *Frontend {
	cr := chunkreader.New(r)
	return &Frontend{cr: cr, w: w}
}

// Send adds msg to the write buffer. The message is not guaranteed to be
// written until Flush is called.
func (f *Frontend) Send(msg FrontendMessage) {
	f.wbuf = msg.Encode(f.wbuf)
}

// Flush writes any pending messages to the backend.
func (f *Frontend) Flush() error {
	if len(f.wbuf) == 0 {
		return nil
	}

	n, err := f.w.Write(f.wbuf)

	const maxLen = 1024
	if len(f.wbuf) > maxLen {
		f.wbuf = make([]byte, 0, maxLen)
	} else {
		f.wbuf = f.wbuf[:0]
	}

	if err != nil {
		return &writeError{err: err, safeToRetry: n == 0}
	}

	return nil
}

func translateEOFtoErrUnexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// Receive receives a message from the backend. The returned message is only
// valid until the next call to Receive. Partial input blocks; it never
// produces an error.
func (f *Frontend) Receive() (BackendMessage, error) {
	if !f.partialMsg {
		header, err := f.cr.Next(5)
		if err != nil {
			return nil, translateEOFtoErrUnexpectedEOF(err)
		}

		f.msgType = header[0]

		msgLength := int32(binary.BigEndian.Uint32(header[1:]))
		if msgLength < 4 {
			return nil, &InvalidMessageLengthError{MessageType: f.msgType, Length: msgLength}
		}

		f.bodyLen = int(msgLength) - 4
		f.partialMsg = true
	}

	msgBody, err := f.cr.Next(f.bodyLen)
	if err != nil {
		return nil, translateEOFtoErrUnexpectedEOF(err)
	}

	f.partialMsg = false

	var msg BackendMessage
	switch f.msgType {
	case '1':
		msg = &f.parseComplete
	case '2':
		msg = &f.bindComplete
	case '3':
		msg = &f.closeComplete
	case 'A':
		msg = &f.notificationResponse
	case 'C':
		msg = &f.commandComplete
	case 'D':
		msg = &f.dataRow
	case 'E':
		msg = &f.errorResponse
	case 'I':
		msg = &f.emptyQueryResponse
	case 'K':
		msg = &f.backendKeyData
	case 'n':
		msg = &f.noData
	case 'N':
		msg = &f.noticeResponse
	case 'R':
		var err error
		msg, err = f.findAuthenticationMessageType(msgBody)
		if err != nil {
			return nil, err
		}
	case 's':
		msg = &f.portalSuspended
	case 'S':
		msg = &f.parameterStatus
	case 't':
		msg = &f.parameterDescription
	case 'T':
		msg = &f.rowDescription
	case 'Z':
		msg = &f.readyForQuery
	default:
		return nil, &UnknownMessageTypeError{ID: f.msgType}
	}

	err = msg.Decode(msgBody)
	if err != nil {
		return nil, err
	}

	return msg, nil
}

// Authentication message type constants.
// See src/include/libpq/pqcomm.h for all constants.
const (
	AuthTypeOk                = 0
	AuthTypeKerberosV5        = 2
	AuthTypeCleartextPassword = 3
	AuthTypeMD5Password       = 5
	AuthTypeSCMCreds          = 6
	AuthTypeGSS               = 7
	AuthTypeGSSCont           = 8
	AuthTypeSSPI              = 9
	AuthTypeSASL              = 10
	AuthTypeSASLContinue      = 11
	AuthTypeSASLFinal         = 12
)

// UnsupportedAuthTypeError occurs when the server requests an authentication
// flow this client does not implement.
type UnsupportedAuthTypeError struct {
	AuthType uint32
}

func (e *UnsupportedAuthTypeError) Error() string {
	return fmt.Sprintf("unsupported authentication type: %d", e.AuthType)
}

func (f *Frontend) findAuthenticationMessageType(src []byte) (BackendMessage, error) {
	if len(src) < 4 {
		return nil, &invalidMessageFormatErr{messageType: "Authentication", details: "too short"}
	}
	f.authType = binary.BigEndian.Uint32(src[:4])

	switch f.authType {
	case AuthTypeOk:
		return &f.authenticationOk, nil
	case AuthTypeCleartextPassword:
		return &f.authenticationCleartextPassword, nil
	case AuthTypeMD5Password:
		return &f.authenticationMD5Password, nil
	case AuthTypeSASL:
		return &f.authenticationSASL, nil
	case AuthTypeSASLContinue:
		return &f.authenticationSASLContinue, nil
	case AuthTypeSASLFinal:
		return &f.authenticationSASLFinal, nil
	case AuthTypeKerberosV5, AuthTypeSCMCreds, AuthTypeGSS, AuthTypeGSSCont, AuthTypeSSPI:
		return nil, &UnsupportedAuthTypeError{AuthType: f.authType}
	default:
		return nil, &UnsupportedAuthTypeError{AuthType: f.authType}
	}
}

// GetAuthType returns the authType of the most recently received
// authentication message.
func (f *Frontend) GetAuthType() uint32 {
	return f.authType
}
