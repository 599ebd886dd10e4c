package pgconn

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

// ErrorCode classifies every error surfaced by this package. It determines
// whether the connection survives the error.
type ErrorCode int

const (
	ErrCodeConnectionError ErrorCode = iota
	ErrCodeServerClosedConnection
	ErrCodeClientClosedConnection
	ErrCodeUncleanShutdown
	ErrCodeSSLUnsupported
	ErrCodeFailedToAddSSLHandler
	ErrCodeReceivedUnencryptedDataAfterSSLRequest
	ErrCodeMessageDecodingFailure
	ErrCodeUnexpectedBackendMessage
	ErrCodeUnsupportedAuthMechanism
	ErrCodeAuthMechanismRequiresPassword
	ErrCodeSASLError
	ErrCodeServer
	ErrCodeTooManyParameters
	ErrCodeInvalidCommandTag
	ErrCodeQueryCancelled
	ErrCodeListenFailed
	ErrCodeUnlistenFailed
	ErrCodeCasting
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeConnectionError:
		return "connection error"
	case ErrCodeServerClosedConnection:
		return "server closed connection"
	case ErrCodeClientClosedConnection:
		return "client closed connection"
	case ErrCodeUncleanShutdown:
		return "unclean shutdown"
	case ErrCodeSSLUnsupported:
		return "server does not support TLS"
	case ErrCodeFailedToAddSSLHandler:
		return "failed to establish TLS"
	case ErrCodeReceivedUnencryptedDataAfterSSLRequest:
		return "received unencrypted data after SSL request"
	case ErrCodeMessageDecodingFailure:
		return "message decoding failure"
	case ErrCodeUnexpectedBackendMessage:
		return "unexpected backend message"
	case ErrCodeUnsupportedAuthMechanism:
		return "unsupported authentication mechanism"
	case ErrCodeAuthMechanismRequiresPassword:
		return "authentication mechanism requires a password"
	case ErrCodeSASLError:
		return "SASL error"
	case ErrCodeServer:
		return "server error"
	case ErrCodeTooManyParameters:
		return "too many bind parameters"
	case ErrCodeInvalidCommandTag:
		return "invalid command tag"
	case ErrCodeQueryCancelled:
		return "query cancelled"
	case ErrCodeListenFailed:
		return "listen failed"
	case ErrCodeUnlistenFailed:
		return "unlisten failed"
	case ErrCodeCasting:
		return "value decoding failure"
	default:
		return fmt.Sprintf("error code %d", int(c))
	}
}

// Error is the error type surfaced by connection operations. Code drives
// connection cleanup policy; Server carries the backend's fields when Code is
// ErrCodeServer.
type Error struct {
	Code   ErrorCode
	Server *PgError
	Query  string
	err    error
}

func (e *Error) Error() string {
	sb := &strings.Builder{}
	sb.WriteString(e.Code.String())
	if e.Server != nil {
		fmt.Fprintf(sb, ": %s", e.Server.Error())
	}
	if e.err != nil {
		fmt.Fprintf(sb, ": %s", e.err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	if e.Server != nil {
		return e.Server
	}
	return e.err
}

// Is matches on Code so callers can compare against sentinel values.
func (e *Error) Is(target error) bool {
	var pe *Error
	if errors.As(target, &pe) {
		return pe.Code == e.Code
	}
	return false
}

func newError(code ErrorCode, err error) *Error {
	return &Error{Code: code, err: err}
}

func serverError(pgErr *PgError) *Error {
	return &Error{Code: ErrCodeServer, Server: pgErr}
}

// shouldCloseConnection reports whether an error is fatal to the connection.
// Server errors only kill the connection when the SQLSTATE class is 28
// (invalid authorization); a cancelled query never does.
func (e *Error) shouldCloseConnection() bool {
	switch e.Code {
	case ErrCodeQueryCancelled, ErrCodeCasting:
		return false
	case ErrCodeServer:
		return e.Server != nil && strings.HasPrefix(e.Server.Code, "28")
	default:
		return true
	}
}

// PgError represents an error reported by the PostgreSQL server. See
// http://www.postgresql.org/docs/current/protocol-error-fields.html for
// detailed field description.
type PgError struct {
	Severity         string
	Code             string
	Message          string
	Detail           string
	Hint             string
	Position         int32
	InternalPosition int32
	InternalQuery    string
	Where            string
	SchemaName       string
	TableName        string
	ColumnName       string
	DataTypeName     string
	ConstraintName   string
	File             string
	Line             int32
	Routine          string
}

func (pe *PgError) Error() string {
	return pe.Severity + ": " + pe.Message + " (SQLSTATE " + pe.Code + ")"
}

// SQLState returns the SQLState of the error.
func (pe *PgError) SQLState() string {
	return pe.Code
}

// CastError reports a failure to decode a column value into the caller's
// destination type. The connection survives; only the read fails.
type CastError struct {
	ColumnName  string
	ColumnIndex int
	TargetType  string
	SourceOID   uint32
	SourceBytes []byte
	File        string
	Line        int
	err         error
}

func (e *CastError) Error() string {
	return fmt.Sprintf("cannot decode column %q (index %d, oid %d) into %s at %s:%d: %s",
		e.ColumnName, e.ColumnIndex, e.SourceOID, e.TargetType, e.File, e.Line, e.err)
}

func (e *CastError) Unwrap() error {
	return e.err
}

// SafeToRetry checks if the err is guaranteed to have occurred before sending
// any data to the server.
func SafeToRetry(err error) bool {
	if e, ok := err.(interface{ SafeToRetry() bool }); ok {
		return e.SafeToRetry()
	}
	return false
}

// Timeout checks if err was caused by a timeout. To be specific, it is true
// if err was caused within this package by a context.DeadlineExceeded or an
// implementer of net.Error where Timeout() is true.
func Timeout(err error) bool {
	var timeoutErr *errTimeout
	return errors.As(err, &timeoutErr)
}

type connectError struct {
	config *Config
	msg    string
	err    error
}

func (e *connectError) Error() string {
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "failed to connect to `host=%s user=%s database=%s`: %s", e.config.Host, e.config.User, e.config.Database, e.msg)
	if e.err != nil {
		fmt.Fprintf(sb, " (%s)", e.err.Error())
	}
	return sb.String()
}

func (e *connectError) Unwrap() error {
	return e.err
}

type parseConfigError struct {
	connString string
	msg        string
	err        error
}

func (e *parseConfigError) Error() string {
	connString := redactPW(e.connString)
	if e.err == nil {
		return fmt.Sprintf("cannot parse `%s`: %s", connString, e.msg)
	}
	return fmt.Sprintf("cannot parse `%s`: %s (%s)", connString, e.msg, e.err.Error())
}

func (e *parseConfigError) Unwrap() error {
	return e.err
}

func normalizeTimeoutError(ctx context.Context, err error) error {
	if err, ok := err.(net.Error); ok && err.Timeout() {
		if ctx.Err() == context.Canceled {
			// Since the timeout was caused by a context cancellation, the
			// actual error is context.Canceled not the timeout error.
			return context.Canceled
		} else if ctx.Err() == context.DeadlineExceeded {
			return &errTimeout{err: ctx.Err()}
		} else {
			return &errTimeout{err: err}
		}
	}
	return err
}

// errTimeout occurs when an error was caused by a timeout. Specifically, it
// wraps an error which is context.Canceled, context.DeadlineExceeded, or an
// implementer of net.Error where Timeout() is true.
type errTimeout struct {
	err error
}

func (e *errTimeout) Error() string {
	return fmt.Sprintf("timeout: %s", e.err.Error())
}

func (e *errTimeout) SafeToRetry() bool {
	return SafeToRetry(e.err)
}

func (e *errTimeout) Unwrap() error {
	return e.err
}

func redactPW(connString string) string {
	if strings.HasPrefix(connString, "postgres://") || strings.HasPrefix(connString, "postgresql://") {
		if u, err := url.Parse(connString); err == nil {
			return redactURL(u)
		}
	}
	quotedDSN := regexp.MustCompile(`password='[^']*'`)
	connString = quotedDSN.ReplaceAllLiteralString(connString, "password=xxxxx")
	plainDSN := regexp.MustCompile(`password=[^ ]*`)
	connString = plainDSN.ReplaceAllLiteralString(connString, "password=xxxxx")
	brokenURL := regexp.MustCompile(`:[^:@]+?@`)
	connString = brokenURL.ReplaceAllLiteralString(connString, ":xxxxxx@")
	return connString
}

func redactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	if _, pwSet := u.User.Password(); pwSet {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
