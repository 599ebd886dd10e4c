// Package pgwire implements the frontend half of the PostgreSQL wire protocol
// version 3. It decodes backend messages and encodes frontend messages. It does
// not interpret column values; see the pgtype package for that.
package pgwire

import (
	"bytes"
	"fmt"
)

func indexOfNull(src []byte) int {
	return bytes.IndexByte(src, 0)
}

const (
	// ProtocolVersionNumber is the only protocol version spoken by this package (3.0).
	ProtocolVersionNumber = 196608

	sslRequestNumber    = 80877103
	cancelRequestNumber = 80877102
)

// Format codes for parameter and result values.
const (
	TextFormat   = 0
	BinaryFormat = 1
)

// Message is the interface implemented by an object that can decode or encode
// a particular PostgreSQL message.
type Message interface {
	// Decode is allowed and expected to retain a reference to data after
	// returning (unlike encoding.BinaryUnmarshaler).
	Decode(data []byte) error

	// Encode appends itself to dst and returns the new buffer.
	Encode(dst []byte) []byte
}

// FrontendMessage is a message sent by the frontend (i.e. the client).
type FrontendMessage interface {
	Message
	Frontend() // no-op method to distinguish frontend from backend methods
}

// BackendMessage is a message sent by the backend (i.e. the server).
type BackendMessage interface {
	Message
	Backend() // no-op method to distinguish frontend from backend methods
}

// AuthenticationResponseMessage is a backend message in the authentication
// family ('R' messages).
type AuthenticationResponseMessage interface {
	BackendMessage
	AuthenticationResponse() // no-op method to distinguish authentication responses
}

// UnknownMessageTypeError occurs when the backend sends an identifier byte
// outside the documented message set.
type UnknownMessageTypeError struct {
	ID byte
}

func (e *UnknownMessageTypeError) Error() string {
	return fmt.Sprintf("unknown message type: %c (0x%02x)", e.ID, e.ID)
}

// InvalidMessageLengthError occurs when a message header carries a length that
// is negative or otherwise impossible.
type InvalidMessageLengthError struct {
	MessageType byte
	Length      int32
}

func (e *InvalidMessageLengthError) Error() string {
	return fmt.Sprintf("invalid message length for %c: %d", e.MessageType, e.Length)
}

type invalidMessageLenErr struct {
	messageType string
	expectedLen int
	actualLen   int
}

func (e *invalidMessageLenErr) Error() string {
	return fmt.Sprintf("%s body must have length of %d, but it is %d", e.messageType, e.expectedLen, e.actualLen)
}

type invalidMessageFormatErr struct {
	messageType string
	details     string
}

func (e *invalidMessageFormatErr) Error() string {
	if e.details == "" {
		return fmt.Sprintf("%s body is invalid", e.messageType)
	}
	return fmt.Sprintf("%s body is invalid: %s", e.messageType, e.details)
}

type writeError struct {
	err         error
	safeToRetry bool
}

func (e *writeError) Error() string {
	return fmt.Sprintf("write failed: %s", e.err.Error())
}

func (e *writeError) SafeToRetry() bool {
	return e.safeToRetry
}

func (e *writeError) Unwrap() error {
	return e.err
}
