// Package pgtype converts between the binary and text representations of
// PostgreSQL values and Go types. It covers the types the connection core
// encodes and decodes itself; anything else travels as raw bytes.
package pgtype

import (
	"fmt"
)

// PostgreSQL oids for the supported types.
const (
	BoolOID        = 16
	ByteaOID       = 17
	NameOID        = 19
	Int8OID        = 20
	Int2OID        = 21
	Int4OID        = 23
	TextOID        = 25
	JSONOID        = 114
	Float4OID      = 700
	Float8OID      = 701
	UnknownOID     = 705
	Int2ArrayOID   = 1005
	Int4ArrayOID   = 1007
	TextArrayOID   = 1009
	Int8ArrayOID   = 1016
	Float4ArrayOID = 1021
	Float8ArrayOID = 1022
	BPCharOID      = 1042
	VarcharOID     = 1043
	DateOID        = 1082
	TimestampOID   = 1114
	TimestamptzOID = 1184
	NumericOID     = 1700
	UUIDOID        = 2950
	UUIDArrayOID   = 2951
	JSONBOID       = 3802
	JSONBArrayOID  = 3807
)

// Format codes, mirroring the wire protocol.
const (
	TextFormatCode   = 0
	BinaryFormatCode = 1
)

// Status distinguishes a present value from SQL NULL and from an
// uninitialized value struct.
type Status byte

const (
	Undefined Status = iota
	Null
	Present
)

// BinaryDecodable reports whether this package can decode the binary format
// of the given type oid. The connection uses it to choose result formats: it
// requests binary wherever a decoder exists and text everywhere else.
func BinaryDecodable(oid uint32) bool {
	switch oid {
	case BoolOID, ByteaOID, NameOID, Int8OID, Int2OID, Int4OID, TextOID,
		JSONOID, Float4OID, Float8OID, BPCharOID, VarcharOID, DateOID,
		TimestampOID, TimestamptzOID, NumericOID, UUIDOID, JSONBOID,
		Int4ArrayOID, Int8ArrayOID, TextArrayOID, Float8ArrayOID:
		return true
	}
	return false
}

// TypeName returns the PostgreSQL name for a supported oid, or a numeric
// rendering for the rest.
func TypeName(oid uint32) string {
	switch oid {
	case BoolOID:
		return "bool"
	case ByteaOID:
		return "bytea"
	case NameOID:
		return "name"
	case Int8OID:
		return "int8"
	case Int2OID:
		return "int2"
	case Int4OID:
		return "int4"
	case TextOID:
		return "text"
	case JSONOID:
		return "json"
	case Float4OID:
		return "float4"
	case Float8OID:
		return "float8"
	case Int2ArrayOID:
		return "int2[]"
	case Int4ArrayOID:
		return "int4[]"
	case TextArrayOID:
		return "text[]"
	case Int8ArrayOID:
		return "int8[]"
	case Float4ArrayOID:
		return "float4[]"
	case Float8ArrayOID:
		return "float8[]"
	case BPCharOID:
		return "bpchar"
	case VarcharOID:
		return "varchar"
	case DateOID:
		return "date"
	case TimestampOID:
		return "timestamp"
	case TimestamptzOID:
		return "timestamptz"
	case NumericOID:
		return "numeric"
	case UUIDOID:
		return "uuid"
	case JSONBOID:
		return "jsonb"
	default:
		return fmt.Sprintf("oid %d", oid)
	}
}

type decodeError struct {
	typeName string
	details  string
}

func (e *decodeError) Error() string {
	return fmt.Sprintf("cannot decode %s: %s", e.typeName, e.details)
}
