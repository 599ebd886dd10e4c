package pgtype

import (
	"encoding/binary"
	"strconv"

	"github.com/jackc/pgio"
)

type Int2 struct {
	Int    int16
	Status Status
}

func (dst *Int2) DecodeBinary(src []byte) error {
	if src == nil {
		*dst = Int2{Status: Null}
		return nil
	}

	if len(src) != 2 {
		return &decodeError{typeName: "int2", details: "invalid length"}
	}

	*dst = Int2{Int: int16(binary.BigEndian.Uint16(src)), Status: Present}
	return nil
}

func (dst *Int2) DecodeText(src []byte) error {
	if src == nil {
		*dst = Int2{Status: Null}
		return nil
	}

	n, err := strconv.ParseInt(string(src), 10, 16)
	if err != nil {
		return &decodeError{typeName: "int2", details: err.Error()}
	}

	*dst = Int2{Int: int16(n), Status: Present}
	return nil
}

func (src Int2) EncodeBinary(buf []byte) ([]byte, error) {
	if src.Status == Null {
		return nil, nil
	}
	return pgio.AppendInt16(buf, src.Int), nil
}

type Int4 struct {
	Int    int32
	Status Status
}

func (dst *Int4) DecodeBinary(src []byte) error {
	if src == nil {
		*dst = Int4{Status: Null}
		return nil
	}

	if len(src) != 4 {
		return &decodeError{typeName: "int4", details: "invalid length"}
	}

	*dst = Int4{Int: int32(binary.BigEndian.Uint32(src)), Status: Present}
	return nil
}

func (dst *Int4) DecodeText(src []byte) error {
	if src == nil {
		*dst = Int4{Status: Null}
		return nil
	}

	n, err := strconv.ParseInt(string(src), 10, 32)
	if err != nil {
		return &decodeError{typeName: "int4", details: err.Error()}
	}

	*dst = Int4{Int: int32(n), Status: Present}
	return nil
}

func (src Int4) EncodeBinary(buf []byte) ([]byte, error) {
	if src.Status == Null {
		return nil, nil
	}
	return pgio.AppendInt32(buf, src.Int), nil
}

type Int8 struct {
	Int    int64
	Status Status
}

func (dst *Int8) DecodeBinary(src []byte) error {
	if src == nil {
		*dst = Int8{Status: Null}
		return nil
	}

	if len(src) != 8 {
		return &decodeError{typeName: "int8", details: "invalid length"}
	}

	*dst = Int8{Int: int64(binary.BigEndian.Uint64(src)), Status: Present}
	return nil
}

func (dst *Int8) DecodeText(src []byte) error {
	if src == nil {
		*dst = Int8{Status: Null}
		return nil
	}

	n, err := strconv.ParseInt(string(src), 10, 64)
	if err != nil {
		return &decodeError{typeName: "int8", details: err.Error()}
	}

	*dst = Int8{Int: n, Status: Present}
	return nil
}

func (src Int8) EncodeBinary(buf []byte) ([]byte, error) {
	if src.Status == Null {
		return nil, nil
	}
	return pgio.AppendInt64(buf, src.Int), nil
}
