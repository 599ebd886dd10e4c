package pgtype

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/jackc/pgio"
)

type Float4 struct {
	Float  float32
	Status Status
}

func (dst *Float4) DecodeBinary(src []byte) error {
	if src == nil {
		*dst = Float4{Status: Null}
		return nil
	}

	if len(src) != 4 {
		return &decodeError{typeName: "float4", details: "invalid length"}
	}

	n := binary.BigEndian.Uint32(src)
	*dst = Float4{Float: math.Float32frombits(n), Status: Present}
	return nil
}

func (dst *Float4) DecodeText(src []byte) error {
	if src == nil {
		*dst = Float4{Status: Null}
		return nil
	}

	n, err := strconv.ParseFloat(string(src), 32)
	if err != nil {
		return &decodeError{typeName: "float4", details: err.Error()}
	}

	*dst = Float4{Float: float32(n), Status: Present}
	return nil
}

func (src Float4) EncodeBinary(buf []byte) ([]byte, error) {
	if src.Status == Null {
		return nil, nil
	}
	return pgio.AppendUint32(buf, math.Float32bits(src.Float)), nil
}

type Float8 struct {
	Float  float64
	Status Status
}

func (dst *Float8) DecodeBinary(src []byte) error {
	if src == nil {
		*dst = Float8{Status: Null}
		return nil
	}

	if len(src) != 8 {
		return &decodeError{typeName: "float8", details: "invalid length"}
	}

	n := binary.BigEndian.Uint64(src)
	*dst = Float8{Float: math.Float64frombits(n), Status: Present}
	return nil
}

func (dst *Float8) DecodeText(src []byte) error {
	if src == nil {
		*dst = Float8{Status: Null}
		return nil
	}

	n, err := strconv.ParseFloat(string(src), 64)
	if err != nil {
		return &decodeError{typeName: "float8", details: err.Error()}
	}

	*dst = Float8{Float: n, Status: Present}
	return nil
}

func (src Float8) EncodeBinary(buf []byte) ([]byte, error) {
	if src.Status == Null {
		return nil, nil
	}
	return pgio.AppendUint64(buf, math.Float64bits(src.Float)), nil
}
