package pgtype

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

// ParamEncoder is implemented by values that know their own wire encoding.
// All value structs in this package implement it via EncodeParam dispatch.
type ParamEncoder interface {
	EncodeBinary(buf []byte) ([]byte, error)
}

// EncodeParam converts a Go value into a bind parameter: its type oid, its
// format code, and its encoded bytes (nil bytes means SQL NULL). The oid is
// what Parse will declare for the parameter; UnknownOID lets the server
// infer.
func EncodeParam(arg interface{}) (oid uint32, format int16, data []byte, err error) {
	switch arg := arg.(type) {
	case nil:
		return UnknownOID, BinaryFormatCode, nil, nil
	case bool:
		data, err = Bool{Bool: arg, Status: Present}.EncodeBinary(nil)
		return BoolOID, BinaryFormatCode, data, err
	case int16:
		data, err = Int2{Int: arg, Status: Present}.EncodeBinary(nil)
		return Int2OID, BinaryFormatCode, data, err
	case int32:
		data, err = Int4{Int: arg, Status: Present}.EncodeBinary(nil)
		return Int4OID, BinaryFormatCode, data, err
	case int:
		data, err = Int8{Int: int64(arg), Status: Present}.EncodeBinary(nil)
		return Int8OID, BinaryFormatCode, data, err
	case int64:
		data, err = Int8{Int: arg, Status: Present}.EncodeBinary(nil)
		return Int8OID, BinaryFormatCode, data, err
	case float32:
		data, err = Float4{Float: arg, Status: Present}.EncodeBinary(nil)
		return Float4OID, BinaryFormatCode, data, err
	case float64:
		data, err = Float8{Float: arg, Status: Present}.EncodeBinary(nil)
		return Float8OID, BinaryFormatCode, data, err
	case string:
		data, err = Text{String: arg, Status: Present}.EncodeBinary(nil)
		return TextOID, BinaryFormatCode, data, err
	case []byte:
		if arg == nil {
			return ByteaOID, BinaryFormatCode, nil, nil
		}
		data, err = Bytea{Bytes: arg, Status: Present}.EncodeBinary(nil)
		return ByteaOID, BinaryFormatCode, data, err
	case time.Time:
		data, err = Timestamptz{Time: arg, Status: Present}.EncodeBinary(nil)
		return TimestamptzOID, BinaryFormatCode, data, err
	case decimal.Decimal:
		data, err = Numeric{Decimal: arg, Status: Present}.EncodeBinary(nil)
		return NumericOID, BinaryFormatCode, data, err
	case uuid.UUID:
		data, err = UUID{UUID: arg, Status: Present}.EncodeBinary(nil)
		return UUIDOID, BinaryFormatCode, data, err
	case json.RawMessage:
		data, err = JSONB{Bytes: arg, Status: Present}.EncodeBinary(nil)
		return JSONBOID, BinaryFormatCode, data, err
	case []int32:
		a := Int4Array{Status: Present}
		for _, v := range arg {
			a.Elements = append(a.Elements, Int4{Int: v, Status: Present})
		}
		data, err = a.EncodeBinary(nil)
		return Int4ArrayOID, BinaryFormatCode, data, err
	case []int64:
		a := Int8Array{Status: Present}
		for _, v := range arg {
			a.Elements = append(a.Elements, Int8{Int: v, Status: Present})
		}
		data, err = a.EncodeBinary(nil)
		return Int8ArrayOID, BinaryFormatCode, data, err
	case []string:
		a := TextArray{Status: Present}
		for _, v := range arg {
			a.Elements = append(a.Elements, Text{String: v, Status: Present})
		}
		data, err = a.EncodeBinary(nil)
		return TextArrayOID, BinaryFormatCode, data, err
	case []float64:
		a := Float8Array{Status: Present}
		for _, v := range arg {
			a.Elements = append(a.Elements, Float8{Float: v, Status: Present})
		}
		data, err = a.EncodeBinary(nil)
		return Float8ArrayOID, BinaryFormatCode, data, err
	default:
		return 0, 0, nil, fmt.Errorf("cannot encode %T as a bind parameter", arg)
	}
}

// ScanValue decodes a single column value into dst. src is the raw cell; nil
// means SQL NULL. NULL into a scalar destination is an error and leaves it
// untouched; byte-slice and array destinations are set to nil, and value
// structs record it in their Status. Pointer-to-pointer destinations are not
// supported.
func ScanValue(oid uint32, format int16, src []byte, dst interface{}) error {
	binary := format == BinaryFormatCode

	switch dst := dst.(type) {
	case *bool:
		var v Bool
		if err := decodeAs(&v, binary, src); err != nil {
			return err
		}
		if v.Status != Present {
			return errNullScan(dst)
		}
		*dst = v.Bool
	case *int16:
		var v Int2
		if err := decodeAs(&v, binary, src); err != nil {
			return err
		}
		if v.Status != Present {
			return errNullScan(dst)
		}
		*dst = v.Int
	case *int32:
		var v Int4
		if err := decodeAs(&v, binary, src); err != nil {
			return err
		}
		if v.Status != Present {
			return errNullScan(dst)
		}
		*dst = v.Int
	case *int64:
		n, err := scanAnyInt(oid, binary, src)
		if err != nil {
			return err
		}
		*dst = n
	case *int:
		n, err := scanAnyInt(oid, binary, src)
		if err != nil {
			return err
		}
		*dst = int(n)
	case *float32:
		var v Float4
		if err := decodeAs(&v, binary, src); err != nil {
			return err
		}
		if v.Status != Present {
			return errNullScan(dst)
		}
		*dst = v.Float
	case *float64:
		var v Float8
		if err := decodeAs(&v, binary, src); err != nil {
			return err
		}
		if v.Status != Present {
			return errNullScan(dst)
		}
		*dst = v.Float
	case *string:
		var v Text
		if err := decodeAs(&v, binary, src); err != nil {
			return err
		}
		if v.Status != Present {
			return errNullScan(dst)
		}
		*dst = v.String
	case *[]byte:
		switch oid {
		case JSONOID:
			var v JSON
			if err := decodeAs(&v, binary, src); err != nil {
				return err
			}
			*dst = v.Bytes
		case JSONBOID:
			var v JSONB
			if err := decodeAs(&v, binary, src); err != nil {
				return err
			}
			*dst = v.Bytes
		default:
			var v Bytea
			if err := decodeAs(&v, binary, src); err != nil {
				return err
			}
			*dst = v.Bytes
		}
	case *time.Time:
		switch oid {
		case DateOID:
			var v Date
			if err := decodeAs(&v, binary, src); err != nil {
				return err
			}
			if v.Status != Present || v.InfinityModifier != None {
				return errNullScan(dst)
			}
			*dst = v.Time
		case TimestampOID:
			var v Timestamp
			if err := decodeAs(&v, binary, src); err != nil {
				return err
			}
			if v.Status != Present || v.InfinityModifier != None {
				return errNullScan(dst)
			}
			*dst = v.Time
		default:
			var v Timestamptz
			if err := decodeAs(&v, binary, src); err != nil {
				return err
			}
			if v.Status != Present || v.InfinityModifier != None {
				return errNullScan(dst)
			}
			*dst = v.Time
		}
	case *decimal.Decimal:
		var v Numeric
		if err := decodeAs(&v, binary, src); err != nil {
			return err
		}
		if v.Status != Present || v.NaN {
			return errNullScan(dst)
		}
		*dst = v.Decimal
	case *uuid.UUID:
		var v UUID
		if err := decodeAs(&v, binary, src); err != nil {
			return err
		}
		if v.Status != Present {
			return errNullScan(dst)
		}
		*dst = v.UUID
	case *[]int32:
		var v Int4Array
		if err := decodeAs(&v, binary, src); err != nil {
			return err
		}
		*dst = nil
		for _, elem := range v.Elements {
			if elem.Status != Present {
				return errNullScan(dst)
			}
			*dst = append(*dst, elem.Int)
		}
	case *[]int64:
		var v Int8Array
		if err := decodeAs(&v, binary, src); err != nil {
			return err
		}
		*dst = nil
		for _, elem := range v.Elements {
			if elem.Status != Present {
				return errNullScan(dst)
			}
			*dst = append(*dst, elem.Int)
		}
	case *[]string:
		var v TextArray
		if err := decodeAs(&v, binary, src); err != nil {
			return err
		}
		*dst = nil
		for _, elem := range v.Elements {
			if elem.Status != Present {
				return errNullScan(dst)
			}
			*dst = append(*dst, elem.String)
		}
	case *[]float64:
		var v Float8Array
		if err := decodeAs(&v, binary, src); err != nil {
			return err
		}
		*dst = nil
		for _, elem := range v.Elements {
			if elem.Status != Present {
				return errNullScan(dst)
			}
			*dst = append(*dst, elem.Float)
		}
	case binaryTextDecoder:
		if binary {
			return dst.DecodeBinary(src)
		}
		return dst.DecodeText(src)
	default:
		return fmt.Errorf("cannot scan into %T", dst)
	}

	return nil
}

type binaryTextDecoder interface {
	DecodeBinary(src []byte) error
	DecodeText(src []byte) error
}

func decodeAs(v binaryTextDecoder, binary bool, src []byte) error {
	if binary {
		return v.DecodeBinary(src)
	}
	return v.DecodeText(src)
}

// scanAnyInt widens int2 and int4 sources into an int64 destination.
func scanAnyInt(oid uint32, binary bool, src []byte) (int64, error) {
	switch oid {
	case Int2OID:
		var v Int2
		if err := decodeAs(&v, binary, src); err != nil {
			return 0, err
		}
		if v.Status != Present {
			return 0, errNullScan(new(int64))
		}
		return int64(v.Int), nil
	case Int4OID:
		var v Int4
		if err := decodeAs(&v, binary, src); err != nil {
			return 0, err
		}
		if v.Status != Present {
			return 0, errNullScan(new(int64))
		}
		return int64(v.Int), nil
	default:
		var v Int8
		if err := decodeAs(&v, binary, src); err != nil {
			return 0, err
		}
		if v.Status != Present {
			return 0, errNullScan(new(int64))
		}
		return v.Int, nil
	}
}

func errNullScan(dst interface{}) error {
	return fmt.Errorf("cannot scan NULL into %T", dst)
}
