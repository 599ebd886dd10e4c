package pgtype

import (
	"encoding/binary"
	"strings"
	"unicode"

	"github.com/jackc/pgio"
)

// ArrayDimension is one dimension of the wire-level array header.
type ArrayDimension struct {
	Length     int32
	LowerBound int32
}

// ArrayHeader is the fixed prefix of the binary array format. Only
// one-dimensional arrays are supported; decoding rejects anything deeper.
type ArrayHeader struct {
	ContainsNull bool
	ElementOID   uint32
	Dimensions   []ArrayDimension
}

// DecodeBinary reads the header from src and returns the number of bytes
// consumed.
func (dst *ArrayHeader) DecodeBinary(src []byte) (int, error) {
	if len(src) < 12 {
		return 0, &decodeError{typeName: "array", details: "header too short"}
	}

	numDims := int(int32(binary.BigEndian.Uint32(src)))
	if numDims < 0 {
		return 0, &decodeError{typeName: "array", details: "negative dimension count"}
	}
	if numDims > 1 {
		return 0, &decodeError{typeName: "array", details: "multidimensional arrays are not supported"}
	}
	rp := 4

	dst.ContainsNull = binary.BigEndian.Uint32(src[rp:]) == 1
	rp += 4

	dst.ElementOID = binary.BigEndian.Uint32(src[rp:])
	rp += 4

	if len(src[rp:]) < numDims*8 {
		return 0, &decodeError{typeName: "array", details: "header overruns message"}
	}

	dst.Dimensions = make([]ArrayDimension, numDims)
	for i := range dst.Dimensions {
		dst.Dimensions[i].Length = int32(binary.BigEndian.Uint32(src[rp:]))
		rp += 4
		dst.Dimensions[i].LowerBound = int32(binary.BigEndian.Uint32(src[rp:]))
		rp += 4
	}

	return rp, nil
}

func (src ArrayHeader) EncodeBinary(buf []byte) []byte {
	buf = pgio.AppendInt32(buf, int32(len(src.Dimensions)))

	var containsNull int32
	if src.ContainsNull {
		containsNull = 1
	}
	buf = pgio.AppendInt32(buf, containsNull)

	buf = pgio.AppendUint32(buf, src.ElementOID)

	for _, dim := range src.Dimensions {
		buf = pgio.AppendInt32(buf, dim.Length)
		buf = pgio.AppendInt32(buf, dim.LowerBound)
	}

	return buf
}

// decodeArrayElements walks the element list after the header, invoking elem
// for each value. A nil slice is passed for NULL elements.
func decodeArrayElements(src []byte, count int, elem func(src []byte) error) error {
	rp := 0
	for i := 0; i < count; i++ {
		if len(src[rp:]) < 4 {
			return &decodeError{typeName: "array", details: "truncated element length"}
		}
		elemLen := int(int32(binary.BigEndian.Uint32(src[rp:])))
		rp += 4

		if elemLen == -1 {
			if err := elem(nil); err != nil {
				return err
			}
			continue
		}

		if elemLen < 0 || len(src[rp:]) < elemLen {
			return &decodeError{typeName: "array", details: "element overruns message"}
		}
		if err := elem(src[rp : rp+elemLen]); err != nil {
			return err
		}
		rp += elemLen
	}

	if rp != len(src) {
		return &decodeError{typeName: "array", details: "trailing bytes after elements"}
	}
	return nil
}

// untypedTextArray is the result of parsing the canonical text form of a
// one-dimensional array, e.g. `{1,2,NULL,"a b"}`.
type untypedTextArray struct {
	Elements []string
	Nulls    []bool
}

func parseUntypedTextArray(src string) (*untypedTextArray, error) {
	r := strings.NewReader(src)

	readRune := func() (rune, bool) {
		c, _, err := r.ReadRune()
		if err != nil {
			return 0, false
		}
		return c, true
	}

	c, ok := readRune()
	if !ok || c != '{' {
		return nil, &decodeError{typeName: "array", details: "missing opening brace"}
	}

	uta := &untypedTextArray{}

	c, ok = readRune()
	if !ok {
		return nil, &decodeError{typeName: "array", details: "unexpected end of input"}
	}
	if c == '}' {
		if r.Len() != 0 {
			return nil, &decodeError{typeName: "array", details: "trailing bytes after closing brace"}
		}
		return uta, nil
	}
	r.UnreadRune()

	for {
		var sb strings.Builder
		quoted := false

		c, ok = readRune()
		if !ok {
			return nil, &decodeError{typeName: "array", details: "unexpected end of input"}
		}

		if c == '{' {
			return nil, &decodeError{typeName: "array", details: "multidimensional arrays are not supported"}
		}

		if c == '"' {
			quoted = true
			for {
				c, ok = readRune()
				if !ok {
					return nil, &decodeError{typeName: "array", details: "unterminated quoted element"}
				}
				if c == '\\' {
					c, ok = readRune()
					if !ok {
						return nil, &decodeError{typeName: "array", details: "unterminated escape"}
					}
					sb.WriteRune(c)
					continue
				}
				if c == '"' {
					break
				}
				sb.WriteRune(c)
			}
			c, ok = readRune()
			if !ok {
				return nil, &decodeError{typeName: "array", details: "unexpected end of input"}
			}
		} else {
			for c != ',' && c != '}' {
				if unicode.IsControl(c) {
					return nil, &decodeError{typeName: "array", details: "control character in element"}
				}
				sb.WriteRune(c)
				c, ok = readRune()
				if !ok {
					return nil, &decodeError{typeName: "array", details: "unexpected end of input"}
				}
			}
		}

		value := sb.String()
		null := !quoted && value == "NULL"
		uta.Elements = append(uta.Elements, value)
		uta.Nulls = append(uta.Nulls, null)

		if c == '}' {
			break
		}
		if c != ',' {
			return nil, &decodeError{typeName: "array", details: "malformed separator"}
		}
	}

	if r.Len() != 0 {
		return nil, &decodeError{typeName: "array", details: "trailing bytes after closing brace"}
	}

	return uta, nil
}
