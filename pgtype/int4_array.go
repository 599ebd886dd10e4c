package pgtype

import (
	"strconv"

	"github.com/jackc/pgio"
)

type Int4Array struct {
	Elements []Int4
	Status   Status
}

func (dst *Int4Array) DecodeBinary(src []byte) error {
	if src == nil {
		*dst = Int4Array{Status: Null}
		return nil
	}

	var hdr ArrayHeader
	rp, err := hdr.DecodeBinary(src)
	if err != nil {
		return err
	}

	*dst = Int4Array{Status: Present}
	if len(hdr.Dimensions) == 0 {
		return nil
	}

	dst.Elements = make([]Int4, 0, hdr.Dimensions[0].Length)
	return decodeArrayElements(src[rp:], int(hdr.Dimensions[0].Length), func(elemSrc []byte) error {
		var elem Int4
		if err := elem.DecodeBinary(elemSrc); err != nil {
			return err
		}
		dst.Elements = append(dst.Elements, elem)
		return nil
	})
}

func (dst *Int4Array) DecodeText(src []byte) error {
	if src == nil {
		*dst = Int4Array{Status: Null}
		return nil
	}

	uta, err := parseUntypedTextArray(string(src))
	if err != nil {
		return err
	}

	*dst = Int4Array{Status: Present}
	for i, s := range uta.Elements {
		if uta.Nulls[i] {
			dst.Elements = append(dst.Elements, Int4{Status: Null})
			continue
		}
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return &decodeError{typeName: "int4[]", details: err.Error()}
		}
		dst.Elements = append(dst.Elements, Int4{Int: int32(n), Status: Present})
	}

	return nil
}

func (src Int4Array) EncodeBinary(buf []byte) ([]byte, error) {
	if src.Status == Null {
		return nil, nil
	}

	hdr := ArrayHeader{ElementOID: Int4OID}
	if len(src.Elements) > 0 {
		hdr.Dimensions = []ArrayDimension{{Length: int32(len(src.Elements)), LowerBound: 1}}
	}
	for _, elem := range src.Elements {
		if elem.Status == Null {
			hdr.ContainsNull = true
		}
	}
	buf = hdr.EncodeBinary(buf)

	for _, elem := range src.Elements {
		if elem.Status == Null {
			buf = pgio.AppendInt32(buf, -1)
			continue
		}
		buf = pgio.AppendInt32(buf, 4)
		var err error
		buf, err = elem.EncodeBinary(buf)
		if err != nil {
			return nil, err
		}
	}

	return buf, nil
}
