package pgtype

import (
	"strconv"

	"github.com/jackc/pgio"
)

type Float8Array struct {
	Elements []Float8
	Status   Status
}

func (dst *Float8Array) DecodeBinary(src []byte) error {
	if src == nil {
		*dst = Float8Array{Status: Null}
		return nil
	}

	var hdr ArrayHeader
	rp, err := hdr.DecodeBinary(src)
	if err != nil {
		return err
	}

	*dst = Float8Array{Status: Present}
	if len(hdr.Dimensions) == 0 {
		return nil
	}

	dst.Elements = make([]Float8, 0, hdr.Dimensions[0].Length)
	return decodeArrayElements(src[rp:], int(hdr.Dimensions[0].Length), func(elemSrc []byte) error {
		var elem Float8
		if err := elem.DecodeBinary(elemSrc); err != nil {
			return err
		}
		dst.Elements = append(dst.Elements, elem)
		return nil
	})
}

func (dst *Float8Array) DecodeText(src []byte) error {
	if src == nil {
		*dst = Float8Array{Status: Null}
		return nil
	}

	uta, err := parseUntypedTextArray(string(src))
	if err != nil {
		return err
	}

	*dst = Float8Array{Status: Present}
	for i, s := range uta.Elements {
		if uta.Nulls[i] {
			dst.Elements = append(dst.Elements, Float8{Status: Null})
			continue
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return &decodeError{typeName: "float8[]", details: err.Error()}
		}
		dst.Elements = append(dst.Elements, Float8{Float: n, Status: Present})
	}

	return nil
}

func (src Float8Array) EncodeBinary(buf []byte) ([]byte, error) {
	if src.Status == Null {
		return nil, nil
	}

	hdr := ArrayHeader{ElementOID: Float8OID}
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
		buf = pgio.AppendInt32(buf, 8)
		var err error
		buf, err = elem.EncodeBinary(buf)
		if err != nil {
			return nil, err
		}
	}

	return buf, nil
}
