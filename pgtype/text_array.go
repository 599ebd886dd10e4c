package pgtype

import (
	"github.com/jackc/pgio"
)

type TextArray struct {
	Elements []Text
	Status   Status
}

func (dst *TextArray) DecodeBinary(src []byte) error {
	if src == nil {
		*dst = TextArray{Status: Null}
		return nil
	}

	var hdr ArrayHeader
	rp, err := hdr.DecodeBinary(src)
	if err != nil {
		return err
	}

	*dst = TextArray{Status: Present}
	if len(hdr.Dimensions) == 0 {
		return nil
	}

	dst.Elements = make([]Text, 0, hdr.Dimensions[0].Length)
	return decodeArrayElements(src[rp:], int(hdr.Dimensions[0].Length), func(elemSrc []byte) error {
		var elem Text
		if err := elem.DecodeBinary(elemSrc); err != nil {
			return err
		}
		dst.Elements = append(dst.Elements, elem)
		return nil
	})
}

func (dst *TextArray) DecodeText(src []byte) error {
	if src == nil {
		*dst = TextArray{Status: Null}
		return nil
	}

	uta, err := parseUntypedTextArray(string(src))
	if err != nil {
		return err
	}

	*dst = TextArray{Status: Present}
	for i, s := range uta.Elements {
		if uta.Nulls[i] {
			dst.Elements = append(dst.Elements, Text{Status: Null})
			continue
		}
		dst.Elements = append(dst.Elements, Text{String: s, Status: Present})
	}

	return nil
}

func (src TextArray) EncodeBinary(buf []byte) ([]byte, error) {
	if src.Status == Null {
		return nil, nil
	}

	hdr := ArrayHeader{ElementOID: TextOID}
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
		buf = pgio.AppendInt32(buf, int32(len(elem.String)))
		var err error
		buf, err = elem.EncodeBinary(buf)
		if err != nil {
			return nil, err
		}
	}

	return buf, nil
}
