package pgtype

// Text also serves varchar, name and bpchar; the wire representation is the
// same UTF-8 bytes with the slice length authoritative.
type Text struct {
	String string
	Status Status
}

func (dst *Text) DecodeBinary(src []byte) error {
	return dst.DecodeText(src)
}

func (dst *Text) DecodeText(src []byte) error {
	if src == nil {
		*dst = Text{Status: Null}
		return nil
	}

	*dst = Text{String: string(src), Status: Present}
	return nil
}

func (src Text) EncodeBinary(buf []byte) ([]byte, error) {
	if src.Status == Null {
		return nil, nil
	}
	return append(buf, src.String...), nil
}
