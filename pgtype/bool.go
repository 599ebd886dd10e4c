package pgtype

type Bool struct {
	Bool   bool
	Status Status
}

func (dst *Bool) DecodeBinary(src []byte) error {
	if src == nil {
		*dst = Bool{Status: Null}
		return nil
	}

	if len(src) != 1 {
		return &decodeError{typeName: "bool", details: "invalid length"}
	}

	*dst = Bool{Bool: src[0] == 1, Status: Present}
	return nil
}

func (dst *Bool) DecodeText(src []byte) error {
	if src == nil {
		*dst = Bool{Status: Null}
		return nil
	}

	if len(src) != 1 {
		return &decodeError{typeName: "bool", details: "invalid length"}
	}

	switch src[0] {
	case 't':
		*dst = Bool{Bool: true, Status: Present}
	case 'f':
		*dst = Bool{Bool: false, Status: Present}
	default:
		return &decodeError{typeName: "bool", details: "invalid text representation"}
	}
	return nil
}

func (src Bool) EncodeBinary(buf []byte) ([]byte, error) {
	if src.Status == Null {
		return nil, nil
	}

	if src.Bool {
		return append(buf, 1), nil
	}
	return append(buf, 0), nil
}
