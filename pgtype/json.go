package pgtype

// JSON carries the raw UTF-8 payload of a json column. (Un)marshalling is
// left to the caller.
type JSON struct {
	Bytes  []byte
	Status Status
}

func (dst *JSON) DecodeBinary(src []byte) error {
	return dst.DecodeText(src)
}

func (dst *JSON) DecodeText(src []byte) error {
	if src == nil {
		*dst = JSON{Status: Null}
		return nil
	}

	buf := make([]byte, len(src))
	copy(buf, src)
	*dst = JSON{Bytes: buf, Status: Present}
	return nil
}

func (src JSON) EncodeBinary(buf []byte) ([]byte, error) {
	if src.Status == Null {
		return nil, nil
	}
	return append(buf, src.Bytes...), nil
}

// JSONB is json with a leading version byte on the wire.
type JSONB struct {
	Bytes  []byte
	Status Status
}

const jsonbVersion = 1

func (dst *JSONB) DecodeBinary(src []byte) error {
	if src == nil {
		*dst = JSONB{Status: Null}
		return nil
	}

	if len(src) == 0 || src[0] != jsonbVersion {
		return &decodeError{typeName: "jsonb", details: "unknown version"}
	}

	buf := make([]byte, len(src)-1)
	copy(buf, src[1:])
	*dst = JSONB{Bytes: buf, Status: Present}
	return nil
}

func (dst *JSONB) DecodeText(src []byte) error {
	if src == nil {
		*dst = JSONB{Status: Null}
		return nil
	}

	buf := make([]byte, len(src))
	copy(buf, src)
	*dst = JSONB{Bytes: buf, Status: Present}
	return nil
}

func (src JSONB) EncodeBinary(buf []byte) ([]byte, error) {
	if src.Status == Null {
		return nil, nil
	}
	buf = append(buf, jsonbVersion)
	return append(buf, src.Bytes...), nil
}
