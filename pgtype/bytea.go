package pgtype

import (
	"encoding/hex"
)

type Bytea struct {
	Bytes  []byte
	Status Status
}

func (dst *Bytea) DecodeBinary(src []byte) error {
	if src == nil {
		*dst = Bytea{Status: Null}
		return nil
	}

	buf := make([]byte, len(src))
	copy(buf, src)
	*dst = Bytea{Bytes: buf, Status: Present}
	return nil
}

// DecodeText only handles the hex output format. The escape format predates
// PostgreSQL 9.0 and is not produced by supported servers.
func (dst *Bytea) DecodeText(src []byte) error {
	if src == nil {
		*dst = Bytea{Status: Null}
		return nil
	}

	if len(src) < 2 || src[0] != '\\' || src[1] != 'x' {
		return &decodeError{typeName: "bytea", details: "missing hex prefix"}
	}

	buf := make([]byte, hex.DecodedLen(len(src)-2))
	if _, err := hex.Decode(buf, src[2:]); err != nil {
		return &decodeError{typeName: "bytea", details: err.Error()}
	}

	*dst = Bytea{Bytes: buf, Status: Present}
	return nil
}

func (src Bytea) EncodeBinary(buf []byte) ([]byte, error) {
	if src.Status == Null {
		return nil, nil
	}
	return append(buf, src.Bytes...), nil
}
