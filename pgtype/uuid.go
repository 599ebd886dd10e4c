package pgtype

import (
	"github.com/gofrs/uuid"
)

type UUID struct {
	UUID   uuid.UUID
	Status Status
}

func (dst *UUID) DecodeBinary(src []byte) error {
	if src == nil {
		*dst = UUID{Status: Null}
		return nil
	}

	if len(src) != 16 {
		return &decodeError{typeName: "uuid", details: "invalid length"}
	}

	u, err := uuid.FromBytes(src)
	if err != nil {
		return &decodeError{typeName: "uuid", details: err.Error()}
	}

	*dst = UUID{UUID: u, Status: Present}
	return nil
}

func (dst *UUID) DecodeText(src []byte) error {
	if src == nil {
		*dst = UUID{Status: Null}
		return nil
	}

	u, err := uuid.FromString(string(src))
	if err != nil {
		return &decodeError{typeName: "uuid", details: err.Error()}
	}

	*dst = UUID{UUID: u, Status: Present}
	return nil
}

func (src UUID) EncodeBinary(buf []byte) ([]byte, error) {
	if src.Status == Null {
		return nil, nil
	}
	return append(buf, src.UUID.Bytes()...), nil
}
