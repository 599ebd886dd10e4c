package pgwire

import (
	"encoding/binary"

	"github.com/jackc/pgio"
)

// FieldDescription describes one column of a result set.
type FieldDescription struct {
	Name                 string
	TableOID             uint32
	TableAttributeNumber uint16
	DataTypeOID          uint32
	DataTypeSize         int16
	TypeModifier         int32
	Format               int16
}

// RowDescription describes the columns of the rows that will follow.
type RowDescription struct {
	Fields []FieldDescription
}

func (*RowDescription) Backend() {}

func (dst *RowDescription) Decode(src []byte) error {
	if len(src) < 2 {
		return &invalidMessageFormatErr{messageType: "RowDescription", details: "too short"}
	}
	fieldCount := int(binary.BigEndian.Uint16(src))
	rp := 2

	if cap(dst.Fields) >= fieldCount {
		dst.Fields = dst.Fields[:fieldCount]
	} else {
		dst.Fields = make([]FieldDescription, fieldCount)
	}

	for i := 0; i < fieldCount; i++ {
		var fd FieldDescription

		idx := indexOfNull(src[rp:])
		if idx < 0 {
			return &invalidMessageFormatErr{messageType: "RowDescription", details: "missing name terminator"}
		}
		fd.Name = string(src[rp : rp+idx])
		rp += idx + 1

		if len(src[rp:]) < 18 {
			return &invalidMessageFormatErr{messageType: "RowDescription", details: "truncated field"}
		}

		fd.TableOID = binary.BigEndian.Uint32(src[rp:])
		rp += 4
		fd.TableAttributeNumber = binary.BigEndian.Uint16(src[rp:])
		rp += 2
		fd.DataTypeOID = binary.BigEndian.Uint32(src[rp:])
		rp += 4
		fd.DataTypeSize = int16(binary.BigEndian.Uint16(src[rp:]))
		rp += 2
		fd.TypeModifier = int32(binary.BigEndian.Uint32(src[rp:]))
		rp += 4
		fd.Format = int16(binary.BigEndian.Uint16(src[rp:]))
		rp += 2

		dst.Fields[i] = fd
	}

	return nil
}

func (src *RowDescription) Encode(dst []byte) []byte {
	dst = append(dst, 'T')
	sp := len(dst)
	dst = pgio.AppendInt32(dst, -1)

	dst = pgio.AppendUint16(dst, uint16(len(src.Fields)))
	for _, fd := range src.Fields {
		dst = append(dst, fd.Name...)
		dst = append(dst, 0)

		dst = pgio.AppendUint32(dst, fd.TableOID)
		dst = pgio.AppendUint16(dst, fd.TableAttributeNumber)
		dst = pgio.AppendUint32(dst, fd.DataTypeOID)
		dst = pgio.AppendInt16(dst, fd.DataTypeSize)
		dst = pgio.AppendInt32(dst, fd.TypeModifier)
		dst = pgio.AppendInt16(dst, fd.Format)
	}

	pgio.SetInt32(dst[sp:], int32(len(dst[sp:])))
	return dst
}
