package pgwire

import (
	"encoding/binary"

	"github.com/jackc/pgio"
)

// Parse creates a prepared statement from a query string. An empty Name is
// the unnamed statement.
type Parse struct {
	Name          string
	Query         string
	ParameterOIDs []uint32
}

func (*Parse) Frontend() {}

func (dst *Parse) Decode(src []byte) error {
	*dst = Parse{}

	idx := indexOfNull(src)
	if idx < 0 {
		return &invalidMessageFormatErr{messageType: "Parse", details: "missing name terminator"}
	}
	dst.Name = string(src[:idx])
	rp := idx + 1

	idx = indexOfNull(src[rp:])
	if idx < 0 {
		return &invalidMessageFormatErr{messageType: "Parse", details: "missing query terminator"}
	}
	dst.Query = string(src[rp : rp+idx])
	rp += idx + 1

	if len(src[rp:]) < 2 {
		return &invalidMessageFormatErr{messageType: "Parse", details: "missing parameter count"}
	}
	parameterOIDCount := int(binary.BigEndian.Uint16(src[rp:]))
	rp += 2

	if len(src[rp:]) != parameterOIDCount*4 {
		return &invalidMessageFormatErr{messageType: "Parse", details: "parameter OIDs overrun message"}
	}
	for i := 0; i < parameterOIDCount; i++ {
		dst.ParameterOIDs = append(dst.ParameterOIDs, binary.BigEndian.Uint32(src[rp:]))
		rp += 4
	}

	return nil
}

func (src *Parse) Encode(dst []byte) []byte {
	dst = append(dst, 'P')
	sp := len(dst)
	dst = pgio.AppendInt32(dst, -1)

	dst = append(dst, src.Name...)
	dst = append(dst, 0)
	dst = append(dst, src.Query...)
	dst = append(dst, 0)

	dst = pgio.AppendUint16(dst, uint16(len(src.ParameterOIDs)))
	for _, oid := range src.ParameterOIDs {
		dst = pgio.AppendUint32(dst, oid)
	}

	pgio.SetInt32(dst[sp:], int32(len(dst[sp:])))
	return dst
}
