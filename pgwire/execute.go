package pgwire

import (
	"encoding/binary"

	"github.com/jackc/pgio"
)

// Execute runs a bound portal. MaxRows of zero fetches all rows.
type Execute struct {
	Portal  string
	MaxRows uint32
}

func (*Execute) Frontend() {}

func (dst *Execute) Decode(src []byte) error {
	idx := indexOfNull(src)
	if idx < 0 {
		return &invalidMessageFormatErr{messageType: "Execute", details: "missing portal terminator"}
	}
	dst.Portal = string(src[:idx])
	rp := idx + 1

	if len(src[rp:]) != 4 {
		return &invalidMessageFormatErr{messageType: "Execute", details: "missing max rows"}
	}
	dst.MaxRows = binary.BigEndian.Uint32(src[rp:])

	return nil
}

func (src *Execute) Encode(dst []byte) []byte {
	dst = append(dst, 'E')
	sp := len(dst)
	dst = pgio.AppendInt32(dst, -1)

	dst = append(dst, src.Portal...)
	dst = append(dst, 0)
	dst = pgio.AppendUint32(dst, src.MaxRows)

	pgio.SetInt32(dst[sp:], int32(len(dst[sp:])))
	return dst
}
