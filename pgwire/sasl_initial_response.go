package pgwire

import (
	"encoding/binary"

	"github.com/jackc/pgio"
)

// SASLInitialResponse selects a SASL mechanism and optionally carries the
// client-first message.
type SASLInitialResponse struct {
	AuthMechanism string
	Data          []byte
}

func (*SASLInitialResponse) Frontend() {}

func (dst *SASLInitialResponse) Decode(src []byte) error {
	*dst = SASLInitialResponse{}

	idx := indexOfNull(src)
	if idx < 0 {
		return &invalidMessageFormatErr{messageType: "SASLInitialResponse", details: "missing mechanism terminator"}
	}
	dst.AuthMechanism = string(src[:idx])
	rp := idx + 1

	if len(src[rp:]) < 4 {
		return &invalidMessageFormatErr{messageType: "SASLInitialResponse", details: "missing data length"}
	}
	dataLen := int(int32(binary.BigEndian.Uint32(src[rp:])))
	rp += 4

	if dataLen == -1 {
		return nil
	}
	if dataLen < 0 || len(src[rp:]) != dataLen {
		return &invalidMessageFormatErr{messageType: "SASLInitialResponse", details: "data overruns message"}
	}
	dst.Data = src[rp : rp+dataLen]

	return nil
}

func (src *SASLInitialResponse) Encode(dst []byte) []byte {
	dst = append(dst, 'p')
	sp := len(dst)
	dst = pgio.AppendInt32(dst, -1)

	dst = append(dst, src.AuthMechanism...)
	dst = append(dst, 0)

	if src.Data == nil {
		dst = pgio.AppendInt32(dst, -1)
	} else {
		dst = pgio.AppendInt32(dst, int32(len(src.Data)))
		dst = append(dst, src.Data...)
	}

	pgio.SetInt32(dst[sp:], int32(len(dst[sp:])))
	return dst
}
