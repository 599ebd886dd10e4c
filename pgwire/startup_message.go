package pgwire

import (
	"encoding/binary"

	"github.com/jackc/pgio"
)

// StartupMessage opens a session. It has no identifier byte; the length
// field leads.
type StartupMessage struct {
	ProtocolVersion uint32
	Parameters      map[string]string
}

func (*StartupMessage) Frontend() {}

func (dst *StartupMessage) Decode(src []byte) error {
	if len(src) < 4 {
		return &invalidMessageFormatErr{messageType: "StartupMessage", details: "too short"}
	}

	dst.ProtocolVersion = binary.BigEndian.Uint32(src)
	rp := 4

	if dst.ProtocolVersion != ProtocolVersionNumber {
		return &invalidMessageFormatErr{messageType: "StartupMessage", details: "bad protocol version"}
	}

	dst.Parameters = make(map[string]string)
	for len(src[rp:]) > 1 {
		idx := indexOfNull(src[rp:])
		if idx < 0 {
			return &invalidMessageFormatErr{messageType: "StartupMessage", details: "missing key terminator"}
		}
		key := string(src[rp : rp+idx])
		rp += idx + 1

		idx = indexOfNull(src[rp:])
		if idx < 0 {
			return &invalidMessageFormatErr{messageType: "StartupMessage", details: "missing value terminator"}
		}
		value := string(src[rp : rp+idx])
		rp += idx + 1

		dst.Parameters[key] = value
	}

	if len(src[rp:]) != 1 || src[rp] != 0 {
		return &invalidMessageFormatErr{messageType: "StartupMessage", details: "missing list terminator"}
	}

	return nil
}

func (src *StartupMessage) Encode(dst []byte) []byte {
	sp := len(dst)
	dst = pgio.AppendInt32(dst, -1)

	dst = pgio.AppendUint32(dst, src.ProtocolVersion)
	for k, v := range src.Parameters {
		dst = append(dst, k...)
		dst = append(dst, 0)
		dst = append(dst, v...)
		dst = append(dst, 0)
	}
	dst = append(dst, 0)

	pgio.SetInt32(dst[sp:], int32(len(dst[sp:])))
	return dst
}
