package pgwire

import (
	"encoding/binary"

	"github.com/jackc/pgio"
)

// NotificationResponse delivers a NOTIFY payload to a listening connection.
type NotificationResponse struct {
	PID     uint32
	Channel string
	Payload string
}

func (*NotificationResponse) Backend() {}

func (dst *NotificationResponse) Decode(src []byte) error {
	if len(src) < 4 {
		return &invalidMessageFormatErr{messageType: "NotificationResponse", details: "too short"}
	}
	pid := binary.BigEndian.Uint32(src)
	rp := 4

	idx := indexOfNull(src[rp:])
	if idx < 0 {
		return &invalidMessageFormatErr{messageType: "NotificationResponse", details: "missing channel terminator"}
	}
	channel := string(src[rp : rp+idx])
	rp += idx + 1

	idx = indexOfNull(src[rp:])
	if idx < 0 {
		return &invalidMessageFormatErr{messageType: "NotificationResponse", details: "missing payload terminator"}
	}
	payload := string(src[rp : rp+idx])

	*dst = NotificationResponse{PID: pid, Channel: channel, Payload: payload}
	return nil
}

func (src *NotificationResponse) Encode(dst []byte) []byte {
	dst = append(dst, 'A')
	sp := len(dst)
	dst = pgio.AppendInt32(dst, -1)

	dst = pgio.AppendUint32(dst, src.PID)
	dst = append(dst, src.Channel...)
	dst = append(dst, 0)
	dst = append(dst, src.Payload...)
	dst = append(dst, 0)

	pgio.SetInt32(dst[sp:], int32(len(dst[sp:])))
	return dst
}
