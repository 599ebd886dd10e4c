package pgwire

import (
	"encoding/binary"

	"github.com/jackc/pgio"
)

// CancelRequest asks the server to cancel the in-progress query of another
// connection, identified by its BackendKeyData. It is sent on a fresh
// connection in place of a StartupMessage.
type CancelRequest struct {
	ProcessID uint32
	SecretKey uint32
}

func (*CancelRequest) Frontend() {}

func (dst *CancelRequest) Decode(src []byte) error {
	if len(src) != 12 {
		return &invalidMessageLenErr{messageType: "CancelRequest", expectedLen: 12, actualLen: len(src)}
	}
	if binary.BigEndian.Uint32(src) != cancelRequestNumber {
		return &invalidMessageFormatErr{messageType: "CancelRequest", details: "bad request code"}
	}

	dst.ProcessID = binary.BigEndian.Uint32(src[4:])
	dst.SecretKey = binary.BigEndian.Uint32(src[8:])
	return nil
}

func (src *CancelRequest) Encode(dst []byte) []byte {
	dst = pgio.AppendInt32(dst, 16)
	dst = pgio.AppendUint32(dst, cancelRequestNumber)
	dst = pgio.AppendUint32(dst, src.ProcessID)
	dst = pgio.AppendUint32(dst, src.SecretKey)
	return dst
}
