package pgwire

import (
	"encoding/binary"

	"github.com/jackc/pgio"
)

// SSLRequest asks the server whether it is willing to speak TLS. The server
// answers with a single byte, 'S' or 'N', outside the normal framing.
type SSLRequest struct{}

func (*SSLRequest) Frontend() {}

func (dst *SSLRequest) Decode(src []byte) error {
	if len(src) != 4 {
		return &invalidMessageLenErr{messageType: "SSLRequest", expectedLen: 4, actualLen: len(src)}
	}
	if binary.BigEndian.Uint32(src) != sslRequestNumber {
		return &invalidMessageFormatErr{messageType: "SSLRequest", details: "bad request code"}
	}
	return nil
}

func (src *SSLRequest) Encode(dst []byte) []byte {
	dst = pgio.AppendInt32(dst, 8)
	dst = pgio.AppendUint32(dst, sslRequestNumber)
	return dst
}
