package pgwire

import (
	"github.com/jackc/pgio"
)

// SASLResponse carries a client SASL message after the initial response.
type SASLResponse struct {
	Data []byte
}

func (*SASLResponse) Frontend() {}

func (dst *SASLResponse) Decode(src []byte) error {
	*dst = SASLResponse{Data: src}
	return nil
}

func (src *SASLResponse) Encode(dst []byte) []byte {
	dst = append(dst, 'p')
	dst = pgio.AppendInt32(dst, int32(4+len(src.Data)))
	dst = append(dst, src.Data...)
	return dst
}
