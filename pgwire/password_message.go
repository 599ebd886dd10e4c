package pgwire

import (
	"github.com/jackc/pgio"
)

// PasswordMessage carries a cleartext or MD5 digested password.
type PasswordMessage struct {
	Password string
}

func (*PasswordMessage) Frontend() {}

func (dst *PasswordMessage) Decode(src []byte) error {
	idx := indexOfNull(src)
	if idx < 0 {
		return &invalidMessageFormatErr{messageType: "PasswordMessage", details: "missing terminator"}
	}
	dst.Password = string(src[:idx])
	return nil
}

func (src *PasswordMessage) Encode(dst []byte) []byte {
	dst = append(dst, 'p')
	dst = pgio.AppendInt32(dst, int32(4+len(src.Password)+1))

	dst = append(dst, src.Password...)
	dst = append(dst, 0)

	return dst
}
