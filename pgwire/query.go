package pgwire

import (
	"github.com/jackc/pgio"
)

// Query runs a SQL string through the simple query protocol.
type Query struct {
	String string
}

func (*Query) Frontend() {}

func (dst *Query) Decode(src []byte) error {
	idx := indexOfNull(src)
	if idx != len(src)-1 {
		return &invalidMessageFormatErr{messageType: "Query", details: "missing terminator"}
	}
	dst.String = string(src[:idx])
	return nil
}

func (src *Query) Encode(dst []byte) []byte {
	dst = append(dst, 'Q')
	dst = pgio.AppendInt32(dst, int32(4+len(src.String)+1))

	dst = append(dst, src.String...)
	dst = append(dst, 0)

	return dst
}
