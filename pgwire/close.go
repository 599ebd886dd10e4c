package pgwire

import (
	"github.com/jackc/pgio"
)

// Close releases a prepared statement or portal on the server.
type Close struct {
	ObjectType byte // 'S' = prepared statement, 'P' = portal
	Name       string
}

func (*Close) Frontend() {}

func (dst *Close) Decode(src []byte) error {
	if len(src) < 2 {
		return &invalidMessageFormatErr{messageType: "Close", details: "too short"}
	}

	dst.ObjectType = src[0]
	rp := 1

	idx := indexOfNull(src[rp:])
	if idx != len(src[rp:])-1 {
		return &invalidMessageFormatErr{messageType: "Close", details: "missing name terminator"}
	}
	dst.Name = string(src[rp : rp+idx])

	return nil
}

func (src *Close) Encode(dst []byte) []byte {
	dst = append(dst, 'C')
	sp := len(dst)
	dst = pgio.AppendInt32(dst, -1)

	dst = append(dst, src.ObjectType)
	dst = append(dst, src.Name...)
	dst = append(dst, 0)

	pgio.SetInt32(dst[sp:], int32(len(dst[sp:])))
	return dst
}
