package pgwire

import (
	"github.com/jackc/pgio"
)

// CommandComplete reports successful completion of a command with its
// textual tag (e.g. "SELECT 1").
type CommandComplete struct {
	CommandTag []byte
}

func (*CommandComplete) Backend() {}

func (dst *CommandComplete) Decode(src []byte) error {
	idx := indexOfNull(src)
	if idx < 0 {
		return &invalidMessageFormatErr{messageType: "CommandComplete", details: "missing tag terminator"}
	}

	dst.CommandTag = src[:idx]
	return nil
}

func (src *CommandComplete) Encode(dst []byte) []byte {
	dst = append(dst, 'C')
	sp := len(dst)
	dst = pgio.AppendInt32(dst, -1)

	dst = append(dst, src.CommandTag...)
	dst = append(dst, 0)

	pgio.SetInt32(dst[sp:], int32(len(dst[sp:])))
	return dst
}
