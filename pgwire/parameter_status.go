package pgwire

import (
	"github.com/jackc/pgio"
)

// ParameterStatus reports a run-time parameter value. The server sends these
// at startup and whenever a reported parameter changes.
type ParameterStatus struct {
	Name  string
	Value string
}

func (*ParameterStatus) Backend() {}

func (dst *ParameterStatus) Decode(src []byte) error {
	idx := indexOfNull(src)
	if idx < 0 {
		return &invalidMessageFormatErr{messageType: "ParameterStatus", details: "missing name terminator"}
	}
	name := string(src[:idx])
	rp := idx + 1

	idx = indexOfNull(src[rp:])
	if idx < 0 {
		return &invalidMessageFormatErr{messageType: "ParameterStatus", details: "missing value terminator"}
	}
	value := string(src[rp : rp+idx])

	*dst = ParameterStatus{Name: name, Value: value}
	return nil
}

func (src *ParameterStatus) Encode(dst []byte) []byte {
	dst = append(dst, 'S')
	sp := len(dst)
	dst = pgio.AppendInt32(dst, -1)

	dst = append(dst, src.Name...)
	dst = append(dst, 0)
	dst = append(dst, src.Value...)
	dst = append(dst, 0)

	pgio.SetInt32(dst[sp:], int32(len(dst[sp:])))
	return dst
}
