package pgwire

// Flush asks the server to deliver any pending responses without closing the
// error recovery unit.
type Flush struct{}

func (*Flush) Frontend() {}

func (dst *Flush) Decode(src []byte) error {
	if len(src) != 0 {
		return &invalidMessageLenErr{messageType: "Flush", expectedLen: 0, actualLen: len(src)}
	}
	return nil
}

func (src *Flush) Encode(dst []byte) []byte {
	return append(dst, 'H', 0, 0, 0, 4)
}
