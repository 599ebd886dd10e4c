package pgwire

// Transaction status indicators carried by ReadyForQuery.
const (
	TxStatusIdle       = 'I'
	TxStatusInTx       = 'T'
	TxStatusInFailedTx = 'E'
)

// ReadyForQuery signals the server is ready for the next query cycle.
type ReadyForQuery struct {
	TxStatus byte
}

func (*ReadyForQuery) Backend() {}

func (dst *ReadyForQuery) Decode(src []byte) error {
	if len(src) != 1 {
		return &invalidMessageLenErr{messageType: "ReadyForQuery", expectedLen: 1, actualLen: len(src)}
	}

	switch src[0] {
	case TxStatusIdle, TxStatusInTx, TxStatusInFailedTx:
	default:
		return &invalidMessageFormatErr{messageType: "ReadyForQuery", details: "invalid transaction status"}
	}

	dst.TxStatus = src[0]
	return nil
}

func (src *ReadyForQuery) Encode(dst []byte) []byte {
	return append(dst, 'Z', 0, 0, 0, 5, src.TxStatus)
}
