package pgwire

// NoticeResponse carries a warning or informational message. It has the same
// field layout as ErrorResponse.
type NoticeResponse ErrorResponse

func (*NoticeResponse) Backend() {}

func (dst *NoticeResponse) Decode(src []byte) error {
	*dst = NoticeResponse{}
	return (*ErrorResponse)(dst).populateFromFields(src, "NoticeResponse")
}

func (src *NoticeResponse) Encode(dst []byte) []byte {
	return (*ErrorResponse)(src).appendFields(dst, 'N')
}
