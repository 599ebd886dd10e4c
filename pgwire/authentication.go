package pgwire

import (
	"encoding/binary"

	"github.com/jackc/pgio"
)

// AuthenticationOk reports that authentication, if any, completed
// successfully.
type AuthenticationOk struct{}

func (*AuthenticationOk) Backend()                {}
func (*AuthenticationOk) AuthenticationResponse() {}

func (dst *AuthenticationOk) Decode(src []byte) error {
	if len(src) != 4 {
		return &invalidMessageLenErr{messageType: "AuthenticationOk", expectedLen: 4, actualLen: len(src)}
	}
	if authType := binary.BigEndian.Uint32(src); authType != AuthTypeOk {
		return &invalidMessageFormatErr{messageType: "AuthenticationOk", details: "unexpected auth type"}
	}
	*dst = AuthenticationOk{}
	return nil
}

func (src *AuthenticationOk) Encode(dst []byte) []byte {
	dst = append(dst, 'R')
	dst = pgio.AppendInt32(dst, 8)
	dst = pgio.AppendUint32(dst, AuthTypeOk)
	return dst
}

// AuthenticationCleartextPassword requests a cleartext PasswordMessage.
type AuthenticationCleartextPassword struct{}

func (*AuthenticationCleartextPassword) Backend()                {}
func (*AuthenticationCleartextPassword) AuthenticationResponse() {}

func (dst *AuthenticationCleartextPassword) Decode(src []byte) error {
	if len(src) != 4 {
		return &invalidMessageLenErr{messageType: "AuthenticationCleartextPassword", expectedLen: 4, actualLen: len(src)}
	}
	if authType := binary.BigEndian.Uint32(src); authType != AuthTypeCleartextPassword {
		return &invalidMessageFormatErr{messageType: "AuthenticationCleartextPassword", details: "unexpected auth type"}
	}
	*dst = AuthenticationCleartextPassword{}
	return nil
}

func (src *AuthenticationCleartextPassword) Encode(dst []byte) []byte {
	dst = append(dst, 'R')
	dst = pgio.AppendInt32(dst, 8)
	dst = pgio.AppendUint32(dst, AuthTypeCleartextPassword)
	return dst
}

// AuthenticationMD5Password requests an MD5 digested PasswordMessage using
// the included salt.
type AuthenticationMD5Password struct {
	Salt [4]byte
}

func (*AuthenticationMD5Password) Backend()                {}
func (*AuthenticationMD5Password) AuthenticationResponse() {}

func (dst *AuthenticationMD5Password) Decode(src []byte) error {
	if len(src) != 8 {
		return &invalidMessageLenErr{messageType: "AuthenticationMD5Password", expectedLen: 8, actualLen: len(src)}
	}
	if authType := binary.BigEndian.Uint32(src); authType != AuthTypeMD5Password {
		return &invalidMessageFormatErr{messageType: "AuthenticationMD5Password", details: "unexpected auth type"}
	}
	dst.Salt = [4]byte{}
	copy(dst.Salt[:], src[4:8])
	return nil
}

func (src *AuthenticationMD5Password) Encode(dst []byte) []byte {
	dst = append(dst, 'R')
	dst = pgio.AppendInt32(dst, 12)
	dst = pgio.AppendUint32(dst, AuthTypeMD5Password)
	dst = append(dst, src.Salt[:]...)
	return dst
}

// AuthenticationSASL begins SASL negotiation. AuthMechanisms lists the
// mechanisms the server is willing to accept, in order of preference.
type AuthenticationSASL struct {
	AuthMechanisms []string
}

func (*AuthenticationSASL) Backend()                {}
func (*AuthenticationSASL) AuthenticationResponse() {}

func (dst *AuthenticationSASL) Decode(src []byte) error {
	if len(src) < 4 {
		return &invalidMessageFormatErr{messageType: "AuthenticationSASL", details: "too short"}
	}
	if authType := binary.BigEndian.Uint32(src); authType != AuthTypeSASL {
		return &invalidMessageFormatErr{messageType: "AuthenticationSASL", details: "unexpected auth type"}
	}

	dst.AuthMechanisms = dst.AuthMechanisms[:0]
	rp := 4
	for {
		idx := indexOfNull(src[rp:])
		if idx < 0 {
			return &invalidMessageFormatErr{messageType: "AuthenticationSASL", details: "unterminated mechanism list"}
		}
		if idx == 0 {
			// Empty string terminates the list.
			break
		}
		dst.AuthMechanisms = append(dst.AuthMechanisms, string(src[rp:rp+idx]))
		rp += idx + 1
	}

	return nil
}

func (src *AuthenticationSASL) Encode(dst []byte) []byte {
	dst = append(dst, 'R')
	sp := len(dst)
	dst = pgio.AppendInt32(dst, -1)
	dst = pgio.AppendUint32(dst, AuthTypeSASL)
	for _, mech := range src.AuthMechanisms {
		dst = append(dst, mech...)
		dst = append(dst, 0)
	}
	dst = append(dst, 0)
	pgio.SetInt32(dst[sp:], int32(len(dst[sp:])))
	return dst
}

// AuthenticationSASLContinue carries the server-first or subsequent SASL
// challenge.
type AuthenticationSASLContinue struct {
	Data []byte
}

func (*AuthenticationSASLContinue) Backend()                {}
func (*AuthenticationSASLContinue) AuthenticationResponse() {}

func (dst *AuthenticationSASLContinue) Decode(src []byte) error {
	if len(src) < 4 {
		return &invalidMessageFormatErr{messageType: "AuthenticationSASLContinue", details: "too short"}
	}
	if authType := binary.BigEndian.Uint32(src); authType != AuthTypeSASLContinue {
		return &invalidMessageFormatErr{messageType: "AuthenticationSASLContinue", details: "unexpected auth type"}
	}
	dst.Data = src[4:]
	return nil
}

func (src *AuthenticationSASLContinue) Encode(dst []byte) []byte {
	dst = append(dst, 'R')
	sp := len(dst)
	dst = pgio.AppendInt32(dst, -1)
	dst = pgio.AppendUint32(dst, AuthTypeSASLContinue)
	dst = append(dst, src.Data...)
	pgio.SetInt32(dst[sp:], int32(len(dst[sp:])))
	return dst
}

// AuthenticationSASLFinal carries the server-final SASL message (the server
// signature for SCRAM).
type AuthenticationSASLFinal struct {
	Data []byte
}

func (*AuthenticationSASLFinal) Backend()                {}
func (*AuthenticationSASLFinal) AuthenticationResponse() {}

func (dst *AuthenticationSASLFinal) Decode(src []byte) error {
	if len(src) < 4 {
		return &invalidMessageFormatErr{messageType: "AuthenticationSASLFinal", details: "too short"}
	}
	if authType := binary.BigEndian.Uint32(src); authType != AuthTypeSASLFinal {
		return &invalidMessageFormatErr{messageType: "AuthenticationSASLFinal", details: "unexpected auth type"}
	}
	dst.Data = src[4:]
	return nil
}

func (src *AuthenticationSASLFinal) Encode(dst []byte) []byte {
	dst = append(dst, 'R')
	sp := len(dst)
	dst = pgio.AppendInt32(dst, -1)
	dst = pgio.AppendUint32(dst, AuthTypeSASLFinal)
	dst = append(dst, src.Data...)
	pgio.SetInt32(dst[sp:], int32(len(dst[sp:])))
	return dst
}
