// SCRAM-SHA-256 authentication
//
// Resources:
//   https://tools.ietf.org/html/rfc5802
//   https://tools.ietf.org/html/rfc8265
//   https://www.postgresql.org/docs/current/sasl-authentication.html
package pgconn

import (
	"bytes"
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/secure/precis"
)

const clientNonceLen = 18

// scramMechanism is the only SASL mechanism this client speaks.
const scramMechanism = "SCRAM-SHA-256"

// digestMD5Password computes the MD5 authentication response:
// "md5" + hex(md5(hex(md5(password + user)) + salt)).
func digestMD5Password(password, user string, salt [4]byte) string {
	return "md5" + hexMD5(hexMD5(password+user)+string(salt[:]))
}

func hexMD5(s string) string {
	hash := md5.Sum([]byte(s))
	return hex.EncodeToString(hash[:])
}

type scramClient struct {
	preparedPassword string
	clientNonce      []byte

	clientFirstMessageBare []byte

	serverFirstMessage   []byte
	clientAndServerNonce []byte
	salt                 []byte
	iterations           int

	saltedPassword []byte
	authMessage    []byte
}

// newScramClient selects SCRAM-SHA-256 from the server's mechanism offer and
// prepares the client-first message. nonceFn supplies clientNonceLen random
// bytes; nil uses crypto/rand.
func newScramClient(serverAuthMechanisms []string, password string, nonceFn func([]byte) error) (*scramClient, error) {
	offered := false
	for _, m := range serverAuthMechanisms {
		if m == scramMechanism {
			offered = true
			break
		}
	}
	if !offered {
		return nil, newError(ErrCodeUnsupportedAuthMechanism,
			fmt.Errorf("server offered only %v", serverAuthMechanisms))
	}

	sc := &scramClient{}

	// An error during preparation probably means the password is invalid as
	// a stringprep input; use it raw like libpq does.
	if p, err := precis.OpaqueString.String(password); err == nil {
		sc.preparedPassword = p
	} else {
		sc.preparedPassword = password
	}

	sc.clientNonce = make([]byte, clientNonceLen)
	if nonceFn == nil {
		nonceFn = func(buf []byte) error {
			_, err := rand.Read(buf)
			return err
		}
	}
	if err := nonceFn(sc.clientNonce); err != nil {
		return nil, newError(ErrCodeSASLError, err)
	}
	sc.clientNonce = []byte(base64.RawStdEncoding.EncodeToString(sc.clientNonce))

	sc.clientFirstMessageBare = []byte("n=,r=" + string(sc.clientNonce))

	return sc, nil
}

func (sc *scramClient) clientFirstMessage() []byte {
	return []byte("n,," + string(sc.clientFirstMessageBare))
}

func (sc *scramClient) recvServerFirstMessage(serverFirstMessage []byte) error {
	sc.serverFirstMessage = serverFirstMessage
	buf := serverFirstMessage

	if !bytes.HasPrefix(buf, []byte("r=")) {
		return newError(ErrCodeSASLError, errors.New("invalid SCRAM server-first-message received from server: did not include r="))
	}
	buf = buf[2:]

	idx := bytes.IndexByte(buf, ',')
	if idx == -1 {
		return newError(ErrCodeSASLError, errors.New("invalid SCRAM server-first-message received from server: did not include s="))
	}
	sc.clientAndServerNonce = buf[:idx]
	buf = buf[idx+1:]

	if !bytes.HasPrefix(buf, []byte("s=")) {
		return newError(ErrCodeSASLError, errors.New("invalid SCRAM server-first-message received from server: did not include s="))
	}
	buf = buf[2:]

	idx = bytes.IndexByte(buf, ',')
	if idx == -1 {
		return newError(ErrCodeSASLError, errors.New("invalid SCRAM server-first-message received from server: did not include i="))
	}
	saltStr := buf[:idx]
	buf = buf[idx+1:]

	if !bytes.HasPrefix(buf, []byte("i=")) {
		return newError(ErrCodeSASLError, errors.New("invalid SCRAM server-first-message received from server: did not include i="))
	}
	buf = buf[2:]
	iterationsStr := buf

	var err error
	sc.salt, err = base64.StdEncoding.DecodeString(string(saltStr))
	if err != nil {
		return newError(ErrCodeSASLError, fmt.Errorf("invalid SCRAM salt received from server: %w", err))
	}

	sc.iterations, err = strconv.Atoi(string(iterationsStr))
	if err != nil || sc.iterations <= 0 {
		return newError(ErrCodeSASLError, fmt.Errorf("invalid SCRAM iteration count received from server: %w", err))
	}

	if !bytes.HasPrefix(sc.clientAndServerNonce, sc.clientNonce) {
		return newError(ErrCodeSASLError, errors.New("invalid SCRAM nonce: did not start with client nonce"))
	}

	if len(sc.clientAndServerNonce) <= len(sc.clientNonce) {
		return newError(ErrCodeSASLError, errors.New("invalid SCRAM nonce: did not include server nonce"))
	}

	sc.saltedPassword = pbkdf2.Key([]byte(sc.preparedPassword), sc.salt, sc.iterations, 32, sha256.New)

	sc.authMessage = bytes.Join([][]byte{
		sc.clientFirstMessageBare,
		sc.serverFirstMessage,
		sc.clientFinalMessageWithoutProof(),
	}, []byte(","))

	return nil
}

func (sc *scramClient) clientFinalMessageWithoutProof() []byte {
	return []byte(fmt.Sprintf("c=biws,r=%s", sc.clientAndServerNonce))
}

func (sc *scramClient) clientFinalMessage() []byte {
	clientProof := computeClientProof(sc.saltedPassword, sc.authMessage)
	return []byte(fmt.Sprintf("%s,p=%s", sc.clientFinalMessageWithoutProof(), clientProof))
}

func (sc *scramClient) recvServerFinalMessage(serverFinalMessage []byte) error {
	if !bytes.HasPrefix(serverFinalMessage, []byte("v=")) {
		return newError(ErrCodeSASLError, errors.New("invalid SCRAM server-final-message received from server"))
	}

	serverSignature := serverFinalMessage[2:]

	if !hmac.Equal(serverSignature, computeServerSignature(sc.saltedPassword, sc.authMessage)) {
		return newError(ErrCodeSASLError, errors.New("invalid SCRAM ServerSignature received from server"))
	}

	return nil
}

func computeHMAC(key, msg []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(msg)
	return mac.Sum(nil)
}

func computeClientProof(saltedPassword, authMessage []byte) []byte {
	clientKey := computeHMAC(saltedPassword, []byte("Client Key"))
	storedKey := sha256.Sum256(clientKey)
	clientSignature := computeHMAC(storedKey[:], authMessage)

	clientProof := make([]byte, len(clientSignature))
	for i := 0; i < len(clientSignature); i++ {
		clientProof[i] = clientKey[i] ^ clientSignature[i]
	}

	buf := make([]byte, base64.StdEncoding.EncodedLen(len(clientProof)))
	base64.StdEncoding.Encode(buf, clientProof)
	return buf
}

func computeServerSignature(saltedPassword, authMessage []byte) []byte {
	serverKey := computeHMAC(saltedPassword, []byte("Server Key"))
	serverSignature := computeHMAC(serverKey, authMessage)

	buf := make([]byte, base64.StdEncoding.EncodedLen(len(serverSignature)))
	base64.StdEncoding.Encode(buf, serverSignature)
	return buf
}
