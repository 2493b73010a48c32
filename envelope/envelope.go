// Package envelope builds and verifies encrypted MTProto packets:
// auth_key_id | msg_key | AES-IGE ciphertext, with msg_container packing
// and the clock-skew rewrap the protocol requires around msg_id
// generation.
package envelope

import (
	"crypto/rand"
	"encoding/binary"
	"errors"

	"github.com/mtprotogo/tgnet/buffer"
	"github.com/mtprotogo/tgnet/mtcrypto"
	"github.com/mtprotogo/tgnet/tl"
)

var (
	// ErrUnknownAuthKey is returned by Decrypt when the wire auth_key_id
	// doesn't match the session's installed key; the caller must drop
	// the TCP stream on this error.
	ErrUnknownAuthKey = errors.New("envelope: auth_key_id mismatch")
	// ErrSessionMismatch is returned when a decrypted packet's session_id
	// doesn't match the connection it arrived on.
	ErrSessionMismatch = errors.New("envelope: session_id mismatch")
	// ErrBadPadding is returned when the decrypted padding length falls
	// outside [12, 1024] or body_len overruns the ciphertext.
	ErrBadPadding = errors.New("envelope: padding/body_len out of range")
	// ErrMsgKeyMismatch is returned when the recomputed msg_key disagrees
	// with the one read off the wire — the packet is forged or corrupt.
	ErrMsgKeyMismatch = errors.New("envelope: msg_key verification failed")
	// ErrShortPacket is returned when a ciphertext is too small to hold
	// the fixed auth_key_id + msg_key header.
	ErrShortPacket = errors.New("envelope: packet shorter than header")
)

// Session is the minimal state Encrypt/Decrypt need from a Connection:
// the installed auth key and its derived id, the connection's session id,
// and the datacenter's current server salt.
type Session struct {
	AuthKey    []byte // 256 bytes
	AuthKeyID  uint64
	SessionID  int64
	ServerSalt int64
}

// Plaintext is the decoded interior of an envelope, before re-dispatch to
// the tl package.
type Plaintext struct {
	SessionID int64
	MsgID     int64
	Seqno     int32
	Body      []byte
}

// Encrypt builds one `server_salt | session_id | msg_id | seqno | body_len
// | body | padding` plaintext, encrypts it with AES-256-IGE under keys
// derived from s.AuthKey, and returns `auth_key_id | msg_key | ciphertext`.
func Encrypt(s *Session, msgID int64, seqno int32, body []byte) ([]byte, error) {
	plaintext, err := buildPlaintext(s, msgID, seqno, body)
	if err != nil {
		return nil, err
	}
	return sealPlaintext(s, plaintext)
}

// EncryptContainer wraps several messages in a single msg_container and
// encrypts the result as one envelope, per spec.md §4.6 step 1.
func EncryptContainer(s *Session, containerMsgID int64, containerSeqno int32, messages []*tl.Message) ([]byte, error) {
	c := &tl.MsgContainer{Messages: messages}
	b := encodeObject(c)
	return Encrypt(s, containerMsgID, containerSeqno, b.Bytes())
}

func buildPlaintext(s *Session, msgID int64, seqno int32, body []byte) ([]byte, error) {
	header := make([]byte, 0, 32+len(body))
	header = appendI64(header, s.ServerSalt)
	header = appendI64(header, s.SessionID)
	header = appendI64(header, msgID)
	header = appendI32(header, seqno)
	header = appendI32(header, int32(len(body)))
	header = append(header, body...)

	padLen, err := randomPadLen(len(header))
	if err != nil {
		return nil, err
	}
	padding := make([]byte, padLen)
	if _, err := rand.Read(padding); err != nil {
		return nil, err
	}
	return append(header, padding...), nil
}

// randomPadLen picks a padding length so the total is AES-block-aligned:
// the smallest 12–27 bytes that align it, plus, per the v2 scheme, an
// extra random multiple of 16 in [32,240] (so at most 267 bytes).
func randomPadLen(headerLen int) (int, error) {
	base := 12
	rem := (headerLen + base) % 16
	if rem != 0 {
		base += 16 - rem
	}

	var buf [1]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	extraBlocks := int(buf[0]%14) + 2 // [2..15] blocks of 16
	base += extraBlocks * 16

	if base > 1024 {
		base = 1024 - (1024 % 16)
	}
	return base, nil
}

func sealPlaintext(s *Session, plaintext []byte) ([]byte, error) {
	msgKeyLarge := mtcrypto.MsgKeyLarge(s.AuthKey, plaintext, mtcrypto.ClientToServer)
	var msgKey [16]byte
	copy(msgKey[:], msgKeyLarge[8:24])

	aesKey, aesIV := mtcrypto.DeriveAESKeyIV(s.AuthKey, msgKey, mtcrypto.ClientToServer)
	ciphertext, err := mtcrypto.IGEEncrypt(aesKey[:], aesIV[:], plaintext)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 8+16+len(ciphertext))
	out = appendU64(out, s.AuthKeyID)
	out = append(out, msgKey[:]...)
	out = append(out, ciphertext...)
	return out, nil
}

// QuickAckID returns the id the server attaches to a quick-ack for a
// packet built from this plaintext: msg_key_large[0:4] read little-endian
// with the top bit cleared.
func QuickAckID(authKey, plaintext []byte) uint32 {
	msgKeyLarge := mtcrypto.MsgKeyLarge(authKey, plaintext, mtcrypto.ClientToServer)
	v := binary.LittleEndian.Uint32(msgKeyLarge[0:4])
	return v &^ 0x80000000
}

// Decrypt verifies and unwraps a server->client envelope. expectSessionID
// is the Connection's own session id; a mismatch is a protocol violation
// distinct from a bad msg_key.
func Decrypt(s *Session, packet []byte, expectSessionID int64) (*Plaintext, error) {
	if len(packet) < 8+16 {
		return nil, ErrShortPacket
	}

	authKeyID := binary.LittleEndian.Uint64(packet[0:8])
	if authKeyID != s.AuthKeyID {
		return nil, ErrUnknownAuthKey
	}

	var msgKey [16]byte
	copy(msgKey[:], packet[8:24])
	ciphertext := packet[24:]

	aesKey, aesIV := mtcrypto.DeriveAESKeyIV(s.AuthKey, msgKey, mtcrypto.ServerToClient)
	plaintext, err := mtcrypto.IGEDecrypt(aesKey[:], aesIV[:], ciphertext)
	if err != nil {
		return nil, err
	}

	msgKeyLarge := mtcrypto.MsgKeyLarge(s.AuthKey, plaintext, mtcrypto.ServerToClient)
	if string(msgKeyLarge[8:24]) != string(msgKey[:]) {
		return nil, ErrMsgKeyMismatch
	}

	if len(plaintext) < 32 {
		return nil, ErrBadPadding
	}
	sessionID := int64(binary.LittleEndian.Uint64(plaintext[8:16]))
	msgID := int64(binary.LittleEndian.Uint64(plaintext[16:24]))
	seqno := int32(binary.LittleEndian.Uint32(plaintext[24:28]))
	bodyLen := int32(binary.LittleEndian.Uint32(plaintext[28:32]))

	if bodyLen < 0 || int(bodyLen) > len(plaintext)-32 {
		return nil, ErrBadPadding
	}
	padLen := len(plaintext) - 32 - int(bodyLen)
	if padLen < 12 || padLen > 1024 {
		return nil, ErrBadPadding
	}
	if sessionID != expectSessionID {
		return nil, ErrSessionMismatch
	}

	body := make([]byte, bodyLen)
	copy(body, plaintext[32:32+bodyLen])

	return &Plaintext{SessionID: sessionID, MsgID: msgID, Seqno: seqno, Body: body}, nil
}

// RewrapForClockSkew wraps a previously-built (msgID, seqno, body) in a
// fresh msg_container, per spec.md §4.6's clock-skew handling: the
// original msg_id, seqno and body are preserved unchanged as the
// container's single element. The returned container carries no outer
// msg_id and newOuterMsgID is not used here; the outer msg_id is the one
// passed when the container is encrypted.
func RewrapForClockSkew(newOuterMsgID int64, originalMsgID int64, originalSeqno int32, originalBody []byte) *tl.MsgContainer {
	return &tl.MsgContainer{
		Messages: []*tl.Message{
			{MsgID: originalMsgID, Seqno: originalSeqno, Bytes: int32(len(originalBody)), Body: originalBody},
		},
	}
}

func encodeObject(o tl.Object) *buffer.ByteBuffer {
	b := buffer.NewByteBuffer(nil)
	o.Encode(b)
	return b
}

func appendI64(dst []byte, v int64) []byte { return appendU64(dst, uint64(v)) }

func appendU64(dst []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(dst, tmp[:]...)
}

func appendI32(dst []byte, v int32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(v))
	return append(dst, tmp[:]...)
}
