// Package handshake drives the three-step (plus temp-key bind) MTProto
// Diffie-Hellman key exchange: req_pq_multi, req_DH_params, and
// set_client_DH_params, strictly advancing through the state machine
// spec.md §3 describes.
package handshake

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/binary"
	"errors"
	"math/big"
	"time"

	"github.com/mtprotogo/tgnet/buffer"
	"github.com/mtprotogo/tgnet/mtcrypto"
	"github.com/mtprotogo/tgnet/tl"
)

var (
	ErrUnexpectedMessage  = errors.New("handshake: message doesn't match the current state")
	ErrNonceMismatch      = errors.New("handshake: nonce echoed by server doesn't match")
	ErrServerDHFailed     = errors.New("handshake: server_DH_params_fail")
	ErrAnswerHashMismatch = errors.New("handshake: server_DH_inner_data SHA1 check failed")
	ErrDHGenFailed        = errors.New("handshake: dh_gen_fail")
	ErrNewNonceHash       = errors.New("handshake: new_nonce_hash verification failed")
	ErrAlreadyDone        = errors.New("handshake: already completed")
)

// Kind selects which of a Datacenter's three auth-key slots this exchange
// is negotiating; it only affects which p_q_inner_data variant is sent
// and the `expires_in` carried within it.
type Kind int

const (
	KindPerm Kind = iota
	KindTempGeneric
	KindTempMedia
)

// tempKeyExpirySeconds is the temp-key lifetime server and client agree
// to target; the server may issue a shorter one.
const tempKeyExpirySeconds = 86400

type state int

const (
	stateIdle state = iota
	stateSentReqPqMulti
	stateSentReqDHParams
	stateSentSetClientDH
	stateDone
)

// Result is the key material and derived values a completed handshake
// hands back to its owner (a Datacenter).
type Result struct {
	AuthKey        []byte // 256 bytes
	AuthKeyID      uint64
	ServerSalt     int64
	TimeDifference int32 // server_time - wall_clock_now at DH completion
	AuthKeyAuxHash [8]byte
}

// Handshake is one in-flight DH exchange. Not safe for concurrent use;
// callers drive it from a single goroutine (spec.md §5's event loop).
type Handshake struct {
	kind    Kind
	dcID    int32
	keyRing *mtcrypto.KeyRing

	state state
	ids   idGen

	clientNonce [16]byte
	serverNonce [16]byte
	newNonce    [32]byte

	pUint, qUint uint64
	pBytes       []byte
	qBytes       []byte

	dhPrime *big.Int
	g       int32
	gA      *big.Int
	b       *big.Int
	gB      *big.Int
	authKey []byte

	retryID       int64
	serverTime    int32
	dhCompletedAt int64
}

// New creates a Handshake ready for Start.
func New(kind Kind, dcID int32, keyRing *mtcrypto.KeyRing) *Handshake {
	return &Handshake{kind: kind, dcID: dcID, keyRing: keyRing}
}

// Start generates client_nonce and returns the first plain message to
// send (auth_key_id sentinel zero, per spec.md §2's key-setup data flow).
func (h *Handshake) Start() ([]byte, error) {
	if h.state != stateIdle {
		return nil, ErrUnexpectedMessage
	}
	if _, err := rand.Read(h.clientNonce[:]); err != nil {
		return nil, err
	}

	req := &tl.ReqPqMulti{Nonce: h.clientNonce}
	body := encode(req)
	msgID := h.ids.next()
	h.state = stateSentReqPqMulti
	return wrapPlain(msgID, body), nil
}

// HandleIncoming advances the state machine given one plain message read
// off the wire. It returns the next message to send (nil if none), and a
// non-nil Result only once the exchange reaches stateDone.
func (h *Handshake) HandleIncoming(plainMsg []byte) (outgoing []byte, result *Result, err error) {
	_, body, err := unwrapPlain(plainMsg)
	if err != nil {
		return nil, nil, err
	}
	buf := buffer.NewByteBuffer(body)

	switch h.state {
	case stateSentReqPqMulti:
		return h.handleResPQ(buf)
	case stateSentReqDHParams:
		return h.handleServerDHParams(buf)
	case stateSentSetClientDH:
		return h.handleSetClientDHAnswer(buf)
	case stateDone:
		return nil, nil, ErrAlreadyDone
	default:
		return nil, nil, ErrUnexpectedMessage
	}
}

func (h *Handshake) handleResPQ(buf *buffer.ByteBuffer) ([]byte, *Result, error) {
	obj, err := tl.Decode(buf)
	if err != nil {
		return nil, nil, err
	}
	resp, ok := obj.(*tl.ResPQ)
	if !ok {
		return nil, nil, ErrUnexpectedMessage
	}
	if resp.Nonce != h.clientNonce {
		return nil, nil, ErrNonceMismatch
	}
	h.serverNonce = resp.ServerNonce

	pqUint := bytesToUint64(resp.PQ)
	p, q, err := mtcrypto.FactorPQ(pqUint)
	if err != nil {
		return nil, nil, err
	}
	h.pUint, h.qUint = p, q
	h.pBytes = uint64ToMinimalBytes(p)
	h.qBytes = uint64ToMinimalBytes(q)

	pub, err := h.keyRing.SelectKey(resp.ServerPublicKeyFingerprints)
	if err != nil {
		return nil, nil, err
	}

	if _, err := rand.Read(h.newNonce[:]); err != nil {
		return nil, nil, err
	}

	var innerEncoded *buffer.ByteBuffer
	switch h.kind {
	case KindPerm:
		innerEncoded = buffer.NewByteBuffer(nil)
		(&tl.PQInnerDataDC{
			PQ: resp.PQ, P: h.pBytes, Q: h.qBytes,
			Nonce: h.clientNonce, ServerNonce: h.serverNonce, NewNonce: h.newNonce,
			DC: h.dcID,
		}).Encode(innerEncoded)
	default:
		innerEncoded = buffer.NewByteBuffer(nil)
		(&tl.PQInnerDataTempDC{
			PQ: resp.PQ, P: h.pBytes, Q: h.qBytes,
			Nonce: h.clientNonce, ServerNonce: h.serverNonce, NewNonce: h.newNonce,
			DC: h.dcID, ExpiresIn: tempKeyExpirySeconds,
		}).Encode(innerEncoded)
	}

	encryptedData, err := mtcrypto.EncryptWithTelegramPadding(pub.Key, innerEncoded.Bytes())
	if err != nil {
		return nil, nil, err
	}

	reqDH := &tl.ReqDHParams{
		Nonce: h.clientNonce, ServerNonce: h.serverNonce,
		P: h.pBytes, Q: h.qBytes,
		PublicKeyFingerprint: int64(pub.Fingerprint),
		EncryptedData:        encryptedData,
	}
	msgID := h.ids.next()
	h.state = stateSentReqDHParams
	return wrapPlain(msgID, encode(reqDH)), nil, nil
}

func (h *Handshake) handleServerDHParams(buf *buffer.ByteBuffer) ([]byte, *Result, error) {
	obj, err := tl.Decode(buf)
	if err != nil {
		return nil, nil, err
	}

	if _, isFail := obj.(*tl.ServerDHParamsFail); isFail {
		return nil, nil, ErrServerDHFailed
	}
	ok, isOk := obj.(*tl.ServerDHParamsOk)
	if !isOk {
		return nil, nil, ErrUnexpectedMessage
	}
	if ok.Nonce != h.clientNonce || ok.ServerNonce != h.serverNonce {
		return nil, nil, ErrNonceMismatch
	}

	tmpKey, tmpIV := mtcrypto.TempIGEKeyIV(h.newNonce, h.serverNonce)
	answer, err := mtcrypto.IGEDecrypt(tmpKey[:], tmpIV[:], ok.EncryptedAnswer)
	if err != nil {
		return nil, nil, err
	}
	if err := verifyAnswerHash(answer); err != nil {
		return nil, nil, err
	}

	inner, err := tl.DecodeServerDHInnerData(buffer.NewByteBuffer(answer[20:]))
	if err != nil {
		return nil, nil, err
	}
	if inner.Nonce != h.clientNonce || inner.ServerNonce != h.serverNonce {
		return nil, nil, ErrNonceMismatch
	}

	h.dhPrime = new(big.Int).SetBytes(inner.DHPrime)
	h.g = inner.G
	if err := mtcrypto.ValidateDHPrime(h.dhPrime, h.g); err != nil {
		return nil, nil, err
	}
	h.gA = new(big.Int).SetBytes(inner.GA)
	if err := mtcrypto.ValidateGA(h.gA, h.dhPrime); err != nil {
		return nil, nil, err
	}
	h.serverTime = inner.ServerTime
	h.dhCompletedAt = time.Now().Unix()

	return h.sendSetClientDHParams()
}

// sendSetClientDHParams generates a fresh client exponent b and (re)sends
// set_client_DH_params. Called both from the first DH round and from a
// dh_gen_retry.
func (h *Handshake) sendSetClientDHParams() ([]byte, *Result, error) {
	b, err := mtcrypto.RandomExponent()
	if err != nil {
		return nil, nil, err
	}
	h.b = b
	g := big.NewInt(int64(h.g))
	h.gB = new(big.Int).Exp(g, b, h.dhPrime)
	if err := mtcrypto.ValidateGA(h.gB, h.dhPrime); err != nil {
		return nil, nil, err
	}

	authKeyBig := new(big.Int).Exp(h.gA, b, h.dhPrime)
	h.authKey = mtcrypto.LeftPad256(authKeyBig)

	clientInner := &tl.ClientDHInnerData{
		Nonce: h.clientNonce, ServerNonce: h.serverNonce,
		RetryID: h.retryID, GB: mtcrypto.LeftPad256(h.gB),
	}
	innerBuf := buffer.NewByteBuffer(nil)
	clientInner.Encode(innerBuf)

	encryptedData, err := encryptWithSHA1PrefixAndPadding(innerBuf.Bytes())
	if err != nil {
		return nil, nil, err
	}

	tmpKey, tmpIV := mtcrypto.TempIGEKeyIV(h.newNonce, h.serverNonce)
	ciphertext, err := mtcrypto.IGEEncrypt(tmpKey[:], tmpIV[:], encryptedData)
	if err != nil {
		return nil, nil, err
	}

	setParams := &tl.SetClientDHParams{
		Nonce: h.clientNonce, ServerNonce: h.serverNonce, EncryptedData: ciphertext,
	}
	msgID := h.ids.next()
	h.state = stateSentSetClientDH
	return wrapPlain(msgID, encode(setParams)), nil, nil
}

func (h *Handshake) handleSetClientDHAnswer(buf *buffer.ByteBuffer) ([]byte, *Result, error) {
	obj, err := tl.Decode(buf)
	if err != nil {
		return nil, nil, err
	}

	authAux := mtcrypto.AuthKeyAuxHash(h.authKey)

	switch v := obj.(type) {
	case *tl.DHGenOk:
		if v.Nonce != h.clientNonce || v.ServerNonce != h.serverNonce {
			return nil, nil, ErrNonceMismatch
		}
		want := mtcrypto.NewNonceHash(h.newNonce, 1, h.authKey)
		if want != v.NewNonceHash1 {
			return nil, nil, ErrNewNonceHash
		}
		serverSalt := mtcrypto.ServerSaltFromNonces(h.newNonce, h.serverNonce)
		h.state = stateDone
		return nil, &Result{
			AuthKey:        h.authKey,
			AuthKeyID:      mtcrypto.AuthKeyID(h.authKey),
			ServerSalt:     serverSalt,
			TimeDifference: h.serverTime - int32(h.dhCompletedAt),
			AuthKeyAuxHash: authAux,
		}, nil

	case *tl.DHGenRetry:
		if v.Nonce != h.clientNonce || v.ServerNonce != h.serverNonce {
			return nil, nil, ErrNonceMismatch
		}
		want := mtcrypto.NewNonceHash(h.newNonce, 2, h.authKey)
		if want != v.NewNonceHash2 {
			return nil, nil, ErrNewNonceHash
		}
		h.retryID = int64(binary.BigEndian.Uint64(authAux[:]))
		return h.sendSetClientDHParams()

	case *tl.DHGenFail:
		if v.Nonce != h.clientNonce || v.ServerNonce != h.serverNonce {
			return nil, nil, ErrNonceMismatch
		}
		want := mtcrypto.NewNonceHash(h.newNonce, 3, h.authKey)
		if want != v.NewNonceHash3 {
			return nil, nil, ErrNewNonceHash
		}
		return nil, nil, ErrDHGenFailed

	default:
		return nil, nil, ErrUnexpectedMessage
	}
}

// verifyAnswerHash checks that for some trailing-garbage length i in
// [0,15], SHA1(body[20:len-i]) equals the leading 20-byte hash, per
// spec.md §4.5 step 3.
func verifyAnswerHash(body []byte) error {
	if len(body) < 20 {
		return ErrAnswerHashMismatch
	}
	want := body[0:20]
	for i := 0; i <= 15 && 20+i <= len(body); i++ {
		end := len(body) - i
		if end < 20 {
			continue
		}
		sum := sha1.Sum(body[20:end])
		if string(sum[:]) == string(want) {
			return nil
		}
	}
	return ErrAnswerHashMismatch
}

// encryptWithSHA1PrefixAndPadding builds SHA1(data) || data, then pads
// with random bytes to the next 16-byte boundary, as step 4 requires
// before AES-IGE encryption (which needs block-aligned input).
func encryptWithSHA1PrefixAndPadding(data []byte) ([]byte, error) {
	sum := sha1.Sum(data)
	plain := make([]byte, 0, 20+len(data)+15)
	plain = append(plain, sum[:]...)
	plain = append(plain, data...)

	pad := (16 - len(plain)%16) % 16
	padding := make([]byte, pad)
	if _, err := rand.Read(padding); err != nil {
		return nil, err
	}
	return append(plain, padding...), nil
}

func encode(o tl.Object) []byte {
	b := buffer.NewByteBuffer(nil)
	o.Encode(b)
	return b.Bytes()
}

func bytesToUint64(b []byte) uint64 {
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}

func uint64ToMinimalBytes(v uint64) []byte {
	if v == 0 {
		return []byte{0}
	}
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	i := 0
	for i < 7 && tmp[i] == 0 {
		i++
	}
	return tmp[i:]
}

// idGen produces strictly increasing 64-bit message ids: upper 32 bits
// are wall-clock seconds, lower 32 bits a per-second counter with its low
// 2 bits cleared (client-originated convention from spec.md §3).
type idGen struct {
	lastSeconds int64
	counter     uint32
}

func (g *idGen) next() int64 {
	now := time.Now().Unix()
	if now != g.lastSeconds {
		g.lastSeconds = now
		g.counter = 0
	}
	g.counter++
	low := g.counter << 2
	return now<<32 | int64(low)
}

// wrapPlain frames a handshake message the way the protocol requires
// before any auth key exists: an explicit auth_key_id=0 sentinel,
// followed by message_id, message_length, and the body.
func wrapPlain(msgID int64, body []byte) []byte {
	out := make([]byte, 0, 20+len(body))
	var zero [8]byte
	out = append(out, zero[:]...)
	var idBuf [8]byte
	binary.LittleEndian.PutUint64(idBuf[:], uint64(msgID))
	out = append(out, idBuf[:]...)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(body)))
	out = append(out, lenBuf[:]...)
	return append(out, body...)
}

// unwrapPlain reverses wrapPlain and validates the declared length.
func unwrapPlain(raw []byte) (msgID int64, body []byte, err error) {
	if len(raw) < 20 {
		return 0, nil, ErrUnexpectedMessage
	}
	authKeyID := binary.LittleEndian.Uint64(raw[0:8])
	if authKeyID != 0 {
		return 0, nil, ErrUnexpectedMessage
	}
	id := int64(binary.LittleEndian.Uint64(raw[8:16]))
	n := binary.LittleEndian.Uint32(raw[16:20])
	if int(n) != len(raw)-20 {
		return 0, nil, ErrUnexpectedMessage
	}
	return id, raw[20:], nil
}
