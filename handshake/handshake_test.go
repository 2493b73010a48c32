package handshake

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"encoding/binary"
	"math/big"
	"testing"

	"github.com/mtprotogo/tgnet/buffer"
	"github.com/mtprotogo/tgnet/mtcrypto"
	"github.com/mtprotogo/tgnet/tl"
	"github.com/stretchr/testify/require"
)

const (
	testP uint64 = 1000000007
	testQ uint64 = 1000000009
)

// fakeServer plays the server side of the DH exchange for exactly one
// Handshake, using a freshly generated RSA key and the package's own
// known-good DH prime so the client's validation logic is exercised
// honestly rather than stubbed out.
type fakeServer struct {
	priv        *rsa.PrivateKey
	fingerprint uint64
	clientNonce [16]byte
	serverNonce [16]byte
	newNonce    [32]byte
	b           *big.Int
	g           int32
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return &fakeServer{priv: priv, fingerprint: 0xAABBCCDDEEFF0011, g: 3}
}

func (s *fakeServer) keyRing() *mtcrypto.KeyRing {
	kr := &mtcrypto.KeyRing{}
	kr.AddKey(s.fingerprint, &s.priv.PublicKey)
	return kr
}

func (s *fakeServer) handleReqPqMulti(body []byte) []byte {
	obj, err := tl.Decode(buffer.NewByteBuffer(body))
	if err != nil {
		panic(err)
	}
	req := obj.(*tl.ReqPqMulti)
	s.clientNonce = req.Nonce
	_, _ = rand.Read(s.serverNonce[:])

	var pqBuf [8]byte
	binary.BigEndian.PutUint64(pqBuf[:], testP*testQ)

	resp := &tl.ResPQ{
		Nonce:                       s.clientNonce,
		ServerNonce:                 s.serverNonce,
		PQ:                          pqBuf[:],
		ServerPublicKeyFingerprints: []int64{int64(s.fingerprint)},
	}
	return encode(resp)
}

func (s *fakeServer) handleReqDHParams(t *testing.T, body []byte) []byte {
	obj, err := tl.Decode(buffer.NewByteBuffer(body))
	require.NoError(t, err)
	req := obj.(*tl.ReqDHParams)
	require.Equal(t, s.clientNonce, req.Nonce)
	require.Equal(t, s.serverNonce, req.ServerNonce)

	plain := rsaDecryptRaw(t, s.priv, req.EncryptedData)
	sum := plain[0:20]
	data := plain[20:]
	inner, err := tl.Decode(buffer.NewByteBuffer(data))
	require.NoError(t, err)

	var innerObj *tl.PQInnerDataDC
	switch v := inner.(type) {
	case *tl.PQInnerDataDC:
		s.newNonce = v.NewNonce
		innerObj = v
	default:
		t.Fatalf("unexpected inner type %T", inner)
	}

	reEncoded := encode(innerObj)
	gotSum := sha1.Sum(reEncoded)
	require.Equal(t, sum, gotSum[:])

	dhPrimeBytes := mtcrypto.LeftPad256(knownPrimeForTest())
	b, err := mtcrypto.RandomExponent()
	require.NoError(t, err)
	s.b = b
	gA := new(big.Int).Exp(big.NewInt(int64(s.g)), b, knownPrimeForTest())

	inner2 := &tl.ServerDHInnerData{
		Nonce: s.clientNonce, ServerNonce: s.serverNonce,
		G: s.g, DHPrime: dhPrimeBytes, GA: mtcrypto.LeftPad256(gA),
		ServerTime: 1700000000,
	}
	innerBuf := buffer.NewByteBuffer(nil)
	inner2.Encode(innerBuf)
	hash := sha1.Sum(innerBuf.Bytes())
	plainAnswer := append(append([]byte{}, hash[:]...), innerBuf.Bytes()...)
	for len(plainAnswer)%16 != 0 {
		plainAnswer = append(plainAnswer, 0)
	}

	tmpKey, tmpIV := mtcrypto.TempIGEKeyIV(s.newNonce, s.serverNonce)
	ciphertext, err := mtcrypto.IGEEncrypt(tmpKey[:], tmpIV[:], plainAnswer)
	require.NoError(t, err)

	resp := &tl.ServerDHParamsOk{Nonce: s.clientNonce, ServerNonce: s.serverNonce, EncryptedAnswer: ciphertext}
	return encode(resp)
}

func (s *fakeServer) handleSetClientDHParams(t *testing.T, body []byte) ([]byte, []byte) {
	obj, err := tl.Decode(buffer.NewByteBuffer(body))
	require.NoError(t, err)
	req := obj.(*tl.SetClientDHParams)
	require.Equal(t, s.clientNonce, req.Nonce)

	tmpKey, tmpIV := mtcrypto.TempIGEKeyIV(s.newNonce, s.serverNonce)
	plain, err := mtcrypto.IGEDecrypt(tmpKey[:], tmpIV[:], req.EncryptedData)
	require.NoError(t, err)
	inner, err := tl.Decode(buffer.NewByteBuffer(plain[20:]))
	require.NoError(t, err)
	clientInner := inner.(*tl.ClientDHInnerData)

	gB := new(big.Int).SetBytes(clientInner.GB)
	authKeyBig := new(big.Int).Exp(gB, s.b, knownPrimeForTest())
	authKey := mtcrypto.LeftPad256(authKeyBig)

	hash1 := mtcrypto.NewNonceHash(s.newNonce, 1, authKey)
	resp := &tl.DHGenOk{Nonce: s.clientNonce, ServerNonce: s.serverNonce, NewNonceHash1: hash1}
	return encode(resp), authKey
}

func knownPrimeForTest() *big.Int {
	return mtcrypto.KnownGoodPrime()
}

func rsaDecryptRaw(t *testing.T, priv *rsa.PrivateKey, ct []byte) []byte {
	t.Helper()
	c := new(big.Int).SetBytes(ct)
	m := new(big.Int).Exp(c, priv.D, priv.N)
	plain := m.Bytes()
	if len(plain) < 255 {
		padded := make([]byte, 255)
		copy(padded[255-len(plain):], plain)
		plain = padded
	}
	return plain
}

func TestHandshakeFullExchange(t *testing.T) {
	server := newFakeServer(t)
	h := New(KindPerm, 2, server.keyRing())

	out, err := h.Start()
	require.NoError(t, err)

	serverResp1 := server.handleReqPqMulti(plainBody(t, out))
	out, result, err := h.HandleIncoming(wrapPlain(1, serverResp1))
	require.NoError(t, err)
	require.Nil(t, result)

	serverResp2 := server.handleReqDHParams(t, plainBody(t, out))
	out, result, err = h.HandleIncoming(wrapPlain(2, serverResp2))
	require.NoError(t, err)
	require.Nil(t, result)

	serverResp3, serverAuthKey := server.handleSetClientDHParams(t, plainBody(t, out))
	_, result, err = h.HandleIncoming(wrapPlain(3, serverResp3))
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, serverAuthKey, result.AuthKey)
	require.Equal(t, mtcrypto.AuthKeyID(serverAuthKey), result.AuthKeyID)
}

func plainBody(t *testing.T, wrapped []byte) []byte {
	t.Helper()
	_, body, err := unwrapPlain(wrapped)
	require.NoError(t, err)
	return body
}
