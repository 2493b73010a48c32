package mtcrypto

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/binary"
)

// AuthKeyID returns the low 64 bits of SHA1(authKey)[12..20], the
// identifier MTProto places at the front of every encrypted envelope.
func AuthKeyID(authKey []byte) uint64 {
	sum := sha1.Sum(authKey)
	return binary.LittleEndian.Uint64(sum[12:20])
}

// Direction selects which side of the v2 KDF's x-offset applies.
type Direction int

const (
	// ClientToServer uses x=0.
	ClientToServer Direction = iota
	// ServerToClient uses x=8.
	ServerToClient
)

// MsgKeyLarge computes SHA256(authKey[88+x:120+x] || plaintext), the
// "large" message key that both the 16-byte wire msg_key and the
// quick-ack id are derived from. x is 0 for a client->server plaintext,
// 8 for a server->client one, matching DeriveAESKeyIV's offset.
func MsgKeyLarge(authKey, plaintext []byte, dir Direction) [32]byte {
	x := 0
	if dir == ServerToClient {
		x = 8
	}
	h := sha256.New()
	h.Write(authKey[88+x : 120+x])
	h.Write(plaintext)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// DeriveAESKeyIV implements the MTProto v2 key derivation:
//
//	sha256_a = SHA256(msgKey || authKey[x:x+36])
//	sha256_b = SHA256(authKey[40+x:40+x+36] || msgKey)
//	aesKey   = sha256_a[0:8] || sha256_b[8:24] || sha256_a[24:32]
//	aesIV    = sha256_b[0:8] || sha256_a[8:24] || sha256_b[24:32]
//
// x is 0 for client->server, 8 for server->client.
func DeriveAESKeyIV(authKey []byte, msgKey [16]byte, dir Direction) (aesKey, aesIV [32]byte) {
	x := 0
	if dir == ServerToClient {
		x = 8
	}

	ha := sha256.New()
	ha.Write(msgKey[:])
	ha.Write(authKey[x : x+36])
	shaA := ha.Sum(nil)

	hb := sha256.New()
	hb.Write(authKey[40+x : 40+x+36])
	hb.Write(msgKey[:])
	shaB := hb.Sum(nil)

	copy(aesKey[0:8], shaA[0:8])
	copy(aesKey[8:24], shaB[8:24])
	copy(aesKey[24:32], shaA[24:32])

	copy(aesIV[0:8], shaB[0:8])
	copy(aesIV[8:24], shaA[8:24])
	copy(aesIV[24:32], shaB[24:32])

	return aesKey, aesIV
}

// TempIGEKeyIV derives the AES-IGE key/iv used to decrypt
// server_DH_inner_data and encrypt client_DH_inner_data during the
// handshake, from new_nonce and server_nonce.
func TempIGEKeyIV(newNonce [32]byte, serverNonce [16]byte) (key, iv [32]byte) {
	h1 := sha1.Sum(append(append([]byte{}, newNonce[:]...), serverNonce[:]...))
	h2 := sha1.Sum(append(append([]byte{}, serverNonce[:]...), newNonce[:]...))
	h3 := sha1.Sum(append(append([]byte{}, newNonce[:]...), newNonce[:]...))

	copy(key[0:20], h1[:])
	copy(key[20:32], h2[0:12])

	copy(iv[0:8], h2[12:20])
	copy(iv[8:28], h3[:])
	copy(iv[28:32], newNonce[0:4])

	return key, iv
}

// NewNonceHash computes new_nonce_hashN = last 16 bytes of
// SHA1(newNonce || N || authKeyAuxHash), where authKeyAuxHash is the first
// 8 bytes of SHA1(authKey) and N identifies dh_gen_ok(1)/retry(2)/fail(3).
func NewNonceHash(newNonce [32]byte, n byte, authKey []byte) [16]byte {
	aux := AuthKeyAuxHash(authKey)
	buf := make([]byte, 0, 32+1+8)
	buf = append(buf, newNonce[:]...)
	buf = append(buf, n)
	buf = append(buf, aux[:]...)
	sum := sha1.Sum(buf)
	var out [16]byte
	copy(out[:], sum[4:20])
	return out
}

// AuthKeyAuxHash is the first 8 bytes of SHA1(authKey), used both as the
// dh_gen_* retry_id and as input to NewNonceHash.
func AuthKeyAuxHash(authKey []byte) [8]byte {
	sum := sha1.Sum(authKey)
	var out [8]byte
	copy(out[:], sum[0:8])
	return out
}

// ServerSaltFromNonces derives the initial server_salt at handshake
// completion: new_nonce[0:8] XOR server_nonce[0:8], each read as a
// little-endian i64.
func ServerSaltFromNonces(newNonce [32]byte, serverNonce [16]byte) int64 {
	a := binary.LittleEndian.Uint64(newNonce[0:8])
	b := binary.LittleEndian.Uint64(serverNonce[0:8])
	return int64(a ^ b)
}
