package mtcrypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"math/big"
)

var (
	ErrNoMatchingKey   = errors.New("mtcrypto: no RSA key matches the server's fingerprints")
	ErrPaddedTooLarge  = errors.New("mtcrypto: inner payload too large for RSA padding")
	ErrCiphertextShape = errors.New("mtcrypto: decrypted RSA block has the wrong shape")
)

// PublicKey pairs a parsed RSA public key with its Telegram fingerprint:
// the low 64 bits of SHA1 over the key's TL-serialized (n, e) pair.
type PublicKey struct {
	Fingerprint uint64
	Key         *rsa.PublicKey
}

// productionKeyPEMs holds the four RSA public keys Telegram's production
// backend currently advertises, verbatim (PKCS#1 "RSA PUBLIC KEY" blocks).
// These are a wire interoperability contract, not a design choice.
var productionKeyPEMs = []string{
	"-----BEGIN RSA PUBLIC KEY-----\n" +
		"MIIBCgKCAQEAruw2yP/BCcsJliRoW5eBVBVle9dtjJw+OYED160Wybum9SXtBBLX\n" +
		"riwt4rROd9csv0t0OHCaTmRqBcQ0J8fxhN6/cpR1GWgOZRUAiQxoMnlt0R93LCX/\n" +
		"j1dnVa/gVbCjdSxpbrfY2g2L4frzjJvdl84Kd9ORYjDEAyFnEA7dD556OptgLQQ2\n" +
		"e2iVNq8NZLYTzLp5YpOdO1doK+ttrltggTCy5SrKeLoCPPbOgGsdxJxyz5KKcZnS\n" +
		"Lj16yE5HvJQn0CNpRdENvRUXe6tBP78O39oJ8BTHp9oIjd6XWXAsp2CvK45Ol8wF\n" +
		"XGF710w9lwCGNbmNxNYhtIkdqfsEcwR5JwIDAQAB\n" +
		"-----END RSA PUBLIC KEY-----\n",
	"-----BEGIN RSA PUBLIC KEY-----\n" +
		"MIIBCgKCAQEAvfLHfYH2r9R70w8prHblWt/nDkh+XkgpflqQVcnAfSuTtO05lNPs\n" +
		"pQmL8Y2XjVT4t8cT6xAkdgfmmvnvRPOOKPi0OfJXoRVylFzAQG/j83u5K3kRLbae\n" +
		"7fLccVhKZhY46lvsueI1hQdLgNV9n1cQ3TDS2pQOCtovG4eDl9wacrXOJTG2990V\n" +
		"jgnIKNA0UMoP+KF03qzryqIt3oTvZq03DyWdGK+AZjgBLaDKSnC6qD2cFY81UryR\n" +
		"WOab8zKkWAnhw2kFpcqhI0jdV5QaSCExvnsjVaX0Y1N0870931/5Jb9ICe4nweZ9\n" +
		"kSDF/gip3kWLG0o8XQpChDfyvsqB9OLV/wIDAQAB\n" +
		"-----END RSA PUBLIC KEY-----\n",
	"-----BEGIN RSA PUBLIC KEY-----\n" +
		"MIIBCgKCAQEAs/ditzm+mPND6xkhzwFIz6J/968CtkcSE/7Z2qAJiXbmZ3UDJPGr\n" +
		"zqTDHkO30R8VeRM/Kz2f4nR05GIFiITl4bEjvpy7xqRDspJcCFIOcyXm8abVDhF+\n" +
		"th6knSU0yLtNKuQVP6voMrnt9MV1X92LGZQLgdHZbPQz0Z5qIpaKhdyA8DEvWWvS\n" +
		"Uwwc+yi1/gGaybwlzZwqXYoPOhwMebzKUk0xW14htcJrRrq+PXXQbRzTMynseCoP\n" +
		"Ioke0dtCodbA3qQxQovE16q9zz4Otv2k4j63cz53J+mhkVWAeWxVGI0lltJmWtEY\n" +
		"K6er8VqqWot3nqmWMXogrgRLggv/NbbooQIDAQAB\n" +
		"-----END RSA PUBLIC KEY-----\n",
	"-----BEGIN RSA PUBLIC KEY-----\n" +
		"MIIBCgKCAQEAvmpxVY7ld/8DAjz6F6q05shjg8/4p6047bn6/m8yPy1RBsvIyvuD\n" +
		"uGnP/RzPEhzXQ9UJ5Ynmh2XJZgHoE9xbnfxL5BXHplJhMtADXKM9bWB11PU1Eioc\n" +
		"3+AXBB8QiNFBn2XI5UkO5hPhbb9mJpjA9Uhw8EdfqJP8QetVsI/xrCEbwEXe0xvi\n" +
		"fRLJbY08/Gp66KpQvy7g8w7VB8wlgePexW3pT13Ap6vuC+mQuJPyiHvSxjEKHgqe\n" +
		"Pji9NP3tJUFQjcECqcm0yV7/2d0t/pbCm+ZH1sadZspQCEPPrtbkQBlvHb4OLiIW\n" +
		"PGHKSMeRFvp3IWcmdJqXahxLCUS1Eh6MAQIDAQAB\n" +
		"-----END RSA PUBLIC KEY-----\n",
}

// productionFingerprints are each key's well-known fingerprint, in the
// same order as productionKeyPEMs.
var productionFingerprints = []uint64{
	0x0bc35f3509f7b7a5,
	0x15ae5fa8b5529542,
	0xaeae98e13cd7f94f,
	0x5a181b2235057d98,
}

// ProductionKeyRing returns the fixed RSA public keys the client trusts
// for ordinary (non-CDN) datacenters.
func ProductionKeyRing() (*KeyRing, error) {
	kr := &KeyRing{}
	for i, p := range productionKeyPEMs {
		key, err := parsePKCS1PEM(p)
		if err != nil {
			return nil, err
		}
		kr.keys = append(kr.keys, PublicKey{Fingerprint: productionFingerprints[i], Key: key})
	}
	return kr, nil
}

func parsePKCS1PEM(p string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(p))
	if block == nil {
		return nil, errors.New("mtcrypto: invalid PEM block")
	}
	return x509.ParsePKCS1PublicKey(block.Bytes)
}

// KeyRing is a mutable set of known RSA public keys, keyed by fingerprint.
// Production datacenters use the fixed ProductionKeyRing; CDN datacenters
// populate one at runtime from help.getCdnConfig, per spec.md §4.5 step 1.
type KeyRing struct {
	keys []PublicKey
}

// AddKey registers an additional key (used for CDN key tables).
func (kr *KeyRing) AddKey(fingerprint uint64, key *rsa.PublicKey) {
	kr.keys = append(kr.keys, PublicKey{Fingerprint: fingerprint, Key: key})
}

// SelectKey intersects the server-offered fingerprints with this ring and
// returns the first match, or ErrNoMatchingKey if none intersect.
func (kr *KeyRing) SelectKey(serverFingerprints []int64) (PublicKey, error) {
	for _, want := range serverFingerprints {
		for _, have := range kr.keys {
			if uint64(want) == have.Fingerprint {
				return have, nil
			}
		}
	}
	return PublicKey{}, ErrNoMatchingKey
}

// EncryptWithTelegramPadding implements the RSA step of req_DH_params: the
// inner payload is padded to exactly 255 bytes as
// SHA1(data) || data || random_padding, then raw-RSA-exponentiated
// (no OAEP/PKCS1) and left-padded with zeros to 256 bytes.
func EncryptWithTelegramPadding(pub *rsa.PublicKey, data []byte) ([]byte, error) {
	const blockLen = 255
	sum := sha1.Sum(data)

	if len(sum)+len(data) > blockLen {
		return nil, ErrPaddedTooLarge
	}
	padLen := blockLen - len(sum) - len(data)

	plain := make([]byte, 0, blockLen)
	plain = append(plain, sum[:]...)
	plain = append(plain, data...)
	padding := make([]byte, padLen)
	if _, err := rand.Read(padding); err != nil {
		return nil, err
	}
	plain = append(plain, padding...)

	m := new(big.Int).SetBytes(plain)
	e := big.NewInt(int64(pub.E))
	c := new(big.Int).Exp(m, e, pub.N)

	out := make([]byte, 256)
	cb := c.Bytes()
	copy(out[256-len(cb):], cb)
	return out, nil
}
