package mtcrypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProductionKeyRingParsesAllKeys(t *testing.T) {
	kr, err := ProductionKeyRing()
	require.NoError(t, err)
	require.Len(t, kr.keys, len(productionFingerprints))

	for i, fp := range productionFingerprints {
		require.Equal(t, fp, kr.keys[i].Fingerprint)
		require.NotNil(t, kr.keys[i].Key)
	}
}

func TestKeyRingSelectKey(t *testing.T) {
	kr, err := ProductionKeyRing()
	require.NoError(t, err)

	offered := []int64{0x1111111111111111, int64(productionFingerprints[2])}
	sel, err := kr.SelectKey(offered)
	require.NoError(t, err)
	require.Equal(t, productionFingerprints[2], sel.Fingerprint)

	_, err = kr.SelectKey([]int64{0x2222222222222222})
	require.ErrorIs(t, err, ErrNoMatchingKey)
}

// TestEncryptWithTelegramPaddingShape decrypts with a freshly generated
// keypair's private exponent (bypassing crypto/rsa's own padding schemes,
// since raw modexp is what the wire format uses) and checks the recovered
// block has the SHA1(data) || data || padding shape EncryptWithTelegramPadding
// is supposed to produce.
func TestEncryptWithTelegramPaddingShape(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	data := []byte("p_q_inner_data payload for a handshake test")
	ct, err := EncryptWithTelegramPadding(&priv.PublicKey, data)
	require.NoError(t, err)
	require.Len(t, ct, 256)

	c := new(big.Int).SetBytes(ct)
	m := new(big.Int).Exp(c, priv.D, priv.N)
	plain := m.Bytes()
	if len(plain) < 255 {
		padded := make([]byte, 255)
		copy(padded[255-len(plain):], plain)
		plain = padded
	}

	sum := sha1.Sum(data)
	require.Equal(t, sum[:], plain[0:20])
	require.Equal(t, data, plain[20:20+len(data)])
}

func TestEncryptWithTelegramPaddingRejectsOversizedData(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	_, err = EncryptWithTelegramPadding(&priv.PublicKey, make([]byte, 300))
	require.ErrorIs(t, err, ErrPaddedTooLarge)
}
