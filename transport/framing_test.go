package transport

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"testing"

	"github.com/stretchr/testify/require"
)

// peerMirror returns a codec whose decStream is a fresh AES-CTR stream
// keyed identically to the encoder's encStream (derived from the header's
// plaintext R[8:56] window and the secret) and advanced past the 64-byte
// header, so it reads the encoder's output the way the peer does.
func peerMirror(t *testing.T, mode Mode, secret, header []byte) *obfuscationCodec {
	tail, _ := secretBytesForDerivation(mode, secret)
	key, iv, err := deriveKeyIV(header[8:56], tail)
	require.NoError(t, err)
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	stream := cipher.NewCTR(block, iv)
	skip := make([]byte, 64)
	stream.XORKeyStream(skip, skip)
	return &obfuscationCodec{decStream: stream}
}

func TestFrameRoundTripAllModesAndSizes(t *testing.T) {
	sizes := []int{1, 2, 127, 128, 2044, 16384}
	modes := []Mode{ModeEF, ModeDD, ModeTLS}

	for _, mode := range modes {
		for _, size := range sizes {
			secret := []byte{0x01}
			if mode == ModeDD {
				secret = []byte{0xDD, 0x02}
			} else if mode == ModeTLS {
				secret = []byte{0xEE, 0x03}
			}
			header, codec, err := deriveHandshakeHeader(mode, secret, 2)
			require.NoError(t, err)

			payload := bytes.Repeat([]byte{0x42}, size)
			var padding []byte
			if mode == ModeEF {
				for (size+len(padding))%4 != 0 {
					padding = append(padding, 0)
				}
			}
			frame, err := codec.EncodeFrame(mode, payload, padding)
			require.NoError(t, err)

			// Decode using a decoder whose decStream is keyed identically
			// to the encoder's encStream (simulating the peer side, which
			// observes the encoder's output as its own ciphertext input).
			mirror := peerMirror(t, mode, secret, header)
			fr := NewFrameReader(mode, mirror)
			bodies, acks, err := fr.Feed(frame)
			require.NoError(t, err)
			require.Empty(t, acks)
			require.Len(t, bodies, 1)
			// The length prefix covers payload and padding alike, so the
			// decoded body is the payload followed by its padding.
			require.Equal(t, append(payload, padding...), bodies[0])
		}
	}
}

func TestFrameReaderHandlesSplitReads(t *testing.T) {
	secret := []byte{0x01}
	_, codec, err := deriveHandshakeHeader(ModeEF, secret, 2)
	require.NoError(t, err)

	payload := bytes.Repeat([]byte{0x07}, 256)
	frame, err := codec.EncodeFrame(ModeEF, payload, nil)
	require.NoError(t, err)

	mirror := &obfuscationCodec{decStream: codec.encStream}
	fr := NewFrameReader(ModeEF, mirror)

	chunks := [][]byte{frame[:8], frame[8:24], frame[24:]}
	var allBodies [][]byte
	for _, c := range chunks {
		bodies, acks, err := fr.Feed(c)
		require.NoError(t, err)
		require.Empty(t, acks)
		allBodies = append(allBodies, bodies...)
	}
	require.Len(t, allBodies, 1)
	require.Equal(t, payload, allBodies[0])
}

func TestFrameReaderExtractsQuickAckEF(t *testing.T) {
	secret := []byte{0x01}
	_, codec, err := deriveHandshakeHeader(ModeEF, secret, 2)
	require.NoError(t, err)

	ackWord := make([]byte, 4)
	ackWord[0] = 0x80
	ackWord[1] = 0x01
	ciphertext := make([]byte, 4)
	codec.encStream.XORKeyStream(ciphertext, ackWord)

	mirror := &obfuscationCodec{decStream: codec.encStream}
	fr := NewFrameReader(ModeEF, mirror)
	bodies, acks, err := fr.Feed(ciphertext)
	require.NoError(t, err)
	require.Empty(t, bodies)
	require.Len(t, acks, 1)
}

func TestModeForSecret(t *testing.T) {
	require.Equal(t, ModeEF, ModeForSecret(nil))
	require.Equal(t, ModeEF, ModeForSecret([]byte{0x01}))
	require.Equal(t, ModeDD, ModeForSecret([]byte{0xDD, 0x02}))
	require.Equal(t, ModeTLS, ModeForSecret([]byte{0xEE, 0x03}))
}

func TestEncodeFrameRejectsMisalignedEF(t *testing.T) {
	_, codec, err := deriveHandshakeHeader(ModeEF, []byte{0x01}, 2)
	require.NoError(t, err)
	_, err = codec.EncodeFrame(ModeEF, []byte{1, 2, 3}, nil)
	require.ErrorIs(t, err, ErrFrameMisaligned)
}

func TestWriteTLSPreludeShape(t *testing.T) {
	prelude, err := writeTLSPrelude(517)
	require.NoError(t, err)
	require.Equal(t, byte(0x16), prelude[0])
	require.Equal(t, byte(0x03), prelude[1])
	require.Equal(t, byte(0x01), prelude[2])
	require.Len(t, prelude, 5+517)
}
