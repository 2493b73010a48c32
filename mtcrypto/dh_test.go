package mtcrypto

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateDHPrimeAcceptsKnownGoodPrime(t *testing.T) {
	require.NoError(t, ValidateDHPrime(knownGoodPrime, 3))
}

func TestValidateDHPrimeRejectsWrongBitLength(t *testing.T) {
	small := big.NewInt(1234567891)
	require.ErrorIs(t, ValidateDHPrime(small, 3), ErrBadPrime)
}

func TestValidateDHPrimeRejectsBadGenerator(t *testing.T) {
	require.ErrorIs(t, ValidateDHPrime(knownGoodPrime, 99), ErrBadGenerator)
}

func TestValidateGA(t *testing.T) {
	p := knownGoodPrime

	require.ErrorIs(t, ValidateGA(big.NewInt(1), p), ErrBadGA)
	require.ErrorIs(t, ValidateGA(new(big.Int).Sub(p, big.NewInt(1)), p), ErrBadGA)

	lowerBound := new(big.Int).Lsh(big.NewInt(1), 2048-64)
	require.ErrorIs(t, ValidateGA(new(big.Int).Sub(lowerBound, big.NewInt(1)), p), ErrBadGA)

	mid := new(big.Int).Rsh(p, 1)
	require.NoError(t, ValidateGA(mid, p))
}

func TestFactorPQ(t *testing.T) {
	cases := []struct {
		p, q uint64
	}{
		{p: 3, q: 5},
		{p: 1000003, q: 1000033},
		{p: 65537, q: 4294967291},
	}

	for _, c := range cases {
		pq := c.p * c.q
		gotP, gotQ, err := FactorPQ(pq)
		require.NoError(t, err)
		require.Equal(t, c.p, gotP)
		require.Equal(t, c.q, gotQ)
	}
}

func TestFactorPQRejectsTrivial(t *testing.T) {
	_, _, err := FactorPQ(1)
	require.ErrorIs(t, err, ErrBadPQ)
}

func TestLeftPad256(t *testing.T) {
	v := big.NewInt(255)
	out := LeftPad256(v)
	require.Len(t, out, 256)
	require.Equal(t, byte(255), out[255])
	for _, b := range out[:255] {
		require.Equal(t, byte(0), b)
	}
}

func TestRandomExponentFitsIn2048Bits(t *testing.T) {
	v, err := RandomExponent()
	require.NoError(t, err)
	require.True(t, v.BitLen() > 0)
	require.True(t, v.BitLen() <= 2048)
}
