package buffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadFixedWidth(t *testing.T) {
	b := NewByteBuffer(nil)
	b.WriteI32(-7)
	b.WriteU32(0xdeadbeef)
	b.WriteI64(-1234567890123)
	b.WriteU64(0x0102030405060708)
	b.WriteBool(true)
	b.WriteBool(false)

	b.Rewind()
	i32, err := b.ReadI32()
	require.NoError(t, err)
	require.Equal(t, int32(-7), i32)

	u32, err := b.ReadU32()
	require.NoError(t, err)
	require.Equal(t, uint32(0xdeadbeef), u32)

	i64, err := b.ReadI64()
	require.NoError(t, err)
	require.Equal(t, int64(-1234567890123), i64)

	u64, err := b.ReadU64()
	require.NoError(t, err)
	require.Equal(t, uint64(0x0102030405060708), u64)

	bt, err := b.ReadBool()
	require.NoError(t, err)
	require.True(t, bt)

	bf, err := b.ReadBool()
	require.NoError(t, err)
	require.False(t, bf)
}

func TestWriteReadBytesPadding(t *testing.T) {
	for _, n := range []int{0, 1, 3, 4, 253, 254, 300, 1 << 20} {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(i)
		}

		b := NewByteBuffer(nil)
		b.WriteBytes(data)
		require.Zero(t, len(b.Bytes())%4, "frame for len=%d must be 4-aligned", n)

		b.Rewind()
		out, err := b.ReadBytes()
		require.NoError(t, err)
		require.Equal(t, data, out)
		require.Equal(t, b.Len(), b.Position(), "ReadBytes must consume the full padded frame")
	}
}

func TestVectorRoundTrip(t *testing.T) {
	b := NewByteBuffer(nil)
	ids := []int64{1, 2, 3, -4, 0x7fffffffffffffff}
	b.WriteI64Vector(ids)

	b.Rewind()
	out, err := b.ReadI64Vector()
	require.NoError(t, err)
	require.Equal(t, ids, out)
}

func TestReadTruncated(t *testing.T) {
	b := NewByteBuffer([]byte{1, 2, 3})
	_, err := b.ReadU64()
	require.ErrorIs(t, err, ErrTruncated)
}

func TestPoolTierSelectionAndCap(t *testing.T) {
	p := NewPool()

	small := p.Get(4)
	require.Equal(t, 0, small.tier)
	require.GreaterOrEqual(t, cap(small.raw), 8)
	p.Reuse(small)

	oversized := p.Get(1 << 21)
	require.Equal(t, -1, oversized.tier)
	p.Reuse(oversized) // no-op, not pooled

	// Exhaust the smallest tier's cap; excess Reuse calls must not panic or
	// grow the parked count past the cap.
	var bufs []*ByteBuffer
	for i := 0; i < tierCaps[0]+5; i++ {
		bufs = append(bufs, p.Get(4))
	}
	for _, buf := range bufs {
		p.Reuse(buf)
	}
	require.LessOrEqual(t, p.tiers[0].parked, tierCaps[0])
}
