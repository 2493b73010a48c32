package buffer

import (
	"encoding/binary"
	"errors"

	"github.com/valyala/bytebufferpool"
)

var (
	// ErrTruncated is returned by a Read* accessor when fewer bytes remain
	// than the primitive requires.
	ErrTruncated = errors.New("buffer: truncated read")
	// ErrOverflow is returned when a decoded length prefix is implausible
	// (negative, or larger than the remaining buffer could ever hold).
	ErrOverflow = errors.New("buffer: length overflow")
)

const (
	boolTrueMagic  uint32 = 0x997275b5
	boolFalseMagic uint32 = 0xbc799737
	vectorMagic    uint32 = 0x1cb5c415
)

// ByteBuffer is a growable, position-tracked byte sequence with TL-wire
// primitive accessors. It matches Telegram's little-endian MTProto binary
// encoding exactly: fixed-width ints, length-prefixed strings/bytes padded
// to a 4-byte boundary, and Vector<T> framing.
type ByteBuffer struct {
	raw []byte
	pos int

	// pooled/tier are set when this ByteBuffer was handed out by a Pool;
	// Reuse clears them after returning raw's storage to the pool.
	pooled *bytebufferpool.ByteBuffer
	tier   int
}

// NewByteBuffer wraps an existing slice for reading (pos=0) or appends to
// it for writing, without involving a Pool.
func NewByteBuffer(backing []byte) *ByteBuffer {
	return &ByteBuffer{raw: backing, tier: -1}
}

// Bytes returns the written/remaining backing slice.
func (b *ByteBuffer) Bytes() []byte { return b.raw }

// Len returns the total number of bytes currently held.
func (b *ByteBuffer) Len() int { return len(b.raw) }

// Position returns the current read/write cursor.
func (b *ByteBuffer) Position() int { return b.pos }

// Remaining returns how many bytes are left to read from pos.
func (b *ByteBuffer) Remaining() int { return len(b.raw) - b.pos }

// Rewind resets the read cursor to the start.
func (b *ByteBuffer) Rewind() { b.pos = 0 }

// Skip advances the read cursor by n bytes.
func (b *ByteBuffer) Skip(n int) error {
	if n < 0 || n > b.Remaining() {
		return ErrTruncated
	}
	b.pos += n
	return nil
}

func (b *ByteBuffer) need(n int) error {
	if n < 0 || n > b.Remaining() {
		return ErrTruncated
	}
	return nil
}

// --- fixed-width writers ---

func (b *ByteBuffer) WriteByte(v byte) { b.raw = append(b.raw, v) }

func (b *ByteBuffer) WriteI32(v int32) { b.WriteU32(uint32(v)) }

func (b *ByteBuffer) WriteU32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	b.raw = append(b.raw, tmp[:]...)
}

func (b *ByteBuffer) WriteI64(v int64) { b.WriteU64(uint64(v)) }

func (b *ByteBuffer) WriteU64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	b.raw = append(b.raw, tmp[:]...)
}

// WriteInt128 writes a 16-byte value verbatim (nonces are opaque, not
// numeric, so no byte-order conversion applies).
func (b *ByteBuffer) WriteInt128(v [16]byte) { b.raw = append(b.raw, v[:]...) }

// WriteInt256 writes a 32-byte value verbatim.
func (b *ByteBuffer) WriteInt256(v [32]byte) { b.raw = append(b.raw, v[:]...) }

func (b *ByteBuffer) WriteBool(v bool) {
	if v {
		b.WriteU32(boolTrueMagic)
	} else {
		b.WriteU32(boolFalseMagic)
	}
}

// WriteBytes writes a TL `bytes`/`string`: a length prefix (1 byte if
// len<=253, else 0xFE + 24-bit LE length) followed by the payload and zero
// padding so (prefix+payload) % 4 == 0.
func (b *ByteBuffer) WriteBytes(data []byte) {
	n := len(data)
	start := len(b.raw)
	if n <= 253 {
		b.raw = append(b.raw, byte(n))
	} else {
		b.raw = append(b.raw, 0xFE, byte(n), byte(n>>8), byte(n>>16))
	}
	b.raw = append(b.raw, data...)
	written := len(b.raw) - start
	pad := (4 - written%4) % 4
	for i := 0; i < pad; i++ {
		b.raw = append(b.raw, 0)
	}
}

// WriteString writes a TL `string` — identical wire shape to WriteBytes.
func (b *ByteBuffer) WriteString(s string) { b.WriteBytes([]byte(s)) }

// WriteVectorHeader writes the Vector<T> magic and element count; the
// caller encodes the count elements immediately afterward.
func (b *ByteBuffer) WriteVectorHeader(count int) {
	b.WriteU32(vectorMagic)
	b.WriteI32(int32(count))
}

// WriteRaw appends bytes verbatim with no framing (used for bare
// sub-messages inside containers).
func (b *ByteBuffer) WriteRaw(data []byte) { b.raw = append(b.raw, data...) }

// --- fixed-width readers ---

func (b *ByteBuffer) ReadI32() (int32, error) {
	v, err := b.ReadU32()
	return int32(v), err
}

func (b *ByteBuffer) ReadU32() (uint32, error) {
	if err := b.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(b.raw[b.pos:])
	b.pos += 4
	return v, nil
}

func (b *ByteBuffer) ReadI64() (int64, error) {
	v, err := b.ReadU64()
	return int64(v), err
}

func (b *ByteBuffer) ReadU64() (uint64, error) {
	if err := b.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(b.raw[b.pos:])
	b.pos += 8
	return v, nil
}

func (b *ByteBuffer) ReadInt128() ([16]byte, error) {
	var out [16]byte
	if err := b.need(16); err != nil {
		return out, err
	}
	copy(out[:], b.raw[b.pos:])
	b.pos += 16
	return out, nil
}

func (b *ByteBuffer) ReadInt256() ([32]byte, error) {
	var out [32]byte
	if err := b.need(32); err != nil {
		return out, err
	}
	copy(out[:], b.raw[b.pos:])
	b.pos += 32
	return out, nil
}

func (b *ByteBuffer) ReadBool() (bool, error) {
	magic, err := b.ReadU32()
	if err != nil {
		return false, err
	}
	switch magic {
	case boolTrueMagic:
		return true, nil
	case boolFalseMagic:
		return false, nil
	default:
		return false, ErrOverflow
	}
}

// ReadBytes reads a TL `bytes`/`string`, including its padding.
func (b *ByteBuffer) ReadBytes() ([]byte, error) {
	if err := b.need(1); err != nil {
		return nil, err
	}
	start := b.pos
	n := int(b.raw[b.pos])
	prefixLen := 1
	if n == 0xFE {
		if err := b.need(4); err != nil {
			return nil, err
		}
		n = int(b.raw[b.pos+1]) | int(b.raw[b.pos+2])<<8 | int(b.raw[b.pos+3])<<16
		prefixLen = 4
	}
	if n < 0 {
		return nil, ErrOverflow
	}
	b.pos += prefixLen
	if err := b.need(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b.raw[b.pos:b.pos+n])
	b.pos += n

	written := b.pos - start
	pad := (4 - written%4) % 4
	if err := b.Skip(pad); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *ByteBuffer) ReadString() (string, error) {
	raw, err := b.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// ReadVectorHeader reads and validates the Vector<T> magic, returning the
// element count for the caller to decode.
func (b *ByteBuffer) ReadVectorHeader() (int, error) {
	magic, err := b.ReadU32()
	if err != nil {
		return 0, err
	}
	if magic != vectorMagic {
		return 0, ErrOverflow
	}
	count, err := b.ReadI32()
	if err != nil {
		return 0, err
	}
	if count < 0 {
		return 0, ErrOverflow
	}
	return int(count), nil
}

// ReadRaw reads n raw bytes with no framing.
func (b *ByteBuffer) ReadRaw(n int) ([]byte, error) {
	if err := b.need(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b.raw[b.pos:b.pos+n])
	b.pos += n
	return out, nil
}

// ReadI64Vector reads Vector<i64>, used by msgs_ack and future_salts.
func (b *ByteBuffer) ReadI64Vector() ([]int64, error) {
	count, err := b.ReadVectorHeader()
	if err != nil {
		return nil, err
	}
	out := make([]int64, count)
	for i := range out {
		v, err := b.ReadI64()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// WriteI64Vector writes Vector<i64>.
func (b *ByteBuffer) WriteI64Vector(v []int64) {
	b.WriteVectorHeader(len(v))
	for _, x := range v {
		b.WriteI64(x)
	}
}
