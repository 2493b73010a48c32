// Package tl implements the MTProto TL (Type Language) wire constructors
// the core needs to send and parse: service-layer framing (containers,
// acks, rpc results) and the handshake-layer DH exchange objects. Each
// constructor is a plain Go struct with an Encode method; decoding goes
// through a magic-keyed dispatch table rather than the reference
// implementation's virtual TLObject hierarchy (see DESIGN.md).
package tl

import (
	"bytes"
	"compress/gzip"
	"errors"
	"io"

	"github.com/mtprotogo/tgnet/buffer"
)

// ErrUnknownConstructor is returned when a magic has no registered decoder.
var ErrUnknownConstructor = errors.New("tl: unknown constructor")

// Object is any TL value this package knows how to serialize.
type Object interface {
	Encode(b *buffer.ByteBuffer)
}

// DecodeFunc parses one object's fields (magic already consumed) from b.
type DecodeFunc func(b *buffer.ByteBuffer) (Object, error)

var registry = map[uint32]DecodeFunc{}

// register is called from each constructor file's init to populate the
// magic dispatch table exactly once.
func register(magic uint32, fn DecodeFunc) {
	if _, dup := registry[magic]; dup {
		panic("tl: duplicate constructor registration")
	}
	registry[magic] = fn
}

// Decode reads a magic and dispatches to its registered decoder.
// gzip_packed is transparently inflated and the inner object returned in
// its place, per spec.md §4.2.
func Decode(b *buffer.ByteBuffer) (Object, error) {
	magic, err := b.ReadU32()
	if err != nil {
		return nil, err
	}

	if magic == magicGzipPacked {
		return decodeGzipPackedBody(b)
	}

	fn, ok := registry[magic]
	if !ok {
		return nil, ErrUnknownConstructor
	}
	return fn(b)
}

// DecodeUnknownAsRaw behaves like Decode but returns (nil, rawBytes, nil)
// instead of ErrUnknownConstructor when the magic isn't registered. Used
// inside msg_container bodies, where an unrecognized constructor must be
// surfaced to the application layer as "unparsed" rather than treated as
// a hard protocol error (spec.md §4.2).
func DecodeUnknownAsRaw(magic uint32, b *buffer.ByteBuffer, bodyLen int) (Object, []byte, error) {
	fn, ok := registry[magic]
	if !ok {
		raw, err := b.ReadRaw(bodyLen - 4)
		if err != nil {
			return nil, nil, err
		}
		return nil, raw, nil
	}
	obj, err := fn(b)
	return obj, nil, err
}

func decodeGzipPackedBody(b *buffer.ByteBuffer) (Object, error) {
	packed, err := b.ReadBytes()
	if err != nil {
		return nil, err
	}
	zr, err := gzip.NewReader(bytes.NewReader(packed))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	inflated, err := io.ReadAll(zr)
	if err != nil {
		return nil, err
	}
	return Decode(buffer.NewByteBuffer(inflated))
}
