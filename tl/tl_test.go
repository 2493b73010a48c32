package tl

import (
	"bytes"
	"compress/gzip"
	"testing"

	"github.com/mtprotogo/tgnet/buffer"
	"github.com/stretchr/testify/require"
)

func encode(o Object) *buffer.ByteBuffer {
	b := buffer.NewByteBuffer(nil)
	o.Encode(b)
	b.Rewind()
	return b
}

func TestMsgsAckRoundTrip(t *testing.T) {
	in := &MsgsAck{MsgIDs: []int64{1, 2, 3}}
	b := encode(in)

	out, err := Decode(b)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestMsgContainerRoundTrip(t *testing.T) {
	inner := encode(&Pong{MsgID: 10, PingID: 20})
	c := &MsgContainer{Messages: []*Message{
		{MsgID: 100, Seqno: 1, Bytes: int32(inner.Len()), Body: inner.Bytes()},
	}}
	b := encode(c)

	magic, err := b.ReadU32()
	require.NoError(t, err)
	require.Equal(t, MagicMsgContainer, magic)

	out, err := DecodeMsgContainer(b)
	require.NoError(t, err)
	require.Len(t, out.Messages, 1)
	require.Equal(t, int64(100), out.Messages[0].MsgID)

	innerBuf := buffer.NewByteBuffer(out.Messages[0].Body)
	pongObj, err := Decode(innerBuf)
	require.NoError(t, err)
	require.Equal(t, &Pong{MsgID: 10, PingID: 20}, pongObj)
}

func TestResPQRoundTrip(t *testing.T) {
	in := &ResPQ{
		Nonce:                       [16]byte{1, 2, 3},
		ServerNonce:                 [16]byte{4, 5, 6},
		PQ:                          []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, 0x01, 0x02},
		ServerPublicKeyFingerprints: []int64{0x0bc35f3509f7b7a5, 0x15ae5fa8b5529542},
	}
	b := encode(in)

	out, err := Decode(b)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestServerDHInnerDataRoundTrip(t *testing.T) {
	in := &ServerDHInnerData{
		Nonce:       [16]byte{9, 9, 9},
		ServerNonce: [16]byte{8, 8, 8},
		G:           3,
		DHPrime:     bytes.Repeat([]byte{0xFF}, 256),
		GA:          bytes.Repeat([]byte{0x01}, 256),
		ServerTime:  1234567,
	}
	b := encode(in)

	out, err := DecodeServerDHInnerData(b)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestDHGenOkRoundTrip(t *testing.T) {
	in := &DHGenOk{Nonce: [16]byte{1}, ServerNonce: [16]byte{2}, NewNonceHash1: [16]byte{3}}
	b := encode(in)

	out, err := Decode(b)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestGzipPackedInflatesTransparently(t *testing.T) {
	inner := encode(&Pong{MsgID: 7, PingID: 8})

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, err := zw.Write(inner.Bytes())
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	packed := &GzipPacked{PackedData: gz.Bytes()}
	b := encode(packed)

	out, err := Decode(b)
	require.NoError(t, err)
	require.Equal(t, &Pong{MsgID: 7, PingID: 8}, out)
}

func TestDecodeUnknownAsRawSurfacesUnparsed(t *testing.T) {
	b := buffer.NewByteBuffer(nil)
	body := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	b.WriteRaw(body)
	b.Rewind()

	obj, raw, err := DecodeUnknownAsRaw(0xdeadbeef, b, 4)
	require.NoError(t, err)
	require.Nil(t, obj)
	require.Equal(t, []byte{}, raw)
}

func TestInitConnectionEncodesProxyFlag(t *testing.T) {
	in := &InitConnection{
		APIID: 12345, DeviceModel: "test", SystemVersion: "1.0",
		AppVersion: "1.0", SystemLangCode: "en", LangPack: "", LangCode: "en",
		Proxy: &InputClientProxy{Address: "1.2.3.4", Port: 443},
		Query: encode(&MsgsAck{MsgIDs: []int64{1}}).Bytes(),
	}
	b := encode(in)

	magic, err := b.ReadU32()
	require.NoError(t, err)
	require.Equal(t, magicInitConnection, magic)

	flags, err := b.ReadU32()
	require.NoError(t, err)
	require.Equal(t, flagInputClientProxy, flags)
}
