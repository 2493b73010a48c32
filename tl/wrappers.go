package tl

import "github.com/mtprotogo/tgnet/buffer"

const (
	magicInvokeWithLayer uint32 = 0xda9b0d0d
	magicInvokeAfterMsg  uint32 = 0xcb9f372d
	magicInitConnection  uint32 = 0xc1cd5ea9
)

// flagInputClientProxy is bit 1 of initConnection's flags word: when set,
// the Proxy field is present.
const flagInputClientProxy uint32 = 1 << 1

// InvokeWithLayer is invokeWithLayer#da9b0d0d { layer:int, query:!X } = X.
// Query is the bare-encoded inner RPC (already including its own magic).
type InvokeWithLayer struct {
	Layer int32
	Query []byte
}

func (i *InvokeWithLayer) Encode(b *buffer.ByteBuffer) {
	b.WriteU32(magicInvokeWithLayer)
	b.WriteI32(i.Layer)
	b.WriteRaw(i.Query)
}

// InvokeAfterMsg is invokeAfterMsg#cb9f372d { msg_id:long, query:!X } = X.
type InvokeAfterMsg struct {
	MsgID int64
	Query []byte
}

func (i *InvokeAfterMsg) Encode(b *buffer.ByteBuffer) {
	b.WriteU32(magicInvokeAfterMsg)
	b.WriteI64(i.MsgID)
	b.WriteRaw(i.Query)
}

// InputClientProxy carries the local proxy endpoint reported to the
// server when initConnection's flag bit 1 is set.
type InputClientProxy struct {
	Address string
	Port    int32
}

func (p *InputClientProxy) encode(b *buffer.ByteBuffer) {
	b.WriteString(p.Address)
	b.WriteI32(p.Port)
}

// InitConnection is initConnection#c1cd5ea9, the envelope every session's
// first RPC is wrapped in so the server can log client/app metadata.
type InitConnection struct {
	APIID          int32
	DeviceModel    string
	SystemVersion  string
	AppVersion     string
	SystemLangCode string
	LangPack       string
	LangCode       string
	Proxy          *InputClientProxy // present iff flag bit 1 is set
	Query          []byte
}

func (i *InitConnection) Encode(b *buffer.ByteBuffer) {
	b.WriteU32(magicInitConnection)

	var flags uint32
	if i.Proxy != nil {
		flags |= flagInputClientProxy
	}
	b.WriteU32(flags)

	b.WriteI32(i.APIID)
	b.WriteString(i.DeviceModel)
	b.WriteString(i.SystemVersion)
	b.WriteString(i.AppVersion)
	b.WriteString(i.SystemLangCode)
	b.WriteString(i.LangPack)
	b.WriteString(i.LangCode)
	if i.Proxy != nil {
		i.Proxy.encode(b)
	}
	b.WriteRaw(i.Query)
}
