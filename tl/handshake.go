package tl

import "github.com/mtprotogo/tgnet/buffer"

const (
	magicReqPqMulti          uint32 = 0xbe7e8ef1
	magicResPQ               uint32 = 0x05162463
	magicPQInnerDataDC       uint32 = 0xa9f55f95
	magicPQInnerDataTempDC   uint32 = 0x56fddf88
	magicReqDHParams         uint32 = 0xd712e4be
	magicServerDHParamsOk    uint32 = 0xd0e8075c
	magicServerDHParamsFail  uint32 = 0x79cb045d
	magicServerDHInnerData   uint32 = 0xb5890dba
	magicClientDHInnerData   uint32 = 0x6643b654
	magicSetClientDHParams   uint32 = 0xf5045f1f
	magicDHGenOk             uint32 = 0x3bcbf734
	magicDHGenRetry          uint32 = 0x46dc1fb9
	magicDHGenFail           uint32 = 0xa69dae02
	magicBindAuthKeyInner    uint32 = 0x75a3f765
	magicAuthBindTempAuthKey uint32 = 0xcdd42a05
)

func init() {
	register(magicResPQ, decodeResPQ)
	register(magicServerDHParamsOk, decodeServerDHParamsOk)
	register(magicServerDHParamsFail, decodeServerDHParamsFail)
	register(magicDHGenOk, decodeDHGenOk)
	register(magicDHGenRetry, decodeDHGenRetry)
	register(magicDHGenFail, decodeDHGenFail)
}

// ReqPqMulti is req_pq_multi#be7e8ef1, the handshake's first message.
type ReqPqMulti struct {
	Nonce [16]byte
}

func (r *ReqPqMulti) Encode(b *buffer.ByteBuffer) {
	b.WriteU32(magicReqPqMulti)
	b.WriteInt128(r.Nonce)
}

// ResPQ is resPQ#05162463, the server's reply to req_pq_multi.
type ResPQ struct {
	Nonce                       [16]byte
	ServerNonce                 [16]byte
	PQ                          []byte
	ServerPublicKeyFingerprints []int64
}

func (r *ResPQ) Encode(b *buffer.ByteBuffer) {
	b.WriteU32(magicResPQ)
	b.WriteInt128(r.Nonce)
	b.WriteInt128(r.ServerNonce)
	b.WriteBytes(r.PQ)
	b.WriteI64Vector(r.ServerPublicKeyFingerprints)
}

func decodeResPQ(b *buffer.ByteBuffer) (Object, error) {
	nonce, err := b.ReadInt128()
	if err != nil {
		return nil, err
	}
	serverNonce, err := b.ReadInt128()
	if err != nil {
		return nil, err
	}
	pq, err := b.ReadBytes()
	if err != nil {
		return nil, err
	}
	fps, err := b.ReadI64Vector()
	if err != nil {
		return nil, err
	}
	return &ResPQ{Nonce: nonce, ServerNonce: serverNonce, PQ: pq, ServerPublicKeyFingerprints: fps}, nil
}

// PQInnerDataDC is p_q_inner_data_dc#a9f55f95, the plaintext payload
// encrypted under the server's RSA key for a permanent-key handshake.
type PQInnerDataDC struct {
	PQ          []byte
	P           []byte
	Q           []byte
	Nonce       [16]byte
	ServerNonce [16]byte
	NewNonce    [32]byte
	DC          int32
}

func (d *PQInnerDataDC) Encode(b *buffer.ByteBuffer) {
	b.WriteU32(magicPQInnerDataDC)
	b.WriteBytes(d.PQ)
	b.WriteBytes(d.P)
	b.WriteBytes(d.Q)
	b.WriteInt128(d.Nonce)
	b.WriteInt128(d.ServerNonce)
	b.WriteInt256(d.NewNonce)
	b.WriteI32(d.DC)
}

// PQInnerDataTempDC is p_q_inner_data_temp_dc#56fddf88, used instead of
// PQInnerDataDC when negotiating a temporary (media or generic-temp) key.
type PQInnerDataTempDC struct {
	PQ          []byte
	P           []byte
	Q           []byte
	Nonce       [16]byte
	ServerNonce [16]byte
	NewNonce    [32]byte
	DC          int32
	ExpiresIn   int32
}

func (d *PQInnerDataTempDC) Encode(b *buffer.ByteBuffer) {
	b.WriteU32(magicPQInnerDataTempDC)
	b.WriteBytes(d.PQ)
	b.WriteBytes(d.P)
	b.WriteBytes(d.Q)
	b.WriteInt128(d.Nonce)
	b.WriteInt128(d.ServerNonce)
	b.WriteInt256(d.NewNonce)
	b.WriteI32(d.DC)
	b.WriteI32(d.ExpiresIn)
}

// ReqDHParams is req_DH_params#d712e4be.
type ReqDHParams struct {
	Nonce                [16]byte
	ServerNonce          [16]byte
	P                    []byte
	Q                    []byte
	PublicKeyFingerprint int64
	EncryptedData        []byte
}

func (r *ReqDHParams) Encode(b *buffer.ByteBuffer) {
	b.WriteU32(magicReqDHParams)
	b.WriteInt128(r.Nonce)
	b.WriteInt128(r.ServerNonce)
	b.WriteBytes(r.P)
	b.WriteBytes(r.Q)
	b.WriteI64(r.PublicKeyFingerprint)
	b.WriteBytes(r.EncryptedData)
}

// ServerDHParamsOk is server_DH_params_ok#d0e8075c.
type ServerDHParamsOk struct {
	Nonce           [16]byte
	ServerNonce     [16]byte
	EncryptedAnswer []byte
}

func (s *ServerDHParamsOk) Encode(b *buffer.ByteBuffer) {
	b.WriteU32(magicServerDHParamsOk)
	b.WriteInt128(s.Nonce)
	b.WriteInt128(s.ServerNonce)
	b.WriteBytes(s.EncryptedAnswer)
}

func decodeServerDHParamsOk(b *buffer.ByteBuffer) (Object, error) {
	nonce, err := b.ReadInt128()
	if err != nil {
		return nil, err
	}
	serverNonce, err := b.ReadInt128()
	if err != nil {
		return nil, err
	}
	answer, err := b.ReadBytes()
	if err != nil {
		return nil, err
	}
	return &ServerDHParamsOk{Nonce: nonce, ServerNonce: serverNonce, EncryptedAnswer: answer}, nil
}

// ServerDHParamsFail is server_DH_params_fail#79cb045d.
type ServerDHParamsFail struct {
	Nonce        [16]byte
	ServerNonce  [16]byte
	NewNonceHash [16]byte
}

func (s *ServerDHParamsFail) Encode(b *buffer.ByteBuffer) {
	b.WriteU32(magicServerDHParamsFail)
	b.WriteInt128(s.Nonce)
	b.WriteInt128(s.ServerNonce)
	b.WriteInt128(s.NewNonceHash)
}

func decodeServerDHParamsFail(b *buffer.ByteBuffer) (Object, error) {
	nonce, err := b.ReadInt128()
	if err != nil {
		return nil, err
	}
	serverNonce, err := b.ReadInt128()
	if err != nil {
		return nil, err
	}
	hash, err := b.ReadInt128()
	if err != nil {
		return nil, err
	}
	return &ServerDHParamsFail{Nonce: nonce, ServerNonce: serverNonce, NewNonceHash: hash}, nil
}

// ServerDHInnerData is server_DH_inner_data#b5890dba, the plaintext
// recovered by IGE-decrypting ServerDHParamsOk.EncryptedAnswer.
type ServerDHInnerData struct {
	Nonce       [16]byte
	ServerNonce [16]byte
	G           int32
	DHPrime     []byte
	GA          []byte
	ServerTime  int32
}

func (s *ServerDHInnerData) Encode(b *buffer.ByteBuffer) {
	b.WriteU32(magicServerDHInnerData)
	b.WriteInt128(s.Nonce)
	b.WriteInt128(s.ServerNonce)
	b.WriteI32(s.G)
	b.WriteBytes(s.DHPrime)
	b.WriteBytes(s.GA)
	b.WriteI32(s.ServerTime)
}

// DecodeServerDHInnerData reads the magic itself (rather than going
// through the package dispatch table) because the caller IGE-decrypts a
// fixed region first and knows exactly which constructor it must be.
func DecodeServerDHInnerData(b *buffer.ByteBuffer) (*ServerDHInnerData, error) {
	magic, err := b.ReadU32()
	if err != nil {
		return nil, err
	}
	if magic != magicServerDHInnerData {
		return nil, ErrUnknownConstructor
	}
	nonce, err := b.ReadInt128()
	if err != nil {
		return nil, err
	}
	serverNonce, err := b.ReadInt128()
	if err != nil {
		return nil, err
	}
	g, err := b.ReadI32()
	if err != nil {
		return nil, err
	}
	dhPrime, err := b.ReadBytes()
	if err != nil {
		return nil, err
	}
	ga, err := b.ReadBytes()
	if err != nil {
		return nil, err
	}
	serverTime, err := b.ReadI32()
	if err != nil {
		return nil, err
	}
	return &ServerDHInnerData{
		Nonce: nonce, ServerNonce: serverNonce, G: g,
		DHPrime: dhPrime, GA: ga, ServerTime: serverTime,
	}, nil
}

// ClientDHInnerData is client_DH_inner_data#6643b654.
type ClientDHInnerData struct {
	Nonce       [16]byte
	ServerNonce [16]byte
	RetryID     int64
	GB          []byte
}

func (c *ClientDHInnerData) Encode(b *buffer.ByteBuffer) {
	b.WriteU32(magicClientDHInnerData)
	b.WriteInt128(c.Nonce)
	b.WriteInt128(c.ServerNonce)
	b.WriteI64(c.RetryID)
	b.WriteBytes(c.GB)
}

// SetClientDHParams is set_client_DH_params#f5045f1f.
type SetClientDHParams struct {
	Nonce         [16]byte
	ServerNonce   [16]byte
	EncryptedData []byte
}

func (s *SetClientDHParams) Encode(b *buffer.ByteBuffer) {
	b.WriteU32(magicSetClientDHParams)
	b.WriteInt128(s.Nonce)
	b.WriteInt128(s.ServerNonce)
	b.WriteBytes(s.EncryptedData)
}

// DHGenOk is dh_gen_ok#3bcbf734.
type DHGenOk struct {
	Nonce         [16]byte
	ServerNonce   [16]byte
	NewNonceHash1 [16]byte
}

func (d *DHGenOk) Encode(b *buffer.ByteBuffer) {
	b.WriteU32(magicDHGenOk)
	b.WriteInt128(d.Nonce)
	b.WriteInt128(d.ServerNonce)
	b.WriteInt128(d.NewNonceHash1)
}

func decodeDHGenOk(b *buffer.ByteBuffer) (Object, error) {
	nonce, err := b.ReadInt128()
	if err != nil {
		return nil, err
	}
	serverNonce, err := b.ReadInt128()
	if err != nil {
		return nil, err
	}
	hash, err := b.ReadInt128()
	if err != nil {
		return nil, err
	}
	return &DHGenOk{Nonce: nonce, ServerNonce: serverNonce, NewNonceHash1: hash}, nil
}

// DHGenRetry is dh_gen_retry#46dc1fb9.
type DHGenRetry struct {
	Nonce         [16]byte
	ServerNonce   [16]byte
	NewNonceHash2 [16]byte
}

func (d *DHGenRetry) Encode(b *buffer.ByteBuffer) {
	b.WriteU32(magicDHGenRetry)
	b.WriteInt128(d.Nonce)
	b.WriteInt128(d.ServerNonce)
	b.WriteInt128(d.NewNonceHash2)
}

func decodeDHGenRetry(b *buffer.ByteBuffer) (Object, error) {
	nonce, err := b.ReadInt128()
	if err != nil {
		return nil, err
	}
	serverNonce, err := b.ReadInt128()
	if err != nil {
		return nil, err
	}
	hash, err := b.ReadInt128()
	if err != nil {
		return nil, err
	}
	return &DHGenRetry{Nonce: nonce, ServerNonce: serverNonce, NewNonceHash2: hash}, nil
}

// DHGenFail is dh_gen_fail#a69dae02.
type DHGenFail struct {
	Nonce         [16]byte
	ServerNonce   [16]byte
	NewNonceHash3 [16]byte
}

func (d *DHGenFail) Encode(b *buffer.ByteBuffer) {
	b.WriteU32(magicDHGenFail)
	b.WriteInt128(d.Nonce)
	b.WriteInt128(d.ServerNonce)
	b.WriteInt128(d.NewNonceHash3)
}

func decodeDHGenFail(b *buffer.ByteBuffer) (Object, error) {
	nonce, err := b.ReadInt128()
	if err != nil {
		return nil, err
	}
	serverNonce, err := b.ReadInt128()
	if err != nil {
		return nil, err
	}
	hash, err := b.ReadInt128()
	if err != nil {
		return nil, err
	}
	return &DHGenFail{Nonce: nonce, ServerNonce: serverNonce, NewNonceHash3: hash}, nil
}

// BindAuthKeyInner is bind_auth_key_inner#75a3f765, the plaintext payload
// of auth.bindTempAuthKey's encrypted message parameter.
type BindAuthKeyInner struct {
	Nonce         int64
	TempAuthKeyID int64
	PermAuthKeyID int64
	TempSessionID int64
	ExpiresAt     int32
}

func (b2 *BindAuthKeyInner) Encode(b *buffer.ByteBuffer) {
	b.WriteU32(magicBindAuthKeyInner)
	b.WriteI64(b2.Nonce)
	b.WriteI64(b2.TempAuthKeyID)
	b.WriteI64(b2.PermAuthKeyID)
	b.WriteI64(b2.TempSessionID)
	b.WriteI32(b2.ExpiresAt)
}

// AuthBindTempAuthKey is auth.bindTempAuthKey#cdd42a05, the RPC sent over
// the temporary key's own encrypted connection to bind it to a permanent
// key's session.
type AuthBindTempAuthKey struct {
	PermAuthKeyID    int64
	NonceValue       int64
	ExpiresAt        int32
	EncryptedMessage []byte
}

func (a *AuthBindTempAuthKey) Encode(b *buffer.ByteBuffer) {
	b.WriteU32(magicAuthBindTempAuthKey)
	b.WriteI64(a.PermAuthKeyID)
	b.WriteI64(a.NonceValue)
	b.WriteI32(a.ExpiresAt)
	b.WriteBytes(a.EncryptedMessage)
}
