package handshake

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/mtprotogo/tgnet/envelope"
	"github.com/mtprotogo/tgnet/tl"
)

// BuildBindTempAuthKeyRequest builds the auth.bindTempAuthKey#cdd42a05
// RPC body for step 5: the inner bind_auth_key_inner is encrypted under
// the permanent key (as if it were a message in the permanent key's own
// session); the caller is responsible for encrypting the *returned* body
// again under the pending temp key before sending it, since that outer
// layer is ordinary envelope traffic on the temp connection.
func BuildBindTempAuthKeyRequest(perm *Result, temp *Result, tempSessionID int64, nowUnix int64) ([]byte, error) {
	nonce, err := randomInt64()
	if err != nil {
		return nil, err
	}
	expiresAt := int32(nowUnix + int64(perm.TimeDifference) + tempKeyExpirySeconds - 300)

	inner := &tl.BindAuthKeyInner{
		Nonce:         nonce,
		TempAuthKeyID: int64(temp.AuthKeyID),
		PermAuthKeyID: int64(perm.AuthKeyID),
		TempSessionID: tempSessionID,
		ExpiresAt:     expiresAt,
	}
	innerBody := encode(inner)

	// The reference handshake frames this inner message inside the
	// permanent key's own session space, with a synthetic session id and
	// zero salt since it is never decrypted as a standalone session.
	permSession := &envelope.Session{
		AuthKey:    perm.AuthKey,
		AuthKeyID:  perm.AuthKeyID,
		SessionID:  tempSessionID,
		ServerSalt: 0,
	}
	var innerIDs idGen
	encryptedMessage, err := envelope.Encrypt(permSession, innerIDs.next(), 1, innerBody)
	if err != nil {
		return nil, err
	}

	outer := &tl.AuthBindTempAuthKey{
		PermAuthKeyID:    int64(perm.AuthKeyID),
		NonceValue:       nonce,
		ExpiresAt:        expiresAt,
		EncryptedMessage: encryptedMessage,
	}
	return encode(outer), nil
}

func randomInt64() (int64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(buf[:])), nil
}
