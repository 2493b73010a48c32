package transport

import (
	"crypto/rand"
	"encoding/binary"
)

// writeTLSPrelude emits one TLS-record-shaped byte string (a handshake
// record header, 0x16 0x03 0x01 plus a 2-byte big-endian length, followed
// by clientHelloLen random bytes) that Connect sends ahead of the 64-byte
// obfuscation header, satisfying spec.md §4.3's
// "masquerade prelude" for TLS framing mode. JA3-level fingerprint
// realism is explicitly out of scope (spec.md §1); only the record
// framing shape matters for test scenario S5.
func writeTLSPrelude(clientHelloLen int) ([]byte, error) {
	body := make([]byte, clientHelloLen)
	if _, err := rand.Read(body); err != nil {
		return nil, err
	}

	record := make([]byte, 0, 5+len(body))
	record = append(record, 0x16, 0x03, 0x01) // handshake record, TLS 1.0 legacy version
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(body)))
	record = append(record, lenBuf[:]...)
	record = append(record, body...)
	return record, nil
}
