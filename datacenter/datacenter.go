// Package datacenter models one MTProto datacenter: its address table,
// the three auth-key slots, the server-salt list, and the per-connection-
// type pool of transport.Connections.
package datacenter

import (
	"errors"
	"sort"
	"sync"

	"github.com/mtprotogo/tgnet/handshake"
	"github.com/mtprotogo/tgnet/mtcrypto"
	"github.com/mtprotogo/tgnet/transport"
)

var (
	ErrNoAddress         = errors.New("datacenter: no address configured for requested flags")
	ErrHandshakeInFlight = errors.New("datacenter: a handshake of this kind is already running")
	ErrNoKeyAvailable    = errors.New("datacenter: requested auth key is not installed")
)

// Address flag bits, per spec.md §3's TcpAddress.
const (
	FlagIPv6     uint32 = 1
	FlagDownload uint32 = 2
	FlagStatic   uint32 = 4
	FlagTemp     uint32 = 8
)

// TcpAddress is one entry of a Datacenter's address table.
type TcpAddress struct {
	IP     string
	Port   uint16
	Flags  uint32
	Secret []byte
}

// defaultPorts is the fallback port table; -1 means "use the address's
// own Port field".
var defaultPorts = [4]int{443, 80, 5222, -1}

// addressList is one rotating (addr_idx, port_idx) cursor over a slice
// of addresses sharing the same ipv4/ipv6 × download/non-download axis.
type addressList struct {
	addrs   []TcpAddress
	addrIdx int
	portIdx int
}

// next advances the cursor per spec.md §4.4's next_address_or_port and
// returns the (ip, port, secret) to dial next.
func (l *addressList) next() (ip string, port int, secret []byte, ok bool) {
	if len(l.addrs) == 0 {
		return "", 0, nil, false
	}
	if l.addrIdx >= len(l.addrs) {
		l.addrIdx = 0
	}
	addr := l.addrs[l.addrIdx]

	// An address with a secret always uses its own port (bypassing the
	// defaults table); the cursor still advances below.
	p := defaultPorts[l.portIdx]
	if p == -1 || len(addr.Secret) > 0 {
		p = int(addr.Port)
	}

	if addr.Flags&FlagStatic != 0 {
		// STATIC addresses skip port rotation: advance address only.
		l.addrIdx = (l.addrIdx + 1) % len(l.addrs)
	} else {
		l.portIdx++
		if l.portIdx >= len(defaultPorts) {
			l.portIdx = 0
			l.addrIdx = (l.addrIdx + 1) % len(l.addrs)
		}
	}
	return addr.IP, p, addr.Secret, true
}

// Salt is one server_salt validity window.
type Salt struct {
	ValidSince int32
	ValidUntil int32
	Value      int64
}

// KeySlot holds the installed auth key plus a pending temp key awaiting
// bind_auth_key_inner confirmation.
type KeySlot struct {
	AuthKey        []byte
	AuthKeyID      uint64
	PendingKey     []byte
	PendingKeyID   uint64
	TimeDifference int32
}

func (k *KeySlot) installed() bool { return len(k.AuthKey) == 256 }

// Datacenter is one DC's full client-side state: address table, the
// three key slots, salts, and the connection pool.
type Datacenter struct {
	ID         uint32
	IsCDN      bool
	Authorized bool

	ipv4         addressList
	ipv6         addressList
	ipv4Download addressList
	ipv6Download addressList

	mu sync.RWMutex

	perm        KeySlot
	tempGeneric KeySlot
	tempMedia   KeySlot

	salts []Salt

	pools   map[transport.ConnectionType][]*transport.Connection
	poolsMu sync.RWMutex

	inFlight map[handshake.Kind]*handshake.Handshake
}

// New creates an empty Datacenter shell; addresses are added via
// AddAddress before any connection can be dialed.
func New(id uint32, isCDN bool) *Datacenter {
	return &Datacenter{
		ID:       id,
		IsCDN:    isCDN,
		pools:    make(map[transport.ConnectionType][]*transport.Connection),
		inFlight: make(map[handshake.Kind]*handshake.Handshake),
	}
}

// AddAddress appends to the address list selected by flags.
func (d *Datacenter) AddAddress(a TcpAddress) {
	switch {
	case a.Flags&FlagIPv6 != 0 && a.Flags&FlagDownload != 0:
		d.ipv6Download.addrs = append(d.ipv6Download.addrs, a)
	case a.Flags&FlagIPv6 != 0:
		d.ipv6.addrs = append(d.ipv6.addrs, a)
	case a.Flags&FlagDownload != 0:
		d.ipv4Download.addrs = append(d.ipv4Download.addrs, a)
	default:
		d.ipv4.addrs = append(d.ipv4.addrs, a)
	}
}

// NextAddressOrPort rotates and returns the next dial target for the
// address axis selected by flags (spec.md §4.4).
func (d *Datacenter) NextAddressOrPort(flags uint32) (ip string, port int, secret []byte, err error) {
	list := d.listFor(flags)
	ip, port, secret, ok := list.next()
	if !ok {
		return "", 0, nil, ErrNoAddress
	}
	return ip, port, secret, nil
}

func (d *Datacenter) listFor(flags uint32) *addressList {
	ipv6 := flags&FlagIPv6 != 0
	download := flags&FlagDownload != 0
	switch {
	case ipv6 && download:
		return &d.ipv6Download
	case ipv6:
		return &d.ipv6
	case download:
		return &d.ipv4Download
	default:
		return &d.ipv4
	}
}

// HasMediaAddress reports whether a download-flagged address exists,
// gating whether a temp-media handshake is worth starting.
func (d *Datacenter) HasMediaAddress() bool {
	return len(d.ipv4Download.addrs) > 0 || len(d.ipv6Download.addrs) > 0
}

// GetAuthKey implements spec.md §4.4's get_auth_key selection order.
func (d *Datacenter) GetAuthKey(connType transport.ConnectionType, wantPerm, allowPending bool) ([]byte, uint64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.IsCDN || wantPerm {
		return d.slotKey(&d.perm, allowPending)
	}
	if connType == transport.Download && d.HasMediaAddress() {
		if key, id, err := d.slotKey(&d.tempMedia, allowPending); err == nil {
			return key, id, nil
		}
	}
	return d.slotKey(&d.tempGeneric, allowPending)
}

func (d *Datacenter) slotKey(s *KeySlot, allowPending bool) ([]byte, uint64, error) {
	if allowPending && len(s.PendingKey) == 256 {
		return s.PendingKey, s.PendingKeyID, nil
	}
	if s.installed() {
		return s.AuthKey, s.AuthKeyID, nil
	}
	return nil, 0, ErrNoKeyAvailable
}

// InstallResult stores a completed Handshake's result into the matching
// slot. With pending set (whatever the kind), the key is stored as the
// slot's pending key and only becomes active via PromotePending, matching
// spec.md §3's "promotes to temp only on successful bool_true response".
func (d *Datacenter) InstallResult(kind handshake.Kind, res *handshake.Result, pending bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	slot := d.slotFor(kind)
	if pending {
		slot.PendingKey = res.AuthKey
		slot.PendingKeyID = res.AuthKeyID
		return
	}
	slot.AuthKey = res.AuthKey
	slot.AuthKeyID = res.AuthKeyID
	slot.TimeDifference = res.TimeDifference
}

// PromotePending moves a slot's pending key into its active key, called
// after auth.bindTempAuthKey returns bool_true.
func (d *Datacenter) PromotePending(kind handshake.Kind) {
	d.mu.Lock()
	defer d.mu.Unlock()
	slot := d.slotFor(kind)
	slot.AuthKey = slot.PendingKey
	slot.AuthKeyID = slot.PendingKeyID
	slot.PendingKey = nil
	slot.PendingKeyID = 0
}

func (d *Datacenter) slotFor(kind handshake.Kind) *KeySlot {
	switch kind {
	case handshake.KindPerm:
		return &d.perm
	case handshake.KindTempMedia:
		return &d.tempMedia
	default:
		return &d.tempGeneric
	}
}

// BeginHandshake starts a Handshake of the given kind if none is already
// in flight for this DC/kind pair (spec.md §4.4's at-most-one invariant).
func (d *Datacenter) BeginHandshake(kind handshake.Kind, keyRing *mtcrypto.KeyRing) (*handshake.Handshake, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.inFlight[kind]; ok {
		return nil, ErrHandshakeInFlight
	}
	h := handshake.New(kind, int32(d.ID), keyRing)
	d.inFlight[kind] = h
	return h, nil
}

// FinishHandshake clears the in-flight marker for kind.
func (d *Datacenter) FinishHandshake(kind handshake.Kind) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inFlight, kind)
}

// InFlightKinds returns the kinds currently being handshaken. No
// orchestration in this module re-runs them on reconnect.
func (d *Datacenter) InFlightKinds() []handshake.Kind {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]handshake.Kind, 0, len(d.inFlight))
	for k := range d.inFlight {
		out = append(out, k)
	}
	return out
}

// MergeSalts dedups incoming salts by value, drops expired ones, and
// keeps the result ordered by ValidSince (spec.md §4.4's salt merge).
func (d *Datacenter) MergeSalts(now int32, incoming []Salt) {
	d.mu.Lock()
	defer d.mu.Unlock()

	seen := make(map[int64]bool, len(d.salts)+len(incoming))
	merged := make([]Salt, 0, len(d.salts)+len(incoming))
	for _, s := range append(append([]Salt{}, d.salts...), incoming...) {
		if s.ValidUntil < now || seen[s.Value] {
			continue
		}
		seen[s.Value] = true
		merged = append(merged, s)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ValidSince < merged[j].ValidSince })
	d.salts = merged
}

// SelectSalt picks the longest-lived valid salt for now, per spec.md
// §4.4's selection rule. Ties go to the salt that comes first in the
// ValidSince order MergeSalts keeps, not to the first one inserted.
func (d *Datacenter) SelectSalt(now int32) (int64, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	best := int64(0)
	bestRemaining := int32(-1)
	found := false
	for _, s := range d.salts {
		if now < s.ValidSince || now >= s.ValidUntil {
			continue
		}
		remaining := s.ValidUntil - now
		if remaining > bestRemaining {
			bestRemaining = remaining
			best = s.Value
			found = true
		}
	}
	return best, found
}

// Pool returns the connection slice for connType (nil if none has been
// added); it does not create an entry.
func (d *Datacenter) Pool(connType transport.ConnectionType) []*transport.Connection {
	d.poolsMu.RLock()
	defer d.poolsMu.RUnlock()
	return d.pools[connType]
}

// AddConnection registers a new Connection under its type's pool.
func (d *Datacenter) AddConnection(connType transport.ConnectionType, c *transport.Connection) {
	d.poolsMu.Lock()
	defer d.poolsMu.Unlock()
	d.pools[connType] = append(d.pools[connType], c)
}

// RemoveConnection drops c from its type's pool, if present.
func (d *Datacenter) RemoveConnection(connType transport.ConnectionType, c *transport.Connection) {
	d.poolsMu.Lock()
	defer d.poolsMu.Unlock()
	conns := d.pools[connType]
	for i, existing := range conns {
		if existing == c {
			d.pools[connType] = append(conns[:i], conns[i+1:]...)
			return
		}
	}
}
