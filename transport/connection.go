package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// ConnectionType selects which per-DC pool slot and timeout/backoff
// profile a Connection follows, per spec.md §3/§4.3/§4.4.
type ConnectionType int

const (
	Generic ConnectionType = iota
	GenericMedia
	Download
	Upload
	Push
	Temp
	Proxy
)

// State is a Connection's lifecycle stage.
type State int

const (
	Idle State = iota
	Connecting
	Connected
	Suspended
	Reconnecting
)

var connectionTokenCounter uint32

func nextConnectionToken() uint32 {
	return atomic.AddUint32(&connectionTokenCounter, 1)
}

// Connection owns one TCP (or tunneled) stream's obfuscated framing,
// reconnect timer, and session id, per spec.md §3's Connection data model.
type Connection struct {
	mu sync.Mutex

	connType ConnectionType
	host     SocketHost
	state    State

	sessionID       int64
	connectionToken uint32

	mode  Mode
	codec *obfuscationCodec
	sock  Socket
	fr    *FrameReader

	lastReconnectTimeout time.Duration
	wasConnectedFailures int

	lastDataAt       time.Time
	connectedAt      time.Time
	bytesSinceCredit int64
	idleTimeout      time.Duration
}

// NewConnection creates an idle Connection of the given type against the
// given socket provider. A fresh session id must be assigned by the
// owning Datacenter before first use.
func NewConnection(connType ConnectionType, host SocketHost, sessionID int64) *Connection {
	return &Connection{
		connType:             connType,
		host:                 host,
		state:                Idle,
		sessionID:            sessionID,
		lastReconnectTimeout: 50 * time.Millisecond,
		idleTimeout:          baseIdleTimeout(connType),
	}
}

// baseIdleTimeout is the per-type idle timeout from spec.md §4.3's table.
func baseIdleTimeout(t ConnectionType) time.Duration {
	switch t {
	case Proxy:
		return 5 * time.Second
	case Push:
		return 15 * time.Minute
	case Upload:
		return 25 * time.Second
	case Download:
		return 25 * time.Second
	default: // Generic, GenericMedia, Temp
		return 12 * time.Second
	}
}

// genericIdleCap is the ceiling the Generic/Temp idle timeout grows to
// across wasConnected-then-failed cycles.
const genericIdleCap = 16 * time.Second

// OnConnectFailureBackoff grows the Generic/Temp idle timeout by 2s per
// failure after a connection that had previously been established.
func (c *Connection) OnConnectFailureBackoff() {
	if c.connType != Generic && c.connType != GenericMedia && c.connType != Temp {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.wasConnected() {
		return
	}
	c.idleTimeout += 2 * time.Second
	if c.idleTimeout > genericIdleCap {
		c.idleTimeout = genericIdleCap
	}
}

func (c *Connection) wasConnected() bool {
	return c.wasConnectedFailures > 0 || !c.connectedAt.IsZero()
}

// CreditReceivedBytes applies the "every 512 KiB received decreases idle
// timeout by 2s, floor 4s" rule from spec.md §4.3.
func (c *Connection) CreditReceivedBytes(n int) {
	if c.connType != Generic && c.connType != GenericMedia {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bytesSinceCredit += int64(n)
	const creditUnit = 512 * 1024
	for c.bytesSinceCredit >= creditUnit {
		c.bytesSinceCredit -= creditUnit
		c.idleTimeout -= 2 * time.Second
		if c.idleTimeout < 4*time.Second {
			c.idleTimeout = 4 * time.Second
		}
	}
}

// ReconnectDelay returns the first-try delay for this connection type
// (spec.md §4.3's table); Proxy connections never auto-reconnect.
func (c *Connection) ReconnectDelay(retryCount int) (time.Duration, bool) {
	switch c.connType {
	case Proxy:
		return 0, false
	case Push:
		if retryCount == 0 {
			return 20 * time.Second, true
		}
		return 30 * time.Second, true
	case Upload, Download:
		if retryCount == 0 {
			return 8 * time.Second, true
		}
		return 12 * time.Second, true
	default:
		if retryCount == 0 {
			return 8 * time.Second, true
		}
		return 12 * time.Second, true
	}
}

// NextBackoff doubles last_reconnect_timeout on an ECONNREFUSED/
// ENETUNREACH-class failure, capped at 400ms, per spec.md §4.3.
func (c *Connection) NextBackoff() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur := c.lastReconnectTimeout
	next := cur * 2
	if next > 400*time.Millisecond {
		next = 400 * time.Millisecond
	}
	c.lastReconnectTimeout = next
	return cur
}

// IsUseful implements spec.md §4.3's heuristic: a connection that
// delivered an application message within the last 4 seconds is useful,
// granting the scheduler more quick-retry attempts before port rotation.
func (c *Connection) IsUseful(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastDataAt.IsZero() {
		return false
	}
	return now.Sub(c.lastDataAt) <= 4*time.Second
}

// Connect opens the underlying socket, performs the first-packet
// obfuscation handshake, and transitions to Connected.
func (c *Connection) Connect(ctx context.Context, ip string, port int, ipv6 bool, mode Mode, secret []byte, dcID int16) error {
	c.mu.Lock()
	c.state = Connecting
	c.mu.Unlock()

	sock, err := c.host.Dial(ctx, ip, port, ipv6)
	if err != nil {
		return err
	}

	if mode == ModeTLS {
		prelude, err := writeTLSPrelude(517)
		if err != nil {
			sock.Close()
			return err
		}
		if _, err := sock.Write(prelude); err != nil {
			sock.Close()
			return err
		}
	}

	header, codec, err := deriveHandshakeHeader(mode, secret, dcID)
	if err != nil {
		sock.Close()
		return err
	}
	if _, err := sock.Write(header); err != nil {
		sock.Close()
		return err
	}

	c.mu.Lock()
	c.sock = sock
	c.codec = codec
	c.mode = mode
	c.fr = NewFrameReader(mode, codec)
	c.state = Connected
	c.connectionToken = nextConnectionToken()
	c.connectedAt = time.Now()
	c.lastReconnectTimeout = 50 * time.Millisecond
	c.mu.Unlock()
	return nil
}

// Send frames and writes one application payload.
func (c *Connection) Send(payload []byte, padding []byte) error {
	c.mu.Lock()
	codec, mode, sock := c.codec, c.mode, c.sock
	c.mu.Unlock()
	if sock == nil {
		return ErrNotConnected
	}
	frame, err := codec.EncodeFrame(mode, payload, padding)
	if err != nil {
		return err
	}
	_, err = sock.Write(frame)
	return err
}

// Feed hands newly-read ciphertext to the frame reader and records
// useful-data/receive-credit bookkeeping for any decoded bodies.
func (c *Connection) Feed(raw []byte) ([][]byte, []QuickAck, error) {
	c.mu.Lock()
	fr := c.fr
	c.mu.Unlock()
	if fr == nil {
		return nil, nil, ErrNotConnected
	}
	bodies, acks, err := fr.Feed(raw)
	if err != nil {
		return bodies, acks, err
	}
	if len(bodies) > 0 {
		c.mu.Lock()
		c.lastDataAt = time.Now()
		c.mu.Unlock()
		for _, b := range bodies {
			c.CreditReceivedBytes(len(b))
		}
	}
	return bodies, acks, nil
}

// Disconnect closes the socket and resets the connection token, per
// spec.md §3's ConnectionToken reset-on-disconnect invariant.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	sock := c.sock
	c.sock = nil
	c.codec = nil
	c.fr = nil
	c.connectionToken = 0
	c.state = Idle
	c.mu.Unlock()
	if sock == nil {
		return nil
	}
	return sock.Close()
}

// State returns the current lifecycle stage.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns this connection's session id.
func (c *Connection) SessionID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Token returns the current connection_token (0 if not connected).
func (c *Connection) Token() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectionToken
}
