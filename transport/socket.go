// Package transport implements one TCP (or WebSocket-tunneled) stream's
// obfuscated MTProto framing: first-packet secret derivation, the
// EF/DD/TLS length-prefix framing modes, quick-ack extraction, and
// per-connection-type reconnect/backoff policy.
package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/coder/websocket"
)

// SocketHost is the platform collaborator of spec.md §6: it opens a
// stream to (ip, port). The returned Socket is used through blocking
// Read/Write/Close calls; it has no connect, data, disconnect or
// writable callbacks.
type SocketHost interface {
	Dial(ctx context.Context, ip string, port int, ipv6 bool) (Socket, error)
}

// Socket is one live duplex byte stream.
type Socket interface {
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)
	Close() error
}

// TCPSocketHost dials plain TCP, the default provider for all
// Generic/Download/Upload/Push connection types.
type TCPSocketHost struct{}

func (TCPSocketHost) Dial(ctx context.Context, ip string, port int, ipv6 bool) (Socket, error) {
	network := "tcp4"
	if ipv6 {
		network = "tcp6"
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, net.JoinHostPort(ip, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	return tcpSocket{conn}, nil
}

type tcpSocket struct{ net.Conn }

// WSSocketHost tunnels the same obfuscated byte stream over a
// github.com/coder/websocket connection, for the Proxy[n] connection
// type in environments where raw TCP egress is blocked.
type WSSocketHost struct {
	URLTemplate string // e.g. "wss://%s:%d/ws", filled with (ip, port)
}

func (h WSSocketHost) Dial(ctx context.Context, ip string, port int, ipv6 bool) (Socket, error) {
	url := fmt.Sprintf(h.URLTemplate, ip, port)
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &wsSocket{ctx: ctx, conn: c}, nil
}

type wsSocket struct {
	ctx     context.Context
	conn    *websocket.Conn
	pending []byte
}

func (s *wsSocket) Write(p []byte) (int, error) {
	if err := s.conn.Write(s.ctx, websocket.MessageBinary, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *wsSocket) Read(p []byte) (int, error) {
	for len(s.pending) == 0 {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			return 0, err
		}
		s.pending = data
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *wsSocket) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "")
}
