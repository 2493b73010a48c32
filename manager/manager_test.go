package manager

import (
	"context"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/mtprotogo/tgnet/configstore"
	"github.com/mtprotogo/tgnet/handshake"
	"github.com/mtprotogo/tgnet/mtcrypto"
	"github.com/mtprotogo/tgnet/transport"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeDelegate struct {
	mu     sync.Mutex
	states []ConnectionState
}

func (d *fakeDelegate) OnUpdateConfig([]byte) {}
func (d *fakeDelegate) OnConnectionStateChanged(dcID uint32, state ConnectionState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.states = append(d.states, state)
}
func (d *fakeDelegate) OnSessionCreated(uint32)                           {}
func (d *fakeDelegate) OnLogout()                                         {}
func (d *fakeDelegate) OnUnparsedUpdate([]byte)                           {}
func (d *fakeDelegate) OnInternalPushReceived()                           {}
func (d *fakeDelegate) OnHandshakeComplete(uint32, handshake.Kind, int32) {}

func (d *fakeDelegate) snapshot() []ConnectionState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]ConnectionState{}, d.states...)
}

type fakeClock struct{}

func (fakeClock) NowMillisMonotonic() int64      { return 0 }
func (fakeClock) NowSecondsWallclock() int32     { return 0 }
func (fakeClock) Schedule(time.Duration, func()) {}

func waitForCondition(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestSendRequestAssignsDistinctTokens(t *testing.T) {
	del := &fakeDelegate{}
	m := New(del, configstore.NewMemStore(), fakeClock{}, zerolog.Nop())
	defer m.Stop()

	tok1 := m.SendRequest([]byte("a"), 2, transport.Generic, RequestFlags{}, nil, nil)
	tok2 := m.SendRequest([]byte("b"), 2, transport.Generic, RequestFlags{}, nil, nil)
	require.NotEqual(t, tok1, tok2)
}

func TestSendRequestWithoutKeyTriggersHandshakeState(t *testing.T) {
	del := &fakeDelegate{}
	m := New(del, configstore.NewMemStore(), fakeClock{}, zerolog.Nop())
	defer m.Stop()

	m.SendRequest([]byte("ping"), 2, transport.Generic, RequestFlags{}, nil, nil)

	waitForCondition(t, func() bool { return len(del.snapshot()) > 0 })
	require.Equal(t, StateConnecting, del.snapshot()[0])
}

func TestCancelRequestDiscardsCompletion(t *testing.T) {
	del := &fakeDelegate{}
	m := New(del, configstore.NewMemStore(), fakeClock{}, zerolog.Nop())
	defer m.Stop()

	var called bool
	var mu sync.Mutex
	tok := m.SendRequest([]byte("x"), 2, transport.Generic, RequestFlags{}, func(resp []byte, rpcErr *RpcError) {
		mu.Lock()
		called = true
		mu.Unlock()
	}, nil)

	m.CancelRequest(tok, false)
	m.CompleteRequest(tok, []byte("too-late"), nil)

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.False(t, called)
}

// fakeSocket records every Write call so a test can inspect what a
// Connection actually put on the wire.
type fakeSocket struct {
	mu     sync.Mutex
	writes [][]byte
}

func (s *fakeSocket) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (s *fakeSocket) Read(p []byte) (int, error) {
	<-make(chan struct{}) // block forever; this test never reads
	return 0, nil
}

func (s *fakeSocket) Close() error { return nil }

func (s *fakeSocket) snapshot() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte{}, s.writes...)
}

type fakeSocketHost struct{ sock *fakeSocket }

func (h fakeSocketHost) Dial(context.Context, string, int, bool) (transport.Socket, error) {
	return h.sock, nil
}

func TestDispatchRequestEncryptsAndSendsOverConnection(t *testing.T) {
	del := &fakeDelegate{}
	m := New(del, configstore.NewMemStore(), fakeClock{}, zerolog.Nop())
	defer m.Stop()

	dc := m.Datacenter(2)

	authKey := make([]byte, 256)
	_, err := rand.Read(authKey)
	require.NoError(t, err)
	dc.InstallResult(handshake.KindTempGeneric, &handshake.Result{
		AuthKey:   authKey,
		AuthKeyID: mtcrypto.AuthKeyID(authKey),
	}, false)

	sock := &fakeSocket{}
	conn := transport.NewConnection(transport.Generic, fakeSocketHost{sock: sock}, 555)
	require.NoError(t, conn.Connect(context.Background(), "127.0.0.1", 443, false, transport.ModeEF, nil, 2))
	dc.AddConnection(transport.Generic, conn)

	tok := m.SendRequest([]byte("getConfig"), 2, transport.Generic, RequestFlags{}, nil, nil)

	waitForCondition(t, func() bool { return len(sock.snapshot()) >= 2 })

	writes := sock.snapshot()
	require.Len(t, writes, 2, "expected the obfuscation header plus exactly one request frame")
	require.Greater(t, len(writes[1]), 24, "frame must carry at least the envelope's auth_key_id+msg_key header")

	m.reqMu.Lock()
	rec, ok := m.requests[tok]
	m.reqMu.Unlock()
	require.True(t, ok)
	require.True(t, rec.Sent)
	require.NotZero(t, rec.MsgID)
}

func TestCompleteRequestFiresCallbackOnce(t *testing.T) {
	del := &fakeDelegate{}
	m := New(del, configstore.NewMemStore(), fakeClock{}, zerolog.Nop())
	defer m.Stop()

	results := make(chan []byte, 1)
	tok := m.SendRequest([]byte("x"), 2, transport.Generic, RequestFlags{}, func(resp []byte, rpcErr *RpcError) {
		results <- resp
	}, nil)

	m.CompleteRequest(tok, []byte("pong"), nil)

	select {
	case got := <-results:
		require.Equal(t, []byte("pong"), got)
	case <-time.After(2 * time.Second):
		t.Fatal("completion callback never fired")
	}
}
