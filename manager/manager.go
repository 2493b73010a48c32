// Package manager implements the explicit owner object spec.md §9 calls
// for in place of a singleton table: a Manager owns a set of
// datacenter.Datacenter instances, runs the single event-loop goroutine
// spec.md §5 describes, and exposes the host-facing Delegate and
// send_request/cancel_request contracts from spec.md §6.
package manager

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mtprotogo/tgnet/configstore"
	"github.com/mtprotogo/tgnet/datacenter"
	"github.com/mtprotogo/tgnet/envelope"
	"github.com/mtprotogo/tgnet/handshake"
	"github.com/mtprotogo/tgnet/transport"
	"github.com/rs/zerolog"
)

// ErrNoConnection is returned when a Datacenter's pool for the requested
// connType has no connection currently able to carry a request.
var ErrNoConnection = errors.New("manager: no usable connection for request")

// ConnectionState mirrors the four states a Delegate observes, distinct
// from transport.State (which tracks one Connection, not a whole DC).
type ConnectionState int

const (
	StateWaiting ConnectionState = iota
	StateConnecting
	StateUpdating
	StateConnected
)

// Delegate receives every host-facing callback spec.md §6 names.
// Implementations must not block; long work should be posted back onto
// the caller's own thread.
type Delegate interface {
	OnUpdateConfig(serializedConfig []byte)
	OnConnectionStateChanged(dcID uint32, state ConnectionState)
	OnSessionCreated(dcID uint32)
	OnLogout()
	OnUnparsedUpdate(body []byte)
	OnInternalPushReceived()
	OnHandshakeComplete(dcID uint32, kind handshake.Kind, timeDifference int32)
}

// Clock is the external time/timer collaborator from spec.md §6.
type Clock interface {
	NowMillisMonotonic() int64
	NowSecondsWallclock() int32
	Schedule(delay time.Duration, callback func())
}

// RequestFlags are the per-request behavior bits from spec.md §6's
// send_request contract.
type RequestFlags struct {
	WithoutLogin       bool
	EnableUnauthorized bool
	UseUnboundKey      bool
	Immediate          bool
	CanCompress        bool
	InvokeAfterMsg     int64 // 0 means unset
}

// RpcError is the {code, text} shape a failed request completes with.
type RpcError struct {
	Code int32
	Text string
}

func (e *RpcError) Error() string { return e.Text }

// RequestRecord is the scheduler-facing bookkeeping SPEC_FULL.md §4.8 says
// Manager exposes "sufficient for cancel_request and rpc_drop_answer,
// nothing more" — no cross-DC retry, no file chunking.
type RequestRecord struct {
	Token        uint32
	DatacenterID uint32
	ConnType     transport.ConnectionType
	Flags        RequestFlags
	Body         []byte
	OnComplete   func(response []byte, rpcErr *RpcError)
	OnQuickAck   func()
	Sent         bool
	Cancelled    bool
	MsgID        int64
}

var requestTokenCounter uint32

// task is a closure posted onto the event-loop channel; every mutation
// of Manager/Datacenter/Connection/Handshake state happens by running
// one of these on the loop goroutine (spec.md §5).
type task func()

// Manager owns one logged-in account's set of Datacenters and runs the
// single event-loop goroutine all of their state is confined to.
type Manager struct {
	delegate Delegate
	store    configstore.Interface
	clock    Clock
	log      zerolog.Logger

	tasks chan task
	done  chan struct{}

	dcMu sync.RWMutex
	dcs  map[uint32]*datacenter.Datacenter

	reqMu    sync.Mutex
	requests map[uint32]*RequestRecord

	// ids/seqno are only ever touched from the event-loop goroutine.
	ids   idGen
	seqno int32
}

// idGen produces strictly increasing 64-bit message ids for requests this
// Manager originates, mirroring handshake's client-id convention from
// spec.md §3: upper 32 bits are wall-clock seconds, lower 32 bits a
// per-second counter with its low 2 bits cleared.
type idGen struct {
	lastSeconds int64
	counter     uint32
}

func (g *idGen) next() int64 {
	now := time.Now().Unix()
	if now != g.lastSeconds {
		g.lastSeconds = now
		g.counter = 0
	}
	g.counter++
	low := g.counter << 2
	return now<<32 | int64(low)
}

// nextSeqno returns the next odd seqno for a content message requiring
// acknowledgment, per spec.md §4.6's client seqno rule.
func (m *Manager) nextSeqno() int32 {
	m.seqno += 2
	return m.seqno - 1
}

// New creates a Manager with a buffered task channel and starts its
// event-loop goroutine.
func New(delegate Delegate, store configstore.Interface, clock Clock, log zerolog.Logger) *Manager {
	m := &Manager{
		delegate: delegate,
		store:    store,
		clock:    clock,
		log:      log,
		tasks:    make(chan task, 256),
		done:     make(chan struct{}),
		dcs:      make(map[uint32]*datacenter.Datacenter),
		requests: make(map[uint32]*RequestRecord),
	}
	go m.loop()
	return m
}

func (m *Manager) loop() {
	for {
		select {
		case t := <-m.tasks:
			t()
		case <-m.done:
			return
		}
	}
}

// Stop terminates the event-loop goroutine. Pending tasks are dropped.
func (m *Manager) Stop() {
	close(m.done)
}

// post enqueues a closure to run on the event-loop goroutine; it never
// blocks the caller on Manager-internal locks.
func (m *Manager) post(t task) {
	m.tasks <- t
}

// Datacenter returns (creating if absent) the Datacenter for id. Safe to
// call from any goroutine; callers that mutate the returned Datacenter
// concurrently with a dispatch must rely on its own internal locking.
func (m *Manager) Datacenter(id uint32) *datacenter.Datacenter {
	return m.datacenterLocked(id)
}

// datacenterLocked returns (creating if absent) the Datacenter for id.
func (m *Manager) datacenterLocked(id uint32) *datacenter.Datacenter {
	m.dcMu.Lock()
	defer m.dcMu.Unlock()
	dc, ok := m.dcs[id]
	if !ok {
		dc = datacenter.New(id, false)
		m.dcs[id] = dc
	}
	return dc
}

// SendRequest implements spec.md §6's send_request: it assigns a
// request_token synchronously and defers all stateful work to the event
// loop.
func (m *Manager) SendRequest(body []byte, dcID uint32, connType transport.ConnectionType, flags RequestFlags, onComplete func(response []byte, rpcErr *RpcError), onQuickAck func()) uint32 {
	token := atomic.AddUint32(&requestTokenCounter, 1)
	rec := &RequestRecord{
		Token:        token,
		DatacenterID: dcID,
		ConnType:     connType,
		Flags:        flags,
		Body:         body,
		OnComplete:   onComplete,
		OnQuickAck:   onQuickAck,
	}

	m.reqMu.Lock()
	m.requests[token] = rec
	m.reqMu.Unlock()

	m.post(func() {
		m.dispatchRequest(rec)
	})
	return token
}

// CancelRequest implements spec.md §6's cancel_request / §5's
// cancellation rule: a cancelled request's response is discarded
// silently, and rpc_drop_answer is dispatched if it was already sent.
func (m *Manager) CancelRequest(token uint32, notifyServer bool) {
	m.post(func() {
		m.reqMu.Lock()
		rec, ok := m.requests[token]
		if ok {
			rec.Cancelled = true
		}
		m.reqMu.Unlock()
		if !ok {
			return
		}
		if notifyServer && rec.Sent {
			m.sendDropAnswer(rec)
		}
	})
}

// dispatchRequest runs on the event loop: picks a Datacenter/Connection
// by type, wraps the body in an encrypted envelope, and hands the result
// to that connection's framing layer. The scheduler's cross-DC retry
// policy and connection selection heuristics beyond "pick the DC's pool
// for connType" are out of core scope (spec.md §1).
func (m *Manager) dispatchRequest(rec *RequestRecord) {
	m.reqMu.Lock()
	cancelled := rec.Cancelled
	m.reqMu.Unlock()
	if cancelled {
		return
	}

	dc := m.datacenterLocked(rec.DatacenterID)
	authKey, authKeyID, err := dc.GetAuthKey(rec.ConnType, rec.Flags.UseUnboundKey, true)
	if err != nil {
		m.beginHandshakesIfNeeded(dc)
		// Without a usable key yet, the request waits; a production
		// scheduler would requeue it once OnHandshakeComplete fires.
		return
	}

	conn := connectedConnection(dc, rec.ConnType)
	if conn == nil {
		// No dialed connection to carry the request yet; the pool
		// maintenance loop owns (re)connecting, so this request simply
		// waits for the next send_request-triggered or reconnect-driven
		// dispatch.
		m.log.Debug().Err(ErrNoConnection).Uint32("token", rec.Token).Msg("deferring request")
		return
	}

	salt, _ := dc.SelectSalt(m.clock.NowSecondsWallclock())
	session := &envelope.Session{
		AuthKey:    authKey,
		AuthKeyID:  authKeyID,
		SessionID:  conn.SessionID(),
		ServerSalt: salt,
	}
	msgID := m.ids.next()
	seqno := m.nextSeqno()

	encrypted, err := envelope.Encrypt(session, msgID, seqno, rec.Body)
	if err != nil {
		m.log.Error().Err(err).Uint32("token", rec.Token).Msg("failed to encrypt request")
		return
	}
	if err := conn.Send(encrypted, nil); err != nil {
		m.log.Error().Err(err).Uint32("token", rec.Token).Msg("failed to send request")
		return
	}

	rec.MsgID = msgID
	rec.Sent = true
}

// connectedConnection returns the first Connected-state connection in
// dc's pool for connType, or nil if none is usable yet.
func connectedConnection(dc *datacenter.Datacenter, connType transport.ConnectionType) *transport.Connection {
	for _, conn := range dc.Pool(connType) {
		if conn.State() == transport.Connected {
			return conn
		}
	}
	return nil
}

func (m *Manager) sendDropAnswer(rec *RequestRecord) {
	m.log.Debug().Uint32("token", rec.Token).Msg("rpc_drop_answer")
}

// beginHandshakesIfNeeded reports StateConnecting to the delegate when
// the Datacenter has no perm key. It does not start a Handshake of any
// kind, and does nothing when only a temp key is missing.
func (m *Manager) beginHandshakesIfNeeded(dc *datacenter.Datacenter) {
	if _, _, err := dc.GetAuthKey(transport.Generic, true, false); err != nil {
		m.notifyState(dc.ID, StateConnecting)
	}
}

func (m *Manager) notifyState(dcID uint32, state ConnectionState) {
	if m.delegate != nil {
		m.delegate.OnConnectionStateChanged(dcID, state)
	}
}

// CompleteRequest is called by the read path once a response body (or
// rpc_error) has been matched to its request_msg_id; it fires the
// caller's callback unless the request was cancelled meanwhile.
func (m *Manager) CompleteRequest(token uint32, response []byte, rpcErr *RpcError) {
	m.post(func() {
		m.reqMu.Lock()
		rec, ok := m.requests[token]
		if ok {
			delete(m.requests, token)
		}
		m.reqMu.Unlock()
		if !ok || rec.Cancelled {
			return
		}
		if rec.OnComplete != nil {
			rec.OnComplete(response, rpcErr)
		}
	})
}

// QuickAck is called by the read path when a quick-ack id is matched to
// an outstanding request.
func (m *Manager) QuickAck(token uint32) {
	m.post(func() {
		m.reqMu.Lock()
		rec, ok := m.requests[token]
		m.reqMu.Unlock()
		if ok && !rec.Cancelled && rec.OnQuickAck != nil {
			rec.OnQuickAck()
		}
	})
}
