// Package buffer provides a growable, TL-wire-aware byte buffer and a
// size-tiered recycling pool for it.
package buffer

import (
	"sync"

	"github.com/valyala/bytebufferpool"
)

// tierSizes mirrors the source allocator's size classes: most MTProto
// payloads are tiny RPC bodies, with a long tail of file-transfer chunks.
var tierSizes = [...]int{8, 128, 1224, 4296, 16584, 40000, 160000}

// tierCaps bounds how many idle buffers each tier keeps around. The two
// smallest tiers see the highest churn (every outgoing ping, ack, ...).
var tierCaps = [...]int{80, 80, 10, 10, 10, 10, 10}

type tier struct {
	pool bytebufferpool.Pool
	cap  int
	size int

	mu     sync.Mutex
	parked int
}

// Pool recycles ByteBuffer instances across a fixed set of size tiers. A
// single mutex per tier tracks how many idle instances are outstanding so
// Reuse can enforce the cap; the byte storage itself is managed by an
// embedded bytebufferpool.Pool per tier.
type Pool struct {
	tiers [len(tierSizes)]*tier
}

// NewPool constructs an empty, ready-to-use Pool.
func NewPool() *Pool {
	p := &Pool{}
	for i, sz := range tierSizes {
		p.tiers[i] = &tier{size: sz, cap: tierCaps[i]}
	}
	return p
}

// tierFor returns the index of the smallest tier that fits n bytes, or -1
// if n exceeds every tier (the caller must allocate outside the pool).
func (p *Pool) tierFor(n int) int {
	for i, sz := range tierSizes {
		if n <= sz {
			return i
		}
	}
	return -1
}

// Get returns a ByteBuffer with at least n bytes of capacity. Buffers
// larger than the biggest tier are allocated directly and are not pooled
// on Reuse.
func (p *Pool) Get(n int) *ByteBuffer {
	idx := p.tierFor(n)
	if idx < 0 {
		return &ByteBuffer{raw: make([]byte, 0, n), tier: -1}
	}
	t := p.tiers[idx]

	bb := t.pool.Get()
	if cap(bb.B) < t.size {
		bb.B = make([]byte, 0, t.size)
	} else {
		bb.B = bb.B[:0]
	}

	t.mu.Lock()
	if t.parked > 0 {
		t.parked--
	}
	t.mu.Unlock()

	return &ByteBuffer{raw: bb.B, pooled: bb, tier: idx}
}

// Reuse returns a buffer to its tier's pool, subject to the tier's cap.
// Over-capacity or over-sized buffers are dropped for the GC to collect.
func (p *Pool) Reuse(b *ByteBuffer) {
	if b == nil || b.tier < 0 {
		return
	}
	t := p.tiers[b.tier]

	t.mu.Lock()
	if t.parked >= t.cap {
		t.mu.Unlock()
		return
	}
	t.parked++
	t.mu.Unlock()

	b.pooled.B = b.raw[:0]
	t.pool.Put(b.pooled)
	b.pooled = nil
	b.raw = nil
}

// DefaultPool is the process-wide buffer pool, analogous to the source's
// single global BuffersStorage instance.
var DefaultPool = NewPool()
