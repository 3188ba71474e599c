package queue

import (
	"sync/atomic"

	"github.com/i10-io/i10-target/internal/wire"
)

// Pool owns every command slot for one queue and the free list of
// indices. Only the queue's own I/O worker goroutine touches the free
// list, so it needs no synchronization — the spec's disjoint-set
// invariant holds because allocation and release both happen on that
// single goroutine (spec.md §3, §5).
type Pool struct {
	slots []Slot
	free  []uint16 // stack of free indices, LIFO
}

// NewPool allocates depth slots and their PDU buffers up front: a
// command buffer, a response buffer, and one header buffer shared by
// c2h-data and r2t, per slot.
func NewPool(depth int) *Pool {
	p := &Pool{
		slots: make([]Slot, depth),
		free:  make([]uint16, depth),
	}
	for i := 0; i < depth; i++ {
		p.slots[i].Index = uint16(i)
		p.slots[i].CmdPDU = make([]byte, wire.CmdPduLen+wire.DigestLen)
		p.slots[i].RspPDU = make([]byte, wire.RspPduLen)
		p.slots[i].DataHdr = make([]byte, wire.DataPduLen+wire.DigestLen)
		p.free[i] = uint16(depth - 1 - i)
	}
	return p
}

// Depth returns the number of slots in the pool.
func (p *Pool) Depth() int { return len(p.slots) }

// Get returns the slot at idx. Index is stable for the queue's lifetime.
func (p *Pool) Get(idx uint16) *Slot { return &p.slots[idx] }

// Alloc pops a free slot, or reports false if the pool is exhausted.
// Exhaustion is fatal to the connection (spec.md §7).
func (p *Pool) Alloc() (*Slot, bool) {
	if len(p.free) == 0 {
		return nil, false
	}
	n := len(p.free) - 1
	idx := p.free[n]
	p.free = p.free[:n]
	slot := &p.slots[idx]
	slot.Reset()
	return slot, true
}

// Release returns a slot to the free list. Callers must have already
// removed it from whichever other set it belonged to (receive/send
// cursor, response list, caravan).
func (p *Pool) Release(idx uint16) {
	p.free = append(p.free, idx)
}

// InUse reports how many slots are not currently on the free list.
func (p *Pool) InUse() int { return len(p.slots) - len(p.free) }

// respNode is one link in the MPSC response stack. Backend completions
// push nodes from arbitrary goroutines; the I/O worker is the single
// consumer that drains the whole stack at once (spec.md §4.3 Fetch,
// §5 Locks and shared state).
type respNode struct {
	idx  uint16
	next *respNode
}

// ResponseList is a lock-free multi-producer, single-consumer stack of
// slot indices. It replaces the teacher-analogue's intrusive llist_node
// with a plain index carrier, per the "intrusive free lists" redesign
// (spec.md §9).
type ResponseList struct {
	head atomic.Pointer[respNode]
	// nodeFree is a tiny pool of node wrappers so Push doesn't allocate on
	// every completion once steady state is reached.
	nodeFree atomic.Pointer[respNode]
}

// Push enqueues idx. Safe to call concurrently from any goroutine.
func (r *ResponseList) Push(idx uint16) {
	n := r.getNode(idx)
	for {
		old := r.head.Load()
		n.next = old
		if r.head.CompareAndSwap(old, n) {
			return
		}
	}
}

// DrainInto pops every currently-enqueued index, in LIFO push order
// reversed back to arrival (FIFO) order, and appends them to dst. This
// amortises the MPSC cost by moving the whole snapshot in one CAS
// (spec.md §4.3 Fetch).
func (r *ResponseList) DrainInto(dst []uint16) []uint16 {
	var head *respNode
	for {
		head = r.head.Load()
		if head == nil {
			return dst
		}
		if r.head.CompareAndSwap(head, nil) {
			break
		}
	}

	// head is a LIFO chain of the most-recently-pushed-first; reverse it
	// so completions are handed to the send list in arrival order.
	var rev *respNode
	for head != nil {
		next := head.next
		head.next = rev
		rev = head
		head = next
	}
	for n := rev; n != nil; {
		dst = append(dst, n.idx)
		next := n.next
		r.putNode(n)
		n = next
	}
	return dst
}

func (r *ResponseList) getNode(idx uint16) *respNode {
	for {
		n := r.nodeFree.Load()
		if n == nil {
			return &respNode{idx: idx}
		}
		if r.nodeFree.CompareAndSwap(n, n.next) {
			n.idx = idx
			n.next = nil
			return n
		}
	}
}

func (r *ResponseList) putNode(n *respNode) {
	for {
		old := r.nodeFree.Load()
		n.next = old
		if r.nodeFree.CompareAndSwap(old, n) {
			return
		}
	}
}
