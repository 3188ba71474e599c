// Package queue implements one NVMe-over-TCP queue pair: the receive and
// send state machines, the command-slot pool, and the caravan batching
// of outbound PDUs (spec.md §3-§5). It is deliberately socket-library
// agnostic — internal/port drives a Queue's driveRecv/driveSend from its
// reactor, the way the teacher's internal/queue.Runner drove its ublk
// SQE loop from io_uring completions.
package queue

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/i10-io/i10-target/internal/backend"
	"github.com/i10-io/i10-target/internal/digest"
	"github.com/i10-io/i10-target/internal/logging"
	"github.com/i10-io/i10-target/internal/metrics"
	"github.com/i10-io/i10-target/internal/uring"
	"github.com/i10-io/i10-target/internal/wire"
)

// State is a queue's connection lifecycle state (spec.md §4.1, §4.6).
// The Connecting -> Live -> Disconnecting transition happens at most
// once in each direction, guarded by stateMu.
type State int32

const (
	StateConnecting State = iota
	StateLive
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateLive:
		return "live"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// Policy controls per-queue send behavior that used to be an
// admin-queue branch inline in the send step (spec.md §9 redesign):
// the admin queue (qid 0) runs with Batching=false and every response
// goes straight to the wire; I/O queues run with Batching=true.
type Policy struct {
	Batching bool
}

// Queue is one NVMe-over-TCP queue pair: one TCP connection, one
// command-slot pool, and — for I/O queues — two outbound caravans.
type Queue struct {
	QID    uint16
	CorrID string

	conn   net.Conn
	rawFD  int
	policy Policy

	pool      *Pool
	responses ResponseList
	sendList  []uint16 // slot indices whose send progression is pending

	caravans [2]*Caravan

	hdrDigest  bool
	dataDigest bool

	recv recvCursor

	sq      backend.SubmissionQueue
	backend backend.Backend

	state   atomic.Int32
	stateMu sync.Mutex

	cpu int

	// ring, when non-nil, carries caravan flushes as a single batched
	// IORING_OP_WRITEV instead of net.Buffers.WriteTo. It is only
	// non-nil in builds tagged giouring; every other build flushes over
	// the plain net.Conn path.
	ring uring.Ring

	log     *logging.Logger
	metrics *metrics.Metrics

	onStateChange func(q *Queue, s State)
}

// Config carries everything needed to construct a Queue.
type Config struct {
	QID     uint16
	CorrID  string
	Conn    net.Conn
	Backend backend.Backend
	Depth   int
	CPU     int
	Log     *logging.Logger
	Metrics *metrics.Metrics

	// UseIOURing opts a queue into flushing caravans through
	// internal/uring instead of net.Buffers. Builds without the
	// giouring tag silently ignore this (uring.NewRing always errors,
	// logged once, and the queue falls back to net.Buffers).
	UseIOURing bool

	// OnStateChange, if set, is invoked (at most once per transition)
	// whenever the queue moves to a new State.
	OnStateChange func(q *Queue, s State)
}

// New builds a Queue in StateConnecting. The admin queue (qid 0) never
// caravans; every other queue does.
func New(cfg Config) *Queue {
	q := &Queue{
		QID:           cfg.QID,
		CorrID:        cfg.CorrID,
		conn:          cfg.Conn,
		policy:        Policy{Batching: cfg.QID != wire.AdminQueueID},
		pool:          NewPool(2 * cfg.Depth),
		backend:       cfg.Backend,
		cpu:           cfg.CPU,
		log:           cfg.Log,
		metrics:       cfg.Metrics,
		onStateChange: cfg.OnStateChange,
	}
	if q.policy.Batching {
		q.caravans[CaravanLarge] = NewCaravanLarge()
		q.caravans[CaravanSmall] = NewCaravanSmall()
	}
	if tc, ok := cfg.Conn.(*net.TCPConn); ok {
		if raw, err := tc.SyscallConn(); err == nil {
			raw.Control(func(fd uintptr) { q.rawFD = int(fd) })
		}
	}
	if cfg.UseIOURing {
		ring, err := uring.NewRing(uring.Config{Entries: uint32(cfg.Depth * 2)})
		if err != nil {
			if q.log != nil {
				q.log.Debugf("qid=%d io_uring transport unavailable, using net.Buffers: %v", q.QID, err)
			}
		} else {
			q.ring = ring
		}
	}
	return q
}

// State returns the queue's current lifecycle state.
func (q *Queue) State() State { return State(q.state.Load()) }

// setState performs the once-only transition to s, invoking
// onStateChange if this call actually moved the state (spec.md §4.6:
// "the transition happens at most once").
func (q *Queue) setState(s State) bool {
	q.stateMu.Lock()
	defer q.stateMu.Unlock()
	if State(q.state.Load()) == s {
		return false
	}
	if s == StateDisconnecting && State(q.state.Load()) == StateDisconnecting {
		return false
	}
	prev := State(q.state.Load())
	q.state.Store(int32(s))
	if q.metrics != nil {
		q.metrics.QueueState.WithLabelValues(qidLabel(q.QID), prev.String()).Set(0)
		q.metrics.QueueState.WithLabelValues(qidLabel(q.QID), s.String()).Set(1)
	}
	if q.onStateChange != nil {
		q.onStateChange(q, s)
	}
	return true
}

// MarkDisconnecting transitions the queue to Disconnecting exactly
// once; subsequent calls are no-ops (spec.md §4.6).
func (q *Queue) MarkDisconnecting() bool {
	return q.setState(StateDisconnecting)
}

// readInto attempts a near-non-blocking read: a deadline one millisecond
// out lets conn.Read return queued data at once and return a timeout
// error shortly after when no data is queued, rather than parking the
// calling goroutine, so the I/O worker's budget accounting stays
// meaningful (spec.md §4.2). The deadline must lie in the future: with
// one already passed, conn.Read fails without reading at all. The
// reactor only calls into this once epoll has already reported the fd
// readable, so the common case returns real data on the first try.
func (q *Queue) readInto(buf []byte) (int, error) {
	if err := q.conn.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return 0, err
	}
	n, err := q.conn.Read(buf)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return n, errWouldBlock
		}
		return n, err
	}
	if n == 0 {
		return 0, errWouldBlock
	}
	return n, nil
}

// handleICReq validates and answers the connection-establishment
// request (spec.md §4.5). Any malformed icreq is unconditionally
// fatal — no further field inspection once one check fails, per the
// resolved open question.
func (q *Queue) handleICReq(req *wire.ICReq) error {
	if req.Header.PLen != wire.ICReqLen || req.PFV != wire.PFV || req.HPDA != wire.HPDA || req.MaxR2T != wire.MaxR2T {
		return errConnFatal
	}

	q.hdrDigest = req.Digest&wire.DigestEnableHeader != 0
	q.dataDigest = req.Digest&wire.DigestEnableData != 0

	resp := &wire.ICResp{
		Header: wire.Header{
			Type: wire.PduTypeICResp,
			HLen: wire.ICRespLen,
			PLen: wire.ICRespLen,
		},
		PFV:     wire.PFV,
		CPDA:    wire.CPDA,
		Digest:  req.Digest & (wire.DigestEnableHeader | wire.DigestEnableData),
		MaxData: wire.MaxDataICResp,
	}
	buf := wire.MarshalICResp(resp)
	if _, err := q.conn.Write(buf); err != nil {
		return err
	}
	if q.metrics != nil {
		q.metrics.PDUsSent.WithLabelValues("icresp").Inc()
	}
	q.setState(StateLive)
	return nil
}

// handleCmd prepares a command slot from a freshly received command
// PDU: binds the backend request, decides inline-data placement, and
// rejects any SGL descriptor type other than the single accepted
// inline-data layout (spec.md §9 resolved open question) without
// tearing the connection down — that rejection completes locally.
func (q *Queue) handleCmd(slot *Slot, cmd *wire.CmdPdu) error {
	slot.CID = cmd.SQE.CID
	slot.Read = cmd.SQE.Opcode == wire.NvmeCmdRead
	slot.TransferLen = transferLen(cmd)
	slot.SendState = SendStateNone

	slot.Req = backend.Request{
		Opcode:      cmd.SQE.Opcode,
		CID:         cmd.SQE.CID,
		NSID:        cmd.SQE.NSID,
		CDW10:       cmd.SQE.CDW10,
		CDW11:       cmd.SQE.CDW11,
		CDW12:       cmd.SQE.CDW12,
		CDW13:       cmd.SQE.CDW13,
		CDW14:       cmd.SQE.CDW14,
		CDW15:       cmd.SQE.CDW15,
		TransferLen: slot.TransferLen,
	}
	slot.Req.SetResponder(q.onBackendComplete)

	if slot.TransferLen > 0 && cmd.SQE.SGLDescTyp != wire.InlineDataSGLByte {
		slot.MarkInitFailed()
	}
	if slot.TransferLen > 0 {
		slot.SG = [][]byte{make([]byte, slot.TransferLen)}
		slot.Req.SG = slot.SG
	}

	if q.metrics != nil {
		q.metrics.PDUsReceived.WithLabelValues("cmd").Inc()
		q.metrics.SlotsInUse.WithLabelValues(qidLabel(q.QID)).Set(float64(q.pool.InUse()))
	}
	return nil
}

// queueR2T arms a slot to wait for host-to-controller data and enqueues
// an r2t PDU for it via the normal send progression.
func (q *Queue) queueR2T(slot *Slot) {
	slot.SendState = SendStateR2T
	slot.MarkNeedDataIn()
	q.sendList = append(q.sendList, slot.Index)
}

// UninitPendingDataIn walks the pool for every slot still parked
// waiting for h2c_data and hands it to the backend's Uninit path, the
// way the teacher-analogue's i10_target_uninit_data_in_cmds tears down
// a queue's in-flight r2t commands at connection teardown (spec.md
// §4.6 step 4).
func (q *Queue) UninitPendingDataIn() {
	for i := range q.pool.slots {
		slot := &q.pool.slots[i]
		if !slot.NeedDataIn() {
			continue
		}
		slot.ClearNeedDataIn()
		q.backend.Uninit(&slot.Req)
	}
}

// completeLocally finishes a request the backend never saw, building
// the same rsp-PDU send progression a backend completion would.
func (q *Queue) completeLocally(slot *Slot, status backend.Status) {
	slot.ClearNeedDataIn()
	slot.Status = status
	slot.SendState = SendStateResponse
	q.sendList = append(q.sendList, slot.Index)
}

// onBackendComplete is the callback installed on every slot's Request;
// the backend invokes it from an arbitrary goroutine exactly once.
func (q *Queue) onBackendComplete(req *backend.Request, status backend.Status) {
	idx := q.slotIndexForRequest(req)
	slot := q.pool.Get(idx)
	slot.Status = status
	slot.SendState = entryState(slot.Read, slot.TransferLen > 0 && slot.Read)
	q.responses.Push(idx)
}

// slotIndexForRequest recovers a slot's index from the embedded
// backend.Request pointer identity: callers always pass back the same
// *Request the core handed out, so it scans the pool for the slot whose
// Req field has that address. It returns 0 when no slot matches.
func (q *Queue) slotIndexForRequest(req *backend.Request) uint16 {
	for i := range q.pool.slots {
		if &q.pool.slots[i].Req == req {
			return uint16(i)
		}
	}
	return 0
}

func transferLen(cmd *wire.CmdPdu) uint32 {
	switch cmd.SQE.Opcode {
	case wire.NvmeCmdRead, wire.NvmeCmdWrite:
		return (cmd.SQE.CDW12&0xffff + 1) * 512
	default:
		return 0
	}
}

func qidLabel(qid uint16) string {
	return itoa(int(qid))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [6]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// sgWindow returns the slice of a slot's scatter-gather buffer backing
// [offset, offset+length), validating it stays within TransferLen
// (spec.md §4.2 h2c_data offset validation).
func (s *Slot) sgWindow(offset, length int) ([]byte, error) {
	if offset < 0 || length < 0 || offset+length > int(s.TransferLen) || len(s.SG) == 0 {
		return nil, errConnFatal
	}
	return s.SG[0][offset : offset+length], nil
}

// headerDigestOf computes the header digest over a marshaled PDU
// header, used by the send path when header digests are negotiated.
func headerDigestOf(buf []byte) uint32 {
	return digest.Of(buf)
}
