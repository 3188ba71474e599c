package queue

import (
	"github.com/i10-io/i10-target/internal/backend"
)

// SendState is the five-state send progression a slot walks through
// while its completion is being written to the wire (spec.md §4.3).
type SendState int

const (
	SendStateNone SendState = iota
	SendStateDataPdu
	SendStateData
	SendStateDataDigest
	SendStateR2T
	SendStateResponse
)

// sendKind distinguishes the flavor of completion a fetched slot carries.
// Only Reset assigns it (to sendKindOther); the send path chooses a
// caravan from Read instead (see caravanWriteKind).
type sendKind int

const (
	sendKindRead sendKind = iota
	sendKindWrite
	sendKindOther
)

// slotFlags are bookkeeping bits, not protocol state.
type slotFlags uint32

const (
	flagInitFailed slotFlags = 1 << iota // drain payload but never execute
	flagNeedDataIn                       // parked waiting for h2c_data
)

// Slot is a pre-allocated, index-identified command context. Index is
// stable for the queue's lifetime and doubles as the wire ttag
// (spec.md §3). A slot is owned by one of: the pool's free list, the
// current receive command, the current send command, or the response
// list. A caravan's parked-command list may still hold its index after
// the slot has returned to the free list, until that caravan is flushed.
type Slot struct {
	Index uint16 // stable slot index == wire ttag

	Req backend.Request // submission request handle, reused across uses

	CmdPDU []byte // raw cmd PDU buffer (header + SQE), reused
	RspPDU []byte // raw rsp PDU buffer, filled before send
	DataHdr []byte // raw c2h-data / r2t header buffer, filled before send

	CID  uint16 // NVMe command id, echoed in the completion
	Read bool   // true if this is a read command (drives caravan choice)

	TransferLen uint32 // total data transfer length
	RBytesDone  uint32 // bytes received from peer
	WBytesDone  uint32 // bytes written to socket
	PduLen      uint32 // current inbound PDU payload length
	PduRecv     uint32 // bytes received of the current inbound PDU

	SG     [][]byte // scatter-gather list of data pages
	CurSG  int      // cursor into SG
	Offset int      // byte offset within SG[CurSG]

	SendState SendState
	kind      sendKind

	ExpDDGST  uint32
	RecvDDGST uint32

	Flags slotFlags

	Status backend.Status // completion status once the backend replies
}

// Reset clears a slot's transient fields before it's reused for a new
// command. Index, Req, and the PDU buffers are left intact so the pool
// never reallocates them.
func (s *Slot) Reset() {
	s.CID = 0
	s.Read = false
	s.TransferLen = 0
	s.RBytesDone = 0
	s.WBytesDone = 0
	s.PduLen = 0
	s.PduRecv = 0
	s.SG = s.SG[:0]
	s.CurSG = 0
	s.Offset = 0
	s.SendState = SendStateNone
	s.kind = sendKindOther
	s.ExpDDGST = 0
	s.RecvDDGST = 0
	s.Flags = 0
	s.Status = 0
}

// InitFailed reports whether this slot's payload must be drained but
// never executed (a validation failure discovered mid-receive).
func (s *Slot) InitFailed() bool { return s.Flags&flagInitFailed != 0 }

// MarkInitFailed records that the slot's command was rejected before
// submission; the receive pipeline keeps draining its inline data so the
// wire stream stays in sync, but the backend never sees it.
func (s *Slot) MarkInitFailed() { s.Flags |= flagInitFailed }

// NeedDataIn reports whether this slot sent an r2t and is still parked
// waiting for the matching h2c_data (spec.md §4.6 step 4).
func (s *Slot) NeedDataIn() bool { return s.Flags&flagNeedDataIn != 0 }

// MarkNeedDataIn records that the slot is now waiting on h2c_data.
func (s *Slot) MarkNeedDataIn() { s.Flags |= flagNeedDataIn }

// ClearNeedDataIn records that the slot's h2c_data wait is over, either
// because the data arrived or the command was completed some other way.
func (s *Slot) ClearNeedDataIn() { s.Flags &^= flagNeedDataIn }

// entryState picks the send-state progression's entry point, per the
// table in spec.md §4.3. Its only production call site is the backend
// completion callback, which never has a write command in hand (writes
// enter r2t before submission, via queueR2T, not after completion), so
// the !read&&hasPayload case only fires for a read command's payload;
// it is kept here because it's part of the table spec.md §4.3 defines,
// not because backend completions exercise it.
func entryState(read bool, hasPayload bool) SendState {
	switch {
	case read && hasPayload:
		return SendStateDataPdu
	case !read && hasPayload:
		return SendStateR2T
	default:
		return SendStateResponse
	}
}

// caravanWriteKind reports whether this slot's response belongs in the
// write-command or read-command send path, used by the caravan
// classifier (spec.md §4.3 table).
func (s *Slot) caravanWriteKind() bool {
	return !s.Read
}
