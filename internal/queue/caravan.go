package queue

import (
	"github.com/i10-io/i10-target/internal/constants"
)

// CaravanID names one of a queue's two outbound caravans (spec.md §3,
// §4.3). The teacher's domain never batched outbound writes at all;
// this and the rest of the package are grounded on the retrieved
// PINoF.c caravan/caravan2 structures, generalized per the "one Caravan
// type parameterized by capacity and a classifier" redesign (spec.md §9).
type CaravanID int

const (
	// CaravanLarge carries c2h-data PDUs, their payload pages, and
	// write-command responses.
	CaravanLarge CaravanID = iota
	// CaravanSmall carries r2t PDUs and read-command responses.
	CaravanSmall
)

// Classify picks which caravan a slot's next send-state step belongs in.
// A nil caravan destination (admin queue) is decided by the caller, not
// here — Classify only distinguishes large vs small for a caravanning
// queue.
func Classify(state SendState, write bool) CaravanID {
	switch state {
	case SendStateDataPdu, SendStateData, SendStateDataDigest:
		return CaravanLarge
	case SendStateR2T:
		return CaravanSmall
	case SendStateResponse:
		if write {
			return CaravanLarge
		}
		return CaravanSmall
	default:
		return CaravanSmall
	}
}

// segment is one (base, length) range destined for a single sendmsg's
// scatter-gather vector. Segments reference slot-owned buffers or
// backend-pinned pages directly; the caravan never copies payload data.
type segment struct {
	buf []byte
}

// Caravan batches outbound segments for one class of send-state work,
// up to a byte capacity and three secondary caps, and force-flushes
// when any of the four is reached (spec.md §4.3, §4.4). One Caravan
// value serves both the "large" and "small" roles; only the capacity
// and caps passed to NewCaravan differ.
type Caravan struct {
	id CaravanID

	byteCapacity int
	maxSegments  int
	maxCommands  int
	maxPages     int

	segments []segment
	bytes    int

	// parked holds the index of every slot that appended segments to
	// this caravan since the last flush; it counts toward the command
	// cap. Flushing only clears it: a slot is released by driveSend once
	// its response step is appended, before this caravan is flushed.
	parked []uint16

	// pinned counts pages currently held by segments in this caravan,
	// via the backend's pinned-range accounting (spec.md §9 redesign:
	// scoped pin/unpin instead of manual page map/unmap).
	pinned int

	forceFlush bool
}

// NewCaravanLarge builds the caravan sized per spec.md's large-class
// capacity and budget-derived caps.
func NewCaravanLarge() *Caravan {
	return newCaravan(CaravanLarge, constants.CaravanLargeCapacity)
}

// NewCaravanSmall builds the caravan sized per spec.md's small-class
// capacity and budget-derived caps.
func NewCaravanSmall() *Caravan {
	return newCaravan(CaravanSmall, constants.CaravanSmallCapacity)
}

func newCaravan(id CaravanID, byteCapacity int) *Caravan {
	return &Caravan{
		id:           id,
		byteCapacity: byteCapacity,
		maxSegments:  constants.CaravanMaxSegments,
		maxCommands:  constants.CaravanMaxCommands,
		maxPages:     constants.CaravanMaxMappedPages,
	}
}

// HasRoomFor reports whether nSegs more segments totaling nBytes, plus
// nPages additional pinned pages, would fit without forcing a flush
// first. Callers must check this before Append (spec.md §4.4
// "check-space before send").
func (c *Caravan) HasRoomFor(nBytes, nSegs, nPages int) bool {
	if len(c.segments)+nSegs > c.maxSegments {
		return false
	}
	if c.bytes+nBytes > c.byteCapacity {
		return false
	}
	if nPages > 0 && c.pinned+nPages > c.maxPages {
		return false
	}
	return true
}

// HasRoom is the single-segment convenience form of HasRoomFor.
func (c *Caravan) HasRoom(buf []byte, pinPages int) bool {
	return c.HasRoomFor(len(buf), 1, pinPages)
}

// Append adds buf as a new scatter-gather segment. Callers must have
// already verified HasRoom; Append does not flush on its own.
func (c *Caravan) Append(buf []byte, pinPages int) {
	c.segments = append(c.segments, segment{buf: buf})
	c.bytes += len(buf)
	c.pinned += pinPages
}

// AppendAll adds every buffer in bufs as its own segment, in order.
func (c *Caravan) AppendAll(bufs [][]byte, pinPages int) {
	for _, b := range bufs {
		c.segments = append(c.segments, segment{buf: b})
		c.bytes += len(b)
	}
	c.pinned += pinPages
}

// Park records that slotIdx now has outstanding data in this caravan
// and sets the force-flush latch once any of the four caps is reached.
func (c *Caravan) Park(slotIdx uint16) {
	c.parked = append(c.parked, slotIdx)
	if len(c.parked) >= c.maxCommands {
		c.forceFlush = true
	}
	if len(c.segments) >= c.maxSegments {
		c.forceFlush = true
	}
	if c.bytes >= c.byteCapacity {
		c.forceFlush = true
	}
	if c.pinned >= c.maxPages {
		c.forceFlush = true
	}
}

// MustFlush reports whether a cap was reached and this caravan should
// be flushed even though the I/O worker still has send budget left.
func (c *Caravan) MustFlush() bool { return c.forceFlush }

// Empty reports whether the caravan holds no segments to flush.
func (c *Caravan) Empty() bool { return len(c.segments) == 0 }

// Iovecs returns the raw buffers for a scatter-gather sendmsg, in
// append order.
func (c *Caravan) Iovecs() [][]byte {
	bufs := make([][]byte, len(c.segments))
	for i, s := range c.segments {
		bufs[i] = s.buf
	}
	return bufs
}

// Parked returns the slot indices parked in this caravan, in append
// order. The flush path does not consult it.
func (c *Caravan) Parked() []uint16 {
	return c.parked
}

// Reset clears the caravan after a successful flush (spec.md §4.4
// "post-process, reset counters").
func (c *Caravan) Reset() {
	c.segments = c.segments[:0]
	c.bytes = 0
	c.parked = c.parked[:0]
	c.pinned = 0
	c.forceFlush = false
}
