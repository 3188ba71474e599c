// Package uring provides an optional io_uring-backed transport for
// caravan flushes, grounded on the teacher's internal/uring Ring/Batch
// split (its ublk control-command plumbing doesn't apply here, but the
// build-tagged real-vs-stub shape and the Ring/Batch/Result interfaces
// carry over unchanged). When built with -tags giouring, NewRing
// submits a caravan's scatter-gather segments as a single batched
// IORING_OP_WRITEV instead of a net.Buffers.WriteTo syscall sequence;
// otherwise NewRing always errors and the caravan falls back to
// net.Buffers (queue.Config.UseIOURing stays false by default).
package uring

import "errors"

// ErrRingFull is returned when the submission queue is full. The
// caravan caller is expected to fall back to a synchronous flush when
// this happens rather than retry indefinitely.
var ErrRingFull = errors.New("uring: submission queue full")

// Ring is the minimal io_uring surface a caravan flush needs: submit a
// writev of its parked segments against the queue's connection fd.
type Ring interface {
	// Close releases the ring's kernel resources.
	Close() error

	// SubmitWritev submits iovecs as a single writev against fd and
	// blocks for its completion, returning the syscall's result.
	SubmitWritev(fd int, iovecs [][]byte, userData uint64) (Result, error)

	// NewBatch starts a batch of writev operations that Batch.Submit
	// will issue with one io_uring_enter.
	NewBatch() Batch
}

// Batch accumulates writev operations for one combined submission.
type Batch interface {
	// AddWritev queues a writev against fd; no syscall happens until
	// Submit is called.
	AddWritev(fd int, iovecs [][]byte, userData uint64) error

	// Submit issues every queued writev with a single io_uring_enter
	// and waits for all their completions.
	Submit() ([]Result, error)

	// Len reports how many operations are queued.
	Len() int
}

// Result is one completion's outcome.
type Result interface {
	// UserData returns the tag the caller associated with the submission
	// (queue.Queue.flush passes the caravan's CaravanID cast to uint64).
	UserData() uint64

	// Value is the raw syscall return value: bytes written, or a
	// negative errno on failure.
	Value() int32

	// Error reports a non-nil error when Value is negative.
	Error() error
}

// Config configures a new ring.
type Config struct {
	Entries uint32 // submission/completion queue depth
}

// NewRing creates a Ring. Without the giouring build tag this always
// returns an error; callers must treat that as "use net.Buffers
// instead" rather than a fatal condition.
func NewRing(config Config) (Ring, error) {
	return NewRealRing(config)
}
