// Package backend defines the interface between the i10 target core and
// the NVMe target backend that actually executes commands. This is the
// "external collaborator" boundary from spec.md §1/§6: the core only
// calls Submit/CompleteLocal/Uninit and waits for the QueueResponse
// callback; it never inspects how a command is executed.
package backend

// Status is the NVMe completion status this target places in the
// completion queue entry it sends back on the wire.
type Status uint16

// Request is a single NVMe command handed to the backend for execution.
// The core pre-allocates one Request per command slot and reuses it; the
// backend must not retain it past the matching completion callback.
type Request struct {
	// Opcode is the NVMe command opcode (wire.NvmeCmdRead/Write/Flush/...).
	Opcode uint8
	// CID is the command identifier to echo in the completion.
	CID uint16
	// NSID is the namespace identifier.
	NSID uint32
	// CDW10..CDW15 carry command-specific fields (LBA, length, ...).
	CDW10, CDW11, CDW12, CDW13, CDW14, CDW15 uint32
	// SG is the scatter-gather list of data pages for this command's
	// transfer, already sized to TransferLen and populated (for writes)
	// or ready to be populated (for reads) by the time Submit is called.
	SG [][]byte
	// TransferLen is the total data transfer length in bytes.
	TransferLen uint32

	// queueResponse is set by the core before Submit is called and
	// invoked by the backend exactly once, from any goroutine, when the
	// command completes.
	queueResponse func(req *Request, status Status)
}

// Complete invokes the completion callback the core installed. Backends
// call this exactly once per submitted (or locally completed) request.
func (r *Request) Complete(status Status) {
	if r.queueResponse != nil {
		r.queueResponse(r, status)
	}
}

// SetResponder installs the completion callback. Called by the core
// before Submit; not part of the backend-facing contract.
func (r *Request) SetResponder(f func(req *Request, status Status)) {
	r.queueResponse = f
}

// SubmissionQueue identifies the per-connection queue a backend instance
// serves, created by InitQueue and destroyed by the core at teardown.
type SubmissionQueue interface {
	// QID is the NVMe queue identifier; 0 is the admin queue.
	QID() uint16
}

// Backend is the interface the i10 target core consumes. An
// implementation owns a namespace's data and decides how commands
// execute; it never touches sockets, PDUs, or caravans.
type Backend interface {
	// InitQueue creates a per-connection submission queue context. Called
	// once a host has bound a submission queue identity (spec.md §6
	// install_queue); right after it returns, the core builds the queue
	// with a command pool of 2 * size slots.
	InitQueue(qid uint16, size int) (SubmissionQueue, error)

	// Submit hands a prepared command for asynchronous execution. The
	// backend must eventually call req.Complete exactly once.
	Submit(sq SubmissionQueue, req *Request)

	// CompleteLocal synchronously completes a request that failed
	// validation before reaching the backend (e.g. a rejected SGL type).
	// It does not tear the connection down.
	CompleteLocal(req *Request, status Status)

	// Uninit aborts a request that was initialized but never submitted,
	// e.g. because the connection tore down mid-receive.
	Uninit(req *Request)

	// FatalError escalates a protocol violation observed on a queue to
	// whatever controller the backend associates with it.
	FatalError(sq SubmissionQueue)

	// DestroyQueue tears down the backend-side state for sq. Called once
	// during queue release, after the I/O worker has quiesced.
	DestroyQueue(sq SubmissionQueue)
}
