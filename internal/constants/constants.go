// Package constants collects the fixed budgets and sizes spec.md assigns
// names to, so the rest of the tree refers to them by meaning instead of
// repeating magic numbers (the teacher's internal/constants convention).
package constants

import "time"

// Per-worker-pass budgets (spec.md §4.2-§4.4).
const (
	// RecvBudget is the maximum number of PDUs the receive pipeline
	// drains in one I/O worker pass.
	RecvBudget = 16

	// SendBudget is the maximum number of commands the send pipeline
	// drains in one I/O worker pass.
	SendBudget = 16

	// IOWorkBudget bounds total receive+send operations per worker
	// invocation before it must yield and re-schedule itself.
	IOWorkBudget = 64
)

// Caravan capacities and secondary caps (spec.md §3, §4.3). The three
// non-byte caps apply to both caravans and scale with SendBudget.
const (
	// CaravanLargeCapacity is the byte capacity of the caravan carrying
	// c2h-data PDUs, c2h payload pages, and write-command responses.
	CaravanLargeCapacity = 65536

	// CaravanSmallCapacity is the byte capacity of the caravan carrying
	// r2t PDUs and read-command responses.
	CaravanSmallCapacity = 256

	// CaravanMaxSegments caps the number of (base, len) wire segments a
	// caravan may accumulate before a flush is forced.
	CaravanMaxSegments = SendBudget * 3

	// CaravanMaxCommands caps the number of parked commands a caravan
	// may hold before a flush is forced.
	CaravanMaxCommands = SendBudget

	// CaravanMaxMappedPages caps the number of pinned pages a caravan
	// may hold before a flush is forced.
	CaravanMaxMappedPages = SendBudget
)

// Default per-port configuration (spec.md §6).
const (
	// DefaultInlineDataSize is the default maximum in-capsule write data
	// size: 4 * PAGE_SIZE.
	DefaultInlineDataSize = 4 * 4096

	// ListenBacklog is a listen(2) backlog size. Nothing passes it to
	// listen(2): port.AddPort listens through net.ListenTCP, which picks
	// its own backlog.
	ListenBacklog = 128

	// ForcedSocketBufferBytes is the forced send/receive socket buffer
	// size applied to every accepted connection (spec.md §4.1).
	ForcedSocketBufferBytes = 8 << 20
)

// DefaultQueueDepth bounds the number of in-flight commands per queue;
// the command pool is sized to 2x this once the host binds a submission
// queue (spec.md §6, install_queue).
const DefaultQueueDepth = 128

// TCPInfoPollInterval is a sampling interval for TCP_INFO closed-state
// polling. No poller reads it: a port moves a queue to Disconnecting when
// its reactor reports EPOLLHUP, EPOLLERR or EPOLLRDHUP on the socket.
const TCPInfoPollInterval = 200 * time.Millisecond
