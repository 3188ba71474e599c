// Package port owns the listening sockets this target binds and the
// event reactor that schedules each queue's I/O worker. Where the
// teacher's queue runner waited on io_uring completions for a single
// ublk character device, a Reactor here waits on epoll events across
// every connection a port has accepted, and the CPU-affinity/pinned-
// thread pattern from runner.go's ioLoop is reused verbatim for the
// reactor's own goroutine (spec.md §4.1, §6 expansion).
package port

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/i10-io/i10-target/internal/logging"
)

// EventKind distinguishes why a subscriber's callback fired.
type EventKind int

const (
	EventReadable EventKind = iota
	EventWritable
	EventHangup
)

// Subscriber is anything a Reactor can schedule on fd readiness. This
// is the "explicit event subscription" the REDESIGN FLAGS call for, in
// place of overriding a raw function pointer on the socket struct
// (spec.md §9).
type Subscriber interface {
	// OnReadable is called when fd has data available to read.
	OnReadable()
	// OnWritable is called when fd has buffer space available to write.
	OnWritable()
	// OnStateChange is called when the reactor observes fd close or error.
	OnStateChange(kind EventKind)
}

type registration struct {
	fd   int
	sub  Subscriber
	want uint32 // currently armed epoll events
}

// Reactor is a single epoll instance serving a set of registered file
// descriptors. One Reactor typically serves one CPU's worth of queues,
// matching the per-queue CPU affinity spec.md describes.
type Reactor struct {
	epfd int
	cpu  int
	log  *logging.Logger

	mu   sync.Mutex
	regs map[int]*registration

	closed chan struct{}
}

// NewReactor creates an epoll instance. cpu is the CPU index this
// reactor's Run goroutine will pin itself to (-1 to skip affinity).
func NewReactor(cpu int, log *logging.Logger) (*Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &Reactor{
		epfd:   epfd,
		cpu:    cpu,
		log:    log,
		regs:   make(map[int]*registration),
		closed: make(chan struct{}),
	}, nil
}

// Register arms fd for readable+writable events and associates sub
// with it.
func (r *Reactor) Register(fd int, sub Subscriber) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg := &registration{fd: fd, sub: sub, want: unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLRDHUP}
	r.regs[fd] = reg
	ev := unix.EpollEvent{Events: reg.want, Fd: int32(fd)}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// Unregister removes fd from the reactor. Callers close fd themselves
// once Unregister returns.
func (r *Reactor) Unregister(fd int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.regs[fd]; !ok {
		return
	}
	unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil) //nolint:errcheck // fd may already be gone
	delete(r.regs, fd)
}

// SetInterest re-arms fd's epoll events, used to drop EPOLLOUT once a
// queue has no more pending sends so epoll stops waking it on every
// writable edge (spec.md §4.4: only rearm writable interest when a
// caravan actually has unflushed work).
func (r *Reactor) SetInterest(fd int, readable, writable bool) error {
	r.mu.Lock()
	reg, ok := r.regs[fd]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	var events uint32 = unix.EPOLLRDHUP
	if readable {
		events |= unix.EPOLLIN
	}
	if writable {
		events |= unix.EPOLLOUT
	}
	reg.want = events
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

// Run drains epoll_wait in a loop, dispatching to each fd's Subscriber,
// until Close is called. Callers run this in its own goroutine, pinned
// to the reactor's configured CPU the same way the teacher's ioLoop
// pinned its queue-runner goroutine.
func (r *Reactor) Run() {
	const maxEvents = 128
	events := make([]unix.EpollEvent, maxEvents)

	if r.cpu >= 0 {
		pinToCPU(r.cpu, r.log)
	}

	for {
		select {
		case <-r.closed:
			return
		default:
		}

		n, err := unix.EpollWait(r.epfd, events, 100)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if r.log != nil {
				r.log.Errorf("reactor: epoll_wait: %v", err)
			}
			return
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			r.mu.Lock()
			reg, ok := r.regs[fd]
			r.mu.Unlock()
			if !ok {
				continue
			}
			flags := events[i].Events
			if flags&(unix.EPOLLHUP|unix.EPOLLERR|unix.EPOLLRDHUP) != 0 {
				reg.sub.OnStateChange(EventHangup)
				continue
			}
			if flags&unix.EPOLLIN != 0 {
				reg.sub.OnReadable()
			}
			if flags&unix.EPOLLOUT != 0 {
				reg.sub.OnWritable()
			}
		}
	}
}

// Close stops Run and releases the epoll fd.
func (r *Reactor) Close() error {
	close(r.closed)
	return unix.Close(r.epfd)
}
