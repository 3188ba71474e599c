//go:build giouring
// +build giouring

// Package uring, under the giouring build tag, implements Ring with
// github.com/pawelgaczynski/giouring's liburing-shaped bindings.
package uring

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/pawelgaczynski/giouring"
	"golang.org/x/sys/unix"
)

type iouRing struct {
	mu   sync.Mutex
	ring *giouring.Ring
}

type iouResult struct {
	userData uint64
	value    int32
	err      error
}

func (r *iouResult) UserData() uint64 { return r.userData }
func (r *iouResult) Value() int32     { return r.value }
func (r *iouResult) Error() error     { return r.err }

// NewRealRing creates a giouring-backed ring with the requested
// submission/completion queue depth.
func NewRealRing(config Config) (Ring, error) {
	entries := config.Entries
	if entries == 0 {
		entries = 64
	}
	ring, err := giouring.CreateRing(entries)
	if err != nil {
		return nil, fmt.Errorf("uring: create ring: %w", err)
	}
	return &iouRing{ring: ring}, nil
}

func (r *iouRing) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ring != nil {
		r.ring.QueueExit()
		r.ring = nil
	}
	return nil
}

func toIovecs(bufs [][]byte) []unix.Iovec {
	iov := make([]unix.Iovec, len(bufs))
	for i, b := range bufs {
		if len(b) == 0 {
			continue
		}
		iov[i].Base = &b[0]
		iov[i].SetLen(len(b))
	}
	return iov
}

func (r *iouRing) SubmitWritev(fd int, iovecs [][]byte, userData uint64) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sqe := r.ring.GetSQE()
	if sqe == nil {
		return nil, ErrRingFull
	}
	iov := toIovecs(iovecs)
	sqe.PrepareWritev(fd, uintptr(unsafe.Pointer(&iov[0])), uint32(len(iov)), 0)
	sqe.SetUserData(userData)

	if _, err := r.ring.SubmitAndWait(1); err != nil {
		return nil, fmt.Errorf("uring: submit: %w", err)
	}

	cqe, err := r.ring.WaitCQE()
	if err != nil {
		return nil, fmt.Errorf("uring: wait cqe: %w", err)
	}
	res := &iouResult{userData: cqe.UserData, value: cqe.Res}
	if cqe.Res < 0 {
		res.err = fmt.Errorf("uring: writev failed: errno %d", -cqe.Res)
	}
	r.ring.CQESeen(cqe)
	return res, res.err
}

func (r *iouRing) NewBatch() Batch {
	return &iouBatch{ring: r}
}

type pendingWritev struct {
	fd       int
	iov      []unix.Iovec
	userData uint64
}

type iouBatch struct {
	ring    *iouRing
	pending []pendingWritev
}

func (b *iouBatch) AddWritev(fd int, iovecs [][]byte, userData uint64) error {
	b.pending = append(b.pending, pendingWritev{fd: fd, iov: toIovecs(iovecs), userData: userData})
	return nil
}

func (b *iouBatch) Len() int { return len(b.pending) }

func (b *iouBatch) Submit() ([]Result, error) {
	if len(b.pending) == 0 {
		return nil, nil
	}
	b.ring.mu.Lock()
	defer b.ring.mu.Unlock()

	for _, p := range b.pending {
		sqe := b.ring.ring.GetSQE()
		if sqe == nil {
			return nil, ErrRingFull
		}
		sqe.PrepareWritev(p.fd, uintptr(unsafe.Pointer(&p.iov[0])), uint32(len(p.iov)), 0)
		sqe.SetUserData(p.userData)
	}

	n := len(b.pending)
	if _, err := b.ring.ring.SubmitAndWait(uint32(n)); err != nil {
		return nil, fmt.Errorf("uring: batch submit: %w", err)
	}

	results := make([]Result, 0, n)
	for i := 0; i < n; i++ {
		cqe, err := b.ring.ring.WaitCQE()
		if err != nil {
			return results, fmt.Errorf("uring: batch wait cqe %d: %w", i, err)
		}
		res := &iouResult{userData: cqe.UserData, value: cqe.Res}
		if cqe.Res < 0 {
			res.err = fmt.Errorf("uring: writev failed: errno %d", -cqe.Res)
		}
		b.ring.ring.CQESeen(cqe)
		results = append(results, res)
	}

	b.pending = b.pending[:0]
	return results, nil
}
