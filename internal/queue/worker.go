package queue

import (
	"github.com/i10-io/i10-target/internal/constants"
)

// RunIOWork drains receive and send work for this queue up to the
// combined per-invocation budget, the way the teacher's queue runner
// bounded one io_uring completion pass (spec.md §4.2-§4.4). It returns
// whether the worker did any work at all, so the reactor can decide
// whether to reschedule immediately (more work pending past budget) or
// wait for the next readable/writable event.
func (q *Queue) RunIOWork() (didWork bool, fatal bool) {
	budget := constants.IOWorkBudget
	recvBudget := constants.RecvBudget
	sendBudget := constants.SendBudget

	for budget > 0 {
		rb := recvBudget
		if rb > budget {
			rb = budget
		}
		nRecv, recvFatal := q.driveRecv(rb)
		budget -= nRecv
		if nRecv > 0 {
			didWork = true
		}
		if recvFatal {
			return didWork, true
		}

		sb := sendBudget
		if sb > budget {
			sb = budget
		}
		if sb <= 0 {
			break
		}
		nSend, err := q.driveSend(sb)
		budget -= nSend
		if nSend > 0 {
			didWork = true
		}
		if err != nil {
			return didWork, true
		}

		if nRecv == 0 && nSend == 0 {
			break
		}
	}
	return didWork, false
}

// HasPendingSendWork reports whether the queue has responses or
// in-progress sends that still need a pass, independent of socket
// writability — used by the reactor to decide whether to keep a queue
// scheduled even without a fresh writable event.
func (q *Queue) HasPendingSendWork() bool {
	if len(q.sendList) > 0 {
		return true
	}
	for _, car := range q.caravans {
		if car != nil && !car.Empty() {
			return true
		}
	}
	return false
}
