package port

import (
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/i10-io/i10-target/internal/logging"
)

// pinToCPU locks the calling goroutine to its OS thread and sets that
// thread's CPU affinity, the same sequence the teacher's queue runner
// used for its per-queue ioLoop goroutine. Failure to set affinity is
// logged and not fatal — the reactor still functions, just without the
// cache-locality benefit.
func pinToCPU(cpu int, log *logging.Logger) {
	runtime.LockOSThread()

	var mask unix.CPUSet
	mask.Set(cpu)
	if err := unix.SchedSetaffinity(0, &mask); err != nil {
		if log != nil {
			log.Warnf("reactor: failed to set CPU affinity to %d: %v", cpu, err)
		}
		return
	}
	if log != nil {
		log.Debugf("reactor: pinned to CPU %d", cpu)
	}
}
