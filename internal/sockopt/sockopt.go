// Package sockopt pulls the raw file descriptor out of a net.Conn and
// applies the socket options this target forces on every accepted
// connection (spec.md §4.1 expansion). FD extraction is grounded on the
// retrieved runZeroInc sockstats/conniver exporters' use of
// github.com/higebu/netfd; the option calls themselves use
// golang.org/x/sys/unix the way the teacher's queue runner already
// does for SchedSetaffinity.
package sockopt

import (
	"fmt"
	"net"

	"github.com/higebu/netfd"
	"golang.org/x/sys/unix"
)

// RawFD extracts the underlying file descriptor from a TCP connection
// without transferring ownership the way (*os.File).Fd would (that
// dup()s and leaves a second descriptor to leak).
func RawFD(conn net.Conn) (int, error) {
	if _, ok := conn.(*net.TCPConn); !ok {
		return -1, fmt.Errorf("sockopt: %T is not a *net.TCPConn", conn)
	}
	fd := netfd.GetFdFromConn(conn)
	if fd < 0 {
		return -1, fmt.Errorf("sockopt: could not extract fd from %T", conn)
	}
	return fd, nil
}

// ListenerRawFD extracts the file descriptor from a TCP listener.
func ListenerRawFD(l *net.TCPListener) (int, error) {
	raw, err := l.SyscallConn()
	if err != nil {
		return -1, err
	}
	var fd int
	if err := raw.Control(func(f uintptr) { fd = int(f) }); err != nil {
		return -1, err
	}
	return fd, nil
}

// ApplyConnOptions forces TCP_NODELAY and the configured send/receive
// buffer sizes on an accepted connection (spec.md §4.1: "the target
// forces large socket buffers on every accepted connection so a
// caravan flush never blocks on backpressure it could have avoided").
func ApplyConnOptions(conn *net.TCPConn, bufBytes int) error {
	if err := conn.SetNoDelay(true); err != nil {
		return err
	}
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var setErr error
	err = raw.Control(func(fd uintptr) {
		if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, bufBytes); e != nil {
			setErr = e
			return
		}
		if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, bufBytes); e != nil {
			setErr = e
			return
		}
	})
	if err != nil {
		return err
	}
	return setErr
}

// ApplyListenerOptions sets SO_REUSEADDR on a listening socket before
// bind, matching the port's one-socket-per-bind-address model
// (spec.md §6 expansion).
func ApplyListenerOptions(fd int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
}
