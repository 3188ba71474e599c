package sockopt

import (
	"net"

	"golang.org/x/sys/unix"
)

// Linux TCP state values (include/net/tcp_states.h), the subset this
// target cares about when polling for a teardown trigger.
const (
	TCPEstablished uint8 = 1
	TCPFinWait1    uint8 = 4
	TCPFinWait2    uint8 = 5
	TCPCloseWait   uint8 = 8
	TCPClose       uint8 = 7
	TCPLastAck     uint8 = 9
)

// IsClosedState reports whether a TCP_INFO state value indicates the
// peer has begun or finished closing, the condition that should drive
// a queue into Disconnecting even absent a read/write error
// (spec.md §4.6 expansion).
func IsClosedState(state uint8) bool {
	switch state {
	case TCPFinWait1, TCPFinWait2, TCPCloseWait, TCPClose, TCPLastAck:
		return true
	default:
		return false
	}
}

// State samples TCP_INFO on conn's socket and returns its connection
// state byte, grounded on the retrieved runZeroInc-conniver linux
// tcpinfo getsockopt call (here via x/sys/unix's typed wrapper, since
// that dependency is already part of the teacher's stack).
func State(conn *net.TCPConn) (uint8, error) {
	fd, err := RawFD(conn)
	if err != nil {
		return 0, err
	}
	info, err := unix.GetsockoptTCPInfo(fd, unix.SOL_TCP, unix.TCP_INFO)
	if err != nil {
		return 0, err
	}
	return info.State, nil
}
