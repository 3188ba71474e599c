package queue

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/i10-io/i10-target/internal/backend"
	"github.com/i10-io/i10-target/internal/logging"
	"github.com/i10-io/i10-target/internal/wire"
)

// tcpPipe opens a loopback TCP connection pair, standing in for the
// accepted socket a real port.Port would hand a Queue (net.Pipe is
// unbuffered, so the queue's icresp Write would block until the test
// reads it, and queue.New only extracts a raw fd from a *net.TCPConn).
func tcpPipe(t *testing.T) (server, client net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	acceptCh := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		acceptCh <- c
	}()

	client, err = net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	server = <-acceptCh
	require.NotNil(t, server)
	return server, client
}

type stubBackend struct{}

func (stubBackend) InitQueue(qid uint16, size int) (backend.SubmissionQueue, error) { return nil, nil }
func (stubBackend) Submit(sq backend.SubmissionQueue, req *backend.Request)         {}
func (stubBackend) CompleteLocal(req *backend.Request, status backend.Status)       {}
func (stubBackend) Uninit(req *backend.Request)                                     {}
func (stubBackend) FatalError(sq backend.SubmissionQueue)                           {}
func (stubBackend) DestroyQueue(sq backend.SubmissionQueue)                         {}

func TestICReqHandshakeTransitionsToLive(t *testing.T) {
	server, client := tcpPipe(t)
	defer server.Close()
	defer client.Close()

	q := New(Config{
		QID:     wire.AdminQueueID,
		Conn:    server,
		Backend: stubBackend{},
		Depth:   8,
		Log:     logging.Default(),
	})
	require.Equal(t, StateConnecting, q.State())

	req := &wire.ICReq{
		Header: wire.Header{Type: wire.PduTypeICReq, HLen: wire.ICReqLen, PLen: wire.ICReqLen},
		PFV:    wire.PFV,
		HPDA:   wire.HPDA,
		Digest: 0,
		MaxR2T: wire.MaxR2T,
	}
	_, err := client.Write(wire.MarshalICReq(req))
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for q.State() != StateLive && time.Now().Before(deadline) {
		q.RunIOWork()
	}
	require.Equal(t, StateLive, q.State())

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, wire.ICRespLen)
	n, err := client.Read(buf)
	require.NoError(t, err)
	require.Equal(t, wire.ICRespLen, n)

	resp, err := peekICResp(buf)
	require.NoError(t, err)
	require.Equal(t, wire.PduTypeICResp, resp.Header.Type)
}

func peekICResp(buf []byte) (*wire.ICResp, error) {
	h, err := wire.PeekHeader(buf)
	if err != nil {
		return nil, err
	}
	return &wire.ICResp{Header: h}, nil
}

func TestMalformedICReqIsFatal(t *testing.T) {
	server, client := tcpPipe(t)
	defer server.Close()
	defer client.Close()

	q := New(Config{
		QID:     wire.AdminQueueID,
		Conn:    server,
		Backend: stubBackend{},
		Depth:   8,
		Log:     logging.Default(),
	})

	req := &wire.ICReq{
		Header: wire.Header{Type: wire.PduTypeICReq, HLen: wire.ICReqLen, PLen: wire.ICReqLen},
		PFV:    1, // invalid: only PFV==0 is accepted
		MaxR2T: wire.MaxR2T,
	}
	_, err := client.Write(wire.MarshalICReq(req))
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	var fatal bool
	for time.Now().Before(deadline) {
		_, fatal = q.RunIOWork()
		if fatal {
			break
		}
	}
	require.True(t, fatal)
	require.NotEqual(t, StateLive, q.State())
}

func TestMarkDisconnectingIsIdempotent(t *testing.T) {
	server, client := tcpPipe(t)
	defer server.Close()
	defer client.Close()

	q := New(Config{QID: 1, Conn: server, Backend: stubBackend{}, Depth: 4, Log: logging.Default()})
	require.True(t, q.MarkDisconnecting())
	require.False(t, q.MarkDisconnecting())
	require.Equal(t, StateDisconnecting, q.State())
}
