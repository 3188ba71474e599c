package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/i10-io/i10-target/internal/backend"
	"github.com/i10-io/i10-target/internal/logging"
	"github.com/i10-io/i10-target/internal/wire"
)

func TestNonBatchingAdminQueueSendsDirectly(t *testing.T) {
	server, client := tcpPipe(t)
	defer server.Close()
	defer client.Close()

	q := New(Config{
		QID:     wire.AdminQueueID,
		Conn:    server,
		Backend: stubBackend{},
		Depth:   4,
		Log:     logging.Default(),
	})
	require.False(t, q.policy.Batching)

	slot, ok := q.pool.Alloc()
	require.True(t, ok)
	slot.CID = 9
	slot.SendState = SendStateResponse
	slot.Status = backend.Status(wire.StatusSuccess)
	q.sendList = append(q.sendList, slot.Index)

	n, err := q.driveSend(SendBudgetForTest)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 0, q.pool.InUse()) // slot released once the response was sent

	buf := make([]byte, wire.RspPduLen)
	_, err = client.Read(buf)
	require.NoError(t, err)
	hdr, err := wire.PeekHeader(buf)
	require.NoError(t, err)
	require.Equal(t, wire.PduTypeRsp, hdr.Type)
}

func TestBatchingQueueParksUntilFlush(t *testing.T) {
	server, client := tcpPipe(t)
	defer server.Close()
	defer client.Close()

	q := New(Config{
		QID:     1, // non-admin: batching enabled
		Conn:    server,
		Backend: stubBackend{},
		Depth:   4,
		Log:     logging.Default(),
	})
	require.True(t, q.policy.Batching)

	slot, ok := q.pool.Alloc()
	require.True(t, ok)
	slot.CID = 3
	slot.Read = false // write-kind response -> large caravan
	slot.SendState = SendStateResponse
	slot.Status = backend.Status(wire.StatusSuccess)
	q.sendList = append(q.sendList, slot.Index)

	_, err := q.driveSend(SendBudgetForTest)
	require.NoError(t, err)

	// maybeFlush runs at the end of driveSend, so a single response
	// already reaches the wire even though nothing forced an early
	// flush mid-pass.
	buf := make([]byte, wire.RspPduLen)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = client.Read(buf)
	require.NoError(t, err)
}

// TestUseIOURingFallsBackWithoutBuildTag confirms a queue configured
// with UseIOURing still delivers responses over net.Buffers when the
// binary wasn't built with -tags giouring (uring.NewRing always errors
// in that configuration, and New logs and continues without a ring).
func TestUseIOURingFallsBackWithoutBuildTag(t *testing.T) {
	server, client := tcpPipe(t)
	defer server.Close()
	defer client.Close()

	q := New(Config{
		QID:        1,
		Conn:       server,
		Backend:    stubBackend{},
		Depth:      4,
		Log:        logging.Default(),
		UseIOURing: true,
	})
	require.Nil(t, q.ring)

	slot, ok := q.pool.Alloc()
	require.True(t, ok)
	slot.CID = 5
	slot.Read = true
	slot.SendState = SendStateResponse
	slot.Status = backend.Status(wire.StatusSuccess)
	q.sendList = append(q.sendList, slot.Index)

	_, err := q.driveSend(SendBudgetForTest)
	require.NoError(t, err)

	buf := make([]byte, wire.RspPduLen)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = client.Read(buf)
	require.NoError(t, err)
}

const SendBudgetForTest = 16
