package mem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i10-io/i10-target/internal/backend"
	"github.com/i10-io/i10-target/internal/wire"
)

func TestWriteThenReadRoundTrip(t *testing.T) {
	m := New(1 << 20)
	sq, err := m.InitQueue(1, 32)
	require.NoError(t, err)

	payload := []byte("hello i10 caravan")
	done := make(chan backend.Status, 1)
	wreq := &backend.Request{
		Opcode:      wire.NvmeCmdWrite,
		CDW12:       uint32(len(payload)/512) + 0, // fits in one block
		SG:          [][]byte{payload},
		TransferLen: uint32(len(payload)),
	}
	wreq.SetResponder(func(_ *backend.Request, s backend.Status) { done <- s })
	m.Submit(sq, wreq)
	assert.Equal(t, backend.Status(wire.StatusSuccess), <-done)

	readBuf := make([]byte, len(payload))
	rreq := &backend.Request{
		Opcode:      wire.NvmeCmdRead,
		SG:          [][]byte{readBuf},
		TransferLen: uint32(len(payload)),
	}
	rreq.SetResponder(func(_ *backend.Request, s backend.Status) { done <- s })
	m.Submit(sq, rreq)
	assert.Equal(t, backend.Status(wire.StatusSuccess), <-done)
	assert.Equal(t, payload, readBuf)
}

func TestFlushCompletesImmediately(t *testing.T) {
	m := New(4096)
	sq, _ := m.InitQueue(0, 8)
	done := make(chan backend.Status, 1)
	req := &backend.Request{Opcode: wire.NvmeCmdFlush}
	req.SetResponder(func(_ *backend.Request, s backend.Status) { done <- s })
	m.Submit(sq, req)
	assert.Equal(t, backend.Status(wire.StatusSuccess), <-done)
}

func TestUnknownOpcodeRejected(t *testing.T) {
	m := New(4096)
	sq, _ := m.InitQueue(0, 8)
	done := make(chan backend.Status, 1)
	req := &backend.Request{Opcode: 0x7f}
	req.SetResponder(func(_ *backend.Request, s backend.Status) { done <- s })
	m.Submit(sq, req)
	assert.Equal(t, backend.Status(wire.StatusInvalidFieldDNR), <-done)
}

func TestReadBeyondNamespaceSizeRejected(t *testing.T) {
	m := New(1024)
	sq, _ := m.InitQueue(0, 8)
	done := make(chan backend.Status, 1)
	req := &backend.Request{
		Opcode:      wire.NvmeCmdRead,
		CDW10:       10, // LBA 10 * 512 > namespace size
		SG:          [][]byte{make([]byte, 512)},
		TransferLen: 512,
	}
	req.SetResponder(func(_ *backend.Request, s backend.Status) { done <- s })
	m.Submit(sq, req)
	assert.Equal(t, backend.Status(wire.StatusInvalidFieldDNR), <-done)
}

func TestDestroyQueueRemovesState(t *testing.T) {
	m := New(4096)
	sq, err := m.InitQueue(3, 16)
	require.NoError(t, err)
	m.DestroyQueue(sq)
	_, ok := m.queues[sq.QID()]
	assert.False(t, ok)
}
