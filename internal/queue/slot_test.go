package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntryStateTable(t *testing.T) {
	assert.Equal(t, SendStateDataPdu, entryState(true, true))   // read with payload
	assert.Equal(t, SendStateR2T, entryState(false, true))      // write with payload
	assert.Equal(t, SendStateResponse, entryState(true, false)) // read, nothing to return
	assert.Equal(t, SendStateResponse, entryState(false, false))
}

func TestSlotResetClearsTransientFields(t *testing.T) {
	s := &Slot{Index: 3}
	s.CID = 42
	s.Read = true
	s.TransferLen = 4096
	s.SG = [][]byte{{1, 2, 3}}
	s.SendState = SendStateResponse
	s.Flags = flagInitFailed

	s.Reset()

	assert.Equal(t, uint16(3), s.Index) // Index survives reset
	assert.Equal(t, uint16(0), s.CID)
	assert.False(t, s.Read)
	assert.Equal(t, uint32(0), s.TransferLen)
	assert.Empty(t, s.SG)
	assert.Equal(t, SendStateNone, s.SendState)
	assert.False(t, s.InitFailed())
}

func TestSlotMarkInitFailed(t *testing.T) {
	s := &Slot{}
	assert.False(t, s.InitFailed())
	s.MarkInitFailed()
	assert.True(t, s.InitFailed())
}

func TestCaravanWriteKind(t *testing.T) {
	s := &Slot{Read: true}
	assert.False(t, s.caravanWriteKind())
	s.Read = false
	assert.True(t, s.caravanWriteKind())
}
