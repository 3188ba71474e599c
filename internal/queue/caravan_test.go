package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCaravanClassify(t *testing.T) {
	assert.Equal(t, CaravanLarge, Classify(SendStateDataPdu, true))
	assert.Equal(t, CaravanSmall, Classify(SendStateR2T, false))
	assert.Equal(t, CaravanLarge, Classify(SendStateResponse, true))
	assert.Equal(t, CaravanSmall, Classify(SendStateResponse, false))
}

func TestCaravanAppendAndFlushReset(t *testing.T) {
	c := NewCaravanSmall()
	assert.True(t, c.Empty())

	buf := make([]byte, 24)
	assert.True(t, c.HasRoom(buf, 0))
	c.Append(buf, 0)
	c.Park(7)

	assert.False(t, c.Empty())
	assert.Equal(t, []uint16{7}, c.Parked())
	assert.Len(t, c.Iovecs(), 1)

	c.Reset()
	assert.True(t, c.Empty())
	assert.Empty(t, c.Parked())
}

func TestCaravanForcesFlushOnByteCapacity(t *testing.T) {
	c := NewCaravanSmall() // 256-byte capacity
	big := make([]byte, 256)
	assert.True(t, c.HasRoom(big, 0))
	c.Append(big, 0)
	c.Park(1)

	assert.True(t, c.MustFlush())
}

func TestCaravanForcesFlushOnCommandCount(t *testing.T) {
	c := NewCaravanLarge()
	for i := 0; i < c.maxCommands-1; i++ {
		c.Park(uint16(i))
		assert.False(t, c.MustFlush())
	}
	c.Park(uint16(c.maxCommands))
	assert.True(t, c.MustFlush())
}

func TestCaravanHasRoomRejectsOverflow(t *testing.T) {
	c := NewCaravanSmall()
	oversized := make([]byte, 300)
	assert.False(t, c.HasRoom(oversized, 0))
}
