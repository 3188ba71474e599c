package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolAllocReleaseRoundTrip(t *testing.T) {
	p := NewPool(4)
	assert.Equal(t, 4, p.Depth())
	assert.Equal(t, 0, p.InUse())

	slot, ok := p.Alloc()
	require.True(t, ok)
	assert.Equal(t, 1, p.InUse())

	p.Release(slot.Index)
	assert.Equal(t, 0, p.InUse())
}

func TestPoolExhaustion(t *testing.T) {
	p := NewPool(2)
	_, ok1 := p.Alloc()
	_, ok2 := p.Alloc()
	_, ok3 := p.Alloc()

	assert.True(t, ok1)
	assert.True(t, ok2)
	assert.False(t, ok3)
}

func TestPoolIndexStableAcrossReuse(t *testing.T) {
	p := NewPool(1)
	slot, _ := p.Alloc()
	idx := slot.Index
	slot.CID = 99
	p.Release(idx)

	slot2, ok := p.Alloc()
	require.True(t, ok)
	assert.Equal(t, idx, slot2.Index)
	assert.Equal(t, uint16(0), slot2.CID) // Reset cleared transient fields
}

func TestResponseListPreservesArrivalOrder(t *testing.T) {
	var rl ResponseList
	for i := uint16(0); i < 5; i++ {
		rl.Push(i)
	}
	got := rl.DrainInto(nil)
	assert.Equal(t, []uint16{0, 1, 2, 3, 4}, got)
}

func TestResponseListDrainEmpty(t *testing.T) {
	var rl ResponseList
	got := rl.DrainInto(nil)
	assert.Nil(t, got)
}

func TestResponseListConcurrentPush(t *testing.T) {
	var rl ResponseList
	var wg sync.WaitGroup
	const n = 200
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx uint16) {
			defer wg.Done()
			rl.Push(idx)
		}(uint16(i))
	}
	wg.Wait()

	got := rl.DrainInto(nil)
	assert.Len(t, got, n)

	seen := make(map[uint16]bool)
	for _, idx := range got {
		seen[idx] = true
	}
	assert.Len(t, seen, n)
}
