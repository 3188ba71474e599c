package uring

import "testing"

// TestNewRingWithoutBuildTagErrors confirms the default (non-giouring)
// build always reports io_uring as unavailable rather than panicking,
// so queue.New's fallback-to-net.Buffers path is exercised in every CI
// configuration, not just the giouring-tagged one.
func TestNewRingWithoutBuildTagErrors(t *testing.T) {
	_, err := NewRing(Config{Entries: 32})
	if err == nil {
		t.Fatalf("expected NewRing to error without the giouring build tag")
	}
}
