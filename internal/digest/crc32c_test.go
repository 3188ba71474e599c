package digest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOfMatchesKnownCRC32C(t *testing.T) {
	// "123456789" is the standard CRC32C conformance vector.
	got := Of([]byte("123456789"))
	assert.Equal(t, uint32(0xE3069283), got)
}

func TestOfSegmentsMatchesConcatenation(t *testing.T) {
	whole := Of([]byte("hello world"))
	split := OfSegments([][]byte{[]byte("hello "), []byte("world")})
	assert.Equal(t, whole, split)
}

func TestAppendLEReadLERoundTrip(t *testing.T) {
	crc := Of([]byte("i10 caravan"))
	buf := AppendLE(nil, crc)
	assert.Len(t, buf, 4)
	assert.Equal(t, crc, ReadLE(buf))
}

func TestOfSegmentsEmpty(t *testing.T) {
	assert.Equal(t, uint32(0), OfSegments(nil))
}
