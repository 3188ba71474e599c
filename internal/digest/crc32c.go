// Package digest computes the CRC32C (Castagnoli) header and data digests
// NVMe-over-TCP uses for optional integrity checking. No library in the
// retrieved example pack implements CRC32C specifically (the nearest
// candidate, xxhash, is a different algorithm and would not be wire
// compatible with the NVMe-TCP transport spec), so this stays on the
// standard library's hash/crc32 with the Castagnoli table — see
// DESIGN.md for the justification.
package digest

import (
	"encoding/binary"
	"hash/crc32"
)

var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// Of returns the CRC32C of a single buffer.
func Of(b []byte) uint32 {
	return crc32.Checksum(b, castagnoliTable)
}

// OfSegments returns the CRC32C of the concatenation of segs, without
// actually concatenating them — used for both the header digest (over a
// single buffer) and the data digest (over a scatter-gather list).
func OfSegments(segs [][]byte) uint32 {
	h := crc32.New(castagnoliTable)
	for _, s := range segs {
		h.Write(s) //nolint:errcheck // hash.Hash.Write never errors
	}
	return h.Sum32()
}

// AppendLE appends the little-endian encoding of crc to buf.
func AppendLE(buf []byte, crc uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], crc)
	return append(buf, tmp[:]...)
}

// ReadLE reads a little-endian CRC32C trailer from buf.
func ReadLE(buf []byte) uint32 {
	return binary.LittleEndian.Uint32(buf)
}
