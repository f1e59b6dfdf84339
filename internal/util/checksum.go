package util

import (
	"fmt"
	"hash/crc32"
)

// Script fingerprints use CRC32 with the IEEE polynomial

var (
	// crc32Table is precomputed for better performance
	crc32Table = crc32.MakeTable(crc32.IEEE)
)

// ComputeChecksum computes a CRC32 checksum for the given data
func ComputeChecksum(data []byte) uint32 {
	return crc32.Checksum(data, crc32Table)
}

// FormatChecksum renders a checksum the way reports print it
func FormatChecksum(checksum uint32) string {
	return fmt.Sprintf("crc32:%08x", checksum)
}
