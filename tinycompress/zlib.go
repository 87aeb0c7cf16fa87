// Package tinycompress writes zlib streams made of stored (uncompressed)
// DEFLATE blocks. The output is accepted by any zlib reader, which is all the
// host needs to inflate the firmware dictionary, and the encoder itself needs
// no tables or window memory on the MCU.
package tinycompress

import "hash/adler32"

const (
	// MaxStoredBlock is the largest payload one stored block can carry
	MaxStoredBlock = 0xFFFF

	headerSize   = 2
	blockHeader  = 5 // BFINAL/BTYPE byte, LEN, NLEN
	checksumSize = 4
)

// Zlib header: CM=8 (deflate), CINFO=7 (32K window), FLEVEL=0 (fastest)
var zlibHeader = [headerSize]byte{0x78, 0x01}

// StoredSize returns the encoded size of n input bytes
func StoredSize(n int) int {
	blocks := (n + MaxStoredBlock - 1) / MaxStoredBlock
	if blocks == 0 {
		blocks = 1
	}
	return headerSize + blocks*blockHeader + n + checksumSize
}

// Store appends the zlib encoding of src to dst and returns the result.
// Empty input still produces one empty final block.
func Store(dst, src []byte) []byte {
	if need := len(dst) + StoredSize(len(src)); cap(dst) < need {
		grown := make([]byte, len(dst), need)
		copy(grown, dst)
		dst = grown
	}

	dst = append(dst, zlibHeader[:]...)
	rest := src
	for {
		n := len(rest)
		if n > MaxStoredBlock {
			n = MaxStoredBlock
		}
		final := byte(0)
		if n == len(rest) {
			final = 1
		}
		length := uint16(n)
		dst = append(dst,
			final,
			byte(length), byte(length>>8),
			byte(^length), byte(^length>>8),
		)
		dst = append(dst, rest[:n]...)
		rest = rest[n:]
		if final == 1 {
			break
		}
	}

	sum := adler32.Checksum(src)
	return append(dst, byte(sum>>24), byte(sum>>16), byte(sum>>8), byte(sum))
}
