package tinycompress

import (
	"bytes"
	"compress/zlib"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inflate(t *testing.T, data []byte) []byte {
	t.Helper()
	zr, err := zlib.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer zr.Close()
	out, err := io.ReadAll(zr)
	require.NoError(t, err)
	return out
}

func TestStoreRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"empty", 0},
		{"small", 37},
		{"one full block", MaxStoredBlock},
		{"two blocks", MaxStoredBlock + 1},
		{"three blocks", 2*MaxStoredBlock + 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := make([]byte, tt.size)
			for i := range src {
				src[i] = byte(i * 7)
			}
			out := Store(nil, src)
			assert.Len(t, out, StoredSize(tt.size))
			assert.Equal(t, src, append([]byte{}, inflate(t, out)...))
		})
	}
}

func TestStoreHeader(t *testing.T) {
	out := Store(nil, []byte(`{"version":"x"}`))
	require.True(t, len(out) > 2)
	assert.Equal(t, byte(0x78), out[0])
	assert.Zero(t, (uint16(out[0])<<8|uint16(out[1]))%31, "header check bits")
	// Single final stored block
	assert.Equal(t, byte(0x01), out[2])
}

func TestStoreAppends(t *testing.T) {
	prefix := []byte("abc")
	out := Store(prefix, []byte("payload"))
	assert.Equal(t, "abc", string(out[:3]))
	assert.Equal(t, "payload", string(inflate(t, out[3:])))
}
