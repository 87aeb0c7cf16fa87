package protocol

import (
	"bytes"
	"testing"
)

func TestVLQEncodeDecodeInt(t *testing.T) {
	testCases := []int32{
		0, 1, -1, 95, 96, -32, -33,
		127, -127, 128, -128,
		1000, -1000, 65535, -65535,
		1000000, -1000000,
		1 << 30, -(1 << 30),
	}

	for _, expected := range testCases {
		output := NewScratchOutput()
		EncodeVLQInt(output, expected)
		encoded := output.Result()

		data := encoded
		decoded, err := DecodeVLQInt(&data)
		if err != nil {
			t.Errorf("Failed to decode VLQ for value %d: %v", expected, err)
			continue
		}
		if decoded != expected {
			t.Errorf("VLQ mismatch: expected %d, got %d (encoded as % X)", expected, decoded, encoded)
		}
		if len(data) != 0 {
			t.Errorf("VLQ decode left %d bytes for value %d", len(data), expected)
		}
	}
}

func TestVLQKnownEncodings(t *testing.T) {
	testCases := []struct {
		value    int32
		expected []byte
	}{
		{0, []byte{0x00}},
		{95, []byte{0x5F}},
		{-1, []byte{0x7F}},
		{96, []byte{0x80, 0x60}},
	}

	for _, tc := range testCases {
		output := NewScratchOutput()
		EncodeVLQInt(output, tc.value)
		if got := output.Result(); !bytes.Equal(got, tc.expected) {
			t.Errorf("EncodeVLQInt(%d) = % X, expected % X", tc.value, got, tc.expected)
		}
	}
}

func TestVLQEncodeDecodeUint(t *testing.T) {
	// Clock parameters that travel in clock_begin and clock_state
	testCases := []uint32{0, 1, 10, 64, 1024, 12499, 65535, 16000000, 0xFFFFFFFF}

	for _, expected := range testCases {
		output := NewScratchOutput()
		EncodeVLQUint(output, expected)

		data := output.Result()
		decoded, err := DecodeVLQUint(&data)
		if err != nil {
			t.Errorf("Failed to decode VLQ for value %d: %v", expected, err)
			continue
		}
		if decoded != expected {
			t.Errorf("VLQ mismatch: expected %d, got %d", expected, decoded)
		}
	}
}

func TestDecodeVLQUints(t *testing.T) {
	output := NewScratchOutput()
	EncodeVLQUint(output, 4)
	EncodeVLQUint(output, 10)
	data := output.Result()

	var pin, hz uint32
	if err := DecodeVLQUints(&data, &pin, &hz); err != nil {
		t.Fatalf("DecodeVLQUints failed: %v", err)
	}
	if pin != 4 || hz != 10 {
		t.Errorf("Expected pin=4 hz=10, got pin=%d hz=%d", pin, hz)
	}

	var extra uint32
	if err := DecodeVLQUints(&data, &extra); err != ErrBufferTooSmall {
		t.Errorf("Expected ErrBufferTooSmall on empty data, got %v", err)
	}
}

func TestVLQBytes(t *testing.T) {
	testCases := [][]byte{
		{},
		{0x01},
		{0xFF, 0xFE, 0xFD},
		make([]byte, 40), // One identify chunk
	}

	for i, expected := range testCases {
		output := NewScratchOutput()
		EncodeVLQBytes(output, expected)

		data := output.Result()
		decoded, err := DecodeVLQBytes(&data)
		if err != nil {
			t.Errorf("Test case %d: Failed to decode bytes: %v", i, err)
			continue
		}
		if !bytes.Equal(decoded, expected) {
			t.Errorf("Test case %d: expected % X, got % X", i, expected, decoded)
		}
	}
}

func TestVLQString(t *testing.T) {
	for _, expected := range []string{"", "clock_begin", `{"version":"x"}`} {
		output := NewScratchOutput()
		EncodeVLQString(output, expected)

		data := output.Result()
		decoded, err := DecodeVLQString(&data)
		if err != nil {
			t.Errorf("Failed to decode string %q: %v", expected, err)
			continue
		}
		if decoded != expected {
			t.Errorf("String mismatch: expected %q, got %q", expected, decoded)
		}
	}
}

func TestVLQBufferTooSmall(t *testing.T) {
	data := []byte{0x80} // Continuation without a following byte
	if _, err := DecodeVLQInt(&data); err != ErrBufferTooSmall {
		t.Errorf("Expected ErrBufferTooSmall, got %v", err)
	}

	data = []byte{0x05, 0x01}
	if _, err := DecodeVLQBytes(&data); err != ErrBufferTooSmall {
		t.Errorf("Expected ErrBufferTooSmall for short byte string, got %v", err)
	}
}

func TestVLQTooLong(t *testing.T) {
	data := []byte{0x81, 0x81, 0x81, 0x81, 0x81, 0x01}
	if _, err := DecodeVLQInt(&data); err != ErrInvalidVLQ {
		t.Errorf("Expected ErrInvalidVLQ, got %v", err)
	}
}
