package protocol

import "testing"

func TestCRC16KnownValues(t *testing.T) {
	testCases := []struct {
		data     []byte
		expected uint16
	}{
		{data: []byte{}, expected: 0xFFFF},
		// Reflected CCITT with 0xFFFF init: standard check value
		{data: []byte("123456789"), expected: 0x6F91},
	}

	for _, tc := range testCases {
		if got := CRC16(tc.data); got != tc.expected {
			t.Errorf("CRC16(%q) = 0x%04X, expected 0x%04X", tc.data, got, tc.expected)
		}
	}
}

func TestCRC16Different(t *testing.T) {
	crc1 := CRC16([]byte{0x01, 0x02, 0x03})
	crc2 := CRC16([]byte{0x01, 0x02, 0x04})

	if crc1 == crc2 {
		t.Errorf("CRC16 collision: both inputs produced %04X", crc1)
	}
}

func TestCRC16AckFrame(t *testing.T) {
	// An ACK is 5 bytes: len, seq, crc hi, crc lo, sync
	ack, err := BuildFrame(MessageDest, nil)
	if err != nil {
		t.Fatal(err)
	}
	crc := CRC16([]byte{5, MessageDest})
	if ack[2] != uint8(crc>>8) || ack[3] != uint8(crc) {
		t.Errorf("ACK trailer % X does not carry CRC 0x%04X", ack[2:4], crc)
	}
}
