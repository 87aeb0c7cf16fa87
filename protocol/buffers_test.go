package protocol

import (
	"bytes"
	"testing"
)

func TestSliceInputBuffer(t *testing.T) {
	buf := NewSliceInputBuffer([]byte{1, 2, 3, 4, 5})

	if buf.Available() != 5 {
		t.Errorf("Expected 5 bytes available, got %d", buf.Available())
	}

	buf.Pop(2)
	if buf.Available() != 3 || buf.Data()[0] != 3 {
		t.Errorf("After popping 2, expected [3 4 5], got %v", buf.Data())
	}

	buf.Pop(10)
	if buf.Available() != 0 {
		t.Errorf("Over-pop should empty the buffer, %d left", buf.Available())
	}
}

func TestScratchOutput(t *testing.T) {
	scratch := NewScratchOutput()

	scratch.Output([]byte{1, 2, 3})
	if scratch.CurPosition() != 3 {
		t.Errorf("Expected position 3, got %d", scratch.CurPosition())
	}

	scratch.Output([]byte{4, 5})
	scratch.Update(0, 99)
	if !bytes.Equal(scratch.Result(), []byte{99, 2, 3, 4, 5}) {
		t.Errorf("Unexpected result %v", scratch.Result())
	}

	// Writes past the end are ignored
	scratch.Update(7, 1)
	if scratch.CurPosition() != 5 {
		t.Errorf("Update past end moved position to %d", scratch.CurPosition())
	}

	if since := scratch.DataSince(2); !bytes.Equal(since, []byte{3, 4, 5}) {
		t.Errorf("DataSince(2) expected [3 4 5], got %v", since)
	}
	if since := scratch.DataSince(9); since != nil {
		t.Errorf("DataSince past end expected nil, got %v", since)
	}

	scratch.Reset()
	if scratch.CurPosition() != 0 {
		t.Errorf("After reset, expected position 0, got %d", scratch.CurPosition())
	}
}

func TestScratchOutputFull(t *testing.T) {
	scratch := NewScratchOutput()
	scratch.Output(make([]byte, MessageMax+10))

	if scratch.CurPosition() != MessageMax {
		t.Errorf("Expected output capped at %d, got %d", MessageMax, scratch.CurPosition())
	}
}

func TestStreamBuffer(t *testing.T) {
	sb := NewStreamBuffer(8)

	if n := sb.Write([]byte{1, 2, 3, 4, 5}); n != 5 {
		t.Errorf("Expected to write 5 bytes, wrote %d", n)
	}
	if sb.Free() != 3 {
		t.Errorf("Expected 3 bytes free, got %d", sb.Free())
	}

	sb.Pop(2)
	if !bytes.Equal(sb.Data(), []byte{3, 4, 5}) {
		t.Errorf("After Pop(2) expected [3 4 5], got %v", sb.Data())
	}

	// Room freed by Pop is reusable
	if n := sb.Write([]byte{6, 7, 8, 9, 10, 11}); n != 5 {
		t.Errorf("Expected to write 5 bytes, wrote %d", n)
	}
	if !bytes.Equal(sb.Data(), []byte{3, 4, 5, 6, 7, 8, 9, 10}) {
		t.Errorf("Unexpected data %v", sb.Data())
	}

	sb.Pop(100)
	if sb.Available() != 0 {
		t.Errorf("Expected empty buffer, got %d bytes", sb.Available())
	}

	sb.Write([]byte{1})
	sb.Reset()
	if sb.Available() != 0 {
		t.Error("Reset did not empty the buffer")
	}
}
