package protocol

// InputBuffer is received data waiting to be parsed
type InputBuffer interface {
	// Data returns the unconsumed bytes
	Data() []byte

	// Available returns len(Data())
	Available() int

	// Pop consumes n bytes from the front
	Pop(n int)
}

// OutputBuffer is where frames are encoded. Frames are built in place:
// the length byte is patched with Update once the payload is written.
type OutputBuffer interface {
	Output(data []byte)
	CurPosition() int
	Update(pos int, val byte)
	DataSince(pos int) []byte
}

// SliceInputBuffer is an InputBuffer over a fixed slice
type SliceInputBuffer struct {
	data []byte
}

// NewSliceInputBuffer wraps data
func NewSliceInputBuffer(data []byte) *SliceInputBuffer {
	return &SliceInputBuffer{data: data}
}

func (s *SliceInputBuffer) Data() []byte   { return s.data }
func (s *SliceInputBuffer) Available() int { return len(s.data) }

func (s *SliceInputBuffer) Pop(n int) {
	if n > len(s.data) {
		n = len(s.data)
	}
	s.data = s.data[n:]
}

// ScratchOutput is an OutputBuffer backed by a fixed array.
// Output beyond MessageMax bytes is dropped.
type ScratchOutput struct {
	buf [MessageMax]byte
	pos int
}

// NewScratchOutput returns an empty scratch buffer
func NewScratchOutput() *ScratchOutput {
	return &ScratchOutput{}
}

func (s *ScratchOutput) Output(data []byte) {
	s.pos += copy(s.buf[s.pos:], data)
}

func (s *ScratchOutput) CurPosition() int {
	return s.pos
}

func (s *ScratchOutput) Update(pos int, val byte) {
	if pos < s.pos {
		s.buf[pos] = val
	}
}

func (s *ScratchOutput) DataSince(pos int) []byte {
	if pos > s.pos {
		return nil
	}
	return s.buf[pos:s.pos]
}

// Result returns everything written since the last Reset
func (s *ScratchOutput) Result() []byte {
	return s.buf[:s.pos]
}

// Reset empties the buffer
func (s *ScratchOutput) Reset() {
	s.pos = 0
}

// StreamBuffer accumulates a byte stream for parsing. Data is always
// contiguous; Pop moves the remainder to the front.
type StreamBuffer struct {
	buf []byte
	n   int
}

// NewStreamBuffer creates a buffer holding at most capacity bytes
func NewStreamBuffer(capacity int) *StreamBuffer {
	return &StreamBuffer{buf: make([]byte, capacity)}
}

// Write appends as much of data as fits and returns the count accepted
func (b *StreamBuffer) Write(data []byte) int {
	w := copy(b.buf[b.n:], data)
	b.n += w
	return w
}

func (b *StreamBuffer) Data() []byte   { return b.buf[:b.n] }
func (b *StreamBuffer) Available() int { return b.n }

// Free returns the room left for Write
func (b *StreamBuffer) Free() int {
	return len(b.buf) - b.n
}

func (b *StreamBuffer) Pop(n int) {
	if n >= b.n {
		b.n = 0
		return
	}
	copy(b.buf, b.buf[n:b.n])
	b.n -= n
}

// Reset discards all buffered data
func (b *StreamBuffer) Reset() {
	b.n = 0
}
