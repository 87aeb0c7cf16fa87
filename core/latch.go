package core

// DFFUpdate is a one-bit D flip-flop: on a rising edge Q takes D, otherwise
// Q holds. Only the low bit of each input is used.
func DFFUpdate(q, d uint8, risingEdge bool) uint8 {
	if risingEdge {
		return d & 1
	}
	return q & 1
}

// EdgeDetector turns level samples of a clock pin into rising-edge events.
type EdgeDetector struct {
	prev Level
}

// NewEdgeDetector starts from the pin's current level, so a clock that is
// already high does not report a spurious edge on the first sample.
func NewEdgeDetector(initial Level) *EdgeDetector {
	return &EdgeDetector{prev: initial}
}

// Sample records level and reports a low-to-high transition since the last
// sample. Transitions that happen between samples are not seen.
func (e *EdgeDetector) Sample(level Level) bool {
	rising := e.prev == Low && level == High
	e.prev = level
	return rising
}

// DFFRegister is a bank of named flip-flops sharing one clock.
type DFFRegister struct {
	names []string
	d     []uint8
	q     []uint8
}

// NewDFFRegister creates a register with all outputs low
func NewDFFRegister(names ...string) *DFFRegister {
	return &DFFRegister{
		names: names,
		d:     make([]uint8, len(names)),
		q:     make([]uint8, len(names)),
	}
}

func (r *DFFRegister) index(name string) int {
	for i, n := range r.names {
		if n == name {
			return i
		}
	}
	return -1
}

// SetD sets the next-state input of one flip-flop
func (r *DFFRegister) SetD(name string, d uint8) bool {
	i := r.index(name)
	if i < 0 {
		return false
	}
	r.d[i] = d & 1
	return true
}

// Q returns the output of one flip-flop (0 for unknown names)
func (r *DFFRegister) Q(name string) uint8 {
	i := r.index(name)
	if i < 0 {
		return 0
	}
	return r.q[i]
}

// Clock updates every flip-flop together; outputs change only on a rising edge.
func (r *DFFRegister) Clock(risingEdge bool) {
	for i := range r.q {
		r.q[i] = DFFUpdate(r.q[i], r.d[i], risingEdge)
	}
}

// Value packs the outputs, first name in bit 0
func (r *DFFRegister) Value() uint32 {
	var v uint32
	for i, q := range r.q {
		v |= uint32(q) << uint(i)
	}
	return v
}

// Names returns the flip-flop names in bit order
func (r *DFFRegister) Names() []string {
	return r.names
}
