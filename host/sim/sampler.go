package sim

import "isrclock/core"

// Sampler polls a clock pin and clocks a latch register on every rising
// edge it sees, the way a foreground loop on the MCU would.
type Sampler struct {
	gpio  core.GPIODriver
	pin   core.GPIOPin
	edge  *core.EdgeDetector
	reg   *core.DFFRegister
	edges uint32
}

// NewSampler starts from the pin's current level
func NewSampler(gpio core.GPIODriver, pin core.GPIOPin, reg *core.DFFRegister) *Sampler {
	return &Sampler{
		gpio: gpio,
		pin:  pin,
		edge: core.NewEdgeDetector(gpio.GetPin(pin)),
		reg:  reg,
	}
}

// Step samples the pin once and clocks the register. It reports whether a
// rising edge was seen.
func (s *Sampler) Step() bool {
	rising := s.edge.Sample(s.gpio.GetPin(s.pin))
	s.reg.Clock(rising)
	if rising {
		s.edges++
	}
	return rising
}

// Edges returns the number of rising edges seen
func (s *Sampler) Edges() uint32 {
	return s.edges
}

// Register returns the clocked register
func (s *Sampler) Register() *core.DFFRegister {
	return s.reg
}
