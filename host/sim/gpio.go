package sim

import (
	"sync"
	"time"

	"isrclock/core"
)

// PinChange is reported to a GPIO watcher on every level change
type PinChange struct {
	Pin   core.GPIOPin
	Level core.Level
	At    time.Time
}

// GPIO is an in-memory core.GPIODriver. It is safe to drive from the
// simulated compare interrupt while the foreground reads it.
type GPIO struct {
	mu          sync.Mutex
	outputs     map[core.GPIOPin]bool
	levels      map[core.GPIOPin]core.Level
	transitions map[core.GPIOPin]uint32
	watch       func(PinChange)
}

// NewGPIO creates a GPIO bank with every pin an unconfigured low input
func NewGPIO() *GPIO {
	return &GPIO{
		outputs:     make(map[core.GPIOPin]bool),
		levels:      make(map[core.GPIOPin]core.Level),
		transitions: make(map[core.GPIOPin]uint32),
	}
}

// Watch installs fn to be called on every level change. fn runs on the
// writer's goroutine, possibly in interrupt context, and must not block.
func (g *GPIO) Watch(fn func(PinChange)) {
	g.mu.Lock()
	g.watch = fn
	g.mu.Unlock()
}

func (g *GPIO) ConfigureOutput(pin core.GPIOPin) error {
	g.mu.Lock()
	g.outputs[pin] = true
	g.mu.Unlock()
	return nil
}

func (g *GPIO) ConfigureInput(pin core.GPIOPin) error {
	g.mu.Lock()
	g.outputs[pin] = false
	g.mu.Unlock()
	return nil
}

func (g *GPIO) SetPin(pin core.GPIOPin, level core.Level) {
	g.mu.Lock()
	changed := g.levels[pin] != level
	g.levels[pin] = level
	if changed {
		g.transitions[pin]++
	}
	watch := g.watch
	g.mu.Unlock()

	if changed && watch != nil {
		watch(PinChange{Pin: pin, Level: level, At: time.Now()})
	}
}

func (g *GPIO) GetPin(pin core.GPIOPin) core.Level {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.levels[pin]
}

// Drive sets an input pin from outside, as an external clock source would
func (g *GPIO) Drive(pin core.GPIOPin, level core.Level) {
	g.SetPin(pin, level)
}

// IsOutput reports whether pin was configured as an output
func (g *GPIO) IsOutput(pin core.GPIOPin) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.outputs[pin]
}

// Transitions returns the number of level changes seen on pin
func (g *GPIO) Transitions(pin core.GPIOPin) uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.transitions[pin]
}
