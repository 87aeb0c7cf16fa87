package main

import (
	"strconv"

	"isrclock/core"
)

// Counter is a ripple-free binary counter built from D flip-flops that
// share one clock
type Counter struct {
	reg   *core.DFFRegister
	names []string
}

// NewCounter creates a counter of the given width, starting at zero
func NewCounter(bits int) *Counter {
	names := make([]string, bits)
	for i := range names {
		names[i] = "q" + strconv.Itoa(i)
	}
	return &Counter{reg: core.NewDFFRegister(names...), names: names}
}

// Prepare sets every D input to the next count. Call it before clocking.
func (c *Counter) Prepare() {
	carry := uint8(1)
	for _, n := range c.names {
		q := c.reg.Q(n)
		c.reg.SetD(n, q^carry)
		carry &= q
	}
}

// Value returns the current count
func (c *Counter) Value() uint32 {
	return c.reg.Value()
}

// Register returns the underlying flip-flops
func (c *Counter) Register() *core.DFFRegister {
	return c.reg
}
