//go:build !tinygo

package core

import "sync"

// State is a placeholder for interrupt state on regular Go
type State uintptr

// interruptMask stands in for the global interrupt-enable bit on regular Go.
// Host timer drivers deliver compare handlers while holding it, so a handler
// never runs inside a critical section. Critical sections do not nest.
var interruptMask sync.Mutex

// disableInterrupts enters a critical section
func disableInterrupts() State {
	interruptMask.Lock()
	return 0
}

// restoreInterrupts leaves the critical section
func restoreInterrupts(state State) {
	interruptMask.Unlock()
}

// RunInterrupt runs handler as an interrupt would: never concurrently with a
// critical section or another handler.
func RunInterrupt(handler func()) {
	interruptMask.Lock()
	defer interruptMask.Unlock()
	handler()
}
