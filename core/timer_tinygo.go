//go:build tinygo

package core

// 64-bit accesses are not atomic on 8/32-bit MCUs, so reads and writes go
// through a critical section.
var systemTicksValue uint64

// getSystemTicks returns the current system ticks
func getSystemTicks() uint64 {
	state := disableInterrupts()
	v := systemTicksValue
	restoreInterrupts(state)
	return v
}

// setSystemTicks sets the system ticks
func setSystemTicks(ticks uint64) {
	state := disableInterrupts()
	systemTicksValue = ticks
	restoreInterrupts(state)
}
