//go:build !tinygo

package core

import "sync/atomic"

var systemTicks atomic.Uint64

// getSystemTicks returns the current system ticks (regular Go implementation)
func getSystemTicks() uint64 {
	return systemTicks.Load()
}

// setSystemTicks sets the system ticks (regular Go implementation)
func setSystemTicks(ticks uint64) {
	systemTicks.Store(ticks)
}
