package core

// TimerFreq is the software timer tick rate used when no compare timer
// reports its own base frequency.
const TimerFreq = 16000000

var bootTime uint64

// GetTime returns the current system time in timer ticks
func GetTime() uint64 {
	return getSystemTicks()
}

// SetTime sets the current system time (for testing/hardware integration)
func SetTime(ticks uint64) {
	setSystemTicks(ticks)
}

// AdvanceTime moves the system time forward by delta ticks
func AdvanceTime(delta uint64) {
	setSystemTicks(getSystemTicks() + delta)
}

// GetUptime returns ticks elapsed since TimerInit
func GetUptime() uint64 {
	return GetTime() - bootTime
}

// TimerFromUS converts microseconds to timer ticks
func TimerFromUS(us uint32) uint64 {
	return uint64(us) * TimerFreq / 1000000
}

// TimerToUS converts timer ticks to microseconds
func TimerToUS(ticks uint64) uint64 {
	return ticks * 1000000 / TimerFreq
}

// TimerInit records the boot time
func TimerInit() {
	bootTime = GetTime()
}

// ProcessTimers runs all software timers that are due
func ProcessTimers() {
	state := disableInterrupts()
	currentTime = GetTime()
	restoreInterrupts(state)

	TimerDispatch()
}
