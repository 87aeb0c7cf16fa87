package core

// Prescaler is one entry of a timer's supported clock prescale set.
type Prescaler struct {
	Divisor uint32 // Base clock divided by this before it drives the counter
	Select  uint8  // Platform clock-select bits that enable this divisor
}

// PrescaleTable lists a timer's supported prescalers, smallest divisor first.
type PrescaleTable []Prescaler

// Smallest returns the finest-resolution prescaler.
func (t PrescaleTable) Smallest() Prescaler {
	return t[0]
}

// Largest returns the widest-range prescaler.
func (t PrescaleTable) Largest() Prescaler {
	return t[len(t)-1]
}

// Lookup finds the prescaler for a divisor
func (t PrescaleTable) Lookup(divisor uint32) (Prescaler, bool) {
	for _, p := range t {
		if p.Divisor == divisor {
			return p, true
		}
	}
	return Prescaler{}, false
}

// CompareTimer is the abstract hardware timer that core code uses to
// generate a periodic compare-match interrupt.
// The clock generator is the sole owner of this resource.
type CompareTimer interface {
	// BaseFrequency returns the clock feeding the prescaler, in Hz
	BaseFrequency() uint32

	// Prescalers returns the supported prescale set, smallest first
	Prescalers() PrescaleTable

	// MaxCompare returns the largest programmable compare threshold
	MaxCompare() uint32

	// SetPeriodicMode puts the counter in clear-on-compare mode
	SetPeriodicMode()

	// SetCompare sets the compare threshold; a match occurs every threshold+1 counts
	SetCompare(threshold uint32)

	// ClearPending drops any latched compare-match indication
	ClearPending()

	// EnableCompareInterrupt enables or disables the compare-match interrupt
	EnableCompareInterrupt(enabled bool)

	// Start applies the prescaler select bits, which starts the counter
	Start(sel uint8)

	// Stop removes the counter's clock source
	Stop()

	// SetHandler installs the function called on every compare match
	SetHandler(handler func())
}

// Global singleton used by core code.
var compareTimer CompareTimer

// SetCompareTimer is called by target-specific code to register its timer.
func SetCompareTimer(t CompareTimer) {
	compareTimer = t
}

// MustCompareTimer returns the configured timer or panics if missing.
func MustCompareTimer() CompareTimer {
	if compareTimer == nil {
		panic("compare timer not configured")
	}
	return compareTimer
}
