//go:build !tinygo

package core

// SimTimer is a CompareTimer simulated on the software timer list.
// System time counts base-clock cycles: AdvanceTime followed by
// ProcessTimers lets the compare matches that fall in that window fire,
// each one in order and with interrupts disabled.
type SimTimer struct {
	fcpu       uint32
	table      PrescaleTable
	maxCompare uint32

	periodic   bool
	compare    uint32
	divisor    uint32 // 0 while the clock source is removed
	irqEnabled bool
	pending    bool
	handler    func()

	match   Timer
	replay  Timer
	queued  bool
	Matches uint32 // Compare matches counted, interrupt enabled or not
}

// NewSimTimer creates a stopped simulated timer
func NewSimTimer(fcpu uint32, table PrescaleTable, maxCompare uint32) *SimTimer {
	t := &SimTimer{
		fcpu:       fcpu,
		table:      table,
		maxCompare: maxCompare,
	}
	t.match.Handler = t.onMatch
	t.replay.Handler = t.onReplay
	return t
}

// NewSimTimer1 simulates a 16 MHz AVR Timer1
func NewSimTimer1() *SimTimer {
	return NewSimTimer(16000000, AVRTimer1Prescalers, Timer1MaxCompare)
}

func (t *SimTimer) BaseFrequency() uint32     { return t.fcpu }
func (t *SimTimer) Prescalers() PrescaleTable { return t.table }
func (t *SimTimer) MaxCompare() uint32        { return t.maxCompare }
func (t *SimTimer) SetPeriodicMode()          { t.periodic = true }
func (t *SimTimer) ClearPending()             { t.pending = false }
func (t *SimTimer) SetHandler(h func())       { t.handler = h }

// SetCompare takes effect from the next match
func (t *SimTimer) SetCompare(threshold uint32) {
	if threshold > t.maxCompare {
		threshold = t.maxCompare
	}
	t.compare = threshold
}

// EnableCompareInterrupt enables the match interrupt. A match latched while
// it was disabled fires on the next dispatch, as on hardware.
func (t *SimTimer) EnableCompareInterrupt(enabled bool) {
	t.irqEnabled = enabled
	if enabled && t.pending {
		t.replay.WakeTime = GetTime()
		removeTimer(&t.replay)
		insertTimer(&t.replay)
	} else if !enabled {
		removeTimer(&t.replay)
	}
}

// Start selects the prescaler and restarts the counter from zero
func (t *SimTimer) Start(sel uint8) {
	t.divisor = 0
	for _, p := range t.table {
		if p.Select == sel {
			t.divisor = p.Divisor
		}
	}
	if t.queued {
		removeTimer(&t.match)
		t.queued = false
	}
	if t.divisor == 0 {
		return
	}
	t.match.WakeTime = GetTime() + t.Period()
	insertTimer(&t.match)
	t.queued = true
}

// Stop removes the clock source; no further matches occur
func (t *SimTimer) Stop() {
	t.divisor = 0
	if t.queued {
		removeTimer(&t.match)
		t.queued = false
	}
}

// Running reports whether the counter has a clock source
func (t *SimTimer) Running() bool { return t.divisor != 0 }

// InterruptEnabled reports whether the compare interrupt is enabled
func (t *SimTimer) InterruptEnabled() bool { return t.irqEnabled }

// Pending reports a latched, unserviced compare match
func (t *SimTimer) Pending() bool { return t.pending }

// Period returns base-clock cycles between matches, 0 when stopped
func (t *SimTimer) Period() uint64 {
	top := uint64(t.compare)
	if !t.periodic {
		top = uint64(t.maxCompare)
	}
	return uint64(t.divisor) * (top + 1)
}

func (t *SimTimer) onMatch(tm *Timer) uint8 {
	if t.divisor == 0 {
		t.queued = false
		return SF_DONE
	}
	t.Matches++
	if t.irqEnabled && t.handler != nil {
		t.handler()
	} else {
		t.pending = true
	}
	tm.WakeTime += t.Period()
	return SF_RESCHEDULE
}

func (t *SimTimer) onReplay(_ *Timer) uint8 {
	if t.pending && t.irqEnabled && t.handler != nil {
		t.pending = false
		t.handler()
	}
	return SF_DONE
}
