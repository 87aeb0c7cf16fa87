package sim

import (
	"time"

	"isrclock/core"
)

// MinPeriod is the shortest interval between simulated compare matches.
// Faster settings are slowed down to it.
const MinPeriod = 100 * time.Microsecond

// TickerTimer is a core.CompareTimer driven by the wall clock. Each match
// runs the handler through core.RunInterrupt, so it never overlaps a
// critical section.
//
// Its control methods are called by core with interrupts disabled; that
// same mask guards every field below.
type TickerTimer struct {
	fcpu       uint32
	table      core.PrescaleTable
	maxCompare uint32

	periodic   bool
	compare    uint32
	irqEnabled bool
	pending    bool
	handler    func()

	running bool
	period  time.Duration
	quit    chan struct{}
	matches uint64
}

// NewTickerTimer creates a stopped timer with the given base clock,
// prescaler set and counter width
func NewTickerTimer(fcpu uint32, table core.PrescaleTable, maxCompare uint32) *TickerTimer {
	return &TickerTimer{fcpu: fcpu, table: table, maxCompare: maxCompare}
}

// NewTimer1 models a 16 MHz AVR Timer1
func NewTimer1() *TickerTimer {
	return NewTickerTimer(16000000, core.AVRTimer1Prescalers, core.Timer1MaxCompare)
}

func (t *TickerTimer) BaseFrequency() uint32          { return t.fcpu }
func (t *TickerTimer) Prescalers() core.PrescaleTable { return t.table }
func (t *TickerTimer) MaxCompare() uint32             { return t.maxCompare }
func (t *TickerTimer) SetPeriodicMode()               { t.periodic = true }
func (t *TickerTimer) ClearPending()                  { t.pending = false }
func (t *TickerTimer) SetHandler(h func())            { t.handler = h }

func (t *TickerTimer) SetCompare(threshold uint32) {
	if threshold > t.maxCompare {
		threshold = t.maxCompare
	}
	t.compare = threshold
}

func (t *TickerTimer) EnableCompareInterrupt(enabled bool) {
	t.irqEnabled = enabled
	if enabled && t.pending {
		// Latched match fires as soon as interrupts are restored
		go core.RunInterrupt(t.replay)
	}
}

func (t *TickerTimer) Start(sel uint8) {
	t.stopLocked()

	var divisor uint32
	for _, p := range t.table {
		if p.Select == sel {
			divisor = p.Divisor
		}
	}
	if divisor == 0 {
		return
	}

	top := uint64(t.compare)
	if !t.periodic {
		top = uint64(t.maxCompare)
	}
	cycles := uint64(divisor) * (top + 1)
	period := time.Duration(cycles * uint64(time.Second) / uint64(t.fcpu))
	if period < MinPeriod {
		period = MinPeriod
	}

	t.period = period
	t.running = true
	t.quit = make(chan struct{})
	go t.run(period, t.quit)
}

func (t *TickerTimer) Stop() {
	t.stopLocked()
}

func (t *TickerTimer) stopLocked() {
	if t.running {
		close(t.quit)
		t.running = false
	}
}

func (t *TickerTimer) run(period time.Duration, quit chan struct{}) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
		}
		core.RunInterrupt(func() {
			select {
			case <-quit:
				// Stopped while this tick waited for the mask
				return
			default:
			}
			t.matches++
			if t.irqEnabled && t.handler != nil {
				t.handler()
			} else {
				t.pending = true
			}
		})
	}
}

func (t *TickerTimer) replay() {
	if t.pending && t.irqEnabled && t.handler != nil {
		t.pending = false
		t.handler()
	}
}

// Snapshot is a consistent view of a TickerTimer
type Snapshot struct {
	Running bool
	Period  time.Duration
	Matches uint64
}

// Snapshot reads the timer state. Do not call it with interrupts disabled.
func (t *TickerTimer) Snapshot() Snapshot {
	var s Snapshot
	core.RunInterrupt(func() {
		s = Snapshot{Running: t.running, Period: t.period, Matches: t.matches}
	})
	return s
}
