package core

import "isrclock/internal/mathx"

// AVRTimer1Prescalers is the clock-select table of a 16-bit AVR Timer1
// (TCCR1B CS12:CS10).
var AVRTimer1Prescalers = PrescaleTable{
	{Divisor: 1, Select: 0b001},
	{Divisor: 8, Select: 0b010},
	{Divisor: 64, Select: 0b011},
	{Divisor: 256, Select: 0b100},
	{Divisor: 1024, Select: 0b101},
}

// Timer1MaxCompare is the largest OCR1A value of a 16-bit timer.
const Timer1MaxCompare = 65535

// TimerParams is the resolved timer programming for one clock frequency.
type TimerParams struct {
	Divisor uint32 // Prescale divisor
	Select  uint8  // Clock-select bits for Divisor
	Compare uint32 // Compare threshold; one match every Compare+1 counts
}

// ToggleRate returns compare matches per second for a base clock of fcpu Hz.
func (p TimerParams) ToggleRate(fcpu uint32) uint32 {
	if p.Divisor == 0 {
		return 0
	}
	return fcpu / p.Divisor / (p.Compare + 1)
}

// AchievedMilliHz returns the generated square-wave frequency in mHz.
// Two compare matches make one output cycle.
func (p TimerParams) AchievedMilliHz(fcpu uint32) uint64 {
	if p.Divisor == 0 {
		return 0
	}
	period := 2 * uint64(p.Divisor) * (uint64(p.Compare) + 1)
	return mathx.DivRound(uint64(fcpu)*1000, period)
}

// ResolveTimer picks the prescaler and compare threshold whose compare-match
// rate is 2*hz, so that toggling on each match yields an hz square wave.
//
// Prescalers are tried smallest first, since the first one that fits gives
// the finest frequency resolution. The second result is false when no
// prescaler fits the counter; the params are then clamped to max compare
// with the largest divisor. table must not be empty.
func ResolveTimer(hz, fcpu uint32, table PrescaleTable, maxCompare uint32) (TimerParams, bool) {
	if hz == 0 {
		hz = 1
	}
	toggleRate := 2 * uint64(hz)

	for _, p := range table {
		ticks := uint64(fcpu) / uint64(p.Divisor) / toggleRate
		if mathx.Between(ticks, 1, uint64(maxCompare)) {
			return TimerParams{
				Divisor: p.Divisor,
				Select:  p.Select,
				Compare: uint32(ticks - 1),
			}, true
		}
	}

	slow := table.Largest()
	return TimerParams{Divisor: slow.Divisor, Select: slow.Select, Compare: maxCompare}, false
}
