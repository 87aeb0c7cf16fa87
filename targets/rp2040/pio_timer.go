//go:build rp2040

package main

import (
	"device/rp"
	"machine"
	"runtime/interrupt"

	"isrclock/core"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
)

// PIO compare timer program. X holds the period; the loop raises SM IRQ
// flag 0 once every X+5 state machine cycles:
//
//	0: pull noblock      ; OSR = new period, or X when the FIFO is empty
//	1: out x, 32
//	2: mov y, x
//	3: jmp y--, 3
//	4: irq nowait 0
//
// A compare threshold of N is loaded as N-4 so a match happens every N+1
// divided clocks, the same as a clear-on-compare counter.
const (
	pioTimerOrigin   = 0 // Load at offset 0 for correct jump addresses
	pioTimerOverhead = 4
	pioTimerIRQFlag  = 0

	pioMovYX     = 0xa041 // mov y, x
	pioIRQNoWait = 0xc000 // irq nowait <flag>
)

func buildPIOTimerProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		// .wrap_target
		asm.Pull(false, false).Encode(),          // 0: pull noblock
		asm.Out(rp2pio.OutDestX, 32).Encode(),    // 1: out x, 32
		pioMovYX,                                 // 2: mov y, x
		asm.Jmp(3, rp2pio.JmpYNZeroDec).Encode(), // 3: jmp y--, 3
		pioIRQNoWait | pioTimerIRQFlag,           // 4: irq nowait 0
		// .wrap
	}
}

// PIOPrescalers are integer state machine clock dividers; the select value
// is the table index
var PIOPrescalers = core.PrescaleTable{
	{Divisor: 1, Select: 0},
	{Divisor: 16, Select: 1},
	{Divisor: 256, Select: 2},
	{Divisor: 4096, Select: 3},
	{Divisor: 65535, Select: 4},
}

// PIOMaxCompare keeps the loaded period inside X
const PIOMaxCompare = 0xFFFFFFFF - pioTimerOverhead

// PIOCompareTimer implements core.CompareTimer with one PIO0 state machine
// that raises PIO0_IRQ_0 on every period
type PIOCompareTimer struct {
	pio     *rp2pio.PIO
	sm      rp2pio.StateMachine
	offset  uint8
	cfg     rp2pio.StateMachineConfig
	compare uint32
	handler func()
	irq     interrupt.Interrupt
}

var pioTimer *PIOCompareTimer

// NewPIOCompareTimer loads the timer program into PIO0 state machine 0
// and installs the PIO0_IRQ_0 handler. The state machine stays disabled
// until Start.
func NewPIOCompareTimer() (*PIOCompareTimer, error) {
	t := &PIOCompareTimer{
		pio: rp2pio.PIO0,
	}
	t.sm = t.pio.StateMachine(0)
	t.sm.TryClaim()

	program := buildPIOTimerProgram()
	offset, err := t.pio.AddProgram(program, pioTimerOrigin)
	if err != nil {
		return nil, err
	}
	t.offset = offset

	t.cfg = rp2pio.DefaultStateMachineConfig()
	t.cfg.SetOutShift(true, false, 32)
	t.cfg.SetWrap(offset+uint8(len(program))-1, offset)
	t.cfg.SetClkDivIntFrac(1, 0)
	t.sm.Init(offset, t.cfg)

	pioTimer = t
	t.irq = interrupt.New(rp.IRQ_PIO0_IRQ_0, func(interrupt.Interrupt) {
		// write 1 to clear
		rp.PIO0.IRQ.Set(1 << pioTimerIRQFlag)
		if pioTimer.handler != nil {
			pioTimer.handler()
		}
	})
	return t, nil
}

func (t *PIOCompareTimer) BaseFrequency() uint32          { return machine.CPUFrequency() }
func (t *PIOCompareTimer) Prescalers() core.PrescaleTable { return PIOPrescalers }
func (t *PIOCompareTimer) MaxCompare() uint32             { return PIOMaxCompare }
func (t *PIOCompareTimer) SetHandler(handler func())      { t.handler = handler }

// SetPeriodicMode is a no-op: the program always reloads X
func (t *PIOCompareTimer) SetPeriodicMode() {}

// SetCompare queues the period the program loads on its next pass
func (t *PIOCompareTimer) SetCompare(threshold uint32) {
	t.compare = threshold
}

// ClearPending drops a latched IRQ flag
func (t *PIOCompareTimer) ClearPending() {
	rp.PIO0.IRQ.Set(1 << pioTimerIRQFlag)
}

// EnableCompareInterrupt routes SM IRQ flag 0 to PIO0_IRQ_0
func (t *PIOCompareTimer) EnableCompareInterrupt(enabled bool) {
	if enabled {
		rp.PIO0.IRQ0_INTE.SetBits(rp.PIO0_IRQ0_INTE_SM0)
		t.irq.Enable()
		return
	}
	rp.PIO0.IRQ0_INTE.ClearBits(rp.PIO0_IRQ0_INTE_SM0)
}

// Start sets the clock divider for sel and runs the state machine
func (t *PIOCompareTimer) Start(sel uint8) {
	div := PIOPrescalers.Smallest().Divisor
	if int(sel) < len(PIOPrescalers) {
		div = PIOPrescalers[sel].Divisor
	}

	period := uint32(0)
	if t.compare > pioTimerOverhead {
		period = t.compare - pioTimerOverhead
	}

	// Init leaves the state machine disabled at the program start, so the
	// first pull takes the new period
	t.sm.SetEnabled(false)
	t.cfg.SetClkDivIntFrac(uint16(div), 0)
	t.sm.Init(t.offset, t.cfg)
	t.sm.ClearFIFOs()
	t.sm.TxPut(period)
	t.sm.SetEnabled(true)
}

// Stop halts the state machine
func (t *PIOCompareTimer) Stop() {
	t.sm.SetEnabled(false)
}
