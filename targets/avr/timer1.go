//go:build atmega2560

package main

import (
	"device/avr"
	"runtime/interrupt"
	"runtime/volatile"
	"unsafe"

	"isrclock/core"
)

// ATmega Timer1 register map (data memory addresses)
const (
	regTIFR1  = 0x36
	regTIMSK1 = 0x6F
	regTCCR1A = 0x80
	regTCCR1B = 0x81
	regTCNT1L = 0x84
	regTCNT1H = 0x85
	regOCR1AL = 0x88
	regOCR1AH = 0x89
)

// Timer1 bits
const (
	bitWGM12  = 1 << 3 // TCCR1B: clear timer on OCR1A match
	maskCS1   = 0b111  // TCCR1B: clock select
	bitOCIE1A = 1 << 1 // TIMSK1: compare A interrupt enable
	bitOCF1A  = 1 << 1 // TIFR1: compare A flag, write 1 to clear
)

var (
	tifr1  = (*volatile.Register8)(unsafe.Pointer(uintptr(regTIFR1)))
	timsk1 = (*volatile.Register8)(unsafe.Pointer(uintptr(regTIMSK1)))
	tccr1a = (*volatile.Register8)(unsafe.Pointer(uintptr(regTCCR1A)))
	tccr1b = (*volatile.Register8)(unsafe.Pointer(uintptr(regTCCR1B)))
	tcnt1l = (*volatile.Register8)(unsafe.Pointer(uintptr(regTCNT1L)))
	tcnt1h = (*volatile.Register8)(unsafe.Pointer(uintptr(regTCNT1H)))
	ocr1al = (*volatile.Register8)(unsafe.Pointer(uintptr(regOCR1AL)))
	ocr1ah = (*volatile.Register8)(unsafe.Pointer(uintptr(regOCR1AH)))
)

// Timer1 implements core.CompareTimer with the 16-bit Timer1 in CTC mode
type Timer1 struct {
	fcpu    uint32
	handler func()
}

var timer1 *Timer1

// NewTimer1 takes ownership of Timer1 and installs the COMPA vector
func NewTimer1(fcpu uint32) *Timer1 {
	timer1 = &Timer1{fcpu: fcpu}
	interrupt.New(avr.IRQ_TIMER1_COMPA, func(interrupt.Interrupt) {
		if timer1.handler != nil {
			timer1.handler()
		}
	})
	return timer1
}

func (t *Timer1) BaseFrequency() uint32          { return t.fcpu }
func (t *Timer1) Prescalers() core.PrescaleTable { return core.AVRTimer1Prescalers }
func (t *Timer1) MaxCompare() uint32             { return core.Timer1MaxCompare }
func (t *Timer1) SetHandler(handler func())      { t.handler = handler }

// SetPeriodicMode selects CTC with OCR1A as TOP and resets the counter
func (t *Timer1) SetPeriodicMode() {
	tccr1a.Set(0)
	tccr1b.Set(tccr1b.Get()&maskCS1 | bitWGM12)
	// high byte first through TEMP
	tcnt1h.Set(0)
	tcnt1l.Set(0)
}

// SetCompare writes OCR1A, high byte first
func (t *Timer1) SetCompare(threshold uint32) {
	ocr1ah.Set(uint8(threshold >> 8))
	ocr1al.Set(uint8(threshold))
}

func (t *Timer1) ClearPending() {
	tifr1.Set(bitOCF1A)
}

func (t *Timer1) EnableCompareInterrupt(enabled bool) {
	if enabled {
		timsk1.SetBits(bitOCIE1A)
	} else {
		timsk1.ClearBits(bitOCIE1A)
	}
}

// Start applies CS12:CS10
func (t *Timer1) Start(sel uint8) {
	tccr1b.Set(tccr1b.Get()&^maskCS1 | sel&maskCS1)
}

// Stop clears the clock select, which freezes the counter
func (t *Timer1) Stop() {
	tccr1b.ClearBits(maskCS1)
}
