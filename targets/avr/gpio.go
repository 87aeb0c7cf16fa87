//go:build atmega2560

package main

import (
	"errors"
	"machine"

	"isrclock/core"
)

var errBadPin = errors.New("gpio: pin out of range")

// boardPins maps Arduino digital pin numbers to MCU pins
var boardPins = [...]machine.Pin{
	machine.D0, machine.D1, machine.D2, machine.D3, machine.D4,
	machine.D5, machine.D6, machine.D7, machine.D8, machine.D9,
	machine.D10, machine.D11, machine.D12, machine.D13,
}

// AVRGPIODriver implements core.GPIODriver over the Arduino header pins
type AVRGPIODriver struct {
	configured [len(boardPins)]bool
}

func NewAVRGPIODriver() *AVRGPIODriver {
	return &AVRGPIODriver{}
}

func (d *AVRGPIODriver) ConfigureOutput(pin core.GPIOPin) error {
	if int(pin) >= len(boardPins) {
		return errBadPin
	}
	boardPins[pin].Configure(machine.PinConfig{Mode: machine.PinOutput})
	d.configured[pin] = true
	return nil
}

func (d *AVRGPIODriver) ConfigureInput(pin core.GPIOPin) error {
	if int(pin) >= len(boardPins) {
		return errBadPin
	}
	boardPins[pin].Configure(machine.PinConfig{Mode: machine.PinInput})
	d.configured[pin] = true
	return nil
}

// SetPin runs from the Timer1 vector
func (d *AVRGPIODriver) SetPin(pin core.GPIOPin, level core.Level) {
	if int(pin) >= len(boardPins) || !d.configured[pin] {
		return
	}
	boardPins[pin].Set(level == core.High)
}

func (d *AVRGPIODriver) GetPin(pin core.GPIOPin) core.Level {
	if int(pin) >= len(boardPins) || !d.configured[pin] {
		return core.Low
	}
	if boardPins[pin].Get() {
		return core.High
	}
	return core.Low
}
