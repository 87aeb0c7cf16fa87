//go:build rp2040

package main

import (
	"errors"
	"machine"

	"isrclock/core"
)

const rpNumGPIO = 30

var errBadPin = errors.New("gpio: pin out of range")

// RPGPIODriver implements core.GPIODriver for the RP2040 bank 0 pins.
// SetPin runs from the PIO interrupt, so pins live in a fixed table.
type RPGPIODriver struct {
	pins       [rpNumGPIO]machine.Pin
	configured [rpNumGPIO]bool
}

// NewRPGPIODriver creates a new RP2040 GPIO driver
func NewRPGPIODriver() *RPGPIODriver {
	d := &RPGPIODriver{}
	for i := range d.pins {
		// GPIO0 = 0, GPIO1 = 1, etc.
		d.pins[i] = machine.Pin(i)
	}
	return d
}

// ConfigureOutput configures a pin as a digital output
func (d *RPGPIODriver) ConfigureOutput(pin core.GPIOPin) error {
	if pin >= rpNumGPIO {
		return errBadPin
	}
	d.pins[pin].Configure(machine.PinConfig{Mode: machine.PinOutput})
	d.configured[pin] = true
	return nil
}

// ConfigureInput configures a pin as a floating input
func (d *RPGPIODriver) ConfigureInput(pin core.GPIOPin) error {
	if pin >= rpNumGPIO {
		return errBadPin
	}
	d.pins[pin].Configure(machine.PinConfig{Mode: machine.PinInput})
	d.configured[pin] = true
	return nil
}

// SetPin drives a configured pin; writes to other pins are dropped
func (d *RPGPIODriver) SetPin(pin core.GPIOPin, level core.Level) {
	if pin >= rpNumGPIO || !d.configured[pin] {
		return
	}
	d.pins[pin].Set(level == core.High)
}

// GetPin reads the current pin level
func (d *RPGPIODriver) GetPin(pin core.GPIOPin) core.Level {
	if pin >= rpNumGPIO || !d.configured[pin] {
		return core.Low
	}
	if d.pins[pin].Get() {
		return core.High
	}
	return core.Low
}
