// Package serial opens the link to the clock firmware
package serial

import (
	"errors"
	"io"
	"time"
)

// Port is a byte stream to the MCU
type Port interface {
	io.ReadWriteCloser

	// Flush discards data buffered but not yet transferred
	Flush() error
}

// Config holds serial port settings
type Config struct {
	// Device path (e.g. "/dev/ttyACM0", "/dev/ttyUSB0", "COM3")
	Device string

	// Baud rate. USB CDC ignores it; the AVR UART uses it.
	Baud int

	// ReadTimeout bounds each read so the reader can notice Close (0 blocks)
	ReadTimeout time.Duration
}

// DefaultBaud matches the AVR firmware UART
const DefaultBaud = 250000

// ErrNoDevice is returned when a config names no device
var ErrNoDevice = errors.New("no serial device configured")

// DefaultConfig returns the settings used by the firmware targets
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: 100 * time.Millisecond,
	}
}

// Validate checks that the config can be opened
func (c *Config) Validate() error {
	if c.Device == "" {
		return ErrNoDevice
	}
	if c.Baud <= 0 {
		return errors.New("baud rate must be positive")
	}
	return nil
}
