package core

// GPIOPin identifies a hardware GPIO pin number
type GPIOPin uint32

// Level is the logical level of a digital pin.
type Level uint8

const (
	Low  Level = 0
	High Level = 1
)

// Toggle returns the opposite level.
func (l Level) Toggle() Level {
	return l ^ 1
}

// String returns "low" or "high"
func (l Level) String() string {
	if l == High {
		return "high"
	}
	return "low"
}

// GPIODriver is the abstract digital I/O interface that core code uses.
// Platform-specific implementations handle actual hardware control.
type GPIODriver interface {
	// ConfigureOutput configures a pin as a digital output
	// Returns error if pin is invalid
	ConfigureOutput(pin GPIOPin) error

	// ConfigureInput configures a pin as a floating digital input
	ConfigureInput(pin GPIOPin) error

	// SetPin drives the pin to the given level.
	// Called from interrupt context, so it must not block or allocate.
	SetPin(pin GPIOPin, level Level)

	// GetPin reads the current pin level
	GetPin(pin GPIOPin) Level
}

// Global singleton used by core code.
var gpioDriver GPIODriver

// SetGPIODriver is called by target-specific code to register its driver.
func SetGPIODriver(d GPIODriver) {
	gpioDriver = d
}

// MustGPIO returns the configured driver or panics if missing.
func MustGPIO() GPIODriver {
	if gpioDriver == nil {
		panic("GPIO driver not configured")
	}
	return gpioDriver
}
