// Interrupt-driven square-wave clock generator
// Owns one compare timer and toggles one output pin on every compare match
package core

import "sync/atomic"

// Clock configuration defaults
const (
	DefaultClockHz  = 10 // Output frequency when none is given
	DefaultClockPin = 4  // Clock output pin
	DefaultDebugPin = 13 // On-board LED used as the debug mirror
)

// ClockConfig holds the clock generator's build-time options.
// It is resolved once when the generator is constructed.
type ClockConfig struct {
	// EnableInternal generates the clock from the compare timer. When false
	// the generator is inert and an external source drives the clock pin.
	EnableInternal bool

	// FrequencyHz is used by Begin when it is called with hz == 0
	FrequencyHz uint32

	// Pin is the default clock output pin
	Pin GPIOPin

	// MirrorToDebug copies every clock edge to DebugPin
	MirrorToDebug bool
	DebugPin      GPIOPin
}

// DefaultClockConfig returns the configuration used when a target sets nothing
func DefaultClockConfig() ClockConfig {
	return ClockConfig{
		EnableInternal: true,
		FrequencyHz:    DefaultClockHz,
		Pin:            DefaultClockPin,
		MirrorToDebug:  false,
		DebugPin:       DefaultDebugPin,
	}
}

// ClockStatus is a foreground snapshot of the generator
type ClockStatus struct {
	Active  bool
	Pin     GPIOPin
	Hz      uint32
	Level   Level
	Params  TimerParams
	Exact   bool
	Toggles uint32 // Compare matches handled since the last Begin
}

// ClockGenerator drives a 50% duty square wave on one pin.
//
// pin, level, active and toggles are shared with the compare handler and are
// only accessed atomically. Everything else is foreground state written by
// Begin and End.
type ClockGenerator struct {
	cfg   ClockConfig
	gpio  GPIODriver
	timer CompareTimer

	pin     atomic.Uint32
	level   atomic.Uint32
	active  atomic.Bool
	toggles atomic.Uint32

	hz     uint32
	params TimerParams
	exact  bool
}

// NewClockGenerator binds a generator to its I/O and timer and installs the
// compare handler. The generator starts inactive with the output low.
func NewClockGenerator(cfg ClockConfig, gpio GPIODriver, timer CompareTimer) *ClockGenerator {
	if cfg.FrequencyHz == 0 {
		cfg.FrequencyHz = DefaultClockHz
	}
	c := &ClockGenerator{
		cfg:   cfg,
		gpio:  gpio,
		timer: timer,
	}
	c.pin.Store(uint32(cfg.Pin))
	if cfg.EnableInternal {
		timer.SetHandler(c.HandleCompare)
	}
	return c
}

// Config returns the generator's configuration
func (c *ClockGenerator) Config() ClockConfig {
	return c.cfg
}

// Begin starts (or restarts) the clock on pin at hz. hz == 0 selects the
// configured frequency. Calling Begin while active stops the running clock
// and drives its pin low before reconfiguring.
//
// The returned status reports whether the frequency was represented exactly;
// when it was not the nearest achievable frequency is generated anyway.
func (c *ClockGenerator) Begin(pin GPIOPin, hz uint32) (ClockStatus, error) {
	if !c.cfg.EnableInternal {
		RecordClockEvent(EvtClockInert, pin, hz, 0)
		DebugPrintln("[CLOCK] internal generation disabled, begin ignored")
		return c.Status(), nil
	}
	if hz == 0 {
		hz = c.cfg.FrequencyHz
	}

	if c.active.Load() {
		c.stop()
		if old := GPIOPin(c.pin.Load()); old != pin {
			c.gpio.SetPin(old, Low)
		}
	}

	if err := c.gpio.ConfigureOutput(pin); err != nil {
		return c.Status(), err
	}
	c.gpio.SetPin(pin, Low)
	c.pin.Store(uint32(pin))
	c.level.Store(uint32(Low))
	c.toggles.Store(0)

	if c.cfg.MirrorToDebug {
		if err := c.gpio.ConfigureOutput(c.cfg.DebugPin); err != nil {
			return c.Status(), err
		}
		c.gpio.SetPin(c.cfg.DebugPin, Low)
	}

	params, exact := ResolveTimer(hz, c.timer.BaseFrequency(), c.timer.Prescalers(), c.timer.MaxCompare())
	c.hz = hz
	c.params = params
	c.exact = exact

	state := disableInterrupts()
	c.timer.Stop()
	c.timer.SetPeriodicMode()
	c.timer.SetCompare(params.Compare)
	c.timer.ClearPending()
	c.active.Store(true)
	c.timer.EnableCompareInterrupt(true)
	c.timer.Start(params.Select)
	restoreInterrupts(state)

	RecordClockEvent(EvtClockBegin, pin, hz, params.Compare)
	if !exact {
		RecordClockEvent(EvtClockClamp, pin, hz, params.Divisor)
		DebugPrintln("[CLOCK] " + utoa(hz) + " Hz not representable, using " +
			utoa64(params.AchievedMilliHz(c.timer.BaseFrequency())) + " mHz")
	}
	DebugPrintln("[CLOCK] begin pin=" + utoa(uint32(pin)) + " hz=" + utoa(hz) +
		" div=" + utoa(params.Divisor) + " ocr=" + utoa(params.Compare))

	return c.Status(), nil
}

// End stops the clock and leaves the output (and mirror) low.
// After End returns no further pin writes happen until the next Begin.
func (c *ClockGenerator) End() {
	if !c.cfg.EnableInternal {
		RecordClockEvent(EvtClockInert, GPIOPin(c.pin.Load()), 0, 0)
		return
	}

	c.stop()

	pin := GPIOPin(c.pin.Load())
	c.gpio.SetPin(pin, Low)
	if c.cfg.MirrorToDebug {
		c.gpio.SetPin(c.cfg.DebugPin, Low)
	}
	c.level.Store(uint32(Low))

	RecordClockEvent(EvtClockEnd, pin, c.toggles.Load(), 0)
	DebugPrintln("[CLOCK] end pin=" + utoa(uint32(pin)))
}

// stop disables the compare interrupt and removes the timer clock
func (c *ClockGenerator) stop() {
	state := disableInterrupts()
	c.timer.EnableCompareInterrupt(false)
	c.timer.Stop()
	c.active.Store(false)
	restoreInterrupts(state)
}

// HandleCompare is the compare-match interrupt handler: it flips the output
// level and writes it to the clock pin and the debug mirror.
// Constant time, no allocation, no locking.
func (c *ClockGenerator) HandleCompare() {
	if !c.active.Load() {
		return
	}
	level := Level(c.level.Load()).Toggle()
	c.level.Store(uint32(level))
	c.gpio.SetPin(GPIOPin(c.pin.Load()), level)
	if c.cfg.MirrorToDebug {
		c.gpio.SetPin(c.cfg.DebugPin, level)
	}
	c.toggles.Add(1)
}

// Active reports whether the clock is running
func (c *ClockGenerator) Active() bool {
	return c.active.Load()
}

// Level returns the current generated level. The value may be one toggle
// interval stale by the time the caller looks at it.
func (c *ClockGenerator) Level() Level {
	return Level(c.level.Load())
}

// Pin returns the output pin currently (or last) driven
func (c *ClockGenerator) Pin() GPIOPin {
	return GPIOPin(c.pin.Load())
}

// Status returns a snapshot of the generator
func (c *ClockGenerator) Status() ClockStatus {
	return ClockStatus{
		Active:  c.active.Load(),
		Pin:     GPIOPin(c.pin.Load()),
		Hz:      c.hz,
		Level:   Level(c.level.Load()),
		Params:  c.params,
		Exact:   c.exact,
		Toggles: c.toggles.Load(),
	}
}

// Global clock generator used by the protocol commands
var clockGen *ClockGenerator

// InitClockGenerator builds the global generator from the registered GPIO
// driver and compare timer.
func InitClockGenerator(cfg ClockConfig) *ClockGenerator {
	clockGen = NewClockGenerator(cfg, MustGPIO(), MustCompareTimer())
	return clockGen
}

// MustClock returns the global generator or panics if missing.
func MustClock() *ClockGenerator {
	if clockGen == nil {
		panic("clock generator not configured")
	}
	return clockGen
}
