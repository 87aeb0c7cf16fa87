package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 10 Hz on a 16 MHz Timer1: one compare match every 50 ms
const tenHzPeriod = 800000

func newTestClock(t *testing.T, cfg ClockConfig) (*ClockGenerator, *recordingGPIO, *SimTimer) {
	t.Helper()
	resetTimers()
	ClearClockEvents()
	t.Cleanup(resetTimers)

	gpio := newRecordingGPIO()
	timer := NewSimTimer1()
	return NewClockGenerator(cfg, gpio, timer), gpio, timer
}

func advance(cycles uint64) {
	AdvanceTime(cycles)
	ProcessTimers()
}

func TestClockBeginTogglesAtRate(t *testing.T) {
	c, gpio, timer := newTestClock(t, DefaultClockConfig())

	status, err := c.Begin(4, 10)
	require.NoError(t, err)
	assert.True(t, status.Active)
	assert.True(t, status.Exact)
	assert.Equal(t, uint32(64), status.Params.Divisor)
	assert.Equal(t, uint32(12499), status.Params.Compare)
	assert.True(t, gpio.outputs[4])
	assert.Equal(t, Low, gpio.GetPin(4))
	assert.True(t, timer.Running())
	assert.True(t, timer.InterruptEnabled())

	advance(tenHzPeriod)
	assert.Equal(t, High, c.Level())
	assert.Equal(t, High, gpio.GetPin(4))

	advance(tenHzPeriod)
	assert.Equal(t, Low, c.Level())

	// One second is 20 toggles, ten full cycles
	advance(16000000)
	assert.Equal(t, uint32(22), c.Status().Toggles)
	assert.Equal(t, Low, gpio.GetPin(4))

	levels := gpio.writesTo(4)
	require.Len(t, levels, 23) // initial low plus one write per toggle
	for i := 1; i < len(levels); i++ {
		assert.NotEqual(t, levels[i-1], levels[i], "write %d did not alternate", i)
	}
}

func TestClockBeginIsIdempotent(t *testing.T) {
	c, _, timer := newTestClock(t, DefaultClockConfig())

	_, err := c.Begin(4, 10)
	require.NoError(t, err)
	advance(tenHzPeriod / 2)

	_, err = c.Begin(4, 10)
	require.NoError(t, err)
	assert.True(t, c.Active())
	assert.Equal(t, Low, c.Level())

	// The restart rescheduled the match; only one is queued
	advance(tenHzPeriod)
	assert.Equal(t, uint32(1), c.Status().Toggles)
	assert.Equal(t, uint32(1), timer.Matches)
}

func TestClockEndLeavesPinLow(t *testing.T) {
	c, gpio, timer := newTestClock(t, DefaultClockConfig())

	_, err := c.Begin(4, 10)
	require.NoError(t, err)
	advance(tenHzPeriod)
	require.Equal(t, High, gpio.GetPin(4))

	c.End()
	assert.False(t, c.Active())
	assert.Equal(t, Low, gpio.GetPin(4))
	assert.Equal(t, Low, c.Level())
	assert.False(t, timer.Running())
	assert.False(t, timer.InterruptEnabled())

	writes := len(gpio.writes)
	advance(16000000)
	assert.Len(t, gpio.writes, writes, "no pin writes after End")
	assert.Equal(t, Low, gpio.GetPin(4))
}

func TestClockEndWhenIdle(t *testing.T) {
	c, gpio, _ := newTestClock(t, DefaultClockConfig())

	c.End()
	assert.False(t, c.Active())
	assert.Equal(t, Low, gpio.GetPin(DefaultClockPin))
}

func TestClockBeginMovesPin(t *testing.T) {
	c, gpio, _ := newTestClock(t, DefaultClockConfig())

	_, err := c.Begin(4, 10)
	require.NoError(t, err)
	advance(tenHzPeriod)
	require.Equal(t, High, gpio.GetPin(4))

	status, err := c.Begin(5, 10)
	require.NoError(t, err)
	assert.Equal(t, GPIOPin(5), status.Pin)
	assert.Equal(t, Low, gpio.GetPin(4), "old pin released low")
	assert.Equal(t, Low, gpio.GetPin(5))

	advance(tenHzPeriod)
	assert.Equal(t, High, gpio.GetPin(5))
	assert.Equal(t, Low, gpio.GetPin(4))
}

func TestClockBeginDefaultFrequency(t *testing.T) {
	cfg := DefaultClockConfig()
	cfg.FrequencyHz = 5
	c, _, _ := newTestClock(t, cfg)

	status, err := c.Begin(4, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), status.Hz)
	assert.Equal(t, uint64(5000), status.Params.AchievedMilliHz(16000000))
}

func TestClockBeginUnrepresentable(t *testing.T) {
	c, _, _ := newTestClock(t, DefaultClockConfig())

	status, err := c.Begin(4, 10000000)
	require.NoError(t, err)
	assert.True(t, status.Active, "clamped frequency still runs")
	assert.False(t, status.Exact)
	assert.Equal(t, uint32(1024), status.Params.Divisor)
	assert.Equal(t, uint32(Timer1MaxCompare), status.Params.Compare)

	var clamped bool
	for _, evt := range ClockEvents() {
		if evt.EventType == EvtClockClamp {
			clamped = true
		}
	}
	assert.True(t, clamped)
}

func TestClockMirror(t *testing.T) {
	cfg := DefaultClockConfig()
	cfg.MirrorToDebug = true
	c, gpio, _ := newTestClock(t, cfg)

	_, err := c.Begin(4, 10)
	require.NoError(t, err)
	assert.True(t, gpio.outputs[DefaultDebugPin])

	for i := 0; i < 5; i++ {
		advance(tenHzPeriod)
		assert.Equal(t, gpio.GetPin(4), gpio.GetPin(DefaultDebugPin))
	}
	assert.Equal(t, gpio.writesTo(4), gpio.writesTo(DefaultDebugPin))

	c.End()
	assert.Equal(t, Low, gpio.GetPin(DefaultDebugPin))
}

func TestClockInert(t *testing.T) {
	cfg := DefaultClockConfig()
	cfg.EnableInternal = false
	c, gpio, timer := newTestClock(t, cfg)

	status, err := c.Begin(4, 10)
	require.NoError(t, err)
	assert.False(t, status.Active)
	assert.Empty(t, gpio.outputs)
	assert.False(t, timer.Running())

	advance(16000000)
	assert.Empty(t, gpio.writes)

	c.End()
	assert.Empty(t, gpio.writes)

	events := ClockEvents()
	require.Len(t, events, 2)
	assert.Equal(t, uint8(EvtClockInert), events[0].EventType)
}

func TestClockStalePendingIgnored(t *testing.T) {
	c, gpio, timer := newTestClock(t, DefaultClockConfig())

	// Leave a latched match on the timer before the generator takes it over
	state := disableInterrupts()
	timer.SetPeriodicMode()
	timer.SetCompare(0)
	timer.Start(0b001)
	restoreInterrupts(state)
	advance(10)
	require.True(t, timer.Pending())

	_, err := c.Begin(4, 10)
	require.NoError(t, err)
	assert.False(t, timer.Pending())

	ProcessTimers()
	assert.Equal(t, uint32(0), c.Status().Toggles)
	assert.Equal(t, Low, gpio.GetPin(4))
}

func TestClockBeginConfigureError(t *testing.T) {
	c, gpio, timer := newTestClock(t, DefaultClockConfig())
	gpio.fail = true
	gpio.failPin = 7

	_, err := c.Begin(7, 10)
	assert.Error(t, err)
	assert.False(t, c.Active())
	assert.False(t, timer.Running())
}

func TestHandleCompareWhenInactive(t *testing.T) {
	c, gpio, _ := newTestClock(t, DefaultClockConfig())

	c.HandleCompare()
	assert.Empty(t, gpio.writes)
	assert.Equal(t, Low, c.Level())
}

func TestInitClockGenerator(t *testing.T) {
	prevGPIO, prevTimer, prevClock := gpioDriver, compareTimer, clockGen
	defer func() { gpioDriver, compareTimer, clockGen = prevGPIO, prevTimer, prevClock }()

	clockGen = nil
	assert.Panics(t, func() { MustClock() })

	SetGPIODriver(newRecordingGPIO())
	SetCompareTimer(NewSimTimer1())
	c := InitClockGenerator(DefaultClockConfig())
	assert.Same(t, c, MustClock())
	assert.Equal(t, GPIOPin(DefaultClockPin), c.Pin())
}

func TestShutdownDumpsClockEvents(t *testing.T) {
	c, gpio, _ := newTestClock(t, DefaultClockConfig())
	prev := clockGen
	clockGen = c

	var lines []string
	SetDebugWriter(func(s string) { lines = append(lines, s) })
	SetDebugEnabled(true)
	t.Cleanup(func() {
		clockGen = prev
		SetDebugEnabled(false)
		SetDebugWriter(func(string) {})
		ResetFirmwareState()
	})

	_, err := c.Begin(4, 10)
	require.NoError(t, err)
	advance(tenHzPeriod)

	TryShutdown("test")
	assert.True(t, IsShutdown())
	assert.False(t, c.Active())
	assert.Equal(t, Low, gpio.GetPin(4))

	dump := strings.Join(lines, "\n")
	assert.Contains(t, dump, "[SHUTDOWN] test")
	assert.Contains(t, dump, "[CLOCK] === Event Ring Dump ===")
	assert.Contains(t, dump, "[CLOCK] BEGIN pin=4")
	assert.Contains(t, dump, "[CLOCK] END pin=4")
	assert.Contains(t, dump, "[CLOCK] === End Dump ===")
}
