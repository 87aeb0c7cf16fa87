package mcu

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"isrclock/core"
	"isrclock/host/sim"
)

// newSimMCU connects a client to a simulated firmware over a pipe
func newSimMCU(t *testing.T, cfg core.ClockConfig) (*MCU, *sim.GPIO) {
	m, gpio, _ := newSimMCUWithFirmware(t, cfg)
	return m, gpio
}

func newSimMCUWithFirmware(t *testing.T, cfg core.ClockConfig) (*MCU, *sim.GPIO, *sim.Firmware) {
	t.Helper()

	gpio := sim.NewGPIO()
	fw := sim.NewFirmware(cfg, gpio, core.NewSimTimer1(), nil)

	hostEnd, mcuEnd := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = fw.Serve(ctx, mcuEnd)
	}()

	m := NewMCU(nil)
	m.Attach(hostEnd)
	t.Cleanup(func() {
		m.Close()
		cancel()
		<-done
		fw.Close()
	})

	require.NoError(t, m.RetrieveDictionary())
	return m, gpio, fw
}

func TestCallsBeforeConnect(t *testing.T) {
	m := NewMCU(nil)

	assert.False(t, m.IsConnected())
	assert.ErrorIs(t, m.RetrieveDictionary(), ErrNotConnected)
	_, err := m.ClockQuery()
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.NoError(t, m.Close())
}

func TestRetrieveDictionary(t *testing.T) {
	m, _ := newSimMCU(t, core.DefaultClockConfig())

	dict := m.GetDictionary()
	require.NotNil(t, dict)
	assert.Equal(t, "isrclock-0.1.0", dict.Version)
	assert.Contains(t, dict.BuildVersions, "host-sim")

	// Served compressed, kept as JSON
	raw := m.GetDictionaryRaw()
	require.NotEmpty(t, raw)
	assert.Equal(t, byte('{'), raw[0])

	id, ok := dict.CommandID("identify")
	assert.True(t, ok)
	assert.Equal(t, uint16(1), id)
	id, ok = dict.ResponseID("identify_response")
	assert.True(t, ok)
	assert.Equal(t, uint16(0), id)

	_, ok = dict.CommandID("clock_begin")
	assert.True(t, ok)

	freq, err := m.ClockFrequency()
	require.NoError(t, err)
	assert.Equal(t, uint32(16000000), freq)

	v, ok := dict.Constant("CLOCK_INTERNAL")
	assert.True(t, ok)
	assert.Equal(t, "1", v)
	assert.Equal(t, 3, dict.Enumerations["prescaler"]["div64"])
}

func TestClockBeginQueryEnd(t *testing.T) {
	m, gpio := newSimMCU(t, core.DefaultClockConfig())

	state, err := m.ClockBegin(4, 10)
	require.NoError(t, err)
	assert.True(t, state.Active)
	assert.Equal(t, uint32(4), state.Pin)
	assert.Equal(t, uint32(10), state.Hz)
	assert.Equal(t, uint32(64), state.Divisor)
	assert.Equal(t, uint32(12499), state.Compare)
	assert.True(t, state.Exact)
	assert.Equal(t, uint64(10000), state.Params().AchievedMilliHz(16000000))
	assert.True(t, gpio.IsOutput(4))

	state, err = m.ClockQuery()
	require.NoError(t, err)
	assert.True(t, state.Active)

	state, err = m.ClockEnd()
	require.NoError(t, err)
	assert.False(t, state.Active)
	assert.Equal(t, core.Low, state.Level)
	assert.Equal(t, core.Low, gpio.GetPin(4))
}

func TestClockBeginDefaultHz(t *testing.T) {
	m, _ := newSimMCU(t, core.DefaultClockConfig())

	state, err := m.ClockBegin(4, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(core.DefaultClockHz), state.Hz)
}

func TestDFFUpdate(t *testing.T) {
	m, _ := newSimMCU(t, core.DefaultClockConfig())

	q, err := m.DFFUpdate(0, 1, true)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), q)

	q, err = m.DFFUpdate(1, 0, false)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), q)
}

func TestUptimeAndConfig(t *testing.T) {
	m, _ := newSimMCU(t, core.DefaultClockConfig())

	_, err := m.Uptime()
	require.NoError(t, err)

	cfg, err := m.GetConfig()
	require.NoError(t, err)
	assert.False(t, cfg.IsShutdown)
}

func TestUnknownCommand(t *testing.T) {
	m, _ := newSimMCU(t, core.DefaultClockConfig())

	err := m.SendCommand("no_such_command", nil)
	assert.ErrorContains(t, err, "unknown command")
}

func TestParseDictionaryIndexesNames(t *testing.T) {
	raw := []byte(`{"version":"v","config":{"CLOCK_FREQ":"16000000"},` +
		`"commands":{"clock_begin pin=%u hz=%u":2},"responses":{"clock_state active=%c":3}}`)

	d, err := ParseDictionary(raw)
	require.NoError(t, err)

	id, ok := d.CommandID("clock_begin")
	assert.True(t, ok)
	assert.Equal(t, uint16(2), id)
	id, ok = d.ResponseID("clock_state")
	assert.True(t, ok)
	assert.Equal(t, uint16(3), id)

	_, err = d.ConstantUint("MISSING")
	assert.Error(t, err)
}

func TestParseDictionaryRejectsGarbage(t *testing.T) {
	_, err := ParseDictionary([]byte("not json"))
	assert.Error(t, err)
}

func TestInflateDictionaryPassesJSONThrough(t *testing.T) {
	plain := []byte(`{"version":"x"}`)
	out, err := InflateDictionary(plain)
	require.NoError(t, err)
	assert.Equal(t, plain, out)

	_, err = InflateDictionary([]byte{0x78, 0x01, 0xFF})
	assert.Error(t, err)
}
