package sim

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"isrclock/core"
	"isrclock/protocol"
)

func TestTickerTimerDrivesClock(t *testing.T) {
	gpio := NewGPIO()
	timer := NewTimer1()
	clock := core.NewClockGenerator(core.DefaultClockConfig(), gpio, timer)

	// 100 Hz: a compare match every 5 ms
	status, err := clock.Begin(4, 100)
	require.NoError(t, err)
	require.True(t, status.Exact)
	assert.Equal(t, 5*time.Millisecond, timer.Snapshot().Period)

	require.Eventually(t, func() bool {
		return gpio.Transitions(4) >= 10
	}, 2*time.Second, 5*time.Millisecond)

	clock.End()
	assert.False(t, timer.Snapshot().Running)
	assert.Equal(t, core.Low, gpio.GetPin(4))

	settled := gpio.Transitions(4)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, settled, gpio.Transitions(4), "pin moved after End")
}

func TestTickerTimerMinPeriod(t *testing.T) {
	gpio := NewGPIO()
	timer := NewTimer1()
	clock := core.NewClockGenerator(core.DefaultClockConfig(), gpio, timer)

	_, err := clock.Begin(4, 1000000)
	require.NoError(t, err)
	defer clock.End()

	assert.Equal(t, MinPeriod, timer.Snapshot().Period)
}

func TestGPIOWatch(t *testing.T) {
	gpio := NewGPIO()
	var changes []PinChange
	gpio.Watch(func(c PinChange) { changes = append(changes, c) })

	gpio.SetPin(3, core.High)
	gpio.SetPin(3, core.High) // no change
	gpio.Drive(3, core.Low)

	require.Len(t, changes, 2)
	assert.Equal(t, core.High, changes[0].Level)
	assert.Equal(t, core.Low, changes[1].Level)
	assert.Equal(t, uint32(2), gpio.Transitions(3))

	require.NoError(t, gpio.ConfigureOutput(5))
	assert.True(t, gpio.IsOutput(5))
	require.NoError(t, gpio.ConfigureInput(5))
	assert.False(t, gpio.IsOutput(5))
}

func TestSamplerClocksRegister(t *testing.T) {
	gpio := NewGPIO()
	reg := core.NewDFFRegister("a", "b")
	reg.SetD("a", 1)
	s := NewSampler(gpio, 4, reg)

	assert.False(t, s.Step())
	gpio.Drive(4, core.High)
	assert.True(t, s.Step())
	assert.Equal(t, uint32(0b01), reg.Value())
	assert.False(t, s.Step(), "level held high")
	assert.Equal(t, uint32(1), s.Edges())
}

func TestFirmwareServesProtocol(t *testing.T) {
	gpio := NewGPIO()
	fw := NewFirmware(core.DefaultClockConfig(), gpio, core.NewSimTimer1(), nil)
	defer fw.Close()

	hostEnd, mcuEnd := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fw.Serve(ctx, mcuEnd) }()

	host := protocol.NewHostTransport(hostEnd)
	defer host.Close()

	// identify offset=0 count=16
	err := host.SendCommand(1, func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, 0)
		protocol.EncodeVLQUint(out, 16)
	})
	require.NoError(t, err)

	resp, err := host.ReceiveResponse(time.Second)
	require.NoError(t, err)
	payload := resp.Payload
	var id, offset uint32
	require.NoError(t, protocol.DecodeVLQUints(&payload, &id, &offset))
	chunk, err := protocol.DecodeVLQBytes(&payload)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), id)
	// zlib header, one final stored block, then the JSON itself
	require.Len(t, chunk, 16)
	assert.Equal(t, []byte{0x78, 0x01, 0x01}, chunk[:3])
	assert.Equal(t, `{"version`, string(chunk[7:]))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
