//go:build rp2040

package main

import (
	"machine"
	"time"

	"isrclock/core"
	"isrclock/protocol"
)

// Board clock settings: the clock drives GPIO4 and the on-board LED
// (GPIO25) mirrors it.
var clockConfig = core.ClockConfig{
	EnableInternal: true,
	FrequencyHz:    core.DefaultClockHz,
	Pin:            core.DefaultClockPin,
	MirrorToDebug:  true,
	DebugPin:       25,
}

// link is the USB CDC side of the wire protocol
type link struct {
	in        *protocol.StreamBuffer
	out       *protocol.ScratchOutput
	transport *protocol.Transport

	// Set by the writer after repeated failures, cleared by the reader on
	// the first byte after the host comes back
	down          bool
	writeFailures uint32
}

var usbLink link

func main() {
	// Disable a watchdog left running by a previous reset
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		return
	}

	InitUSB()
	UpdateSystemTime()
	core.TimerInit()

	if err := setupClock(); err != nil {
		return
	}
	usbLink.open()
	core.SetResetHandler(watchdogReset)

	go usbLink.readLoop()
	for {
		usbLink.poll()
		time.Sleep(10 * time.Microsecond)
	}
}

// setupClock installs the HAL drivers, registers every command and builds
// the dictionary
func setupClock() error {
	core.SetGPIODriver(NewRPGPIODriver())
	timer, err := NewPIOCompareTimer()
	if err != nil {
		return err
	}
	core.SetCompareTimer(timer)

	core.InitCoreCommands()
	core.InitClockGenerator(clockConfig)
	core.InitClockCommands()
	core.InitDFFSamplerCommands()
	core.RegisterConstant("MCU", "rp2040")
	registerRP2040Pins()

	dict := core.GetGlobalDictionary()
	dict.SetBuildVersions("tinygo rp2040 pio-timer")
	dict.BuildDictionary()
	return nil
}

// watchdogReset idles the clock output and lets the watchdog reboot the chip
func watchdogReset() {
	core.MustClock().End()
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 1}); err != nil {
		return
	}
	if err := machine.Watchdog.Start(); err != nil {
		return
	}
	for {
		time.Sleep(time.Millisecond)
	}
}

func (l *link) open() {
	l.in = protocol.NewStreamBuffer(256)
	l.out = protocol.NewScratchOutput()
	l.transport = protocol.NewTransport(l.out, core.DispatchCommand)
	l.transport.SetResetCallback(l.clear)
	// ACKs go out before the response they precede
	l.transport.SetFlushCallback(l.flush)
	core.SetGlobalTransport(l.transport)
}

// clear drops buffered traffic and firmware state after a host reset
func (l *link) clear() {
	l.in.Reset()
	l.out.Reset()
	core.ResetFirmwareState()
}

// poll is one pass of the foreground loop. A panic in a command handler
// drops the buffered traffic instead of killing the loop.
func (l *link) poll() {
	defer func() {
		if r := recover(); r != nil {
			l.in.Reset()
			l.out.Reset()
		}
	}()

	UpdateSystemTime()
	if l.in.Available() > 0 {
		l.transport.Receive(l.in)
	}
	l.flush()

	// After the ACK has gone out
	core.CheckPendingReset()

	core.ProcessTimers()
	core.DFFSamplerTask()
}

// readLoop copies USB bytes into the input buffer
func (l *link) readLoop() {
	defer func() {
		if r := recover(); r != nil {
			time.Sleep(100 * time.Millisecond)
			go l.readLoop()
		}
	}()

	for {
		if USBAvailable() == 0 {
			time.Sleep(100 * time.Microsecond)
			continue
		}
		data, err := USBRead()
		if err != nil {
			time.Sleep(time.Millisecond)
			continue
		}

		// Reconnected: start from a clean state
		if l.down {
			l.down = false
			l.writeFailures = 0
			l.transport.Reset()
			l.clear()
		}

		if l.in.Write([]byte{data}) == 0 {
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// flush writes pending output, marking the link down after repeated
// failures
func (l *link) flush() {
	result := l.out.Result()
	for written := 0; written < len(result); {
		n, err := USBWriteBytes(result[written:])
		if err != nil || n == 0 {
			l.writeFailures++
			if l.writeFailures > 10 {
				l.down = true
				l.writeFailures = 0
				l.out.Reset()
				l.in.Reset()
			}
			return
		}
		written += n
	}
	l.writeFailures = 0
	l.out.Reset()
}

// registerRP2040Pins publishes gpio0-gpio29 as the pin enumeration
func registerRP2040Pins() {
	pinNames := make([]string, rpNumGPIO)
	for i := range pinNames {
		pinNames[i] = "gpio" + itoa(i)
	}
	core.RegisterEnumeration("pin", pinNames)
}

// itoa converts a non-negative int without strconv
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	return string(buf[pos:])
}
