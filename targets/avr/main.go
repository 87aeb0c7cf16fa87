//go:build atmega2560

// Clock firmware for an Arduino Mega: Timer1 toggles D4 and the D13 LED
// mirrors it. The host protocol runs on UART0.
package main

import (
	"machine"
	"time"

	"isrclock/core"
	"isrclock/protocol"
)

const (
	fcpu     = 16000000
	uartBaud = 250000
)

var clockConfig = core.ClockConfig{
	EnableInternal: true,
	FrequencyHz:    core.DefaultClockHz,
	Pin:            core.DefaultClockPin,
	MirrorToDebug:  true,
	DebugPin:       core.DefaultDebugPin,
}

var (
	inputBuffer  *protocol.StreamBuffer
	outputBuffer *protocol.ScratchOutput
	transport    *protocol.Transport
	boot         time.Time
)

func main() {
	uart := machine.Serial
	if err := uart.Configure(machine.UARTConfig{BaudRate: uartBaud}); err != nil {
		return
	}

	boot = time.Now()
	updateSystemTime()
	core.TimerInit()

	core.SetGPIODriver(NewAVRGPIODriver())
	core.SetCompareTimer(NewTimer1(fcpu))

	core.InitCoreCommands()
	core.InitClockGenerator(clockConfig)
	core.InitClockCommands()
	core.InitDFFSamplerCommands()
	core.RegisterConstant("MCU", "atmega2560")
	dict := core.GetGlobalDictionary()
	dict.SetBuildVersions("tinygo avr timer1")
	dict.BuildDictionary()

	inputBuffer = protocol.NewStreamBuffer(128)
	outputBuffer = protocol.NewScratchOutput()
	transport = protocol.NewTransport(outputBuffer, core.DispatchCommand)
	transport.SetResetCallback(func() {
		inputBuffer.Reset()
		outputBuffer.Reset()
		core.ResetFirmwareState()
	})
	transport.SetFlushCallback(flush)
	core.SetGlobalTransport(transport)

	// No watchdog reset: stop the clock and start over
	core.SetResetHandler(func() {
		core.MustClock().End()
		inputBuffer.Reset()
		outputBuffer.Reset()
		transport.Reset()
		core.ResetFirmwareState()
	})

	for {
		for uart.Buffered() > 0 && inputBuffer.Free() > 0 {
			b, err := uart.ReadByte()
			if err != nil {
				break
			}
			inputBuffer.Write([]byte{b})
		}

		updateSystemTime()
		if inputBuffer.Available() > 0 {
			transport.Receive(inputBuffer)
		}
		core.ProcessTimers()
		core.DFFSamplerTask()
		flush()
		core.CheckPendingReset()
	}
}

func flush() {
	if out := outputBuffer.Result(); len(out) > 0 {
		machine.Serial.Write(out)
		outputBuffer.Reset()
	}
}

// updateSystemTime maps the runtime clock onto core ticks
func updateSystemTime() {
	core.SetTime(uint64(time.Since(boot)) * (core.TimerFreq / 1000000) / 1000)
}
