// Package sim runs the clock firmware core on the host: a wall-clock
// compare timer, an in-memory GPIO bank and the MCU end of the wire
// protocol over any byte stream.
package sim

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"isrclock/core"
	"isrclock/protocol"
)

// Firmware is the simulated MCU. The firmware core keeps its registry,
// transport and generator in package globals, so only one Firmware may
// serve at a time in a process.
type Firmware struct {
	GPIO  core.GPIODriver
	Timer core.CompareTimer
	Clock *core.ClockGenerator

	log   *slog.Logger
	boot  time.Time
	reset chan struct{}

	// mu serializes the read loop and Poll on the transport output
	mu     sync.Mutex
	conn   io.Writer
	output *protocol.ScratchOutput
}

// NewFirmware registers the drivers, commands and dictionary the way a
// target main does
func NewFirmware(cfg core.ClockConfig, gpio core.GPIODriver, timer core.CompareTimer, logger *slog.Logger) *Firmware {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Firmware{
		GPIO:  gpio,
		Timer: timer,
		log:   logger,
		boot:  time.Now(),
		reset: make(chan struct{}, 1),
	}

	core.SetDebugWriter(func(msg string) { logger.Debug(msg, "src", "firmware") })
	core.SetDebugEnabled(logger.Enabled(context.Background(), slog.LevelDebug))

	core.SetGPIODriver(gpio)
	core.SetCompareTimer(timer)
	core.SetTime(0)
	core.TimerInit()

	core.InitCoreCommands()
	f.Clock = core.InitClockGenerator(cfg)
	core.InitClockCommands()
	core.InitDFFSamplerCommands()
	core.ResetFirmwareState()

	core.RegisterConstant("MCU", "host-sim")
	core.SetResetHandler(f.handleReset)
	dict := core.GetGlobalDictionary()
	dict.SetBuildVersions("go " + runtime.Version() + " host-sim")
	dict.BuildDictionary()
	return f
}

// Serve runs the MCU side of the protocol on conn until ctx is cancelled
// or conn fails. conn is closed on return.
func (f *Firmware) Serve(ctx context.Context, conn io.ReadWriteCloser) error {
	output := protocol.NewScratchOutput()
	transport := protocol.NewTransport(output, func(cmdID uint16, data *[]byte) error {
		return core.DispatchCommand(cmdID, data)
	})
	transport.SetResetCallback(core.ResetFirmwareState)

	f.mu.Lock()
	f.conn = conn
	f.output = output
	core.SetGlobalTransport(transport)
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.conn = nil
		f.output = nil
		core.SetGlobalTransport(nil)
		f.mu.Unlock()
	}()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	input := protocol.NewStreamBuffer(256)
	buf := make([]byte, 64)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			f.mu.Lock()
			input.Write(buf[:n])
			transport.Receive(input)
			werr := f.pollLocked()
			f.mu.Unlock()
			if werr != nil {
				return f.exitErr(ctx, werr)
			}
			core.CheckPendingReset()
		}
		if err != nil {
			return f.exitErr(ctx, err)
		}
	}
}

// Poll runs one main-loop pass without input: due software timers, the
// latch sampler task and any resulting output. clocksim calls it
// periodically; Serve runs it after every read.
func (f *Firmware) Poll() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pollLocked()
}

func (f *Firmware) pollLocked() error {
	f.syncTime()
	core.ProcessTimers()
	core.DFFSamplerTask()

	if f.output == nil || f.output.CurPosition() == 0 {
		return nil
	}
	_, err := f.conn.Write(f.output.Result())
	f.output.Reset()
	return err
}

func (f *Firmware) exitErr(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
		return nil
	}
	return err
}

// syncTime maps wall-clock time since boot onto the firmware tick counter
func (f *Firmware) syncTime() {
	elapsed := uint64(time.Since(f.boot))
	core.SetTime(elapsed * core.TimerFreq / uint64(time.Second))
}

// handleReset stands in for a watchdog reset: outputs go idle and the
// firmware state is cleared
func (f *Firmware) handleReset() {
	f.log.Info("reset requested")
	f.Clock.End()
	core.ResetFirmwareState()
	select {
	case f.reset <- struct{}{}:
	default:
	}
}

// Resets delivers one value per reset command
func (f *Firmware) Resets() <-chan struct{} {
	return f.reset
}

// Close stops the clock
func (f *Firmware) Close() {
	f.Clock.End()
}
