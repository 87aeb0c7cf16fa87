// clocksim serves a simulated clock MCU on a TCP port. The clock runs on a
// wall-clock timer and a sampler clocks a small counter register from the
// clock pin, logging each edge. Connect with clockctl -device tcp://ADDR.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"isrclock/core"
	"isrclock/host/config"
	"isrclock/host/sim"
)

var (
	configPath = flag.String("config", "", "YAML clock profile")
	listenAddr = flag.String("listen", "127.0.0.1:7777", "TCP address to serve the MCU protocol on")
	sample     = flag.Duration("sample", time.Millisecond, "Clock pin sampling interval")
	autostart  = flag.Bool("autostart", false, "Start the clock at the profile frequency without a host")
	verbose    = flag.Bool("verbose", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *verbose {
		cfg.Logger.Level = "debug"
	}
	log := cfg.Logger.NewLogger(os.Stderr)
	for _, w := range config.Warnings(cfg) {
		log.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("clocksim failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	gpio := sim.NewGPIO()
	timer := sim.NewTimer1()
	fw := sim.NewFirmware(cfg.Core(), gpio, timer, log.With("side", "mcu"))
	defer fw.Close()

	gpio.Watch(func(c sim.PinChange) {
		log.Debug("pin", "pin", c.Pin, "level", c.Level)
	})

	if *autostart {
		status, err := fw.Clock.Begin(core.GPIOPin(cfg.Clock.Pin), cfg.Clock.Hz)
		if err != nil {
			return fmt.Errorf("autostart: %w", err)
		}
		log.Info("clock started", "pin", status.Pin, "hz", status.Hz,
			"divisor", status.Params.Divisor, "compare", status.Params.Compare, "exact", status.Exact)
	}

	ln, err := net.Listen("tcp", *listenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	log.Info("serving", "addr", ln.Addr().String())

	go sampleLoop(ctx, gpio, fw, *sample, log)
	go pollLoop(ctx, fw, *sample, log)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				log.Info("shutting down")
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		// The firmware core has one transport, so hosts are served one at a time.
		log.Info("host connected", "remote", conn.RemoteAddr().String())
		if err := fw.Serve(ctx, conn); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Warn("host session ended", "err", err)
		} else {
			log.Info("host disconnected")
		}
	}
}

// sampleLoop polls the active clock pin and clocks a counter register on
// each rising edge. A host reset clears the counter.
func sampleLoop(ctx context.Context, gpio *sim.GPIO, fw *sim.Firmware, every time.Duration, log *slog.Logger) {
	clock := fw.Clock
	counter := NewCounter(2)
	pin := clock.Pin()
	sampler := sim.NewSampler(gpio, pin, counter.Register())

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.Resets():
			counter = NewCounter(2)
			sampler = sim.NewSampler(gpio, pin, counter.Register())
			log.Info("counter cleared by reset")
			continue
		case <-ticker.C:
		}

		if p := clock.Pin(); p != pin {
			pin = p
			sampler = sim.NewSampler(gpio, pin, counter.Register())
		}
		counter.Prepare()
		if sampler.Step() {
			log.Debug("edge", "pin", pin, "count", counter.Value(), "edges", sampler.Edges())
		}
	}
}

// pollLoop runs the firmware main loop between host messages so software
// timers and latch sampler reports keep flowing
func pollLoop(ctx context.Context, fw *sim.Firmware, every time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := fw.Poll(); err != nil {
				log.Debug("poll write failed", "err", err)
			}
		}
	}
}
