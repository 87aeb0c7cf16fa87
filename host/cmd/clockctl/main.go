// clockctl talks to the clock firmware over a serial port, a tcp://host:port
// device served by clocksim, or an in-process simulated MCU with -sim.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"isrclock/core"
	"isrclock/host/config"
	"isrclock/host/mcu"
	"isrclock/host/sim"
)

var (
	configPath = flag.String("config", "", "YAML clock profile")
	device     = flag.String("device", "", "Serial device path (overrides the profile)")
	baud       = flag.Int("baud", 0, "Baud rate (overrides the profile, ignored for USB CDC)")
	simulate   = flag.Bool("sim", false, "Use an in-process simulated MCU instead of a serial port")
	timeout    = flag.Duration("timeout", mcu.DefaultResponseTimeout, "How long to wait for each MCU response")
	verbose    = flag.Bool("verbose", false, "Enable debug logging")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *device != "" {
		cfg.Serial.Device = *device
	}
	if *baud > 0 {
		cfg.Serial.Baud = *baud
	}
	if *verbose {
		cfg.Logger.Level = "debug"
	}
	log := cfg.Logger.NewLogger(os.Stderr)
	for _, w := range config.Warnings(cfg) {
		log.Warn(w)
	}

	shell := &Shell{cfg: cfg, out: os.Stdout}

	// resolve works offline
	args := flag.Args()
	if len(args) > 0 && args[0] == "resolve" {
		if err := shell.Exec(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	conn, closeConn, err := connect(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer closeConn()
	shell.mcu = conn

	if len(args) > 0 {
		if err := shell.Exec(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			closeConn()
			os.Exit(1)
		}
		return
	}

	if err := shell.Interactive(os.Stdin); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		closeConn()
		os.Exit(1)
	}
}

// connect opens the MCU link and fetches its dictionary
func connect(cfg *config.Config, log *slog.Logger) (*mcu.MCU, func(), error) {
	conn := mcu.NewMCU(log)
	conn.SetResponseTimeout(*timeout)

	if addr, ok := strings.CutPrefix(cfg.Serial.Device, "tcp://"); ok && !*simulate {
		log.Info("connecting", "addr", addr)
		nc, err := net.Dial("tcp", addr)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect: %w", err)
		}
		conn.Attach(nc)
		if err := conn.RetrieveDictionary(); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("failed to retrieve dictionary: %w", err)
		}
		return conn, func() { conn.Close() }, nil
	}

	if !*simulate {
		log.Info("connecting", "device", cfg.Serial.Device, "baud", cfg.Serial.Baud)
		if err := conn.ConnectWithConfig(cfg.SerialPort()); err != nil {
			return nil, nil, fmt.Errorf("failed to connect: %w", err)
		}
		if err := conn.RetrieveDictionary(); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("failed to retrieve dictionary: %w", err)
		}
		return conn, func() { conn.Close() }, nil
	}

	gpio := sim.NewGPIO()
	fw := sim.NewFirmware(cfg.Core(), gpio, sim.NewTimer1(), log.With("side", "mcu"))
	hostEnd, mcuEnd := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := fw.Serve(ctx, mcuEnd); err != nil {
			log.Error("simulated MCU stopped", "err", err)
		}
	}()

	polled := make(chan struct{})
	go func() {
		defer close(polled)
		if err := pollLoop(ctx, fw, time.Millisecond); err != nil {
			log.Error("simulated MCU poll stopped", "err", err)
		}
	}()

	conn.Attach(hostEnd)
	closeAll := func() {
		conn.Close()
		cancel()
		<-done
		<-polled
		fw.Close()
	}
	if err := conn.RetrieveDictionary(); err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("failed to retrieve dictionary: %w", err)
	}
	log.Info("simulated MCU ready", "pin", cfg.Clock.Pin, "hz", cfg.Clock.Hz,
		"fcpu", core.TimerFreq)
	return conn, closeAll, nil
}

// poller is the part of sim.Firmware the poll loop drives
type poller interface {
	Poll() error
}

// pollLoop runs the simulated firmware main loop every interval until ctx
// ends or a poll fails to write its output
func pollLoop(ctx context.Context, fw poller, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := fw.Poll(); err != nil {
				return fmt.Errorf("poll: %w", err)
			}
		}
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: clockctl [flags] [command [args]]\n\n")
	fmt.Fprintf(os.Stderr, "Without a command clockctl starts an interactive shell.\n\n")
	printCommands(os.Stderr)
	fmt.Fprintf(os.Stderr, "\nFlags:\n")
	flag.PrintDefaults()
}
