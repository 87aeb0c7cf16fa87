// Package config loads the host tools' clock profile
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"isrclock/core"
	"isrclock/host/serial"
)

// Config is the clock profile shared by clockctl and clocksim
type Config struct {
	Serial SerialConfig `yaml:"serial"`
	Clock  ClockConfig  `yaml:"clock"`
	Logger LoggerConfig `yaml:"logger"`
}

// SerialConfig selects the MCU link
type SerialConfig struct {
	Device      string        `yaml:"device"`
	Baud        int           `yaml:"baud"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// ClockConfig mirrors the firmware's clock options
type ClockConfig struct {
	Pin      uint32 `yaml:"pin"`
	Hz       uint32 `yaml:"hz"`
	Internal bool   `yaml:"internal"`
	Mirror   bool   `yaml:"mirror"`
	DebugPin uint32 `yaml:"debug_pin"`
}

// LoggerConfig controls slog output
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Suggested range for a clock a person can watch on an LED
const (
	MinVisibleHz = 1
	MaxVisibleHz = 10
)

// Defaults returns the profile used when no file exists
func Defaults() *Config {
	port := serial.DefaultConfig("/dev/ttyACM0")
	return &Config{
		Serial: SerialConfig{
			Device:      port.Device,
			Baud:        port.Baud,
			ReadTimeout: port.ReadTimeout,
		},
		Clock: ClockConfig{
			Pin:      core.DefaultClockPin,
			Hz:       core.DefaultClockHz,
			Internal: true,
			Mirror:   false,
			DebugPin: core.DefaultDebugPin,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML profile over the defaults and applies environment
// overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := ApplyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps ISRCLOCK_* variables onto cfg
func ApplyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("ISRCLOCK_DEVICE"); v != "" {
		cfg.Serial.Device = v
	}
	if v := os.Getenv("ISRCLOCK_LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("ISRCLOCK_HZ"); v != "" {
		hz, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("ISRCLOCK_HZ: %w", err)
		}
		cfg.Clock.Hz = uint32(hz)
	}
	return nil
}

// ValidationError collects every problem found in a profile
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// Add records one problem
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate returns a *ValidationError when the profile cannot be used
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	if cfg.Serial.Baud <= 0 {
		ve.Add("serial.baud must be > 0")
	}
	if cfg.Serial.ReadTimeout < 0 {
		ve.Add("serial.read_timeout must not be negative")
	}
	if cfg.Clock.Mirror && cfg.Clock.DebugPin == cfg.Clock.Pin {
		ve.Add("clock.debug_pin must differ from clock.pin when mirroring")
	}
	switch strings.ToLower(cfg.Logger.Level) {
	case "debug", "info", "warn", "error":
	default:
		ve.Add("logger.level %q is not one of debug, info, warn, error", cfg.Logger.Level)
	}
	switch cfg.Logger.Format {
	case "text", "json":
	default:
		ve.Add("logger.format %q is not text or json", cfg.Logger.Format)
	}
	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

// Warnings lists settings that are valid but probably unintended
func Warnings(cfg *Config) []string {
	var w []string
	if cfg.Clock.Hz < MinVisibleHz || cfg.Clock.Hz > MaxVisibleHz {
		w = append(w, fmt.Sprintf("clock.hz %d is outside %d..%d Hz and will not be visible on an LED",
			cfg.Clock.Hz, MinVisibleHz, MaxVisibleHz))
	}
	if !cfg.Clock.Internal {
		w = append(w, "clock.internal is off: begin and end are ignored, drive the clock pin externally")
	}
	return w
}

// Core returns the firmware clock configuration for this profile
func (c *Config) Core() core.ClockConfig {
	return core.ClockConfig{
		EnableInternal: c.Clock.Internal,
		FrequencyHz:    c.Clock.Hz,
		Pin:            core.GPIOPin(c.Clock.Pin),
		MirrorToDebug:  c.Clock.Mirror,
		DebugPin:       core.GPIOPin(c.Clock.DebugPin),
	}
}

// SerialPort returns the serial settings for this profile
func (c *Config) SerialPort() *serial.Config {
	return &serial.Config{
		Device:      c.Serial.Device,
		Baud:        c.Serial.Baud,
		ReadTimeout: c.Serial.ReadTimeout,
	}
}
