package mcu

import (
	"fmt"

	"isrclock/core"
	"isrclock/protocol"
)

// ClockState is a decoded clock_state response
type ClockState struct {
	Active  bool
	Pin     uint32
	Hz      uint32
	Level   core.Level
	Divisor uint32
	Compare uint32
	Exact   bool
	Toggles uint32
}

// Params returns the timer programming reported by the MCU
func (s ClockState) Params() core.TimerParams {
	return core.TimerParams{Divisor: s.Divisor, Compare: s.Compare}
}

func decodeClockState(payload []byte) (ClockState, error) {
	var active, pin, hz, level, divisor, compare, exact, toggles uint32
	err := protocol.DecodeVLQUints(&payload, &active, &pin, &hz, &level, &divisor, &compare, &exact, &toggles)
	if err != nil {
		return ClockState{}, fmt.Errorf("failed to decode clock_state: %w", err)
	}
	return ClockState{
		Active:  active != 0,
		Pin:     pin,
		Hz:      hz,
		Level:   core.Level(level & 1),
		Divisor: divisor,
		Compare: compare,
		Exact:   exact != 0,
		Toggles: toggles,
	}, nil
}

func (m *MCU) clockCommand(name string, args func(output protocol.OutputBuffer)) (ClockState, error) {
	payload, err := m.Query(name, "clock_state", args)
	if err != nil {
		return ClockState{}, err
	}
	return decodeClockState(payload)
}

// ClockBegin starts the clock on pin at hz (0 selects the firmware default)
func (m *MCU) ClockBegin(pin, hz uint32) (ClockState, error) {
	return m.clockCommand("clock_begin", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, pin)
		protocol.EncodeVLQUint(output, hz)
	})
}

// ClockEnd stops the clock
func (m *MCU) ClockEnd() (ClockState, error) {
	return m.clockCommand("clock_end", nil)
}

// ClockQuery reads the clock state
func (m *MCU) ClockQuery() (ClockState, error) {
	return m.clockCommand("clock_query", nil)
}

// DFFUpdate evaluates the firmware's D flip-flop
func (m *MCU) DFFUpdate(q, d uint8, rising bool) (uint8, error) {
	payload, err := m.Query("dff_update", "dff_result", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(q))
		protocol.EncodeVLQUint(output, uint32(d))
		var r uint32
		if rising {
			r = 1
		}
		protocol.EncodeVLQUint(output, r)
	})
	if err != nil {
		return 0, err
	}
	next, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return 0, fmt.Errorf("failed to decode dff_result: %w", err)
	}
	return uint8(next), nil
}

// Uptime returns the MCU's 64-bit tick counter since boot
func (m *MCU) Uptime() (uint64, error) {
	payload, err := m.Query("get_uptime", "uptime", nil)
	if err != nil {
		return 0, err
	}
	var high, low uint32
	if err := protocol.DecodeVLQUints(&payload, &high, &low); err != nil {
		return 0, fmt.Errorf("failed to decode uptime: %w", err)
	}
	return uint64(high)<<32 | uint64(low), nil
}

// ConfigState is a decoded config response
type ConfigState struct {
	IsConfig   bool
	CRC        uint32
	IsShutdown bool
}

// GetConfig reads the MCU configuration state
func (m *MCU) GetConfig() (ConfigState, error) {
	payload, err := m.Query("get_config", "config", nil)
	if err != nil {
		return ConfigState{}, err
	}
	var isConfig, crc, shutdown uint32
	if err := protocol.DecodeVLQUints(&payload, &isConfig, &crc, &shutdown); err != nil {
		return ConfigState{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return ConfigState{IsConfig: isConfig != 0, CRC: crc, IsShutdown: shutdown != 0}, nil
}

// ClockFrequency returns the MCU's compare timer base clock
func (m *MCU) ClockFrequency() (uint32, error) {
	if m.dictionary == nil {
		return 0, ErrNoDictionary
	}
	return m.dictionary.ConstantUint("CLOCK_FREQ")
}
