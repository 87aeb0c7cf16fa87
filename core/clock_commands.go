package core

import (
	"isrclock/protocol"
)

// InitClockCommands registers the clock generator and latch commands and
// publishes the generator's parameters as dictionary constants.
// InitClockGenerator must have been called first.
func InitClockCommands() {
	// Start (or restart) the clock
	RegisterCommand("clock_begin", "pin=%u hz=%u", handleClockBegin)

	// Stop the clock, output held low
	RegisterCommand("clock_end", "", handleClockEnd)

	// Report the generator state
	RegisterCommand("clock_query", "", handleClockQuery)

	// Evaluate one D flip-flop update
	RegisterCommand("dff_update", "q=%c d=%c rising=%c", handleDFFUpdate)

	RegisterResponse("clock_state",
		"active=%c pin=%u hz=%u level=%c divisor=%hu compare=%u exact=%c toggles=%u")
	RegisterResponse("dff_result", "q=%c")

	c := MustClock()
	cfg := c.Config()
	RegisterConstant("CLOCK_FREQ", c.timer.BaseFrequency())
	RegisterConstant("TIMER_MAX_COMPARE", c.timer.MaxCompare())
	RegisterConstant("CLOCK_DEFAULT_HZ", cfg.FrequencyHz)
	RegisterConstant("CLOCK_DEFAULT_PIN", uint32(cfg.Pin))
	RegisterConstant("CLOCK_INTERNAL", cfg.EnableInternal)
	RegisterConstant("CLOCK_MIRROR", cfg.MirrorToDebug)
	RegisterEnumeration("prescaler", PrescalerNames(c.timer.Prescalers()))
}

// PrescalerNames lists "div<N>" indexed by select bits. Unused select values
// are left empty.
func PrescalerNames(table PrescaleTable) []string {
	var maxSel uint8
	for _, p := range table {
		if p.Select > maxSel {
			maxSel = p.Select
		}
	}
	names := make([]string, int(maxSel)+1)
	for _, p := range table {
		names[p.Select] = "div" + utoa(p.Divisor)
	}
	return names
}

// handleClockBegin starts the clock
// Format: clock_begin pin=%u hz=%u
func handleClockBegin(data *[]byte) error {
	pin, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	hz, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	status, err := MustClock().Begin(GPIOPin(pin), hz)
	if err != nil {
		DebugPrintln("[CLOCK] begin failed: " + err.Error())
		return err
	}
	sendClockState(status)
	return nil
}

// handleClockEnd stops the clock
// Format: clock_end
func handleClockEnd(data *[]byte) error {
	c := MustClock()
	c.End()
	sendClockState(c.Status())
	return nil
}

// handleClockQuery reports the current state
// Format: clock_query
func handleClockQuery(data *[]byte) error {
	sendClockState(MustClock().Status())
	return nil
}

// handleDFFUpdate evaluates the latch
// Format: dff_update q=%c d=%c rising=%c
func handleDFFUpdate(data *[]byte) error {
	q, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	d, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	rising, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	next := DFFUpdate(uint8(q), uint8(d), rising != 0)
	SendResponse("dff_result", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(next))
	})
	return nil
}

func sendClockState(s ClockStatus) {
	SendResponse("clock_state", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, boolToU32(s.Active))
		protocol.EncodeVLQUint(output, uint32(s.Pin))
		protocol.EncodeVLQUint(output, s.Hz)
		protocol.EncodeVLQUint(output, uint32(s.Level))
		protocol.EncodeVLQUint(output, s.Params.Divisor)
		protocol.EncodeVLQUint(output, s.Params.Compare)
		protocol.EncodeVLQUint(output, boolToU32(s.Exact))
		protocol.EncodeVLQUint(output, s.Toggles)
	})
}
