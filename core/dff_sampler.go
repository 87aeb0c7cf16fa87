// Latch sampler: a software timer polls an input pin, clocks a D flip-flop
// on every rising edge and reports the flip-flop output from task context.
package core

import (
	"isrclock/protocol"
)

// Sampler states
const (
	SamplerStateIdle     = 0
	SamplerStateSampling = 1
	// SamplerStateReportPending: the timer has a dff_state report waiting
	// for DFFSamplerTask; sampling continues meanwhile.
	SamplerStateReportPending = 2
)

// DFFSampler watches one pin and clocks one flip-flop from it
type DFFSampler struct {
	OID   uint8
	Pin   GPIOPin
	State uint8

	Timer Timer

	SampleTicks uint32 // Ticks between pin samples
	ReportEdges uint32 // Rising edges between reports, 0 disables reports

	edge EdgeDetector
	D    uint8
	Q    uint8

	Edges       uint32 // Rising edges since the last query
	sinceReport uint32

	PendingQ     uint8
	PendingEdges uint32
}

// Configured samplers by OID
var dffSamplers = make(map[uint8]*DFFSampler)

// Wake flag for the sampler task
var dffSamplerWake bool

// InitDFFSamplerCommands registers the latch sampler commands
func InitDFFSamplerCommands() {
	RegisterCommand("config_dff_sampler", "oid=%c pin=%u", handleConfigDFFSampler)

	// sample_ticks == 0 stops sampling
	RegisterCommand("query_dff_sampler", "oid=%c clock=%u sample_ticks=%u report_edges=%u", handleQueryDFFSampler)

	RegisterCommand("set_dff_input", "oid=%c d=%c", handleSetDFFInput)

	RegisterResponse("dff_state", "oid=%c q=%c edges=%u")
}

// handleConfigDFFSampler creates a sampler on pin. The clock pin is read back
// as an output while this firmware generates it; any other pin, or the clock
// pin driven by an external source, becomes an input.
func handleConfigDFFSampler(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	pin, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	if old, ok := dffSamplers[uint8(oid)]; ok {
		stopDFFSampler(old)
	}

	gpio := MustGPIO()
	if !generatesClockOn(GPIOPin(pin)) {
		if err := gpio.ConfigureInput(GPIOPin(pin)); err != nil {
			return err
		}
	}

	dffSamplers[uint8(oid)] = &DFFSampler{
		OID:   uint8(oid),
		Pin:   GPIOPin(pin),
		State: SamplerStateIdle,
		edge:  EdgeDetector{prev: gpio.GetPin(GPIOPin(pin))},
	}
	return nil
}

// generatesClockOn reports whether the internal generator owns pin
func generatesClockOn(pin GPIOPin) bool {
	return clockGen != nil && clockGen.Config().EnableInternal && clockGen.Pin() == pin
}

// handleQueryDFFSampler starts or stops periodic sampling
func handleQueryDFFSampler(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	clock, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	sampleTicks, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	reportEdges, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	s, exists := dffSamplers[uint8(oid)]
	if !exists {
		// Invalid OID - sampler not configured
		return nil
	}

	stopDFFSampler(s)
	if sampleTicks == 0 {
		return nil
	}

	state := disableInterrupts()
	s.SampleTicks = sampleTicks
	s.ReportEdges = reportEdges
	s.Edges = 0
	s.sinceReport = 0
	s.edge.prev = MustGPIO().GetPin(s.Pin)
	s.State = SamplerStateSampling
	s.Timer.WakeTime = ExtendClock(clock)
	s.Timer.Handler = dffSamplerTimerHandler
	insertTimer(&s.Timer)
	restoreInterrupts(state)
	return nil
}

// handleSetDFFInput sets the D input latched on the next rising edge
func handleSetDFFInput(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	d, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	s, exists := dffSamplers[uint8(oid)]
	if !exists {
		return nil
	}
	state := disableInterrupts()
	s.D = uint8(d & 1)
	restoreInterrupts(state)
	return nil
}

// dffSamplerTimerHandler samples the pin once. Runs with interrupts disabled.
func dffSamplerTimerHandler(t *Timer) uint8 {
	var s *DFFSampler
	for _, sPtr := range dffSamplers {
		if sPtr != nil && &sPtr.Timer == t {
			s = sPtr
			break
		}
	}
	if s == nil || s.State == SamplerStateIdle {
		return SF_DONE
	}

	rising := s.edge.Sample(gpioDriver.GetPin(s.Pin))
	s.Q = DFFUpdate(s.Q, s.D, rising)
	if rising {
		s.Edges++
		s.sinceReport++
		if s.ReportEdges != 0 && s.sinceReport >= s.ReportEdges {
			s.sinceReport = 0
			s.PendingQ = s.Q
			s.PendingEdges = s.Edges
			s.State = SamplerStateReportPending
			dffSamplerWake = true
		}
	}

	t.WakeTime += uint64(s.SampleTicks)
	return SF_RESCHEDULE
}

// DFFSamplerTask sends pending dff_state reports. Call it from the main loop.
func DFFSamplerTask() {
	state := disableInterrupts()
	if !dffSamplerWake {
		restoreInterrupts(state)
		return
	}
	dffSamplerWake = false
	restoreInterrupts(state)

	for oid, s := range dffSamplers {
		if s == nil {
			continue
		}

		state = disableInterrupts()
		if s.State != SamplerStateReportPending {
			restoreInterrupts(state)
			continue
		}
		q := s.PendingQ
		edges := s.PendingEdges
		s.State = SamplerStateSampling
		restoreInterrupts(state)

		SendResponse("dff_state", func(output protocol.OutputBuffer) {
			protocol.EncodeVLQUint(output, uint32(oid))
			protocol.EncodeVLQUint(output, uint32(q))
			protocol.EncodeVLQUint(output, edges)
		})
	}
}

// ExtendClock widens a 32-bit wire clock to the 64-bit system time nearest
// to now. 0 means now.
func ExtendClock(clock uint32) uint64 {
	now := GetTime()
	if clock == 0 {
		return now
	}
	t := now&^0xFFFFFFFF | uint64(clock)
	switch {
	case t+(1<<31) < now:
		t += 1 << 32
	case t > now+(1<<31) && t >= 1<<32:
		t -= 1 << 32
	}
	return t
}

// LookupDFFSampler returns a configured sampler
func LookupDFFSampler(oid uint8) (*DFFSampler, bool) {
	s, ok := dffSamplers[oid]
	return s, ok
}

// stopDFFSampler cancels a sampler's timer and drops any pending report
func stopDFFSampler(s *DFFSampler) {
	state := disableInterrupts()
	removeTimer(&s.Timer)
	s.State = SamplerStateIdle
	restoreInterrupts(state)
}

// ShutdownAllDFFSamplers stops sampling on every configured pin
func ShutdownAllDFFSamplers() {
	for _, s := range dffSamplers {
		if s != nil {
			stopDFFSampler(s)
		}
	}
}

// ResetDFFSamplers stops and forgets every sampler
func ResetDFFSamplers() {
	ShutdownAllDFFSamplers()
	dffSamplers = make(map[uint8]*DFFSampler)
}
