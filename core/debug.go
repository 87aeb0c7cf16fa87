package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// ClockEvent captures a clock lifecycle event for post-mortem analysis
type ClockEvent struct {
	EventType uint8  // Event type code
	Pin       uint8  // Output pin at the time of the event
	Clock     uint64 // System clock at event
	Value1    uint32 // Context-dependent value
	Value2    uint32 // Context-dependent value
}

// Event type codes
const (
	EvtClockBegin = 1 // Begin: Value1=hz, Value2=compare
	EvtClockEnd   = 2 // End: Value1=toggles since Begin
	EvtClockClamp = 3 // Frequency not representable: Value1=hz, Value2=divisor
	EvtClockInert = 4 // Begin/End ignored, internal generation disabled
)

const (
	ClockRingSize = 16 // Keep last 16 events for post-mortem
)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {} // No-op by default

	// debugEnabled controls whether debug output is active
	debugEnabled bool = false

	clockRing     [ClockRingSize]ClockEvent
	clockRingHead uint8
)

// SetDebugWriter sets the platform-specific debug output function
// This allows platforms to redirect debug output to UART, USB, slog, etc.
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// DebugPrintln writes a debug message using the platform-specific writer.
// Never call it from the compare handler.
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// RecordClockEvent captures a clock event in the ring buffer.
// Foreground only: the compare handler does not record events.
func RecordClockEvent(eventType uint8, pin GPIOPin, value1, value2 uint32) {
	idx := clockRingHead
	clockRing[idx] = ClockEvent{
		EventType: eventType,
		Pin:       uint8(pin),
		Clock:     GetTime(),
		Value1:    value1,
		Value2:    value2,
	}
	clockRingHead = (idx + 1) % ClockRingSize
}

// ClockEvents returns the recorded events, oldest first
func ClockEvents() []ClockEvent {
	events := make([]ClockEvent, 0, ClockRingSize)
	start := clockRingHead
	for i := uint8(0); i < ClockRingSize; i++ {
		evt := clockRing[(start+i)%ClockRingSize]
		if evt.EventType == 0 {
			continue // Empty slot
		}
		events = append(events, evt)
	}
	return events
}

// DumpClockEvents writes the event ring through the debug writer
func DumpClockEvents() {
	if debugPrintln == nil {
		return
	}

	debugPrintln("[CLOCK] === Event Ring Dump ===")
	for _, evt := range ClockEvents() {
		var name string
		switch evt.EventType {
		case EvtClockBegin:
			name = "BEGIN"
		case EvtClockEnd:
			name = "END"
		case EvtClockClamp:
			name = "CLAMP"
		case EvtClockInert:
			name = "INERT"
		default:
			name = "UNKNOWN"
		}

		debugPrintln("[CLOCK] " + name +
			" pin=" + itoa(int(evt.Pin)) +
			" t=" + utoa64(TimerToUS(evt.Clock)) + "us" +
			" v1=" + utoa(evt.Value1) +
			" v2=" + utoa(evt.Value2))
	}
	debugPrintln("[CLOCK] === End Dump ===")
}

// ClearClockEvents clears the event ring
func ClearClockEvents() {
	for i := range clockRing {
		clockRing[i] = ClockEvent{}
	}
	clockRingHead = 0
}
