package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// TraceEvent captures one sequencer or controller event for post-mortem analysis
type TraceEvent struct {
	EventType uint8  // Event type code
	Phase     uint8  // Phase counter after the event
	Clock     uint32 // System clock at event
	Value1    uint32 // Context-dependent value
	Value2    uint32 // Context-dependent value
}

// Event type codes
const (
	EvtPhaseAdvance  = 1 // interrupt advanced the phase (v1=laser line)
	EvtFrameBoundary = 2 // phase counter wrapped (v1=zCount)
	EvtStageMove     = 3 // stage pulse issued (v1=zCount)
	EvtZStackDone    = 4 // Z-stack finished
	EvtTimedDone     = 5 // timed capture finished
	EvtTimedTick     = 6 // timed budget decremented (v1=remaining)
	EvtStart         = 7 // acquisition armed (v1=phaseMax, v2=run mode)
	EvtStop          = 8 // acquisition stopped
	EvtTimerWrite    = 9 // timer period written (v1=timer, v2=ticks)
)

const (
	TraceRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {} // No-op by default

	// debugEnabled controls whether debug output is active
	debugEnabled bool = false

	// Trace ring buffer (non-blocking, written from interrupt context)
	traceRing     [TraceRingSize]TraceEvent
	traceRingHead uint8
	traceEnabled  bool = true
)

// SetDebugWriter sets the platform-specific debug output function
// This allows platforms to redirect debug output to UART, USB, etc.
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// SetTraceEnabled turns event capture on or off
func SetTraceEnabled(enabled bool) {
	traceEnabled = enabled
}

// DebugPrintln writes a debug message using the platform-specific writer
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// RecordTrace captures an event in the ring buffer.
// Safe to call from the trigger interrupt: no allocation, no blocking.
func RecordTrace(eventType, phase uint8, value1, value2 uint32) {
	if !traceEnabled {
		return
	}
	idx := traceRingHead
	traceRing[idx] = TraceEvent{
		EventType: eventType,
		Phase:     phase,
		Clock:     GetTime(),
		Value1:    value1,
		Value2:    value2,
	}
	traceRingHead = (idx + 1) % TraceRingSize
}

// TraceEvents returns the captured events oldest first
func TraceEvents() []TraceEvent {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	events := make([]TraceEvent, 0, TraceRingSize)
	start := traceRingHead
	for i := uint8(0); i < TraceRingSize; i++ {
		evt := traceRing[(start+i)%TraceRingSize]
		if evt.EventType == 0 {
			continue // Empty slot
		}
		events = append(events, evt)
	}
	return events
}

func traceName(eventType uint8) string {
	switch eventType {
	case EvtPhaseAdvance:
		return "PHASE"
	case EvtFrameBoundary:
		return "FRAME"
	case EvtStageMove:
		return "STAGE"
	case EvtZStackDone:
		return "Z_DONE"
	case EvtTimedDone:
		return "TIMED_DONE"
	case EvtTimedTick:
		return "TIMED"
	case EvtStart:
		return "START"
	case EvtStop:
		return "STOP"
	case EvtTimerWrite:
		return "TIMER"
	}
	return "UNKNOWN"
}

// DumpTraceRing outputs the trace ring through the debug writer
// Call with the trigger stopped or from a low priority context
func DumpTraceRing() {
	if debugPrintln == nil {
		return
	}

	debugPrintln("[TRACE] === Trace Ring Dump ===")
	for _, evt := range TraceEvents() {
		debugPrintln("[TRACE] " + traceName(evt.EventType) +
			" phase=" + itoa(int(evt.Phase)) +
			" clock=" + utoa(evt.Clock) +
			" v1=" + utoa(evt.Value1) +
			" v2=" + utoa(evt.Value2))
	}
	debugPrintln("[TRACE] === End Dump ===")
}

// ClearTraceRing clears the trace buffer
func ClearTraceRing() {
	for i := range traceRing {
		traceRing[i] = TraceEvent{}
	}
	traceRingHead = 0
}
