package core

import "sync/atomic"

// Step is the transition the sequencer took on one interrupt
type Step uint8

const (
	StepIdle Step = iota
	StepPhaseAdvance
	StepFrameBoundary
	StepZStepping
	StepStopped
)

func (s Step) String() string {
	switch s {
	case StepIdle:
		return "Idle"
	case StepPhaseAdvance:
		return "PhaseAdvance"
	case StepFrameBoundary:
		return "FrameBoundary"
	case StepZStepping:
		return "ZStepping"
	case StepStopped:
		return "Stopped"
	}
	return "unknown"
}

// CompletionFlags is the bitset raised by the sequencer when an
// acquisition finishes on its own
type CompletionFlags uint32

const (
	TimedFinished  CompletionFlags = 0x01
	ZStackFinished CompletionFlags = 0x02
)

// SequencerParams is the configuration the interrupt handler reads. It is
// replaced as a whole inside a critical section.
type SequencerParams struct {
	PhaseMax      uint8
	RunMode       RunMode
	Alternating   bool
	ZSteps        uint16
	FrameTicks    uint32
	ExposureTicks uint32
}

// SequencerState is a snapshot of the interrupt-owned counters
type SequencerState struct {
	Phase               uint8
	ZCount              uint16
	TimedTicksRemaining uint32
	Running             bool
	Completion          CompletionFlags
}

// Sequencer is the trigger state machine run from the timer-expiry
// interrupt. While the trigger source is enabled the handler owns phase,
// zCount and timedRemaining; the main loop only touches them through Reset
// with the source disabled.
type Sequencer struct {
	lines  *Lines
	timers TimerDriver
	source TriggerSource

	params SequencerParams

	phase          uint8
	zCount         uint16
	timedRemaining uint32
	completion     uint32 // CompletionFlags, atomic
}

// NewSequencer creates an idle sequencer
func NewSequencer(lines *Lines, timers TimerDriver, source TriggerSource) *Sequencer {
	return &Sequencer{
		lines:  lines,
		timers: timers,
		source: source,
		params: SequencerParams{PhaseMax: ThreeBeamPhases},
	}
}

// SetParams replaces the handler configuration atomically with respect to
// the interrupt.
func (s *Sequencer) SetParams(p SequencerParams) {
	state := disableInterrupts()
	s.params = p
	restoreInterrupts(state)
}

// Params returns the current handler configuration
func (s *Sequencer) Params() SequencerParams {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	return s.params
}

// Reset zeroes the counters for a new acquisition. The trigger source must
// be disabled; Reset is a no-op otherwise.
func (s *Sequencer) Reset(timedTicks uint32) bool {
	if s.source.Enabled() {
		return false
	}
	state := disableInterrupts()
	s.phase = 0
	s.zCount = 0
	s.timedRemaining = timedTicks
	restoreInterrupts(state)
	return true
}

// Tick is the timer-expiry interrupt handler. It must stay bounded and
// allocation free.
func (s *Sequencer) Tick() Step {
	if !s.source.Enabled() {
		return StepIdle
	}
	p := &s.params

	if s.phase < p.PhaseMax {
		if p.Alternating {
			// A full blue/green pair counts as one phase
			wasGreen := s.lines.Get(LineLaserSelect)
			s.lines.Set(LineLaserSelect, !wasGreen)
			if !wasGreen {
				s.phase++
			}
		} else {
			s.phase++
		}
		_ = s.timers.WritePeriod(TimerExposure, p.ExposureTicks)
		s.lines.Pulse(LineCounterReset)
		RecordTrace(EvtPhaseAdvance, s.phase, boolToU32(s.lines.Get(LineLaserSelect)), 0)

		if p.RunMode == Timed {
			if s.timedRemaining > p.FrameTicks {
				s.timedRemaining -= p.FrameTicks
				RecordTrace(EvtTimedTick, s.phase, s.timedRemaining, 0)
			} else {
				s.timedRemaining = 0
				s.source.Disable()
				s.raise(TimedFinished)
				RecordTrace(EvtTimedDone, s.phase, 0, 0)
				return StepStopped
			}
		}
		return StepPhaseAdvance
	}

	s.phase = 0
	RecordTrace(EvtFrameBoundary, 0, uint32(s.zCount), 0)

	if p.RunMode == ZStack {
		if s.zCount < p.ZSteps {
			s.lines.Pulse(LineStageMove)
			s.zCount++
			RecordTrace(EvtStageMove, 0, uint32(s.zCount), 0)
			return StepZStepping
		}
		s.source.Disable()
		s.zCount = 0
		s.raise(ZStackFinished)
		RecordTrace(EvtZStackDone, 0, 0, 0)
		return StepStopped
	}

	// Re-arm the interrupt to keep free-running
	s.source.Disable()
	s.source.Enable()
	return StepFrameBoundary
}

func (s *Sequencer) raise(f CompletionFlags) {
	for {
		old := atomic.LoadUint32(&s.completion)
		if atomic.CompareAndSwapUint32(&s.completion, old, old|uint32(f)) {
			return
		}
	}
}

// TakeCompletion returns and clears the pending completion flags
func (s *Sequencer) TakeCompletion() CompletionFlags {
	return CompletionFlags(atomic.SwapUint32(&s.completion, 0))
}

// PeekCompletion returns pending completion flags without consuming them
func (s *Sequencer) PeekCompletion() CompletionFlags {
	return CompletionFlags(atomic.LoadUint32(&s.completion))
}

// State returns a consistent snapshot of the counters
func (s *Sequencer) State() SequencerState {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	return SequencerState{
		Phase:               s.phase,
		ZCount:              s.zCount,
		TimedTicksRemaining: s.timedRemaining,
		Running:             s.source.Enabled(),
		Completion:          s.PeekCompletion(),
	}
}

func boolToU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
