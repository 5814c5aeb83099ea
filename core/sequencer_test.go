package core

import "testing"

func newTestSequencer(p SequencerParams) (*Sequencer, *MockGPIODriver, *mockTimers, *mockSource) {
	drv := NewMockGPIODriver()
	timers := &mockTimers{}
	src := &mockSource{}
	seq := NewSequencer(NewLines(drv, testPins), timers, src)
	seq.SetParams(p)
	return seq, drv, timers, src
}

func TestSequencerIdleWhenDisabled(t *testing.T) {
	seq, drv, timers, _ := newTestSequencer(SequencerParams{PhaseMax: 15})

	if step := seq.Tick(); step != StepIdle {
		t.Errorf("expected Idle, got %v", step)
	}
	if timers.writes != 0 || drv.rises[testPins[LineCounterReset]] != 0 {
		t.Error("disabled sequencer must not touch hardware")
	}
}

func TestSequencerPhaseCycle(t *testing.T) {
	for _, sim := range []SimMode{ThreeBeam, TwoBeam, ZOnly, SingleAngle} {
		t.Run(sim.String(), func(t *testing.T) {
			max := sim.PhaseMax()
			seq, drv, timers, src := newTestSequencer(SequencerParams{
				PhaseMax:      max,
				RunMode:       FreeRun,
				ExposureTicks: 1234,
			})
			seq.Reset(0)
			src.Enable()

			for frame := 0; frame < 3; frame++ {
				for i := uint8(1); i <= max; i++ {
					if step := seq.Tick(); step != StepPhaseAdvance {
						t.Fatalf("frame %d phase %d: expected PhaseAdvance, got %v", frame, i, step)
					}
					if got := seq.State().Phase; got != i {
						t.Fatalf("expected phase %d, got %d", i, got)
					}
				}
				if step := seq.Tick(); step != StepFrameBoundary {
					t.Fatalf("expected FrameBoundary, got %v", step)
				}
				if got := seq.State().Phase; got != 0 {
					t.Fatalf("phase should wrap to 0, got %d", got)
				}
			}

			if got := drv.rises[testPins[LineCounterReset]]; got != 3*int(max) {
				t.Errorf("expected %d counter resets, got %d", 3*int(max), got)
			}
			if timers.periods[TimerExposure] != 1234 {
				t.Errorf("exposure period not rewritten, got %d", timers.periods[TimerExposure])
			}
			if !src.Enabled() {
				t.Error("free run should stay enabled")
			}
		})
	}
}

func TestSequencerAlternatingCountsPairs(t *testing.T) {
	seq, _, _, src := newTestSequencer(SequencerParams{PhaseMax: 5, Alternating: true})
	seq.lines.Set(LineLaserSelect, true) // start on green
	seq.Reset(0)
	src.Enable()

	interrupts := 0
	for seq.State().Phase < 5 {
		if step := seq.Tick(); step != StepPhaseAdvance {
			t.Fatalf("unexpected step %v", step)
		}
		interrupts++
		if interrupts > 100 {
			t.Fatal("phase never reached max")
		}
	}
	if interrupts != 10 {
		t.Errorf("expected 10 interrupts for 5 blue/green pairs, got %d", interrupts)
	}
	if !seq.lines.Get(LineLaserSelect) {
		t.Error("pair should finish on green")
	}
}

func TestSequencerZStack(t *testing.T) {
	const steps = 4
	seq, drv, _, src := newTestSequencer(SequencerParams{
		PhaseMax: ZOnlyPhases,
		RunMode:  ZStack,
		ZSteps:   steps,
	})
	seq.Reset(0)
	src.Enable()

	var last Step
	for i := 0; i < 100 && src.Enabled(); i++ {
		last = seq.Tick()
	}

	if last != StepStopped {
		t.Fatalf("expected Stopped, got %v", last)
	}
	if got := drv.rises[testPins[LineStageMove]]; got != steps {
		t.Errorf("expected %d stage pulses, got %d", steps, got)
	}
	st := seq.State()
	if st.ZCount != 0 {
		t.Errorf("zCount should reset to 0, got %d", st.ZCount)
	}
	if st.Running {
		t.Error("source should be disabled after Z-stack")
	}
	if flags := seq.TakeCompletion(); flags != ZStackFinished {
		t.Errorf("expected ZStackFinished, got %#x", flags)
	}
	if flags := seq.TakeCompletion(); flags != 0 {
		t.Errorf("completion should be consumed, got %#x", flags)
	}
}

func TestSequencerZStackZeroSteps(t *testing.T) {
	seq, drv, _, src := newTestSequencer(SequencerParams{PhaseMax: 1, RunMode: ZStack})
	seq.Reset(0)
	src.Enable()

	seq.Tick()
	if step := seq.Tick(); step != StepStopped {
		t.Fatalf("expected Stopped at first boundary, got %v", step)
	}
	if drv.rises[testPins[LineStageMove]] != 0 {
		t.Error("no stage pulse expected")
	}
}

func TestSequencerTimed(t *testing.T) {
	tests := []struct {
		duration, frame uint32
		want            int
	}{
		{10, 4, 3},
		{8, 4, 2},
		{1, 4, 1},
		{0, 4, 1},
		{400, 100, 4},
	}
	for _, tt := range tests {
		seq, _, _, src := newTestSequencer(SequencerParams{
			PhaseMax:   ThreeBeamPhases,
			RunMode:    Timed,
			FrameTicks: tt.frame,
		})
		seq.Reset(tt.duration)
		src.Enable()

		n := 0
		for src.Enabled() && n < 1000 {
			seq.Tick()
			n++
		}
		if n != tt.want {
			t.Errorf("T=%d F=%d: expected %d interrupts, got %d", tt.duration, tt.frame, tt.want, n)
		}
		if seq.State().TimedTicksRemaining != 0 {
			t.Errorf("remaining should be 0")
		}
		if seq.TakeCompletion()&TimedFinished == 0 {
			t.Errorf("T=%d: TimedFinished not raised", tt.duration)
		}
	}
}

func TestSequencerResetWhileRunning(t *testing.T) {
	seq, _, _, src := newTestSequencer(SequencerParams{PhaseMax: 15})
	seq.Reset(0)
	src.Enable()
	seq.Tick()
	seq.Tick()

	if seq.Reset(0) {
		t.Error("Reset must refuse while enabled")
	}
	if got := seq.State().Phase; got != 2 {
		t.Errorf("phase changed by refused Reset: %d", got)
	}
}

func TestSequencerTrace(t *testing.T) {
	ClearTraceRing()
	SetTraceEnabled(true)
	defer ClearTraceRing()

	seq, _, _, src := newTestSequencer(SequencerParams{PhaseMax: 1})
	seq.Reset(0)
	src.Enable()
	seq.Tick()
	seq.Tick()

	events := TraceEvents()
	if len(events) != 2 {
		t.Fatalf("expected 2 trace events, got %d", len(events))
	}
	if events[0].EventType != EvtPhaseAdvance || events[1].EventType != EvtFrameBoundary {
		t.Errorf("unexpected trace order: %d, %d", events[0].EventType, events[1].EventType)
	}
}
