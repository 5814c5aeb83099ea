//go:build rp2040 || rp2350

package main

import (
	"machine"

	"slmtrig/core"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
)

// PIO program for one illumination phase. The state machine runs at the
// 2MHz trigger tick so each loop iteration is one tick.
// Command words, three per phase:
//
//	exposure ticks, SLM wait ticks, SLM trigger ticks
//
// SET pins: base = camera exposure, base+1 = SLM trigger.
func buildPhaseProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		// .wrap_target
		asm.Pull(false, true).Encode(),            // 0: pull block (exposure)
		asm.Out(rp2pio.OutDestX, 32).Encode(),     // 1: out x, 32
		asm.Set(rp2pio.SetDestPins, 1).Encode(),   // 2: set pins, 0b01
		asm.Jmp(3, rp2pio.JmpXNZeroDec).Encode(),  // 3: jmp x--, 3
		asm.Set(rp2pio.SetDestPins, 0).Encode(),   // 4: set pins, 0
		asm.Pull(false, true).Encode(),            // 5: pull block (SLM wait)
		asm.Out(rp2pio.OutDestX, 32).Encode(),     // 6: out x, 32
		asm.Jmp(7, rp2pio.JmpXNZeroDec).Encode(),  // 7: jmp x--, 7
		asm.Pull(false, true).Encode(),            // 8: pull block (SLM trigger)
		asm.Out(rp2pio.OutDestX, 32).Encode(),     // 9: out x, 32
		asm.Set(rp2pio.SetDestPins, 2).Encode(),   // 10: set pins, 0b10
		asm.Jmp(11, rp2pio.JmpXNZeroDec).Encode(), // 11: jmp x--, 11
		asm.Set(rp2pio.SetDestPins, 0).Encode(),   // 12: set pins, 0
		// .wrap
	}
}

const (
	// jmp targets are absolute, so the program is pinned to address 0
	phaseProgramOrigin = 0
	phaseWords         = 3
	// Joined TX FIFO holds eight words; keep at most two phases queued
	maxQueuedWords = 2 * phaseWords
	// pull, out and set cycles around each counted loop
	segmentOverhead = 2
)

// PIOTrigger is the trigger fabric: a PIO state machine generating the
// exposure and SLM trigger pulses, with the SLM trigger falling edge as the
// per-phase interrupt. It implements core.TimerDriver and
// core.TriggerSource.
type PIOTrigger struct {
	pio        *rp2pio.PIO
	sm         rp2pio.StateMachine
	exposure   machine.Pin
	slmTrigger machine.Pin
	offset     uint8

	periods [core.NumHardwareTimers]uint32
	enabled bool
	seq     *core.Sequencer
}

// NewPIOTrigger claims state machine smNum of PIO block pioNum. The SLM
// trigger pin must be exposurePin+1.
func NewPIOTrigger(pioNum, smNum uint8, exposurePin machine.Pin) *PIOTrigger {
	pioHW := rp2pio.PIO0
	if pioNum != 0 {
		pioHW = rp2pio.PIO1
	}
	return &PIOTrigger{
		pio:        pioHW,
		sm:         pioHW.StateMachine(smNum),
		exposure:   exposurePin,
		slmTrigger: exposurePin + 1,
	}
}

// Init loads the phase program and arms the edge interrupt. The state
// machine stays disabled until Enable.
func (t *PIOTrigger) Init() error {
	t.sm.TryClaim()

	program := buildPhaseProgram()
	offset, err := t.pio.AddProgram(program, phaseProgramOrigin)
	if err != nil {
		return err
	}
	t.offset = offset

	t.exposure.Configure(machine.PinConfig{Mode: t.pio.PinMode()})
	t.slmTrigger.Configure(machine.PinConfig{Mode: t.pio.PinMode()})

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetSetPins(t.exposure, 2)
	cfg.SetOutShift(true, false, 32)
	cfg.SetFIFOJoin(rp2pio.FifoJoinTx)
	cfg.SetWrap(offset, offset+uint8(len(program))-1)

	whole, frac, err := rp2pio.ClkDivFromFrequency(core.TimerFreq, machine.CPUFrequency())
	if err != nil {
		return err
	}
	cfg.SetClkDivIntFrac(whole, frac)

	t.sm.Init(offset, cfg)
	t.sm.SetPindirsConsecutive(t.exposure, 2, true)
	t.sm.SetPinsConsecutive(t.exposure, 2, false)

	return t.slmTrigger.SetInterrupt(machine.PinFalling, t.handleEdge)
}

// Bind attaches the interrupt handler
func (t *PIOTrigger) Bind(seq *core.Sequencer) {
	t.seq = seq
}

// WritePeriod latches a timer period. Exposure and SLM periods are picked up
// by the next phase queued to the state machine.
func (t *PIOTrigger) WritePeriod(timer core.HardwareTimer, ticks uint32) error {
	if timer >= core.NumHardwareTimers {
		return errUnknownTimer
	}
	t.periods[timer] = ticks
	return nil
}

// Enable restarts the phase generator with two phases queued
func (t *PIOTrigger) Enable() {
	if t.enabled {
		return
	}
	t.sm.SetEnabled(false)
	t.sm.ClearFIFOs()
	t.sm.Restart()
	t.sm.Exec(rp2pio.EncodeJmp(t.offset, rp2pio.JmpAlways))
	t.enabled = true
	t.refill()
	t.sm.SetEnabled(true)
}

// Disable halts the phase generator and drives both outputs low
func (t *PIOTrigger) Disable() {
	t.enabled = false
	t.sm.SetEnabled(false)
	t.sm.ClearFIFOs()
	t.sm.SetPinsConsecutive(t.exposure, 2, false)
}

func (t *PIOTrigger) Enabled() bool {
	return t.enabled
}

func (t *PIOTrigger) handleEdge(machine.Pin) {
	if !t.enabled || t.seq == nil {
		return
	}
	t.seq.Tick()
	if t.enabled {
		t.refill()
	}
}

func (t *PIOTrigger) refill() {
	for t.sm.TxFIFOLevel()+phaseWords <= maxQueuedWords {
		t.sm.TxPut(loopCount(t.periods[core.TimerExposure]))
		t.sm.TxPut(loopCount(t.periods[core.TimerSLMWait]))
		t.sm.TxPut(loopCount(t.periods[core.TimerSLMTrigger]))
	}
}

// loopCount converts ticks to the X preload of a counted loop
func loopCount(ticks uint32) uint32 {
	if ticks <= segmentOverhead {
		return 0
	}
	return ticks - segmentOverhead
}
