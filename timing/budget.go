package timing

import "math"

// Budget is the set of tick counts programmed into the trigger timers for
// one configuration.
type Budget struct {
	FrameTicks    uint32
	ExposureTicks uint32
	WaitTicks     uint32
	ReadoutTime   float64
}

// ComputeWaitTicks returns the SLM wait period. The readout baseline is
// raised to cover the rest of the frame and then to the settle floor; each
// step only ever raises the value.
func ComputeWaitTicks(readoutSeconds, tickPeriod float64, exposureTicks, frameTicks, minSettleTicks, triggerTicks uint32) uint32 {
	var wait uint32
	baseline := readoutSeconds/tickPeriod - float64(triggerTicks)/2
	if baseline > 0 {
		wait = uint32(math.Min(math.Round(baseline), math.MaxUint32))
	}

	if used := uint64(exposureTicks) + uint64(triggerTicks); uint64(frameTicks) > used {
		if remain := frameTicks - uint32(used); remain > wait {
			wait = remain
		}
	}

	if wait < minSettleTicks {
		wait = minSettleTicks
	}
	return wait
}

// WaitTicks applies ComputeWaitTicks with the profile constants
func (p *Profile) WaitTicks(readoutSeconds float64, exposureTicks, frameTicks uint32) uint32 {
	return ComputeWaitTicks(readoutSeconds, p.TickPeriod, exposureTicks, frameTicks, p.SettleTicks, p.TriggerTicks)
}

// Budget converts a resolved configuration into timer tick counts
func (p *Profile) Budget(frameRateHz, exposure, readoutSeconds float64) Budget {
	var frame uint32
	if frameRateHz > 0 {
		frame = p.Ticks(1 / frameRateHz)
	}
	exp := p.Ticks(exposure)
	return Budget{
		FrameTicks:    frame,
		ExposureTicks: exp,
		WaitTicks:     p.WaitTicks(readoutSeconds, exp, frame),
		ReadoutTime:   readoutSeconds,
	}
}

// PhaseTicks is the trigger period of one phase: exposure, SLM wait and the
// SLM trigger pulse.
func (b Budget) PhaseTicks(p *Profile) uint32 {
	return b.ExposureTicks + b.WaitTicks + p.TriggerTicks
}
