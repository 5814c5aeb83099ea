// Package timing converts requested frame rates, exposures and sensor
// geometry into integer tick counts for the trigger hardware timers.
//
// Everything here is pure arithmetic. Quantities stay in float seconds until
// the final conversion to ticks so repeated recomputation does not compound
// rounding error.
package timing

import "math"

// ReadoutMode selects the camera sensor readout speed
type ReadoutMode uint8

const (
	ReadoutNormal ReadoutMode = iota
	ReadoutSlow
)

// String returns the console name of the readout mode
func (m ReadoutMode) String() string {
	if m == ReadoutSlow {
		return "Slow"
	}
	return "Normal"
}

// ReadoutTiming holds the per readout-mode sensor constants of a profile
type ReadoutTiming struct {
	// LinePeriod is the horizontal line period in seconds
	LinePeriod float64 `yaml:"line_period"`

	// BlankingDelayTicks is programmed into the laser blanking delay timer
	BlankingDelayTicks uint32 `yaml:"blanking_delay_ticks"`

	// FallbackFPS replaces an infeasible frame rate
	FallbackFPS float64 `yaml:"fallback_fps"`

	// AlternatingFallbackFPS replaces an infeasible frame rate while both
	// lasers alternate. Zero means FallbackFPS applies.
	AlternatingFallbackFPS float64 `yaml:"alternating_fallback_fps"`
}

// Profile is the hardware description of one camera/SLM pairing
type Profile struct {
	Name string `yaml:"name"`

	// TickPeriod is the counter clock period in seconds
	TickPeriod float64 `yaml:"tick_period"`

	// SettleTicks is the minimum SLM settle time
	SettleTicks uint32 `yaml:"settle_ticks"`

	// TriggerTicks is the SLM trigger pulse width
	TriggerTicks uint32 `yaml:"trigger_ticks"`

	// Readout model: (rows/RowDivisor + RowOverhead) * LinePeriod + ReadoutOffset
	RowDivisor    float64 `yaml:"row_divisor"`
	RowOverhead   float64 `yaml:"row_overhead"`
	ReadoutOffset float64 `yaml:"readout_offset"`

	Normal ReadoutTiming `yaml:"normal"`
	Slow   ReadoutTiming `yaml:"slow"`

	DefaultFPS            float64 `yaml:"default_fps"`
	DefaultVerticalPixels uint16  `yaml:"default_vertical_pixels"`

	// ExposureDrivesFrameRate makes SetExposure back-solve the frame rate
	// instead of clamping to the current frame budget.
	ExposureDrivesFrameRate bool `yaml:"exposure_drives_frame_rate"`

	// MinFrameRateHz bounds exposure-driven frame rates from below
	MinFrameRateHz float64 `yaml:"min_frame_rate_hz"`

	StageTriggerTicks uint32 `yaml:"stage_trigger_ticks"`
	StageWaitTicks    uint32 `yaml:"stage_wait_ticks"`
}

// Counter clock shared by both firmware families: 2MHz, 500ns per tick
const DefaultTickPeriod = 0.0000005

// Hamamatsu returns the profile of the console firmware (Hamamatsu sCMOS camera)
func Hamamatsu() Profile {
	return Profile{
		Name:         "hamamatsu",
		TickPeriod:   DefaultTickPeriod,
		SettleTicks:  5360, // 1.18ms + 1.5ms
		TriggerTicks: 200,
		RowDivisor:   2,
		RowOverhead:  10,
		Normal: ReadoutTiming{
			LinePeriod:         0.00000974436,
			BlankingDelayTicks: 195,
			FallbackFPS:        30,
		},
		Slow: ReadoutTiming{
			LinePeriod:         0.0000324812,
			BlankingDelayTicks: 650,
			FallbackFPS:        26,
		},
		DefaultFPS:            30,
		DefaultVerticalPixels: 2048,
		MinFrameRateHz:        1,
		StageTriggerTicks:     5000,
		StageWaitTicks:        10000,
	}
}

// Andor returns the profile of the USB firmware (Andor EMCCD camera).
// Both readout modes share the 30MHz line period.
func Andor() Profile {
	andor := ReadoutTiming{
		LinePeriod:             0.00005547,
		BlankingDelayTicks:     2048,
		FallbackFPS:            10,
		AlternatingFallbackFPS: 48,
	}
	return Profile{
		Name:                    "andor",
		TickPeriod:              DefaultTickPeriod,
		SettleTicks:             5360,
		TriggerTicks:            200,
		RowDivisor:              1,
		RowOverhead:             10,
		ReadoutOffset:           0.0064,
		Normal:                  andor,
		Slow:                    andor,
		DefaultFPS:              10,
		DefaultVerticalPixels:   1024,
		ExposureDrivesFrameRate: true,
		MinFrameRateHz:          1,
		StageTriggerTicks:       5000,
		StageWaitTicks:          10000,
	}
}

// Lookup returns a built-in profile by name
func Lookup(name string) (Profile, bool) {
	switch name {
	case "hamamatsu", "":
		return Hamamatsu(), true
	case "andor":
		return Andor(), true
	}
	return Profile{}, false
}

// Readout returns the constants for a readout mode
func (p *Profile) Readout(mode ReadoutMode) ReadoutTiming {
	if mode == ReadoutSlow {
		return p.Slow
	}
	return p.Normal
}

// FixedOverheadTicks is the per-phase SLM budget subtracted from every frame
func (p *Profile) FixedOverheadTicks() uint32 {
	return p.SettleTicks + p.TriggerTicks
}

// ComputeReadoutTime returns (rows/divisor + overhead) * linePeriod
func ComputeReadoutTime(verticalPixels uint16, rowDivisor, rowOverhead, linePeriod float64) float64 {
	if rowDivisor <= 0 {
		rowDivisor = 1
	}
	return (float64(verticalPixels)/rowDivisor + rowOverhead) * linePeriod
}

// ReadoutTime returns the sensor readout time in seconds
func (p *Profile) ReadoutTime(verticalPixels uint16, mode ReadoutMode) float64 {
	rt := p.Readout(mode)
	return ComputeReadoutTime(verticalPixels, p.RowDivisor, p.RowOverhead, rt.LinePeriod) + p.ReadoutOffset
}

// ComputeMaxExposure returns 1/fps - readout - overhead*tick.
// A negative result means the frame rate is infeasible; a non-positive
// frame rate always is.
func ComputeMaxExposure(frameRateHz, readoutSeconds float64, overheadTicks uint32, tickPeriod float64) float64 {
	if frameRateHz <= 0 {
		return -1
	}
	return 1/frameRateHz - readoutSeconds - float64(overheadTicks)*tickPeriod
}

// MaxExposure applies ComputeMaxExposure with the profile constants
func (p *Profile) MaxExposure(frameRateHz, readoutSeconds float64) float64 {
	return ComputeMaxExposure(frameRateHz, readoutSeconds, p.FixedOverheadTicks(), p.TickPeriod)
}

// FallbackFrameRate returns the safe frame rate for a readout mode and laser
// configuration
func (p *Profile) FallbackFrameRate(mode ReadoutMode, alternating bool) float64 {
	rt := p.Readout(mode)
	if alternating && rt.AlternatingFallbackFPS > 0 {
		return rt.AlternatingFallbackFPS
	}
	if rt.FallbackFPS > 0 {
		return rt.FallbackFPS
	}
	return p.DefaultFPS
}

// Resolution is the outcome of resolving a requested frame rate
type Resolution struct {
	FrameRateHz float64
	MaxExposure float64
	FellBack    bool
}

// Resolve computes the maximum exposure for a frame rate, substituting the
// fallback frame rate when the request is infeasible. If even the fallback
// leaves no exposure budget the maximum is clamped to zero.
func (p *Profile) Resolve(frameRateHz, readoutSeconds float64, mode ReadoutMode, alternating bool) Resolution {
	maxExp := p.MaxExposure(frameRateHz, readoutSeconds)
	if maxExp >= 0 {
		return Resolution{FrameRateHz: frameRateHz, MaxExposure: maxExp}
	}

	fps := p.FallbackFrameRate(mode, alternating)
	maxExp = p.MaxExposure(fps, readoutSeconds)
	if maxExp < 0 {
		maxExp = 0
	}
	return Resolution{FrameRateHz: fps, MaxExposure: maxExp, FellBack: true}
}

// ExposureResult reports the exposure actually applied
type ExposureResult struct {
	Exposure float64
	Clamped  bool

	// FrameRateHz is the fastest frame rate that fits Exposure
	FrameRateHz float64
}

// ApplyExposure clamps a requested exposure to [0, maxExposure] and
// back-solves the achievable frame rate from the result.
func (p *Profile) ApplyExposure(requested, maxExposure, readoutSeconds float64) ExposureResult {
	res := ExposureResult{Exposure: requested}
	if math.IsNaN(requested) || requested < 0 {
		res.Exposure = 0
		res.Clamped = true
	}
	if res.Exposure > maxExposure {
		res.Exposure = maxExposure
		res.Clamped = true
	}
	res.FrameRateHz = p.FrameRateFor(res.Exposure, readoutSeconds)
	return res
}

// FrameRateFor is the inverse of MaxExposure
func (p *Profile) FrameRateFor(exposure, readoutSeconds float64) float64 {
	period := exposure + readoutSeconds + float64(p.FixedOverheadTicks())*p.TickPeriod
	if period <= 0 {
		return 0
	}
	return 1 / period
}

// Ticks converts seconds to the nearest whole tick, saturating at the
// bounds of uint32.
func (p *Profile) Ticks(seconds float64) uint32 {
	return SecondsToTicks(seconds, p.TickPeriod)
}

// Seconds converts ticks back to seconds
func (p *Profile) Seconds(ticks uint32) float64 {
	return float64(ticks) * p.TickPeriod
}

// SecondsToTicks rounds seconds/tickPeriod to the nearest tick
func SecondsToTicks(seconds, tickPeriod float64) uint32 {
	if tickPeriod <= 0 || math.IsNaN(seconds) || seconds <= 0 {
		return 0
	}
	t := math.Round(seconds / tickPeriod)
	if t >= math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(t)
}
