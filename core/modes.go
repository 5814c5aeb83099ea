package core

import "slmtrig/timing"

// RunMode selects what happens at a frame boundary
type RunMode uint8

const (
	FreeRun RunMode = iota
	ZStack
	Timed
)

// SimMode selects the structured illumination pattern set
type SimMode uint8

const (
	ThreeBeam SimMode = iota
	TwoBeam
	ZOnly
	SingleAngle
)

// LaserMode selects which laser the camera trigger is routed to
type LaserMode uint8

const (
	LaserBlue LaserMode = iota
	LaserGreen
	LaserAlternating
)

// ReadoutMode is re-exported so callers need a single import
type ReadoutMode = timing.ReadoutMode

const (
	ReadoutNormal = timing.ReadoutNormal
	ReadoutSlow   = timing.ReadoutSlow
)

// Illumination phases per frame for each SIM mode
const (
	ThreeBeamPhases   = 15
	TwoBeamPhases     = 9
	ZOnlyPhases       = 1
	SingleAnglePhases = 5
)

// ClampRunMode maps out-of-range values to the nearest valid mode
func ClampRunMode(v uint8) RunMode {
	if v > uint8(Timed) {
		return Timed
	}
	return RunMode(v)
}

// ClampSimMode maps out-of-range values to ZOnly
func ClampSimMode(v uint8) SimMode {
	if v > uint8(SingleAngle) {
		return ZOnly
	}
	return SimMode(v)
}

// ClampLaserMode maps out-of-range values to the nearest valid mode
func ClampLaserMode(v uint8) LaserMode {
	if v > uint8(LaserAlternating) {
		return LaserAlternating
	}
	return LaserMode(v)
}

// ClampReadoutMode maps out-of-range values to the nearest valid mode
func ClampReadoutMode(v uint8) ReadoutMode {
	if v > uint8(timing.ReadoutSlow) {
		return timing.ReadoutSlow
	}
	return ReadoutMode(v)
}

// PhaseMax returns the number of illumination phases per frame
func (m SimMode) PhaseMax() uint8 {
	switch m {
	case ThreeBeam:
		return ThreeBeamPhases
	case TwoBeam:
		return TwoBeamPhases
	case SingleAngle:
		return SingleAnglePhases
	}
	return ZOnlyPhases
}

func (m RunMode) String() string {
	switch m {
	case FreeRun:
		return "Free Run"
	case ZStack:
		return "Z-Stack"
	case Timed:
		return "Timed"
	}
	return "unknown"
}

func (m SimMode) String() string {
	switch m {
	case ThreeBeam:
		return "Three Beam"
	case TwoBeam:
		return "Two Beam"
	case ZOnly:
		return "Z-only"
	case SingleAngle:
		return "Single Angle"
	}
	return "unknown"
}

func (m LaserMode) String() string {
	switch m {
	case LaserBlue:
		return "Blue Laser"
	case LaserGreen:
		return "Green Laser"
	case LaserAlternating:
		return "Both Lasers Alternating"
	}
	return "unknown"
}
