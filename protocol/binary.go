package protocol

import (
	"fmt"
	"time"

	"slmtrig/core"
)

// Controller is the device-side command sink shared by both encodings
type Controller interface {
	Execute(cmd core.Command) error
	Config() core.AcquisitionConfig
	Status() core.Status
	Running() bool
	Reject(reason uint8)
	DrainEvents(fn func(core.Event))
}

// BinaryLink speaks the 24-byte record encoding. Each Poll sends one status
// record carrying the reply bits raised since the previous one.
type BinaryLink struct {
	ctrl    Controller
	ep      Endpoint
	timeout time.Duration

	rx    [RecordSize]byte
	rxLen int

	replies uint32
	counter uint64
	txBuf   [RecordSize]byte
}

// NewBinaryLink binds a controller to an endpoint. A zero timeout waits
// for the endpoint forever.
func NewBinaryLink(ctrl Controller, ep Endpoint, timeout time.Duration) *BinaryLink {
	return &BinaryLink{ctrl: ctrl, ep: ep, timeout: timeout}
}

// Receive feeds bytes read from the host. Each completed record is applied
// immediately; a partial record is kept for the next call.
func (l *BinaryLink) Receive(data []byte) error {
	var firstErr error
	for len(data) > 0 {
		n := copy(l.rx[l.rxLen:], data)
		l.rxLen += n
		data = data[n:]
		if l.rxLen < RecordSize {
			break
		}
		l.rxLen = 0
		rec, _ := DecodeRecord(l.rx[:])
		if err := l.Apply(rec); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Apply executes the commands requested by a host record in the fixed
// processing order of the firmware
func (l *BinaryLink) Apply(in Record) error {
	run, sim, laser, _ := UnpackMode(in.Mode)
	var cmds [16]core.Command
	n := 0
	add := func(kind core.CommandKind, v float64) {
		cmds[n] = core.Command{Kind: kind, Value: v}
		n++
	}

	// Stage-move acknowledgements need no action
	if in.Flags&FlagChangeFPS != 0 {
		add(core.CmdSetFrameRate, float64(in.FrameRate))
	}
	if in.Flags&FlagChangeZSteps != 0 {
		add(core.CmdSetZSteps, float64(in.Steps))
	}
	if in.Flags&FlagSetTimedDuration != 0 {
		add(core.CmdSetTimedDuration, float64(in.DurationMicros())/1e6)
	}
	if in.Flags&FlagSetVerticalPixels != 0 {
		add(core.CmdSetVerticalPixels, float64(in.VerticalPixels()))
	}
	if in.Flags&FlagSetReadoutSpeed != 0 {
		var slow float64
		if in.Flags&FlagSlowReadout != 0 {
			slow = 1
		}
		add(core.CmdSetReadoutMode, slow)
	}
	if in.Flags&FlagSetRunMode != 0 {
		add(core.CmdSetRunMode, float64(run))
	}
	if in.Flags&FlagStartCapture != 0 {
		add(core.CmdStart, 0)
	}
	if in.Flags&FlagStopCapture != 0 {
		add(core.CmdStop, 0)
	}
	if in.Flags&FlagToggleBlanking != 0 {
		add(core.CmdToggleBlanking, 0)
	}
	if in.Flags&FlagSetSimMode != 0 {
		add(core.CmdSetSimMode, float64(sim))
	}
	if in.Flags&FlagSetExposure != 0 {
		add(core.CmdSetExposure, float64(in.Exposure))
	}
	if in.Flags&FlagSetLaserMode != 0 {
		add(core.CmdSetLaserMode, float64(laser))
	}
	if in.Flags&FlagQueryStatus != 0 {
		add(core.CmdQueryStatus, 0)
	}

	var firstErr error
	for _, cmd := range cmds[:n] {
		if err := l.ctrl.Execute(cmd); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Poll folds pending controller events into reply bits, sends one status
// record and clears the bits that were sent
func (l *BinaryLink) Poll() error {
	l.ctrl.DrainEvents(l.collect)

	out := l.Outgoing()
	out.Encode(l.txBuf[:])
	if err := SendAll(l.ep, l.txBuf[:], l.timeout); err != nil {
		return err
	}
	l.replies &^= out.Flags & ReplyFlags
	l.counter++
	return nil
}

// Outgoing builds the next status record without sending it
func (l *BinaryLink) Outgoing() Record {
	cfg := l.ctrl.Config()
	var status uint8
	if l.ctrl.Running() {
		status |= StatusRunning
	}
	if cfg.BlankingEnabled {
		status |= StatusBlanking
	}
	return Record{
		FrameRate: float32(cfg.FrameRateHz),
		Exposure:  float32(cfg.ExposureSeconds),
		Flags:     l.replies,
		Steps:     cfg.ZSteps,
		Mode:      PackMode(uint8(cfg.RunMode), uint8(cfg.SimMode), uint8(cfg.LaserMode), uint8(cfg.ReadoutMode)),
		Reserved:  status,
		Counter:   l.counter,
	}
}

// Counter returns the heartbeat count of records sent
func (l *BinaryLink) Counter() uint64 {
	return l.counter
}

func (l *BinaryLink) collect(e core.Event) {
	switch e.Kind {
	case core.EventFrameRateSet, core.EventTimingFallback, core.EventFrameRateAdjusted:
		l.replies |= FlagChangeFPS
	case core.EventExposureSet, core.EventExposureClamped:
		l.replies |= FlagSetExposure
	case core.EventZStackFinished:
		l.replies |= FlagStopZStack
	case core.EventTimedFinished:
		l.replies |= FlagTimedFinished
	case core.EventStatus:
		l.replies |= FlagQueryStatus
	}
}

// CommandRecord encodes one command as a host record. The returned mask
// holds the reply bits the device raises once the command has been
// applied; zero means only the next heartbeat confirms it.
func CommandRecord(cmd core.Command) (Record, uint32, error) {
	var rec Record
	var reply uint32
	v := cmd.Value
	switch cmd.Kind {
	case core.CmdSetFrameRate:
		rec.Flags, rec.FrameRate, reply = FlagChangeFPS, float32(v), FlagChangeFPS
	case core.CmdSetZSteps:
		rec.Flags, rec.Steps = FlagChangeZSteps, uint16(clampArg(v, 0xFFFF))
	case core.CmdSetTimedDuration:
		rec.Flags = FlagSetTimedDuration
		rec.Counter = PackArguments(uint32(clampArg(v*1e6, 0xFFFFFFFF)), 0)
	case core.CmdSetVerticalPixels:
		rec.Flags, reply = FlagSetVerticalPixels, FlagSetExposure
		rec.Counter = PackArguments(0, uint16(clampArg(v, 0xFFFF)))
	case core.CmdSetReadoutMode:
		rec.Flags, reply = FlagSetReadoutSpeed, FlagSetExposure
		if v >= 1 {
			rec.Flags |= FlagSlowReadout
		}
	case core.CmdSetRunMode:
		rec.Flags, rec.Mode = FlagSetRunMode, PackMode(uint8(clampArg(v, 3)), 0, 0, 0)
	case core.CmdSetSimMode:
		rec.Flags, rec.Mode = FlagSetSimMode, PackMode(0, uint8(clampArg(v, 3)), 0, 0)
	case core.CmdSetLaserMode:
		rec.Flags, reply = FlagSetLaserMode, FlagSetExposure
		rec.Mode = PackMode(0, 0, uint8(clampArg(v, 3)), 0)
	case core.CmdSetExposure:
		rec.Flags, rec.Exposure, reply = FlagSetExposure, float32(v), FlagSetExposure
	case core.CmdStart:
		rec.Flags = FlagStartCapture
	case core.CmdStop:
		rec.Flags = FlagStopCapture
	case core.CmdToggleBlanking:
		rec.Flags = FlagToggleBlanking
	case core.CmdQueryStatus:
		rec.Flags, reply = FlagQueryStatus, FlagQueryStatus
	default:
		return Record{}, 0, fmt.Errorf("unknown command kind: %d", cmd.Kind)
	}
	return rec, reply, nil
}

func clampArg(v, max float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
