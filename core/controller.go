package core

import (
	"errors"
	"math"
	"time"

	"slmtrig/timing"
)

// CommandKind identifies one of the host commands
type CommandKind uint8

const (
	CmdSetFrameRate CommandKind = iota + 1
	CmdSetZSteps
	CmdSetTimedDuration
	CmdSetVerticalPixels
	CmdSetReadoutMode
	CmdSetRunMode
	CmdSetSimMode
	CmdSetLaserMode
	CmdSetExposure
	CmdStart
	CmdStop
	CmdToggleBlanking
	CmdQueryStatus
)

// Command is a decoded host request. Value carries the argument of the
// setters: seconds, hertz, a count, or a mode number.
type Command struct {
	Kind  CommandKind
	Value float64
}

// AcquisitionConfig is the host-visible configuration.
// ExposureSeconds never exceeds MaxExposureSeconds.
type AcquisitionConfig struct {
	FrameRateHz        float64
	ExposureSeconds    float64
	MaxExposureSeconds float64
	ZSteps             uint16
	TimedDurationTicks uint32
	VerticalPixels     uint16
	ReadoutMode        ReadoutMode
	RunMode            RunMode
	SimMode            SimMode
	LaserMode          LaserMode
	BlankingEnabled    bool
}

// Hardware bundles the peripherals the controller drives
type Hardware struct {
	Lines   *Lines
	Timers  TimerDriver
	Source  TriggerSource
	Display Display
}

// Status is a full snapshot for QueryStatus and telemetry
type Status struct {
	Profile   string
	Config    AcquisitionConfig
	Budget    timing.Budget
	Sequencer SequencerState
}

// Controller owns the device state and translates host commands into
// configuration changes, timer writes and sequencer start/stop.
// It runs on the main loop only.
type Controller struct {
	profile timing.Profile
	hw      Hardware
	seq     *Sequencer
	cfg     AcquisitionConfig
	budget  timing.Budget
	events  eventQueue
}

// NewController builds a controller with profile defaults. Call Init once
// the hardware is ready.
func NewController(profile timing.Profile, hw Hardware) *Controller {
	if hw.Display == nil {
		hw.Display = nopDisplay{}
	}
	c := &Controller{
		profile: profile,
		hw:      hw,
		seq:     NewSequencer(hw.Lines, hw.Timers, hw.Source),
		cfg: AcquisitionConfig{
			FrameRateHz:    profile.DefaultFPS,
			VerticalPixels: profile.DefaultVerticalPixels,
			ReadoutMode:    ReadoutNormal,
			RunMode:        FreeRun,
			SimMode:        ThreeBeam,
			LaserMode:      LaserBlue,
		},
	}
	c.recompute()
	return c
}

// Sequencer returns the interrupt handler bound to this controller
func (c *Controller) Sequencer() *Sequencer {
	return c.seq
}

// Profile returns the hardware profile in use
func (c *Controller) Profile() timing.Profile {
	return c.profile
}

// Config returns a copy of the acquisition configuration
func (c *Controller) Config() AcquisitionConfig {
	return c.cfg
}

// Budget returns the tick counts currently programmed
func (c *Controller) Budget() timing.Budget {
	return c.budget
}

// Init runs the power-on sequence: program the fixed timers, hold the
// counter reset, SLM activate and stage lines high for settle, then release
// them and draw the initial LCD.
func (c *Controller) Init(settle time.Duration) error {
	if err := c.hw.Lines.Configure(); err != nil {
		return err
	}
	c.hw.Source.Disable()

	c.writeTimer(TimerSLMTrigger, c.profile.TriggerTicks)
	c.writeTimer(TimerStageTrigger, c.profile.StageTriggerTicks)
	c.writeTimer(TimerStageWait, c.profile.StageWaitTicks)
	c.applyBudget(c.readout())

	c.hw.Lines.Set(LineCounterReset, true)
	c.hw.Lines.Set(LineActivateSLM, true)
	c.hw.Lines.Set(LineStageMove, true)
	if settle > 0 {
		time.Sleep(settle)
	}
	c.hw.Lines.Set(LineCounterReset, false)
	c.hw.Lines.Set(LineActivateSLM, false)
	c.hw.Lines.Set(LineStageMove, false)

	c.writeTimer(TimerBlankingDelay, c.profile.Readout(c.cfg.ReadoutMode).BlankingDelayTicks)
	c.writeBlanking()

	c.showMode()
	c.showTrigger(false)
	c.showBlanking()
	return nil
}

// Execute applies one host command
func (c *Controller) Execute(cmd Command) error {
	switch cmd.Kind {
	case CmdSetFrameRate:
		c.SetFrameRate(cmd.Value)
	case CmdSetZSteps:
		c.SetZSteps(uint16(saturate(cmd.Value, math.MaxUint16)))
	case CmdSetTimedDuration:
		c.SetTimedDuration(cmd.Value)
	case CmdSetVerticalPixels:
		c.SetVerticalPixels(uint16(saturate(cmd.Value, math.MaxUint16)))
	case CmdSetReadoutMode:
		c.SetReadoutMode(ClampReadoutMode(uint8(saturate(cmd.Value, math.MaxUint8))))
	case CmdSetRunMode:
		c.SetRunMode(ClampRunMode(uint8(saturate(cmd.Value, math.MaxUint8))))
	case CmdSetSimMode:
		c.SetSimMode(ClampSimMode(uint8(saturate(cmd.Value, math.MaxUint8))))
	case CmdSetLaserMode:
		c.SetLaserMode(ClampLaserMode(uint8(saturate(cmd.Value, math.MaxUint8))))
	case CmdSetExposure:
		c.SetExposure(cmd.Value)
	case CmdStart:
		c.Start()
	case CmdStop:
		c.Stop()
	case CmdToggleBlanking:
		c.ToggleBlanking()
	case CmdQueryStatus:
		c.emit(Event{Kind: EventStatus})
	default:
		return errors.New("unknown command kind: " + itoa(int(cmd.Kind)))
	}
	return nil
}

// SetFrameRate requests a frame rate. The exposure is reset to the new
// maximum; an infeasible rate is replaced by the profile fallback.
func (c *Controller) SetFrameRate(fps float64) {
	c.cfg.FrameRateHz = fps
	c.recomputeAndReport()
	c.emit(Event{Kind: EventFrameRateSet, Value: c.cfg.FrameRateHz, Ticks: c.budget.FrameTicks})
	c.showFrameRate()
}

// SetZSteps sets the number of stage moves per Z-stack
func (c *Controller) SetZSteps(n uint16) {
	c.cfg.ZSteps = n
	c.syncParams()
	c.emit(Event{Kind: EventZStepsSet, Ticks: uint32(n)})
}

// SetTimedDuration sets the length of a timed capture in seconds. It takes
// effect at the next Start.
func (c *Controller) SetTimedDuration(seconds float64) {
	c.cfg.TimedDurationTicks = c.profile.Ticks(seconds)
	c.emit(Event{Kind: EventTimedDurationSet, Value: seconds, Ticks: c.cfg.TimedDurationTicks})
}

// SetVerticalPixels sets the sensor crop height
func (c *Controller) SetVerticalPixels(rows uint16) {
	c.cfg.VerticalPixels = rows
	c.recomputeAndReport()
	c.emit(Event{Kind: EventVerticalPixelsSet, Value: c.cfg.ExposureSeconds, Ticks: uint32(rows)})
}

// SetReadoutMode selects the sensor readout speed
func (c *Controller) SetReadoutMode(m ReadoutMode) {
	c.cfg.ReadoutMode = m
	c.writeTimer(TimerBlankingDelay, c.profile.Readout(m).BlankingDelayTicks)
	c.recomputeAndReport()
	c.emit(Event{Kind: EventReadoutModeSet, Mode: uint8(m)})
}

// SetRunMode selects free-run, Z-stack or timed acquisition
func (c *Controller) SetRunMode(m RunMode) {
	c.cfg.RunMode = m
	c.syncParams()
	c.showMode()
	c.emit(Event{Kind: EventRunModeSet, Mode: uint8(m)})
}

// SetSimMode selects the illumination pattern set
func (c *Controller) SetSimMode(m SimMode) {
	c.cfg.SimMode = m
	c.syncParams()
	c.emit(Event{Kind: EventSimModeSet, Mode: uint8(m)})
}

// SetLaserMode routes the trigger to the blue laser, the green laser, or
// both alternating (starting on green).
func (c *Controller) SetLaserMode(m LaserMode) {
	c.cfg.LaserMode = m
	c.hw.Lines.Set(LineLaserSelect, m != LaserBlue)
	c.writeTimer(TimerBlankingDelay, c.profile.Readout(c.cfg.ReadoutMode).BlankingDelayTicks)
	c.recomputeAndReport()
	c.emit(Event{Kind: EventLaserModeSet, Mode: uint8(m)})
}

// SetExposure requests an exposure in seconds. It is clamped to the
// maximum; profiles where exposure drives the frame rate adopt the
// back-solved rate instead.
func (c *Controller) SetExposure(seconds float64) {
	readout := c.readout()

	limit := c.cfg.MaxExposureSeconds
	if c.profile.ExposureDrivesFrameRate {
		minFPS := c.profile.MinFrameRateHz
		if minFPS <= 0 {
			minFPS = 1
		}
		limit = c.profile.Resolve(minFPS, readout, c.cfg.ReadoutMode, c.alternating()).MaxExposure
	}

	res := c.profile.ApplyExposure(seconds, limit, readout)
	if res.Clamped {
		c.emit(Event{Kind: EventExposureClamped, Value: res.Exposure, Rate: res.FrameRateHz})
	}
	c.cfg.ExposureSeconds = res.Exposure

	if c.profile.ExposureDrivesFrameRate && res.FrameRateHz > 0 {
		c.cfg.FrameRateHz = res.FrameRateHz
		maxExp := c.profile.MaxExposure(res.FrameRateHz, readout)
		if maxExp < res.Exposure {
			maxExp = res.Exposure
		}
		c.cfg.MaxExposureSeconds = maxExp
		c.emit(Event{Kind: EventFrameRateAdjusted, Value: res.FrameRateHz})
		c.showFrameRate()
	}

	c.applyBudget(readout)
	c.emit(Event{Kind: EventExposureSet, Value: c.cfg.ExposureSeconds, Ticks: c.budget.ExposureTicks})
}

// Start arms the sequencer. Counters are only zeroed when the trigger is
// not already running, so a second Start changes nothing.
func (c *Controller) Start() {
	if !c.hw.Source.Enabled() {
		c.seq.Reset(c.cfg.TimedDurationTicks)
		if c.alternating() {
			c.hw.Lines.Set(LineLaserSelect, true)
		}
		RecordTrace(EvtStart, 0, uint32(c.cfg.SimMode.PhaseMax()), uint32(c.cfg.RunMode))
	}
	c.hw.Source.Enable()
	c.showTrigger(true)
	c.emit(Event{Kind: EventCaptureStarted})
}

// Stop disables the trigger interrupt unconditionally
func (c *Controller) Stop() {
	c.hw.Source.Disable()
	RecordTrace(EvtStop, 0, 0, 0)
	c.showTrigger(false)
	c.emit(Event{Kind: EventCaptureStopped})
}

// ToggleBlanking flips laser blanking
func (c *Controller) ToggleBlanking() {
	c.cfg.BlankingEnabled = !c.cfg.BlankingEnabled
	c.writeBlanking()
	c.showBlanking()
	c.emit(Event{Kind: EventBlankingChanged, Mode: uint8(boolToU32(c.cfg.BlankingEnabled))})
}

// Running reports whether the trigger interrupt is enabled
func (c *Controller) Running() bool {
	return c.hw.Source.Enabled()
}

// Status returns a snapshot of configuration, budget and sequencer state
func (c *Controller) Status() Status {
	return Status{
		Profile:   c.profile.Name,
		Config:    c.cfg,
		Budget:    c.budget,
		Sequencer: c.seq.State(),
	}
}

// Service consumes completion flags raised by the sequencer and reports
// each one. Call it from the main loop.
func (c *Controller) Service() CompletionFlags {
	flags := c.seq.TakeCompletion()
	if flags&ZStackFinished != 0 {
		c.showTrigger(false)
		c.emit(Event{Kind: EventZStackFinished})
	}
	if flags&TimedFinished != 0 {
		c.showTrigger(false)
		c.emit(Event{Kind: EventTimedFinished})
	}
	return flags
}

// Reject reports malformed host input
func (c *Controller) Reject(reason uint8) {
	c.emit(Event{Kind: EventInputRejected, Mode: reason})
}

// DrainEvents passes pending events to fn in order
func (c *Controller) DrainEvents(fn func(Event)) {
	for {
		e, ok := c.events.pop()
		if !ok {
			return
		}
		fn(e)
	}
}

func (c *Controller) emit(e Event) {
	c.events.push(e)
}

func (c *Controller) alternating() bool {
	return c.cfg.LaserMode == LaserAlternating
}

func (c *Controller) readout() float64 {
	return c.profile.ReadoutTime(c.cfg.VerticalPixels, c.cfg.ReadoutMode)
}

// recompute resolves the frame rate, resets the exposure to the new maximum
// and reprograms the timers.
func (c *Controller) recompute() timing.Resolution {
	readout := c.readout()
	res := c.profile.Resolve(c.cfg.FrameRateHz, readout, c.cfg.ReadoutMode, c.alternating())
	c.cfg.FrameRateHz = res.FrameRateHz
	c.cfg.MaxExposureSeconds = res.MaxExposure
	c.cfg.ExposureSeconds = res.MaxExposure
	c.applyBudget(readout)
	return res
}

func (c *Controller) recomputeAndReport() {
	res := c.recompute()
	if res.FellBack {
		c.emit(Event{Kind: EventTimingFallback, Value: res.FrameRateHz})
		c.showFrameRate()
	}
	c.emit(Event{Kind: EventExposureSet, Value: c.cfg.ExposureSeconds, Ticks: c.budget.ExposureTicks})
}

func (c *Controller) applyBudget(readout float64) {
	c.budget = c.profile.Budget(c.cfg.FrameRateHz, c.cfg.ExposureSeconds, readout)
	c.writeTimer(TimerExposure, c.budget.ExposureTicks)
	c.writeTimer(TimerSLMWait, c.budget.WaitTicks)
	c.syncParams()
}

func (c *Controller) syncParams() {
	c.seq.SetParams(SequencerParams{
		PhaseMax:      c.cfg.SimMode.PhaseMax(),
		RunMode:       c.cfg.RunMode,
		Alternating:   c.alternating(),
		ZSteps:        c.cfg.ZSteps,
		FrameTicks:    c.budget.FrameTicks,
		ExposureTicks: c.budget.ExposureTicks,
	})
}

func (c *Controller) writeTimer(t HardwareTimer, ticks uint32) {
	if err := c.hw.Timers.WritePeriod(t, ticks); err != nil {
		DebugPrintln("timer " + t.String() + " write failed: " + err.Error())
		return
	}
	RecordTrace(EvtTimerWrite, 0, uint32(t), ticks)
}

// blanking line is active low
func (c *Controller) writeBlanking() {
	c.hw.Lines.Set(LineBlanking, !c.cfg.BlankingEnabled)
}

func (c *Controller) showMode() {
	name := "Free"
	switch c.cfg.RunMode {
	case ZStack:
		name = "Z-St"
	case Timed:
		name = "Timed"
	}
	c.hw.Display.Print(0, 0, "Mode: "+name+" FPS: "+ftoa(c.cfg.FrameRateHz, 1))
}

func (c *Controller) showFrameRate() {
	c.hw.Display.Print(0, 11, "FPS: "+ftoa(c.cfg.FrameRateHz, 1))
}

func (c *Controller) showTrigger(on bool) {
	if on {
		c.hw.Display.Print(1, 0, "Trig: ON ")
	} else {
		c.hw.Display.Print(1, 0, "Trig: OFF")
	}
}

func (c *Controller) showBlanking() {
	if c.cfg.BlankingEnabled {
		c.hw.Display.Print(1, 10, "Blank: On ")
	} else {
		c.hw.Display.Print(1, 10, "Blank: Off")
	}
}

func saturate(v, max float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
