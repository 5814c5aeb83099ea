package protocol

import (
	"strconv"
	"time"

	"slmtrig/core"
)

// MaxNumberLen is the longest numeric entry the console accepts
const MaxNumberLen = 31

type consoleState uint8

const (
	stateMenu consoleState = iota
	stateNumber
	stateChoice
)

// Console is the interactive text encoding: single-key menu selection
// followed by a numeric or choice prompt. Feed never blocks; output is
// queued in a FIFO and drained by Flush.
type Console struct {
	ctrl     Controller
	registry *core.CommandRegistry
	tx       *FifoBuffer

	state   consoleState
	current *core.CommandSpec
	number  [MaxNumberLen]byte
	numLen  int

	scratch []byte
}

// NewConsole creates a console with a transmit FIFO of txSize bytes
func NewConsole(ctrl Controller, registry *core.CommandRegistry, txSize int) *Console {
	if registry == nil {
		registry = core.DefaultCommands()
	}
	return &Console{
		ctrl:     ctrl,
		registry: registry,
		tx:       NewFifoBuffer(txSize),
		scratch:  make([]byte, 0, 256),
	}
}

// Greet writes the menu
func (c *Console) Greet() {
	c.writeString(c.registry.Menu())
}

// Receive feeds every byte of data to the state machine
func (c *Console) Receive(data []byte) {
	for _, b := range data {
		c.Feed(b)
	}
}

// Feed advances the state machine by one input byte
func (c *Console) Feed(b byte) {
	if b == '\r' {
		b = '\n'
	}
	switch c.state {
	case stateMenu:
		c.feedMenu(b)
	case stateNumber:
		c.feedNumber(b)
	case stateChoice:
		c.feedChoice(b)
	}
}

func (c *Console) feedMenu(b byte) {
	if b == '\n' {
		c.Greet()
		return
	}
	spec, ok := c.registry.Lookup(b)
	if !ok {
		if b > ' ' && b < 0x7F {
			c.abort(core.RejectUnknownCommand)
		}
		return
	}
	switch spec.Arg {
	case core.ArgNone:
		c.execute(core.Command{Kind: spec.Kind})
	case core.ArgNumber:
		c.current = spec
		c.numLen = 0
		c.state = stateNumber
		c.writeString(spec.Prompt)
	case core.ArgChoice:
		c.current = spec
		c.state = stateChoice
		c.writeString(spec.Prompt)
		for i, choice := range spec.Choices {
			c.writeString("\n " + strconv.Itoa(i) + ") " + choice)
		}
		c.writeString("\nEnter Choice: ")
	}
}

func (c *Console) feedNumber(b byte) {
	switch {
	case b == '\n':
		c.finishNumber()
	case (b >= '0' && b <= '9') || b == '.':
		if c.numLen >= MaxNumberLen-1 {
			c.abort(core.RejectTooLong)
			return
		}
		c.number[c.numLen] = b
		c.numLen++
		c.tx.Write([]byte{b})
	}
}

func (c *Console) finishNumber() {
	if c.numLen == 0 {
		c.abort(core.RejectEmpty)
		return
	}
	v, err := strconv.ParseFloat(string(c.number[:c.numLen]), 64)
	if err != nil {
		c.abort(core.RejectMalformed)
		return
	}
	c.execute(core.Command{Kind: c.current.Kind, Value: v})
}

func (c *Console) feedChoice(b byte) {
	if b == '\n' {
		c.reset()
		c.Greet()
		return
	}
	if b < '0' || b > '9' {
		return
	}
	v := int(b - '0')
	if v >= len(c.current.Choices) {
		return
	}
	c.tx.Write([]byte{b})
	c.execute(core.Command{Kind: c.current.Kind, Value: float64(v)})
}

func (c *Console) abort(reason uint8) {
	c.ctrl.Reject(reason)
	c.reset()
	c.Poll()
	c.Greet()
}

func (c *Console) execute(cmd core.Command) {
	if err := c.ctrl.Execute(cmd); err != nil {
		c.writeString("\n\n" + err.Error() + "\n")
	}
	c.reset()
	c.Poll()
	c.Greet()
}

func (c *Console) reset() {
	c.state = stateMenu
	c.current = nil
	c.numLen = 0
}

// Poll renders pending controller events
func (c *Console) Poll() {
	c.ctrl.DrainEvents(c.render)
}

// Pending returns the number of queued output bytes
func (c *Console) Pending() int {
	return c.tx.Available()
}

// Flush writes queued output to the endpoint
func (c *Console) Flush(ep Endpoint, timeout time.Duration) error {
	var buf [64]byte
	for !c.tx.IsEmpty() {
		n := c.tx.Read(buf[:])
		if err := SendAll(ep, buf[:n], timeout); err != nil {
			return err
		}
	}
	return nil
}

// Drain returns and clears all queued output
func (c *Console) Drain() []byte {
	out := make([]byte, c.tx.Available())
	c.tx.Read(out)
	return out
}

func (c *Console) writeString(s string) {
	c.tx.Write([]byte(s))
}

func (c *Console) flushScratch() {
	c.tx.Write(c.scratch)
	c.scratch = c.scratch[:0]
}

func (c *Console) render(e core.Event) {
	b := c.scratch[:0]
	switch e.Kind {
	case core.EventFrameRateSet:
		b = append(b, "\n\nSetting: "...)
		b = strconv.AppendFloat(b, e.Value, 'f', 1, 64)
		b = append(b, ", frameTicks: "...)
		b = strconv.AppendUint(b, uint64(e.Ticks), 10)
		b = append(b, ", exposure: "...)
		b = strconv.AppendFloat(b, c.ctrl.Config().ExposureSeconds, 'f', 6, 64)
		b = append(b, " (sec)\n\n"...)
	case core.EventTimingFallback:
		b = append(b, "\n***Timing error setting to "...)
		b = strconv.AppendFloat(b, e.Value, 'f', -1, 64)
		b = append(b, "fps***\n"...)
	case core.EventExposureSet:
		b = append(b, "\n\nSetting exposure: "...)
		b = strconv.AppendFloat(b, e.Value, 'f', 6, 64)
		b = append(b, ", exposureTicks: "...)
		b = strconv.AppendUint(b, uint64(e.Ticks), 10)
		b = append(b, "\n\n"...)
	case core.EventExposureClamped:
		b = append(b, "\n\nCan not exceed "...)
		b = strconv.AppendFloat(b, e.Value, 'f', 6, 64)
		b = append(b, " (sec) exposure to maintain fps\n"...)
		if e.Rate > 0 {
			b = append(b, "Achievable FPS: "...)
			b = strconv.AppendFloat(b, e.Rate, 'f', 3, 64)
			b = append(b, '\n')
		}
	case core.EventFrameRateAdjusted:
		b = append(b, "\n\nFPS adjusted to "...)
		b = strconv.AppendFloat(b, e.Value, 'f', 3, 64)
		b = append(b, '\n')
	case core.EventZStepsSet:
		b = append(b, "\n\nZ-steps: "...)
		b = strconv.AppendUint(b, uint64(e.Ticks), 10)
		b = append(b, '\n')
	case core.EventTimedDurationSet:
		b = append(b, "\n\nCapture time: "...)
		b = strconv.AppendFloat(b, e.Value, 'f', 3, 64)
		b = append(b, " (sec), ticks: "...)
		b = strconv.AppendUint(b, uint64(e.Ticks), 10)
		b = append(b, '\n')
	case core.EventVerticalPixelsSet:
		b = append(b, "\n\nVertical pixels: "...)
		b = strconv.AppendUint(b, uint64(e.Ticks), 10)
		b = append(b, '\n')
	case core.EventReadoutModeSet:
		b = append(b, "\n\nCapture Mode: "...)
		b = strconv.AppendUint(b, uint64(e.Mode), 10)
		b = append(b, '\n')
	case core.EventRunModeSet:
		b = append(b, "\n\nMode: "...)
		b = strconv.AppendUint(b, uint64(e.Mode), 10)
		b = append(b, '\n')
	case core.EventSimModeSet:
		b = append(b, "\n\nSIM Mode: "...)
		b = append(b, simBanner(core.SimMode(e.Mode))...)
		b = append(b, '\n')
	case core.EventLaserModeSet:
		b = append(b, "\n\nLaser Mode: "...)
		b = append(b, laserBanner(core.LaserMode(e.Mode))...)
		b = append(b, '\n')
	case core.EventCaptureStarted:
		b = append(b, "\n\n****Starting Capture****\n\n"...)
	case core.EventCaptureStopped:
		b = append(b, "\n\n****Ending Capture****\n\n"...)
	case core.EventBlankingChanged:
		if e.Mode != 0 {
			b = append(b, "\n\n****Blanking On****\n\n"...)
		} else {
			b = append(b, "\n\n****Blanking Off****\n\n"...)
		}
	case core.EventZStackFinished:
		b = append(b, "\n\n****Z-capture Finished****\n\n"...)
	case core.EventTimedFinished:
		b = append(b, "\n\n****Timed-capture Finished****\n\n"...)
	case core.EventStatus:
		b = AppendStatus(b, c.ctrl.Status())
	case core.EventInputRejected:
		b = append(b, "\n\n"...)
		b = append(b, rejectText(e.Mode)...)
		b = append(b, '\n')
	}
	c.scratch = b
	c.flushScratch()
}

// AppendStatus renders the configuration report
func AppendStatus(b []byte, st core.Status) []byte {
	cfg := st.Config
	if st.Sequencer.Running {
		b = append(b, "\n\nTrigger: Running\n"...)
	} else {
		b = append(b, "\n\nTrigger: Stopped\n"...)
	}
	if cfg.ReadoutMode == core.ReadoutSlow {
		b = append(b, "Camera Readout Mode: SLOW\n"...)
	} else {
		b = append(b, "Camera Readout Mode: Normal\n"...)
	}
	b = append(b, "Mode: "...)
	b = append(b, cfg.RunMode.String()...)
	b = append(b, "\nSIM Mode: "...)
	b = append(b, cfg.SimMode.String()...)
	if cfg.BlankingEnabled {
		b = append(b, "\nBlanking: On"...)
	} else {
		b = append(b, "\nBlanking: Off"...)
	}
	b = append(b, "\nFPS: "...)
	b = strconv.AppendFloat(b, cfg.FrameRateHz, 'f', 3, 64)
	b = append(b, "\nexposure time: "...)
	b = strconv.AppendFloat(b, cfg.ExposureSeconds, 'f', 6, 64)
	b = append(b, " (sec)\nZ-steps: "...)
	b = strconv.AppendUint(b, uint64(cfg.ZSteps), 10)
	b = append(b, '\n')
	b = append(b, cfg.LaserMode.String()...)
	b = append(b, '\n')
	return b
}

func simBanner(m core.SimMode) string {
	switch m {
	case core.ThreeBeam:
		return "THREE BEAM"
	case core.TwoBeam:
		return "TWO BEAM"
	case core.SingleAngle:
		return "SINGLE ANGLE"
	}
	return "Z-Only"
}

func laserBanner(m core.LaserMode) string {
	switch m {
	case core.LaserBlue:
		return "488nm"
	case core.LaserGreen:
		return "561nm"
	}
	return "488nm and 561nm Alternating"
}

func rejectText(reason uint8) string {
	switch reason {
	case core.RejectTooLong:
		return "number too long"
	case core.RejectEmpty:
		return "no number entered"
	case core.RejectMalformed:
		return "invalid number"
	case core.RejectUnknownCommand:
		return "unknown command"
	}
	return "input rejected"
}
