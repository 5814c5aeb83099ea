package sim

import (
	"errors"

	"slmtrig/core"
	"slmtrig/timing"
)

// Pins is the pin map of the simulated board
var Pins = core.PinMap{
	core.LineCounterReset: 0,
	core.LineStageMove:    1,
	core.LineLaserSelect:  2,
	core.LineBlanking:     3,
	core.LineActivateSLM:  4,
}

// GPIO is an in-memory GPIODriver that counts rising edges
type GPIO struct {
	levels     map[core.GPIOPin]bool
	rises      map[core.GPIOPin]int
	configured map[core.GPIOPin]bool
}

// NewGPIO creates a GPIO bank with every pin low and unconfigured
func NewGPIO() *GPIO {
	return &GPIO{
		levels:     make(map[core.GPIOPin]bool),
		rises:      make(map[core.GPIOPin]int),
		configured: make(map[core.GPIOPin]bool),
	}
}

func (g *GPIO) ConfigureOutput(pin core.GPIOPin) error {
	if g.configured[pin] {
		return errors.New("pin already configured")
	}
	g.configured[pin] = true
	return nil
}

func (g *GPIO) SetPin(pin core.GPIOPin, value bool) error {
	if !g.configured[pin] {
		return errors.New("pin not configured")
	}
	if value && !g.levels[pin] {
		g.rises[pin]++
	}
	g.levels[pin] = value
	return nil
}

func (g *GPIO) GetPin(pin core.GPIOPin) (bool, error) {
	return g.levels[pin], nil
}

// Rises returns the number of rising edges seen on a trigger line
func (g *GPIO) Rises(line core.TriggerLine) int {
	return g.rises[Pins[line]]
}

// Level returns the current level of a trigger line
func (g *GPIO) Level(line core.TriggerLine) bool {
	return g.levels[Pins[line]]
}

// Timers records the programmed period of every hardware timer
type Timers struct {
	periods [core.NumHardwareTimers]uint32
	writes  int
}

func (t *Timers) WritePeriod(timer core.HardwareTimer, ticks uint32) error {
	if timer >= core.NumHardwareTimers {
		return errors.New("no such timer")
	}
	t.periods[timer] = ticks
	t.writes++
	return nil
}

// Period returns the last period written to a timer
func (t *Timers) Period(timer core.HardwareTimer) uint32 {
	return t.periods[timer]
}

// Source is the simulated trigger interrupt. While enabled it keeps one
// core.Timer scheduled one phase period ahead and runs the sequencer from
// its handler.
type Source struct {
	enabled   bool
	scheduled bool
	timer     core.Timer

	seq    *core.Sequencer
	period func() uint32

	interrupts int
}

// Bind attaches the sequencer and the phase period provider
func (s *Source) Bind(seq *core.Sequencer, period func() uint32) {
	s.seq = seq
	s.period = period
	s.timer.Handler = s.fire
}

func (s *Source) Enable() {
	s.enabled = true
	if s.scheduled || s.seq == nil {
		return
	}
	s.scheduled = true
	s.timer.WakeTime = core.GetTime() + s.nextPeriod()
	core.ScheduleTimer(&s.timer)
}

func (s *Source) Disable() {
	s.enabled = false
}

func (s *Source) Enabled() bool {
	return s.enabled
}

// Interrupts returns how many times the handler ran the sequencer
func (s *Source) Interrupts() int {
	return s.interrupts
}

func (s *Source) fire(t *core.Timer) uint8 {
	if !s.enabled {
		s.scheduled = false
		return core.SF_DONE
	}
	s.interrupts++
	s.seq.Tick()
	if !s.enabled {
		s.scheduled = false
		return core.SF_DONE
	}
	t.WakeTime += s.nextPeriod()
	return core.SF_RESCHEDULE
}

func (s *Source) nextPeriod() uint32 {
	p := s.period()
	if p == 0 {
		p = 1
	}
	return p
}

// LCD is a character display buffer
type LCD struct {
	rows [2][20]byte
}

// NewLCD returns a blank 20x2 display
func NewLCD() *LCD {
	l := &LCD{}
	for r := range l.rows {
		for c := range l.rows[r] {
			l.rows[r][c] = ' '
		}
	}
	return l
}

func (l *LCD) Print(row, col uint8, text string) {
	if int(row) >= len(l.rows) {
		return
	}
	copy(l.rows[row][min(int(col), len(l.rows[row])):], text)
}

// Line returns one display row
func (l *LCD) Line(row int) string {
	return string(l.rows[row][:])
}

// phasePeriod returns the trigger period of one phase for the current budget
func phasePeriod(ctrl *core.Controller, profile *timing.Profile) func() uint32 {
	return func() uint32 {
		return ctrl.Budget().PhaseTicks(profile)
	}
}
