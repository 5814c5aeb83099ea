package core

// GPIOPin identifies a hardware GPIO pin number
type GPIOPin uint32

// GPIODriver is the abstract GPIO interface that core code uses.
// Platform-specific implementations handle actual hardware control.
type GPIODriver interface {
	// ConfigureOutput configures a pin as a digital output
	// Returns error if pin is invalid or already in use
	ConfigureOutput(pin GPIOPin) error

	// SetPin sets the pin to high (true) or low (false)
	SetPin(pin GPIOPin, value bool) error

	// GetPin reads back the current pin state
	GetPin(pin GPIOPin) (bool, error)
}

// TriggerLine names a control output of the trigger fabric
type TriggerLine uint8

const (
	// LineCounterReset re-arms the exposure counter when pulsed
	LineCounterReset TriggerLine = iota
	// LineStageMove advances the motorized stage one Z step when pulsed
	LineStageMove
	// LineLaserSelect routes the camera trigger: low = blue, high = green
	LineLaserSelect
	// LineBlanking is the laser blanking enable, active low
	LineBlanking
	// LineActivateSLM powers up the SLM controller
	LineActivateSLM

	NumTriggerLines
)

// PinMap assigns a GPIO pin to every trigger line
type PinMap [NumTriggerLines]GPIOPin

// Lines drives the trigger lines through a GPIODriver. Pin errors are
// ignored on the interrupt path; Configure reports them once at startup.
type Lines struct {
	driver GPIODriver
	pins   PinMap
}

// NewLines binds a pin map to a driver
func NewLines(driver GPIODriver, pins PinMap) *Lines {
	return &Lines{driver: driver, pins: pins}
}

// Configure sets every trigger line as a low output
func (l *Lines) Configure() error {
	for _, pin := range l.pins {
		if err := l.driver.ConfigureOutput(pin); err != nil {
			return err
		}
		if err := l.driver.SetPin(pin, false); err != nil {
			return err
		}
	}
	return nil
}

// Set drives a line high or low
func (l *Lines) Set(line TriggerLine, value bool) {
	_ = l.driver.SetPin(l.pins[line], value)
}

// Get reads a line back
func (l *Lines) Get(line TriggerLine) bool {
	v, _ := l.driver.GetPin(l.pins[line])
	return v
}

// Pulse sets a line then immediately clears it
func (l *Lines) Pulse(line TriggerLine) {
	pin := l.pins[line]
	_ = l.driver.SetPin(pin, true)
	_ = l.driver.SetPin(pin, false)
}
