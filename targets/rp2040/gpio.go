//go:build rp2040 || rp2350

package main

import (
	"errors"
	"machine"

	"slmtrig/core"
)

var (
	errUnknownTimer = errors.New("unknown hardware timer")
	errPinInUse     = errors.New("pin already configured")
	errPinRange     = errors.New("pin out of range")
)

// RPGPIODriver implements core.GPIODriver for the RP2040 trigger lines
type RPGPIODriver struct {
	// Track configured pins to prevent conflicts
	configuredPins map[core.GPIOPin]machine.Pin
}

// NewRPGPIODriver creates a new RP2040 GPIO driver
func NewRPGPIODriver() *RPGPIODriver {
	return &RPGPIODriver{
		configuredPins: make(map[core.GPIOPin]machine.Pin),
	}
}

// ConfigureOutput configures a pin as a digital output
func (d *RPGPIODriver) ConfigureOutput(pin core.GPIOPin) error {
	if pin > 29 {
		return errPinRange
	}
	if _, exists := d.configuredPins[pin]; exists {
		return errPinInUse
	}

	// RP2040 pins map directly to GPIO numbers
	machinePin := machine.Pin(pin)
	machinePin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	d.configuredPins[pin] = machinePin
	return nil
}

// SetPin sets the pin to high (true) or low (false). Unconfigured pins are
// ignored; this runs on the interrupt path.
func (d *RPGPIODriver) SetPin(pin core.GPIOPin, value bool) error {
	machinePin, exists := d.configuredPins[pin]
	if !exists {
		return errPinRange
	}
	machinePin.Set(value)
	return nil
}

// GetPin reads back the current pin state
func (d *RPGPIODriver) GetPin(pin core.GPIOPin) (bool, error) {
	machinePin, exists := d.configuredPins[pin]
	if !exists {
		return false, errPinRange
	}
	return machinePin.Get(), nil
}
