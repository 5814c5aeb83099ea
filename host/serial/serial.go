package serial

import (
	"io"
	"net"
)

// Port is a byte stream to the trigger controller. Implementations:
// native serial via github.com/tarm/serial and an in-memory loopback for
// the simulator.
type Port interface {
	io.ReadWriteCloser

	// Flush discards nothing and returns once queued writes are out
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string `yaml:"device"`

	// Baud rate; USB CDC ignores it
	Baud int `yaml:"baud"`

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int `yaml:"read_timeout_ms"`
}

// DefaultBaud matches the console UART of the controller
const DefaultBaud = 115200

// DefaultConfig returns the configuration for a controller on device
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: 100,
	}
}

type pipePort struct {
	net.Conn
}

func (pipePort) Flush() error { return nil }

// Loopback returns two connected in-memory ports. Bytes written to one are
// read from the other.
func Loopback() (Port, Port) {
	a, b := net.Pipe()
	return pipePort{a}, pipePort{b}
}
