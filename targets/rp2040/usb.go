//go:build rp2040 || rp2350

package main

import (
	"machine"
)

// InitUSB initializes USB serial communication.
// TinyGo sets up USB CDC-ACM as machine.Serial.
func InitUSB() {
	_ = machine.Serial.Configure(machine.UARTConfig{})
}

// USBAvailable returns the number of bytes available to read from USB
func USBAvailable() int {
	return machine.Serial.Buffered()
}

// USBRead reads a single byte from USB
func USBRead() (byte, error) {
	return machine.Serial.ReadByte()
}

// usbEndpoint adapts USB CDC to protocol.Endpoint
type usbEndpoint struct{}

// Ready reports whether the host side has room for more data. TinyGo does
// not expose the CDC line state, so a configured port is always ready.
func (usbEndpoint) Ready() bool {
	return true
}

func (usbEndpoint) Write(data []byte) (int, error) {
	return machine.Serial.Write(data)
}
