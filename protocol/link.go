package protocol

import (
	"errors"
	"time"
)

// ErrNotReady is returned when the link did not become ready in time
var ErrNotReady = errors.New("transport not ready")

// Endpoint is the device side of a host link: a byte sink that may apply
// back-pressure
type Endpoint interface {
	// Ready reports whether Write can accept data now
	Ready() bool
	Write(data []byte) (int, error)
}

// WaitReady spins until ready returns true. A zero timeout waits forever.
func WaitReady(ready func() bool, timeout time.Duration) error {
	if ready() {
		return nil
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for !ready() {
		if timeout > 0 && time.Now().After(deadline) {
			return ErrNotReady
		}
		time.Sleep(50 * time.Microsecond)
	}
	return nil
}

// SendAll waits for the endpoint and writes data in full
func SendAll(ep Endpoint, data []byte, timeout time.Duration) error {
	for len(data) > 0 {
		if err := WaitReady(ep.Ready, timeout); err != nil {
			return err
		}
		n, err := ep.Write(data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}
