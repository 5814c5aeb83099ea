package sim

import (
	"context"
	"io"
	"time"

	"slmtrig/core"
	"slmtrig/protocol"
	"slmtrig/timing"
)

// Device is a complete trigger controller running on simulated hardware
// and a virtual tick clock. The core scheduler is process-global, so only
// one Device may run at a time.
type Device struct {
	Profile timing.Profile
	GPIO    *GPIO
	Timers  *Timers
	Source  *Source
	LCD     *LCD
	Ctrl    *core.Controller

	now uint32
}

// New builds and initializes a simulated device
func New(profile timing.Profile) (*Device, error) {
	core.ResetTimers()
	core.SetTime(0)
	core.TimerInit()

	d := &Device{
		Profile: profile,
		GPIO:    NewGPIO(),
		Timers:  &Timers{},
		Source:  &Source{},
		LCD:     NewLCD(),
	}
	d.Ctrl = core.NewController(profile, core.Hardware{
		Lines:   core.NewLines(d.GPIO, Pins),
		Timers:  d.Timers,
		Source:  d.Source,
		Display: d.LCD,
	})
	d.Source.Bind(d.Ctrl.Sequencer(), phasePeriod(d.Ctrl, &d.Profile))

	if err := d.Ctrl.Init(0); err != nil {
		return nil, err
	}
	return d, nil
}

// Now returns the virtual clock in ticks
func (d *Device) Now() uint32 {
	return d.now
}

// Advance moves the virtual clock forward, firing every trigger interrupt
// that falls due, then services completion flags
func (d *Device) Advance(ticks uint32) {
	target := d.now + ticks
	for {
		wake, ok := core.NextWake()
		if !ok || int32(wake-target) > 0 {
			break
		}
		d.now = wake
		core.SetTime(wake)
		core.ProcessTimers()
	}
	d.now = target
	core.SetTime(target)
	d.Ctrl.Service()
}

// AdvanceTime moves the virtual clock by a wall-clock duration
func (d *Device) AdvanceTime(dt time.Duration) {
	d.Advance(d.Profile.Ticks(dt.Seconds()))
}

// RunUntilStopped advances phase by phase until the trigger stops or limit
// ticks have elapsed. It returns the ticks consumed.
func (d *Device) RunUntilStopped(limit uint32) uint32 {
	start := d.now
	for d.Ctrl.Running() && d.now-start < limit {
		step := d.Ctrl.Budget().PhaseTicks(&d.Profile)
		if step == 0 {
			step = 1
		}
		d.Advance(step)
	}
	return d.now - start
}

type writerEndpoint struct {
	w io.Writer
}

func (e writerEndpoint) Ready() bool                    { return true }
func (e writerEndpoint) Write(data []byte) (int, error) { return e.w.Write(data) }

// Transport is the device side of one host encoding
type Transport interface {
	Receive(data []byte)
	Poll() error
}

type binaryTransport struct {
	link *protocol.BinaryLink
}

func (t binaryTransport) Receive(data []byte) { _ = t.link.Receive(data) }
func (t binaryTransport) Poll() error         { return t.link.Poll() }

type consoleTransport struct {
	con *protocol.Console
	ep  protocol.Endpoint
}

func (t consoleTransport) Receive(data []byte) { t.con.Receive(data) }

func (t consoleTransport) Poll() error {
	t.con.Poll()
	return t.con.Flush(t.ep, 0)
}

// BinaryTransport returns the 24-byte record encoding bound to this device
func (d *Device) BinaryTransport(w io.Writer) Transport {
	return binaryTransport{protocol.NewBinaryLink(d.Ctrl, writerEndpoint{w}, 0)}
}

// ConsoleTransport returns the text menu encoding bound to this device
func (d *Device) ConsoleTransport(w io.Writer) Transport {
	con := protocol.NewConsole(d.Ctrl, nil, 4096)
	con.Greet()
	return consoleTransport{con: con, ep: writerEndpoint{w}}
}

// Serve runs the device main loop in real time: input from r is fed to the
// transport, the virtual clock follows the wall clock, and the transport
// is polled every interval. It returns when ctx is done or r fails.
func (d *Device) Serve(ctx context.Context, r io.Reader, t Transport, interval time.Duration) error {
	input := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		for {
			buf := make([]byte, 64)
			n, err := r.Read(buf)
			if n > 0 {
				select {
				case input <- buf[:n]:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			if err == io.EOF {
				return nil
			}
			return err
		case data := <-input:
			t.Receive(data)
		case now := <-ticker.C:
			d.AdvanceTime(now.Sub(last))
			last = now
			if err := t.Poll(); err != nil {
				return err
			}
		}
	}
}
