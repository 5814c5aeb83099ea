//go:build rp2040 || rp2350

package main

import (
	"machine"
	"time"

	"slmtrig/core"
	"slmtrig/protocol"
)

// Board wiring
const (
	pinExposure = machine.GPIO2 // SLM trigger is GPIO3, driven by the same state machine

	pinLCDE  = machine.GPIO20
	pinLCDRS = machine.GPIO21
)

var (
	triggerPins = core.PinMap{
		core.LineCounterReset: 6,
		core.LineStageMove:    7,
		core.LineLaserSelect:  8,
		core.LineBlanking:     9,
		core.LineActivateSLM:  10,
	}
	lcdData = [4]machine.Pin{machine.GPIO16, machine.GPIO17, machine.GPIO18, machine.GPIO19}
)

const (
	// Power-on hold of the reset, SLM activate and stage lines
	initSettle = 100 * time.Millisecond

	// Status record period of the binary encoding
	heartbeatInterval = 10 * time.Millisecond
)

var (
	// Buffer for bytes read from USB
	inputBuffer *protocol.FifoBuffer

	// Debug counters
	msgerrors uint32
)

// hostTransport is the device side of one host encoding
type hostTransport interface {
	Receive(data []byte)
	Poll(now time.Time)
}

type binaryTransport struct {
	link *protocol.BinaryLink
	last time.Time
}

func (t *binaryTransport) Receive(data []byte) {
	if err := t.link.Receive(data); err != nil {
		core.DebugPrintln(err.Error())
	}
}

func (t *binaryTransport) Poll(now time.Time) {
	if now.Sub(t.last) < heartbeatInterval {
		return
	}
	t.last = now
	if err := t.link.Poll(); err != nil {
		msgerrors++
	}
}

type consoleTransport struct {
	con *protocol.Console
}

func (t *consoleTransport) Receive(data []byte) {
	t.con.Receive(data)
}

func (t *consoleTransport) Poll(time.Time) {
	t.con.Poll()
	if err := t.con.Flush(usbEndpoint{}, 0); err != nil {
		msgerrors++
	}
}

func main() {
	// Disable watchdog on boot to clear any previous state
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	InitUSB()
	InitClock()
	core.TimerInit()

	mode := GetMode()

	fabric := NewPIOTrigger(0, 0, pinExposure)
	if err := fabric.Init(); err != nil {
		halt()
	}

	var display core.Display
	if lcd, err := NewLCD(lcdData, pinLCDE, pinLCDRS); err == nil {
		display = lcd
	}

	ctrl := core.NewController(mode.profile(), core.Hardware{
		Lines:   core.NewLines(NewRPGPIODriver(), triggerPins),
		Timers:  fabric,
		Source:  fabric,
		Display: display,
	})
	fabric.Bind(ctrl.Sequencer())

	if err := ctrl.Init(initSettle); err != nil {
		halt()
	}

	var transport hostTransport
	if mode.Binary {
		transport = &binaryTransport{link: protocol.NewBinaryLink(ctrl, usbEndpoint{}, 0)}
	} else {
		con := protocol.NewConsole(ctrl, nil, 1024)
		con.Greet()
		transport = &consoleTransport{con: con}
	}

	inputBuffer = protocol.NewFifoBuffer(256)
	go usbReaderLoop()

	for {
		// Recover from panics in the main loop to prevent a firmware crash
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgerrors++
					inputBuffer.Reset()
				}
			}()

			UpdateSystemTime()

			if n := inputBuffer.Available(); n > 0 {
				transport.Receive(inputBuffer.Data())
				inputBuffer.Pop(n)
			}

			ctrl.Service()
			transport.Poll(time.Now())
			core.ProcessTimers()
		}()

		// Yield to the USB reader
		time.Sleep(10 * time.Microsecond)
	}
}

// usbReaderLoop runs in a goroutine to continuously read USB data
func usbReaderLoop() {
	defer func() {
		if r := recover(); r != nil {
			msgerrors++
			time.Sleep(100 * time.Millisecond)
			go usbReaderLoop()
		}
	}()

	for {
		if USBAvailable() > 0 {
			data, err := USBRead()
			if err != nil {
				msgerrors++
				time.Sleep(1 * time.Millisecond)
				continue
			}
			if inputBuffer.Write([]byte{data}) == 0 {
				// Buffer full
				msgerrors++
				time.Sleep(10 * time.Millisecond)
			}
			continue
		}
		time.Sleep(100 * time.Microsecond)
	}
}

// halt blinks the onboard LED forever
func halt() {
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for {
		led.High()
		time.Sleep(100 * time.Millisecond)
		led.Low()
		time.Sleep(100 * time.Millisecond)
	}
}
