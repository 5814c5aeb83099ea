package device

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"slmtrig/core"
	"slmtrig/host/serial"
	"slmtrig/protocol"
)

// DefaultReplyTimeout bounds the wait for a command acknowledgement
const DefaultReplyTimeout = 2 * time.Second

// Device is a connection to a trigger controller speaking the binary
// record encoding
type Device struct {
	link     *protocol.HostLink
	port     serial.Port
	registry *core.CommandRegistry

	// ReplyTimeout bounds every command round trip (0 = wait forever)
	ReplyTimeout time.Duration

	connected bool
}

// New creates a Device over an already open port
func New(port serial.Port) *Device {
	return &Device{
		link:         protocol.NewHostLink(port),
		port:         port,
		registry:     core.DefaultCommands(),
		ReplyTimeout: DefaultReplyTimeout,
		connected:    true,
	}
}

// Connect opens the serial device at path with default settings
func Connect(path string) (*Device, error) {
	return ConnectWithConfig(serial.DefaultConfig(path))
}

// ConnectWithConfig opens a serial port with a custom config
func ConnectWithConfig(cfg *serial.Config) (*Device, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	if err := port.Flush(); err != nil {
		port.Close()
		return nil, fmt.Errorf("flush %s: %w", cfg.Device, err)
	}
	return New(port), nil
}

// Close closes the connection
func (d *Device) Close() error {
	d.connected = false
	return d.link.Close()
}

// IsConnected returns whether the device is connected
func (d *Device) IsConnected() bool {
	return d.connected
}

// Execute sends one command and waits for the device to acknowledge it,
// either through its reply bit or through the next status record
func (d *Device) Execute(cmd core.Command) (protocol.StatusReport, error) {
	if !d.connected {
		return protocol.StatusReport{}, fmt.Errorf("not connected")
	}
	rec, reply, err := protocol.CommandRecord(cmd)
	if err != nil {
		return protocol.StatusReport{}, err
	}

	// completion notices survive until WaitCompletion takes them
	d.link.TakeReplies(protocol.ReplyFlags &^ protocol.CompletionReplies)
	if err := d.link.Send(rec); err != nil {
		return protocol.StatusReport{}, err
	}

	var resp protocol.Record
	if reply != 0 {
		resp, err = d.link.WaitReply(reply, d.ReplyTimeout)
	} else {
		if _, err = d.link.WaitNext(d.ReplyTimeout); err == nil {
			// the first record may predate the command
			resp, err = d.link.WaitNext(d.ReplyTimeout)
		}
	}
	if err != nil {
		return protocol.StatusReport{}, fmt.Errorf("%s: %w", d.commandName(cmd.Kind), err)
	}
	return resp.Report(), nil
}

// Run parses a command name and argument as typed at the REPL
func (d *Device) Run(name string, args []string) (protocol.StatusReport, error) {
	spec, ok := d.registry.ByName(name)
	if !ok {
		return protocol.StatusReport{}, fmt.Errorf("unknown command: %s", name)
	}
	cmd := core.Command{Kind: spec.Kind}
	switch spec.Arg {
	case core.ArgNumber, core.ArgChoice:
		if len(args) != 1 {
			return protocol.StatusReport{}, fmt.Errorf("%s takes one argument", name)
		}
		v, err := parseArg(spec, args[0])
		if err != nil {
			return protocol.StatusReport{}, fmt.Errorf("%s: %w", name, err)
		}
		cmd.Value = v
	default:
		if len(args) != 0 {
			return protocol.StatusReport{}, fmt.Errorf("%s takes no arguments", name)
		}
	}
	return d.Execute(cmd)
}

// Status queries the device
func (d *Device) Status() (protocol.StatusReport, error) {
	return d.Execute(core.Command{Kind: core.CmdQueryStatus})
}

// Latest returns the most recent status record without sending anything
func (d *Device) Latest() (protocol.StatusReport, bool) {
	rec, ok := d.link.Latest()
	return rec.Report(), ok
}

// WaitCompletion blocks until a Z-stack or timed capture finishes. A
// finish seen before the call, even across other commands, returns at once.
func (d *Device) WaitCompletion(timeout time.Duration) (protocol.StatusReport, error) {
	rec, err := d.link.WaitReply(protocol.CompletionReplies, timeout)
	if err != nil {
		return protocol.StatusReport{}, err
	}
	return rec.Report(), nil
}

// Commands returns the command specs sorted by name
func (d *Device) Commands() []core.CommandSpec {
	specs := d.registry.Commands()
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// PrintCommands prints the command list
func (d *Device) PrintCommands() {
	fmt.Println("\n=== Commands ===")
	for _, s := range d.Commands() {
		arg := ""
		switch s.Arg {
		case core.ArgNumber:
			arg = " <number>"
		case core.ArgChoice:
			arg = " <0-" + strconv.Itoa(len(s.Choices)-1) + ">"
		}
		fmt.Printf("  %-10s %-12s %s\n", s.Name, arg, s.Label)
		for i, c := range s.Choices {
			fmt.Printf("  %24d = %s\n", i, c)
		}
	}
	fmt.Println("================")
}

// PrintStatus prints a decoded status report
func PrintStatus(st protocol.StatusReport) {
	state := "Stopped"
	if st.Running {
		state = "Running"
	}
	blank := "Off"
	if st.Blanking {
		blank = "On"
	}
	fmt.Printf("Trigger: %s\n", state)
	fmt.Printf("Camera Readout Mode: %s\n", st.ReadoutMode)
	fmt.Printf("Mode: %s\n", st.RunMode)
	fmt.Printf("SIM Mode: %s\n", st.SimMode)
	fmt.Printf("Blanking: %s\n", blank)
	fmt.Printf("FPS: %.3f\n", st.FrameRateHz)
	fmt.Printf("exposure time: %.6f (sec)\n", st.ExposureSeconds)
	fmt.Printf("Z-steps: %d\n", st.ZSteps)
	fmt.Printf("%s\n", st.LaserMode)
	fmt.Printf("heartbeat: %d\n", st.Heartbeat)
}

func (d *Device) commandName(kind core.CommandKind) string {
	if s, ok := d.registry.ByKind(kind); ok {
		return s.Name
	}
	return "command " + strconv.Itoa(int(kind))
}

func parseArg(spec *core.CommandSpec, s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	if spec.Arg == core.ArgChoice {
		if v != float64(int(v)) || v < 0 || int(v) >= len(spec.Choices) {
			return 0, fmt.Errorf("choice %q out of range 0-%d", s, len(spec.Choices)-1)
		}
	}
	return v, nil
}
