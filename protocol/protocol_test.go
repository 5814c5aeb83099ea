package protocol

import (
	"bytes"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"slmtrig/core"
)

// fakeController records executed commands and replays queued events
type fakeController struct {
	cmds     []core.Command
	rejected []uint8
	events   []core.Event
	cfg      core.AcquisitionConfig
	running  bool
}

func (f *fakeController) Execute(cmd core.Command) error {
	if cmd.Kind == 0 {
		return errors.New("unknown command kind: 0")
	}
	f.cmds = append(f.cmds, cmd)
	switch cmd.Kind {
	case core.CmdSetFrameRate:
		f.cfg.FrameRateHz = cmd.Value
		f.events = append(f.events, core.Event{Kind: core.EventFrameRateSet, Value: cmd.Value, Ticks: 66667})
	case core.CmdSetExposure:
		if cmd.Value > 1 {
			f.events = append(f.events, core.Event{Kind: core.EventExposureClamped, Value: 0.02, Rate: 30})
			cmd.Value = 0.02
		}
		f.cfg.ExposureSeconds = cmd.Value
		f.events = append(f.events, core.Event{Kind: core.EventExposureSet, Value: cmd.Value})
	case core.CmdStart:
		f.running = true
		f.events = append(f.events, core.Event{Kind: core.EventCaptureStarted})
	case core.CmdStop:
		f.running = false
		f.events = append(f.events, core.Event{Kind: core.EventCaptureStopped})
	case core.CmdQueryStatus:
		f.events = append(f.events, core.Event{Kind: core.EventStatus})
	}
	return nil
}

func (f *fakeController) Config() core.AcquisitionConfig { return f.cfg }
func (f *fakeController) Running() bool                  { return f.running }

func (f *fakeController) Status() core.Status {
	return core.Status{Config: f.cfg, Sequencer: core.SequencerState{Running: f.running}}
}

func (f *fakeController) Reject(reason uint8) {
	f.rejected = append(f.rejected, reason)
	f.events = append(f.events, core.Event{Kind: core.EventInputRejected, Mode: reason})
}

func (f *fakeController) DrainEvents(fn func(core.Event)) {
	events := f.events
	f.events = nil
	for _, e := range events {
		fn(e)
	}
}

// bufferEndpoint collects writes; Ready reports the ready field
type bufferEndpoint struct {
	bytes.Buffer
	ready bool
}

func (b *bufferEndpoint) Ready() bool { return b.ready }

func netPipe() (net.Conn, net.Conn) {
	return net.Pipe()
}

func TestRecordLayout(t *testing.T) {
	rec := Record{
		FrameRate: 1.5,
		Exposure:  -2,
		Flags:     FlagChangeFPS | FlagStopZStack,
		Steps:     0x0102,
		Mode:      0x35,
		Reserved:  StatusRunning,
		Counter:   0x0807060504030201,
	}
	var buf [RecordSize]byte
	rec.Encode(buf[:])

	want := []byte{
		0x00, 0x00, 0xC0, 0x3F, // 1.5
		0x00, 0x00, 0x00, 0xC0, // -2
		0x01, 0x00, 0x00, 0x02,
		0x02, 0x01,
		0x35,
		0x01,
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
	}
	if !bytes.Equal(buf[:], want) {
		t.Fatalf("encoded record\n got %x\nwant %x", buf[:], want)
	}

	got, err := DecodeRecord(buf[:])
	if err != nil {
		t.Fatalf("DecodeRecord failed: %v", err)
	}
	if got != rec {
		t.Errorf("decoded %+v, want %+v", got, rec)
	}

	if _, err := DecodeRecord(buf[:RecordSize-1]); !errors.Is(err, ErrShortRecord) {
		t.Errorf("expected ErrShortRecord, got %v", err)
	}
}

func TestModePacking(t *testing.T) {
	m := PackMode(2, 3, 1, 1)
	run, sim, laser, readout := UnpackMode(m)
	if run != 2 || sim != 3 || laser != 1 || readout != 1 {
		t.Errorf("unpacked %d/%d/%d/%d", run, sim, laser, readout)
	}
	if PackMode(7, 0, 0, 0) != 3 {
		t.Error("out-of-range run mode should be masked")
	}
}

func TestArgumentPacking(t *testing.T) {
	rec := Record{Counter: PackArguments(2500000, 512)}
	if rec.DurationMicros() != 2500000 {
		t.Errorf("duration = %d", rec.DurationMicros())
	}
	if rec.VerticalPixels() != 512 {
		t.Errorf("rows = %d", rec.VerticalPixels())
	}
}

func TestBinaryLinkProcessingOrder(t *testing.T) {
	ctrl := &fakeController{}
	link := NewBinaryLink(ctrl, &bufferEndpoint{ready: true}, 0)

	in := Record{
		FrameRate: 20,
		Exposure:  0.01,
		Steps:     7,
		Mode:      PackMode(uint8(core.ZStack), uint8(core.TwoBeam), uint8(core.LaserGreen), 0),
		Flags: FlagSetLaserMode | FlagSetExposure | FlagSetSimMode | FlagStartCapture |
			FlagSetRunMode | FlagSetReadoutSpeed | FlagSlowReadout | FlagChangeZSteps |
			FlagChangeFPS | FlagStageMoveComplete,
	}
	if err := link.Apply(in); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	want := []core.Command{
		{Kind: core.CmdSetFrameRate, Value: 20},
		{Kind: core.CmdSetZSteps, Value: 7},
		{Kind: core.CmdSetReadoutMode, Value: 1},
		{Kind: core.CmdSetRunMode, Value: float64(core.ZStack)},
		{Kind: core.CmdStart},
		{Kind: core.CmdSetSimMode, Value: float64(core.TwoBeam)},
		{Kind: core.CmdSetExposure, Value: float64(float32(0.01))},
		{Kind: core.CmdSetLaserMode, Value: float64(core.LaserGreen)},
	}
	if len(ctrl.cmds) != len(want) {
		t.Fatalf("executed %d commands, want %d: %+v", len(ctrl.cmds), len(want), ctrl.cmds)
	}
	for i := range want {
		if ctrl.cmds[i] != want[i] {
			t.Errorf("command %d = %+v, want %+v", i, ctrl.cmds[i], want[i])
		}
	}
}

func TestBinaryLinkReceiveSplitRecords(t *testing.T) {
	ctrl := &fakeController{}
	link := NewBinaryLink(ctrl, &bufferEndpoint{ready: true}, 0)

	var buf [2 * RecordSize]byte
	(&Record{Flags: FlagStartCapture}).Encode(buf[:RecordSize])
	(&Record{Flags: FlagStopCapture}).Encode(buf[RecordSize:])

	link.Receive(buf[:10])
	if len(ctrl.cmds) != 0 {
		t.Fatal("partial record must not execute")
	}
	link.Receive(buf[10:])
	if len(ctrl.cmds) != 2 || ctrl.cmds[0].Kind != core.CmdStart || ctrl.cmds[1].Kind != core.CmdStop {
		t.Errorf("unexpected commands %+v", ctrl.cmds)
	}
}

func TestBinaryLinkReplyBits(t *testing.T) {
	ctrl := &fakeController{}
	ep := &bufferEndpoint{ready: true}
	link := NewBinaryLink(ctrl, ep, 0)

	link.Apply(Record{Flags: FlagChangeFPS | FlagStartCapture, FrameRate: 25})
	ctrl.events = append(ctrl.events, core.Event{Kind: core.EventZStackFinished})

	if err := link.Poll(); err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	first, _ := DecodeRecord(ep.Next(RecordSize))
	if first.Flags&FlagChangeFPS == 0 || first.Flags&FlagStopZStack == 0 {
		t.Errorf("reply flags = %#x", first.Flags)
	}
	if first.FrameRate != 25 || first.Reserved&StatusRunning == 0 || first.Counter != 0 {
		t.Errorf("status record = %+v", first)
	}

	link.Poll()
	second, _ := DecodeRecord(ep.Next(RecordSize))
	if second.Flags != 0 {
		t.Errorf("reply bits not cleared after send: %#x", second.Flags)
	}
	if second.Counter != 1 || link.Counter() != 2 {
		t.Errorf("heartbeat = %d/%d", second.Counter, link.Counter())
	}
}

func TestBinaryLinkNotReady(t *testing.T) {
	link := NewBinaryLink(&fakeController{}, &bufferEndpoint{}, 5*time.Millisecond)
	if err := link.Poll(); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", err)
	}
	if link.Counter() != 0 {
		t.Error("counter must not advance when nothing was sent")
	}
}

func TestWaitReady(t *testing.T) {
	calls := 0
	err := WaitReady(func() bool { calls++; return calls > 3 }, 0)
	if err != nil || calls != 4 {
		t.Errorf("WaitReady = %v after %d calls", err, calls)
	}
	if err := WaitReady(func() bool { return false }, time.Millisecond); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", err)
	}
}

func newTestConsole() (*Console, *fakeController) {
	ctrl := &fakeController{}
	return NewConsole(ctrl, nil, 4096), ctrl
}

func TestConsoleNumberEntry(t *testing.T) {
	con, ctrl := newTestConsole()

	con.Receive([]byte("a2x5.5\r"))
	out := string(con.Drain())

	if len(ctrl.cmds) != 1 || ctrl.cmds[0] != (core.Command{Kind: core.CmdSetFrameRate, Value: 25.5}) {
		t.Fatalf("commands = %+v", ctrl.cmds)
	}
	if !strings.Contains(out, "Enter FPS float: 25.5") {
		t.Errorf("prompt or echo missing: %q", out)
	}
	if !strings.Contains(out, "Setting: 25.5, frameTicks: 66667") {
		t.Errorf("setting echo missing: %q", out)
	}
	if !strings.HasSuffix(out, "Enter Choice:") {
		t.Error("menu should follow every command")
	}
}

func TestConsoleExposureClampShowsRate(t *testing.T) {
	con, _ := newTestConsole()

	con.Receive([]byte("l5\r"))
	out := string(con.Drain())

	if !strings.Contains(out, "Can not exceed 0.020000 (sec) exposure to maintain fps") {
		t.Errorf("clamp notice missing: %q", out)
	}
	if !strings.Contains(out, "Achievable FPS: 30.000") {
		t.Errorf("back-solved rate missing: %q", out)
	}
}

func TestConsoleNumberTooLong(t *testing.T) {
	con, ctrl := newTestConsole()

	con.Feed('l')
	for i := 0; i < MaxNumberLen; i++ {
		con.Feed('1')
	}
	con.Feed('\n')
	out := string(con.Drain())

	if len(ctrl.rejected) != 1 || ctrl.rejected[0] != core.RejectTooLong {
		t.Fatalf("rejected = %v", ctrl.rejected)
	}
	if !strings.Contains(out, "number too long") {
		t.Errorf("missing advisory: %q", out)
	}
	if len(ctrl.cmds) != 0 {
		t.Errorf("too-long input executed %+v", ctrl.cmds)
	}
}

func TestConsoleThirtyDigitsAccepted(t *testing.T) {
	con, ctrl := newTestConsole()
	con.Feed('b')
	con.Receive([]byte(strings.Repeat("0", 29) + "7\n"))
	if len(ctrl.cmds) != 1 || ctrl.cmds[0].Value != 7 {
		t.Errorf("commands = %+v, rejected = %v", ctrl.cmds, ctrl.rejected)
	}
}

func TestConsoleEmptyNumber(t *testing.T) {
	con, ctrl := newTestConsole()
	con.Receive([]byte("a\n"))
	if len(ctrl.cmds) != 0 || len(ctrl.rejected) != 1 || ctrl.rejected[0] != core.RejectEmpty {
		t.Errorf("cmds=%+v rejected=%v", ctrl.cmds, ctrl.rejected)
	}
}

func TestConsoleChoice(t *testing.T) {
	con, ctrl := newTestConsole()

	con.Receive([]byte("j9"))
	if len(ctrl.cmds) != 0 {
		t.Fatal("out-of-range digit must be ignored")
	}
	con.Feed('3')
	if len(ctrl.cmds) != 1 || ctrl.cmds[0] != (core.Command{Kind: core.CmdSetSimMode, Value: 3}) {
		t.Errorf("commands = %+v", ctrl.cmds)
	}

	con.Receive([]byte("m\n"))
	if len(ctrl.cmds) != 1 {
		t.Error("newline should keep the current choice")
	}
	out := string(con.Drain())
	if !strings.Contains(out, "\n 3) Single Angle\nEnter Choice: ") {
		t.Errorf("choice list missing: %q", out)
	}
}

func TestConsoleStatus(t *testing.T) {
	con, ctrl := newTestConsole()
	ctrl.cfg = core.AcquisitionConfig{
		FrameRateHz:     30,
		ExposureSeconds: 0.020478,
		ZSteps:          12,
		RunMode:         core.ZStack,
		SimMode:         core.TwoBeam,
		LaserMode:       core.LaserAlternating,
		BlankingEnabled: true,
	}

	con.Feed('k')
	out := string(con.Drain())
	for _, want := range []string{
		"Trigger: Stopped\n",
		"Camera Readout Mode: Normal\n",
		"Mode: Z-Stack\n",
		"SIM Mode: Two Beam\n",
		"Blanking: On\n",
		"FPS: 30.000\n",
		"exposure time: 0.020478 (sec)\n",
		"Z-steps: 12\n",
		"Both Lasers Alternating\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("status missing %q in %q", want, out)
		}
	}
}

func TestConsoleUnknownKey(t *testing.T) {
	con, ctrl := newTestConsole()
	con.Receive([]byte(" z"))
	if len(ctrl.rejected) != 1 || ctrl.rejected[0] != core.RejectUnknownCommand {
		t.Errorf("rejected = %v", ctrl.rejected)
	}
}

func TestConsoleFlush(t *testing.T) {
	con, _ := newTestConsole()
	con.Greet()
	ep := &bufferEndpoint{ready: true}
	if err := con.Flush(ep, 0); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if !strings.HasPrefix(ep.String(), "\n\n\n\n a) set FPS\n b) set z-steps") {
		t.Errorf("menu = %q", ep.String())
	}
	if con.Pending() != 0 {
		t.Error("queue should be empty after Flush")
	}
}

func TestCommandRecordRoundTrip(t *testing.T) {
	cmds := []core.Command{
		{Kind: core.CmdSetFrameRate, Value: 12.5},
		{Kind: core.CmdSetZSteps, Value: 40},
		{Kind: core.CmdSetTimedDuration, Value: 2.5},
		{Kind: core.CmdSetVerticalPixels, Value: 1024},
		{Kind: core.CmdSetReadoutMode, Value: 1},
		{Kind: core.CmdSetRunMode, Value: 2},
		{Kind: core.CmdSetSimMode, Value: 3},
		{Kind: core.CmdSetLaserMode, Value: 2},
		{Kind: core.CmdSetExposure, Value: 0.25},
		{Kind: core.CmdStart},
		{Kind: core.CmdStop},
		{Kind: core.CmdToggleBlanking},
		{Kind: core.CmdQueryStatus},
	}
	for _, cmd := range cmds {
		rec, _, err := CommandRecord(cmd)
		if err != nil {
			t.Fatalf("CommandRecord(%d) failed: %v", cmd.Kind, err)
		}
		ctrl := &fakeController{}
		NewBinaryLink(ctrl, &bufferEndpoint{ready: true}, 0).Apply(rec)
		if len(ctrl.cmds) != 1 || ctrl.cmds[0] != cmd {
			t.Errorf("kind %d decoded as %+v", cmd.Kind, ctrl.cmds)
		}
	}

	if _, _, err := CommandRecord(core.Command{Kind: 99}); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestHostLinkTakeRepliesKeepsOtherBits(t *testing.T) {
	hostSide, deviceSide := netPipe()
	link := NewHostLink(hostSide)
	defer link.Close()

	go func() {
		var buf [RecordSize]byte
		(&Record{Counter: 1, Flags: FlagChangeFPS | FlagStopZStack}).Encode(buf[:])
		deviceSide.Write(buf[:])
	}()
	if _, err := link.WaitNext(time.Second); err != nil {
		t.Fatalf("WaitNext failed: %v", err)
	}

	if got := link.TakeReplies(ReplyFlags &^ CompletionReplies); got != FlagChangeFPS {
		t.Errorf("TakeReplies = %#x, want %#x", got, FlagChangeFPS)
	}
	if got := link.TakeReplies(FlagChangeFPS); got != 0 {
		t.Errorf("FlagChangeFPS taken twice: %#x", got)
	}
	rec, err := link.WaitReply(CompletionReplies, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("completion bit lost: %v", err)
	}
	if rec.Counter != 1 {
		t.Errorf("completion record counter = %d, want 1", rec.Counter)
	}
}

func TestHostLink(t *testing.T) {
	hostSide, deviceSide := netPipe()
	link := NewHostLink(hostSide)
	defer link.Close()

	go func() {
		var buf [RecordSize]byte
		(&Record{Counter: 1}).Encode(buf[:])
		deviceSide.Write(buf[:])
		(&Record{Counter: 2, Flags: FlagChangeFPS, FrameRate: 20}).Encode(buf[:])
		deviceSide.Write(buf[:])
	}()

	rec, err := link.WaitReply(FlagChangeFPS, time.Second)
	if err != nil {
		t.Fatalf("WaitReply failed: %v", err)
	}
	if rec.FrameRate != 20 || rec.Counter != 2 {
		t.Errorf("reply record = %+v", rec)
	}
	if link.TakeReplies(ReplyFlags) != 0 {
		t.Error("reply bit should be consumed by WaitReply")
	}

	sent := make(chan Record, 1)
	go func() {
		var buf [RecordSize]byte
		io.ReadFull(deviceSide, buf[:])
		r, _ := DecodeRecord(buf[:])
		sent <- r
	}()
	if err := link.Send(Record{Flags: FlagStartCapture}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if r := <-sent; r.Flags != FlagStartCapture {
		t.Errorf("device received %+v", r)
	}
}
