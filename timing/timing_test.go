package timing

import (
	"math"
	"testing"
)

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func TestReadoutTime(t *testing.T) {
	ham := Hamamatsu()
	andor := Andor()

	tests := []struct {
		name    string
		profile Profile
		rows    uint16
		mode    ReadoutMode
		want    float64
	}{
		{"hamamatsu normal full frame", ham, 2048, ReadoutNormal, (1024 + 10) * 0.00000974436},
		{"hamamatsu slow full frame", ham, 2048, ReadoutSlow, (1024 + 10) * 0.0000324812},
		{"hamamatsu cropped", ham, 512, ReadoutNormal, (256 + 10) * 0.00000974436},
		{"hamamatsu zero rows", ham, 0, ReadoutNormal, 10 * 0.00000974436},
		{"andor default", andor, 1024, ReadoutNormal, (1024+10)*0.00005547 + 0.0064},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.profile.ReadoutTime(tt.rows, tt.mode)
			if !almostEqual(got, tt.want, 1e-12) {
				t.Errorf("ReadoutTime(%d) = %.9f, want %.9f", tt.rows, got, tt.want)
			}
		})
	}
}

func TestMaxExposureThirtyFPS(t *testing.T) {
	p := Hamamatsu()
	readout := p.ReadoutTime(2048, ReadoutNormal)

	res := p.Resolve(30, readout, ReadoutNormal, false)
	if res.FellBack {
		t.Fatalf("30fps should be feasible, got fallback to %v", res.FrameRateHz)
	}

	want := 1.0/30 - readout - 5560*DefaultTickPeriod
	if !almostEqual(res.MaxExposure, want, 1e-12) {
		t.Errorf("MaxExposure = %.9f, want %.9f", res.MaxExposure, want)
	}

	b := p.Budget(res.FrameRateHz, res.MaxExposure, readout)
	if b.FrameTicks != 66667 {
		t.Errorf("FrameTicks = %d, want 66667", b.FrameTicks)
	}
	if b.ExposureTicks != 40955 {
		t.Errorf("ExposureTicks = %d, want 40955", b.ExposureTicks)
	}
	if b.WaitTicks != 25512 {
		t.Errorf("WaitTicks = %d, want 25512", b.WaitTicks)
	}
}

func TestResolveFallback(t *testing.T) {
	ham := Hamamatsu()
	andor := Andor()

	tests := []struct {
		name        string
		profile     Profile
		fps         float64
		mode        ReadoutMode
		alternating bool
		wantFPS     float64
		wantFell    bool
	}{
		{"hamamatsu 1000fps normal", ham, 1000, ReadoutNormal, false, 30, true},
		{"hamamatsu 1000fps slow", ham, 1000, ReadoutSlow, false, 26, true},
		{"hamamatsu 30fps slow infeasible", ham, 30, ReadoutSlow, false, 26, true},
		{"hamamatsu zero fps", ham, 0, ReadoutNormal, false, 30, true},
		{"hamamatsu negative fps", ham, -5, ReadoutNormal, false, 30, true},
		{"hamamatsu feasible", ham, 20, ReadoutNormal, false, 20, false},
		{"andor infeasible", andor, 100, ReadoutNormal, false, 10, true},
		{"andor alternating infeasible", andor, 100, ReadoutNormal, true, 48, true},
		{"andor feasible", andor, 5, ReadoutNormal, true, 5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			readout := tt.profile.ReadoutTime(tt.profile.DefaultVerticalPixels, tt.mode)
			res := tt.profile.Resolve(tt.fps, readout, tt.mode, tt.alternating)
			if res.FellBack != tt.wantFell {
				t.Errorf("FellBack = %v, want %v", res.FellBack, tt.wantFell)
			}
			if res.FrameRateHz != tt.wantFPS {
				t.Errorf("FrameRateHz = %v, want %v", res.FrameRateHz, tt.wantFPS)
			}
			if res.MaxExposure < 0 {
				t.Errorf("MaxExposure = %v, must never be negative", res.MaxExposure)
			}
		})
	}
}

func TestResolveFallbackStillInfeasibleClampsToZero(t *testing.T) {
	p := Andor()
	readout := p.ReadoutTime(p.DefaultVerticalPixels, ReadoutNormal)

	// 48fps leaves no room for the Andor readout at full height
	res := p.Resolve(1000, readout, ReadoutNormal, true)
	if !res.FellBack || res.FrameRateHz != 48 {
		t.Fatalf("expected fallback to 48fps, got %+v", res)
	}
	if res.MaxExposure != 0 {
		t.Errorf("MaxExposure = %v, want 0", res.MaxExposure)
	}
}

// For every feasible frame rate the programmed phase must fit the frame.
func TestBudgetFitsFrame(t *testing.T) {
	for _, p := range []Profile{Hamamatsu(), Andor()} {
		for _, rows := range []uint16{0, 64, 512, 1024, 2048} {
			for _, mode := range []ReadoutMode{ReadoutNormal, ReadoutSlow} {
				readout := p.ReadoutTime(rows, mode)
				for fps := 1.0; fps <= 400; fps += 0.5 {
					res := p.Resolve(fps, readout, mode, false)
					b := p.Budget(res.FrameRateHz, res.MaxExposure, readout)
					if b.WaitTicks < p.SettleTicks {
						t.Fatalf("%s rows=%d fps=%v: wait %d below settle floor", p.Name, rows, fps, b.WaitTicks)
					}
					if res.MaxExposure == 0 {
						continue
					}
					if b.ExposureTicks+b.WaitTicks+p.TriggerTicks > b.FrameTicks {
						t.Fatalf("%s rows=%d fps=%v: %d+%d+%d exceeds frame %d",
							p.Name, rows, fps, b.ExposureTicks, b.WaitTicks, p.TriggerTicks, b.FrameTicks)
					}
				}
			}
		}
	}
}

func TestComputeWaitTicksFloors(t *testing.T) {
	const tick = DefaultTickPeriod

	tests := []struct {
		name     string
		readout  float64
		exposure uint32
		frame    uint32
		want     uint32
	}{
		// readout 10000 ticks, baseline 9900, frame remainder 500
		{"readout baseline wins", 10000 * tick, 60000, 60700, 9900},
		// frame remainder 30000 beats baseline 9900
		{"frame remainder wins", 10000 * tick, 30000, 60200, 30000},
		// tiny readout, frame already consumed
		{"settle floor wins", 50 * tick, 60000, 60000, 5360},
		// exposure longer than frame must not underflow
		{"no underflow", 0, 90000, 60000, 5360},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeWaitTicks(tt.readout, tick, tt.exposure, tt.frame, 5360, 200)
			if got != tt.want {
				t.Errorf("ComputeWaitTicks = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestApplyExposure(t *testing.T) {
	p := Hamamatsu()
	readout := p.ReadoutTime(2048, ReadoutNormal)
	maxExp := p.MaxExposure(30, readout)

	res := p.ApplyExposure(0.010, maxExp, readout)
	if res.Clamped || res.Exposure != 0.010 {
		t.Errorf("in-range exposure changed: %+v", res)
	}
	if res.FrameRateHz <= 30 {
		t.Errorf("shorter exposure should allow a faster frame rate, got %v", res.FrameRateHz)
	}

	res = p.ApplyExposure(1.0, maxExp, readout)
	if !res.Clamped || res.Exposure != maxExp {
		t.Errorf("long exposure not clamped: %+v", res)
	}
	if !almostEqual(res.FrameRateHz, 30, 1e-9) {
		t.Errorf("back-solved frame rate = %v, want 30", res.FrameRateHz)
	}

	res = p.ApplyExposure(-1, maxExp, readout)
	if !res.Clamped || res.Exposure != 0 {
		t.Errorf("negative exposure not clamped to 0: %+v", res)
	}
}

func TestSecondsToTicks(t *testing.T) {
	tests := []struct {
		seconds float64
		want    uint32
	}{
		{0, 0},
		{-1, 0},
		{0.0000005, 1},
		{0.00000074, 1},
		{0.00000076, 2},
		{1, 2000000},
		{1e9, math.MaxUint32},
		{math.NaN(), 0},
	}

	for _, tt := range tests {
		if got := SecondsToTicks(tt.seconds, DefaultTickPeriod); got != tt.want {
			t.Errorf("SecondsToTicks(%v) = %d, want %d", tt.seconds, got, tt.want)
		}
	}
}

func TestLookup(t *testing.T) {
	if p, ok := Lookup("andor"); !ok || p.Name != "andor" {
		t.Errorf("Lookup(andor) = %v, %v", p.Name, ok)
	}
	if p, ok := Lookup(""); !ok || p.Name != "hamamatsu" {
		t.Errorf("Lookup(\"\") should default to hamamatsu, got %v", p.Name)
	}
	if _, ok := Lookup("zyla"); ok {
		t.Error("Lookup of unknown profile should fail")
	}
}
