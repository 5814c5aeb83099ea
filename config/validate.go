package config

import (
	"fmt"
	"math"

	"slmtrig/timing"
)

// Validate checks configuration correctness.
// It performs declarative validation only and does not mutate cfg.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	// ---- profile ----

	if _, ok := timing.Lookup(cfg.Profile.Base); !ok {
		return fmt.Errorf("profile: unknown base %q (want \"hamamatsu\" or \"andor\")", cfg.Profile.Base)
	}
	p := &cfg.Profile
	if p.DefaultFPS != nil && !positive(*p.DefaultFPS) {
		return fmt.Errorf("profile: default_fps must be positive, got %v", *p.DefaultFPS)
	}
	if p.MinFrameRateHz != nil && !positive(*p.MinFrameRateHz) {
		return fmt.Errorf("profile: min_frame_rate_hz must be positive, got %v", *p.MinFrameRateHz)
	}
	if p.DefaultVerticalPixels != nil && *p.DefaultVerticalPixels == 0 {
		return fmt.Errorf("profile: default_vertical_pixels must be non-zero")
	}
	if p.TriggerTicks != nil && *p.TriggerTicks == 0 {
		return fmt.Errorf("profile: trigger_ticks must be non-zero")
	}
	for name, rt := range map[string]*timing.ReadoutTiming{"normal": p.Normal, "slow": p.Slow} {
		if rt == nil {
			continue
		}
		if !positive(rt.LinePeriod) {
			return fmt.Errorf("profile: %s.line_period must be positive", name)
		}
		if !positive(rt.FallbackFPS) {
			return fmt.Errorf("profile: %s.fallback_fps must be positive", name)
		}
	}

	// ---- serial ----

	if !cfg.Sim.Enabled && cfg.Serial.Device == "" {
		return fmt.Errorf("serial: device is required unless sim.enabled is set")
	}
	if cfg.Serial.Baud < 0 {
		return fmt.Errorf("serial %q: baud must not be negative", cfg.Serial.Device)
	}
	if cfg.Serial.ReadTimeout < 0 {
		return fmt.Errorf("serial %q: read_timeout_ms must not be negative", cfg.Serial.Device)
	}

	// ---- telemetry ----

	if cfg.Telemetry.IntervalMs < 0 {
		return fmt.Errorf("telemetry: interval_ms must not be negative")
	}
	if m := cfg.Telemetry.MQTT; m != nil {
		if m.Broker == "" {
			return fmt.Errorf("telemetry.mqtt: broker is required")
		}
		if m.Topic == "" {
			return fmt.Errorf("telemetry.mqtt %q: topic is required", m.Broker)
		}
		if m.QoS > 2 {
			return fmt.Errorf("telemetry.mqtt %q: qos must be 0, 1 or 2", m.Broker)
		}
	}
	if m := cfg.Telemetry.Modbus; m != nil {
		if m.Endpoint == "" {
			return fmt.Errorf("telemetry.modbus: endpoint is required")
		}
		if m.TimeoutMs < 0 {
			return fmt.Errorf("telemetry.modbus %q: timeout_ms must not be negative", m.Endpoint)
		}
		if int(m.Address)+StatusRegisterCount > 0x10000 {
			return fmt.Errorf("telemetry.modbus %q: address %d leaves no room for %d registers",
				m.Endpoint, m.Address, StatusRegisterCount)
		}
	}

	// ---- sim ----

	switch cfg.Sim.Encoding {
	case EncodingBinary, EncodingConsole:
	default:
		return fmt.Errorf("sim: unknown encoding %q", cfg.Sim.Encoding)
	}
	if cfg.Sim.PollIntervalMs < 0 {
		return fmt.Errorf("sim: poll_interval_ms must not be negative")
	}

	return nil
}

// StatusRegisterCount is the size of the Modbus status block
const StatusRegisterCount = 12

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}
