// Package config loads the host and simulator settings file
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"slmtrig/host/serial"
	"slmtrig/timing"
)

type Config struct {
	Profile   ProfileConfig   `yaml:"profile"`
	Serial    serial.Config   `yaml:"serial"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Sim       SimConfig       `yaml:"sim"`
}

// ---- PROFILE ----

// ProfileConfig selects a built-in hardware profile and optionally
// overrides some of its constants. Unset overrides keep the built-in value.
type ProfileConfig struct {
	Base string `yaml:"base"`

	DefaultFPS              *float64 `yaml:"default_fps"`
	DefaultVerticalPixels   *uint16  `yaml:"default_vertical_pixels"`
	SettleTicks             *uint32  `yaml:"settle_ticks"`
	TriggerTicks            *uint32  `yaml:"trigger_ticks"`
	StageTriggerTicks       *uint32  `yaml:"stage_trigger_ticks"`
	StageWaitTicks          *uint32  `yaml:"stage_wait_ticks"`
	MinFrameRateHz          *float64 `yaml:"min_frame_rate_hz"`
	ExposureDrivesFrameRate *bool    `yaml:"exposure_drives_frame_rate"`

	Normal *timing.ReadoutTiming `yaml:"normal"`
	Slow   *timing.ReadoutTiming `yaml:"slow"`
}

// ---- TELEMETRY ----

type TelemetryConfig struct {
	IntervalMs int           `yaml:"interval_ms"`
	MQTT       *MQTTConfig   `yaml:"mqtt"`
	Modbus     *ModbusConfig `yaml:"modbus"`
}

type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Topic       string `yaml:"topic"`
	QoS         uint8  `yaml:"qos"`
	KeepAliveMs int    `yaml:"keep_alive_ms"`
}

type ModbusConfig struct {
	Endpoint  string `yaml:"endpoint"`
	UnitID    uint8  `yaml:"unit_id"`
	Address   uint16 `yaml:"address"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// ---- SIM ----

// SimConfig controls the in-process simulated controller
type SimConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Encoding       string `yaml:"encoding"`
	PollIntervalMs int    `yaml:"poll_interval_ms"`
}

// Encodings accepted by sim.encoding
const (
	EncodingBinary  = "binary"
	EncodingConsole = "console"
)

// Load reads a YAML settings file and fills in defaults. The result still
// needs Validate.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML settings and fills in defaults
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns the settings used when no file is given
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills in missing configuration values
func applyDefaults(cfg *Config) {
	if cfg.Profile.Base == "" {
		cfg.Profile.Base = "hamamatsu"
	}

	if cfg.Serial.Baud == 0 {
		cfg.Serial.Baud = serial.DefaultBaud
	}
	if cfg.Serial.ReadTimeout == 0 {
		cfg.Serial.ReadTimeout = 100
	}

	if cfg.Telemetry.IntervalMs == 0 {
		cfg.Telemetry.IntervalMs = 1000
	}
	if m := cfg.Telemetry.MQTT; m != nil {
		if m.ClientID == "" {
			m.ClientID = "slmtrig"
		}
		if m.Topic == "" {
			m.Topic = "slmtrig/status"
		}
		if m.KeepAliveMs == 0 {
			m.KeepAliveMs = 2000
		}
	}
	if m := cfg.Telemetry.Modbus; m != nil {
		if m.UnitID == 0 {
			m.UnitID = 1
		}
		if m.TimeoutMs == 0 {
			m.TimeoutMs = 1000
		}
	}

	if cfg.Sim.Encoding == "" {
		cfg.Sim.Encoding = EncodingBinary
	}
	if cfg.Sim.PollIntervalMs == 0 {
		cfg.Sim.PollIntervalMs = 10
	}
}

// ResolveProfile returns the base profile with overrides applied
func (c *Config) ResolveProfile() (timing.Profile, error) {
	p, ok := timing.Lookup(c.Profile.Base)
	if !ok {
		return timing.Profile{}, fmt.Errorf("unknown profile %q", c.Profile.Base)
	}

	o := &c.Profile
	if o.DefaultFPS != nil {
		p.DefaultFPS = *o.DefaultFPS
	}
	if o.DefaultVerticalPixels != nil {
		p.DefaultVerticalPixels = *o.DefaultVerticalPixels
	}
	if o.SettleTicks != nil {
		p.SettleTicks = *o.SettleTicks
	}
	if o.TriggerTicks != nil {
		p.TriggerTicks = *o.TriggerTicks
	}
	if o.StageTriggerTicks != nil {
		p.StageTriggerTicks = *o.StageTriggerTicks
	}
	if o.StageWaitTicks != nil {
		p.StageWaitTicks = *o.StageWaitTicks
	}
	if o.MinFrameRateHz != nil {
		p.MinFrameRateHz = *o.MinFrameRateHz
	}
	if o.ExposureDrivesFrameRate != nil {
		p.ExposureDrivesFrameRate = *o.ExposureDrivesFrameRate
	}
	if o.Normal != nil {
		p.Normal = *o.Normal
	}
	if o.Slow != nil {
		p.Slow = *o.Slow
	}
	return p, nil
}

// Interval helpers

func (t TelemetryConfig) Interval() time.Duration {
	return time.Duration(t.IntervalMs) * time.Millisecond
}

func (s SimConfig) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalMs) * time.Millisecond
}
