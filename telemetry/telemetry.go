// Package telemetry republishes controller status to plant-side systems:
// JSON over MQTT and a holding-register block over Modbus TCP.
package telemetry

import (
	"context"
	"errors"
	"log"
	"time"

	"slmtrig/protocol"
)

// Snapshot is one status sample as published
type Snapshot struct {
	Time            time.Time `json:"time"`
	FrameRateHz     float64   `json:"fps"`
	ExposureSeconds float64   `json:"exposure_s"`
	ZSteps          uint16    `json:"z_steps"`
	RunMode         string    `json:"run_mode"`
	SimMode         string    `json:"sim_mode"`
	LaserMode       string    `json:"laser_mode"`
	ReadoutMode     string    `json:"readout_mode"`
	Running         bool      `json:"running"`
	Blanking        bool      `json:"blanking"`
	Heartbeat       uint64    `json:"heartbeat"`

	run, sim, laser, readout uint8
}

// NewSnapshot converts a decoded device record
func NewSnapshot(at time.Time, st protocol.StatusReport) Snapshot {
	return Snapshot{
		Time:            at,
		FrameRateHz:     st.FrameRateHz,
		ExposureSeconds: st.ExposureSeconds,
		ZSteps:          st.ZSteps,
		RunMode:         st.RunMode.String(),
		SimMode:         st.SimMode.String(),
		LaserMode:       st.LaserMode.String(),
		ReadoutMode:     st.ReadoutMode.String(),
		Running:         st.Running,
		Blanking:        st.Blanking,
		Heartbeat:       st.Heartbeat,
		run:             uint8(st.RunMode),
		sim:             uint8(st.SimMode),
		laser:           uint8(st.LaserMode),
		readout:         uint8(st.ReadoutMode),
	}
}

// Sink receives status snapshots
type Sink interface {
	Publish(s Snapshot) error
	Close() error
}

// Source produces the current status. host/device.Device satisfies it.
type Source interface {
	Status() (protocol.StatusReport, error)
}

// Multi fans one snapshot out to several sinks. Every sink is attempted;
// the errors are joined.
type Multi []Sink

func (m Multi) Publish(s Snapshot) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Publish(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, sink := range m {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run samples src every interval and publishes to sink until ctx is done.
// Failed samples and publishes are logged and retried on the next tick.
func Run(ctx context.Context, src Source, sink Sink, interval time.Duration, logger *log.Logger) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			st, err := src.Status()
			if err != nil {
				if logger != nil {
					logger.Printf("telemetry: status: %v", err)
				}
				continue
			}
			if err := sink.Publish(NewSnapshot(now, st)); err != nil && logger != nil {
				logger.Printf("telemetry: publish: %v", err)
			}
		}
	}
}
