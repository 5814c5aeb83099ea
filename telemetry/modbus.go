package telemetry

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/goburrow/modbus"

	"slmtrig/config"
)

// Holding register layout of the status block, relative to the configured
// base address. Floats are IEEE-754 high word first.
const (
	RegFrameRate  = 0  // float32, 2 registers
	RegExposure   = 2  // float32, 2 registers
	RegZSteps     = 4  // uint16
	RegRunMode    = 5  // uint16
	RegSimMode    = 6  // uint16
	RegLaserMode  = 7  // uint16
	RegReadout    = 8  // uint16
	RegStatus     = 9  // bit 0 running, bit 1 blanking
	RegHeartbeat  = 10 // uint32, 2 registers
	registerCount = config.StatusRegisterCount
)

// RegisterWriter is the subset of modbus.Client the sink uses
type RegisterWriter interface {
	WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error)
}

// ModbusSink mirrors each snapshot into a block of holding registers
type ModbusSink struct {
	mu      sync.Mutex
	handler *modbus.TCPClientHandler
	client  RegisterWriter
	address uint16
}

// DialModbus opens a Modbus TCP connection described by cfg
func DialModbus(cfg config.ModbusConfig) (*ModbusSink, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("telemetry modbus: endpoint required")
	}

	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	h.Timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	h.SlaveId = cfg.UnitID

	if err := h.Connect(); err != nil {
		return nil, err
	}

	s := NewModbusSink(modbus.NewClient(h), cfg.Address)
	s.handler = h
	return s, nil
}

// NewModbusSink writes through an existing client
func NewModbusSink(c RegisterWriter, address uint16) *ModbusSink {
	return &ModbusSink{client: c, address: address}
}

func (s *ModbusSink) Publish(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	regs := EncodeRegisters(snap)
	_, err := s.client.WriteMultipleRegisters(s.address, uint16(len(regs)), packRegisters(regs))
	return err
}

func (s *ModbusSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handler == nil {
		return nil
	}
	return s.handler.Close()
}

// EncodeRegisters lays a snapshot out as holding registers
func EncodeRegisters(snap Snapshot) []uint16 {
	regs := make([]uint16, registerCount)
	putFloat(regs[RegFrameRate:], float32(snap.FrameRateHz))
	putFloat(regs[RegExposure:], float32(snap.ExposureSeconds))
	regs[RegZSteps] = snap.ZSteps
	regs[RegRunMode] = uint16(snap.run)
	regs[RegSimMode] = uint16(snap.sim)
	regs[RegLaserMode] = uint16(snap.laser)
	regs[RegReadout] = uint16(snap.readout)
	if snap.Running {
		regs[RegStatus] |= 0x1
	}
	if snap.Blanking {
		regs[RegStatus] |= 0x2
	}
	hb := uint32(snap.Heartbeat)
	regs[RegHeartbeat] = uint16(hb >> 16)
	regs[RegHeartbeat+1] = uint16(hb)
	return regs
}

func putFloat(regs []uint16, v float32) {
	bits := math.Float32bits(v)
	regs[0] = uint16(bits >> 16)
	regs[1] = uint16(bits)
}

func packRegisters(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r)
	}
	return out
}
