package protocol

import (
	"encoding/binary"
	"errors"
	"math"

	"slmtrig/core"
)

// RecordSize is the length of one binary host record
const RecordSize = 24

// Record flag bits. Host to device bits request a command; device to host
// bits report a change.
const (
	FlagChangeFPS         uint32 = 0x1
	FlagChangeZSteps      uint32 = 0x2
	FlagSetReadoutSpeed   uint32 = 0x4
	FlagSlowReadout       uint32 = 0x8
	FlagSetLaserMode      uint32 = 0x10
	FlagSetRunMode        uint32 = 0x100
	FlagSetSimMode        uint32 = 0x200
	FlagStartCapture      uint32 = 0x800
	FlagStopCapture       uint32 = 0x1000
	FlagSetTimedDuration  uint32 = 0x2000
	FlagSetVerticalPixels uint32 = 0x4000
	FlagQueryStatus       uint32 = 0x8000
	FlagTimedFinished     uint32 = 0x10000
	FlagSetExposure       uint32 = 0x200000
	FlagStageMoveComplete uint32 = 0x800000
	FlagStopZStack        uint32 = 0x2000000
	FlagToggleBlanking    uint32 = 0x4000000
)

// ReplyFlags are the bits a device sets in its outgoing record. They are
// cleared once the record has been sent.
const ReplyFlags = FlagChangeFPS | FlagSetExposure | FlagStopZStack | FlagQueryStatus | FlagTimedFinished

// CompletionReplies are raised by the device on its own when a capture
// finishes, independent of any host command.
const CompletionReplies = FlagStopZStack | FlagTimedFinished

// Status bits in the reserved byte of device records
const (
	StatusRunning  uint8 = 0x01
	StatusBlanking uint8 = 0x02
)

// ErrShortRecord is returned when fewer than RecordSize bytes are decoded
var ErrShortRecord = errors.New("record shorter than 24 bytes")

// Record is the fixed 24-byte little-endian struct exchanged over the
// binary link:
//
//	0  fps       float32
//	4  exposure  float32
//	8  flags     uint32
//	12 steps     uint16
//	14 mode      uint8
//	15 reserved  uint8
//	16 counter   uint64
type Record struct {
	FrameRate float32
	Exposure  float32
	Flags     uint32
	Steps     uint16
	Mode      uint8
	Reserved  uint8
	Counter   uint64
}

// Encode writes the record into buf, which must hold RecordSize bytes
func (r *Record) Encode(buf []byte) {
	_ = buf[RecordSize-1]
	binary.LittleEndian.PutUint32(buf[0:], math.Float32bits(r.FrameRate))
	binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(r.Exposure))
	binary.LittleEndian.PutUint32(buf[8:], r.Flags)
	binary.LittleEndian.PutUint16(buf[12:], r.Steps)
	buf[14] = r.Mode
	buf[15] = r.Reserved
	binary.LittleEndian.PutUint64(buf[16:], r.Counter)
}

// MarshalBinary returns the encoded record
func (r *Record) MarshalBinary() ([]byte, error) {
	buf := make([]byte, RecordSize)
	r.Encode(buf)
	return buf, nil
}

// DecodeRecord parses the first RecordSize bytes of buf
func DecodeRecord(buf []byte) (Record, error) {
	if len(buf) < RecordSize {
		return Record{}, ErrShortRecord
	}
	return Record{
		FrameRate: math.Float32frombits(binary.LittleEndian.Uint32(buf[0:])),
		Exposure:  math.Float32frombits(binary.LittleEndian.Uint32(buf[4:])),
		Flags:     binary.LittleEndian.Uint32(buf[8:]),
		Steps:     binary.LittleEndian.Uint16(buf[12:]),
		Mode:      buf[14],
		Reserved:  buf[15],
		Counter:   binary.LittleEndian.Uint64(buf[16:]),
	}, nil
}

// Mode byte layout: run bits 0-1, sim bits 2-3, laser bits 4-5, readout
// bit 6.
const (
	modeRunShift     = 0
	modeSimShift     = 2
	modeLaserShift   = 4
	modeReadoutShift = 6
)

// PackMode combines the mode selections into one byte
func PackMode(run, sim, laser, readout uint8) uint8 {
	return (run&0x3)<<modeRunShift |
		(sim&0x3)<<modeSimShift |
		(laser&0x3)<<modeLaserShift |
		(readout&0x1)<<modeReadoutShift
}

// UnpackMode splits a mode byte into its fields
func UnpackMode(mode uint8) (run, sim, laser, readout uint8) {
	return (mode >> modeRunShift) & 0x3,
		(mode >> modeSimShift) & 0x3,
		(mode >> modeLaserShift) & 0x3,
		(mode >> modeReadoutShift) & 0x1
}

// Host records carry extended arguments in the counter word
const (
	counterDurationMask = 0xFFFFFFFF
	counterRowsShift    = 32
)

// PackArguments builds the counter word of a host record
func PackArguments(durationMicros uint32, verticalPixels uint16) uint64 {
	return uint64(durationMicros) | uint64(verticalPixels)<<counterRowsShift
}

// DurationMicros returns the timed-capture duration of a host record
func (r *Record) DurationMicros() uint32 {
	return uint32(r.Counter & counterDurationMask)
}

// VerticalPixels returns the crop height of a host record
func (r *Record) VerticalPixels() uint16 {
	return uint16(r.Counter >> counterRowsShift)
}

// StatusReport is the decoded view of a device record
type StatusReport struct {
	FrameRateHz     float64
	ExposureSeconds float64
	ZSteps          uint16
	RunMode         core.RunMode
	SimMode         core.SimMode
	LaserMode       core.LaserMode
	ReadoutMode     core.ReadoutMode
	Running         bool
	Blanking        bool
	Heartbeat       uint64
	Replies         uint32
}

// Report decodes a device record
func (r *Record) Report() StatusReport {
	run, sim, laser, readout := UnpackMode(r.Mode)
	return StatusReport{
		FrameRateHz:     float64(r.FrameRate),
		ExposureSeconds: float64(r.Exposure),
		ZSteps:          r.Steps,
		RunMode:         core.ClampRunMode(run),
		SimMode:         core.ClampSimMode(sim),
		LaserMode:       core.ClampLaserMode(laser),
		ReadoutMode:     core.ClampReadoutMode(readout),
		Running:         r.Reserved&StatusRunning != 0,
		Blanking:        r.Reserved&StatusBlanking != 0,
		Heartbeat:       r.Counter,
		Replies:         r.Flags & ReplyFlags,
	}
}
