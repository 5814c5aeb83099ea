//go:build rp2040 || rp2350

package main

import (
	"runtime/volatile"
	"unsafe"

	"slmtrig/core"
)

// RP2040/RP2350 Timer peripheral memory map
const (
	timerBase     = 0x40054000
	timerTIMERAWH = timerBase + 0x08 // Raw timer high word
	timerTIMERAWL = timerBase + 0x0C // Raw timer low word
)

var (
	timerRAWH = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWH)))
	timerRAWL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))
)

// The hardware timer counts microseconds; core time runs at TimerFreq
const ticksPerMicro = core.TimerFreq / 1000000

// InitClock starts core time from the current hardware count
func InitClock() {
	UpdateSystemTime()
}

// GetHardwareTime reads the low 32 bits of the microsecond counter
func GetHardwareTime() uint32 {
	return timerRAWL.Get()
}

// GetHardwareUptime reads the full 64-bit RP2040 hardware timer
func GetHardwareUptime() uint64 {
	// Read high, low, high to detect rollover between the two words
	for {
		high1 := timerRAWH.Get()
		low := timerRAWL.Get()
		high2 := timerRAWH.Get()

		if high1 == high2 {
			return (uint64(high1) << 32) | uint64(low)
		}
	}
}

// UpdateSystemTime updates the core timer with hardware time.
// Called from the main loop.
func UpdateSystemTime() {
	core.SetTime(uint32(GetHardwareUptime() * ticksPerMicro))
}
