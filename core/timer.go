package core

import "sync/atomic"

// TimerFreq is the trigger fabric tick rate (0.5 us per tick)
const (
	TimerFreq = 2000000
)

var (
	// written by the main loop (firmware) or the simulator clock, read
	// from the trigger interrupt and host goroutines
	systemTicks atomic.Uint32
	bootTime    uint32
)

// GetTime returns the current system time in timer ticks
func GetTime() uint32 {
	return systemTicks.Load()
}

// SetTime publishes the system time. The firmware calls it from
// UpdateSystemTime; the simulator from its virtual clock.
func SetTime(ticks uint32) {
	systemTicks.Store(ticks)
}

// GetUptime returns the ticks elapsed since TimerInit. It is only valid
// for one wrap of the 32-bit clock (about 35 minutes at 2MHz).
func GetUptime() uint32 {
	return GetTime() - bootTime
}

// TimerFromUS converts microseconds to timer ticks
func TimerFromUS(us uint32) uint32 {
	return uint32(uint64(us) * TimerFreq / 1000000)
}

// TimerToUS converts timer ticks to microseconds
func TimerToUS(ticks uint32) uint32 {
	return uint32(uint64(ticks) * 1000000 / TimerFreq)
}

// TimerInit records the boot time
func TimerInit() {
	bootTime = GetTime()
}

// ProcessTimers runs every scheduled timer that is due
func ProcessTimers() {
	currentTime = GetTime()
	TimerDispatch()
}
