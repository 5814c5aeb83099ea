//go:build !tinygo

package core

// irqState stands in for the saved interrupt mask on the host, where the
// sequencer is driven from the simulator's scheduler instead of an ISR
type irqState uintptr

func disableInterrupts() irqState { return 0 }

func restoreInterrupts(irqState) {}
