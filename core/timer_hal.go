package core

// HardwareTimer identifies one of the period counters of the trigger fabric
type HardwareTimer uint8

const (
	// TimerExposure sets the camera exposure pulse length
	TimerExposure HardwareTimer = iota
	// TimerSLMWait sets the SLM settle wait after each exposure
	TimerSLMWait
	// TimerSLMTrigger sets the SLM trigger pulse width
	TimerSLMTrigger
	// TimerBlankingDelay delays laser blanking after exposure end
	TimerBlankingDelay
	// TimerStageTrigger sets the stage move pulse width
	TimerStageTrigger
	// TimerStageWait holds off exposures while the stage settles
	TimerStageWait

	NumHardwareTimers
)

var timerNames = [NumHardwareTimers]string{
	"exposure", "slm_wait", "slm_trigger", "blanking_delay", "stage_trigger", "stage_wait",
}

// String returns the timer name used in logs
func (t HardwareTimer) String() string {
	if t < NumHardwareTimers {
		return timerNames[t]
	}
	return "timer" + itoa(int(t))
}

// TimerDriver programs hardware timer periods. A period write takes effect
// on the timer's next reload, never mid-count.
type TimerDriver interface {
	WritePeriod(timer HardwareTimer, ticks uint32) error
}

// TriggerSource gates the trigger interrupt. While disabled the sequencer
// handler never runs.
type TriggerSource interface {
	Enable()
	Disable()
	Enabled() bool
}

// Display shows short status strings on a character LCD
type Display interface {
	Print(row, col uint8, text string)
}

type nopDisplay struct{}

func (nopDisplay) Print(row, col uint8, text string) {}
