package core

// EventKind identifies an advisory or status event raised by the controller
type EventKind uint8

const (
	EventFrameRateSet EventKind = iota + 1
	EventTimingFallback
	EventExposureSet
	EventExposureClamped
	EventFrameRateAdjusted
	EventZStepsSet
	EventTimedDurationSet
	EventVerticalPixelsSet
	EventReadoutModeSet
	EventRunModeSet
	EventSimModeSet
	EventLaserModeSet
	EventCaptureStarted
	EventCaptureStopped
	EventBlankingChanged
	EventZStackFinished
	EventTimedFinished
	EventStatus
	EventInputRejected
)

// Event carries the values a transport needs to render an advisory
type Event struct {
	Kind  EventKind
	Value float64 // frame rate or exposure seconds
	Ticks uint32  // frame, exposure or duration ticks
	Mode  uint8   // mode selection, count, or boolean state

	// Rate is the frame rate a clamped exposure allows
	Rate float64
}

// eventQueueSize holds every event one host record can raise: all
// thirteen commands with their fallback and clamp advisories, plus both
// completion notices and a rejection.
const eventQueueSize = 32

// eventQueue is a fixed ring; when full the oldest event is dropped
type eventQueue struct {
	buf   [eventQueueSize]Event
	head  int
	count int
}

func (q *eventQueue) push(e Event) {
	if q.count == eventQueueSize {
		q.head = (q.head + 1) % eventQueueSize
		q.count--
	}
	q.buf[(q.head+q.count)%eventQueueSize] = e
	q.count++
}

func (q *eventQueue) pop() (Event, bool) {
	if q.count == 0 {
		return Event{}, false
	}
	e := q.buf[q.head]
	q.head = (q.head + 1) % eventQueueSize
	q.count--
	return e, true
}

// Reasons carried in EventInputRejected
const (
	RejectTooLong uint8 = iota + 1
	RejectEmpty
	RejectUnknownCommand
	RejectMalformed
)
