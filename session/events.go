package session

import (
	"time"

	"murmur/delivery"
)

type State string

const (
	Idle       State = "idle"
	Recording  State = "recording"
	Processing State = "processing"
	Delivering State = "delivering"
)

type EventKind string

const (
	RecordingStarted       EventKind = "recording_started"
	RecordingStopped       EventKind = "recording_stopped"
	ProcessingStarted      EventKind = "processing_started"
	TranscriptionSucceeded EventKind = "transcription_succeeded"
	TranscriptionFailed    EventKind = "transcription_failed"
	DeliverySucceeded      EventKind = "delivery_succeeded"
	DeliveryFailed         EventKind = "delivery_failed"
	CaptureFailed          EventKind = "capture_failed"
	RecordingEmpty         EventKind = "recording_empty"
)

// Event is a snapshot handed to observers; it shares nothing with the
// orchestrator's own state.
type Event struct {
	Kind    EventKind
	Session string
	At      time.Time
	// State is the state the orchestrator is in once the event is emitted.
	State State

	// RecordingStopped
	Duration time.Duration
	// TranscriptionSucceeded
	Chars int
	Text  string
	// DeliverySucceeded, DeliveryFailed
	Method   delivery.Method
	Fallback bool
	// *Failed
	Reason  string
	ErrKind string
}

// Failure reports whether the event ends a cycle unsuccessfully.
func (e Event) Failure() bool {
	switch e.Kind {
	case TranscriptionFailed, DeliveryFailed, CaptureFailed:
		return true
	}
	return false
}

// Observer receives events on its own goroutine. Slow or panicking
// observers lose events; they never stall the orchestrator.
type Observer interface {
	Notify(Event)
}

type ObserverFunc func(Event)

func (f ObserverFunc) Notify(e Event) { f(e) }

type Action string

const (
	ActionStarted  Action = "started"
	ActionStopping Action = "stopping"
	ActionBusy     Action = "busy"
	ActionFailed   Action = "failed"
)

// Ack answers a toggle request.
type Ack struct {
	Action Action
	State  State
	Reason string
}

type Status struct {
	State     State
	Since     time.Time
	Elapsed   time.Duration
	Session   string
	Provider  string
	LastError string
	Cycles    int
}
