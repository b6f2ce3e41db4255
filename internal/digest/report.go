package digest

import "time"

// State is the phase of a digest run.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateRendering
	StateDispatching
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateRendering:
		return "rendering"
	case StateDispatching:
		return "dispatching"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Outcome summarizes how a run ended.
type Outcome string

const (
	// OutcomeCompleted means every subscriber was attempted. Individual
	// sends may still have failed.
	OutcomeCompleted Outcome = "completed"
	// OutcomeNothingToSend means there were no upcoming games or no
	// subscribers. It is a success.
	OutcomeNothingToSend Outcome = "nothing_to_send"
	// OutcomeAborted means the run was cancelled or timed out mid-dispatch.
	OutcomeAborted Outcome = "aborted"
	// OutcomeFailed means the run could not fetch or render.
	OutcomeFailed Outcome = "failed"
)

// Failure is one recipient that could not be sent to.
type Failure struct {
	Recipient string `json:"recipient"`
	Reason    string `json:"reason"`
}

// Report is the result of one run. It is not persisted.
type Report struct {
	Outcome    Outcome   `json:"outcome"`
	Reason     string    `json:"reason,omitempty"`
	Games      int       `json:"games"`
	Attempted  int       `json:"attempted"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Failures   []Failure `json:"failures,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// EventType identifies an Event.
type EventType string

const (
	EventStarted       EventType = "started"
	EventNothingToSend EventType = "nothing_to_send"
	EventSent          EventType = "sent"
	EventFailed        EventType = "failed"
	EventFinished      EventType = "finished"
)

// Event is emitted to observers while a run progresses.
type Event struct {
	Type      EventType `json:"type"`
	Recipient string    `json:"recipient,omitempty"`
	Error     string    `json:"error,omitempty"`
	Message   string    `json:"message,omitempty"`
	Report    *Report   `json:"report,omitempty"`
	Time      time.Time `json:"time"`
}

// Observer receives run events synchronously, in order. Implementations
// must not block.
type Observer interface {
	OnDigestEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnDigestEvent(e Event) {
	f(e)
}
