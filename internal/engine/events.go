package engine

// #region event-types

// EventStatus is the caller-visible status of a progress event.
type EventStatus string

const (
	EventInProgress EventStatus = "in_progress"
	EventComplete   EventStatus = "complete"
	EventDegraded   EventStatus = "degraded"
	EventFailed     EventStatus = "failed"
	EventCancelled  EventStatus = "cancelled"
)

// Terminal reports whether the status ends the event stream for a turn.
func (s EventStatus) Terminal() bool {
	return s != EventInProgress
}

// Stage names, emitted in strict pipeline order within a turn.
const (
	StageRetrieve = "retrieve"
	StageDraft    = "draft"
	StageCritique = "critique"
	StageModerate = "moderate"
	StageReport   = "report"
)

// EventError describes the failing stage on a failed terminal event.
type EventError struct {
	Message string `json:"message"`
	Stage   string `json:"stage"`
}

// ProgressEvent is one entry in a turn's live event stream. Exactly one
// terminal event is emitted per turn, always last.
type ProgressEvent struct {
	Status  EventStatus    `json:"status"`
	Stage   string         `json:"stage"`
	Message string         `json:"message"`
	Round   int            `json:"round,omitempty"`
	Final   *FinalResponse `json:"final_response,omitempty"`
	Timings []StageTiming  `json:"timings,omitempty"` // terminal events only
	Err     *EventError    `json:"error,omitempty"`
}

// #endregion event-types

// #region emitter

// emitter pushes ordered events into a turn's stream and guards the
// exactly-one-terminal invariant.
type emitter struct {
	ch       chan ProgressEvent
	terminal bool
}

func newEmitter(buffer int) *emitter {
	return &emitter{ch: make(chan ProgressEvent, buffer)}
}

// emit delivers an event. Events after the terminal one are dropped.
func (e *emitter) emit(ev ProgressEvent) {
	if e.terminal {
		return
	}
	if ev.Status.Terminal() {
		e.terminal = true
	}
	e.ch <- ev
	if e.terminal {
		close(e.ch)
	}
}

// progress is shorthand for an in_progress event.
func (e *emitter) progress(stage, message string, round int) {
	e.emit(ProgressEvent{Status: EventInProgress, Stage: stage, Message: message, Round: round})
}

// #endregion emitter
