package pipeline

import "time"

type EventType string

const (
	EventStage      EventType = "stage"
	EventShotStatus EventType = "shot_status"
	EventShotDone   EventType = "shot_done"
	EventShotError  EventType = "shot_error"
	EventComplete   EventType = "complete"
	EventFatalError EventType = "fatal_error"
)

func (e EventType) String() string {
	return string(e)
}

func (e EventType) Terminal() bool {
	return e == EventComplete || e == EventFatalError
}

type Stage string

const (
	StageAnalysis       Stage = "analysis"
	StageScript         Stage = "script"
	StageComposition    Stage = "composition"
	StageShotGeneration Stage = "shot_generation"
)

func (s Stage) String() string {
	return string(s)
}

const (
	StageStarted   = "started"
	StageCompleted = "completed"

	ShotSubmitting = "submitting"
	ShotPolling    = "polling"
	ShotDone       = "done"
	ShotError      = "error"
)

// Event is one progress message of a run. Shot indexes start at 1.
type Event struct {
	Type   EventType `json:"type"`
	RunID  string    `json:"run_id"`
	Stage  Stage     `json:"stage,omitempty"`
	Shot   int       `json:"shot,omitempty"`
	Status string    `json:"status,omitempty"`
	Data   any       `json:"data,omitempty"`
	Error  string    `json:"error,omitempty"`
	At     time.Time `json:"at"`
}

func FatalEvent(runID string, stage Stage, err error) Event {
	return Event{Type: EventFatalError, RunID: runID, Stage: stage, Error: err.Error(), At: time.Now()}
}
