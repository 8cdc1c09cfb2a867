package media

import (
	"time"

	"github.com/reusedev/shot-hub/internal/consts"
)

type Params struct {
	Resolution      string `json:"resolution"`
	AspectRatio     string `json:"aspect_ratio"`
	DurationSeconds int    `json:"duration"`
}

type SubmitRequest struct {
	Kind   consts.MediaKind
	Prompt string
	// ReferenceImages holds remote URLs or data URIs.
	ReferenceImages []string
	Params          Params
}

type PollOptions struct {
	Interval    time.Duration
	MaxAttempts int
	// MaxWait bounds the wall-clock time of the whole poll; zero means attempts only.
	MaxWait time.Duration
}

func (o PollOptions) withDefaults() PollOptions {
	if o.Interval <= 0 {
		o.Interval = 5 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 1
	}
	return o
}

type taskState int

const (
	statePending taskState = iota
	stateSucceeded
	stateFailed
)

type pollResult struct {
	State  taskState
	URL    string
	Reason string
}

const (
	ActionSubmit = "submit"
	ActionPoll   = "poll"
)

// InvokeRecord describes one round trip to the provider.
type InvokeRecord struct {
	ProviderTaskID string
	Supplier       string
	Model          string
	Action         string
	StatusCode     int
	FailedRespBody string
	Duration       time.Duration
}

type InvokeRecorder interface {
	RecordInvoke(record InvokeRecord)
}
