package orchestrator

import (
	"context"
	"errors"
	"time"

	"mvdown/internal/backend"
	"mvdown/internal/progress"
)

// State is the lifecycle state of the active job.
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StateStreaming  State = "streaming"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateClosed     State = "closed"
)

// Active reports whether the state holds network resources.
func (s State) Active() bool {
	return s == StateSubmitting || s == StateStreaming
}

// Terminal reports whether the job reached an end state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateClosed
}

// ErrCancelled is returned by Submit and Attach when the job was cancelled or
// superseded before streaming began.
var ErrCancelled = errors.New("job cancelled")

// Job is a snapshot of the active or most recent job.
type Job struct {
	ID        string
	SourceURL string
	FormatID  string
	State     State
	Transport string
	StartedAt time.Time

	Status     string
	Percent    float64
	HasPercent bool

	// Result is set once the job completes.
	Result *progress.Completed
	// Error holds the failure or close reason for Failed and Closed jobs.
	Error string
}

// Update is one event delivered to subscribers.
type Update struct {
	// Generation increases with every submit, attach and cancel.
	Generation uint64
	JobID      string
	Event      progress.Event
}

// Submitter starts jobs on the backend. *backend.Client implements it.
type Submitter interface {
	SubmitDownload(ctx context.Context, req backend.DownloadRequest) (backend.DownloadResponse, error)
}
