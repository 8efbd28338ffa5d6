package progress

import (
	"fmt"
	"time"
)

// Kind names an event variant.
type Kind string

const (
	KindConnected Kind = "connected"
	KindProgress  Kind = "progress"
	KindCompleted Kind = "completed"
	KindFailed    Kind = "failed"
	KindClosed    Kind = "closed"
)

// StatusUnknown is reported when a frame carries no recognizable status.
const StatusUnknown = "unknown"

// Event is one normalized update. The set of implementations is closed:
// Connected, Progress, Completed, Failed, and Closed.
type Event interface {
	Kind() Kind
	sealed()
}

// Connected reports that the progress stream is open.
type Connected struct{}

// Progress is a non-terminal update. Status is preserved verbatim (lowercased)
// so presenters can branch on "starting", "processing", "zipping" and so on.
type Progress struct {
	Status          string
	Percent         float64
	HasPercent      bool
	DownloadedBytes int64
	TotalBytes      int64
	Speed           float64 // bytes per second, 0 when unknown
	SpeedText       string  // original speed text when the backend sent a string
	ETA             time.Duration
	HasETA          bool
	Message         string
}

// Completed terminates a job successfully.
type Completed struct {
	Filename    string
	DownloadURL string
	Title       string
}

// Failed terminates a job with a backend or transport error.
type Failed struct {
	Message string
}

// Closed reports that the stream ended before a terminal event. The outcome of
// the job is unknown.
type Closed struct {
	Reason string
}

func (Connected) Kind() Kind { return KindConnected }
func (Progress) Kind() Kind  { return KindProgress }
func (Completed) Kind() Kind { return KindCompleted }
func (Failed) Kind() Kind    { return KindFailed }
func (Closed) Kind() Kind    { return KindClosed }

func (Connected) sealed() {}
func (Progress) sealed()  {}
func (Completed) sealed() {}
func (Failed) sealed()    {}
func (Closed) sealed()    {}

// IsTerminal reports whether ev ends a job's stream.
func IsTerminal(ev Event) bool {
	switch ev.(type) {
	case Completed, Failed, Closed:
		return true
	default:
		return false
	}
}

// Describe renders a short human-readable summary used in logs.
func Describe(ev Event) string {
	switch e := ev.(type) {
	case Connected:
		return "connected"
	case Progress:
		if e.HasPercent {
			return fmt.Sprintf("%s %.1f%%", e.Status, e.Percent)
		}
		return e.Status
	case Completed:
		return "completed " + e.Filename
	case Failed:
		return "failed: " + e.Message
	case Closed:
		return "closed: " + e.Reason
	case nil:
		return "<nil>"
	default:
		return string(ev.Kind())
	}
}
