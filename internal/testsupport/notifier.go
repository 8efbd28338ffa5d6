package testsupport

import (
	"context"
	"sync"

	"mvdown/internal/notifications"
)

// Notification is one call captured by RecordingNotifier.
type Notification struct {
	Event   notifications.Event
	Payload notifications.Payload
}

// RecordingNotifier captures published notifications for assertions.
type RecordingNotifier struct {
	mu    sync.Mutex
	calls []Notification
	Err   error
}

// Publish implements notifications.Service.
func (r *RecordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := make(notifications.Payload, len(payload))
	for k, v := range payload {
		copied[k] = v
	}
	r.calls = append(r.calls, Notification{Event: event, Payload: copied})
	return r.Err
}

// Calls returns a copy of everything published so far.
func (r *RecordingNotifier) Calls() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.calls...)
}

// Events returns the event names published so far, in order.
func (r *RecordingNotifier) Events() []notifications.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notifications.Event, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c.Event)
	}
	return out
}
