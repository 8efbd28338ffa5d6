// Package orchestrator drives one download job at a time through its
// lifecycle: submit to the backend, stream progress over a transport,
// normalize frames into events, and fan them out to subscribers.
//
// The Orchestrator owns the active job record and the transport connection.
// Submitting a new job cancels the previous one; Cancel tears the stream down
// synchronously and discards anything of the cancelled job still queued for
// subscribers.
package orchestrator
