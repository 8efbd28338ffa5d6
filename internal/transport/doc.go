// Package transport opens the persistent progress stream for one backend job.
//
// Two wire formats are supported: Server-Sent Events (GET /api/progress/{id})
// and WebSocket (/ws/{id}). Auto prefers one and falls back to the other when
// the first cannot connect. Every implementation holds at most one live
// connection; Open on a busy transport tears the previous stream down first.
//
// Outcomes are kept distinct: a connect failure is the error returned from
// Open, a mid-stream I/O error arrives as SignalFailed, and an orderly close by
// the server arrives as SignalClosed. Close is idempotent and synchronous. It
// never produces a signal, and once it returns the channel handed out by Open
// is closed. Close also aborts an Open that is still connecting; that Open
// returns an ErrTransport error.
package transport
