// Package services defines shared error markers and context helpers consumed by
// the orchestrator, transports, and backend client.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, transport kinds, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent terminal job outcomes.
//
// Use these helpers when wiring new components so operational behaviour (error
// classification, observability) stays uniform across the client.
package services
