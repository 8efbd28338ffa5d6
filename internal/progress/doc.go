// Package progress turns loosely typed progress frames sent by the download
// backend into a closed set of events.
//
// Frames arrive over SSE or WebSocket as JSON objects whose fields drift
// between backend versions: percent may be a number or "42%", speed may be raw
// bytes per second or "2.5MiB/s", and the kind of frame is carried in an
// "event", "status", or "type" field. Normalize never fails; a frame it cannot
// read becomes an informational Progress event so a stream survives a single
// bad payload.
package progress
