// Package devserver is a local stand-in for the media backend. It implements
// the same HTTP API (formats, download, progress over SSE and WebSocket, file
// listing and deletion) with simulated jobs, so the CLI can be exercised
// without a real server.
//
// Jobs are scripted from the submitted URL: a URL containing "fail" ends in an
// error frame, one containing "drop" ends the stream without a terminal frame,
// and anything else completes after a short series of progress frames.
package devserver
