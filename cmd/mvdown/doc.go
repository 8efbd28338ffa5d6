// Package main hosts the mvdown CLI entrypoint and command graph.
//
// Commands translate terminal invocations into backend API calls: format
// discovery, download submission with live progress, re-attaching to a running
// job, server file management, and saving finished files locally. The
// dev-server command runs a local emulator of the backend for trying the CLI
// without a real server.
//
// Keep this package lean: behaviour lives in the internal packages and is
// surfaced here through commands and flags.
package main
