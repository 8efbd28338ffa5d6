// Package presenter projects orchestrator updates onto the terminal and onto
// background notifications.
//
// While in the foreground the presenter draws a progress bar (or plain status
// lines when output is not a terminal). In the background it publishes rate
// limited progress notifications instead, seeded from the last known percent
// and status so switching mid-transfer shows where the job is. Completion and
// failure are always announced through both channels.
package presenter
