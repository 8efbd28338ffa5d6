// Package notifications delivers download events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. Per-category switches (progress, completed, errors) suppress
// events the user opted out of, so callers can publish unconditionally.
package notifications
