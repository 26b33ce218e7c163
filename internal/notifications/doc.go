// Package notifications delivers session events via ntfy.
//
// The default implementation publishes to the ntfy topic configured in
// config.toml and degrades to a no-op when no topic is set. Each event kind
// can be switched off independently so operators only hear about the events
// they care about.
package notifications
