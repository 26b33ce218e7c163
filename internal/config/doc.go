// Package config loads, normalizes, and validates meetcap configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// SERVER_API, GMAIL_USER_EMAIL and MAX_WAITING_TIME_IN_MINUTES. The Config type
// centralizes every knob the daemon and CLI need.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
