// Package services defines shared utilities consumed by the capture session
// steps and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp meeting IDs, task IDs, session states, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so callers can classify
//     failures (fatal vs recorded) with errors.Is.
//
// Use these helpers when wiring new session logic so error handling and
// observability stay uniform across the recorder.
package services
