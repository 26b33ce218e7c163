// Package logging builds the slog loggers meetcap writes through.
//
// Records go to a console handler (a header line plus indented fields) or to
// JSON. Session code tags lines with meeting, task and state fields via
// WithContext, and TeeLogger copies a session's records into its process.log.
package logging
