// Package workflow runs capture sessions on behalf of the scheduler, the HTTP
// API, and the record command.
//
// The Manager turns a dispatch request into a session: it derives the
// descriptor, prepares the per-meeting directory, takes the per-meeting lock,
// opens process.log, builds the session's collaborators, and runs the
// orchestrator in its own goroutine. Every state change lands in the ledger.
// When a session leaves a capture artifact behind, the configured
// post-processor runs next; its failures are logged and never change the
// session outcome.
//
// At most one session per meeting id runs at a time. The in-process active
// set enforces that inside one daemon and the flock on session.lock enforces
// it across processes.
package workflow
