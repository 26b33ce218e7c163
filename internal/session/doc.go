// Package session runs one meeting capture end to end.
//
// A session moves through an explicit state machine:
//
//	Created → AudioReady → BrowserReady → (Authenticated) → Joined →
//	Recording → Monitoring → Stopping → Verified → {Completed | Failed}
//
// Transition is the pure rule table; Orchestrator executes the step for the
// current state and feeds its outcome back through Transition until a terminal
// state is reached. Once capture or the browser has started, every path passes
// through Stopping and Verified, which stop the capture, verify the artifact,
// and release the browser in that order.
//
// Manager dispatches orchestrators in their own goroutines, keeps at most one
// per meeting id (in process and across processes via a lock file), records
// progress in the ledger, and hands finished artifacts to post-processing.
package session
