// Package daemon coordinates the long-running meetcap process.
//
// It wires configuration, the session ledger, the workflow manager, the feed
// scheduler and the HTTP API into a single lifecycle with flock-based locking
// to prevent multiple instances. Startup fails any session the previous
// process left unfinished and prunes old dispatch claims.
//
// Keep orchestration logic here: session steps live in internal/session and
// dispatch bookkeeping in internal/workflow, while the daemon focuses on
// startup, shutdown, and high level coordination.
package daemon
