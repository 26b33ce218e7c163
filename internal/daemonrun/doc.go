// Package daemonrun assembles the daemon process: logging with retention,
// the session ledger, the workflow manager with its post-processing pipeline,
// and signal-driven shutdown.
package daemonrun
