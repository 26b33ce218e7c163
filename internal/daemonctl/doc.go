// Package daemonctl starts and stops a background "meetcap run" process.
//
// The daemon records its PID in the state directory; this package reads that
// file to tell whether the daemon is alive, launches a detached process when
// it is not, and stops it with SIGTERM followed by SIGKILL after a grace
// period. The daemon's own flock still guards against two instances.
package daemonctl
