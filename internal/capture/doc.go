// Package capture supervises the ffmpeg process that records a meeting.
//
// Recorder starts ffmpeg against the virtual X display and the meeting audio
// monitor, marks the capture as live with a flag file next to the output, and
// stops it with a bounded escalation: "q" on stdin, then SIGTERM to the
// process group, then SIGKILL. The flag file is removed only once the process
// has actually exited. Verify runs a null decode pass over the finished file.
//
// The process itself sits behind the Runner and Handle interfaces so tests can
// script exits against a fake clock.
package capture
