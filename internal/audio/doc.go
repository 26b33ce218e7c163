// Package audio provisions the virtual PulseAudio graph a capture session
// records from.
//
// The Router tears down any modules a previous session left behind and then
// builds two null sinks (MeetingOutput for what the meeting plays, MicOutput
// as the recorder's microphone), a virtual source, the default device
// selection, and a low-latency loopback from the meeting monitor into the
// microphone sink. Every build step has a stable name so a failure can say
// exactly which pactl call broke.
package audio
