// Package logs tails meetcap log files for the CLI.
//
// Tail reads the last N lines of a file or everything after a byte offset and
// can wait for new lines to arrive. Follow builds on it for "meetcap logs -f",
// polling until the caller's context ends. Reads are line-bounded so large
// ffmpeg logs never load into memory at once.
package logs
