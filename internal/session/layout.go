package session

import (
	"fmt"
	"os"
	"path/filepath"

	"meetcap/internal/capture"
)

// Layout is the on-disk directory tree of one session:
//
//	<storage>/<meetingId>/{screenshots,recordings,logs,transcripts}/
type Layout struct {
	Root        string
	Screenshots string
	Recordings  string
	Logs        string
	Transcripts string
}

// NewLayout returns the layout for meetingID under storageRoot.
func NewLayout(storageRoot, meetingID string) Layout {
	root := filepath.Join(storageRoot, meetingID)
	return Layout{
		Root:        root,
		Screenshots: filepath.Join(root, "screenshots"),
		Recordings:  filepath.Join(root, "recordings"),
		Logs:        filepath.Join(root, "logs"),
		Transcripts: filepath.Join(root, "transcripts"),
	}
}

// VideoPath is the capture output file.
func (l Layout) VideoPath() string { return filepath.Join(l.Recordings, "meeting.mp4") }

// AudioPath is the audio track extracted for transcription.
func (l Layout) AudioPath() string { return filepath.Join(l.Recordings, "audio.mp3") }

// FlagPath is the liveness flag present while capture runs.
func (l Layout) FlagPath() string { return filepath.Join(l.Recordings, capture.FlagFileName) }

// CaptureLogPath receives ffmpeg output.
func (l Layout) CaptureLogPath() string { return filepath.Join(l.Logs, "ffmpeg.log") }

// ProcessLogPath receives the session's own log lines.
func (l Layout) ProcessLogPath() string { return filepath.Join(l.Root, "process.log") }

// LockPath guards against a second process running the same meeting.
func (l Layout) LockPath() string { return filepath.Join(l.Root, "session.lock") }

// Prepare creates the directories and clears screenshots left by an earlier
// run of the same meeting.
func (l Layout) Prepare() error {
	if err := os.RemoveAll(l.Screenshots); err != nil {
		return fmt.Errorf("clear screenshots: %w", err)
	}
	for _, dir := range []string{l.Root, l.Screenshots, l.Recordings, l.Logs, l.Transcripts} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
