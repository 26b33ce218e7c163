package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestMeetingIDFromLink(t *testing.T) {
	tests := []struct {
		link string
		want string
	}{
		{"https://meet.google.com/abc-defg-hij", "abc-defg-hij"},
		{"https://meet.google.com/abc-defg-hij/", "abc-defg-hij"},
		{"https://meet.google.com/abc-defg-hij?authuser=1#x", "abc-defg-hij"},
		{"  http://meet.example.org/rooms/weekly.sync  ", "weekly.sync"},
	}
	for _, tc := range tests {
		got, err := MeetingIDFromLink(tc.link)
		if err != nil {
			t.Fatalf("MeetingIDFromLink(%q): %v", tc.link, err)
		}
		if got != tc.want {
			t.Fatalf("MeetingIDFromLink(%q) = %q, want %q", tc.link, got, tc.want)
		}
	}
}

func TestMeetingIDFromLinkRejects(t *testing.T) {
	for _, link := range []string{
		"",
		"meet.google.com/abc",
		"ftp://meet.google.com/abc",
		"https://meet.google.com",
		"https://meet.google.com/",
		"https://meet.google.com/..",
		"https://meet.google.com/a%20b",
	} {
		if _, err := MeetingIDFromLink(link); !errors.Is(err, ErrInvalidLink) {
			t.Fatalf("MeetingIDFromLink(%q): expected ErrInvalidLink, got %v", link, err)
		}
	}
}

func TestNewDescriptorNormalizes(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.FixedZone("EST", -5*3600))
	desc, err := NewDescriptor(" https://meet.google.com/abc-defg-hij ", " alice ", " t1 ", "/data", now)
	if err != nil {
		t.Fatalf("NewDescriptor: %v", err)
	}
	if desc.MeetingID != "abc-defg-hij" || desc.Username != "alice" || desc.TaskID != "t1" {
		t.Fatalf("unexpected descriptor %+v", desc)
	}
	if desc.Link != "https://meet.google.com/abc-defg-hij" {
		t.Fatalf("link not trimmed: %q", desc.Link)
	}
	if desc.CreatedAt.Location() != time.UTC || !desc.CreatedAt.Equal(now) {
		t.Fatalf("created_at = %v", desc.CreatedAt)
	}
}

func TestLayoutPrepareClearsScreenshots(t *testing.T) {
	root := t.TempDir()
	layout := NewLayout(root, "abc")
	if layout.Root != filepath.Join(root, "abc") {
		t.Fatalf("root = %q", layout.Root)
	}
	if err := os.MkdirAll(layout.Screenshots, 0o755); err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(layout.Screenshots, "001_old.png")
	if err := os.WriteFile(stale, []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}
	keep := filepath.Join(layout.Root, "process.log")
	if err := os.WriteFile(keep, []byte("log"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := layout.Prepare(); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("stale screenshot survived: %v", err)
	}
	if _, err := os.Stat(keep); err != nil {
		t.Fatalf("process log removed: %v", err)
	}
	for _, dir := range []string{layout.Screenshots, layout.Recordings, layout.Logs, layout.Transcripts} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("%s not created: %v", dir, err)
		}
	}
	if filepath.Dir(layout.VideoPath()) != layout.Recordings || filepath.Dir(layout.FlagPath()) != layout.Recordings {
		t.Fatalf("capture paths outside recordings: %s %s", layout.VideoPath(), layout.FlagPath())
	}
}
