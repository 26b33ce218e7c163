package capture

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestExecRunnerQuitsThroughStdin(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "fake-ffmpeg", "echo recording\nread key\necho \"got $key\"\nexit 0\n")
	out := filepath.Join(dir, "recordings", "meeting.mp4")
	logPath := filepath.Join(dir, "logs", "ffmpeg.log")

	rec := NewRecorder(nil, WithBinary(script), WithSweeper(nil), WithLogPath(logPath), WithTimeouts(5*time.Second, time.Second))
	artifact, err := rec.Start(context.Background(), out)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	res, err := rec.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if res.Tier != TierGraceful || !res.Exited {
		t.Fatalf("unexpected result %+v", res)
	}
	data, err := os.ReadFile(artifact.LogPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "got q") {
		t.Fatalf("quit key not delivered, log=%q", data)
	}
}

func TestExecRunnerTerminatesProcessGroup(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "stubborn-ffmpeg", "sleep 30\n")
	out := filepath.Join(dir, "meeting.mp4")

	rec := NewRecorder(nil, WithBinary(script), WithSweeper(nil), WithTimeouts(200*time.Millisecond, 5*time.Second))
	if _, err := rec.Start(context.Background(), out); err != nil {
		t.Fatalf("Start: %v", err)
	}
	res, err := rec.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if res.Tier != TierTerminate || !res.Exited {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestExecRunnerCheckCapturesStderr(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "ffmpeg", "echo 'Invalid data found' >&2\nexit 1\n")
	stderr, err := NewExecRunner().Check(context.Background(), script, nil)
	if err == nil {
		t.Fatal("expected non-zero exit")
	}
	if !strings.Contains(string(stderr), "Invalid data found") {
		t.Fatalf("stderr = %q", stderr)
	}
}

func TestVerifyGivesUpOnHungDecoder(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "hung-ffmpeg", "sleep 3600\n")
	out := filepath.Join(dir, "meeting.mp4")
	if err := os.WriteFile(out, []byte("partial"), 0o644); err != nil {
		t.Fatalf("write output: %v", err)
	}

	rec := NewRecorder(nil, WithBinary(script), WithSweeper(nil), WithVerifyTimeout(300*time.Millisecond))
	done := make(chan bool, 1)
	go func() {
		done <- rec.Verify(context.WithoutCancel(context.Background()), out)
	}()
	select {
	case ok := <-done:
		if ok {
			t.Fatal("timed out decode check must fail verification")
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Verify did not return after the decode timeout")
	}
}
