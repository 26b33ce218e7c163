package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogsShowsDaemonAndSessionLogs(t *testing.T) {
	env := setupTestEnv(t, "")
	writeFile(t, filepath.Join(env.baseDir, "logs", "meetcap.log"), "first\nsecond\nthird\n")

	out, _, err := runCLI(t, []string{"logs", "-n", "2"}, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if strings.TrimSpace(out) != "second\nthird" {
		t.Fatalf("unexpected output %q", out)
	}

	sessionLogs := filepath.Join(env.baseDir, "storage", "abc-defg-hij", "logs")
	if err := os.MkdirAll(sessionLogs, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, filepath.Join(sessionLogs, "ffmpeg.log"), "frame=  100\n")
	out, _, err = runCLI(t, []string{"logs", "--meeting", "abc-defg-hij", "--ffmpeg"}, env.configPath)
	if err != nil {
		t.Fatalf("logs --meeting: %v", err)
	}
	requireContains(t, out, "frame=  100")

	_, errOut, err := runCLI(t, []string{"logs", "--meeting", "abc-defg-hij"}, env.configPath)
	if err != nil {
		t.Fatalf("logs for missing process.log: %v", err)
	}
	requireContains(t, errOut, "no log lines")
}

func TestLogsRejectsBadFlags(t *testing.T) {
	env := setupTestEnv(t, "")
	if _, _, err := runCLI(t, []string{"logs", "--ffmpeg"}, env.configPath); err == nil {
		t.Fatal("expected --ffmpeg without --meeting to fail")
	}
	if _, _, err := runCLI(t, []string{"logs", "--meeting", "../etc"}, env.configPath); err == nil {
		t.Fatal("expected path traversal to be rejected")
	}
}
