package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SERVER_API", "GMAIL_USER_EMAIL", "GMAIL_USER_PASSWORD", "MAX_WAITING_TIME_IN_MINUTES",
		"DEEPGRAM_API_KEY", "GOOGLE_API_KEY", "OPENROUTER_API_KEY", "MEETCAP_API_TOKEN",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

type testEnv struct {
	baseDir    string
	configPath string
	stateDir   string
}

// setupTestEnv writes a config whose directories live under a temp dir. The
// scheduler is disabled so no server_api is needed; extra is appended verbatim.
func setupTestEnv(t *testing.T, extra string) *testEnv {
	t.Helper()
	clearConfigEnv(t)
	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	env := &testEnv{
		baseDir:    base,
		configPath: filepath.Join(base, "config.toml"),
		stateDir:   filepath.Join(base, "state"),
	}
	content := fmt.Sprintf(`[paths]
storage_dir = %q
state_dir = %q
log_dir = %q

[scheduler]
enabled = false

[processing]
enabled = false
%s
`, filepath.Join(base, "storage"), env.stateDir, filepath.Join(base, "logs"), extra)
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return env
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	full := args
	if configPath != "" {
		full = append([]string{"--config", configPath}, args...)
	}
	cmd.SetArgs(full)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q\noutput:\n%s", needle, haystack)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
