package main

import "testing"

func TestStopWhenDaemonNotRunning(t *testing.T) {
	env := setupTestEnv(t, "")
	out, _, err := runCLI(t, []string{"stop"}, env.configPath)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, out, "not running")
}
