package testsupport

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"meetcap/internal/config"
)

// ConfigOption adjusts a test configuration.
type ConfigOption func(testing.TB, *config.Config)

// NewConfig returns the default configuration with every directory moved
// under a fresh t.TempDir. The API binds to an ephemeral port and the feed
// points at an address nothing listens on.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StorageDir = filepath.Join(root, "storage")
	cfg.Paths.StateDir = filepath.Join(root, "state")
	cfg.Paths.LogDir = filepath.Join(root, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Archive.LocalDir = filepath.Join(root, "archive")
	cfg.Feed.ServerAPI = "http://127.0.0.1:0"
	for _, opt := range opts {
		opt(t, &cfg)
	}
	return &cfg
}

// WithServerAPI points the feed client at url, usually an httptest server.
func WithServerAPI(url string) ConfigOption {
	return func(_ testing.TB, cfg *config.Config) {
		cfg.Feed.ServerAPI = url
	}
}

// WithStubbedBinaries puts no-op executables named names (ffmpeg and pactl
// when empty) first on PATH for the rest of the test.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(t testing.TB, cfg *config.Config) {
		t.Helper()
		if len(names) == 0 {
			names = []string{"ffmpeg", "pactl"}
		}
		bin := filepath.Join(filepath.Dir(cfg.Paths.StorageDir), "bin")
		if err := os.MkdirAll(bin, 0o755); err != nil {
			t.Fatalf("create stub dir: %v", err)
		}
		for _, name := range names {
			if err := os.WriteFile(filepath.Join(bin, name), []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
				t.Fatalf("write stub %s: %v", name, err)
			}
		}
		t.Setenv("PATH", strings.Join([]string{bin, os.Getenv("PATH")}, string(os.PathListSeparator)))
	}
}
