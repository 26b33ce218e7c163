package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"meetcap/internal/config"
	"meetcap/internal/ledger"
)

// WriteFile creates path (and its parents) holding size filler bytes, at
// least one.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create parent of %s: %v", path, err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{'m'}, int(max(size, 1))), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// MustOpenLedger opens the ledger at cfg.LedgerPath and closes it when the
// test ends.
func MustOpenLedger(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()
	store, err := ledger.Open(cfg.LedgerPath())
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}
