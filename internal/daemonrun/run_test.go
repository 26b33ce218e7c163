package daemonrun

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"meetcap/internal/config"
	"meetcap/internal/processing"
	"meetcap/internal/testsupport"
)

func TestEnsureCurrentLogPointer(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "meetcap-1.log")
	second := filepath.Join(dir, "meetcap-2.log")
	for _, path := range []string{first, second} {
		if err := os.WriteFile(path, []byte(filepath.Base(path)), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}

	if err := ensureCurrentLogPointer(dir, first); err != nil {
		t.Fatalf("first pointer: %v", err)
	}
	if err := ensureCurrentLogPointer(dir, second); err != nil {
		t.Fatalf("second pointer: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "meetcap.log"))
	if err != nil {
		t.Fatalf("read pointer: %v", err)
	}
	if string(data) != "meetcap-2.log" {
		t.Fatalf("pointer resolves to %q", data)
	}
}

func TestNewPostProcessorDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Processing.Enabled = false
	if post := NewPostProcessor(context.Background(), cfg, nil); post != nil {
		t.Fatalf("expected nil post-processor, got %T", post)
	}
	if post := NewPostProcessor(context.Background(), nil, nil); post != nil {
		t.Fatal("expected nil post-processor for nil config")
	}
}

func TestNewPostProcessorBuildsPipeline(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Processing.Enabled = true
	cfg.Archive.Enabled = true
	cfg.Archive.Provider = config.ArchiveProviderLocal

	post := NewPostProcessor(context.Background(), cfg, nil)
	if _, ok := post.(*processing.Pipeline); !ok {
		t.Fatalf("expected *processing.Pipeline, got %T", post)
	}
}

func TestRunRequiresConfig(t *testing.T) {
	if err := Run(context.Background(), nil, Options{}); err == nil {
		t.Fatal("expected error for nil config")
	}
}
