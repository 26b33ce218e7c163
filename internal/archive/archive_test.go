package archive

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"meetcap/internal/config"
	"meetcap/internal/services"
	"meetcap/internal/testsupport"
)

func sessionFiles(t *testing.T) (string, []string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "abc-defg-hij")
	files := []string{
		filepath.Join(root, "recordings", "meeting.mp4"),
		filepath.Join(root, "recordings", "audio.mp3"),
		filepath.Join(root, "transcripts", "raw_transcript.txt"),
	}
	for i, f := range files {
		testsupport.WriteFile(t, f, int64(128*(i+1)))
	}
	return root, files
}

func TestKeyMirrorsLayout(t *testing.T) {
	a := NewArchiver(nil, "/meetcap/")
	got := a.Key("abc-defg-hij", "/data/abc-defg-hij/transcripts/raw_transcript.txt")
	if got != "meetcap/abc-defg-hij/transcripts/raw_transcript.txt" {
		t.Fatalf("key = %q", got)
	}
	if got := NewArchiver(nil, "").Key("abc-defg-hij", "meeting.mp4"); got != "abc-defg-hij/meeting.mp4" {
		t.Fatalf("key without prefix = %q", got)
	}
}

func TestLocalArchive(t *testing.T) {
	_, files := sessionFiles(t)
	dest := t.TempDir()
	provider, err := NewLocalProvider(dest)
	if err != nil {
		t.Fatalf("NewLocalProvider: %v", err)
	}
	a := NewArchiver(provider, "meetcap")
	if err := a.Archive(context.Background(), "abc-defg-hij", files); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	for _, f := range files {
		copied := filepath.Join(dest, "meetcap", "abc-defg-hij", filepath.Base(filepath.Dir(f)), filepath.Base(f))
		want, _ := os.ReadFile(f)
		got, err := os.ReadFile(copied)
		if err != nil {
			t.Fatalf("missing archived copy: %v", err)
		}
		if string(got) != string(want) {
			t.Fatalf("archived copy of %s differs", f)
		}
	}
}

func TestArchiveAttemptsEveryFile(t *testing.T) {
	_, files := sessionFiles(t)
	files = append([]string{filepath.Join(t.TempDir(), "missing.mp4")}, files...)
	dest := t.TempDir()
	provider, _ := NewLocalProvider(dest)
	err := NewArchiver(provider, "").Archive(context.Background(), "abc-defg-hij", files)
	if !errors.Is(err, services.ErrTransient) || !strings.Contains(err.Error(), "1 of 4") {
		t.Fatalf("expected partial failure, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(dest, "abc-defg-hij", "transcripts", "raw_transcript.txt")); statErr != nil {
		t.Fatalf("later files should still be archived: %v", statErr)
	}
}

func TestLocalProviderRejectsEscapingKeys(t *testing.T) {
	provider, _ := NewLocalProvider(t.TempDir())
	_, files := sessionFiles(t)
	if err := provider.Upload(context.Background(), files[0], "../outside.mp4"); err == nil {
		t.Fatal("expected escaping key to be rejected")
	}
}

func TestNewFromConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	a, err := New(context.Background(), cfg)
	if err != nil || a != nil {
		t.Fatalf("disabled archive should be nil, got %v %v", a, err)
	}

	cfg.Archive.Enabled = true
	cfg.Archive.Provider = config.ArchiveProviderLocal
	a, err = New(context.Background(), cfg)
	if err != nil || a == nil || a.provider.Name() != "local" {
		t.Fatalf("local archive: %v %v", a, err)
	}

	cfg.Archive.Provider = config.ArchiveProviderS3
	cfg.Archive.Bucket = ""
	if _, err := New(context.Background(), cfg); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for missing bucket, got %v", err)
	}
}

func TestS3ProviderUploadsToEndpoint(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		mu.Unlock()
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	provider, err := NewS3Provider(context.Background(), S3Config{
		Bucket:          "recordings",
		Region:          "us-east-1",
		Endpoint:        server.URL,
		UsePathStyle:    true,
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
	})
	if err != nil {
		t.Fatalf("NewS3Provider: %v", err)
	}
	_, files := sessionFiles(t)
	if err := NewArchiver(provider, "meetcap").Archive(context.Background(), "abc-defg-hij", files[2:]); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	want := "PUT /recordings/meetcap/abc-defg-hij/transcripts/raw_transcript.txt"
	if len(paths) != 1 || paths[0] != want {
		t.Fatalf("requests = %v, want [%s]", paths, want)
	}
}
