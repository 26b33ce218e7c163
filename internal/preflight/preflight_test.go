package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"meetcap/internal/config"
	"meetcap/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckFeed_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/meeting-records" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`[{"start_time":"2026-03-01T09:00:00Z","google_meeting_link":"https://meet.google.com/abc-defg-hij","taskId":"t1","username":"alice"}]`))
	}))
	defer srv.Close()

	result := CheckFeed(context.Background(), srv.URL)
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if !strings.Contains(result.Detail, "1 upcoming") {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestCheckFeed_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	result := CheckFeed(context.Background(), srv.URL)
	if result.Passed {
		t.Fatal("expected failure for 502")
	}
	if !strings.Contains(result.Detail, "502") {
		t.Fatalf("expected status in detail, got %q", result.Detail)
	}
}

func TestCheckFeed_MissingURL(t *testing.T) {
	if result := CheckFeed(context.Background(), " "); result.Passed {
		t.Fatal("expected failure for missing URL")
	}
}

func TestCheckTranscription(t *testing.T) {
	if r := CheckTranscription(config.Transcription{Backend: config.TranscriberDeepgram}); r.Passed {
		t.Fatal("deepgram without key must fail")
	}
	if r := CheckTranscription(config.Transcription{Backend: config.TranscriberDeepgram, DeepgramAPIKey: "k"}); !r.Passed {
		t.Fatalf("deepgram with key must pass: %s", r.Detail)
	}

	t.Setenv("PATH", t.TempDir())
	if r := CheckTranscription(config.Transcription{Backend: config.TranscriberWhisperX}); r.Passed {
		t.Fatal("whisperx without uvx must fail")
	}
}

func TestCheckCredentials(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.Browser
		pass bool
	}{
		{"guest", config.Browser{}, true},
		{"complete", config.Browser{Email: "bot@example.com", Password: "pw"}, true},
		{"missing password", config.Browser{Email: "bot@example.com"}, false},
		{"missing email", config.Browser{Password: "pw"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CheckCredentials(tc.cfg); got.Passed != tc.pass {
				t.Fatalf("Passed = %v, want %v (%s)", got.Passed, tc.pass, got.Detail)
			}
		})
	}
}

func TestCheckArchive(t *testing.T) {
	if r := CheckArchive(config.Archive{}); !r.Passed || r.Detail != "Disabled" {
		t.Fatalf("disabled archive should pass, got %+v", r)
	}
	if r := CheckArchive(config.Archive{Enabled: true, Provider: config.ArchiveProviderS3}); r.Passed {
		t.Fatal("s3 without bucket must fail")
	}
	if r := CheckArchive(config.Archive{Enabled: true, Provider: config.ArchiveProviderLocal, LocalDir: filepath.Join(t.TempDir(), "later")}); !r.Passed {
		t.Fatalf("missing local dir is created on demand, got %+v", r)
	}
}

func TestCheckSystemDeps(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries("ffmpeg", "pactl", "chromium"))
	cfg.Processing.Enabled = true
	cfg.Transcription.Backend = config.TranscriberWhisperX

	statuses := CheckSystemDeps(cfg)
	byName := map[string]bool{}
	for _, s := range statuses {
		byName[s.Name] = s.Available
	}
	if !byName["FFmpeg"] || !byName["pactl"] || !byName["Chrome"] {
		t.Fatalf("expected stubbed binaries to be available: %#v", statuses)
	}
	if available, ok := byName["uvx"]; !ok || available {
		t.Fatalf("uvx should be required and missing: %#v", statuses)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_MinimalConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	cfg.Scheduler.Enabled = false
	cfg.Processing.Enabled = false
	cfg.Archive.Enabled = false

	results := RunAll(context.Background(), cfg)
	// storage + state + sign-in
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d: %+v", len(results), results)
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures %+v", failed)
	}
}

func TestRunAll_IncludesFeedWhenSchedulerEnabled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithServerAPI(srv.URL))
	cfg.Scheduler.Enabled = true
	cfg.Processing.Enabled = false

	results := RunAll(context.Background(), cfg)
	found := false
	for _, r := range results {
		if r.Name == "Server API" {
			found = true
			if !r.Passed {
				t.Errorf("feed check failed: %s", r.Detail)
			}
		}
	}
	if !found {
		t.Fatal("expected feed check in results")
	}
}

func TestCheckLLM(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"finish_reason":"stop","message":{"content":"OK"}}]}`))
	}))
	defer srv.Close()

	cfg := config.LLM{APIKey: "k-123", BaseURL: srv.URL, Model: "test-model"}
	result := CheckLLM(context.Background(), "LLM", cfg)
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if auth != "Bearer k-123" {
		t.Fatalf("authorization header = %q", auth)
	}

	cfg.APIKey = ""
	if result := CheckLLM(context.Background(), "LLM", cfg); result.Passed || result.Detail != "API key missing" {
		t.Fatalf("expected missing key failure, got %+v", result)
	}
}

func TestCheckLLM_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	result := CheckLLM(context.Background(), "LLM", config.LLM{APIKey: "bad", BaseURL: srv.URL})
	if result.Passed {
		t.Fatal("expected failure for 401")
	}
	if !strings.Contains(result.Detail, "401") {
		t.Fatalf("detail should mention the status, got %q", result.Detail)
	}
}
