package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"meetcap/internal/config"
	"meetcap/internal/logging"
	"meetcap/internal/services"
)

func fileLogger(t *testing.T, opts logging.Options) (*slog.Logger, func() string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.log")
	opts.OutputPaths = []string{path}
	opts.ErrorOutputPaths = []string{path}
	logger, err := logging.New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return logger, func() string {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read log: %v", err)
		}
		return string(data)
	}
}

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = filepath.Join(t.TempDir(), "logs")

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	logger.Info("scheduler started")

	data, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "meetcap.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Count(string(data), "scheduler started") != 1 {
		t.Fatalf("expected exactly one record, got %q", data)
	}
}

func TestConsoleSourceFollowsLevel(t *testing.T) {
	for _, tc := range []struct {
		level      string
		wantSource bool
	}{
		{"info", false},
		{"debug", true},
	} {
		logger, read := fileLogger(t, logging.Options{Format: "console", Level: tc.level})
		logger.Info("hello")
		if got := strings.Contains(read(), ".go:"); got != tc.wantSource {
			t.Fatalf("level %s: source shown = %v, want %v", tc.level, got, tc.wantSource)
		}
	}
}

func TestConsoleLayout(t *testing.T) {
	logger, read := fileLogger(t, logging.Options{Format: "console"})
	logger = logging.NewComponentLogger(logger, "session").With(logging.String(logging.FieldState, "Recording"))
	logger.Info("state changed",
		logging.String(logging.FieldState, "Monitoring"),
		logging.String(logging.FieldMeetingID, "abc-defg-hij"),
		logging.String("note", "two words"),
		slog.Group("capture", slog.Int("pid", 42)),
	)

	text := read()
	header := strings.SplitN(text, "\n", 2)[0]
	if want := " INFO [session] Meeting abc-defg-hij (Monitoring) - state changed"; !strings.HasSuffix(header, want) {
		t.Fatalf("header %q missing %q", header, want)
	}
	for _, want := range []string{"    note: \"two words\"\n", "    capture.pid: 42\n"} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in %q", want, text)
		}
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestJSONLoggerFiltersAndStampsRunID(t *testing.T) {
	logger, read := fileLogger(t, logging.Options{Format: "json", Level: "bogus", RunID: "run-1"})
	logger.Debug("hidden")
	logger.Info("visible")

	text := strings.TrimSpace(read())
	if strings.Contains(text, "hidden") {
		t.Fatalf("unknown level should default to info: %q", text)
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(text), &record); err != nil {
		t.Fatalf("decode %q: %v", text, err)
	}
	if record[logging.FieldRunID] != "run-1" || record["level"] != "info" || record["ts"] == nil {
		t.Fatalf("unexpected record %v", record)
	}
}

func TestWithContextAddsFields(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithMeetingID(ctx, "abc-defg-hij")
	ctx = services.WithTaskID(ctx, "42")
	ctx = services.WithState(ctx, "Joined")
	ctx = services.WithRequestID(ctx, "req-xyz")

	var buf bytes.Buffer
	logging.WithContext(ctx, slog.New(slog.NewJSONHandler(&buf, nil))).Info("contextual log")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode log record: %v", err)
	}
	for key, want := range map[string]string{
		logging.FieldMeetingID:     "abc-defg-hij",
		logging.FieldTaskID:        "42",
		logging.FieldState:         "Joined",
		logging.FieldCorrelationID: "req-xyz",
	} {
		if record[key] != want {
			t.Fatalf("field %s = %v, want %v", key, record[key], want)
		}
	}
}

func TestEventHelpersFillDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.WarnWithContext(logger, "claim failed", "claim_failed",
		logging.Error(errors.New("409")),
		logging.String(logging.FieldImpact, "meeting may be recorded twice"),
	)
	logging.ErrorWithContext(logger, "capture failed", "capture_failed")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two records, got %q", buf.String())
	}
	var warn, fail map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &warn); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &fail); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if warn[logging.FieldEventType] != "claim_failed" || warn[logging.FieldImpact] != "meeting may be recorded twice" {
		t.Fatalf("unexpected warning %v", warn)
	}
	if warn[logging.FieldErrorHint] == nil || fail[logging.FieldErrorHint] == nil {
		t.Fatalf("error_hint default missing: %v / %v", warn, fail)
	}
	if _, ok := fail[logging.FieldImpact]; ok {
		t.Fatalf("errors carry no impact default: %v", fail)
	}
	logging.WarnWithContext(nil, "ignored", "nil_logger")
}

func TestOpenFileHandlerTeesIntoProcessLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "abc", "process.log")
	handler, closer, err := logging.OpenFileHandler(path, "console", "warn")
	if err != nil {
		t.Fatalf("OpenFileHandler: %v", err)
	}
	var base bytes.Buffer
	logger := logging.TeeLogger(slog.New(slog.NewTextHandler(&base, nil)), handler)
	logger.Info("joined meeting")
	logger.Warn("capture slow")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read process log: %v", err)
	}
	if strings.Contains(string(data), "joined meeting") || !strings.Contains(string(data), "capture slow") {
		t.Fatalf("process log should honor its level: %q", data)
	}
	if !strings.Contains(base.String(), "joined meeting") {
		t.Fatalf("base sink missed record: %q", base.String())
	}
}
