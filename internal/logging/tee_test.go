package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("disk full") }

func TestNewTeeCollapses(t *testing.T) {
	if _, ok := newTee(nil, nil).(discard); !ok {
		t.Fatal("no handlers should discard")
	}
	inner := slog.NewTextHandler(&bytes.Buffer{}, nil)
	if got := newTee(nil, inner); got != slog.Handler(inner) {
		t.Fatalf("single handler should be returned as is, got %T", got)
	}
}

func TestTeeRespectsEachLevel(t *testing.T) {
	var infoBuf, debugBuf bytes.Buffer
	h := newTee(
		slog.NewTextHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("tee should be enabled when any handler is")
	}
	logger := slog.New(h).With("meeting_id", "abc-defg-hij").WithGroup("capture")
	logger.Debug("probe", "pid", 7)
	logger.Info("started", "pid", 7)

	if strings.Contains(infoBuf.String(), "probe") || !strings.Contains(infoBuf.String(), "started") {
		t.Fatalf("info sink = %q", infoBuf.String())
	}
	for _, want := range []string{"probe", "started", "meeting_id=abc-defg-hij", "capture.pid=7"} {
		if !strings.Contains(debugBuf.String(), want) {
			t.Fatalf("debug sink missing %q: %q", want, debugBuf.String())
		}
	}
}

func TestTeeKeepsWritingAfterFailure(t *testing.T) {
	var buf bytes.Buffer
	h := newTee(failingHandler{slog.NewTextHandler(&bytes.Buffer{}, nil)}, slog.NewTextHandler(&buf, nil))
	err := h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "joined", 0))
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected handler error, got %v", err)
	}
	if !strings.Contains(buf.String(), "joined") {
		t.Fatalf("second sink missed record: %q", buf.String())
	}
}

func TestTeeLogger(t *testing.T) {
	var base, extra bytes.Buffer
	logger := TeeLogger(slog.New(slog.NewTextHandler(&base, nil)), slog.NewTextHandler(&extra, nil))
	logger.Info("capture stopped")
	if !strings.Contains(base.String(), "capture stopped") || !strings.Contains(extra.String(), "capture stopped") {
		t.Fatalf("base=%q extra=%q", base.String(), extra.String())
	}

	extra.Reset()
	TeeLogger(nil, slog.NewTextHandler(&extra, nil)).Info("no base")
	if !strings.Contains(extra.String(), "no base") {
		t.Fatalf("nil base should still write extras: %q", extra.String())
	}
}
