package main

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"meetcap/internal/api"
	"meetcap/internal/ledger"
)

func seedLedger(t *testing.T, stateDir string) int64 {
	t.Helper()
	store, err := ledger.Open(filepath.Join(stateDir, "ledger.db"))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	started := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	id, err := store.StartSession(ctx, ledger.NewSession{
		MeetingID: "abc-defg-hij",
		TaskID:    "task-1",
		Link:      "https://meet.google.com/abc-defg-hij",
		Dir:       "/tmp/abc-defg-hij",
		State:     "created",
		StartedAt: started,
	})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if err := store.RecordTransition(ctx, id, "created", "audio_ready", nil, started.Add(time.Second)); err != nil {
		t.Fatalf("RecordTransition: %v", err)
	}
	if err := store.RecordTransition(ctx, id, "audio_ready", "stopping", errors.New("chrome crashed"), started.Add(2*time.Second)); err != nil {
		t.Fatalf("RecordTransition: %v", err)
	}
	if err := store.FinishSession(ctx, id, ledger.Outcome{
		State:        "failed",
		ErrorKind:    "browser_init",
		ErrorMessage: "chrome crashed",
		EndedAt:      started.Add(3 * time.Second),
	}); err != nil {
		t.Fatalf("FinishSession: %v", err)
	}
	return id
}

func TestSessionsListsLedgerRows(t *testing.T) {
	env := setupTestEnv(t, "")

	out, _, err := runCLI(t, []string{"sessions"}, env.configPath)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	requireContains(t, out, "No sessions recorded")

	seedLedger(t, env.stateDir)

	out, _, err = runCLI(t, []string{"sessions"}, env.configPath)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	requireContains(t, out, "abc-defg-hij")
	requireContains(t, out, "failed")
	requireContains(t, out, "browser_init")

	out, _, err = runCLI(t, []string{"sessions", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("sessions --json: %v", err)
	}
	var resp api.SessionListResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode json: %v\n%s", err, out)
	}
	if len(resp.Sessions) != 1 || resp.Sessions[0].TaskID != "task-1" {
		t.Fatalf("unexpected sessions %+v", resp.Sessions)
	}
}

func TestSessionsShowsHistory(t *testing.T) {
	env := setupTestEnv(t, "")
	id := seedLedger(t, env.stateDir)

	out, _, err := runCLI(t, []string{"sessions", "--id", "1", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("sessions --id: %v", err)
	}
	var detail api.SessionDetailResponse
	if err := json.Unmarshal([]byte(out), &detail); err != nil {
		t.Fatalf("decode json: %v\n%s", err, out)
	}
	if detail.Session.ID != id || len(detail.Transitions) != 2 {
		t.Fatalf("unexpected detail %+v", detail)
	}
	if detail.Transitions[1].Error != "chrome crashed" {
		t.Fatalf("transition error = %q", detail.Transitions[1].Error)
	}

	out, _, err = runCLI(t, []string{"sessions", "--id", "1"}, env.configPath)
	if err != nil {
		t.Fatalf("sessions --id text: %v", err)
	}
	requireContains(t, out, "Session 1 (abc-defg-hij)")
	requireContains(t, out, "audio_ready")

	if _, _, err := runCLI(t, []string{"sessions", "--id", "99"}, env.configPath); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
