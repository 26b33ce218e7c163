package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"meetcap/internal/api"
	"meetcap/internal/ledger"
	"meetcap/internal/scheduler"
	"meetcap/internal/services"
	"meetcap/internal/testsupport"
	"meetcap/internal/workflow"
)

func newTestAPI(t *testing.T, dispatcher *stubDispatcher) (*apiServer, *ledger.Store) {
	t.Helper()
	cfg := testConfig(t)
	d, store := newTestDaemon(t, cfg, WithDispatcher(dispatcher))
	if d.api == nil {
		t.Fatal("expected api server for configured bind")
	}
	return d.api, store
}

func postRecord(t *testing.T, srv *apiServer, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/record_meeting", strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.handleRecordMeeting(w, req)
	return w
}

func TestAPIServerRecordMeeting(t *testing.T) {
	dispatcher := &stubDispatcher{}
	srv, _ := newTestAPI(t, dispatcher)

	w := postRecord(t, srv, `{"google_meeting_link":"https://meet.google.com/abc-defg-hij?authuser=0","taskId":"t-9","username":"alice"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d: %s", w.Code, w.Body.String())
	}
	var resp api.RecordMeetingResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.RecordingID != "abc-defg-hij" || resp.Status != "started" || resp.RequestID == "" {
		t.Fatalf("unexpected response %+v", resp)
	}
	got := dispatcher.Requests()
	if len(got) != 1 {
		t.Fatalf("expected one dispatch, got %+v", got)
	}
	if got[0].MeetingID != "abc-defg-hij" || got[0].TaskID != "t-9" || got[0].Username != "alice" {
		t.Fatalf("unexpected request %+v", got[0])
	}
}

func TestAPIServerRecordMeetingRejects(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{name: "bad json", body: `{`, status: http.StatusBadRequest},
		{name: "missing link", body: `{"taskId":"t"}`, status: http.StatusBadRequest},
		{name: "unusable link", body: `{"google_meeting_link":"meet.google.com"}`, status: http.StatusBadRequest},
		{name: "validation", body: `{"google_meeting_link":"https://meet.google.com/a"}`, err: services.Wrap(services.ErrValidation, "workflow", "dispatch", "bad", nil), status: http.StatusBadRequest},
		{name: "busy", body: `{"google_meeting_link":"https://meet.google.com/a"}`, err: fmt.Errorf("%w: a", scheduler.ErrBusy), status: http.StatusConflict},
		{name: "shutting down", body: `{"google_meeting_link":"https://meet.google.com/a"}`, err: workflow.ErrShuttingDown, status: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := newTestAPI(t, &stubDispatcher{err: tc.err})
			w := postRecord(t, srv, tc.body)
			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tc.status, w.Body.String())
			}
			var resp api.ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Error == "" {
				t.Fatalf("expected error body, got %q (%v)", w.Body.String(), err)
			}
		})
	}
}

func TestAPIServerRecordMeetingMethod(t *testing.T) {
	srv, _ := newTestAPI(t, &stubDispatcher{})
	w := httptest.NewRecorder()
	srv.handleRecordMeeting(w, httptest.NewRequest(http.MethodGet, "/record_meeting", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestAPIServerHandleStatus(t *testing.T) {
	srv, store := newTestAPI(t, &stubDispatcher{})
	w := httptest.NewRecorder()
	srv.handleStatus(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var resp api.DaemonStatus
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Running {
		t.Fatal("daemon was never started")
	}
	if resp.LedgerPath != store.Path() || resp.LockFilePath == "" {
		t.Fatalf("unexpected paths %+v", resp)
	}
	if len(resp.Dependencies) == 0 {
		t.Fatal("expected dependency checks in status")
	}
	if resp.Workflow.Active == nil {
		t.Fatal("active sessions must encode as an empty list")
	}
}

func TestAPIServerHandleSessions(t *testing.T) {
	srv, store := newTestAPI(t, &stubDispatcher{})
	ctx := context.Background()
	var lastID int64
	for i, id := range []string{"aaa-bbbb-ccc", "ddd-eeee-fff"} {
		rowID, err := store.StartSession(ctx, ledger.NewSession{
			MeetingID: id,
			Link:      "https://meet.google.com/" + id,
			State:     "created",
			StartedAt: testsupport.Epoch.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("StartSession: %v", err)
		}
		lastID = rowID
	}
	if err := store.RecordTransition(ctx, lastID, "created", "audio_ready", nil, testsupport.Epoch); err != nil {
		t.Fatalf("RecordTransition: %v", err)
	}

	w := httptest.NewRecorder()
	srv.handleSessions(w, httptest.NewRequest(http.MethodGet, "/api/sessions?limit=1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var list api.SessionListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Sessions) != 1 || list.Sessions[0].MeetingID != "ddd-eeee-fff" {
		t.Fatalf("expected newest session only, got %+v", list.Sessions)
	}

	w = httptest.NewRecorder()
	srv.handleSessions(w, httptest.NewRequest(http.MethodGet, "/api/sessions?limit=zero", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	srv.handleSession(w, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/sessions/%d", lastID), nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d: %s", w.Code, w.Body.String())
	}
	var detail api.SessionDetailResponse
	if err := json.Unmarshal(w.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if detail.Session.ID != lastID || len(detail.Transitions) != 1 || detail.Transitions[0].To != "audio_ready" {
		t.Fatalf("unexpected detail %+v", detail)
	}
	if detail.Claimed {
		t.Fatal("session without a task id cannot be claimed")
	}

	w = httptest.NewRecorder()
	srv.handleSession(w, httptest.NewRequest(http.MethodGet, "/api/sessions/999", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestGuardRequiresBearerToken(t *testing.T) {
	next := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }

	open := (&apiServer{}).guard(next)
	w := httptest.NewRecorder()
	open(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("empty token must not require auth, got %d", w.Code)
	}

	guarded := (&apiServer{token: "s3cret"}).guard(next)
	for _, tc := range []struct {
		header string
		want   int
	}{
		{"", http.StatusUnauthorized},
		{"Bearer wrong", http.StatusUnauthorized},
		{"Basic s3cret", http.StatusUnauthorized},
		{"Bearer s3cret0", http.StatusUnauthorized},
		{"Bearer s3cret", http.StatusNoContent},
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		w := httptest.NewRecorder()
		guarded(w, req)
		if w.Code != tc.want {
			t.Fatalf("header %q: got %d, want %d", tc.header, w.Code, tc.want)
		}
		if tc.want == http.StatusUnauthorized && !strings.Contains(w.Body.String(), `"unauthorized"`) {
			t.Fatalf("expected JSON error body, got %q", w.Body.String())
		}
	}
}

func TestAPIServerServesOverHTTP(t *testing.T) {
	cfg := testConfig(t)
	cfg.Paths.APIToken = "tok"
	dispatcher := &stubDispatcher{}
	d, _ := newTestDaemon(t, cfg, WithDispatcher(dispatcher))
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	url := "http://" + d.Status(context.Background()).APIAddress + "/record_meeting"
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(`{"google_meeting_link":"https://meet.google.com/abc-defg-hij"}`))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Authorization", "Bearer tok")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if len(dispatcher.Requests()) != 1 {
		t.Fatal("request never reached the dispatcher")
	}
}

func TestAPIServerSessionReportsClaim(t *testing.T) {
	srv, store := newTestAPI(t, &stubDispatcher{})
	ctx := context.Background()
	id, err := store.StartSession(ctx, ledger.NewSession{
		MeetingID: "abc-defg-hij",
		TaskID:    "task-9",
		Link:      "https://meet.google.com/abc-defg-hij",
		State:     "created",
		StartedAt: testsupport.Epoch,
	})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	detail := func() api.SessionDetailResponse {
		t.Helper()
		w := httptest.NewRecorder()
		srv.handleSession(w, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/sessions/%d", id), nil))
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200 OK, got %d: %s", w.Code, w.Body.String())
		}
		var resp api.SessionDetailResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return resp
	}

	if detail().Claimed {
		t.Fatal("task was never claimed")
	}
	if _, err := store.Claim(ctx, "task-9", "abc-defg-hij", testsupport.Epoch, testsupport.Epoch); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if !detail().Claimed {
		t.Fatal("expected claimed task after Claim")
	}
	if err := store.Release(ctx, "task-9"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if detail().Claimed {
		t.Fatal("expected unclaimed task after Release")
	}
}
