package daemon

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"meetcap/internal/config"
	"meetcap/internal/feed"
	"meetcap/internal/ledger"
	"meetcap/internal/scheduler"
	"meetcap/internal/testsupport"
	"meetcap/internal/workflow"
)

type stubDispatcher struct {
	mu       sync.Mutex
	requests []scheduler.Request
	err      error
	notify   chan scheduler.Request
}

func (s *stubDispatcher) Dispatch(_ context.Context, req scheduler.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.requests = append(s.requests, req)
	if s.notify != nil {
		s.notify <- req
	}
	return nil
}

func (s *stubDispatcher) Requests() []scheduler.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scheduler.Request(nil), s.requests...)
}

type stubFeed struct {
	meetings []feed.Meeting

	mu      sync.Mutex
	claimed []string
}

func (f *stubFeed) Fetch(context.Context) ([]feed.Meeting, error) {
	return f.meetings, nil
}

func (f *stubFeed) Claim(_ context.Context, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claimed = append(f.claimed, taskID)
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Scheduler.Enabled = false
	return cfg
}

func newTestDaemon(t *testing.T, cfg *config.Config, opts ...Option) (*Daemon, *ledger.Store) {
	t.Helper()
	store := testsupport.MustOpenLedger(t, cfg)
	mgr := workflow.NewManager(cfg, nil)
	d, err := New(cfg, store, nil, mgr, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(d.Stop)
	return d, store
}

func TestNewRequiresDependencies(t *testing.T) {
	cfg := testConfig(t)
	if _, err := New(cfg, nil, nil, workflow.NewManager(cfg, nil)); err == nil {
		t.Fatal("expected error without ledger")
	}
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testConfig(t)
	d, _ := newTestDaemon(t, cfg, WithDispatcher(&stubDispatcher{}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := d.Status(ctx)
	if !status.Running || status.PID != os.Getpid() {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.APIAddress == "" {
		t.Fatal("expected api server to be listening")
	}
	if status.SchedulerEnabled {
		t.Fatal("scheduler should be disabled")
	}
	data, err := os.ReadFile(cfg.PIDPath())
	if err != nil {
		t.Fatalf("read pid file: %v", err)
	}
	if strings.TrimSpace(string(data)) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("pid file = %q", data)
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second Start to fail")
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to report stopped")
	}
	if _, err := os.Stat(cfg.PIDPath()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("pid file should be removed, stat err=%v", err)
	}
}

func TestDaemonSingleInstanceLock(t *testing.T) {
	cfg := testConfig(t)
	cfg.Paths.APIBind = ""
	first, _ := newTestDaemon(t, cfg)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}

	second, _ := newTestDaemon(t, cfg)
	err := second.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock contention error, got %v", err)
	}

	first.Stop()
	if err := second.Start(context.Background()); err != nil {
		t.Fatalf("Start after release: %v", err)
	}
}

func TestDaemonStartFailsInterruptedSessions(t *testing.T) {
	cfg := testConfig(t)
	cfg.Paths.APIBind = ""
	d, store := newTestDaemon(t, cfg)

	ctx := context.Background()
	id, err := store.StartSession(ctx, ledger.NewSession{
		MeetingID: "abc-defg-hij",
		Link:      "https://meet.google.com/abc-defg-hij",
		State:     "monitoring",
		StartedAt: testsupport.Epoch,
	})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sess, err := store.GetSession(ctx, id)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.State != "failed" || sess.ErrorKind != "interrupted" {
		t.Fatalf("expected interrupted failure, got %+v", sess)
	}
}

func TestDaemonSchedulerDispatchesMeetingsInWindow(t *testing.T) {
	cfg := testConfig(t)
	cfg.Paths.APIBind = ""
	cfg.Scheduler.Enabled = true
	clock := testsupport.NewFakeClock()
	f := &stubFeed{meetings: []feed.Meeting{
		{StartTime: testsupport.Epoch.Add(time.Minute), Link: "https://meet.google.com/abc-defg-hij", TaskID: "t-1", Username: "alice"},
		{StartTime: testsupport.Epoch.Add(time.Hour), Link: "https://meet.google.com/later-one", TaskID: "t-2"},
	}}
	dispatcher := &stubDispatcher{notify: make(chan scheduler.Request, 4)}
	d, store := newTestDaemon(t, cfg, WithFeed(f), WithDispatcher(dispatcher), WithClock(clock))

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case req := <-dispatcher.notify:
		if req.MeetingID != "abc-defg-hij" || req.TaskID != "t-1" || req.Username != "alice" {
			t.Fatalf("unexpected request %+v", req)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler never dispatched")
	}

	claimed, err := store.IsClaimed(context.Background(), "t-1")
	if err != nil || !claimed {
		t.Fatalf("expected ledger claim for t-1, claimed=%v err=%v", claimed, err)
	}
	if claimed, _ := store.IsClaimed(context.Background(), "t-2"); claimed {
		t.Fatal("meeting outside the window must not be claimed")
	}

	d.Stop()
	if got := dispatcher.Requests(); len(got) != 1 {
		t.Fatalf("expected one dispatch, got %+v", got)
	}
	status := d.Status(context.Background())
	if !status.SchedulerEnabled || status.Polls < 1 || status.LastPoll.Dispatched != 1 {
		t.Fatalf("unexpected scheduler status %+v", status)
	}
}
