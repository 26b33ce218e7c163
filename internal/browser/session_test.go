package browser

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"meetcap/internal/services"
	"meetcap/internal/testsupport"
)

type fakeDriver struct {
	mu        sync.Mutex
	visible   map[string]bool
	joinAfter int
	joinSeen  int
	openErr   error
	shotErr   error
	url       string
	text      string
	calls     []string
	granted   []Permission
	origin    string
	typed     map[string]string
	closed    int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{visible: map[string]bool{}, typed: map[string]string{}}
}

func (f *fakeDriver) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeDriver) Open(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("open " + url)
	if f.openErr != nil {
		return f.openErr
	}
	f.url = url
	return nil
}

func (f *fakeDriver) GrantPermissions(_ context.Context, origin string, perms []Permission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.origin = origin
	f.granted = append([]Permission(nil), perms...)
	return nil
}

func (f *fakeDriver) FindVisible(_ context.Context, q Query) (Element, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if q.Label == "join" && f.joinAfter > 0 {
		f.joinSeen++
		if f.joinSeen >= f.joinAfter {
			return Element{Query: q}, true, nil
		}
		return Element{}, false, nil
	}
	if f.visible[q.Selector] {
		return Element{Query: q}, true, nil
	}
	return Element{}, false, nil
}

func (f *fakeDriver) Click(_ context.Context, el Element) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("click " + el.Query.Label)
	return nil
}

func (f *fakeDriver) Type(_ context.Context, el Element, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("type " + el.Query.Label)
	f.typed[el.Query.Label] = text
	return nil
}

func (f *fakeDriver) Submit(_ context.Context, el Element) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("submit " + el.Query.Label)
	return nil
}

func (f *fakeDriver) Screenshot(context.Context) ([]byte, error) {
	if f.shotErr != nil {
		return nil, f.shotErr
	}
	return []byte("png"), nil
}

func (f *fakeDriver) CurrentURL(context.Context) (string, error) { return f.url, nil }

func (f *fakeDriver) VisibleText(context.Context) (string, error) { return f.text, nil }

func (f *fakeDriver) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeDriver) callList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func launched(t *testing.T, d *fakeDriver, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{WithPacing(Pacing{}), WithJoinPolicy(5, 0)}, opts...)
	s := NewSession(LauncherFunc(func(context.Context) (Driver, error) { return d, nil }), opts...)
	if err := s.Launch(context.Background()); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	return s
}

func screenshotNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read screenshots: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestLaunchFailureIsBrowserInitError(t *testing.T) {
	s := NewSession(LauncherFunc(func(context.Context) (Driver, error) {
		return nil, errors.New("chrome missing")
	}))
	err := s.Launch(context.Background())
	if !errors.Is(err, services.ErrBrowserInit) {
		t.Fatalf("expected ErrBrowserInit, got %v", err)
	}
	if !services.IsFatal(err) {
		t.Fatalf("launch failure should be fatal")
	}
}

func TestJoinClicksFirstVisibleControlsInOrder(t *testing.T) {
	dir := t.TempDir()
	d := newFakeDriver()
	d.visible[dismissQueries[0].Selector] = true
	d.visible[micToggleQueries[1].Selector] = true
	d.visible[nameFieldQueries[0].Selector] = true
	d.joinAfter = 1

	s := launched(t, d, WithScreenshotDir(dir))
	res, err := s.Join(context.Background(), "https://meet.google.com/abc-defg-hij?authuser=0")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if res.Admission != AdmissionClicked || res.Attempts != 1 {
		t.Fatalf("unexpected result %+v", res)
	}

	want := []string{
		"open https://meet.google.com/abc-defg-hij?authuser=0",
		"click dismiss",
		"click mic toggle",
		"type name field",
		"click join",
	}
	got := d.callList()
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	if d.typed["name field"] != defaultDisplayName {
		t.Fatalf("display name = %q", d.typed["name field"])
	}
	if d.origin != "https://meet.google.com" || len(d.granted) != len(MeetingPermissions) {
		t.Fatalf("permissions granted to %q: %v", d.origin, d.granted)
	}

	names := screenshotNames(t, dir)
	wantNames := []string{"001_initial_page.png", "002_after_mic_disable.png", "003_join_attempt_1.png"}
	if strings.Join(names, ",") != strings.Join(wantNames, ",") {
		t.Fatalf("screenshots = %v, want %v", names, wantNames)
	}
}

func TestJoinAssumesAdmissionWhenNoControlAppears(t *testing.T) {
	clock := testsupport.NewFakeClock()
	d := newFakeDriver()
	s := NewSession(LauncherFunc(func(context.Context) (Driver, error) { return d, nil }),
		WithClock(clock), WithPacing(Pacing{}))
	if err := s.Launch(context.Background()); err != nil {
		t.Fatalf("Launch: %v", err)
	}

	type outcome struct {
		res JoinResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := s.Join(context.Background(), "https://meet.google.com/xyz")
		done <- outcome{res, err}
	}()

	got := testsupport.AdvanceUntil(t, clock, defaultJoinInterval, 10, done)
	if got.err != nil {
		t.Fatalf("Join: %v", got.err)
	}
	if got.res.Admission != AdmissionAssumed || got.res.Attempts != defaultJoinAttempts {
		t.Fatalf("unexpected result %+v", got.res)
	}
	if elapsed := clock.Since(testsupport.Epoch); elapsed != time.Duration(defaultJoinAttempts-1)*defaultJoinInterval {
		t.Fatalf("join loop waited %s", elapsed)
	}
}

func TestJoinSucceedsOnLaterAttempt(t *testing.T) {
	dir := t.TempDir()
	d := newFakeDriver()
	d.joinAfter = 3
	s := launched(t, d, WithScreenshotDir(dir))

	res, err := s.Join(context.Background(), "https://meet.google.com/xyz")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if res.Admission != AdmissionClicked || res.Attempts != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
	names := screenshotNames(t, dir)
	if last := names[len(names)-1]; last != "003_join_attempt_3.png" {
		t.Fatalf("last screenshot = %s", last)
	}
}

func TestJoinNavigationFailure(t *testing.T) {
	d := newFakeDriver()
	d.openErr = errors.New("net::ERR_NAME_NOT_RESOLVED")
	s := launched(t, d)
	if _, err := s.Join(context.Background(), "https://meet.google.com/xyz"); !errors.Is(err, services.ErrJoin) {
		t.Fatalf("expected ErrJoin, got %v", err)
	}
}

func TestJoinBeforeLaunch(t *testing.T) {
	s := NewSession(nil)
	if _, err := s.Join(context.Background(), "https://meet.google.com/xyz"); !errors.Is(err, ErrNotLaunched) {
		t.Fatalf("expected ErrNotLaunched, got %v", err)
	}
}

func TestAuthenticateSkipsEmptyCredentials(t *testing.T) {
	d := newFakeDriver()
	s := launched(t, d)
	if err := s.Authenticate(context.Background(), Credentials{Email: "user@example.com"}); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if calls := d.callList(); len(calls) != 0 {
		t.Fatalf("expected no driver calls, got %v", calls)
	}
}

func TestAuthenticateSignsIn(t *testing.T) {
	dir := t.TempDir()
	d := newFakeDriver()
	for _, q := range []Query{emailQuery, nextQuery, passwordQuery} {
		d.visible[q.Selector] = true
	}
	s := launched(t, d, WithScreenshotDir(dir))

	if err := s.Authenticate(context.Background(), Credentials{Email: "user@example.com", Password: "secret"}); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	want := []string{"open " + SignInURL, "type email", "click next", "type password", "submit password"}
	if got := d.callList(); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	if d.typed["email"] != "user@example.com" || d.typed["password"] != "secret" {
		t.Fatalf("typed = %v", d.typed)
	}
	names := screenshotNames(t, dir)
	wantNames := []string{"001_email_entry.png", "002_password_entry.png", "003_signed_in.png"}
	if strings.Join(names, ",") != strings.Join(wantNames, ",") {
		t.Fatalf("screenshots = %v", names)
	}
}

func TestAuthenticateMissingFieldIsAuthError(t *testing.T) {
	clock := testsupport.NewFakeClock()
	dir := t.TempDir()
	d := newFakeDriver()
	s := NewSession(LauncherFunc(func(context.Context) (Driver, error) { return d, nil }),
		WithClock(clock), WithPacing(Pacing{}), WithScreenshotDir(dir))
	if err := s.Launch(context.Background()); err != nil {
		t.Fatalf("Launch: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- s.Authenticate(context.Background(), Credentials{Email: "user@example.com", Password: "secret"})
	}()
	err := testsupport.AdvanceUntil(t, clock, elementWaitInterval, 20, done)
	if !errors.Is(err, services.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "001_signin_error.png")); statErr != nil {
		t.Fatalf("expected signin_error screenshot: %v", statErr)
	}
}

func TestScreenshotFailureIsSwallowed(t *testing.T) {
	dir := t.TempDir()
	d := newFakeDriver()
	d.shotErr = errors.New("target closed")
	s := launched(t, d, WithScreenshotDir(dir))
	if path := s.Screenshot(context.Background(), "anything"); path != "" {
		t.Fatalf("expected empty path, got %q", path)
	}
}

func TestScreenshotLabelIsSanitized(t *testing.T) {
	dir := t.TempDir()
	s := launched(t, newFakeDriver(), WithScreenshotDir(dir))
	path := s.Screenshot(context.Background(), "Meeting Check/12:00")
	if filepath.Base(path) != "001_meeting_check_12_00.png" {
		t.Fatalf("unexpected path %q", path)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	d := newFakeDriver()
	s := launched(t, d)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if d.closed != 1 {
		t.Fatalf("driver closed %d times", d.closed)
	}
	if _, err := s.CurrentURL(context.Background()); !errors.Is(err, services.ErrInspection) {
		t.Fatalf("expected inspection error after close, got %v", err)
	}
}

func TestFirstVisibleHonorsOrder(t *testing.T) {
	d := newFakeDriver()
	d.visible[micToggleQueries[1].Selector] = true
	d.visible[micToggleQueries[2].Selector] = true
	el, ok, err := FirstVisible(context.Background(), d, micToggleQueries)
	if err != nil || !ok {
		t.Fatalf("FirstVisible ok=%v err=%v", ok, err)
	}
	if el.Query.Label != micToggleQueries[1].Label {
		t.Fatalf("matched %q", el.Query.Label)
	}
}
