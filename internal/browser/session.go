package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"meetcap/internal/logging"
	"meetcap/internal/retry"
	"meetcap/internal/services"
)

const (
	defaultJoinAttempts = 5
	defaultJoinInterval = 5 * time.Second
	defaultDisplayName  = "Meet Recorder"

	elementWaitAttempts = 10
	elementWaitInterval = time.Second
)

// ErrNotLaunched is returned by operations that need a running browser.
var ErrNotLaunched = errors.New("browser not launched")

// Credentials holds optional Google account credentials.
type Credentials struct {
	Email    string
	Password string
}

// Empty reports whether sign-in should be skipped.
func (c Credentials) Empty() bool {
	return strings.TrimSpace(c.Email) == "" || c.Password == ""
}

// Admission records how the join loop ended.
type Admission string

const (
	// AdmissionClicked means a join control was found and clicked.
	AdmissionClicked Admission = "clicked"
	// AdmissionAssumed means no join control appeared and the session is
	// treated as already admitted.
	AdmissionAssumed Admission = "assumed"
)

// JoinResult summarizes a Join call.
type JoinResult struct {
	Admission Admission
	Attempts  int
}

// Pacing holds the settle delays between UI steps. Pages render
// asynchronously, so each step waits before the next query.
type Pacing struct {
	Navigate time.Duration
	Step     time.Duration
	Join     time.Duration
}

// DefaultPacing returns the delays used against live pages.
func DefaultPacing() Pacing {
	return Pacing{Navigate: 5 * time.Second, Step: time.Second, Join: 5 * time.Second}
}

// Option configures a Session.
type Option func(*Session)

// WithClock injects the clock used for settle delays and the join loop.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Session) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logging.NewComponentLogger(logger, "browser")
		}
	}
}

// WithScreenshotDir sets where screenshots are written. Empty disables them.
func WithScreenshotDir(dir string) Option {
	return func(s *Session) {
		s.screenshotDir = dir
	}
}

// WithDisplayName sets the name typed into the guest name field.
func WithDisplayName(name string) Option {
	return func(s *Session) {
		if strings.TrimSpace(name) != "" {
			s.displayName = name
		}
	}
}

// WithJoinPolicy overrides the join loop bound and interval.
func WithJoinPolicy(attempts int, interval time.Duration) Option {
	return func(s *Session) {
		if attempts > 0 {
			s.joinAttempts = attempts
		}
		if interval >= 0 {
			s.joinInterval = interval
		}
	}
}

// WithPacing overrides the settle delays.
func WithPacing(p Pacing) Option {
	return func(s *Session) {
		s.pacing = p
	}
}

// Session owns one browser for one meeting.
type Session struct {
	launcher      Launcher
	clock         clockwork.Clock
	logger        *slog.Logger
	screenshotDir string
	displayName   string
	joinAttempts  int
	joinInterval  time.Duration
	pacing        Pacing

	mu     sync.Mutex
	driver Driver
	seq    int
	closed bool
}

// NewSession constructs a session that launches its browser via launcher.
func NewSession(launcher Launcher, opts ...Option) *Session {
	s := &Session{
		launcher:     launcher,
		clock:        clockwork.NewRealClock(),
		logger:       logging.NewComponentLogger(logging.NewNop(), "browser"),
		displayName:  defaultDisplayName,
		joinAttempts: defaultJoinAttempts,
		joinInterval: defaultJoinInterval,
		pacing:       DefaultPacing(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Launch starts the browser.
func (s *Session) Launch(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return services.Wrap(services.ErrBrowserInit, "browser", "launch", "session already closed", nil)
	}
	if s.driver != nil {
		return nil
	}
	if s.launcher == nil {
		return services.Wrap(services.ErrBrowserInit, "browser", "launch", "no launcher configured", nil)
	}
	driver, err := s.launcher.Launch(ctx)
	if err != nil {
		return services.Wrap(services.ErrBrowserInit, "browser", "launch", "start chrome", err)
	}
	s.driver = driver
	s.logger.Info("browser launched", logging.String(logging.FieldEventType, "browser_launched"))
	return nil
}

// Authenticate signs in to Google. It is a no-op for empty credentials.
func (s *Session) Authenticate(ctx context.Context, creds Credentials) error {
	if creds.Empty() {
		s.logger.Debug("no credentials configured; skipping sign-in")
		return nil
	}
	d, err := s.current()
	if err != nil {
		return services.Wrap(services.ErrAuth, "browser", "sign in", "", err)
	}

	fail := func(operation string, err error) error {
		s.Screenshot(ctx, "signin_error")
		return services.Wrap(services.ErrAuth, "browser", operation, "", err)
	}

	if err := d.Open(ctx, SignInURL); err != nil {
		return fail("open sign-in page", err)
	}
	s.settle(ctx, s.pacing.Step)

	email, err := s.waitFor(ctx, d, emailQuery)
	if err != nil {
		return fail("find email field", err)
	}
	if err := d.Type(ctx, email, creds.Email); err != nil {
		return fail("type email", err)
	}
	s.Screenshot(ctx, "email_entry")

	next, err := s.waitFor(ctx, d, nextQuery)
	if err != nil {
		return fail("find next button", err)
	}
	if err := d.Click(ctx, next); err != nil {
		return fail("click next", err)
	}
	s.settle(ctx, s.pacing.Navigate)

	password, err := s.waitFor(ctx, d, passwordQuery)
	if err != nil {
		return fail("find password field", err)
	}
	if err := d.Type(ctx, password, creds.Password); err != nil {
		return fail("type password", err)
	}
	s.Screenshot(ctx, "password_entry")
	if err := d.Submit(ctx, password); err != nil {
		return fail("submit password", err)
	}
	s.settle(ctx, s.pacing.Navigate)
	s.Screenshot(ctx, "signed_in")

	s.logger.Info("signed in", logging.String(logging.FieldEventType, "browser_signed_in"))
	return nil
}

// Join opens link and tries to enter the meeting. Exhausting the join loop
// without finding a join control is reported as AdmissionAssumed, not as an
// error. Only navigation failure or cancellation returns an error.
func (s *Session) Join(ctx context.Context, link string) (JoinResult, error) {
	d, err := s.current()
	if err != nil {
		return JoinResult{}, services.Wrap(services.ErrJoin, "browser", "join", "", err)
	}

	if err := d.Open(ctx, link); err != nil {
		s.Screenshot(ctx, "join_error")
		return JoinResult{}, services.Wrap(services.ErrJoin, "browser", "open meeting link", "", err)
	}
	s.settle(ctx, s.pacing.Navigate)

	if origin := originOf(link); origin != "" {
		if err := d.GrantPermissions(ctx, origin, MeetingPermissions); err != nil {
			logging.WarnWithContext(s.logger, "grant permissions failed", "browser_permissions",
				logging.String("origin", origin),
				logging.Error(err),
				logging.String(logging.FieldImpact, "media prompts may block the join screen"),
			)
		}
	}
	s.Screenshot(ctx, "initial_page")

	s.clickOptional(ctx, d, dismissQueries)
	s.clickOptional(ctx, d, micPopupQueries)
	s.clickOptional(ctx, d, micToggleQueries)
	s.Screenshot(ctx, "after_mic_disable")

	if el, ok, _ := FirstVisible(ctx, d, nameFieldQueries); ok {
		if err := d.Type(ctx, el, s.displayName); err != nil {
			s.logger.Debug("name field not writable", logging.Error(err))
		} else {
			s.logger.Debug("entered display name", logging.String("name", s.displayName))
		}
		s.settle(ctx, s.pacing.Step)
	}

	attempt, clicked, err := retry.Attempts(ctx, s.clock, s.joinAttempts, s.joinInterval, func(ctx context.Context, attempt int) (bool, error) {
		el, ok, findErr := FirstVisible(ctx, d, joinQueries)
		if findErr != nil {
			s.logger.Debug("join control lookup failed", logging.Int("attempt", attempt), logging.Error(findErr))
		}
		if !ok {
			return false, nil
		}
		if err := d.Click(ctx, el); err != nil {
			s.logger.Debug("join click failed", logging.Int("attempt", attempt), logging.Error(err))
			return false, nil
		}
		s.settle(ctx, s.pacing.Join)
		s.Screenshot(ctx, fmt.Sprintf("join_attempt_%d", attempt))
		return true, nil
	})
	if err != nil {
		return JoinResult{}, services.Wrap(services.ErrJoin, "browser", "join loop", "", err)
	}
	if clicked {
		s.logger.Info("join control clicked",
			logging.String(logging.FieldEventType, "browser_joined"),
			logging.Int("attempt", attempt),
		)
		return JoinResult{Admission: AdmissionClicked, Attempts: attempt}, nil
	}

	logging.WarnWithContext(s.logger, "no join control found; assuming already admitted", "browser_join_assumed",
		logging.Int("attempts", s.joinAttempts),
		logging.String(logging.FieldErrorHint, "review the join screenshots if the recording is empty"),
		logging.String(logging.FieldImpact, "capture continues without a confirmed join"),
	)
	return JoinResult{Admission: AdmissionAssumed, Attempts: s.joinAttempts}, nil
}

// CurrentURL returns the page URL.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	d, err := s.current()
	if err != nil {
		return "", services.Wrap(services.ErrInspection, "browser", "current url", "", err)
	}
	u, err := d.CurrentURL(ctx)
	if err != nil {
		return "", services.Wrap(services.ErrInspection, "browser", "current url", "", err)
	}
	return u, nil
}

// VisibleText returns the rendered text of the page body.
func (s *Session) VisibleText(ctx context.Context) (string, error) {
	d, err := s.current()
	if err != nil {
		return "", services.Wrap(services.ErrInspection, "browser", "visible text", "", err)
	}
	text, err := d.VisibleText(ctx)
	if err != nil {
		return "", services.Wrap(services.ErrInspection, "browser", "visible text", "", err)
	}
	return text, nil
}

// Screenshot writes NNN_<label>.png into the screenshot directory and returns
// its path. Failures are logged and yield an empty path.
func (s *Session) Screenshot(ctx context.Context, label string) string {
	if s.screenshotDir == "" {
		return ""
	}
	d, err := s.current()
	if err != nil {
		return ""
	}
	data, err := d.Screenshot(ctx)
	if err != nil {
		s.logger.Debug("screenshot failed", logging.String("label", label), logging.Error(err))
		return ""
	}

	s.mu.Lock()
	s.seq++
	name := fmt.Sprintf("%03d_%s.png", s.seq, sanitizeLabel(label))
	s.mu.Unlock()

	if err := os.MkdirAll(s.screenshotDir, 0o755); err != nil {
		s.logger.Debug("screenshot dir unavailable", logging.Error(err))
		return ""
	}
	path := filepath.Join(s.screenshotDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		s.logger.Debug("screenshot write failed", logging.String("path", path), logging.Error(err))
		return ""
	}
	s.logger.Debug("screenshot saved", logging.String("path", path))
	return path
}

// Close releases the browser. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.driver == nil {
		return nil
	}
	err := s.driver.Close()
	s.driver = nil
	if err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	s.logger.Info("browser closed", logging.String(logging.FieldEventType, "browser_closed"))
	return nil
}

func (s *Session) current() (Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.driver == nil {
		return nil, ErrNotLaunched
	}
	return s.driver, nil
}

func (s *Session) clickOptional(ctx context.Context, d Driver, queries []Query) {
	el, ok, err := FirstVisible(ctx, d, queries)
	if err != nil {
		s.logger.Debug("optional lookup failed", logging.String("query", queries[0].Label), logging.Error(err))
	}
	if !ok {
		return
	}
	if err := d.Click(ctx, el); err != nil {
		s.logger.Debug("optional click failed", logging.String("query", el.Query.Label), logging.Error(err))
		return
	}
	s.logger.Debug("optional control clicked", logging.String("query", el.Query.Label))
	s.settle(ctx, s.pacing.Step)
}

func (s *Session) waitFor(ctx context.Context, d Driver, q Query) (Element, error) {
	var found Element
	_, ok, err := retry.Attempts(ctx, s.clock, elementWaitAttempts, elementWaitInterval, func(ctx context.Context, _ int) (bool, error) {
		el, ok, err := d.FindVisible(ctx, q)
		if err != nil || !ok {
			return false, nil
		}
		found = el
		return true, nil
	})
	if err != nil {
		return Element{}, err
	}
	if !ok {
		return Element{}, fmt.Errorf("%s (%s %q) not visible", q.Label, q.Strategy, q.Selector)
	}
	return found, nil
}

func (s *Session) settle(ctx context.Context, d time.Duration) {
	_ = retry.Sleep(ctx, s.clock, d)
}

func originOf(link string) string {
	u, err := url.Parse(link)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func sanitizeLabel(label string) string {
	label = strings.TrimSpace(strings.ToLower(label))
	if label == "" {
		return "screenshot"
	}
	var b strings.Builder
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
