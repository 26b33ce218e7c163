package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"meetcap/internal/audio"
	"meetcap/internal/browser"
	"meetcap/internal/capture"
	"meetcap/internal/config"
	"meetcap/internal/logging"
	"meetcap/internal/notifications"
	"meetcap/internal/session"
)

// Manager dispatches and tracks capture sessions.
type Manager struct {
	cfg      *config.Config
	logger   *slog.Logger
	ledger   Ledger
	notifier notifications.Service
	factory  Factory
	post     PostProcessor
	clock    clockwork.Clock

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	audio   audioGraph

	mu        sync.Mutex
	active    map[string]*activeSession
	closed    bool
	completed int
	failed    int
	lastErr   error
	last      *session.Record
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithLedger records sessions and transitions in l.
func WithLedger(l Ledger) ManagerOption {
	return func(m *Manager) {
		m.ledger = l
	}
}

// WithNotifier overrides the notifier built from configuration.
func WithNotifier(n notifications.Service) ManagerOption {
	return func(m *Manager) {
		if n != nil {
			m.notifier = n
		}
	}
}

// WithFactory overrides how session collaborators are built.
func WithFactory(f Factory) ManagerOption {
	return func(m *Manager) {
		if f != nil {
			m.factory = f
		}
	}
}

// WithPostProcessor runs p after every session that captured something.
func WithPostProcessor(p PostProcessor) ManagerOption {
	return func(m *Manager) {
		m.post = p
	}
}

// WithClock injects the clock handed to every orchestrator.
func WithClock(clock clockwork.Clock) ManagerOption {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:      cfg,
		logger:   logger,
		notifier: notifications.NewService(cfg),
		factory:  DefaultFactory(cfg),
		clock:    clockwork.NewRealClock(),
		baseCtx:  ctx,
		cancel:   cancel,
		active:   make(map[string]*activeSession),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DefaultFactory wires the production collaborators: pactl audio routing, a
// chromedp-driven browser, and an ffmpeg recorder.
func DefaultFactory(cfg *config.Config) Factory {
	return FactoryFunc(func(_ session.Descriptor, layout session.Layout, logger *slog.Logger) (session.Deps, error) {
		browserOpts := []browser.Option{
			browser.WithLogger(logger),
			browser.WithScreenshotDir(layout.Screenshots),
		}
		if cfg != nil {
			browserOpts = append(browserOpts,
				browser.WithDisplayName(cfg.Browser.DisplayName),
				browser.WithJoinPolicy(cfg.Browser.JoinAttempts, time.Duration(cfg.Browser.JoinInterval)*time.Second),
			)
		}
		launcher := browser.NewChromeLauncher(browser.ChromeOptionsFromConfig(cfg))
		return session.Deps{
			Audio:   audio.New(cfg, audio.WithLogger(logger)),
			Browser: browser.NewSession(launcher, browserOpts...),
			Capture: capture.NewRecorder(cfg,
				capture.WithLogger(logger),
				capture.WithLogPath(layout.CaptureLogPath()),
			),
		}, nil
	})
}

// Shutdown cancels every running session and waits for their cleanup paths,
// or for ctx to end.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every dispatched session has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}
