package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/jonboulle/clockwork"

	"meetcap/internal/config"
	"meetcap/internal/deps"
	"meetcap/internal/feed"
	"meetcap/internal/ledger"
	"meetcap/internal/logging"
	"meetcap/internal/preflight"
	"meetcap/internal/scheduler"
	"meetcap/internal/workflow"
)

const (
	// claimRetention bounds how long dispatch claims are kept.
	claimRetention = 7 * 24 * time.Hour
	// shutdownTimeout bounds how long Stop waits for running sessions to
	// finish their teardown.
	shutdownTimeout = 2 * time.Minute
)

// Daemon coordinates the background services and enforces single-instance execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *ledger.Store
	workflow   *workflow.Manager
	dispatcher scheduler.Dispatcher
	feed       scheduler.Feed
	scheduler  *scheduler.Scheduler
	clock      clockwork.Clock
	api        *apiServer

	lockPath string
	lock     *flock.Flock
	pidPath  string

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running          bool
	PID              int
	LedgerPath       string
	LockFilePath     string
	APIAddress       string
	Workflow         workflow.StatusSummary
	SchedulerEnabled bool
	LastPoll         scheduler.Summary
	Polls            int
	Dependencies     []deps.Status
}

// Option configures optional Daemon behavior.
type Option func(*Daemon)

// WithFeed replaces the HTTP feed client the scheduler polls.
func WithFeed(f scheduler.Feed) Option {
	return func(d *Daemon) {
		if f != nil {
			d.feed = f
		}
	}
}

// WithDispatcher routes scheduled and API-requested sessions to dispatcher
// instead of the workflow manager.
func WithDispatcher(dispatcher scheduler.Dispatcher) Option {
	return func(d *Daemon) {
		if dispatcher != nil {
			d.dispatcher = dispatcher
		}
	}
}

// WithClock injects the clock used by the scheduler and claim pruning.
func WithClock(clock clockwork.Clock) Option {
	return func(d *Daemon) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *ledger.Store, logger *slog.Logger, wf *workflow.Manager, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || wf == nil {
		return nil, errors.New("daemon requires config, ledger, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		workflow:   wf,
		dispatcher: wf,
		clock:      clockwork.NewRealClock(),
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
		pidPath:    cfg.PIDPath(),
	}
	for _, opt := range opts {
		opt(d)
	}

	if cfg.Scheduler.Enabled {
		if d.feed == nil {
			d.feed = feed.NewClient(cfg.Feed.ServerAPI,
				feed.WithTimeout(time.Duration(cfg.Feed.RequestTimeout)*time.Second),
				feed.WithLogger(logger),
			)
		}
		d.scheduler = scheduler.New(d.feed, d.dispatcher,
			scheduler.WithLogger(logger),
			scheduler.WithClock(d.clock),
			scheduler.WithInterval(time.Duration(cfg.Scheduler.PollInterval)*time.Second),
			scheduler.WithWindow(time.Duration(cfg.Scheduler.DispatchWindow)*time.Second),
			scheduler.WithClaimer(store),
		)
	}

	srv, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = srv
	return d, nil
}

// Start acquires the daemon lock, recovers the ledger, and launches the API
// server and scheduler.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := os.MkdirAll(d.cfg.Paths.StateDir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another meetcap daemon instance is already running (lock %s)", d.lockPath)
	}
	if err := writePIDFile(d.pidPath); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("write pid file: %w", err)
	}

	d.recoverLedger(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = os.Remove(d.pidPath)
		_ = d.lock.Unlock()
		return err
	}
	d.cancel = cancel

	if d.scheduler != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			_ = d.scheduler.Run(runCtx)
		}()
	}

	d.running.Store(true)
	d.logger.Info("meetcap daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.Bool("scheduler_enabled", d.scheduler != nil),
		logging.String("api_address", d.api.address()),
	)
	return nil
}

func (d *Daemon) recoverLedger(ctx context.Context) {
	if n, err := d.store.MarkInterrupted(ctx); err != nil {
		logging.WarnWithContext(d.logger, "failed to close out interrupted sessions", "ledger_recover_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale sessions stay listed as running"),
		)
	} else if n > 0 {
		logging.WarnWithContext(d.logger, "sessions interrupted by previous shutdown", "sessions_interrupted",
			logging.Int64("count", n),
			logging.String(logging.FieldImpact, "those meetings were not fully recorded"),
			logging.String(logging.FieldErrorHint, "run meetcap sessions to inspect them"),
		)
	}
	cutoff := d.clock.Now().Add(-claimRetention)
	if n, err := d.store.PruneClaims(ctx, cutoff); err != nil {
		logging.WarnWithContext(d.logger, "failed to prune dispatch claims", "ledger_prune_failed", logging.Error(err))
	} else if n > 0 {
		d.logger.Debug("pruned dispatch claims", logging.Int64("count", n))
	}
}

// Stop stops background work, waits for running sessions to tear down, and
// releases the daemon lock. The workflow manager refuses new sessions
// afterwards.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	d.api.stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.workflow.Shutdown(shutdownCtx); err != nil {
		logging.WarnWithContext(d.logger, "sessions still running at shutdown", "daemon_shutdown_timeout",
			logging.Error(err),
			logging.String(logging.FieldImpact, "capture processes may need manual cleanup"),
		)
	}

	if err := os.Remove(d.pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		d.logger.Warn("failed to remove pid file", logging.Error(err))
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("meetcap daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Dispatch starts a session through the configured dispatcher.
func (d *Daemon) Dispatch(ctx context.Context, req scheduler.Request) error {
	return d.dispatcher.Dispatch(ctx, req)
}

// ListSessions returns the most recent ledger rows.
func (d *Daemon) ListSessions(ctx context.Context, limit int) ([]*ledger.Session, error) {
	return d.store.ListSessions(ctx, limit)
}

// Session returns one ledger row with its transitions.
func (d *Daemon) Session(ctx context.Context, id int64) (*ledger.Session, []ledger.Transition, error) {
	sess, err := d.store.GetSession(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	transitions, err := d.store.Transitions(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return sess, transitions, nil
}

// Claimed reports whether taskID holds a dispatch claim in the ledger.
// Sessions started without a feed task are never claimed.
func (d *Daemon) Claimed(ctx context.Context, taskID string) (bool, error) {
	if strings.TrimSpace(taskID) == "" {
		return false, nil
	}
	return d.store.IsClaimed(ctx, taskID)
}

// Status returns the current daemon status.
func (d *Daemon) Status(_ context.Context) Status {
	status := Status{
		Running:          d.running.Load(),
		LedgerPath:       d.store.Path(),
		LockFilePath:     d.lockPath,
		APIAddress:       d.api.address(),
		Workflow:         d.workflow.Status(),
		SchedulerEnabled: d.scheduler != nil,
		Dependencies:     preflight.CheckSystemDeps(d.cfg),
	}
	if status.Running {
		status.PID = os.Getpid()
	}
	if d.scheduler != nil {
		status.LastPoll, status.Polls = d.scheduler.Last()
	}
	return status
}

func writePIDFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
