package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"meetcap/internal/browser"
	"meetcap/internal/ledger"
	"meetcap/internal/logging"
	"meetcap/internal/scheduler"
	"meetcap/internal/services"
	"meetcap/internal/session"
)

// ErrShuttingDown is returned by Dispatch after Shutdown.
var ErrShuttingDown = errors.New("workflow manager shutting down")

// Dispatch starts a session for req in its own goroutine and returns once the
// session has been accepted. It returns scheduler.ErrBusy when a session for
// the same meeting is already running.
func (m *Manager) Dispatch(_ context.Context, req scheduler.Request) error {
	prepared, err := m.prepare(req)
	if err != nil {
		return err
	}
	go func() {
		defer m.wg.Done()
		_, _ = m.run(m.baseCtx, prepared)
	}()
	return nil
}

// RunSession runs a session for req and blocks until it and its
// post-processing finish. Canceling ctx ends monitoring early; cleanup still
// runs.
func (m *Manager) RunSession(ctx context.Context, req scheduler.Request) (session.Record, error) {
	prepared, err := m.prepare(req)
	if err != nil {
		return session.Record{}, err
	}
	defer m.wg.Done()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(m.baseCtx, cancel)
	defer stop()
	return m.run(runCtx, prepared)
}

type preparedSession struct {
	active *activeSession
	lock   *flock.Flock
}

// prepare validates req, reserves the meeting id, creates the directories and
// takes the per-meeting lock. On success the caller owns the reservation and
// must call m.wg.Done when the session ends.
func (m *Manager) prepare(req scheduler.Request) (*preparedSession, error) {
	root := ""
	if m.cfg != nil {
		root = m.cfg.Paths.StorageDir
	}
	desc, err := session.NewDescriptor(req.Link, req.Username, req.TaskID, root, m.clock.Now())
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "workflow", "dispatch", "invalid meeting link", err)
	}
	if req.MeetingID != "" && req.MeetingID != desc.MeetingID {
		return nil, services.Wrap(services.ErrValidation, "workflow", "dispatch",
			fmt.Sprintf("meeting id %q does not match link", req.MeetingID), nil)
	}
	layout := session.NewLayout(root, desc.MeetingID)
	entry := &activeSession{
		desc:      desc,
		layout:    layout,
		sessionID: uuid.NewString(),
		started:   m.clock.Now(),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrShuttingDown
	}
	if _, busy := m.active[desc.MeetingID]; busy {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", scheduler.ErrBusy, desc.MeetingID)
	}
	m.active[desc.MeetingID] = entry
	m.wg.Add(1)
	m.mu.Unlock()

	release := func() {
		m.mu.Lock()
		delete(m.active, desc.MeetingID)
		m.mu.Unlock()
		m.wg.Done()
	}

	if err := os.MkdirAll(layout.Root, 0o755); err != nil {
		release()
		return nil, fmt.Errorf("create session directory: %w", err)
	}
	lock := flock.New(layout.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		release()
		return nil, fmt.Errorf("acquire session lock: %w", err)
	}
	if !ok {
		release()
		return nil, fmt.Errorf("%w: %s is locked by another process", scheduler.ErrBusy, desc.MeetingID)
	}
	if err := layout.Prepare(); err != nil {
		_ = lock.Unlock()
		release()
		return nil, fmt.Errorf("prepare session directory: %w", err)
	}
	return &preparedSession{active: entry, lock: lock}, nil
}

func (m *Manager) run(ctx context.Context, p *preparedSession) (rec session.Record, err error) {
	entry := p.active
	desc := entry.desc
	defer func() {
		_ = p.lock.Unlock()
		m.mu.Lock()
		delete(m.active, desc.MeetingID)
		m.mu.Unlock()
	}()

	base := m.logger.With(logging.String(logging.FieldSessionID, entry.sessionID))
	sessionLogger, closer := openProcessLog(m.cfg, base, entry.layout)
	defer closer.Close()

	ctx = services.WithMeetingID(ctx, desc.MeetingID)
	if desc.TaskID != "" {
		ctx = services.WithTaskID(ctx, desc.TaskID)
	}
	logger := logging.WithContext(ctx, logging.NewComponentLogger(sessionLogger, "workflow"))
	logger.Info("session dispatched",
		logging.String(logging.FieldEventType, "session_dispatched"),
		logging.String("link", desc.Link),
		logging.String("username", desc.Username),
		logging.String("dir", entry.layout.Root),
	)

	ledgerID := m.startLedger(ctx, logger, entry)
	m.notifySessionStarted(ctx, logger, desc)

	deps, err := m.factory.Build(desc, entry.layout, sessionLogger)
	if err != nil {
		err = services.Wrap(services.ErrConfiguration, "workflow", "build session", "", err)
		rec = session.Record{Descriptor: desc, Layout: entry.layout, State: session.StateFailed, Fatal: err}
		m.finish(ctx, logger, entry, ledgerID, rec, err)
		return rec, err
	}

	var releaseAudio func()
	deps.Audio, releaseAudio = m.audio.share(deps.Audio, sessionLogger)
	orch := session.NewOrchestrator(desc, entry.layout, deps, m.orchestratorOptions(sessionLogger, ledgerID)...)
	m.mu.Lock()
	entry.orch = orch
	m.mu.Unlock()

	rec, err = orch.Run(ctx)
	releaseAudio()
	m.finish(ctx, logger, entry, ledgerID, rec, err)
	m.postProcess(ctx, logger, ledgerID, rec, sessionLogger)
	return rec, err
}

func (m *Manager) orchestratorOptions(logger *slog.Logger, ledgerID int64) []session.Option {
	opts := []session.Option{
		session.WithClock(m.clock),
		session.WithLogger(logger),
	}
	if m.cfg != nil {
		opts = append(opts,
			session.WithCredentials(browser.Credentials{Email: m.cfg.Browser.Email, Password: m.cfg.Browser.Password}),
			session.WithMonitoring(
				time.Duration(m.cfg.Session.MaxWaitMinutes)*time.Minute,
				time.Duration(m.cfg.Session.MonitorInterval)*time.Second,
			),
			session.WithExpectedDomain(m.cfg.Session.ExpectedDomain),
		)
	}
	if m.ledger != nil && ledgerID > 0 {
		opts = append(opts, session.WithStateRecorder(ledgerRecorder{store: m.ledger, id: ledgerID}))
	}
	return opts
}

func (m *Manager) startLedger(ctx context.Context, logger *slog.Logger, entry *activeSession) int64 {
	if m.ledger == nil {
		return 0
	}
	id, err := m.ledger.StartSession(ctx, ledger.NewSession{
		MeetingID: entry.desc.MeetingID,
		TaskID:    entry.desc.TaskID,
		Username:  entry.desc.Username,
		Link:      entry.desc.Link,
		Dir:       entry.layout.Root,
		State:     session.StateCreated.String(),
		StartedAt: entry.started,
	})
	if err != nil {
		logging.WarnWithContext(logger, "ledger unavailable for session", "ledger_start_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "session will not appear in meetcap sessions"),
			logging.String(logging.FieldErrorHint, "check the ledger database under paths.state_dir"),
		)
		return 0
	}
	return id
}

func (m *Manager) finish(ctx context.Context, logger *slog.Logger, entry *activeSession, ledgerID int64, rec session.Record, runErr error) {
	ctx = context.WithoutCancel(ctx)
	m.mu.Lock()
	if rec.State == session.StateCompleted {
		m.completed++
	} else {
		m.failed++
	}
	m.lastErr = runErr
	snapshot := rec
	m.last = &snapshot
	m.mu.Unlock()

	verified := rec.Artifact != nil && rec.Artifact.Verified
	if m.ledger != nil && ledgerID > 0 {
		out := ledger.Outcome{
			State:    rec.State.String(),
			Verified: verified,
			EndedAt:  m.clock.Now(),
		}
		if runErr != nil {
			out.ErrorKind = services.Kind(runErr)
			out.ErrorMessage = runErr.Error()
		}
		if err := m.ledger.FinishSession(ctx, ledgerID, out); err != nil {
			logger.Debug("ledger finish failed", logging.Error(err))
		}
	}

	duration := m.clock.Since(entry.started)
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "session_finished"),
		logging.String(logging.FieldState, rec.State.String()),
		logging.Duration("duration", duration),
		logging.Bool("verified", verified),
		logging.Int("warnings", len(rec.Warnings)),
	}
	if runErr != nil {
		logging.ErrorWithContext(logger, "session finished with failure", "session_finished", append(attrs,
			logging.Error(runErr),
			logging.String("error_kind", services.Kind(runErr)),
			logging.String(logging.FieldErrorHint, "see screenshots and process.log in "+entry.layout.Root),
		)...)
		m.notifySessionFailed(ctx, logger, entry.desc, runErr)
		return
	}
	logger.Info("session finished", logging.Args(attrs...)...)
	m.notifySessionCompleted(ctx, logger, entry.desc, duration)
}

func (m *Manager) postProcess(ctx context.Context, logger *slog.Logger, ledgerID int64, rec session.Record, sessionLogger *slog.Logger) {
	if m.post == nil || !rec.CaptureStarted() {
		return
	}
	if m.cfg != nil && !m.cfg.Processing.Enabled {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := m.post.Process(ctx, rec, sessionLogger); err != nil {
		logging.WarnWithContext(logger, "post-processing failed", "processing_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "no transcript or minutes for this meeting"),
			logging.String(logging.FieldErrorHint, "rerun processing once the cause is fixed; the recording is kept"),
		)
		m.notifyError(ctx, logger, "post-processing "+rec.Descriptor.MeetingID, err)
		return
	}
	if m.ledger != nil && ledgerID > 0 {
		if err := m.ledger.MarkProcessed(ctx, ledgerID); err != nil {
			logger.Debug("ledger mark processed failed", logging.Error(err))
		}
	}
	m.notifyProcessingCompleted(ctx, logger, rec.Descriptor)
}
