package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"meetcap/internal/browser"
	"meetcap/internal/capture"
	"meetcap/internal/liveness"
	"meetcap/internal/logging"
	"meetcap/internal/retry"
	"meetcap/internal/services"
)

const (
	defaultMaxWait         = 60 * time.Minute
	defaultMonitorInterval = 30 * time.Second
)

// ErrAlreadyRun is returned when Run is called twice on one orchestrator.
var ErrAlreadyRun = errors.New("session orchestrator already ran")

// AudioRouter provisions the virtual audio graph.
type AudioRouter interface {
	ConfigureDevices(ctx context.Context) error
}

// Browser is the browser session an orchestrator drives.
type Browser interface {
	Launch(ctx context.Context) error
	Authenticate(ctx context.Context, creds browser.Credentials) error
	Join(ctx context.Context, link string) (browser.JoinResult, error)
	CurrentURL(ctx context.Context) (string, error)
	VisibleText(ctx context.Context) (string, error)
	Screenshot(ctx context.Context, label string) string
	Close() error
}

// Capture is the media capture process.
type Capture interface {
	Start(ctx context.Context, outputPath string) (*capture.Artifact, error)
	Stop(ctx context.Context) (capture.StopResult, error)
	Verify(ctx context.Context, path string) bool
}

// Liveness reports whether the meeting is still running.
type Liveness interface {
	IsActive(ctx context.Context) bool
}

// Deps are the per-session collaborators. They are owned by one orchestrator
// and never shared with another session.
type Deps struct {
	Audio   AudioRouter
	Browser Browser
	Capture Capture
	// Liveness defaults to a liveness.Monitor over Browser.
	Liveness Liveness
}

// StateRecorder receives every state change.
type StateRecorder interface {
	RecordTransition(ctx context.Context, from, to State, err error, at time.Time) error
}

// Record is the observable result of a session.
type Record struct {
	Descriptor Descriptor
	Layout     Layout
	State      State
	History    []State
	// Fatal is the first error that ended the session early.
	Fatal    error
	Warnings []error
	Join     browser.JoinResult
	Artifact *capture.Artifact
	Stop     capture.StopResult
	// MonitorEnd says why monitoring ended: done, deadline, or canceled.
	MonitorEnd string
	StartedAt  time.Time
	EndedAt    time.Time
}

// CaptureStarted reports whether a capture artifact exists.
func (r *Record) CaptureStarted() bool { return r.Artifact != nil }

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock injects the clock used by the monitoring loop.
func WithClock(clock clockwork.Clock) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the orchestrator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.base = logger
			o.logger = logging.NewComponentLogger(logger, "session")
		}
	}
}

// WithCredentials enables sign-in before joining.
func WithCredentials(creds browser.Credentials) Option {
	return func(o *Orchestrator) {
		o.creds = creds
	}
}

// WithMonitoring sets the monitoring deadline and poll interval.
func WithMonitoring(maxWait, interval time.Duration) Option {
	return func(o *Orchestrator) {
		if maxWait > 0 {
			o.maxWait = maxWait
		}
		if interval > 0 {
			o.interval = interval
		}
	}
}

// WithStateRecorder reports transitions to r.
func WithStateRecorder(r StateRecorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// WithExpectedDomain sets the meeting domain for the default liveness monitor.
func WithExpectedDomain(domain string) Option {
	return func(o *Orchestrator) {
		o.domain = domain
	}
}

// Orchestrator runs one session. It is single-use.
type Orchestrator struct {
	deps     Deps
	creds    browser.Credentials
	clock    clockwork.Clock
	logger   *slog.Logger
	recorder StateRecorder
	maxWait  time.Duration
	interval time.Duration
	domain   string

	mu      sync.Mutex
	ran     bool
	record  Record
	stopErr error

	browserStarted bool
	base           *slog.Logger
}

// NewOrchestrator builds an orchestrator for desc.
func NewOrchestrator(desc Descriptor, layout Layout, deps Deps, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		deps:     deps,
		clock:    clockwork.NewRealClock(),
		logger:   logging.NewComponentLogger(logging.NewNop(), "session"),
		maxWait:  defaultMaxWait,
		interval: defaultMonitorInterval,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.deps.Liveness == nil && o.deps.Browser != nil {
		o.deps.Liveness = liveness.New(o.deps.Browser, o.domain, o.base)
	}
	o.record = Record{Descriptor: desc, Layout: layout, State: StateCreated, History: []State{StateCreated}}
	return o
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.record.State
}

// Snapshot returns a copy of the record so far.
func (o *Orchestrator) Snapshot() Record {
	o.mu.Lock()
	defer o.mu.Unlock()
	rec := o.record
	rec.History = append([]State(nil), o.record.History...)
	rec.Warnings = append([]error(nil), o.record.Warnings...)
	return rec
}

// Run drives the session to a terminal state and returns the final record.
// Canceling ctx ends monitoring early but never skips cleanup. The returned
// error is the first fatal failure, if any.
func (o *Orchestrator) Run(ctx context.Context) (Record, error) {
	o.mu.Lock()
	if o.ran {
		o.mu.Unlock()
		return Record{}, ErrAlreadyRun
	}
	o.ran = true
	o.record.StartedAt = o.clock.Now()
	desc := o.record.Descriptor
	o.mu.Unlock()

	ctx = services.WithMeetingID(ctx, desc.MeetingID)
	if desc.TaskID != "" {
		ctx = services.WithTaskID(ctx, desc.TaskID)
	}
	cleanupCtx := context.WithoutCancel(ctx)

	state := StateCreated
	for !state.Terminal() {
		stepCtx := ctx
		if state == StateStopping || state == StateVerified {
			stepCtx = cleanupCtx
		}
		out := o.runStep(stepCtx, state)
		next, err := Transition(state, out)
		if err != nil {
			o.fail(err)
		}
		o.advance(cleanupCtx, state, next, out)
		state = next
	}

	o.mu.Lock()
	o.record.EndedAt = o.clock.Now()
	fatal := o.record.Fatal
	o.mu.Unlock()
	return o.Snapshot(), fatal
}

func (o *Orchestrator) runStep(ctx context.Context, state State) Outcome {
	switch state {
	case StateCreated:
		return o.guard(ctx, StepConfigureAudio, func(ctx context.Context) error {
			if o.deps.Audio == nil {
				return nil
			}
			return o.deps.Audio.ConfigureDevices(ctx)
		})
	case StateAudioReady:
		return o.guard(ctx, StepLaunchBrowser, func(ctx context.Context) error {
			if o.deps.Browser == nil {
				return services.Wrap(services.ErrBrowserInit, "session", "launch browser", "no browser configured", nil)
			}
			o.browserStarted = true
			return o.deps.Browser.Launch(ctx)
		})
	case StateBrowserReady:
		if !o.creds.Empty() {
			return o.guard(ctx, StepAuthenticate, func(ctx context.Context) error {
				return o.deps.Browser.Authenticate(ctx, o.creds)
			})
		}
		return o.join(ctx)
	case StateAuthenticated:
		return o.join(ctx)
	case StateJoined:
		return o.guard(ctx, StepStartCapture, func(ctx context.Context) error {
			if o.deps.Capture == nil {
				return services.Wrap(services.ErrCaptureStart, "session", "start capture", "no capture configured", nil)
			}
			artifact, err := o.deps.Capture.Start(ctx, o.record.Layout.VideoPath())
			if err != nil {
				return err
			}
			o.mu.Lock()
			o.record.Artifact = artifact
			o.mu.Unlock()
			return nil
		})
	case StateRecording:
		return Outcome{Step: StepBeginMonitoring}
	case StateMonitoring:
		return o.guard(ctx, StepEndMonitoring, o.monitor)
	case StateStopping:
		return Outcome{Step: StepCleanup, Err: o.cleanup(ctx)}
	case StateVerified:
		return Outcome{Step: StepFinish, Err: o.finishError()}
	default:
		return Outcome{Step: StepFinish, Err: fmt.Errorf("%w: no step for %s", ErrIllegalTransition, state)}
	}
}

func (o *Orchestrator) join(ctx context.Context) Outcome {
	return o.guard(ctx, StepJoin, func(ctx context.Context) error {
		res, err := o.deps.Browser.Join(ctx, o.record.Descriptor.Link)
		if err != nil {
			return err
		}
		o.mu.Lock()
		o.record.Join = res
		o.mu.Unlock()
		return nil
	})
}

// monitor blocks until the meeting ends, the deadline passes, or ctx is
// canceled. None of those is an error.
func (o *Orchestrator) monitor(ctx context.Context) error {
	deadline := o.clock.Now().Add(o.maxWait)
	logger := logging.WithContext(ctx, o.logger)
	logger.Info("monitoring meeting",
		logging.String(logging.FieldEventType, "session_monitoring"),
		logging.Duration("max_wait", o.maxWait),
		logging.Duration("interval", o.interval),
	)
	end := retry.Until(ctx, o.clock, o.interval, deadline, func(ctx context.Context) bool {
		return !o.deps.Liveness.IsActive(ctx)
	})
	o.mu.Lock()
	o.record.MonitorEnd = end.String()
	o.mu.Unlock()
	if end == retry.Deadline {
		logging.WarnWithContext(logger, "meeting exceeded maximum wait; stopping capture", "session_deadline",
			logging.Duration("max_wait", o.maxWait),
			logging.String(logging.FieldImpact, "recording ends before the meeting does"),
			logging.String(logging.FieldErrorHint, "raise session.max_wait_minutes for long meetings"),
		)
	} else {
		logger.Info("monitoring ended", logging.String("reason", end.String()))
	}
	return nil
}

// cleanup stops capture, verifies the artifact, then releases the browser.
// Each part runs even if an earlier part fails. The returned error is a stop
// that could not be completed.
func (o *Orchestrator) cleanup(ctx context.Context) error {
	logger := logging.WithContext(ctx, o.logger)
	var stopErr error

	if artifact := o.currentArtifact(); artifact != nil {
		out := o.guard(ctx, StepCleanup, func(ctx context.Context) error {
			res, err := o.deps.Capture.Stop(ctx)
			o.mu.Lock()
			o.record.Stop = res
			o.mu.Unlock()
			if err == nil && res.Tier == capture.TierKill {
				o.warn(services.Wrap(services.ErrCaptureStopTimeout, "session", "stop capture", "capture had to be killed", nil))
			}
			return err
		})
		stopErr = out.Err

		verified := false
		o.guard(ctx, StepCleanup, func(ctx context.Context) error {
			verified = o.deps.Capture.Verify(ctx, artifact.OutputPath)
			return nil
		})
		o.mu.Lock()
		o.record.Artifact.Verified = verified
		o.stopErr = stopErr
		o.mu.Unlock()
		if !verified {
			o.warn(services.Wrap(services.ErrVerification, "session", "verify capture", artifact.OutputPath, nil))
		}
	}

	if o.browserStarted {
		out := o.guard(ctx, StepCleanup, func(context.Context) error {
			return o.deps.Browser.Close()
		})
		if out.Err != nil {
			logger.Debug("browser close failed", logging.Error(out.Err))
			o.warn(out.Err)
		}
	}
	return stopErr
}

// finishError decides the terminal state: the first fatal error, a capture
// that never started, or a stop that did not complete.
func (o *Orchestrator) finishError() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.record.Fatal != nil {
		return o.record.Fatal
	}
	if o.record.Artifact == nil {
		return services.Wrap(services.ErrCaptureStart, "session", "finish", "capture never started", nil)
	}
	return o.stopErr
}

func (o *Orchestrator) currentArtifact() *capture.Artifact {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.record.Artifact == nil {
		return nil
	}
	artifact := *o.record.Artifact
	return &artifact
}

// guard runs fn and converts a panic into a fatal step error.
func (o *Orchestrator) guard(ctx context.Context, step Step, fn func(context.Context) error) (out Outcome) {
	out.Step = step
	defer func() {
		if r := recover(); r != nil {
			out.Err = fmt.Errorf("%w: panic in %s: %v", markerFor(step), step, r)
		}
	}()
	out.Err = fn(ctx)
	return out
}

func (o *Orchestrator) advance(ctx context.Context, from, to State, out Outcome) {
	if out.Err != nil {
		switch out.Step {
		case StepEndMonitoring, StepCleanup:
			o.warn(out.Err)
		default:
			o.fail(out.Err)
		}
	}

	o.mu.Lock()
	o.record.State = to
	o.record.History = append(o.record.History, to)
	o.mu.Unlock()

	logger := logging.WithContext(services.WithState(ctx, to.String()), o.logger)
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "session_state"),
		logging.String("from", from.String()),
		logging.String("step", out.Step.String()),
	}
	if out.Err != nil {
		attrs = append(attrs, logging.Error(out.Err), logging.String("error_kind", services.Kind(out.Err)))
	}
	switch {
	case to == StateFailed:
		logging.ErrorWithContext(logger, "session failed", "session_state", append(attrs,
			logging.String(logging.FieldErrorHint, "see screenshots and process.log in the session directory"))...)
	case out.Err != nil:
		logging.WarnWithContext(logger, "session step failed", "session_state", append(attrs,
			logging.String(logging.FieldImpact, "session continues to cleanup"))...)
	default:
		logger.Info("session state changed", logging.Args(attrs...)...)
	}

	if o.recorder != nil {
		if err := o.recorder.RecordTransition(ctx, from, to, out.Err, o.clock.Now()); err != nil {
			logger.Debug("record transition failed", logging.Error(err))
		}
	}
}

func (o *Orchestrator) fail(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.record.Fatal == nil {
		o.record.Fatal = err
	}
}

func (o *Orchestrator) warn(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.record.Warnings = append(o.record.Warnings, err)
}

func markerFor(step Step) error {
	switch step {
	case StepConfigureAudio:
		return services.ErrAudioSetup
	case StepLaunchBrowser:
		return services.ErrBrowserInit
	case StepAuthenticate:
		return services.ErrAuth
	case StepJoin:
		return services.ErrJoin
	case StepStartCapture:
		return services.ErrCaptureStart
	case StepEndMonitoring:
		return services.ErrInspection
	default:
		return services.ErrTransient
	}
}
