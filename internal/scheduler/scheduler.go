package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"meetcap/internal/feed"
	"meetcap/internal/logging"
	"meetcap/internal/services"
	"meetcap/internal/session"
)

const (
	// DefaultPollInterval is the time between feed polls.
	DefaultPollInterval = 60 * time.Second
	// DefaultWindow is the largest time-until-start that triggers dispatch.
	DefaultWindow = 120 * time.Second
)

// ErrBusy is returned by dispatchers that refuse a meeting already running.
var ErrBusy = errors.New("session already active")

// Feed is the meeting source.
type Feed interface {
	Fetch(ctx context.Context) ([]feed.Meeting, error)
	Claim(ctx context.Context, taskID string) error
}

// Claimer records dispatch claims. Claim returns false when the task was
// claimed before. Release drops a claim whose dispatch failed so a later poll
// can try again.
type Claimer interface {
	Claim(ctx context.Context, taskID, meetingID string, start, at time.Time) (bool, error)
	Release(ctx context.Context, taskID string) error
}

// Request asks for one session to be started.
type Request struct {
	Link      string
	MeetingID string
	TaskID    string
	Username  string
	StartTime time.Time
}

// Dispatcher starts a session. It must not block on the session itself.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) error
}

// Summary describes one poll.
type Summary struct {
	At               time.Time
	Fetched          int
	InWindow         int
	Dispatched       int
	AlreadyClaimed   int
	ClaimFailures    int
	DispatchFailures int
	Err              error
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock injects the clock.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Scheduler) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logging.NewComponentLogger(logger, "scheduler")
		}
	}
}

// WithInterval sets the poll interval.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithWindow sets the dispatch window.
func WithWindow(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithClaimer enables the idempotency guard.
func WithClaimer(c Claimer) Option {
	return func(s *Scheduler) {
		s.claimer = c
	}
}

// Scheduler is the feed poll loop.
type Scheduler struct {
	feed       Feed
	dispatcher Dispatcher
	claimer    Claimer
	clock      clockwork.Clock
	logger     *slog.Logger
	interval   time.Duration
	window     time.Duration

	mu   sync.Mutex
	last Summary
	runs int
}

// New constructs a scheduler.
func New(f Feed, d Dispatcher, opts ...Option) *Scheduler {
	s := &Scheduler{
		feed:       f,
		dispatcher: d,
		clock:      clockwork.NewRealClock(),
		logger:     logging.NewComponentLogger(logging.NewNop(), "scheduler"),
		interval:   DefaultPollInterval,
		window:     DefaultWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run polls immediately and then every interval until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		logging.String(logging.FieldEventType, "scheduler_started"),
		logging.Duration("interval", s.interval),
		logging.Duration("window", s.window),
	)
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped", logging.String(logging.FieldEventType, "scheduler_stopped"))
			return nil
		case <-ticker.Chan():
			s.Poll(ctx)
		}
	}
}

// Poll runs one fetch and dispatch pass.
func (s *Scheduler) Poll(ctx context.Context) Summary {
	now := s.clock.Now()
	summary := Summary{At: now}
	defer s.remember(&summary)

	meetings, err := s.feed.Fetch(ctx)
	if err != nil {
		summary.Err = err
		logging.WarnWithContext(s.logger, "feed fetch failed; retrying next poll", "scheduler_fetch_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "no meetings dispatched this poll"),
			logging.String(logging.FieldErrorHint, "check feed.server_api and server availability"),
		)
		return summary
	}
	summary.Fetched = len(meetings)

	for _, m := range meetings {
		until := m.StartTime.Sub(now)
		if until < 0 || until > s.window {
			continue
		}
		summary.InWindow++
		s.dispatchOne(ctx, now, m, &summary)
	}

	if summary.InWindow > 0 {
		s.logger.Info("scheduler poll",
			logging.String(logging.FieldEventType, "scheduler_poll"),
			logging.Int("fetched", summary.Fetched),
			logging.Int("in_window", summary.InWindow),
			logging.Int("dispatched", summary.Dispatched),
			logging.Int("already_claimed", summary.AlreadyClaimed),
		)
	} else {
		s.logger.Debug("scheduler poll", logging.Int("fetched", summary.Fetched))
	}
	return summary
}

func (s *Scheduler) dispatchOne(ctx context.Context, now time.Time, m feed.Meeting, summary *Summary) {
	meetingID, err := session.MeetingIDFromLink(m.Link)
	ctx = services.WithTaskID(ctx, m.TaskID)
	logger := logging.WithContext(ctx, s.logger)
	if err != nil {
		summary.DispatchFailures++
		logging.WarnWithContext(logger, "meeting link has no usable id", "scheduler_invalid_link",
			logging.String("link", m.Link),
			logging.Error(err),
			logging.String(logging.FieldImpact, "meeting will not be recorded"),
		)
		return
	}
	ctx = services.WithMeetingID(ctx, meetingID)
	logger = logging.WithContext(ctx, s.logger)

	claimed := false
	if s.claimer != nil && m.TaskID != "" {
		fresh, err := s.claimer.Claim(ctx, m.TaskID, meetingID, m.StartTime, now)
		claimed = fresh && err == nil
		switch {
		case err != nil:
			logging.WarnWithContext(logger, "ledger claim failed; dispatching anyway", "scheduler_claim_ledger",
				logging.Error(err),
				logging.String(logging.FieldImpact, "duplicate dispatch is possible"),
			)
		case !fresh:
			summary.AlreadyClaimed++
			logger.Debug("meeting already claimed")
			return
		}
	}

	if m.TaskID != "" {
		if err := s.feed.Claim(ctx, m.TaskID); err != nil {
			summary.ClaimFailures++
			logging.WarnWithContext(logger, "feed claim failed; dispatching anyway", "scheduler_claim_race",
				logging.Error(err),
				logging.String(logging.FieldImpact, "record may be seen again by another poller"),
				logging.String(logging.FieldErrorHint, "check the delete-meeting-record endpoint"),
			)
		}
	}

	req := Request{
		Link:      m.Link,
		MeetingID: meetingID,
		TaskID:    m.TaskID,
		Username:  m.Username,
		StartTime: m.StartTime,
	}
	if err := s.dispatcher.Dispatch(ctx, req); err != nil {
		summary.DispatchFailures++
		attrs := []logging.Attr{
			logging.Error(err),
			logging.String(logging.FieldImpact, "meeting will not be recorded"),
		}
		if errors.Is(err, ErrBusy) {
			attrs = append(attrs, logging.String(logging.FieldErrorHint, "a session for this meeting is already running"))
		} else if claimed {
			s.release(ctx, logger, m.TaskID)
		}
		logging.WarnWithContext(logger, "dispatch failed", "scheduler_dispatch_failed", attrs...)
		return
	}
	summary.Dispatched++
	logger.Info("meeting dispatched",
		logging.String(logging.FieldEventType, "scheduler_dispatch"),
		logging.Time("start_time", m.StartTime),
		logging.Duration("until_start", m.StartTime.Sub(now)),
	)
}

// Last returns the most recent poll summary and the number of polls run.
func (s *Scheduler) Last() (Summary, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.runs
}

func (s *Scheduler) remember(summary *Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = *summary
	s.runs++
}

// release undoes a ledger claim after a failed dispatch. The meeting is
// retried on the next poll if the feed still lists it.
func (s *Scheduler) release(ctx context.Context, logger *slog.Logger, taskID string) {
	if err := s.claimer.Release(ctx, taskID); err != nil {
		logging.WarnWithContext(logger, "failed to release dispatch claim", "scheduler_release_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "meeting will not be retried until the claim is pruned"),
		)
		return
	}
	logger.Debug("dispatch claim released")
}
