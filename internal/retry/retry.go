// Package retry provides the two bounded waiting loops used by capture
// sessions: a fixed number of attempts with a pause between them, and a
// periodic check bounded by a deadline. Both take an injectable clock so tests
// can drive them with a fake clock instead of sleeping.
package retry

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Outcome describes how a deadline-bounded loop ended.
type Outcome int

const (
	// Done means the check reported completion.
	Done Outcome = iota
	// Deadline means the deadline passed before completion.
	Deadline
	// Canceled means the context was canceled first.
	Canceled
)

func (o Outcome) String() string {
	switch o {
	case Done:
		return "done"
	case Deadline:
		return "deadline"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// AttemptFunc runs one attempt. It returns true when the work is finished.
type AttemptFunc func(ctx context.Context, attempt int) (bool, error)

// Attempts runs fn up to attempts times, pausing interval between attempts but
// never after the last one. It returns the 1-based attempt that finished, or 0
// with ok=false when every attempt came back unfinished. An error from fn or a
// canceled context stops the loop immediately.
func Attempts(ctx context.Context, clock clockwork.Clock, attempts int, interval time.Duration, fn AttemptFunc) (int, bool, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, false, err
		}
		done, err := fn(ctx, attempt)
		if err != nil {
			return attempt, false, err
		}
		if done {
			return attempt, true, nil
		}
		if attempt == attempts {
			break
		}
		if err := sleep(ctx, clock, interval); err != nil {
			return 0, false, err
		}
	}
	return 0, false, nil
}

// Until calls check immediately and then every interval until it returns
// true, the deadline passes, or ctx is canceled. The final wait is shortened
// so the loop never sleeps past the deadline.
func Until(ctx context.Context, clock clockwork.Clock, interval time.Duration, deadline time.Time, check func(context.Context) bool) Outcome {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	for {
		if ctx.Err() != nil {
			return Canceled
		}
		now := clock.Now()
		if !now.Before(deadline) {
			return Deadline
		}
		if check(ctx) {
			return Done
		}
		wait := interval
		if remaining := deadline.Sub(clock.Now()); remaining < wait {
			wait = remaining
		}
		if err := sleep(ctx, clock, wait); err != nil {
			return Canceled
		}
	}
}

// Sleep waits for d on clock or returns ctx.Err() when ctx ends first.
func Sleep(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return sleep(ctx, clock, d)
}

func sleep(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}
