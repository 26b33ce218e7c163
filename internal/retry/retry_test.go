package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"meetcap/internal/retry"
	"meetcap/internal/testsupport"
)

func TestAttemptsStopsOnFirstSuccessWithoutWaiting(t *testing.T) {
	clock := testsupport.NewFakeClock()
	calls := 0
	attempt, ok, err := retry.Attempts(context.Background(), clock, 5, 5*time.Second, func(context.Context, int) (bool, error) {
		calls++
		return true, nil
	})
	if err != nil || !ok || attempt != 1 || calls != 1 {
		t.Fatalf("unexpected result attempt=%d ok=%v err=%v calls=%d", attempt, ok, err, calls)
	}
	if !clock.Now().Equal(testsupport.Epoch) {
		t.Fatalf("clock advanced without a wait: %v", clock.Now())
	}
}

func TestAttemptsExhaustedWaitsBetweenButNotAfterLast(t *testing.T) {
	clock := testsupport.NewFakeClock()
	type result struct {
		attempt int
		ok      bool
		err     error
		calls   []time.Time
	}
	done := make(chan result, 1)
	go func() {
		var calls []time.Time
		attempt, ok, err := retry.Attempts(context.Background(), clock, 5, 5*time.Second, func(context.Context, int) (bool, error) {
			calls = append(calls, clock.Now())
			return false, nil
		})
		done <- result{attempt, ok, err, calls}
	}()

	res := testsupport.AdvanceUntil(t, clock, 5*time.Second, 10, done)
	if res.err != nil || res.ok || res.attempt != 0 {
		t.Fatalf("expected exhaustion, got %+v", res)
	}
	if len(res.calls) != 5 {
		t.Fatalf("expected 5 attempts, got %d", len(res.calls))
	}
	if elapsed := res.calls[4].Sub(testsupport.Epoch); elapsed != 20*time.Second {
		t.Fatalf("expected last attempt at +20s, got %v", elapsed)
	}
	if elapsed := clock.Since(testsupport.Epoch); elapsed != 20*time.Second {
		t.Fatalf("expected no wait after last attempt, clock at +%v", elapsed)
	}
}

func TestAttemptsPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	attempt, ok, err := retry.Attempts(context.Background(), testsupport.NewFakeClock(), 3, time.Second, func(context.Context, int) (bool, error) {
		return false, boom
	})
	if !errors.Is(err, boom) || ok || attempt != 1 {
		t.Fatalf("unexpected result attempt=%d ok=%v err=%v", attempt, ok, err)
	}
}

func TestUntilReachesDeadline(t *testing.T) {
	clock := testsupport.NewFakeClock()
	deadline := clock.Now().Add(60 * time.Minute)
	checks := 0
	done := make(chan retry.Outcome, 1)
	go func() {
		done <- retry.Until(context.Background(), clock, 30*time.Second, deadline, func(context.Context) bool {
			checks++
			return false
		})
	}()

	outcome := testsupport.AdvanceUntil(t, clock, 30*time.Second, 200, done)
	if outcome != retry.Deadline {
		t.Fatalf("expected deadline outcome, got %v", outcome)
	}
	if checks != 120 {
		t.Fatalf("expected 120 checks in 60 minutes at 30s, got %d", checks)
	}
	if got := clock.Since(testsupport.Epoch); got != 60*time.Minute {
		t.Fatalf("expected loop to end exactly at the deadline, got %v", got)
	}
}

func TestUntilShortensFinalWait(t *testing.T) {
	clock := testsupport.NewFakeClock()
	deadline := clock.Now().Add(45 * time.Second)
	done := make(chan retry.Outcome, 1)
	go func() {
		done <- retry.Until(context.Background(), clock, 30*time.Second, deadline, func(context.Context) bool { return false })
	}()
	outcome := testsupport.AdvanceUntil(t, clock, 15*time.Second, 10, done)
	if outcome != retry.Deadline {
		t.Fatalf("expected deadline, got %v", outcome)
	}
	if got := clock.Since(testsupport.Epoch); got != 45*time.Second {
		t.Fatalf("loop overshot the deadline: %v", got)
	}
}

func TestUntilDoneOnFirstCheck(t *testing.T) {
	clock := testsupport.NewFakeClock()
	outcome := retry.Until(context.Background(), clock, time.Second, clock.Now().Add(time.Minute), func(context.Context) bool { return true })
	if outcome != retry.Done {
		t.Fatalf("expected done, got %v", outcome)
	}
}

func TestUntilCanceled(t *testing.T) {
	clock := testsupport.NewFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan retry.Outcome, 1)
	go func() {
		done <- retry.Until(ctx, clock, 30*time.Second, clock.Now().Add(time.Hour), func(context.Context) bool { return false })
	}()
	if err := clock.BlockUntilContext(context.Background(), 1); err != nil {
		t.Fatalf("block: %v", err)
	}
	cancel()
	select {
	case outcome := <-done:
		if outcome != retry.Canceled {
			t.Fatalf("expected canceled, got %v", outcome)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Until did not observe cancellation")
	}
}
