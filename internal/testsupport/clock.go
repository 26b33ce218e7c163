package testsupport

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

// Epoch is the fixed start time used by fake clocks in tests.
var Epoch = time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)

// NewFakeClock returns a fake clock positioned at Epoch.
func NewFakeClock() *clockwork.FakeClock {
	return clockwork.NewFakeClockAt(Epoch)
}

// AdvanceUntil steps the fake clock by step each time a goroutine blocks on it,
// until done delivers a value. It fails the test if nothing arrives within
// limit steps.
func AdvanceUntil[T any](t *testing.T, clock *clockwork.FakeClock, step time.Duration, limit int, done <-chan T) T {
	t.Helper()
	for i := 0; i <= limit; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		blocked := make(chan error, 1)
		go func() { blocked <- clock.BlockUntilContext(ctx, 1) }()
		select {
		case value := <-done:
			cancel()
			return value
		case err := <-blocked:
			cancel()
			if err != nil {
				select {
				case value := <-done:
					return value
				default:
				}
				t.Fatalf("fake clock never gained a waiter: %v", err)
			}
			clock.Advance(step)
		}
	}
	t.Fatalf("no result after %d clock steps", limit)
	var zero T
	return zero
}
