package testutil

import (
	"context"
	"testing"
	"time"
)

// DefaultTestTimeout bounds contexts returned by Context when the caller
// passes zero.
const DefaultTestTimeout = 5 * time.Second

// deadlineBuffer is left between a Context deadline and the test binary's
// own deadline so failures report cleanly instead of panicking.
const deadlineBuffer = 2 * time.Second

// Context returns a context that expires after timeout, or just before the
// test's deadline if that comes first. It is cancelled when the test ends.
func Context(t testing.TB, timeout time.Duration) context.Context {
	t.Helper()

	if timeout <= 0 {
		timeout = DefaultTestTimeout
	}
	deadline := time.Now().Add(timeout)
	if td, ok := testDeadline(t); ok {
		if adjusted := td.Add(-deadlineBuffer); adjusted.Before(deadline) && time.Until(adjusted) > 0 {
			deadline = adjusted
		}
	}

	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	t.Cleanup(cancel)
	return ctx
}

func testDeadline(t testing.TB) (time.Time, bool) {
	if d, ok := t.(interface{ Deadline() (time.Time, bool) }); ok {
		return d.Deadline()
	}
	return time.Time{}, false
}
