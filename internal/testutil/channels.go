// Package testutil provides shared helpers for asynchronous tests.
package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	// DefaultTestTimeout bounds most waits on queue and worker activity.
	DefaultTestTimeout = 5 * time.Second

	// ShortTestTimeout is used when asserting that something does NOT happen.
	ShortTestTimeout = 100 * time.Millisecond
)

// WaitForChannel waits for a signal or close on ch, failing the test after
// timeout.
func WaitForChannel(t *testing.T, ch <-chan struct{}, timeout time.Duration, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		require.Fail(t, msg)
	}
}

// AssertNoSignal fails the test if ch fires within timeout.
func AssertNoSignal(t *testing.T, ch <-chan struct{}, timeout time.Duration, msg string) {
	t.Helper()
	select {
	case <-ch:
		require.Fail(t, msg)
	case <-time.After(timeout):
	}
}
