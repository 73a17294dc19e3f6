// test_helpers_test.go - Shared test helpers for jobqueue package
package jobqueue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/racephotos/bibfinder/internal/testutil"
)

const DefaultTestTimeout = testutil.DefaultTestTimeout

// MockAction is a configurable Action for tests.
type MockAction struct {
	ExecuteFunc func(ctx context.Context, attempt Attempt) error
	calls       atomic.Int32

	mu       sync.Mutex
	attempts []Attempt
}

func (a *MockAction) Execute(ctx context.Context, attempt Attempt) error {
	a.calls.Add(1)
	a.mu.Lock()
	a.attempts = append(a.attempts, attempt)
	a.mu.Unlock()
	if a.ExecuteFunc != nil {
		return a.ExecuteFunc(ctx, attempt)
	}
	return nil
}

func (a *MockAction) Description() string { return "mock action" }

func (a *MockAction) Calls() int { return int(a.calls.Load()) }

func (a *MockAction) Attempts() []Attempt {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Attempt(nil), a.attempts...)
}

// recordingObserver captures queue events.
type recordingObserver struct {
	retries atomic.Int32
	depth   atomic.Int32
}

func (o *recordingObserver) JobRetried(JobSnapshot) { o.retries.Add(1) }
func (o *recordingObserver) DepthChanged(depth int) { o.depth.Store(int32(depth)) }

// setupTestQueue starts a fast-ticking queue stopped at cleanup.
func setupTestQueue(t *testing.T, cfg Config, observer Observer) *Queue {
	t.Helper()
	if cfg.ProcessingInterval == 0 {
		cfg.ProcessingInterval = 5 * time.Millisecond
	}
	q := New(cfg, observer)
	q.Start(context.Background())
	t.Cleanup(func() {
		require.NoError(t, q.Stop(DefaultTestTimeout))
	})
	return q
}

// fastRetry retries quickly enough for unit tests.
func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
	}
}

// waitIdle waits until the queue has no live jobs.
func waitIdle(t *testing.T, q *Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTestTimeout)
	defer cancel()
	require.NoError(t, q.WaitIdle(ctx), "queue did not drain")
}
