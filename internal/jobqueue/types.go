// Package jobqueue provides an in-memory job queue with bounded concurrency
// and exponential-backoff retries.
package jobqueue

import (
	"context"
	"time"

	"github.com/racephotos/bibfinder/internal/errors"
)

// Common errors that can be returned by job queue operations
var (
	ErrNilAction    = errors.NewStd("cannot enqueue nil action")
	ErrQueueStopped = errors.NewStd("job queue has been stopped")
	ErrQueueFull    = errors.NewStd("job queue is full")
	ErrDuplicateJob = errors.NewStd("a job with this key is already queued")
)

// RetryConfig holds the retry policy of a job.
type RetryConfig struct {
	MaxAttempts  int           // Total attempts including the first
	InitialDelay time.Duration // Delay before the second attempt
	MaxDelay     time.Duration // Upper bound of any delay
	Multiplier   float64       // Growth factor between consecutive delays
}

// DefaultRetryConfig returns three attempts with backoff starting at 2s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     5 * time.Minute,
		Multiplier:   2.0,
	}
}

// Attempt describes the execution an action is asked to perform.
type Attempt struct {
	JobID  string
	Number int // 1-based
	Max    int
}

// Final reports whether no retry follows this attempt.
func (a Attempt) Final() bool {
	return a.Number >= a.Max
}

// Action is the work a job performs. Execute must honor ctx.
type Action interface {
	Execute(ctx context.Context, attempt Attempt) error
	Description() string
}

// PermanentError marks a failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the queue fails the job without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// JobStatus represents the current status of a job in the queue
type JobStatus int

const (
	// JobStatusPending indicates the job is waiting to be executed
	JobStatusPending JobStatus = iota
	// JobStatusRunning indicates the job is currently being executed
	JobStatusRunning
	// JobStatusCompleted indicates the job has completed successfully
	JobStatusCompleted
	// JobStatusFailed indicates the job has failed and will not be retried
	JobStatusFailed
	// JobStatusRetrying indicates the job has failed but will be retried
	JobStatusRetrying
)

// String returns a string representation of the job status
func (s JobStatus) String() string {
	switch s {
	case JobStatusPending:
		return "pending"
	case JobStatusRunning:
		return "running"
	case JobStatusCompleted:
		return "completed"
	case JobStatusFailed:
		return "failed"
	case JobStatusRetrying:
		return "retrying"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler for JSON output.
func (s JobStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s JobStatus) live() bool {
	return s == JobStatusPending || s == JobStatusRunning || s == JobStatusRetrying
}
