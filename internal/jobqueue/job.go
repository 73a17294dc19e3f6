package jobqueue

import (
	"time"
)

// Job represents a unit of work in the job queue. Fields are guarded by the
// owning queue; read them through Queue.Lookup.
type Job struct {
	ID          string
	Key         string // deduplication key, e.g. the photo id
	Action      Action
	Attempts    int
	MaxAttempts int
	CreatedAt   time.Time
	NextRetryAt time.Time
	Status      JobStatus
	LastError   error
	Config      RetryConfig
}

// JobSnapshot is a copy of a job's state.
type JobSnapshot struct {
	ID          string    `json:"id"`
	Key         string    `json:"key"`
	Description string    `json:"description"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"maxAttempts"`
	Status      JobStatus `json:"status"`
	NextRetryAt time.Time `json:"nextRetryAt"`
	LastError   string    `json:"lastError,omitempty"`
}

func (j *Job) snapshot() JobSnapshot {
	s := JobSnapshot{
		ID:          j.ID,
		Key:         j.Key,
		Description: j.Action.Description(),
		Attempts:    j.Attempts,
		MaxAttempts: j.MaxAttempts,
		Status:      j.Status,
		NextRetryAt: j.NextRetryAt,
	}
	if j.LastError != nil {
		s.LastError = j.LastError.Error()
	}
	return s
}

// StatsSnapshot provides a point-in-time snapshot of queue statistics.
type StatsSnapshot struct {
	TotalJobs      int `json:"total"`
	SuccessfulJobs int `json:"successful"`
	FailedJobs     int `json:"failed"`
	RejectedJobs   int `json:"rejected"` // refused because the queue was full
	RetryAttempts  int `json:"retryAttempts"`
	ArchivedJobs   int `json:"archived"`

	PendingJobs      int     `json:"pending"` // waiting or backing off
	RunningJobs      int     `json:"running"`
	Concurrency      int     `json:"concurrency"`
	MaxQueueSize     int     `json:"maxSize"`
	QueueUtilization float64 `json:"utilization"` // percent of MaxQueueSize in use

	TotalDuration   time.Duration `json:"totalDuration"`
	AverageDuration time.Duration `json:"averageDuration"`
	LastError       string        `json:"lastError,omitempty"`
}
