package jobqueue

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/racephotos/bibfinder/internal/errors"
	"github.com/racephotos/bibfinder/internal/logger"
)

// Config sizes a queue.
type Config struct {
	Concurrency        int           // jobs executing at once (default 3)
	MaxQueued          int           // live jobs accepted before Enqueue fails (default 10000)
	MaxArchived        int           // finished jobs kept for inspection (default 100)
	ProcessingInterval time.Duration // scheduler tick (default 1s)
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 3
	}
	if c.MaxQueued <= 0 {
		c.MaxQueued = 10000
	}
	if c.MaxArchived <= 0 {
		c.MaxArchived = 100
	}
	if c.ProcessingInterval <= 0 {
		c.ProcessingInterval = time.Second
	}
	return c
}

// Observer receives queue events for metrics.
type Observer interface {
	// JobRetried is called when a failed attempt is scheduled again.
	JobRetried(job JobSnapshot)
	// DepthChanged is called with the number of live jobs after each change.
	DepthChanged(depth int)
}

// Queue runs jobs on a bounded pool and retries failures with
// exponential backoff.
type Queue struct {
	cfg      Config
	sem      *semaphore.Weighted
	observer Observer
	log      logger.Logger

	mu        sync.Mutex
	jobs      []*Job
	archived  []*Job
	keys      map[string]string // live job key -> id
	stats     StatsSnapshot
	running   int
	attempts  int
	isRunning bool
	cancel    context.CancelFunc
	done      chan struct{}

	wake        chan struct{}
	runningJobs sync.WaitGroup
}

// New creates a stopped queue.
func New(cfg Config, observer Observer) *Queue {
	cfg = cfg.withDefaults()
	return &Queue{
		cfg:      cfg,
		sem:      semaphore.NewWeighted(int64(cfg.Concurrency)),
		observer: observer,
		log:      logger.Global().Module("jobqueue"),
		keys:     make(map[string]string),
		wake:     make(chan struct{}, 1),
	}
}

// Start starts the scheduler. Jobs run under contexts derived from ctx.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.isRunning {
		return
	}

	processCtx, cancel := context.WithCancel(ctx)
	q.isRunning = true
	q.cancel = cancel
	q.done = make(chan struct{})
	go q.processJobs(processCtx, q.done)
}

// Stop cancels running jobs and waits up to timeout for them to return.
// Waiting jobs stay in the queue.
func (q *Queue) Stop(timeout time.Duration) error {
	q.mu.Lock()
	if !q.isRunning {
		q.mu.Unlock()
		return nil
	}
	q.isRunning = false
	q.cancel()
	done := q.done
	q.mu.Unlock()

	<-done

	c := make(chan struct{})
	go func() {
		q.runningJobs.Wait()
		close(c)
	}()

	select {
	case <-c:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timed out waiting for jobs to complete after %v", timeout)
	}
}

// Enqueue adds a job. A non-empty key rejects the job while another live
// job holds the same key.
func (q *Queue) Enqueue(key string, action Action, retry RetryConfig) (*JobSnapshot, error) {
	if action == nil {
		return nil, ErrNilAction
	}
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}

	q.mu.Lock()

	if !q.isRunning {
		q.mu.Unlock()
		return nil, ErrQueueStopped
	}
	if key != "" {
		if id, ok := q.keys[key]; ok {
			q.mu.Unlock()
			return nil, fmt.Errorf("%w: key %s (job %s)", ErrDuplicateJob, key, id)
		}
	}
	if len(q.jobs) >= q.cfg.MaxQueued {
		q.stats.RejectedJobs++
		q.mu.Unlock()
		return nil, fmt.Errorf("%w: maximum queue size (%d) reached", ErrQueueFull, q.cfg.MaxQueued)
	}

	now := time.Now()
	job := &Job{
		ID:          uuid.New().String(),
		Key:         key,
		Action:      action,
		MaxAttempts: retry.MaxAttempts,
		CreatedAt:   now,
		NextRetryAt: now,
		Status:      JobStatusPending,
		Config:      retry,
	}
	q.jobs = append(q.jobs, job)
	if key != "" {
		q.keys[key] = job.ID
	}
	q.stats.TotalJobs++
	depth := q.liveJobsLocked()
	snap := job.snapshot()
	q.mu.Unlock()

	q.log.Debug("job enqueued",
		logger.String("job_id", job.ID),
		logger.String("key", key),
		logger.String("action", action.Description()))
	q.depthChanged(depth)
	q.kick()
	return &snap, nil
}

// kick wakes the scheduler without waiting for the next tick.
func (q *Queue) kick() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) processJobs(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(q.cfg.ProcessingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			q.log.Debug("job queue processing stopped", logger.Error(ctx.Err()))
			return
		case <-ticker.C:
		case <-q.wake:
		}
		q.cleanupFinishedJobs()
		q.processDueJobs(ctx)
	}
}

// cleanupFinishedJobs moves completed and failed jobs to the archive.
func (q *Queue) cleanupFinishedJobs() {
	q.mu.Lock()
	defer q.mu.Unlock()

	active := q.jobs[:0]
	for _, job := range q.jobs {
		if job.Status.live() {
			active = append(active, job)
			continue
		}
		q.archived = append(q.archived, job)
	}
	clear(q.jobs[len(active):])
	q.jobs = active

	if excess := len(q.archived) - q.cfg.MaxArchived; excess > 0 {
		q.archived = q.archived[excess:]
	}
	q.stats.ArchivedJobs = len(q.archived)
}

// processDueJobs starts due jobs while execution slots are free.
func (q *Queue) processDueJobs(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	for _, job := range q.jobs {
		if job.Status != JobStatusPending && job.Status != JobStatusRetrying {
			continue
		}
		if job.NextRetryAt.After(now) {
			continue
		}
		if !q.sem.TryAcquire(1) {
			return
		}

		job.Status = JobStatusRunning
		job.Attempts++
		q.running++
		q.attempts++
		if job.Attempts > 1 {
			q.stats.RetryAttempts++
		}
		attempt := Attempt{JobID: job.ID, Number: job.Attempts, Max: job.MaxAttempts}

		q.runningJobs.Add(1)
		go func(j *Job) {
			defer q.runningJobs.Done()
			defer q.sem.Release(1)
			q.executeJob(ctx, j, attempt)
			q.kick()
		}(job)
	}
}

// calculateBackoffDelay returns the delay after the given failed attempt:
// InitialDelay * Multiplier^(attempt-1), with +-10% jitter, capped at MaxDelay.
func calculateBackoffDelay(config RetryConfig, attempt int) time.Duration {
	multiplier := config.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	backoff := float64(config.InitialDelay) * math.Pow(multiplier, float64(attempt-1))

	backoff *= 0.9 + 0.2*rand.Float64() //nolint:gosec // jitter does not need a CSPRNG

	if config.MaxDelay > 0 && backoff > float64(config.MaxDelay) {
		backoff = float64(config.MaxDelay)
	}
	return time.Duration(backoff)
}

// executeJob runs one attempt and records its outcome.
func (q *Queue) executeJob(ctx context.Context, job *Job, attempt Attempt) {
	log := q.log.With(
		logger.String("job_id", job.ID),
		logger.String("action", job.Action.Description()),
		logger.Int("attempt", attempt.Number),
		logger.Int("max_attempts", attempt.Max))

	if attempt.Number > 1 {
		log.Info("retrying job")
	}

	start := time.Now()
	err := runAction(ctx, job.Action, attempt)
	elapsed := time.Since(start)

	q.mu.Lock()
	q.running--
	q.stats.TotalDuration += elapsed

	var retried *JobSnapshot
	switch {
	case err == nil:
		job.Status = JobStatusCompleted
		job.LastError = nil
		q.stats.SuccessfulJobs++
		if attempt.Number > 1 {
			log.Info("job succeeded after retry", logger.Duration("elapsed", elapsed))
		}

	case ctx.Err() != nil:
		// Shutdown interrupted the attempt; it does not count against the job.
		job.Attempts--
		job.Status = JobStatusRetrying
		job.NextRetryAt = time.Now()
		log.Debug("job interrupted by shutdown", logger.Error(err))

	case isPermanent(err) || attempt.Final():
		job.Status = JobStatusFailed
		job.LastError = err
		q.stats.FailedJobs++
		q.stats.LastError = err.Error()
		log.Warn("job permanently failed", logger.Error(err), logger.Bool("permanent", isPermanent(err)))

	default:
		delay := calculateBackoffDelay(job.Config, attempt.Number)
		job.Status = JobStatusRetrying
		job.LastError = err
		job.NextRetryAt = time.Now().Add(delay)
		q.stats.LastError = err.Error()
		snap := job.snapshot()
		retried = &snap
		log.Warn("job failed, will retry", logger.Duration("delay", delay), logger.Error(err))
	}

	if !job.Status.live() && job.Key != "" {
		delete(q.keys, job.Key)
	}
	depth := q.liveJobsLocked()
	q.mu.Unlock()

	if retried != nil && q.observer != nil {
		q.observer.JobRetried(*retried)
	}
	q.depthChanged(depth)
}

// runAction executes the action, converting a panic into an error.
func runAction(ctx context.Context, action Action, attempt Attempt) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("job execution panicked: %v", r).
				Component("jobqueue").
				Category(errors.CategoryJobQueue).
				Build()
		}
	}()
	return action.Execute(ctx, attempt)
}

func isPermanent(err error) bool {
	var perm *PermanentError
	return errors.As(err, &perm)
}

func (q *Queue) liveJobsLocked() int {
	n := 0
	for _, job := range q.jobs {
		if job.Status.live() {
			n++
		}
	}
	return n
}

func (q *Queue) depthChanged(depth int) {
	if q.observer != nil {
		q.observer.DepthChanged(depth)
	}
}

// Stats returns a snapshot of the queue statistics.
func (q *Queue) Stats() StatsSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := q.stats
	s.RunningJobs = q.running
	s.PendingJobs = q.liveJobsLocked() - q.running
	s.Concurrency = q.cfg.Concurrency
	s.MaxQueueSize = q.cfg.MaxQueued
	s.QueueUtilization = float64(q.liveJobsLocked()) / float64(q.cfg.MaxQueued) * 100
	if q.attempts > 0 {
		s.AverageDuration = s.TotalDuration / time.Duration(q.attempts)
	}
	return s
}

// Lookup returns the state of a live or archived job.
func (q *Queue) Lookup(id string) (JobSnapshot, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, list := range [][]*Job{q.jobs, q.archived} {
		for _, job := range list {
			if job.ID == id {
				return job.snapshot(), true
			}
		}
	}
	return JobSnapshot{}, false
}

// Depth returns the number of live jobs.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.liveJobsLocked()
}

// WaitIdle blocks until no job is waiting, backing off or running.
func (q *Queue) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(q.cfg.ProcessingInterval)
	defer ticker.Stop()

	for {
		if q.Depth() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ProcessImmediately runs one scheduling pass without waiting for the ticker.
func (q *Queue) ProcessImmediately(ctx context.Context) {
	q.cleanupFinishedJobs()
	q.processDueJobs(ctx)
}
