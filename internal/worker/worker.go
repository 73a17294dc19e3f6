// Package worker connects the photo processor to the job queue: one job per
// photo, retried with backoff until it succeeds or its attempts run out.
package worker

import (
	"context"
	"fmt"
	"strconv"

	"github.com/racephotos/bibfinder/internal/errors"
	"github.com/racephotos/bibfinder/internal/jobqueue"
	"github.com/racephotos/bibfinder/internal/logger"
	"github.com/racephotos/bibfinder/internal/observability/metrics"
)

// PhotoProcessor runs one processing attempt for a photo.
type PhotoProcessor interface {
	Process(ctx context.Context, photoID uint, final bool) error
}

// PhotoJob is the queue action for a single photo.
type PhotoJob struct {
	PhotoID   uint
	processor PhotoProcessor
}

// Execute runs the attempt. Failures a retry cannot change (the photo was
// cancelled, already finished, removed, or rejected as invalid) end the job.
func (j *PhotoJob) Execute(ctx context.Context, attempt jobqueue.Attempt) error {
	err := j.processor.Process(ctx, j.PhotoID, attempt.Final())
	if err == nil {
		return nil
	}
	if isTerminal(err) {
		return jobqueue.Permanent(err)
	}
	return err
}

// Description implements jobqueue.Action.
func (j *PhotoJob) Description() string {
	return fmt.Sprintf("process photo %d", j.PhotoID)
}

func isTerminal(err error) bool {
	return errors.IsCancellation(err) ||
		errors.IsNotFound(err) ||
		errors.IsValidation(err) ||
		errors.IsCategory(err, errors.CategoryConflict)
}

// Dispatcher enqueues photo jobs.
type Dispatcher struct {
	queue     *jobqueue.Queue
	processor PhotoProcessor
	retry     jobqueue.RetryConfig
}

// NewDispatcher creates a dispatcher submitting to queue.
func NewDispatcher(queue *jobqueue.Queue, processor PhotoProcessor, retry jobqueue.RetryConfig) *Dispatcher {
	return &Dispatcher{queue: queue, processor: processor, retry: retry}
}

// GetLogger returns the worker package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("worker")
}

// JobKey is the deduplication key of a photo's job.
func JobKey(photoID uint) string {
	return "photo:" + strconv.FormatUint(uint64(photoID), 10)
}

// Submit enqueues one job for the photo and returns its id. A photo that
// already has a live job returns jobqueue.ErrDuplicateJob.
func (d *Dispatcher) Submit(photoID uint) (string, error) {
	job, err := d.queue.Enqueue(JobKey(photoID), &PhotoJob{PhotoID: photoID, processor: d.processor}, d.retry)
	if err != nil {
		return "", err
	}
	return job.ID, nil
}

// SubmitAll enqueues one independent job per photo. Photos that already have
// a live job are skipped. It stops at the first other error and returns the
// job ids submitted so far.
func (d *Dispatcher) SubmitAll(photoIDs []uint) (map[uint]string, error) {
	ids := make(map[uint]string, len(photoIDs))
	for _, id := range photoIDs {
		jobID, err := d.Submit(id)
		switch {
		case errors.Is(err, jobqueue.ErrDuplicateJob):
			GetLogger().Debug("photo already queued", logger.Uint("photo_id", id))
		case err != nil:
			return ids, err
		default:
			ids[id] = jobID
		}
	}
	return ids, nil
}

// Queue returns the underlying queue.
func (d *Dispatcher) Queue() *jobqueue.Queue {
	return d.queue
}

// MetricsObserver reports queue events to the pipeline metrics.
type MetricsObserver struct {
	Metrics *metrics.PipelineMetrics
}

// JobRetried implements jobqueue.Observer.
func (o MetricsObserver) JobRetried(jobqueue.JobSnapshot) {
	o.Metrics.RecordOperation(metrics.OpJobRetry, "")
}

// DepthChanged implements jobqueue.Observer.
func (o MetricsObserver) DepthChanged(depth int) {
	o.Metrics.SetQueueDepth(depth)
}
