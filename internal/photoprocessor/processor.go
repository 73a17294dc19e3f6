// Package photoprocessor drives one photo through the processing state
// machine: pickup, fetch, detection, completion and persistence.
//
// States move pending -> processing -> completed | failed and never leave a
// terminal state. Every transition is a conditional update, so a user
// cancelling a photo while its run is in flight wins: the run's later
// completion or failure finds the photo already failed and its results are
// discarded.
package photoprocessor

import (
	"context"
	"strings"
	"time"

	"github.com/racephotos/bibfinder/internal/datastore"
	"github.com/racephotos/bibfinder/internal/detection"
	"github.com/racephotos/bibfinder/internal/errors"
	"github.com/racephotos/bibfinder/internal/logger"
	"github.com/racephotos/bibfinder/internal/observability/metrics"
	"github.com/racephotos/bibfinder/internal/storage"
)

// CancelledMessage is the processing error stored for user cancellations.
const CancelledMessage = "cancelled by user"

// InterruptedMessage is recorded when a run stops because its context ended,
// typically a shutdown. The photo stays processing and is resumed later.
const InterruptedMessage = "processing interrupted, will resume"

// DetectionsNotSavedPrefix starts the error recorded on a completed photo whose
// detections could not be persisted. Such photos are re-run by Process.
const DetectionsNotSavedPrefix = "detections not saved: "

const (
	// maxErrorMessage bounds the error text stored on a photo.
	maxErrorMessage = 1000

	persistAttempts     = 3
	defaultPersistDelay = 250 * time.Millisecond
)

// PhotoStore is the photo persistence the processor needs.
type PhotoStore interface {
	GetByID(ctx context.Context, id uint) (*datastore.Photo, error)
	Transition(ctx context.Context, id uint, from []datastore.Status, u datastore.Update) error
}

// DetectionStore persists a photo's detections.
type DetectionStore interface {
	ReplaceForPhoto(ctx context.Context, photoID uint, dets []datastore.Detection) error
}

// BibDetector finds bib numbers in photo bytes.
type BibDetector interface {
	DetectBibNumbers(ctx context.Context, photo []byte, opts detection.Options) ([]detection.Detection, error)
}

// ProcessingStatus is the user-visible state of a photo.
type ProcessingStatus struct {
	PhotoID     uint             `json:"photoId"`
	Status      datastore.Status `json:"status"`
	IsProcessed bool             `json:"isProcessed"`
	ProcessedAt *time.Time       `json:"processedAt,omitempty"`
	Error       *string          `json:"error,omitempty"`
}

// Processor runs photos through detection and records the outcome.
type Processor struct {
	photos     PhotoStore
	detections DetectionStore
	fetcher    storage.Fetcher
	detector   BibDetector
	opts       detection.Options
	metrics    metrics.Recorder
	now        func() time.Time

	persistDelay time.Duration // pause between ReplaceForPhoto attempts
}

// Option configures a Processor.
type Option func(*Processor)

// WithMetrics records photo outcomes and durations on r.
func WithMetrics(r metrics.Recorder) Option {
	return func(p *Processor) {
		if r != nil {
			p.metrics = r
		}
	}
}

// WithClock overrides the completion timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		p.now = now
	}
}

// New creates a processor running detector with opts on every photo.
func New(photos PhotoStore, detections DetectionStore, fetcher storage.Fetcher,
	detector BibDetector, opts detection.Options, options ...Option) *Processor {
	p := &Processor{
		photos:     photos,
		detections: detections,
		fetcher:    fetcher,
		detector:   detector,
		opts:       opts,
		metrics:    metrics.NewNoOpRecorder(),
		now:        time.Now,

		persistDelay: defaultPersistDelay,
	}
	for _, o := range options {
		o(p)
	}
	return p
}

// GetLogger returns the photoprocessor package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("photoprocessor")
}

// ProcessPhoto runs one photo to a terminal state. A failing run marks the
// photo failed and returns the error.
func (p *Processor) ProcessPhoto(ctx context.Context, photoID uint) error {
	return p.Process(ctx, photoID, true)
}

// Process runs one attempt for photoID. When final is false a failing run
// leaves the photo processing with the error recorded, so the caller can
// retry; when true it marks the photo failed.
//
// A completed photo whose detections were not saved is run again without
// leaving completed. Any other photo that is no longer pending or processing
// (cancelled, already finished) is not touched and the returned error wraps
// datastore.ErrInvalidTransition.
func (p *Processor) Process(ctx context.Context, photoID uint, final bool) error {
	start := time.Now()
	log := GetLogger().WithContext(ctx).With(logger.Uint("photo_id", photoID))

	pickup := []datastore.Status{datastore.StatusPending, datastore.StatusProcessing}
	if err := p.photos.Transition(ctx, photoID, pickup, datastore.ProcessingUpdate()); err != nil {
		if errors.Is(err, datastore.ErrPhotoNotFound) {
			return notFoundOr(err, photoID)
		}
		if errors.Is(err, datastore.ErrInvalidTransition) {
			if photo, getErr := p.photos.GetByID(ctx, photoID); getErr == nil && NeedsDetectionRepair(photo) {
				return p.repair(ctx, log, photo)
			}
			log.Info("photo not processable, skipping", logger.Error(err))
			return errors.New(err).
				Component("photoprocessor").
				Category(errors.CategoryConflict).
				Context("photo_id", photoID).
				Build()
		}
		return err
	}

	photo, err := p.photos.GetByID(ctx, photoID)
	if err != nil {
		return p.fail(ctx, log, photoID, err, final)
	}

	data, err := p.fetcher.Fetch(ctx, photo.StorageRef)
	if err != nil {
		return p.fail(ctx, log, photoID, err, final)
	}

	dets, err := p.detector.DetectBibNumbers(ctx, data, p.opts)
	if err != nil {
		return p.fail(ctx, log, photoID, err, final)
	}

	// The status flip is committed before the rows; detections may lag it briefly.
	completedAt := p.now()
	completed := []datastore.Status{datastore.StatusProcessing}
	if err := p.photos.Transition(ctx, photoID, completed, datastore.CompletedUpdate(completedAt)); err != nil {
		if errors.Is(err, datastore.ErrInvalidTransition) {
			log.Info("photo cancelled during processing, discarding results",
				logger.Int("detections", len(dets)))
			p.metrics.RecordOperation(metrics.OpPhoto, metrics.OutcomeCancelled)
			return errors.CancellationError("photoprocessor", CancelledMessage)
		}
		return p.fail(ctx, log, photoID, err, final)
	}

	if err := p.persist(ctx, log, photoID, completedAt, dets); err != nil {
		return err
	}

	elapsed := time.Since(start)
	p.metrics.RecordOperation(metrics.OpPhoto, metrics.OutcomeCompleted)
	p.metrics.RecordDuration(metrics.StagePhoto, elapsed.Seconds())
	log.Info("photo processed",
		logger.Int("detections", len(dets)),
		logger.Duration("elapsed", elapsed))
	return nil
}

// NeedsDetectionRepair reports whether photo completed but its detections
// were never saved.
func NeedsDetectionRepair(photo *datastore.Photo) bool {
	return photo.ProcessingStatus == datastore.StatusCompleted &&
		photo.ProcessingError != nil &&
		strings.HasPrefix(*photo.ProcessingError, DetectionsNotSavedPrefix)
}

// persist saves the detections of a completed photo, retrying a few times.
// When every attempt fails the photo stays completed with a
// DetectionsNotSavedPrefix error, and a PersistenceError is returned so the
// job is retried.
func (p *Processor) persist(ctx context.Context, log logger.Logger, photoID uint, completedAt time.Time, dets []detection.Detection) error {
	// Completion is already committed; a shutdown must not lose the rows.
	writeCtx := context.WithoutCancel(ctx)
	rows := datastore.FromDetections(photoID, dets)

	var err error
	for attempt := 1; attempt <= persistAttempts; attempt++ {
		if err = p.detections.ReplaceForPhoto(writeCtx, photoID, rows); err == nil {
			return nil
		}
		log.Warn("failed to persist detections",
			logger.Int("attempt", attempt),
			logger.Int("detections", len(rows)),
			logger.Error(err))
		if attempt < persistAttempts && p.persistDelay > 0 {
			time.Sleep(p.persistDelay)
		}
	}

	p.metrics.RecordError(metrics.StagePhoto, string(errors.CategoryPersistence))
	msg := DetectionsNotSavedPrefix + userMessage(err)
	done := []datastore.Status{datastore.StatusCompleted}
	if markErr := p.photos.Transition(writeCtx, photoID, done, datastore.CompletedWithErrorUpdate(completedAt, msg)); markErr != nil {
		log.Error("failed to record unsaved detections", logger.Error(markErr))
	} else {
		log.Error("detections not saved, photo marked for repair", logger.Error(err))
	}
	return errors.New(err).
		Component("photoprocessor").
		Category(errors.CategoryPersistence).
		Context("photo_id", photoID).
		Context("detections", len(rows)).
		Build()
}

// repair re-runs detection for a completed photo whose detections were not
// saved. The photo stays completed throughout; success clears the error and
// keeps the original completion time.
func (p *Processor) repair(ctx context.Context, log logger.Logger, photo *datastore.Photo) error {
	log.Info("re-running detection for completed photo with unsaved detections")

	data, err := p.fetcher.Fetch(ctx, photo.StorageRef)
	if err != nil {
		return err
	}
	dets, err := p.detector.DetectBibNumbers(ctx, data, p.opts)
	if err != nil {
		return err
	}

	completedAt := p.now()
	if photo.ProcessedAt != nil {
		completedAt = *photo.ProcessedAt
	}
	if err := p.persist(ctx, log, photo.ID, completedAt, dets); err != nil {
		return err
	}

	done := []datastore.Status{datastore.StatusCompleted}
	if err := p.photos.Transition(context.WithoutCancel(ctx), photo.ID, done, datastore.CompletedUpdate(completedAt)); err != nil {
		return err
	}
	log.Info("detections saved for completed photo", logger.Int("detections", len(dets)))
	return nil
}

// fail records runErr on the photo and returns it. If the photo left
// processing meanwhile (a cancellation), the run counts as cancelled.
//
// A run whose own context ended was interrupted, not failed: the photo stays
// processing to be resumed whatever final says. An error no retry can change
// fails the photo even on a non-final attempt.
func (p *Processor) fail(ctx context.Context, log logger.Logger, photoID uint, runErr error, final bool) error {
	interrupted := ctx.Err() != nil
	terminal := !interrupted && (final || isPermanent(runErr))

	msg := userMessage(runErr)
	update := datastore.RetryUpdate(msg)
	switch {
	case interrupted:
		update = datastore.RetryUpdate(InterruptedMessage)
	case terminal:
		update = datastore.FailedUpdate(msg)
	}

	// The run's context may be the reason it failed; the record must still be written.
	writeCtx := context.WithoutCancel(ctx)
	err := p.photos.Transition(writeCtx, photoID, []datastore.Status{datastore.StatusProcessing}, update)
	switch {
	case errors.Is(err, datastore.ErrInvalidTransition):
		log.Info("photo cancelled during processing", logger.Error(runErr))
		p.metrics.RecordOperation(metrics.OpPhoto, metrics.OutcomeCancelled)
		return errors.CancellationError("photoprocessor", CancelledMessage)
	case err != nil:
		log.Error("failed to record processing failure", logger.Error(err))
		return errors.Join(runErr, err)
	}

	switch {
	case interrupted:
		log.Info("photo processing interrupted, left processing", logger.Error(runErr))
	case terminal:
		p.metrics.RecordError(metrics.StagePhoto, string(categoryOf(runErr)))
		p.metrics.RecordOperation(metrics.OpPhoto, metrics.OutcomeFailed)
		log.Warn("photo processing failed", logger.Error(runErr))
	default:
		p.metrics.RecordError(metrics.StagePhoto, string(categoryOf(runErr)))
		log.Warn("photo processing attempt failed, will retry", logger.Error(runErr))
	}
	return runErr
}

// isPermanent reports errors a retry cannot change.
func isPermanent(err error) bool {
	return errors.IsValidation(err) ||
		errors.IsNotFound(err) ||
		errors.IsCategory(err, errors.CategoryConflict)
}

// GetProcessingStatus returns the photo's current state.
func (p *Processor) GetProcessingStatus(ctx context.Context, photoID uint) (*ProcessingStatus, error) {
	photo, err := p.photos.GetByID(ctx, photoID)
	if err != nil {
		return nil, notFoundOr(err, photoID)
	}
	return &ProcessingStatus{
		PhotoID:     photo.ID,
		Status:      photo.ProcessingStatus,
		IsProcessed: photo.IsProcessed,
		ProcessedAt: photo.ProcessedAt,
		Error:       photo.ProcessingError,
	}, nil
}

// CancelProcessing marks a pending or processing photo failed with
// CancelledMessage. In-flight work is not interrupted; its results are
// discarded when it finishes. A photo in a terminal state is left unchanged
// and a conflict error is returned.
func (p *Processor) CancelProcessing(ctx context.Context, photoID uint) error {
	from := []datastore.Status{datastore.StatusPending, datastore.StatusProcessing}
	err := p.photos.Transition(ctx, photoID, from, datastore.FailedUpdate(CancelledMessage))
	if err != nil {
		if errors.Is(err, datastore.ErrInvalidTransition) {
			return errors.New(err).
				Component("photoprocessor").
				Category(errors.CategoryConflict).
				Context("photo_id", photoID).
				Build()
		}
		return notFoundOr(err, photoID)
	}

	GetLogger().WithContext(ctx).Info("photo processing cancelled", logger.Uint("photo_id", photoID))
	return nil
}

func notFoundOr(err error, photoID uint) error {
	if errors.Is(err, datastore.ErrPhotoNotFound) {
		return errors.New(err).
			Component("photoprocessor").
			Category(errors.CategoryNotFound).
			Context("photo_id", photoID).
			Build()
	}
	return err
}

func userMessage(err error) string {
	msg := err.Error()
	if len(msg) > maxErrorMessage {
		msg = msg[:maxErrorMessage]
	}
	return msg
}

func categoryOf(err error) errors.ErrorCategory {
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		return ee.Category
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errors.CategoryCancellation
	}
	return errors.CategoryGeneric
}
