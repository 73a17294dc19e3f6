// Package app assembles the detection pipeline from settings: store, object
// fetcher, detector, OCR engines, processor and job queue.
package app

import (
	"context"
	"fmt"

	"github.com/racephotos/bibfinder/internal/buildinfo"
	"github.com/racephotos/bibfinder/internal/conf"
	"github.com/racephotos/bibfinder/internal/datastore"
	"github.com/racephotos/bibfinder/internal/detection"
	"github.com/racephotos/bibfinder/internal/detector"
	"github.com/racephotos/bibfinder/internal/errors"
	"github.com/racephotos/bibfinder/internal/jobqueue"
	"github.com/racephotos/bibfinder/internal/logger"
	"github.com/racephotos/bibfinder/internal/observability"
	"github.com/racephotos/bibfinder/internal/observability/metrics"
	"github.com/racephotos/bibfinder/internal/ocr"
	"github.com/racephotos/bibfinder/internal/ocr/tesseract"
	"github.com/racephotos/bibfinder/internal/photoprocessor"
	"github.com/racephotos/bibfinder/internal/storage"
	"github.com/racephotos/bibfinder/internal/worker"
)

// GetLogger returns the app package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("app")
}

// DetectionOptions converts settings into orchestrator options.
func DetectionOptions(s conf.DetectionSettings) detection.Options {
	return detection.Options{
		MinDetectionConfidence: s.MinDetectionConfidence,
		MinOCRConfidence:       s.MinOCRConfidence,
		UseOCR:                 s.UseOCR,
		EnhanceImage:           s.EnhanceImage,
		OCRFallback:            s.OCRFallback,
		RegionPadding:          s.RegionPadding,
	}
}

// RetryConfig converts queue settings into the per-job retry policy.
func RetryConfig(s conf.QueueSettings) jobqueue.RetryConfig {
	return jobqueue.RetryConfig{
		MaxAttempts:  s.MaxAttempts,
		InitialDelay: s.InitialDelay,
		MaxDelay:     s.MaxDelay,
		Multiplier:   s.Multiplier,
	}
}

// QueueConfig converts queue settings into the scheduler configuration.
func QueueConfig(s conf.QueueSettings) jobqueue.Config {
	return jobqueue.Config{
		Concurrency: s.Concurrency,
		MaxQueued:   s.MaxQueued,
	}
}

// DetectorStack is an orchestrator and the resources it holds.
type DetectorStack struct {
	Orchestrator *detection.Orchestrator
	pool         *tesseract.Pool
}

// Close releases the OCR engines.
func (d *DetectorStack) Close() error {
	if d.pool != nil {
		return d.pool.Close()
	}
	return nil
}

// NewDetectorStack builds the detector client, the OCR engines enabled in
// settings and the orchestrator combining them. A failing local engine is
// logged and skipped; the cloud engine, when configured, must be valid.
func NewDetectorStack(settings *conf.Settings, userAgent string, rec metrics.Recorder) (*DetectorStack, error) {
	det, err := detector.New(detector.Config{
		URL:       settings.Detector.URL,
		APIKey:    settings.Detector.APIKey,
		RateLimit: settings.Detector.RateLimit,
		Burst:     settings.Detector.Burst,
		Timeout:   settings.Detector.Timeout,
		UserAgent: userAgent,
	})
	if err != nil {
		return nil, err
	}

	stack := &DetectorStack{}
	ocrCfg := ocr.Config{}

	if settings.OCR.Local.Enabled {
		size := settings.OCR.Local.PoolSize
		if size <= 0 {
			size = settings.Queue.Concurrency
		}
		pool, err := tesseract.NewPool(tesseract.Config{
			Size:           size,
			Language:       settings.OCR.Local.Language,
			TessdataPrefix: settings.OCR.Local.TessdataPrefix,
		})
		if err != nil {
			GetLogger().Warn("local OCR unavailable, continuing without it", logger.Error(err))
		} else {
			stack.pool = pool
			ocrCfg.Local = pool
		}
	}

	if settings.OCR.Cloud.Enabled {
		cloud, err := ocr.NewCloudEngine(ocr.CloudConfig{
			Provider: settings.OCR.Cloud.Provider,
			Endpoint: settings.OCR.Cloud.Endpoint,
			APIKey:   settings.OCR.Cloud.APIKey,
			Timeout:  settings.Detector.Timeout,
		})
		if err != nil {
			_ = stack.Close()
			return nil, err
		}
		ocrCfg.Cloud = cloud
		ocrCfg.CloudEnabled = true
	}

	var recognizer detection.Recognizer
	if ocrCfg.Local != nil || ocrCfg.Cloud != nil {
		recognizer = ocr.NewRecognizer(ocrCfg)
	}

	stack.Orchestrator = detection.NewOrchestrator(det, recognizer, detection.WithMetrics(rec))
	GetLogger().Info("detection pipeline ready",
		logger.String("detector_url", settings.Detector.URL),
		logger.Bool("local_ocr", ocrCfg.Local != nil),
		logger.Bool("cloud_ocr", ocrCfg.CloudEnabled))
	return stack, nil
}

// Pipeline is the full processing stack used by serve and reprocess.
type Pipeline struct {
	Settings   *conf.Settings
	Metrics    *observability.Metrics
	Store      *datastore.Manager
	Fetcher    storage.Fetcher
	Detector   *DetectorStack
	Processor  *photoprocessor.Processor
	Queue      *jobqueue.Queue
	Dispatcher *worker.Dispatcher
}

// NewPipeline builds every component. The queue is created stopped.
func NewPipeline(settings *conf.Settings, build *buildinfo.Context) (*Pipeline, error) {
	m, err := observability.NewMetrics()
	if err != nil {
		return nil, err
	}

	userAgent := build.UserAgent(settings.Main.Name)

	store, err := datastore.Open(&settings.Database)
	if err != nil {
		return nil, err
	}

	fetcher, err := storage.New(&settings.Storage, userAgent)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	stack, err := NewDetectorStack(settings, userAgent, m.Pipeline)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	proc := photoprocessor.New(store.Photos(), store.Detections(), fetcher, stack.Orchestrator,
		DetectionOptions(settings.Detection), photoprocessor.WithMetrics(m.Pipeline))

	queue := jobqueue.New(QueueConfig(settings.Queue), worker.MetricsObserver{Metrics: m.Pipeline})

	return &Pipeline{
		Settings:   settings,
		Metrics:    m,
		Store:      store,
		Fetcher:    fetcher,
		Detector:   stack,
		Processor:  proc,
		Queue:      queue,
		Dispatcher: worker.NewDispatcher(queue, proc, RetryConfig(settings.Queue)),
	}, nil
}

// Context carries what every command needs: the loaded settings and the
// build metadata.
type Context struct {
	Settings *conf.Settings
	Build    *buildinfo.Context
}

// SubmitUnfinished enqueues every pending photo and every completed photo whose
// detections were not saved. With includeProcessing it also enqueues photos
// left processing by an interrupted run. It returns how many jobs were
// submitted.
func (p *Pipeline) SubmitUnfinished(ctx context.Context, includeProcessing bool) (int, error) {
	statuses := []datastore.Status{datastore.StatusPending}
	if includeProcessing {
		statuses = append(statuses, datastore.StatusProcessing)
	}

	var ids []uint
	for _, status := range statuses {
		photos, err := p.Store.Photos().ListByStatus(ctx, status, 0)
		if err != nil {
			return 0, err
		}
		for i := range photos {
			ids = append(ids, photos[i].ID)
		}
	}

	unsaved, err := p.Store.Photos().ListByErrorPrefix(ctx, datastore.StatusCompleted, photoprocessor.DetectionsNotSavedPrefix)
	if err != nil {
		return 0, err
	}
	for i := range unsaved {
		ids = append(ids, unsaved[i].ID)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	jobs, err := p.Dispatcher.SubmitAll(ids)
	GetLogger().Info("submitted unfinished photos",
		logger.Int("found", len(ids)),
		logger.Int("submitted", len(jobs)))
	return len(jobs), err
}

// Close releases the OCR engines and the database. Stop the queue first.
func (p *Pipeline) Close() error {
	var errs []error
	if err := p.Detector.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close ocr pool: %w", err))
	}
	if err := p.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close datastore: %w", err))
	}
	return errors.Join(errs...)
}
