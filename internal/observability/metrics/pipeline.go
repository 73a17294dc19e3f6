package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics contains the Prometheus metrics of the photo pipeline.
// All methods are safe on a nil receiver.
type PipelineMetrics struct {
	registry *prometheus.Registry

	photosProcessed   *prometheus.CounterVec
	detectionsTotal   *prometheus.CounterVec
	candidatesDropped *prometheus.CounterVec
	stageDuration     *prometheus.HistogramVec
	jobRetries        prometheus.Counter
	queueDepth        prometheus.Gauge
	operationsTotal   *prometheus.CounterVec
	errorsTotal       *prometheus.CounterVec
}

// NewPipelineMetrics creates the pipeline metrics and registers them.
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() {
	m.photosProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bibfinder_photos_processed_total",
			Help: "Photo processing runs by outcome",
		},
		[]string{"outcome"}, // completed, failed, cancelled
	)

	m.detectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bibfinder_detections_total",
			Help: "Bib detections produced by method",
		},
		[]string{"method"}, // detector_only, ocr_verified, ocr_corrected
	)

	m.candidatesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bibfinder_candidates_dropped_total",
			Help: "Detector candidates discarded before persistence",
		},
		[]string{"reason"},
	)

	m.stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bibfinder_stage_duration_seconds",
			Help:    "Duration of pipeline stages",
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount14), // 10ms to ~80s
		},
		[]string{"stage"},
	)

	m.jobRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bibfinder_job_retries_total",
		Help: "Photo jobs scheduled for another attempt",
	})

	m.queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bibfinder_queue_depth",
		Help: "Photo jobs waiting or running",
	})

	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bibfinder_operations_total",
			Help: "Other pipeline operations by status",
		},
		[]string{"operation", "status"},
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bibfinder_errors_total",
			Help: "Pipeline errors by operation and category",
		},
		[]string{"operation", "error_type"},
	)
}

// Describe implements prometheus.Collector.
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.photosProcessed.Describe(ch)
	m.detectionsTotal.Describe(ch)
	m.candidatesDropped.Describe(ch)
	m.stageDuration.Describe(ch)
	m.jobRetries.Describe(ch)
	m.queueDepth.Describe(ch)
	m.operationsTotal.Describe(ch)
	m.errorsTotal.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	m.photosProcessed.Collect(ch)
	m.detectionsTotal.Collect(ch)
	m.candidatesDropped.Collect(ch)
	m.stageDuration.Collect(ch)
	m.jobRetries.Collect(ch)
	m.queueDepth.Collect(ch)
	m.operationsTotal.Collect(ch)
	m.errorsTotal.Collect(ch)
}

// RecordOperation implements Recorder.
func (m *PipelineMetrics) RecordOperation(operation, status string) {
	if m == nil {
		return
	}
	switch operation {
	case OpPhoto:
		m.photosProcessed.WithLabelValues(status).Inc()
	case OpDetection:
		m.detectionsTotal.WithLabelValues(status).Inc()
	case OpCandidateDropped:
		m.candidatesDropped.WithLabelValues(status).Inc()
	case OpJobRetry:
		m.jobRetries.Inc()
	default:
		m.operationsTotal.WithLabelValues(operation, status).Inc()
	}
}

// RecordDuration implements Recorder.
func (m *PipelineMetrics) RecordDuration(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder.
func (m *PipelineMetrics) RecordError(operation, errorType string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(operation, errorType).Inc()
}

// SetQueueDepth sets the number of waiting and running jobs.
func (m *PipelineMetrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}
