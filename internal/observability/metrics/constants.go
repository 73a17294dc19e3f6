package metrics

import "time"

// Operation names understood by PipelineMetrics.RecordOperation.
const (
	// OpPhoto records a photo run outcome; status is one of the Outcome values.
	OpPhoto = "photo"
	// OpDetection records a persisted detection; status is its method.
	OpDetection = "detection"
	// OpCandidateDropped records a discarded candidate; status is the reason.
	OpCandidateDropped = "candidate_dropped"
	// OpJobRetry records a job scheduled for another attempt.
	OpJobRetry = "job_retry"
)

// Stage names for RecordDuration.
const (
	StageEnhance = "enhance"
	StageDetect  = "detect"
	StageOCR     = "ocr"
	StagePhoto   = "photo"
)

// Photo outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Candidate drop reasons.
const (
	ReasonRegion     = "region"
	ReasonValidation = "validation"
	ReasonDuplicate  = "duplicate"
)

// Histogram bucket parameters.
const (
	BucketStart10ms = 0.01
	BucketStart1ms  = 0.001
	BucketFactor2   = 2
	BucketCount12   = 12
	BucketCount14   = 14
)

// ShutdownTimeout bounds graceful shutdown of HTTP servers exposing metrics.
const ShutdownTimeout = 5 * time.Second
