// Package metrics provides the Prometheus metrics of the bib pipeline.
package metrics

// Recorder defines a minimal interface for recording metrics.
// Pipeline components depend on it rather than on concrete metric types so
// tests can pass a TestRecorder and tools can pass a NoOpRecorder.
type Recorder interface {
	// RecordOperation records an operation outcome, e.g. ("photo", "completed")
	// or ("candidate_dropped", "validation").
	RecordOperation(operation, status string)

	// RecordDuration records the duration of a pipeline stage in seconds.
	RecordDuration(operation string, seconds float64)

	// RecordError records an error occurrence with its category.
	RecordError(operation, errorType string)
}
