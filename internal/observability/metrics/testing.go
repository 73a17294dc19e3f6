package metrics

import (
	"slices"
	"sync"
)

type recordKey struct{ name, label string }

// TestRecorder keeps every recorded value in memory so tests can assert on
// pipeline outcomes without a Prometheus registry.
type TestRecorder struct {
	mu        sync.Mutex
	ops       map[recordKey]int
	errs      map[recordKey]int
	durations map[string][]float64
}

// NewTestRecorder returns an empty TestRecorder.
func NewTestRecorder() *TestRecorder {
	r := &TestRecorder{}
	r.Reset()
	return r
}

func (r *TestRecorder) RecordOperation(operation, status string) {
	r.mu.Lock()
	r.ops[recordKey{operation, status}]++
	r.mu.Unlock()
}

func (r *TestRecorder) RecordDuration(stage string, seconds float64) {
	r.mu.Lock()
	r.durations[stage] = append(r.durations[stage], seconds)
	r.mu.Unlock()
}

func (r *TestRecorder) RecordError(stage, category string) {
	r.mu.Lock()
	r.errs[recordKey{stage, category}]++
	r.mu.Unlock()
}

// GetOperationCount returns how often (operation, status) was recorded, e.g.
// (OpPhoto, OutcomeCompleted).
func (r *TestRecorder) GetOperationCount(operation, status string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ops[recordKey{operation, status}]
}

// GetDurations returns a copy of the durations recorded for stage.
func (r *TestRecorder) GetDurations(stage string) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.durations[stage])
}

// GetErrorCount returns how often an error of category was recorded at stage.
func (r *TestRecorder) GetErrorCount(stage, category string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errs[recordKey{stage, category}]
}

// HasRecordedMetrics reports whether anything was recorded since the last Reset.
func (r *TestRecorder) HasRecordedMetrics() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ops)+len(r.errs)+len(r.durations) > 0
}

// Reset forgets everything recorded so far.
func (r *TestRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = make(map[recordKey]int)
	r.errs = make(map[recordKey]int)
	r.durations = make(map[string][]float64)
}

// NoOpRecorder discards everything. Components default to it when no
// metrics are configured.
type NoOpRecorder struct{}

// NewNoOpRecorder returns a NoOpRecorder.
func NewNoOpRecorder() *NoOpRecorder { return &NoOpRecorder{} }

func (*NoOpRecorder) RecordOperation(string, string) {}
func (*NoOpRecorder) RecordDuration(string, float64) {}
func (*NoOpRecorder) RecordError(string, string) {}
