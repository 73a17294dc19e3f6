package errors

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingReporter struct {
	reported []*EnhancedError
}

func (r *recordingReporter) IsEnabled() bool { return true }

func (r *recordingReporter) ReportError(ee *EnhancedError) {
	r.reported = append(r.reported, ee)
}

func TestBuildDefaults(t *testing.T) {
	ee := New(fmt.Errorf("test error")).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, ComponentUnknown, ee.GetComponent())
	assert.Equal(t, CategoryGeneric, ee.Category)
	assert.False(t, ee.Timestamp.IsZero())
}

func TestBuildInheritsWrappedCategory(t *testing.T) {
	inner := ServiceError("detector", fmt.Errorf("connection refused"))
	outer := New(fmt.Errorf("detect failed: %w", inner)).Component("detection").Build()

	assert.Equal(t, CategoryService, outer.Category)
	assert.Equal(t, "detection", outer.GetComponent())
	assert.True(t, IsService(outer))
}

func TestCategoryPredicates(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"validation", ValidationError("bad bib"), IsValidation},
		{"service", ServiceError("ocr", fmt.Errorf("503")), IsService},
		{"persistence", PersistenceError("datastore", fmt.Errorf("disk full")), IsPersistence},
		{"cancellation", CancellationError("photoprocessor", "cancelled by user"), IsCancellation},
		{"wrapped", fmt.Errorf("outer: %w", PersistenceError("datastore", fmt.Errorf("locked"))), IsPersistence},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
		})
	}

	assert.False(t, IsService(fmt.Errorf("plain")))
	assert.False(t, IsValidation(nil))
}

func TestContextIsCopied(t *testing.T) {
	ee := New(fmt.Errorf("x")).Context("photo_id", 7).Build()

	ctx := ee.GetContext()
	ctx["photo_id"] = 8

	assert.Equal(t, 7, ee.GetContext()["photo_id"])
}

func TestTelemetryReporting(t *testing.T) {
	reporter := &recordingReporter{}
	SetTelemetryReporter(reporter)
	t.Cleanup(func() { SetTelemetryReporter(nil) })

	_ = ServiceError("detector", fmt.Errorf("timeout")).Error()
	require.Len(t, reporter.reported, 1)
	assert.Equal(t, CategoryService, reporter.reported[0].Category)

	SetTelemetryReporter(nil)
	_ = ServiceError("detector", fmt.Errorf("timeout"))
	assert.Len(t, reporter.reported, 1)
}

func TestSentryReporterSkipsExpectedCategories(t *testing.T) {
	assert.False(t, shouldReport(CategoryValidation))
	assert.False(t, shouldReport(CategoryCancellation))
	assert.True(t, shouldReport(CategoryService))
	assert.True(t, shouldReport(CategoryPersistence))
}

func TestScrubMessage(t *testing.T) {
	scrubbed := scrubMessage("GET https://vision.example.com/v1?key=secret123 failed")
	assert.Equal(t, "GET https://vision.example.com/v1?[REDACTED] failed", scrubbed)

	scrubbed = scrubMessage("detector rejected api_key=abcdef")
	assert.NotContains(t, scrubbed, "abcdef")

	scrubbed = scrubMessage("token=xyz and password=hunter2")
	assert.False(t, strings.Contains(scrubbed, "xyz") || strings.Contains(scrubbed, "hunter2"))
}
