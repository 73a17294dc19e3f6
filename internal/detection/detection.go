// Package detection turns one photo into a set of validated, deduplicated
// bib number detections.
//
// The orchestrator combines the remote detector with the OCR subsystem:
// candidates below the detection threshold are dropped, each survivor is
// cropped and optionally read by OCR, the detector label and the OCR reading
// are reconciled into a method and a combined confidence, and the results are
// deduplicated by bib number. A failure on one candidate drops that candidate
// only; a detector failure fails the whole run.
package detection

import (
	"regexp"

	"github.com/racephotos/bibfinder/internal/errors"
	"github.com/racephotos/bibfinder/internal/logger"
	"github.com/racephotos/bibfinder/internal/ocr"
	"github.com/racephotos/bibfinder/internal/region"
)

// Method records how a detection's bib number was decided.
type Method string

const (
	MethodDetectorOnly Method = "detector_only"
	MethodOCRVerified  Method = "ocr_verified"
	MethodOCRCorrected Method = "ocr_corrected"
)

// BibPattern is the shape every retained bib number has.
var BibPattern = regexp.MustCompile(`^\d{1,4}$`)

// Thresholds on the detector confidence that steer OCR.
const (
	// OCRSkipConfidence: detector readings at or above it skip OCR unless
	// OCRFallback is set.
	OCRSkipConfidence = 0.7
	// AlternativeBelowConfidence: detector readings under it may adopt the
	// first OCR substitution alternative.
	AlternativeBelowConfidence = 0.5
)

// Detection is one validated bib number found in a photo.
type Detection struct {
	BibNumber          string       `json:"bibNumber"`
	CombinedConfidence float64      `json:"combinedConfidence"`
	DetectorConfidence float64      `json:"detectorConfidence"`
	OCRConfidence      float64      `json:"ocrConfidence"`
	Method             Method       `json:"method"`
	BoundingBox        region.Box   `json:"boundingBox"`
	RawMetadata        RawMetadata  `json:"rawMetadata"`
	OCRMetadata        *OCRMetadata `json:"ocrMetadata,omitempty"`
}

// RawMetadata is what the detector reported for the candidate.
type RawMetadata struct {
	DetectionID string  `json:"detectionId,omitempty"`
	Label       string  `json:"label"`
	Confidence  float64 `json:"confidence"`
}

// OCRMetadata is what OCR reported for the candidate's region.
type OCRMetadata struct {
	BibNumber    string     `json:"bibNumber"`
	RawText      string     `json:"rawText"`
	Alternatives []string   `json:"alternatives,omitempty"`
	Source       ocr.Source `json:"source"`
	Variant      string     `json:"variant,omitempty"`
}

// Options tunes one detection run.
type Options struct {
	MinDetectionConfidence float64 `json:"minDetectionConfidence"`
	MinOCRConfidence       float64 `json:"minOCRConfidence"`
	UseOCR                 bool    `json:"useOCR"`
	EnhanceImage           bool    `json:"enhanceImage"`
	OCRFallback            bool    `json:"ocrFallback"`
	RegionPadding          float64 `json:"regionPadding"` // percent the box grows before OCR
}

// DefaultOptions returns the standard run options.
func DefaultOptions() Options {
	return Options{
		MinDetectionConfidence: 0.3,
		MinOCRConfidence:       0.5,
		UseOCR:                 true,
		EnhanceImage:           true,
		OCRFallback:            true,
	}
}

// Validate rejects options outside their ranges.
func (o Options) Validate() error {
	switch {
	case o.MinDetectionConfidence < 0 || o.MinDetectionConfidence > 1:
		return errors.ValidationError("minDetectionConfidence must be within [0,1]")
	case o.MinOCRConfidence < 0 || o.MinOCRConfidence > 1:
		return errors.ValidationError("minOCRConfidence must be within [0,1]")
	case o.RegionPadding < 0:
		return errors.ValidationError("regionPadding must not be negative")
	}
	return nil
}

// GetLogger returns the detection package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("detection")
}
