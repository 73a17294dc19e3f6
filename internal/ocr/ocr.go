// Package ocr reads bib numbers out of cropped bib regions.
//
// A Recognizer runs a local engine over a fixed list of enhancement variants
// and, when enabled, a cloud engine whose answer overrides the local one.
package ocr

import (
	"context"

	"github.com/racephotos/bibfinder/internal/logger"
)

// Source identifies which engine produced a Result.
type Source string

const (
	SourceLocal Source = "local"
	SourceCloud Source = "cloud"
)

// Result is the best bib reading for one region.
type Result struct {
	BibNumber    string   `json:"bibNumber"`
	Confidence   float64  `json:"confidence"` // 0..1
	RawText      string   `json:"rawText"`
	Alternatives []string `json:"alternatives,omitempty"`
	Method       Source   `json:"method"`
	Variant      string   `json:"variant,omitempty"`
}

// LocalEngine recognizes digits in an encoded image. Confidence is reported
// on the engine's own 0..100 scale.
type LocalEngine interface {
	Recognize(ctx context.Context, image []byte) (text string, confidence float64, err error)
}

// CloudEngine recognizes text in an encoded image through a remote service.
// Confidence is 0..1; engines that do not report one return 0.
type CloudEngine interface {
	Name() string
	Recognize(ctx context.Context, image []byte) (text string, confidence float64, err error)
}

// GetLogger returns the ocr package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("ocr")
}
