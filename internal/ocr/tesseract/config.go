// Package tesseract provides a pool of local Tesseract engines configured for
// bib digits: a digit-only whitelist and single-line page segmentation.
//
// Each engine is used by one goroutine at a time. The pool is created once at
// startup, shared by the workers and closed at shutdown.
package tesseract

import (
	"github.com/racephotos/bibfinder/internal/errors"
	"github.com/racephotos/bibfinder/internal/logger"
)

// DigitWhitelist restricts recognition to bib characters.
const DigitWhitelist = "0123456789"

// ErrPoolClosed is returned by Recognize after Close.
var ErrPoolClosed = errors.NewStd("tesseract pool is closed")

// Config configures the engine pool.
type Config struct {
	Size           int    // number of engines, at least 1
	Language       string // defaults to eng
	TessdataPrefix string // optional tessdata directory
}

// GetLogger returns the tesseract package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("ocr.tesseract")
}
