//go:build !cgo

package tesseract

import (
	"context"

	"github.com/racephotos/bibfinder/internal/errors"
)

// Pool is unavailable without cgo.
type Pool struct{}

// NewPool always fails when the binary is built without cgo.
func NewPool(Config) (*Pool, error) {
	return nil, errors.Newf("local OCR requires a cgo build with libtesseract").
		Component("ocr.tesseract").
		Category(errors.CategoryConfiguration).
		Build()
}

// Size returns 0.
func (p *Pool) Size() int { return 0 }

// Recognize always returns ErrPoolClosed.
func (p *Pool) Recognize(context.Context, []byte) (string, float64, error) {
	return "", 0, ErrPoolClosed
}

// Close is a no-op.
func (p *Pool) Close() error { return nil }
