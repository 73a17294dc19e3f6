// Package enhance prepares photos and bib regions for detection and recognition.
//
// Enhancement is best effort: Enhance never fails, it hands back the input
// bytes unchanged when any step of the transform pipeline errors out.
package enhance

import "github.com/disintegration/imaging"

// Purpose selects the default transform tuning.
type Purpose int

const (
	// PurposeDetection tunes for the object detector on the full photo.
	PurposeDetection Purpose = iota
	// PurposeRecognition tunes for OCR on a cropped bib region.
	PurposeRecognition
)

// String returns the purpose name used in logs and metrics.
func (p Purpose) String() string {
	switch p {
	case PurposeDetection:
		return "detection"
	case PurposeRecognition:
		return "recognition"
	default:
		return "unknown"
	}
}

// DefaultMaxDimension bounds the longest side of a detection image.
const DefaultMaxDimension = 1920

// Options is a fully resolved transform configuration.
type Options struct {
	Contrast     float64 // multiplier, 1.0 leaves contrast unchanged
	Brightness   float64 // multiplier, 1.0 leaves brightness unchanged
	Sharpen      bool
	Normalize    bool
	Grayscale    bool
	MaxDimension int // 0 disables resizing; images are never upscaled
	Format       imaging.Format
}

// Overrides replaces individual defaults. Nil fields keep the default.
type Overrides struct {
	Contrast     *float64
	Brightness   *float64
	Sharpen      *bool
	Normalize    *bool
	Grayscale    *bool
	MaxDimension *int
}

// DefaultOptions returns the tuning for purpose.
func DefaultOptions(purpose Purpose) Options {
	if purpose == PurposeRecognition {
		return Options{
			Contrast:   1.5,
			Brightness: 1.1,
			Sharpen:    true,
			Normalize:  true,
			Grayscale:  true,
			Format:     imaging.PNG,
		}
	}
	return Options{
		Contrast:     1.2,
		Brightness:   1.0,
		Sharpen:      true,
		Normalize:    true,
		MaxDimension: DefaultMaxDimension,
		Format:       imaging.JPEG,
	}
}

// Apply returns o with every non-nil override applied.
func (o Options) Apply(ov *Overrides) Options {
	if ov == nil {
		return o
	}
	if ov.Contrast != nil {
		o.Contrast = *ov.Contrast
	}
	if ov.Brightness != nil {
		o.Brightness = *ov.Brightness
	}
	if ov.Sharpen != nil {
		o.Sharpen = *ov.Sharpen
	}
	if ov.Normalize != nil {
		o.Normalize = *ov.Normalize
	}
	if ov.Grayscale != nil {
		o.Grayscale = *ov.Grayscale
	}
	if ov.MaxDimension != nil {
		o.MaxDimension = *ov.MaxDimension
	}
	return o
}
