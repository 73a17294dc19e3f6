package enhance

import (
	"bytes"
	"image"
	"time"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // register WebP decoding for uploads

	"github.com/racephotos/bibfinder/internal/errors"
	"github.com/racephotos/bibfinder/internal/logger"
)

const jpegQuality = 92

// GetLogger returns the enhance package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("enhance")
}

// Enhance transforms data for purpose. On any failure the failure is logged
// and the original bytes are returned unchanged.
func Enhance(data []byte, purpose Purpose, ov *Overrides) []byte {
	start := time.Now()
	out, err := Transform(data, DefaultOptions(purpose).Apply(ov))
	if err != nil {
		GetLogger().Warn("enhancement failed, using original image",
			logger.String("purpose", purpose.String()),
			logger.Int("bytes", len(data)),
			logger.Error(err))
		return data
	}
	GetLogger().Debug("image enhanced",
		logger.String("purpose", purpose.String()),
		logger.Int("bytes_in", len(data)),
		logger.Int("bytes_out", len(out)),
		logger.Duration("elapsed", time.Since(start)))
	return out
}

// Transform decodes data, runs the pipeline described by opts and re-encodes.
func Transform(data []byte, opts Options) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.Newf("empty image").
			Component("enhance").
			Category(errors.CategoryImageProcessing).
			Build()
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.New(err).
			Component("enhance").
			Category(errors.CategoryImageProcessing).
			Context("operation", "decode").
			Build()
	}

	out := TransformImage(img, opts)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, opts.Format, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, errors.New(err).
			Component("enhance").
			Category(errors.CategoryImageProcessing).
			Context("operation", "encode").
			Build()
	}
	return buf.Bytes(), nil
}

// TransformImage applies opts to an already decoded image.
// Order: resize, grayscale, normalize, contrast, brightness, sharpen.
func TransformImage(img image.Image, opts Options) image.Image {
	var out image.Image = img

	if opts.MaxDimension > 0 {
		// Fit never upscales.
		out = imaging.Fit(out, opts.MaxDimension, opts.MaxDimension, imaging.Lanczos)
	}
	if opts.Grayscale {
		out = imaging.Grayscale(out)
	}
	if opts.Normalize {
		out = Normalize(out)
	}
	if opts.Contrast != 1.0 {
		out = adjust.Contrast(out, opts.Contrast-1.0)
	}
	if opts.Brightness != 1.0 {
		out = adjust.Brightness(out, opts.Brightness-1.0)
	}
	if opts.Sharpen {
		out = imaging.Sharpen(out, 1.0)
	}
	return out
}
