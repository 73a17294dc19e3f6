package ocr

import (
	"bytes"
	"context"
	"image"
	"time"

	"github.com/disintegration/imaging"

	"github.com/racephotos/bibfinder/internal/enhance"
	"github.com/racephotos/bibfinder/internal/errors"
	"github.com/racephotos/bibfinder/internal/logger"
)

const (
	// ReliableMinDimension is the smallest region side the local engine reads
	// reliably; smaller regions are upscaled to it.
	ReliableMinDimension = 64
	// EarlyExitConfidence stops the variant loop once a reading exceeds it.
	EarlyExitConfidence = 0.70
	// AlternativesBelow triggers the substitution pool when the best local
	// confidence is under it.
	AlternativesBelow = 0.80
	// DefaultCloudConfidence is assigned to cloud readings when the engine
	// reports no confidence of its own.
	DefaultCloudConfidence = 0.90
)

// Config wires the engines into a Recognizer.
type Config struct {
	Local        LocalEngine // may be nil
	Cloud        CloudEngine // may be nil
	CloudEnabled bool
	Variants     []Variant // nil uses DefaultVariants
}

// Recognizer runs the multi-variant local pass and the cloud override.
type Recognizer struct {
	local        LocalEngine
	cloud        CloudEngine
	cloudEnabled bool
	variants     []Variant
}

// NewRecognizer creates a Recognizer from cfg.
func NewRecognizer(cfg Config) *Recognizer {
	variants := cfg.Variants
	if variants == nil {
		variants = DefaultVariants()
	}
	return &Recognizer{
		local:        cfg.Local,
		cloud:        cfg.Cloud,
		cloudEnabled: cfg.CloudEnabled && cfg.Cloud != nil,
		variants:     variants,
	}
}

// Recognize reads a bib number out of an encoded region image.
//
// It returns nil without error when no engine produced a usable reading. An
// error is returned only when every engine call attempted for the region
// failed, so the caller can fall back to the detector label.
func (r *Recognizer) Recognize(ctx context.Context, regionImage []byte) (*Result, error) {
	img, err := imaging.Decode(bytes.NewReader(regionImage))
	if err != nil {
		return nil, errors.New(err).
			Component("ocr").
			Category(errors.CategoryImageProcessing).
			Context("operation", "decode_region").
			Build()
	}
	img = upscale(img)

	log := GetLogger()
	var attempts, failures int
	var lastErr error

	var best *Result
	if r.local != nil {
		best, attempts, failures, lastErr = r.recognizeLocal(ctx, img)
	}

	if best != nil && best.Confidence < AlternativesBelow {
		best.Alternatives = Alternatives(best.BibNumber)
	}

	if r.cloudEnabled {
		attempts++
		cloudResult, err := r.recognizeCloud(ctx, img)
		switch {
		case err != nil:
			failures++
			lastErr = err
			log.Warn("cloud recognition failed",
				logger.String("engine", r.cloud.Name()),
				logger.Error(err))
		case cloudResult != nil:
			if best != nil {
				log.Debug("cloud reading overrides local",
					logger.String("local", best.BibNumber),
					logger.String("cloud", cloudResult.BibNumber))
			}
			best = cloudResult
		}
	}

	if best == nil && attempts > 0 && failures == attempts {
		return nil, errors.New(lastErr).
			Component("ocr").
			Category(errors.CategoryService).
			Context("attempts", attempts).
			Build()
	}
	return best, nil
}

// recognizeLocal tries each variant in order, keeping the most confident
// valid reading and stopping once one clears EarlyExitConfidence.
func (r *Recognizer) recognizeLocal(ctx context.Context, img image.Image) (best *Result, attempts, failures int, lastErr error) {
	log := GetLogger()

	for _, v := range r.variants {
		if err := ctx.Err(); err != nil {
			return best, attempts, failures, err
		}

		opts := enhance.DefaultOptions(enhance.PurposeRecognition).Apply(&v.Overrides)
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, enhance.TransformImage(img, opts), imaging.PNG); err != nil {
			log.Warn("encoding variant failed", logger.String("variant", v.Name), logger.Error(err))
			continue
		}

		attempts++
		start := time.Now()
		text, conf, err := r.local.Recognize(ctx, buf.Bytes())
		if err != nil {
			failures++
			lastErr = err
			log.Warn("local recognition failed", logger.String("variant", v.Name), logger.Error(err))
			continue
		}

		bib := ExtractLocal(text)
		confidence := clamp01(conf / 100)
		log.Trace("variant recognized",
			logger.String("variant", v.Name),
			logger.String("raw_text", text),
			logger.String("bib", bib),
			logger.Float64("confidence", confidence),
			logger.Duration("elapsed", time.Since(start)))

		if bib == "" {
			continue
		}
		if best == nil || confidence > best.Confidence {
			best = &Result{
				BibNumber:  bib,
				Confidence: confidence,
				RawText:    text,
				Method:     SourceLocal,
				Variant:    v.Name,
			}
		}
		if best.Confidence > EarlyExitConfidence {
			break
		}
	}
	return best, attempts, failures, lastErr
}

// recognizeCloud sends the upscaled region to the cloud engine.
func (r *Recognizer) recognizeCloud(ctx context.Context, img image.Image) (*Result, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, err
	}

	text, conf, err := r.cloud.Recognize(ctx, buf.Bytes())
	if err != nil {
		return nil, err
	}

	bib := ExtractCloud(text)
	if bib == "" {
		return nil, nil
	}
	if conf <= 0 {
		conf = DefaultCloudConfidence
	}
	return &Result{
		BibNumber:  bib,
		Confidence: clamp01(conf),
		RawText:    text,
		Method:     SourceCloud,
	}, nil
}

// upscale enlarges img so its smaller side reaches ReliableMinDimension.
func upscale(img image.Image) image.Image {
	b := img.Bounds()
	smaller := min(b.Dx(), b.Dy())
	if smaller >= ReliableMinDimension || smaller == 0 {
		return img
	}
	scale := float64(ReliableMinDimension) / float64(smaller)
	w := int(float64(b.Dx())*scale + 0.5)
	h := int(float64(b.Dy())*scale + 0.5)
	return imaging.Resize(img, max(w, ReliableMinDimension), max(h, ReliableMinDimension), imaging.Lanczos)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
