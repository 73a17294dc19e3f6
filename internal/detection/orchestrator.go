package detection

import (
	"bytes"
	"context"
	"image"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/racephotos/bibfinder/internal/detector"
	"github.com/racephotos/bibfinder/internal/enhance"
	"github.com/racephotos/bibfinder/internal/errors"
	"github.com/racephotos/bibfinder/internal/logger"
	"github.com/racephotos/bibfinder/internal/observability/metrics"
	"github.com/racephotos/bibfinder/internal/ocr"
	"github.com/racephotos/bibfinder/internal/region"
)

const orientedJPEGQuality = 95

// Detector proposes bib boxes for an encoded photo.
type Detector interface {
	Detect(ctx context.Context, image []byte) ([]detector.Candidate, error)
}

// Recognizer reads a bib number out of an encoded region.
type Recognizer interface {
	Recognize(ctx context.Context, region []byte) (*ocr.Result, error)
}

// Orchestrator runs the detection pipeline for single photos. It holds no
// per-photo state and is safe for concurrent use.
type Orchestrator struct {
	detector   Detector
	recognizer Recognizer
	metrics    metrics.Recorder
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics records stage durations and candidate outcomes to r.
func WithMetrics(r metrics.Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.metrics = r
		}
	}
}

// NewOrchestrator creates an Orchestrator. recognizer may be nil, in which
// case every candidate is decided by the detector alone.
func NewOrchestrator(det Detector, recognizer Recognizer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		detector:   det,
		recognizer: recognizer,
		metrics:    metrics.NewNoOpRecorder(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// candidateOutcome is the result of processing one candidate: a detection, or
// the reason and error it was dropped for.
type candidateOutcome struct {
	detection *Detection
	reason    string
	err       error
}

// DetectBibNumbers runs the pipeline over one encoded photo and returns the
// deduplicated detections. Bounding boxes are in the photo's own pixel
// coordinates.
func (o *Orchestrator) DetectBibNumbers(ctx context.Context, photo []byte, opts Options) ([]Detection, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	log := GetLogger().WithContext(ctx)

	_, format, err := image.DecodeConfig(bytes.NewReader(photo))
	if err != nil {
		return nil, errors.New(err).
			Component("detection").
			Category(errors.CategoryImageProcessing).
			Context("operation", "decode_photo").
			Build()
	}
	img, err := imaging.Decode(bytes.NewReader(photo), imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.New(err).
			Component("detection").
			Category(errors.CategoryImageProcessing).
			Context("operation", "decode_photo").
			Build()
	}

	sent := photo
	if opts.EnhanceImage {
		start := time.Now()
		sent = enhance.Enhance(photo, enhance.PurposeDetection, nil)
		o.metrics.RecordDuration(metrics.StageEnhance, time.Since(start).Seconds())
	}
	if bytes.Equal(sent, photo) {
		// Crops come from the EXIF-oriented image; the detector must see the same frame.
		sent = orientedJPEG(log, img, format, photo)
	}
	scaleX, scaleY := boxScale(img, photo, sent)

	start := time.Now()
	candidates, err := o.detector.Detect(ctx, sent)
	o.metrics.RecordDuration(metrics.StageDetect, time.Since(start).Seconds())
	if err != nil {
		o.metrics.RecordError(metrics.StageDetect, string(categoryOf(err)))
		return nil, err
	}

	filtered := detector.FilterByConfidence(candidates, opts.MinDetectionConfidence)
	log.Debug("candidates received",
		logger.Int("total", len(candidates)),
		logger.Int("above_threshold", len(filtered)),
		logger.Float64("threshold", opts.MinDetectionConfidence))

	// Candidates are processed one after another; a failure drops only that
	// candidate.
	outcomes := make([]candidateOutcome, 0, len(filtered))
	for i := range filtered {
		if err := ctx.Err(); err != nil {
			return nil, errors.New(err).
				Component("detection").
				Category(errors.CategoryCancellation).
				Build()
		}
		c := filtered[i]
		c.Box = region.Box{X: c.Box.X * scaleX, Y: c.Box.Y * scaleY, W: c.Box.W * scaleX, H: c.Box.H * scaleY}
		outcomes = append(outcomes, o.processCandidate(ctx, img, c, opts))
	}

	detections := make([]Detection, 0, len(outcomes))
	for i, out := range outcomes {
		if out.err != nil {
			o.metrics.RecordOperation(metrics.OpCandidateDropped, out.reason)
			log.Info("candidate dropped",
				logger.Int("candidate", i),
				logger.String("label", filtered[i].Label),
				logger.String("reason", out.reason),
				logger.Error(out.err))
			continue
		}
		detections = append(detections, *out.detection)
	}

	result := Deduplicate(detections)
	for range len(detections) - len(result) {
		o.metrics.RecordOperation(metrics.OpCandidateDropped, metrics.ReasonDuplicate)
	}
	for i := range result {
		o.metrics.RecordOperation(metrics.OpDetection, string(result[i].Method))
	}

	log.Debug("detection run finished",
		logger.Int("candidates", len(filtered)),
		logger.Int("detections", len(result)))
	return result, nil
}

// processCandidate crops, optionally reads and decides one candidate whose box
// is already in photo coordinates.
func (o *Orchestrator) processCandidate(ctx context.Context, img image.Image, c detector.Candidate, opts Options) candidateOutcome {
	crop := c.Box
	if opts.RegionPadding > 0 {
		b := img.Bounds()
		crop = region.Expand(c.Box, opts.RegionPadding, b.Dx(), b.Dy())
	}
	regionBytes, err := region.EncodeRegion(img, crop)
	if err != nil {
		return candidateOutcome{reason: metrics.ReasonRegion, err: err}
	}

	var read *ocr.Result
	if o.shouldRunOCR(c.Confidence, opts) {
		start := time.Now()
		read, err = o.recognizer.Recognize(ctx, regionBytes)
		o.metrics.RecordDuration(metrics.StageOCR, time.Since(start).Seconds())
		if err != nil {
			// The detector label still stands.
			o.metrics.RecordError(metrics.StageOCR, string(categoryOf(err)))
			GetLogger().WithContext(ctx).Warn("ocr failed, using detector label",
				logger.String("label", c.Label),
				logger.Error(err))
			read = nil
		}
	}

	d := decide(c, read, opts)
	if !BibPattern.MatchString(d.BibNumber) {
		return candidateOutcome{
			reason: metrics.ReasonValidation,
			err: errors.Newf("bib number %q does not match %s", d.BibNumber, BibPattern).
				Component("detection").
				Category(errors.CategoryValidation).
				Context("method", string(d.Method)).
				Build(),
		}
	}
	return candidateOutcome{detection: &d}
}

func (o *Orchestrator) shouldRunOCR(detectorConf float64, opts Options) bool {
	return o.recognizer != nil && opts.UseOCR && (detectorConf < OCRSkipConfidence || opts.OCRFallback)
}

// decide reconciles the detector label with the OCR reading, if any.
func decide(c detector.Candidate, read *ocr.Result, opts Options) Detection {
	label := strings.TrimSpace(c.Label)
	d := Detection{
		BibNumber:          label,
		DetectorConfidence: c.Confidence,
		Method:             MethodDetectorOnly,
		BoundingBox:        c.Box,
		RawMetadata: RawMetadata{
			DetectionID: c.DetectionID,
			Label:       c.Label,
			Confidence:  c.Confidence,
		},
	}

	if read != nil {
		d.OCRConfidence = read.Confidence
		d.OCRMetadata = &OCRMetadata{
			BibNumber:    read.BibNumber,
			RawText:      read.RawText,
			Alternatives: read.Alternatives,
			Source:       read.Method,
			Variant:      read.Variant,
		}

		switch {
		case read.Confidence >= opts.MinOCRConfidence && read.BibNumber != label:
			d.BibNumber = read.BibNumber
			d.Method = MethodOCRCorrected
		case read.Confidence >= opts.MinOCRConfidence:
			d.Method = MethodOCRVerified
		case c.Confidence < AlternativeBelowConfidence && len(read.Alternatives) > 0:
			d.BibNumber = read.Alternatives[0]
			d.Method = MethodOCRCorrected
		}
	}

	d.CombinedConfidence = CombinedConfidence(d.Method, d.DetectorConfidence, d.OCRConfidence)
	return d
}

// orientedJPEG re-encodes a JPEG photo from its oriented decode. Only JPEG
// carries an EXIF orientation, so other formats are returned unchanged, as is
// the photo when encoding fails.
func orientedJPEG(log logger.Logger, img image.Image, format string, photo []byte) []byte {
	if format != "jpeg" {
		return photo
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(orientedJPEGQuality)); err != nil {
		log.Warn("could not re-encode oriented photo, sending original", logger.Error(err))
		return photo
	}
	return buf.Bytes()
}

// boxScale returns the factors that map boxes on the image sent to the
// detector back onto the decoded photo.
func boxScale(img image.Image, photo, sent []byte) (float64, float64) {
	if bytes.Equal(photo, sent) {
		return 1, 1
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(sent))
	if err != nil || cfg.Width == 0 || cfg.Height == 0 {
		return 1, 1
	}
	b := img.Bounds()
	return float64(b.Dx()) / float64(cfg.Width), float64(b.Dy()) / float64(cfg.Height)
}

func categoryOf(err error) errors.ErrorCategory {
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		return ee.ErrorCategory()
	}
	return errors.CategoryGeneric
}
