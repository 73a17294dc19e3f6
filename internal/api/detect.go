package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"

	"github.com/racephotos/bibfinder/internal/detection"
	"github.com/racephotos/bibfinder/internal/logger"
)

// DetectResponse is the body of POST /api/v1/detect.
type DetectResponse struct {
	ImageHash  string                `json:"imageHash"`
	Cached     bool                  `json:"cached"`
	Detections []detection.Detection `json:"detections"`
}

// Detect handles POST /api/v1/detect: a multipart "image" file, and an
// optional "options" JSON field overriding the defaults. Nothing is persisted.
func (s *Server) Detect(ctx echo.Context) error {
	if s.detector == nil {
		return s.HandleError(ctx, nil, "Detection is not enabled", http.StatusServiceUnavailable)
	}

	file, err := ctx.FormFile("image")
	if err != nil {
		return s.HandleError(ctx, err, "Missing image file", http.StatusBadRequest)
	}
	src, err := file.Open()
	if err != nil {
		return s.HandleError(ctx, err, "Failed to read image", http.StatusBadRequest)
	}
	defer func() { _ = src.Close() }()
	img, err := io.ReadAll(src)
	if err != nil {
		return s.HandleError(ctx, err, "Failed to read image", http.StatusBadRequest)
	}
	if len(img) == 0 {
		return s.HandleError(ctx, nil, "Image is empty", http.StatusBadRequest)
	}

	opts := s.detectOpts
	if raw := ctx.FormValue("options"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &opts); err != nil {
			return s.HandleError(ctx, err, "Invalid options", http.StatusBadRequest)
		}
	}
	if err := opts.Validate(); err != nil {
		return s.HandleError(ctx, err, "Invalid options", http.StatusBadRequest)
	}

	sum := sha256.Sum256(img)
	hash := hex.EncodeToString(sum[:])
	key := resultCacheKey(hash, opts)

	if cached, ok := s.resultCache.Get(key); ok {
		s.recordCacheLookup(true)
		return ctx.JSON(http.StatusOK, DetectResponse{ImageHash: hash, Cached: true, Detections: cached.([]detection.Detection)})
	}
	s.recordCacheLookup(false)

	dets, err := s.detector.DetectBibNumbers(ctx.Request().Context(), img, opts)
	if err != nil {
		return s.HandleError(ctx, err, "Detection failed", statusFor(err))
	}
	if dets == nil {
		dets = []detection.Detection{}
	}
	s.resultCache.Set(key, dets, cache.DefaultExpiration)

	GetLogger().WithContext(ctx.Request().Context()).Debug("ad-hoc detection",
		logger.String("image_hash", hash),
		logger.Int("detections", len(dets)))
	return ctx.JSON(http.StatusOK, DetectResponse{ImageHash: hash, Detections: dets})
}

func (s *Server) recordCacheLookup(hit bool) {
	if s.metrics != nil {
		s.metrics.HTTP.RecordCacheLookup(hit)
	}
}

func resultCacheKey(hash string, opts detection.Options) string {
	return fmt.Sprintf("%s|%g|%g|%t|%t|%t|%g", hash,
		opts.MinDetectionConfidence, opts.MinOCRConfidence,
		opts.UseOCR, opts.EnhanceImage, opts.OCRFallback, opts.RegionPadding)
}
