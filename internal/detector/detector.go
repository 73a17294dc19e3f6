// Package detector is the client for the remote bib detection service.
//
// The service accepts a multipart image upload and answers with a JSON array
// of candidate boxes:
//
//	[{"box": {"x": 10, "y": 20, "w": 80, "h": 40}, "label": "345",
//	  "confidence": 0.91, "detectionId": "d-1"}]
//
// Any transport failure, non-2xx status or malformed payload is returned as a
// service error.
package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/racephotos/bibfinder/internal/errors"
	"github.com/racephotos/bibfinder/internal/logger"
	"github.com/racephotos/bibfinder/internal/region"
)

const componentName = "detector"

// Candidate is an unvalidated bib box proposed by the detection service.
type Candidate struct {
	Box         region.Box `json:"box"`
	Label       string     `json:"label"`
	Confidence  float64    `json:"confidence"`
	DetectionID string     `json:"detectionId"`
}

// Config configures the detection service client.
type Config struct {
	URL       string
	APIKey    string
	RateLimit float64       // requests per second, 0 disables limiting
	Burst     int           // limiter burst, at least 1
	Timeout   time.Duration // 0 leaves the bound to the caller's context
	UserAgent string
}

// Client calls the detection service.
type Client struct {
	url     string
	http    *resty.Client
	limiter *rate.Limiter
}

// GetLogger returns the detector package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module(componentName)
}

// New creates a client for cfg.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.Newf("detector URL is required").
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Build()
	}

	httpClient := resty.New()
	if cfg.Timeout > 0 {
		httpClient.SetTimeout(cfg.Timeout)
	}
	if cfg.APIKey != "" {
		httpClient.SetHeader("X-API-Key", cfg.APIKey)
	}
	if cfg.UserAgent != "" {
		httpClient.SetHeader("User-Agent", cfg.UserAgent)
	}
	httpClient.SetHeader("Accept", "application/json")

	c := &Client{url: cfg.URL, http: httpClient}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(1, cfg.Burst))
	}
	return c, nil
}

// Detect sends image to the detection service and returns its candidates.
func (c *Client) Detect(ctx context.Context, image []byte) ([]Candidate, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.New(err).
				Component(componentName).
				Category(errors.CategoryService).
				Context("operation", "rate_limit_wait").
				Build()
		}
	}

	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetFileReader("image", "photo.jpg", bytes.NewReader(image)).
		Post(c.url)
	if err != nil {
		return nil, errors.New(err).
			Component(componentName).
			Category(errors.CategoryService).
			Context("operation", "detect").
			Context("url", c.url).
			Build()
	}

	if resp.IsError() {
		return nil, errors.Newf("detection service returned %s", resp.Status()).
			Component(componentName).
			Category(errors.CategoryService).
			Context("status_code", resp.StatusCode()).
			Context("url", c.url).
			Build()
	}

	candidates, err := decodeCandidates(resp.Body())
	if err != nil {
		return nil, errors.New(err).
			Component(componentName).
			Category(errors.CategoryService).
			Context("operation", "decode").
			Build()
	}

	GetLogger().Debug("detection service responded",
		logger.Int("candidates", len(candidates)),
		logger.Int("status_code", resp.StatusCode()),
		logger.Duration("elapsed", time.Since(start)))

	return candidates, nil
}

// decodeCandidates parses and sanity checks a detection payload.
func decodeCandidates(body []byte) ([]Candidate, error) {
	var candidates []Candidate
	if err := json.Unmarshal(body, &candidates); err != nil {
		return nil, fmt.Errorf("malformed detection payload: %w", err)
	}
	for i := range candidates {
		c := &candidates[i]
		if math.IsNaN(c.Confidence) || c.Confidence < 0 || c.Confidence > 1 {
			return nil, fmt.Errorf("candidate %d: confidence %v outside [0,1]", i, c.Confidence)
		}
		if c.Box.W <= 0 || c.Box.H <= 0 {
			return nil, fmt.Errorf("candidate %d: box has no area", i)
		}
	}
	if candidates == nil {
		candidates = []Candidate{}
	}
	return candidates, nil
}

// FilterByConfidence returns the candidates whose confidence is at least
// threshold. The input slice is not modified.
func FilterByConfidence(candidates []Candidate, threshold float64) []Candidate {
	kept := make([]Candidate, 0, len(candidates))
	for i := range candidates {
		if candidates[i].Confidence >= threshold {
			kept = append(kept, candidates[i])
		}
	}
	return kept
}
