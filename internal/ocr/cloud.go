package ocr

import (
	"bytes"
	"context"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/racephotos/bibfinder/internal/errors"
)

// CloudConfig configures a cloud recognition engine.
type CloudConfig struct {
	Provider string // googlevision or generic
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// NewCloudEngine returns the engine for cfg.Provider.
func NewCloudEngine(cfg CloudConfig) (CloudEngine, error) {
	client := resty.New().SetHeader("Accept", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	switch cfg.Provider {
	case "googlevision", "":
		return &GoogleVision{endpoint: cfg.Endpoint, apiKey: cfg.APIKey, http: client}, nil
	case "generic":
		if cfg.APIKey != "" {
			client.SetAuthToken(cfg.APIKey)
		}
		return &GenericCloud{endpoint: cfg.Endpoint, http: client}, nil
	default:
		return nil, errors.Newf("unknown cloud OCR provider %q", cfg.Provider).
			Component("ocr").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// GoogleVision calls the Cloud Vision images:annotate REST endpoint with
// TEXT_DETECTION.
type GoogleVision struct {
	endpoint string
	apiKey   string
	http     *resty.Client
}

type visionRequest struct {
	Requests []visionImageRequest `json:"requests"`
}

type visionImageRequest struct {
	Image struct {
		Content []byte `json:"content"` // base64 encoded by encoding/json
	} `json:"image"`
	Features []visionFeature `json:"features"`
}

type visionFeature struct {
	Type       string `json:"type"`
	MaxResults int    `json:"maxResults,omitempty"`
}

type visionResponse struct {
	Responses []struct {
		TextAnnotations []struct {
			Description string `json:"description"`
		} `json:"textAnnotations"`
		FullTextAnnotation *struct {
			Text  string `json:"text"`
			Pages []struct {
				Confidence float64 `json:"confidence"`
			} `json:"pages"`
		} `json:"fullTextAnnotation"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
}

// Name implements CloudEngine.
func (g *GoogleVision) Name() string { return "googlevision" }

// Recognize implements CloudEngine.
func (g *GoogleVision) Recognize(ctx context.Context, image []byte) (text string, confidence float64, err error) {
	req := visionImageRequest{Features: []visionFeature{{Type: "TEXT_DETECTION"}}}
	req.Image.Content = image

	var out visionResponse
	resp, err := g.http.R().
		SetContext(ctx).
		SetQueryParam("key", g.apiKey).
		SetBody(visionRequest{Requests: []visionImageRequest{req}}).
		SetResult(&out).
		Post(g.endpoint)
	if err != nil {
		return "", 0, errors.ServiceError("ocr", err)
	}
	if resp.IsError() {
		return "", 0, errors.Newf("cloud vision returned %s", resp.Status()).
			Component("ocr").
			Category(errors.CategoryService).
			Context("status_code", resp.StatusCode()).
			Build()
	}
	if len(out.Responses) == 0 {
		return "", 0, nil
	}

	r := out.Responses[0]
	if r.Error != nil && r.Error.Message != "" {
		return "", 0, errors.Newf("cloud vision error %d: %s", r.Error.Code, r.Error.Message).
			Component("ocr").
			Category(errors.CategoryService).
			Build()
	}

	if r.FullTextAnnotation != nil {
		text = r.FullTextAnnotation.Text
		if len(r.FullTextAnnotation.Pages) > 0 {
			confidence = r.FullTextAnnotation.Pages[0].Confidence
		}
	}
	if text == "" && len(r.TextAnnotations) > 0 {
		text = r.TextAnnotations[0].Description
	}
	return text, confidence, nil
}

// GenericCloud posts the image as multipart form data and expects
// {"text": "...", "confidence": 0.0-1.0} back.
type GenericCloud struct {
	endpoint string
	http     *resty.Client
}

type genericResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Name implements CloudEngine.
func (g *GenericCloud) Name() string { return "generic" }

// Recognize implements CloudEngine.
func (g *GenericCloud) Recognize(ctx context.Context, image []byte) (text string, confidence float64, err error) {
	var out genericResponse
	resp, err := g.http.R().
		SetContext(ctx).
		SetFileReader("image", "region.png", bytes.NewReader(image)).
		SetResult(&out).
		Post(g.endpoint)
	if err != nil {
		return "", 0, errors.ServiceError("ocr", err)
	}
	if resp.IsError() {
		return "", 0, errors.Newf("cloud OCR returned %s", resp.Status()).
			Component("ocr").
			Category(errors.CategoryService).
			Context("status_code", resp.StatusCode()).
			Build()
	}
	return out.Text, out.Confidence, nil
}
