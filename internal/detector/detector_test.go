package detector

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/racephotos/bibfinder/internal/errors"
	"github.com/racephotos/bibfinder/internal/region"
)

const testURL = "http://detector.test/detect"

func newMockedClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	if cfg.URL == "" {
		cfg.URL = testURL
	}
	c, err := New(cfg)
	require.NoError(t, err)
	httpmock.ActivateNonDefault(c.http.GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	return c
}

func TestNew_RequiresURL(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestDetect_Success(t *testing.T) {
	c := newMockedClient(t, Config{APIKey: "secret"})

	httpmock.RegisterResponder(http.MethodPost, testURL,
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "secret", req.Header.Get("X-API-Key"))
			assert.Contains(t, req.Header.Get("Content-Type"), "multipart/form-data")
			return httpmock.NewStringResponse(http.StatusOK, `[
				{"box": {"x": 10, "y": 20, "w": 80, "h": 40}, "label": "345", "confidence": 0.91, "detectionId": "d-1"},
				{"box": {"x": 200, "y": 40, "w": 60, "h": 30}, "label": "12", "confidence": 0.25, "detectionId": "d-2"}
			]`), nil
		})

	got, err := c.Detect(t.Context(), []byte("jpeg bytes"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, Candidate{
		Box:         region.Box{X: 10, Y: 20, W: 80, H: 40},
		Label:       "345",
		Confidence:  0.91,
		DetectionID: "d-1",
	}, got[0])
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestDetect_ServiceErrors(t *testing.T) {
	tests := []struct {
		name      string
		responder httpmock.Responder
	}{
		{"non-2xx", httpmock.NewStringResponder(http.StatusBadGateway, "upstream down")},
		{"malformed json", httpmock.NewStringResponder(http.StatusOK, `{"detections":`)},
		{"confidence out of range", httpmock.NewStringResponder(http.StatusOK,
			`[{"box": {"x": 1, "y": 1, "w": 1, "h": 1}, "label": "1", "confidence": 7}]`)},
		{"empty box", httpmock.NewStringResponder(http.StatusOK,
			`[{"box": {"x": 1, "y": 1, "w": 0, "h": 1}, "label": "1", "confidence": 0.5}]`)},
		{"transport error", httpmock.NewErrorResponder(assert.AnError)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newMockedClient(t, Config{})
			httpmock.RegisterResponder(http.MethodPost, testURL, tt.responder)

			_, err := c.Detect(t.Context(), []byte("img"))
			require.Error(t, err)
			assert.True(t, errors.IsService(err), "got %v", err)
		})
	}
}

func TestDetect_EmptyPayload(t *testing.T) {
	c := newMockedClient(t, Config{})
	httpmock.RegisterResponder(http.MethodPost, testURL, httpmock.NewStringResponder(http.StatusOK, `null`))

	got, err := c.Detect(t.Context(), []byte("img"))
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestDetect_RateLimitHonorsContext(t *testing.T) {
	c := newMockedClient(t, Config{RateLimit: 0.001, Burst: 1})
	httpmock.RegisterResponder(http.MethodPost, testURL, httpmock.NewStringResponder(http.StatusOK, `[]`))

	_, err := c.Detect(t.Context(), []byte("img"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Detect(ctx, []byte("img"))
	require.Error(t, err)
	assert.True(t, errors.IsService(err))
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestFilterByConfidence(t *testing.T) {
	t.Parallel()

	candidates := []Candidate{
		{Label: "1", Confidence: 0.1},
		{Label: "2", Confidence: 0.3},
		{Label: "3", Confidence: 0.29999},
		{Label: "4", Confidence: 0.95},
	}

	tests := []struct {
		name      string
		threshold float64
		want      []string
	}{
		{"default threshold keeps equal", 0.3, []string{"2", "4"}},
		{"zero keeps all", 0, []string{"1", "2", "3", "4"}},
		{"above all", 0.99, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := FilterByConfidence(candidates, tt.threshold)
			labels := make([]string, 0, len(got))
			for _, c := range got {
				assert.GreaterOrEqual(t, c.Confidence, tt.threshold)
				labels = append(labels, c.Label)
			}
			assert.Equal(t, tt.want, labels)
		})
	}
	assert.Len(t, candidates, 4, "input untouched")
}
