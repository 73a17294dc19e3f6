package ocr

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/racephotos/bibfinder/internal/errors"
)

const visionURL = "https://vision.test/v1/images:annotate"

func activate(t *testing.T, engine CloudEngine) {
	t.Helper()
	switch e := engine.(type) {
	case *GoogleVision:
		httpmock.ActivateNonDefault(e.http.GetClient())
	case *GenericCloud:
		httpmock.ActivateNonDefault(e.http.GetClient())
	}
	t.Cleanup(httpmock.DeactivateAndReset)
}

func TestGoogleVision_Recognize(t *testing.T) {
	engine, err := NewCloudEngine(CloudConfig{Provider: "googlevision", Endpoint: visionURL, APIKey: "k"})
	require.NoError(t, err)
	activate(t, engine)

	httpmock.RegisterResponder(http.MethodPost, visionURL,
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "k", req.URL.Query().Get("key"))
			body, _ := io.ReadAll(req.Body)
			var sent visionRequest
			require.NoError(t, json.Unmarshal(body, &sent))
			require.Len(t, sent.Requests, 1)
			assert.Equal(t, []byte("png"), sent.Requests[0].Image.Content)
			assert.Equal(t, "TEXT_DETECTION", sent.Requests[0].Features[0].Type)

			return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
				"responses": []any{map[string]any{
					"textAnnotations": []any{map[string]any{"description": "BIB\n815"}},
					"fullTextAnnotation": map[string]any{
						"text":  "BIB\n815",
						"pages": []any{map[string]any{"confidence": 0.97}},
					},
				}},
			})
		})

	text, conf, err := engine.Recognize(t.Context(), []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, "BIB\n815", text)
	assert.InDelta(t, 0.97, conf, 1e-9)
}

func TestGoogleVision_Errors(t *testing.T) {
	engine, err := NewCloudEngine(CloudConfig{Endpoint: visionURL})
	require.NoError(t, err)
	activate(t, engine)

	httpmock.RegisterResponder(http.MethodPost, visionURL,
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]any{
			"responses": []any{map[string]any{"error": map[string]any{"code": 3, "message": "bad image"}}},
		}))
	_, _, err = engine.Recognize(t.Context(), []byte("png"))
	require.Error(t, err)
	assert.True(t, errors.IsService(err))

	httpmock.RegisterResponder(http.MethodPost, visionURL, httpmock.NewStringResponder(http.StatusForbidden, "denied"))
	_, _, err = engine.Recognize(t.Context(), []byte("png"))
	require.Error(t, err)
	assert.True(t, errors.IsService(err))
}

func TestGenericCloud_Recognize(t *testing.T) {
	const url = "https://ocr.test/read"
	engine, err := NewCloudEngine(CloudConfig{Provider: "generic", Endpoint: url, APIKey: "tok"})
	require.NoError(t, err)
	activate(t, engine)

	httpmock.RegisterResponder(http.MethodPost, url,
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer tok", req.Header.Get("Authorization"))
			return httpmock.NewJsonResponse(http.StatusOK, map[string]any{"text": "0451", "confidence": 0.8})
		})

	text, conf, err := engine.Recognize(t.Context(), []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, "0451", text)
	assert.InDelta(t, 0.8, conf, 1e-9)
	assert.Equal(t, "generic", engine.Name())
}

func TestNewCloudEngine_UnknownProvider(t *testing.T) {
	_, err := NewCloudEngine(CloudConfig{Provider: "abacus"})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}
