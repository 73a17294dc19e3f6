package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoad_CreatesDefaultConfig(t *testing.T) {
	resetViper(t)
	configFile := filepath.Join(t.TempDir(), "config.yaml")

	settings, err := Load(configFile)
	require.NoError(t, err)

	_, statErr := os.Stat(configFile)
	require.NoError(t, statErr, "default config file should be written")

	assert.Equal(t, "sqlite", settings.Database.Type)
	assert.InDelta(t, 0.3, settings.Detection.MinDetectionConfidence, 1e-9)
	assert.InDelta(t, 0.5, settings.Detection.MinOCRConfidence, 1e-9)
	assert.True(t, settings.Detection.UseOCR)
	assert.True(t, settings.Detection.EnhanceImage)
	assert.True(t, settings.Detection.OCRFallback)
	assert.Equal(t, 3, settings.Queue.Concurrency)
	assert.Equal(t, 3, settings.Queue.MaxAttempts)
	assert.Equal(t, 2*time.Second, settings.Queue.InitialDelay)
	assert.Equal(t, "info", settings.Logging.DefaultLevel)
	assert.Same(t, settings, GetSettings())
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	resetViper(t)
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
detector:
  url: http://detector.internal:9000/detect
queue:
  concurrency: 5
detection:
  minocrconfidence: 0.6
logging:
  default_level: debug
`
	require.NoError(t, os.WriteFile(configFile, []byte(yaml), 0o600))
	t.Setenv("BIBFINDER_QUEUE_MAX_ATTEMPTS", "4")

	settings, err := Load(configFile)
	require.NoError(t, err)

	assert.Equal(t, "http://detector.internal:9000/detect", settings.Detector.URL)
	assert.Equal(t, 5, settings.Queue.Concurrency)
	assert.Equal(t, 4, settings.Queue.MaxAttempts)
	assert.InDelta(t, 0.6, settings.Detection.MinOCRConfidence, 1e-9)
	assert.Equal(t, "debug", settings.Logging.DefaultLevel)
}

func TestLoad_InvalidSettings(t *testing.T) {
	resetViper(t)
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("database:\n  type: postgres\n"), 0o600))

	_, err := Load(configFile)
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 1)
}

func TestLoad_ResolvesSecrets(t *testing.T) {
	resetViper(t)
	dir := t.TempDir()
	keyFile := filepath.Join(dir, "detector_key")
	require.NoError(t, os.WriteFile(keyFile, []byte("from-file\n"), 0o600))
	t.Setenv("BIBFINDER_TEST_OCR_KEY", "from-env")

	configFile := filepath.Join(dir, "config.yaml")
	yaml := "detector:\n  apikey: file:" + keyFile + "\nocr:\n  cloud:\n    apikey: ${BIBFINDER_TEST_OCR_KEY}\n"
	require.NoError(t, os.WriteFile(configFile, []byte(yaml), 0o600))

	settings, err := Load(configFile)
	require.NoError(t, err)
	assert.Equal(t, "from-file", settings.Detector.APIKey)
	assert.Equal(t, "from-env", settings.OCR.Cloud.APIKey)
}

func TestLoad_UnresolvableSecret(t *testing.T) {
	resetViper(t)
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("detector:\n  apikey: ${BIBFINDER_TEST_UNSET_KEY}\n"), 0o600))

	_, err := Load(configFile)
	require.ErrorContains(t, err, "detector.apikey")
}

func TestValidateSettings(t *testing.T) {
	valid := func() *Settings {
		s := &Settings{}
		s.Database.Type = "sqlite"
		s.Database.SQLite.Path = "db.sqlite"
		s.Storage.Type = "local"
		s.Storage.LocalRoot = "photos"
		s.Detector.URL = "http://localhost:8000/detect"
		s.Detection.MinDetectionConfidence = 0.3
		s.Detection.MinOCRConfidence = 0.5
		s.Queue = QueueSettings{Concurrency: 3, MaxAttempts: 3, InitialDelay: 2 * time.Second, MaxDelay: time.Minute, Multiplier: 2}
		return s
	}

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{"valid", func(*Settings) {}, false},
		{"mysql without host", func(s *Settings) { s.Database.Type = "mysql" }, true},
		{"http storage without url", func(s *Settings) { s.Storage.Type = "http" }, true},
		{"confidence above one", func(s *Settings) { s.Detection.MinOCRConfidence = 1.5 }, true},
		{"zero concurrency", func(s *Settings) { s.Queue.Concurrency = 0 }, true},
		{"max delay below initial", func(s *Settings) { s.Queue.MaxDelay = time.Second }, true},
		{"cloud ocr unknown provider", func(s *Settings) {
			s.OCR.Cloud.Enabled = true
			s.OCR.Cloud.Provider = "tesseract"
			s.OCR.Cloud.Endpoint = "https://ocr.example.com"
		}, true},
		{"sentry without dsn", func(s *Settings) { s.Sentry.Enabled = true }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(s)
			err := ValidateSettings(s)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
