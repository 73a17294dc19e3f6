package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandString(t *testing.T) {
	t.Setenv("BIBFINDER_TEST_TOKEN", "s3cret")
	t.Setenv("BIBFINDER_TEST_EMPTY", "")

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"empty", "", "", false},
		{"literal", "plain-key", "plain-key", false},
		{"variable", "${BIBFINDER_TEST_TOKEN}", "s3cret", false},
		{"embedded", "Bearer ${BIBFINDER_TEST_TOKEN}!", "Bearer s3cret!", false},
		{"default used", "${BIBFINDER_TEST_UNSET:-fallback}", "fallback", false},
		{"empty default", "${BIBFINDER_TEST_UNSET:-}", "", false},
		{"empty var uses default", "${BIBFINDER_TEST_EMPTY:-x}", "x", false},
		{"missing", "${BIBFINDER_TEST_UNSET}", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandString(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "BIBFINDER_TEST_UNSET")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func writeSecret(t *testing.T, content string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(path, []byte(content), mode))
	return path
}

func TestReadFile(t *testing.T) {
	t.Run("trims trailing newline", func(t *testing.T) {
		got, err := ReadFile(writeSecret(t, " key with spaces \n", 0o600))
		require.NoError(t, err)
		assert.Equal(t, " key with spaces ", got)
	})

	t.Run("permissive mode still reads", func(t *testing.T) {
		got, err := ReadFile(writeSecret(t, "abc", 0o644))
		require.NoError(t, err)
		assert.Equal(t, "abc", got)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := ReadFile(writeSecret(t, "\n", 0o600))
		require.Error(t, err)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := ReadFile(filepath.Join(t.TempDir(), "nope"))
		require.ErrorContains(t, err, "not found")
	})

	t.Run("directory", func(t *testing.T) {
		_, err := ReadFile(t.TempDir())
		require.ErrorContains(t, err, "not a regular file")
	})

	t.Run("too large", func(t *testing.T) {
		big := make([]byte, maxSecretFileSize+1)
		for i := range big {
			big[i] = 'a'
		}
		_, err := ReadFile(writeSecret(t, string(big), 0o600))
		require.ErrorContains(t, err, "too large")
	})

	t.Run("no path", func(t *testing.T) {
		_, err := ReadFile("")
		require.Error(t, err)
	})
}

func TestResolveAll(t *testing.T) {
	t.Setenv("BIBFINDER_TEST_DSN", "https://key@sentry.example/1")
	file := writeSecret(t, "db-password\n", 0o600)

	apiKey := "literal-key"
	password := FilePrefix + file
	dsn := "${BIBFINDER_TEST_DSN}"
	empty := ""

	require.NoError(t, ResolveAll(map[string]*string{
		"detector.apikey":         &apiKey,
		"database.mysql.password": &password,
		"sentry.dsn":              &dsn,
		"ocr.cloud.apikey":        &empty,
		"unused":                  nil,
	}))
	assert.Equal(t, "literal-key", apiKey)
	assert.Equal(t, "db-password", password)
	assert.Equal(t, "https://key@sentry.example/1", dsn)
	assert.Empty(t, empty)

	missing := "${BIBFINDER_TEST_UNSET}"
	err := ResolveAll(map[string]*string{"detector.apikey": &missing})
	require.ErrorContains(t, err, "detector.apikey")
	assert.Equal(t, "${BIBFINDER_TEST_UNSET}", missing, "failed fields are left unchanged")
}
