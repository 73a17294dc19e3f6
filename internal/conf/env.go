// env.go - Environment variable configuration and validation for bibfinder
package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "BIBFINDER_DEBUG", validateEnvBool},

		// Database
		{"database.type", "BIBFINDER_DATABASE_TYPE", validateEnvOneOf("sqlite", "mysql")},
		{"database.sqlite.path", "BIBFINDER_SQLITE_PATH", nil},
		{"database.mysql.host", "BIBFINDER_MYSQL_HOST", nil},
		{"database.mysql.port", "BIBFINDER_MYSQL_PORT", validateEnvPort},
		{"database.mysql.username", "BIBFINDER_MYSQL_USERNAME", nil},
		{"database.mysql.password", "BIBFINDER_MYSQL_PASSWORD", nil},
		{"database.mysql.database", "BIBFINDER_MYSQL_DATABASE", nil},

		// Storage
		{"storage.type", "BIBFINDER_STORAGE_TYPE", validateEnvOneOf("local", "http")},
		{"storage.localroot", "BIBFINDER_STORAGE_ROOT", nil},
		{"storage.baseurl", "BIBFINDER_STORAGE_URL", validateEnvURL},

		// Detector
		{"detector.url", "BIBFINDER_DETECTOR_URL", validateEnvURL},
		{"detector.apikey", "BIBFINDER_DETECTOR_API_KEY", nil},
		{"detector.ratelimit", "BIBFINDER_DETECTOR_RATE_LIMIT", validateEnvNonNegativeFloat},

		// OCR
		{"ocr.local.enabled", "BIBFINDER_OCR_LOCAL_ENABLED", validateEnvBool},
		{"ocr.local.tessdataprefix", "TESSDATA_PREFIX", nil},
		{"ocr.cloud.enabled", "BIBFINDER_OCR_CLOUD_ENABLED", validateEnvBool},
		{"ocr.cloud.apikey", "BIBFINDER_OCR_CLOUD_API_KEY", nil},
		{"ocr.cloud.endpoint", "BIBFINDER_OCR_CLOUD_ENDPOINT", validateEnvURL},

		// Queue
		{"queue.concurrency", "BIBFINDER_QUEUE_CONCURRENCY", validateEnvPositiveInt},
		{"queue.maxattempts", "BIBFINDER_QUEUE_MAX_ATTEMPTS", validateEnvPositiveInt},
		{"queue.initialdelay", "BIBFINDER_QUEUE_INITIAL_DELAY", validateEnvDuration},

		// Server and telemetry
		{"server.listen", "BIBFINDER_LISTEN", nil},
		{"sentry.enabled", "BIBFINDER_SENTRY_ENABLED", validateEnvBool},
		{"sentry.dsn", "SENTRY_DSN", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if envValue := os.Getenv(binding.EnvVar); envValue != "" {
			if err := binding.Validate(envValue); err != nil {
				warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

// Environment variable validation functions

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("invalid boolean value '%s': must be true/false, 1/0, t/f", value)
	}
	return nil
}

func validateEnvOneOf(allowed ...string) func(string) error {
	return func(value string) error {
		v := strings.ToLower(strings.TrimSpace(value))
		for _, a := range allowed {
			if v == a {
				return nil
			}
		}
		return fmt.Errorf("must be one of %s, got '%s'", strings.Join(allowed, ", "), value)
	}
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid port: %w", err)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

func validateEnvURL(value string) error {
	u, err := url.Parse(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got '%s'", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must include a host")
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid integer: %w", err)
	}
	if n < 1 {
		return fmt.Errorf("must be at least 1, got %d", n)
	}
	return nil
}

func validateEnvNonNegativeFloat(value string) error {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fmt.Errorf("invalid number: %w", err)
	}
	if f < 0 {
		return fmt.Errorf("must not be negative, got %g", f)
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("duration must be positive, got %s", d)
	}
	return nil
}
