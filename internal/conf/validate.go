package conf

import (
	"fmt"
	"net/url"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) error{
		validateDatabaseSettings,
		validateStorageSettings,
		validateDetectorSettings,
		validateOCRSettings,
		validateDetectionSettings,
		validateQueueSettings,
	}
	for _, validate := range validators {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		ve.Errors = append(ve.Errors, "sentry is enabled but no DSN is set")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateDatabaseSettings(s *Settings) error {
	switch s.Database.Type {
	case "sqlite":
		if s.Database.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path is required for sqlite")
		}
	case "mysql":
		m := s.Database.MySQL
		if m.Host == "" || m.Database == "" || m.Username == "" {
			return fmt.Errorf("database.mysql requires host, database and username")
		}
	default:
		return fmt.Errorf("database.type must be sqlite or mysql, got %q", s.Database.Type)
	}
	return nil
}

func validateStorageSettings(s *Settings) error {
	switch s.Storage.Type {
	case "local":
		if s.Storage.LocalRoot == "" {
			return fmt.Errorf("storage.localroot is required for local storage")
		}
	case "http":
		if err := validateHTTPURL(s.Storage.BaseURL); err != nil {
			return fmt.Errorf("storage.baseurl: %w", err)
		}
	default:
		return fmt.Errorf("storage.type must be local or http, got %q", s.Storage.Type)
	}
	return nil
}

func validateDetectorSettings(s *Settings) error {
	if err := validateHTTPURL(s.Detector.URL); err != nil {
		return fmt.Errorf("detector.url: %w", err)
	}
	if s.Detector.RateLimit < 0 {
		return fmt.Errorf("detector.ratelimit must not be negative")
	}
	return nil
}

func validateOCRSettings(s *Settings) error {
	if !s.OCR.Cloud.Enabled {
		return nil
	}
	switch s.OCR.Cloud.Provider {
	case "googlevision", "generic":
	default:
		return fmt.Errorf("ocr.cloud.provider must be googlevision or generic, got %q", s.OCR.Cloud.Provider)
	}
	if err := validateHTTPURL(s.OCR.Cloud.Endpoint); err != nil {
		return fmt.Errorf("ocr.cloud.endpoint: %w", err)
	}
	return nil
}

func validateDetectionSettings(s *Settings) error {
	d := s.Detection
	if d.MinDetectionConfidence < 0 || d.MinDetectionConfidence > 1 {
		return fmt.Errorf("detection.mindetectionconfidence must be within [0,1], got %g", d.MinDetectionConfidence)
	}
	if d.MinOCRConfidence < 0 || d.MinOCRConfidence > 1 {
		return fmt.Errorf("detection.minocrconfidence must be within [0,1], got %g", d.MinOCRConfidence)
	}
	if d.RegionPadding < 0 {
		return fmt.Errorf("detection.regionpadding must not be negative")
	}
	return nil
}

func validateQueueSettings(s *Settings) error {
	q := s.Queue
	if q.Concurrency < 1 {
		return fmt.Errorf("queue.concurrency must be at least 1")
	}
	if q.MaxAttempts < 1 {
		return fmt.Errorf("queue.maxattempts must be at least 1")
	}
	if q.InitialDelay <= 0 || q.MaxDelay < q.InitialDelay {
		return fmt.Errorf("queue delays must satisfy 0 < initialdelay <= maxdelay")
	}
	if q.Multiplier < 1 {
		return fmt.Errorf("queue.multiplier must be at least 1")
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}
