// Package conf provides configuration management for bibfinder.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/racephotos/bibfinder/internal/logger"
	"github.com/racephotos/bibfinder/internal/secrets"
)

// Settings is the root configuration.
type Settings struct {
	Debug bool

	Main struct {
		Name string // instance name, used in the User-Agent and Sentry environment
	}

	Logging logger.LoggingConfig

	Database  DatabaseSettings
	Storage   StorageSettings
	Detector  DetectorSettings
	OCR       OCRSettings
	Detection DetectionSettings
	Queue     QueueSettings
	Server    ServerSettings
	Sentry    SentrySettings
}

// DatabaseSettings selects and configures the relational store.
type DatabaseSettings struct {
	Type               string        // sqlite or mysql
	SlowQueryThreshold time.Duration // log queries slower than this at warn
	SQLite             struct {
		Path string
	}
	MySQL struct {
		Host     string
		Port     string
		Username string
		Password string
		Database string
	}
}

// StorageSettings configures the binary object store photos are read from.
type StorageSettings struct {
	Type      string // local or http
	LocalRoot string
	BaseURL   string
	Timeout   time.Duration
}

// DetectorSettings configures the remote object detection service.
type DetectorSettings struct {
	URL       string
	APIKey    string
	RateLimit float64       // requests per second, 0 disables limiting
	Burst     int           // rate limiter burst
	Timeout   time.Duration // 0 leaves the bound to the caller's context
}

// OCRSettings configures the local and cloud recognition engines.
type OCRSettings struct {
	Local struct {
		Enabled        bool
		TessdataPrefix string
		Language       string
		PoolSize       int // engines in the pool, 0 uses queue concurrency
	}
	Cloud struct {
		Enabled  bool
		Provider string // googlevision or generic
		Endpoint string
		APIKey   string
	}
}

// DetectionSettings holds default options for the detection orchestrator.
type DetectionSettings struct {
	MinDetectionConfidence float64
	MinOCRConfidence       float64
	UseOCR                 bool
	EnhanceImage           bool
	OCRFallback            bool
	RegionPadding          float64 // percent each candidate box is expanded before OCR
}

// QueueSettings configures the photo job queue.
type QueueSettings struct {
	Concurrency  int
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	MaxQueued    int
}

// ServerSettings configures the HTTP API.
type ServerSettings struct {
	Listen         string
	ResultCacheTTL time.Duration
}

// SentrySettings configures error telemetry.
type SentrySettings struct {
	Enabled     bool
	DSN         string
	Environment string
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables.
// An empty configFile searches the default locations; a missing file is
// created with default values.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := resolveSecrets(settings); err != nil {
		return nil, fmt.Errorf("error resolving secrets: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// resolveSecrets replaces credential settings written as ${VAR} references
// or file:/path secret file references with the values they point to.
func resolveSecrets(settings *Settings) error {
	return secrets.ResolveAll(map[string]*string{
		"detector.apikey":         &settings.Detector.APIKey,
		"ocr.cloud.apikey":        &settings.OCR.Cloud.APIKey,
		"database.mysql.password": &settings.Database.MySQL.Password,
		"sentry.dsn":              &settings.Sentry.DSN,
	})
}

// initViper registers defaults and environment bindings, then reads the config file.
func initViper(configFile string) error {
	viper.SetConfigType("yaml")
	setDefaultConfig()

	if err := bindEnvVars(); err != nil {
		GetLogger().Warn("environment configuration issues", logger.Error(err))
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		for _, path := range GetDefaultConfigPaths() {
			viper.AddConfigPath(path)
		}
	}

	err := viper.ReadInConfig()
	if err == nil {
		GetLogger().Info("configuration loaded", logger.String("file", viper.ConfigFileUsed()))
		return nil
	}

	var notFound viper.ConfigFileNotFoundError
	switch {
	case errors.As(err, &notFound):
		return createDefaultConfig(filepath.Join(GetDefaultConfigPaths()[0], "config.yaml"))
	case configFile != "" && errors.Is(err, os.ErrNotExist):
		return createDefaultConfig(configFile)
	default:
		return fmt.Errorf("fatal error reading config file: %w", err)
	}
}

// createDefaultConfig writes the current defaults to path and reads them back.
func createDefaultConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return fmt.Errorf("error encoding default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	GetLogger().Info("created default config file", logger.String("file", path))

	viper.SetConfigFile(path)
	return viper.ReadInConfig()
}

// GetDefaultConfigPaths returns the directories searched for config.yaml, in order.
func GetDefaultConfigPaths() []string {
	paths := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "bibfinder"))
	}
	return append(paths, "/etc/bibfinder")
}

// GetSettings returns the most recently loaded settings, or nil.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}
