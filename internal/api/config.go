// Package api serves the bibfinder HTTP API: photo registration and status,
// cancellation, ad-hoc detection, bib lookup and queue statistics.
package api

import (
	"fmt"
	"time"

	"github.com/racephotos/bibfinder/internal/conf"
	"github.com/racephotos/bibfinder/internal/logger"
)

// GetLogger returns the api package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}

// Default constants for the HTTP server.
const (
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultResultCacheTTL  = 10 * time.Minute

	// DefaultBodyLimit covers a full resolution photo upload to /detect.
	DefaultBodyLimit = "32M"

	maxPhotosPerRequest = 500
)

// Config holds the HTTP server configuration.
type Config struct {
	Listen string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	BodyLimit string

	// ResultCacheTTL is how long /detect results are kept per image hash.
	ResultCacheTTL time.Duration
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:          ":8080",
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		BodyLimit:       DefaultBodyLimit,
		ResultCacheTTL:  DefaultResultCacheTTL,
	}
}

// ConfigFromSettings creates a Config from application settings.
func ConfigFromSettings(settings *conf.Settings) *Config {
	cfg := DefaultConfig()
	if settings == nil {
		return cfg
	}
	if settings.Server.Listen != "" {
		cfg.Listen = settings.Server.Listen
	}
	if settings.Server.ResultCacheTTL > 0 {
		cfg.ResultCacheTTL = settings.Server.ResultCacheTTL
	}
	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	if c.ResultCacheTTL <= 0 {
		return fmt.Errorf("result cache ttl must be positive")
	}
	return nil
}
