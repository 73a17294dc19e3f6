// Package storage reads photo bytes from the binary object store.
package storage

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/racephotos/bibfinder/internal/conf"
	"github.com/racephotos/bibfinder/internal/errors"
	"github.com/racephotos/bibfinder/internal/httpclient"
	"github.com/racephotos/bibfinder/internal/logger"
)

// Fetcher loads the object stored under ref.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// ErrInvalidRef indicates a storage reference that escapes the store root.
var ErrInvalidRef = errors.NewStd("invalid storage reference")

// GetLogger returns the storage package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("storage")
}

// New builds the fetcher selected by settings.
func New(settings *conf.StorageSettings, userAgent string) (Fetcher, error) {
	switch settings.Type {
	case "local":
		return NewLocalStore(settings.LocalRoot), nil
	case "http":
		return NewHTTPStore(settings.BaseURL, httpclient.New(&httpclient.Config{
			DefaultTimeout: settings.Timeout,
			UserAgent:      userAgent,
		}))
	default:
		return nil, errors.Newf("unknown storage type %q", settings.Type).
			Component("storage").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// LocalStore reads objects from a directory.
type LocalStore struct {
	root string
}

// NewLocalStore creates a store rooted at root.
func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

// Fetch reads root/ref. References that are absolute or climb out of the
// root are rejected.
func (s *LocalStore) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clean := filepath.Clean(filepath.FromSlash(ref))
	if ref == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}

	data, err := os.ReadFile(filepath.Join(s.root, clean))
	if err != nil {
		return nil, errors.ServiceError("storage", fmt.Errorf("read %s: %w", ref, err))
	}
	return data, nil
}

// HTTPStore GETs objects relative to a base URL.
type HTTPStore struct {
	base   *url.URL
	client *httpclient.Client
}

// NewHTTPStore creates a store fetching baseURL/ref through client.
func NewHTTPStore(baseURL string, client *httpclient.Client) (*HTTPStore, error) {
	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.Newf("invalid storage base URL %q", baseURL).
			Component("storage").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	log := GetLogger()
	client.SetObserver(func(req *http.Request, resp *http.Response, err error, elapsed time.Duration) {
		if err != nil {
			log.Debug("object fetch failed",
				logger.String("url", req.URL.Redacted()),
				logger.Duration("elapsed", elapsed),
				logger.Error(err))
			return
		}
		log.Debug("object fetched",
			logger.String("url", req.URL.Redacted()),
			logger.Int("status", resp.StatusCode),
			logger.Duration("elapsed", elapsed))
	})

	return &HTTPStore{base: base, client: client}, nil
}

// Fetch GETs the object. Transport failures and non-2xx responses are
// service errors.
func (s *HTTPStore) Fetch(ctx context.Context, ref string) ([]byte, error) {
	rel, err := url.Parse(strings.TrimLeft(ref, "/"))
	if ref == "" || err != nil || rel.IsAbs() || rel.Host != "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}

	target := s.base.ResolveReference(rel)
	if !strings.HasPrefix(target.Path, s.base.Path) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}

	data, err := s.client.Fetch(ctx, target.String())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.ServiceError("storage", err)
	}
	return data, nil
}
