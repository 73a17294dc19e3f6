package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/patrickmn/go-cache"

	"github.com/racephotos/bibfinder/internal/datastore"
	"github.com/racephotos/bibfinder/internal/detection"
	"github.com/racephotos/bibfinder/internal/jobqueue"
	"github.com/racephotos/bibfinder/internal/logger"
	"github.com/racephotos/bibfinder/internal/observability"
	"github.com/racephotos/bibfinder/internal/photoprocessor"
)

// PhotoStore registers and reads photos.
type PhotoStore interface {
	CreateMany(ctx context.Context, photos []*datastore.Photo) error
	GetByID(ctx context.Context, id uint) (*datastore.Photo, error)
}

// DetectionStore reads persisted detections.
type DetectionStore interface {
	ListByPhoto(ctx context.Context, photoID uint) ([]datastore.Detection, error)
	FindPhotosByBib(ctx context.Context, raceID, bib string) ([]uint, error)
}

// StatusService reports and cancels photo processing.
type StatusService interface {
	GetProcessingStatus(ctx context.Context, photoID uint) (*photoprocessor.ProcessingStatus, error)
	CancelProcessing(ctx context.Context, photoID uint) error
}

// JobSubmitter enqueues photo jobs.
type JobSubmitter interface {
	Submit(photoID uint) (string, error)
	SubmitAll(photoIDs []uint) (map[uint]string, error)
}

// QueueInspector exposes job queue state.
type QueueInspector interface {
	Stats() jobqueue.StatsSnapshot
	Lookup(id string) (jobqueue.JobSnapshot, bool)
}

// Server is the HTTP API server.
type Server struct {
	echo   *echo.Echo
	config *Config

	photos     PhotoStore
	detections DetectionStore
	status     StatusService
	jobs       JobSubmitter
	queue      QueueInspector
	detector   photoprocessor.BibDetector
	detectOpts detection.Options
	metrics    *observability.Metrics

	resultCache *cache.Cache
	startTime   time.Time
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithPhotoStore sets the photo repository.
func WithPhotoStore(p PhotoStore) ServerOption {
	return func(s *Server) { s.photos = p }
}

// WithDetectionStore sets the detection repository.
func WithDetectionStore(d DetectionStore) ServerOption {
	return func(s *Server) { s.detections = d }
}

// WithStatusService sets the processor used for status and cancellation.
func WithStatusService(st StatusService) ServerOption {
	return func(s *Server) { s.status = st }
}

// WithJobs sets the dispatcher and the queue it submits to.
func WithJobs(jobs JobSubmitter, queue QueueInspector) ServerOption {
	return func(s *Server) {
		s.jobs = jobs
		s.queue = queue
	}
}

// WithDetector enables POST /api/v1/detect with the given default options.
func WithDetector(d photoprocessor.BibDetector, opts detection.Options) ServerOption {
	return func(s *Server) {
		s.detector = d
		s.detectOpts = opts
	}
}

// WithMetrics enables HTTP metrics and the /metrics endpoint.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// New creates the server and registers its routes.
func New(cfg *Config, opts ...ServerOption) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	s := &Server{config: cfg, startTime: time.Now()}
	for _, opt := range opts {
		opt(s)
	}
	if s.photos == nil || s.detections == nil || s.status == nil || s.jobs == nil || s.queue == nil {
		return nil, fmt.Errorf("api server requires photo, detection, status and job dependencies")
	}

	s.resultCache = cache.New(cfg.ResultCacheTTL, 2*cfg.ResultCacheTTL)

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Server.ReadTimeout = cfg.ReadTimeout
	s.echo.Server.WriteTimeout = cfg.WriteTimeout
	s.echo.Server.IdleTimeout = cfg.IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()

	GetLogger().Info("HTTP server initialized",
		logger.String("address", cfg.Listen),
		logger.Bool("detect_enabled", s.detector != nil),
		logger.Duration("result_cache_ttl", cfg.ResultCacheTTL))
	return s, nil
}

func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	s.echo.Use(requestIDMiddleware())
	s.echo.Use(requestLogger())
	s.echo.Use(s.metricsMiddleware())
	s.echo.Use(echomw.BodyLimit(s.config.BodyLimit))
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	v1 := s.echo.Group("/api/v1")
	v1.POST("/photos", s.RegisterPhotos)
	v1.POST("/photos/:id/process", s.ProcessPhoto)
	v1.GET("/photos/:id/status", s.GetStatus)
	v1.POST("/photos/:id/cancel", s.CancelPhoto)
	v1.GET("/photos/:id/detections", s.GetDetections)
	v1.POST("/detect", s.Detect)
	v1.GET("/queue/stats", s.QueueStats)
	v1.GET("/queue/jobs/:jobId", s.GetJob)
	v1.GET("/races/:raceId/bibs/:bib/photos", s.FindPhotosByBib)
}

func (s *Server) healthCheck(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]any{
		"status": "healthy",
		"uptime": time.Since(s.startTime).Round(time.Second).String(),
	})
}

// Echo returns the underlying echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start serves until Shutdown is called. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	GetLogger().Info("starting HTTP server", logger.String("address", s.config.Listen))
	if err := s.echo.Start(s.config.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server within the configured timeout.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		GetLogger().Error("error during server shutdown", logger.Error(err))
		return fmt.Errorf("shutdown error: %w", err)
	}
	GetLogger().Info("server shutdown complete")
	return nil
}
