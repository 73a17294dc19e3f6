package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// QueueStats handles GET /api/v1/queue/stats.
func (s *Server) QueueStats(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, s.queue.Stats())
}

// GetJob handles GET /api/v1/queue/jobs/:jobId.
func (s *Server) GetJob(ctx echo.Context) error {
	job, ok := s.queue.Lookup(ctx.Param("jobId"))
	if !ok {
		return s.HandleError(ctx, nil, "Job not found", http.StatusNotFound)
	}
	return ctx.JSON(http.StatusOK, job)
}
