package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/racephotos/bibfinder/internal/datastore"
	"github.com/racephotos/bibfinder/internal/detection"
	"github.com/racephotos/bibfinder/internal/errors"
	"github.com/racephotos/bibfinder/internal/jobqueue"
	"github.com/racephotos/bibfinder/internal/logger"
)

// RegisterPhotosRequest registers already uploaded photos for processing.
type RegisterPhotosRequest struct {
	RaceID      string   `json:"raceId"`
	UploaderID  string   `json:"uploaderId"`
	StorageRefs []string `json:"storageRefs"`
}

// RegisteredPhoto is one entry of the registration response. JobID is empty
// when the photo was stored but could not be queued; it stays pending.
type RegisteredPhoto struct {
	ID         uint   `json:"id"`
	StorageRef string `json:"storageRef"`
	JobID      string `json:"jobId,omitempty"`
}

// PhotoDetections lists the persisted detections of a photo.
type PhotoDetections struct {
	PhotoID    uint                  `json:"photoId"`
	Status     datastore.Status      `json:"status"`
	Detections []detection.Detection `json:"detections"`
}

// RegisterPhotos handles POST /api/v1/photos.
func (s *Server) RegisterPhotos(ctx echo.Context) error {
	var req RegisterPhotosRequest
	if err := ctx.Bind(&req); err != nil {
		return s.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	switch {
	case strings.TrimSpace(req.RaceID) == "":
		return s.HandleError(ctx, nil, "raceId is required", http.StatusBadRequest)
	case len(req.StorageRefs) == 0:
		return s.HandleError(ctx, nil, "storageRefs must not be empty", http.StatusBadRequest)
	case len(req.StorageRefs) > maxPhotosPerRequest:
		return s.HandleError(ctx, nil, "too many photos in one request", http.StatusBadRequest)
	}

	photos := make([]*datastore.Photo, 0, len(req.StorageRefs))
	for _, ref := range req.StorageRefs {
		if strings.TrimSpace(ref) == "" {
			return s.HandleError(ctx, nil, "storageRefs must not contain empty entries", http.StatusBadRequest)
		}
		photos = append(photos, &datastore.Photo{
			StorageRef: ref,
			RaceID:     req.RaceID,
			UploaderID: req.UploaderID,
		})
	}

	reqCtx := ctx.Request().Context()
	if err := s.photos.CreateMany(reqCtx, photos); err != nil {
		if errors.Is(err, datastore.ErrInvalidInput) {
			return s.HandleError(ctx, err, "Invalid photo", http.StatusBadRequest)
		}
		return s.HandleError(ctx, err, "Failed to register photos", http.StatusInternalServerError)
	}

	ids := make([]uint, len(photos))
	for i, p := range photos {
		ids[i] = p.ID
	}
	jobIDs, err := s.jobs.SubmitAll(ids)
	if err != nil {
		// Stored photos stay pending and are picked up by reprocess.
		GetLogger().WithContext(reqCtx).Warn("could not queue every registered photo",
			logger.Int("registered", len(ids)),
			logger.Int("queued", len(jobIDs)),
			logger.Error(err))
	}

	out := make([]RegisteredPhoto, len(photos))
	for i, p := range photos {
		out[i] = RegisteredPhoto{ID: p.ID, StorageRef: p.StorageRef, JobID: jobIDs[p.ID]}
	}
	return ctx.JSON(http.StatusAccepted, map[string]any{"photos": out})
}

// ProcessPhoto handles POST /api/v1/photos/:id/process.
func (s *Server) ProcessPhoto(ctx echo.Context) error {
	id, err := photoID(ctx)
	if err != nil {
		return s.HandleError(ctx, err, "Invalid photo id", http.StatusBadRequest)
	}

	photo, err := s.photos.GetByID(ctx.Request().Context(), id)
	if err != nil {
		if errors.Is(err, datastore.ErrPhotoNotFound) {
			return s.HandleError(ctx, err, "Photo not found", http.StatusNotFound)
		}
		return s.HandleError(ctx, err, "Failed to load photo", http.StatusInternalServerError)
	}
	if photo.ProcessingStatus.IsTerminal() {
		return s.HandleError(ctx, nil, "Photo is already "+string(photo.ProcessingStatus), http.StatusConflict)
	}

	jobID, err := s.jobs.Submit(id)
	switch {
	case errors.Is(err, jobqueue.ErrDuplicateJob):
		return s.HandleError(ctx, err, "Photo is already queued", http.StatusConflict)
	case errors.Is(err, jobqueue.ErrQueueFull), errors.Is(err, jobqueue.ErrQueueStopped):
		return s.HandleError(ctx, err, "Job queue unavailable", http.StatusServiceUnavailable)
	case err != nil:
		return s.HandleError(ctx, err, "Failed to queue photo", http.StatusInternalServerError)
	}

	return ctx.JSON(http.StatusAccepted, map[string]any{"photoId": id, "jobId": jobID})
}

// GetStatus handles GET /api/v1/photos/:id/status.
func (s *Server) GetStatus(ctx echo.Context) error {
	id, err := photoID(ctx)
	if err != nil {
		return s.HandleError(ctx, err, "Invalid photo id", http.StatusBadRequest)
	}
	status, err := s.status.GetProcessingStatus(ctx.Request().Context(), id)
	if err != nil {
		return s.HandleError(ctx, err, "Failed to get processing status", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, status)
}

// CancelPhoto handles POST /api/v1/photos/:id/cancel. A photo that already
// finished is a conflict.
func (s *Server) CancelPhoto(ctx echo.Context) error {
	id, err := photoID(ctx)
	if err != nil {
		return s.HandleError(ctx, err, "Invalid photo id", http.StatusBadRequest)
	}
	reqCtx := ctx.Request().Context()
	if err := s.status.CancelProcessing(reqCtx, id); err != nil {
		return s.HandleError(ctx, err, "Failed to cancel processing", statusFor(err))
	}
	status, err := s.status.GetProcessingStatus(reqCtx, id)
	if err != nil {
		return s.HandleError(ctx, err, "Failed to get processing status", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, status)
}

// GetDetections handles GET /api/v1/photos/:id/detections.
func (s *Server) GetDetections(ctx echo.Context) error {
	id, err := photoID(ctx)
	if err != nil {
		return s.HandleError(ctx, err, "Invalid photo id", http.StatusBadRequest)
	}
	reqCtx := ctx.Request().Context()

	photo, err := s.photos.GetByID(reqCtx, id)
	if err != nil {
		if errors.Is(err, datastore.ErrPhotoNotFound) {
			return s.HandleError(ctx, err, "Photo not found", http.StatusNotFound)
		}
		return s.HandleError(ctx, err, "Failed to load photo", http.StatusInternalServerError)
	}

	rows, err := s.detections.ListByPhoto(reqCtx, id)
	if err != nil {
		return s.HandleError(ctx, err, "Failed to list detections", http.StatusInternalServerError)
	}
	dets := make([]detection.Detection, len(rows))
	for i := range rows {
		dets[i] = rows[i].ToDetection()
	}
	return ctx.JSON(http.StatusOK, PhotoDetections{PhotoID: id, Status: photo.ProcessingStatus, Detections: dets})
}

// FindPhotosByBib handles GET /api/v1/races/:raceId/bibs/:bib/photos.
func (s *Server) FindPhotosByBib(ctx echo.Context) error {
	raceID := ctx.Param("raceId")
	bib := ctx.Param("bib")
	if !detection.BibPattern.MatchString(bib) {
		return s.HandleError(ctx, nil, "bib must be 1 to 4 digits", http.StatusBadRequest)
	}

	ids, err := s.detections.FindPhotosByBib(ctx.Request().Context(), raceID, bib)
	if err != nil {
		return s.HandleError(ctx, err, "Failed to look up photos", http.StatusInternalServerError)
	}
	if ids == nil {
		ids = []uint{}
	}
	return ctx.JSON(http.StatusOK, map[string]any{"raceId": raceID, "bib": bib, "photoIds": ids})
}

func photoID(ctx echo.Context) (uint, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 0)
	if err != nil || id == 0 {
		return 0, errors.NewStd("photo id must be a positive integer")
	}
	return uint(id), nil
}
