package datastore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/racephotos/bibfinder/internal/errors"
)

// PhotoRepository reads and transitions photos.
type PhotoRepository struct {
	db *gorm.DB
}

// NewPhotoRepository creates a photo repository.
func NewPhotoRepository(db *gorm.DB) *PhotoRepository {
	return &PhotoRepository{db: db}
}

// Update is the set of columns a transition writes. Every field is written,
// so a nil ProcessedAt or Error clears the column.
type Update struct {
	Status      Status
	IsProcessed bool
	ProcessedAt *time.Time
	Error       *string
}

// ProcessingUpdate marks a photo picked up by a worker.
func ProcessingUpdate() Update {
	return Update{Status: StatusProcessing}
}

// CompletedUpdate marks a photo successfully processed at the given time.
func CompletedUpdate(at time.Time) Update {
	at = at.UTC()
	return Update{Status: StatusCompleted, IsProcessed: true, ProcessedAt: &at}
}

// FailedUpdate marks a photo failed with a human-readable message.
func FailedUpdate(message string) Update {
	return Update{Status: StatusFailed, Error: &message}
}

// CompletedWithErrorUpdate keeps a photo completed while recording a problem
// that happened after completion, such as detections that could not be saved.
func CompletedWithErrorUpdate(at time.Time, message string) Update {
	u := CompletedUpdate(at)
	u.Error = &message
	return u
}

// RetryUpdate keeps a photo processing while recording the message of an
// attempt that will be retried.
func RetryUpdate(message string) Update {
	return Update{Status: StatusProcessing, Error: &message}
}

func (u Update) columns() map[string]any {
	return map[string]any{
		"processing_status": u.Status,
		"is_processed":      u.IsProcessed,
		"processed_at":      u.ProcessedAt,
		"processing_error":  u.Error,
		"updated_at":        time.Now().UTC(),
	}
}

// Create inserts a photo. An empty status defaults to pending.
func (r *PhotoRepository) Create(ctx context.Context, photo *Photo) error {
	return r.CreateMany(ctx, []*Photo{photo})
}

// CreateMany inserts photos in one transaction.
func (r *PhotoRepository) CreateMany(ctx context.Context, photos []*Photo) error {
	if len(photos) == 0 {
		return nil
	}
	for _, p := range photos {
		if p == nil || p.StorageRef == "" {
			return fmt.Errorf("%w: photo storage reference is required", ErrInvalidInput)
		}
		if p.ProcessingStatus == "" {
			p.ProcessingStatus = StatusPending
		}
		p.IsProcessed = p.ProcessingStatus == StatusCompleted
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(photos).Error
	})
	if err != nil {
		return dbError("create photos", err)
	}
	return nil
}

// GetByID returns the photo with the given id.
func (r *PhotoRepository) GetByID(ctx context.Context, id uint) (*Photo, error) {
	var photo Photo
	err := r.db.WithContext(ctx).First(&photo, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrPhotoNotFound, id)
		}
		return nil, dbError("get photo", err)
	}
	return &photo, nil
}

// Transition applies u to the photo only while it is in one of the from
// states. The check and the write are a single UPDATE statement.
// ErrInvalidTransition is returned when the photo exists but is in another
// state, ErrPhotoNotFound when it does not exist.
func (r *PhotoRepository) Transition(ctx context.Context, id uint, from []Status, u Update) error {
	if len(from) == 0 {
		return fmt.Errorf("%w: transition requires at least one source state", ErrInvalidInput)
	}

	result := r.db.WithContext(ctx).Model(&Photo{}).
		Where("id = ? AND processing_status IN ?", id, from).
		Updates(u.columns())
	if result.Error != nil {
		return dbError("transition photo", result.Error)
	}

	if result.RowsAffected == 0 {
		current, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: photo %d is %s, cannot move to %s",
			ErrInvalidTransition, id, current.ProcessingStatus, u.Status)
	}
	return nil
}

// ListByStatus returns up to limit photos in status, oldest first.
// A limit of 0 returns all of them.
func (r *PhotoRepository) ListByStatus(ctx context.Context, status Status, limit int) ([]Photo, error) {
	q := r.db.WithContext(ctx).
		Where("processing_status = ?", status).
		Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var photos []Photo
	if err := q.Find(&photos).Error; err != nil {
		return nil, dbError("list photos", err)
	}
	return photos, nil
}

// ListByErrorPrefix returns the photos in status whose processing error
// starts with prefix, oldest first.
func (r *PhotoRepository) ListByErrorPrefix(ctx context.Context, status Status, prefix string) ([]Photo, error) {
	if prefix == "" {
		return nil, fmt.Errorf("%w: error prefix is required", ErrInvalidInput)
	}
	var photos []Photo
	err := r.db.WithContext(ctx).
		Where("processing_status = ? AND processing_error LIKE ? ESCAPE '!'", status, escapeLike(prefix)+"%").
		Order("created_at ASC, id ASC").
		Find(&photos).Error
	if err != nil {
		return nil, dbError("list photos by error", err)
	}
	return photos, nil
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// escapeLike makes s match literally in a LIKE pattern using ESCAPE '!'.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// CountByStatus returns the number of photos per status.
func (r *PhotoRepository) CountByStatus(ctx context.Context) (map[Status]int64, error) {
	var rows []struct {
		ProcessingStatus Status
		Count            int64
	}
	err := r.db.WithContext(ctx).Model(&Photo{}).
		Select("processing_status, COUNT(*) AS count").
		Group("processing_status").
		Scan(&rows).Error
	if err != nil {
		return nil, dbError("count photos", err)
	}

	counts := make(map[Status]int64, len(rows))
	for _, row := range rows {
		counts[row.ProcessingStatus] = row.Count
	}
	return counts, nil
}
