package datastore

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// DetectionRepository stores the detections of processed photos.
type DetectionRepository struct {
	db *gorm.DB
}

// NewDetectionRepository creates a detection repository.
func NewDetectionRepository(db *gorm.DB) *DetectionRepository {
	return &DetectionRepository{db: db}
}

// ReplaceForPhoto deletes the photo's detections and inserts dets in one
// transaction, so a retried run leaves exactly one row per bib number.
func (r *DetectionRepository) ReplaceForPhoto(ctx context.Context, photoID uint, dets []Detection) error {
	if photoID == 0 {
		return fmt.Errorf("%w: photo id is required", ErrInvalidInput)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("photo_id = ?", photoID).Delete(&Detection{}).Error; err != nil {
			return err
		}
		if len(dets) == 0 {
			return nil
		}

		rows := make([]Detection, len(dets))
		for i := range dets {
			rows[i] = dets[i]
			rows[i].ID = 0
			rows[i].PhotoID = photoID
		}
		return tx.CreateInBatches(rows, 100).Error
	})
	if err != nil {
		return dbError("replace detections", err)
	}
	return nil
}

// ListByPhoto returns the photo's detections, highest combined confidence first.
func (r *DetectionRepository) ListByPhoto(ctx context.Context, photoID uint) ([]Detection, error) {
	var dets []Detection
	err := r.db.WithContext(ctx).
		Where("photo_id = ?", photoID).
		Order("combined_confidence DESC, id ASC").
		Find(&dets).Error
	if err != nil {
		return nil, dbError("list detections", err)
	}
	return dets, nil
}

// FindPhotosByBib returns the ids of completed photos in the race that
// contain the bib number, oldest first.
func (r *DetectionRepository) FindPhotosByBib(ctx context.Context, raceID, bib string) ([]uint, error) {
	if raceID == "" || bib == "" {
		return nil, fmt.Errorf("%w: race id and bib number are required", ErrInvalidInput)
	}

	var ids []uint
	err := r.db.WithContext(ctx).
		Model(&Detection{}).
		Distinct("detections.photo_id").
		Joins("JOIN photos ON photos.id = detections.photo_id").
		Where("photos.race_id = ? AND detections.bib_number = ? AND photos.processing_status = ?",
			raceID, bib, StatusCompleted).
		Order("detections.photo_id ASC").
		Pluck("detections.photo_id", &ids).Error
	if err != nil {
		return nil, dbError("find photos by bib", err)
	}
	return ids, nil
}
