package datastore

import (
	"time"
)

// Status is a photo's processing state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Photo is one uploaded race photo awaiting or holding bib detections.
// Maps to the 'photos' table.
type Photo struct {
	ID               uint      `gorm:"primaryKey"`
	StorageRef       string    `gorm:"size:512;not null"`
	ProcessingStatus Status    `gorm:"size:16;index;not null;default:pending"`
	IsProcessed      bool      `gorm:"not null;default:false"`
	ProcessedAt      *time.Time
	ProcessingError  *string   `gorm:"type:text"`
	RaceID           string    `gorm:"size:64;index"`
	UploaderID       string    `gorm:"size:64"`
	CreatedAt        time.Time `gorm:"index"`
	UpdatedAt        time.Time

	Detections []Detection `gorm:"foreignKey:PhotoID;constraint:OnDelete:CASCADE,OnUpdate:CASCADE"`
}

// TableName ensures GORM uses the expected table name.
func (Photo) TableName() string {
	return "photos"
}

// BoundingBox is a stored candidate box in original-image pixels.
type BoundingBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// RawMetadata is the detector's report for a stored detection.
type RawMetadata struct {
	DetectionID string  `json:"detectionId,omitempty"`
	Label       string  `json:"label"`
	Confidence  float64 `json:"confidence"`
}

// OCRMetadata is the OCR report for a stored detection.
type OCRMetadata struct {
	BibNumber    string   `json:"bibNumber"`
	RawText      string   `json:"rawText"`
	Alternatives []string `json:"alternatives,omitempty"`
	Source       string   `json:"source"`
	Variant      string   `json:"variant,omitempty"`
}

// Detection is one bib number found in a photo. Rows are immutable once
// written and disappear with their photo.
// Maps to the 'detections' table.
type Detection struct {
	ID                 uint         `gorm:"primaryKey"`
	PhotoID            uint         `gorm:"index:idx_detections_photo_bib,priority:1;not null"`
	BibNumber          string       `gorm:"size:4;index:idx_detections_photo_bib,priority:2;index:idx_detections_bib;not null"`
	CombinedConfidence float64      `gorm:"not null"`
	DetectorConfidence float64      `gorm:"not null"`
	OCRConfidence      float64      `gorm:"column:ocr_confidence;not null"`
	Method             string       `gorm:"size:16;not null"`
	BoundingBox        BoundingBox  `gorm:"serializer:json;type:text"`
	RawMetadata        RawMetadata  `gorm:"serializer:json;type:text"`
	OCRMetadata        *OCRMetadata `gorm:"column:ocr_metadata;serializer:json;type:text"`
	CreatedAt          time.Time
}

// TableName ensures GORM uses the expected table name.
func (Detection) TableName() string {
	return "detections"
}

// allModels lists every table AutoMigrate manages, parents first.
func allModels() []any {
	return []any{&Photo{}, &Detection{}}
}
