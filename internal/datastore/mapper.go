package datastore

import (
	"github.com/racephotos/bibfinder/internal/detection"
	"github.com/racephotos/bibfinder/internal/ocr"
	"github.com/racephotos/bibfinder/internal/region"
)

// FromDetections converts orchestrator output to rows for photoID.
func FromDetections(photoID uint, dets []detection.Detection) []Detection {
	rows := make([]Detection, 0, len(dets))
	for i := range dets {
		rows = append(rows, FromDetection(photoID, &dets[i]))
	}
	return rows
}

// FromDetection converts one orchestrator detection to a row.
func FromDetection(photoID uint, d *detection.Detection) Detection {
	row := Detection{
		PhotoID:            photoID,
		BibNumber:          d.BibNumber,
		CombinedConfidence: d.CombinedConfidence,
		DetectorConfidence: d.DetectorConfidence,
		OCRConfidence:      d.OCRConfidence,
		Method:             string(d.Method),
		BoundingBox: BoundingBox{
			X: d.BoundingBox.X,
			Y: d.BoundingBox.Y,
			W: d.BoundingBox.W,
			H: d.BoundingBox.H,
		},
		RawMetadata: RawMetadata{
			DetectionID: d.RawMetadata.DetectionID,
			Label:       d.RawMetadata.Label,
			Confidence:  d.RawMetadata.Confidence,
		},
	}
	if m := d.OCRMetadata; m != nil {
		row.OCRMetadata = &OCRMetadata{
			BibNumber:    m.BibNumber,
			RawText:      m.RawText,
			Alternatives: m.Alternatives,
			Source:       string(m.Source),
			Variant:      m.Variant,
		}
	}
	return row
}

// ToDetection converts a row back to the orchestrator's shape.
func (d *Detection) ToDetection() detection.Detection {
	out := detection.Detection{
		BibNumber:          d.BibNumber,
		CombinedConfidence: d.CombinedConfidence,
		DetectorConfidence: d.DetectorConfidence,
		OCRConfidence:      d.OCRConfidence,
		Method:             detection.Method(d.Method),
		BoundingBox: region.Box{
			X: d.BoundingBox.X,
			Y: d.BoundingBox.Y,
			W: d.BoundingBox.W,
			H: d.BoundingBox.H,
		},
		RawMetadata: detection.RawMetadata{
			DetectionID: d.RawMetadata.DetectionID,
			Label:       d.RawMetadata.Label,
			Confidence:  d.RawMetadata.Confidence,
		},
	}
	if m := d.OCRMetadata; m != nil {
		out.OCRMetadata = &detection.OCRMetadata{
			BibNumber:    m.BibNumber,
			RawText:      m.RawText,
			Alternatives: m.Alternatives,
			Source:       ocr.Source(m.Source),
			Variant:      m.Variant,
		}
	}
	return out
}
