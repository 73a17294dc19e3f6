// Package region crops bounding boxes out of photos.
package region

import (
	"bytes"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/racephotos/bibfinder/internal/errors"
)

// Box is an axis-aligned bounding box in pixel coordinates.
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Center returns the box midpoint.
func (b Box) Center() (float64, float64) {
	return b.X + b.W/2, b.Y + b.H/2
}

// Area returns W*H.
func (b Box) Area() float64 {
	return b.W * b.H
}

// Clamp returns the integer rectangle of b inside a w by h image. Negative
// origins are clamped to zero and the size is cut so the rectangle never
// exceeds the image bounds. The result may be empty.
func (b Box) Clamp(w, h int) image.Rectangle {
	x0 := max(0, int(math.Round(b.X)))
	y0 := max(0, int(math.Round(b.Y)))
	x1 := min(w, x0+int(math.Round(b.W)))
	y1 := min(h, y0+int(math.Round(b.H)))
	if x1 < x0 {
		x1 = x0
	}
	if y1 < y0 {
		y1 = y0
	}
	return image.Rect(x0, y0, x1, y1)
}

// ExtractImage crops box out of img. The crop is clamped to the image.
func ExtractImage(img image.Image, box Box) (*image.NRGBA, error) {
	bounds := img.Bounds()
	r := box.Clamp(bounds.Dx(), bounds.Dy())
	if r.Empty() {
		return nil, errors.Newf("region %.0fx%.0f at (%.0f,%.0f) is outside the %dx%d image",
			box.W, box.H, box.X, box.Y, bounds.Dx(), bounds.Dy()).
			Component("region").
			Category(errors.CategoryValidation).
			Build()
	}
	return imaging.Crop(img, r.Add(bounds.Min)), nil
}

// Extract decodes data, crops box and encodes the region as PNG.
func Extract(data []byte, box Box) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.New(err).
			Component("region").
			Category(errors.CategoryImageProcessing).
			Context("operation", "decode").
			Build()
	}
	return EncodeRegion(img, box)
}

// EncodeRegion crops box out of an already decoded image and encodes it as PNG.
func EncodeRegion(img image.Image, box Box) ([]byte, error) {
	crop, err := ExtractImage(img, box)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, crop, imaging.PNG); err != nil {
		return nil, errors.New(err).
			Component("region").
			Category(errors.CategoryImageProcessing).
			Context("operation", "encode").
			Build()
	}
	return buf.Bytes(), nil
}

// Expand grows box by percent of its own width and height, split evenly
// between both sides, and keeps it inside an imageW by imageH image. A side
// that would cross an edge is shifted back inside, so the box keeps its
// requested size unless it is larger than the image itself.
func Expand(box Box, percent float64, imageW, imageH int) Box {
	dw := box.W * percent / 100
	dh := box.H * percent / 100

	x, w := fold(box.X-dw/2, box.W+dw, float64(imageW))
	y, h := fold(box.Y-dh/2, box.H+dh, float64(imageH))
	return Box{X: x, Y: y, W: w, H: h}
}

// fold moves the span [start, start+size) inside [0, limit), shrinking it only
// when it does not fit at all.
func fold(start, size, limit float64) (float64, float64) {
	if size >= limit {
		return 0, limit
	}
	if start < 0 {
		start = 0
	}
	if start+size > limit {
		start = limit - size
	}
	return start, size
}
