package region

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/racephotos/bibfinder/internal/errors"
)

func TestBoxClamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		box  Box
		want image.Rectangle
	}{
		{"inside", Box{10, 20, 30, 40}, image.Rect(10, 20, 40, 60)},
		{"negative origin", Box{-5, -10, 30, 40}, image.Rect(0, 0, 30, 40)},
		{"overflowing size", Box{80, 90, 50, 50}, image.Rect(80, 90, 100, 100)},
		{"rounds to pixels", Box{10.4, 10.6, 19.5, 20.2}, image.Rect(10, 11, 30, 31)},
		{"fully outside", Box{150, 150, 10, 10}, image.Rect(150, 150, 150, 150)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := tt.box.Clamp(100, 100)
			if tt.want.Empty() {
				assert.True(t, got.Empty())
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtract(t *testing.T) {
	t.Parallel()

	src := image.NewNRGBA(image.Rect(0, 0, 100, 50))
	for y := range 50 {
		for x := range 100 {
			src.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, src, imaging.PNG))

	out, err := Extract(buf.Bytes(), Box{X: 90, Y: -5, W: 30, H: 20})
	require.NoError(t, err)

	crop, err := imaging.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 10, crop.Bounds().Dx())
	assert.Equal(t, 20, crop.Bounds().Dy(), "negative origin clamps to zero, height kept")

	r, g, _, _ := crop.At(0, 0).RGBA()
	assert.Equal(t, uint32(90), r>>8)
	assert.Equal(t, uint32(0), g>>8)
}

func TestExtract_Errors(t *testing.T) {
	t.Parallel()

	_, err := Extract([]byte("nope"), Box{W: 1, H: 1})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryImageProcessing))

	_, err = ExtractImage(image.NewNRGBA(image.Rect(0, 0, 10, 10)), Box{X: 20, Y: 20, W: 5, H: 5})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestExpand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		box  Box
		pct  float64
		want Box
	}{
		{"symmetric growth", Box{40, 40, 20, 10}, 20, Box{38, 39, 24, 12}},
		{"left overflow folds right", Box{0, 40, 20, 10}, 20, Box{0, 39, 24, 12}},
		{"right overflow folds left", Box{80, 40, 20, 10}, 20, Box{76, 39, 24, 12}},
		{"larger than image", Box{10, 10, 90, 90}, 50, Box{0, 0, 100, 100}},
		{"zero percent", Box{5, 5, 10, 10}, 0, Box{5, 5, 10, 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Expand(tt.box, tt.pct, 100, 100)
			assert.InDelta(t, tt.want.X, got.X, 1e-9)
			assert.InDelta(t, tt.want.Y, got.Y, 1e-9)
			assert.InDelta(t, tt.want.W, got.W, 1e-9)
			assert.InDelta(t, tt.want.H, got.H, 1e-9)
			assert.GreaterOrEqual(t, got.X, 0.0)
			assert.LessOrEqual(t, got.X+got.W, 100.0)
		})
	}
}
