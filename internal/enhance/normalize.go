package enhance

import (
	"image"

	"github.com/disintegration/imaging"
)

// Normalize stretches each color channel so its darkest value maps to 0 and
// its brightest to 255. Flat channels are left untouched. Alpha is preserved.
func Normalize(img image.Image) *image.NRGBA {
	src := imaging.Clone(img)

	var lo, hi [3]uint8
	lo = [3]uint8{255, 255, 255}
	pix := src.Pix
	for i := 0; i+3 < len(pix); i += 4 {
		for c := range 3 {
			v := pix[i+c]
			if v < lo[c] {
				lo[c] = v
			}
			if v > hi[c] {
				hi[c] = v
			}
		}
	}

	var lut [3][256]uint8
	for c := range 3 {
		span := int(hi[c]) - int(lo[c])
		for v := range 256 {
			switch {
			case span <= 0:
				lut[c][v] = uint8(v)
			case v <= int(lo[c]):
				lut[c][v] = 0
			case v >= int(hi[c]):
				lut[c][v] = 255
			default:
				lut[c][v] = uint8((v - int(lo[c])) * 255 / span)
			}
		}
	}

	for i := 0; i+3 < len(pix); i += 4 {
		pix[i] = lut[0][pix[i]]
		pix[i+1] = lut[1][pix[i+1]]
		pix[i+2] = lut[2][pix[i+2]]
	}
	return src
}
