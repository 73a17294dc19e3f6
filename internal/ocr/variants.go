package ocr

import "github.com/racephotos/bibfinder/internal/enhance"

// Variant is one preprocessing pass tried through the local engine.
type Variant struct {
	Name      string
	Overrides enhance.Overrides
}

func ptr[T any](v T) *T { return &v }

// DefaultVariants returns the passes in the order they are tried, from the
// gentlest to the most aggressive.
func DefaultVariants() []Variant {
	return []Variant{
		{Name: "plain", Overrides: enhance.Overrides{
			Contrast: ptr(1.0), Brightness: ptr(1.0), Sharpen: ptr(false),
		}},
		{Name: "standard"},
		{Name: "high_contrast", Overrides: enhance.Overrides{
			Contrast: ptr(2.0),
		}},
		{Name: "bright", Overrides: enhance.Overrides{
			Contrast: ptr(2.0), Brightness: ptr(1.3),
		}},
		{Name: "aggressive", Overrides: enhance.Overrides{
			Contrast: ptr(2.5), Brightness: ptr(1.3),
		}},
	}
}
