package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/racephotos/bibfinder/internal/region"
)

func det(bib string, conf float64, box region.Box) Detection {
	return Detection{BibNumber: bib, CombinedConfidence: conf, BoundingBox: box}
}

func TestDeduplicate(t *testing.T) {
	t.Parallel()

	in := []Detection{
		det("77", 0.6, region.Box{X: 1}),
		det("12", 0.9, region.Box{X: 2}),
		det("77", 0.8, region.Box{X: 3}),
		det("12", 0.9, region.Box{X: 4}),
		det("5", 0.4, region.Box{X: 5}),
	}
	got := Deduplicate(in)
	require.Len(t, got, 3)

	byBib := map[string]Detection{}
	for _, d := range got {
		_, dup := byBib[d.BibNumber]
		assert.False(t, dup, "bib %s appears twice", d.BibNumber)
		byBib[d.BibNumber] = d
	}
	assert.InDelta(t, 0.8, byBib["77"].CombinedConfidence, 1e-9)
	assert.InDelta(t, 3, byBib["77"].BoundingBox.X, 1e-9)
	assert.InDelta(t, 2, byBib["12"].BoundingBox.X, 1e-9, "ties keep the first")

	assert.Equal(t, "12", got[0].BibNumber, "ordered by confidence")
	assert.Empty(t, Deduplicate(nil))
}

func TestMergeSpatial(t *testing.T) {
	t.Parallel()

	in := []Detection{
		det("77", 0.6, region.Box{X: 100, Y: 100, W: 40, H: 20}),
		det("77", 0.8, region.Box{X: 110, Y: 104, W: 40, H: 20}),
		det("77", 0.7, region.Box{X: 900, Y: 600, W: 40, H: 20}),
		det("12", 0.5, region.Box{X: 105, Y: 100, W: 40, H: 20}),
	}

	got := MergeSpatial(in, 50)
	require.Len(t, got, 3)

	assert.Equal(t, "77", got[0].BibNumber)
	assert.InDelta(t, 0.8, got[0].CombinedConfidence, 1e-9)
	assert.InDelta(t, 105, got[0].BoundingBox.X, 1e-9, "merged box is averaged")
	assert.InDelta(t, 102, got[0].BoundingBox.Y, 1e-9)

	assert.Equal(t, "77", got[1].BibNumber, "distant box with the same bib stays separate")
	assert.InDelta(t, 900, got[1].BoundingBox.X, 1e-9)
	assert.Equal(t, "12", got[2].BibNumber)

	assert.Len(t, in, 4, "input untouched")
	assert.InDelta(t, 100, in[0].BoundingBox.X, 1e-9)
}
