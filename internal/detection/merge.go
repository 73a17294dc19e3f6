package detection

import (
	"cmp"
	"math"
	"slices"
)

// Deduplicate keeps one detection per bib number: the one with the highest
// combined confidence, the earlier one on ties. The result is ordered by
// descending confidence.
func Deduplicate(detections []Detection) []Detection {
	best := make(map[string]int, len(detections))
	out := make([]Detection, 0, len(detections))

	for _, d := range detections {
		i, seen := best[d.BibNumber]
		switch {
		case !seen:
			best[d.BibNumber] = len(out)
			out = append(out, d)
		case d.CombinedConfidence > out[i].CombinedConfidence:
			out[i] = d
		}
	}

	sortByConfidence(out)
	return out
}

// MergeSpatial merges detections of the same bib number whose box centers lie
// within maxDistance pixels of a cluster's averaged center. A merged detection
// takes the averaged box and the fields of its most confident member.
// Detections of the same bib far apart stay separate.
//
// It is an alternative to Deduplicate and is not part of the default run.
func MergeSpatial(detections []Detection, maxDistance float64) []Detection {
	type cluster struct {
		best  Detection
		sumX  float64
		sumY  float64
		sumW  float64
		sumH  float64
		count int
	}

	var clusters []*cluster
	for _, d := range detections {
		cx, cy := d.BoundingBox.Center()

		var target *cluster
		for _, c := range clusters {
			if c.best.BibNumber != d.BibNumber {
				continue
			}
			n := float64(c.count)
			mx := c.sumX/n + c.sumW/n/2
			my := c.sumY/n + c.sumH/n/2
			if math.Hypot(cx-mx, cy-my) <= maxDistance {
				target = c
				break
			}
		}

		if target == nil {
			clusters = append(clusters, &cluster{
				best: d,
				sumX: d.BoundingBox.X, sumY: d.BoundingBox.Y,
				sumW: d.BoundingBox.W, sumH: d.BoundingBox.H,
				count: 1,
			})
			continue
		}

		target.sumX += d.BoundingBox.X
		target.sumY += d.BoundingBox.Y
		target.sumW += d.BoundingBox.W
		target.sumH += d.BoundingBox.H
		target.count++
		if d.CombinedConfidence > target.best.CombinedConfidence {
			target.best = d
		}
	}

	out := make([]Detection, 0, len(clusters))
	for _, c := range clusters {
		d := c.best
		n := float64(c.count)
		d.BoundingBox.X = c.sumX / n
		d.BoundingBox.Y = c.sumY / n
		d.BoundingBox.W = c.sumW / n
		d.BoundingBox.H = c.sumH / n
		out = append(out, d)
	}

	sortByConfidence(out)
	return out
}

func sortByConfidence(ds []Detection) {
	slices.SortStableFunc(ds, func(a, b Detection) int {
		return cmp.Compare(b.CombinedConfidence, a.CombinedConfidence)
	})
}
