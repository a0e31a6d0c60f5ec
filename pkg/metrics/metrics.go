// Package metrics scores predicted boxes against gold boxes and aggregates
// per-example outcomes into run summaries.
package metrics

import "github.com/stuck-inadream/screenspot-pro/pkg/types"

// Area thresholds (px²) separating the size buckets.
const (
	SmallAreaLimit  = 10000
	MediumAreaLimit = 250000
)

// IoU returns intersection-over-union of two boxes in [0,1].
// Boxes with non-positive area never overlap anything.
func IoU(pred, gold types.Box) float64 {
	if pred.Width() <= 0 || pred.Height() <= 0 || gold.Width() <= 0 || gold.Height() <= 0 {
		return 0
	}

	ix0 := max(pred.X0, gold.X0)
	iy0 := max(pred.Y0, gold.Y0)
	ix1 := min(pred.X1, gold.X1)
	iy1 := min(pred.Y1, gold.Y1)

	interW := ix1 - ix0
	interH := iy1 - iy0
	if interW <= 0 || interH <= 0 {
		return 0
	}
	inter := interW * interH
	union := pred.Area() + gold.Area() - inter

	return float64(inter) / float64(union)
}

// InBounds reports whether b lies inside a width x height image with
// strictly positive extent: 0 <= x0 < x1 <= W and 0 <= y0 < y1 <= H.
func InBounds(b types.Box, width, height int) bool {
	return 0 <= b.X0 && b.X0 < b.X1 && b.X1 <= width &&
		0 <= b.Y0 && b.Y0 < b.Y1 && b.Y1 <= height
}

// CenterInBox reports whether the center of pred falls inside gold (closed
// interval on both axes). A gold box outside the image is unscoreable and
// always yields false.
func CenterInBox(pred, gold types.Box, width, height int) bool {
	if !InBounds(gold, width, height) {
		return false
	}
	cx, cy := pred.Center()
	return float64(gold.X0) <= cx && cx <= float64(gold.X1) &&
		float64(gold.Y0) <= cy && cy <= float64(gold.Y1)
}

// BucketOf classifies a gold box by area.
func BucketOf(b types.Box) types.SizeBucket {
	a := b.Area()
	switch {
	case a < SmallAreaLimit:
		return types.BucketSmall
	case a < MediumAreaLimit:
		return types.BucketMedium
	default:
		return types.BucketLarge
	}
}

// Score derives IoU, success and size bucket for a prediction made on a
// width x height image. gold must already be in that image's frame.
func Score(ex types.Example, pred types.Prediction, gold types.Box, width, height int, scale float64) types.ScoredExample {
	return types.ScoredExample{
		Example:    ex,
		Prediction: pred,
		GoldBox:    gold,
		Width:      width,
		Height:     height,
		Scale:      scale,
		IoU:        IoU(pred.Box, gold),
		Success:    CenterInBox(pred.Box, gold, width, height),
		Bucket:     BucketOf(gold),
	}
}
