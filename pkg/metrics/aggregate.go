package metrics

import (
	"math"

	"github.com/stuck-inadream/screenspot-pro/pkg/types"
)

// CalibrationBuckets is the number of equal-width confidence bins over [0,1).
const CalibrationBuckets = 10

// Strata holds per-type and per-size success rates. A nil rate means the
// stratum had no examples.
type Strata struct {
	TextSuccessRate   *float64 `json:"text_success_rate"`
	IconSuccessRate   *float64 `json:"icon_success_rate"`
	SmallSuccessRate  *float64 `json:"small_success_rate"`
	MediumSuccessRate *float64 `json:"medium_success_rate"`
	LargeSuccessRate  *float64 `json:"large_success_rate"`
}

// CalibrationPoint is one non-empty confidence bucket.
type CalibrationPoint struct {
	Confidence float64 `json:"confidence"`
	Accuracy   float64 `json:"accuracy"`
	Count      int     `json:"count"`
}

// Summary is the aggregate over a run. For an empty run only SuccessRate
// is set, so its JSON form is exactly {"success_rate":0}.
type Summary struct {
	SuccessRate float64 `json:"success_rate"`
	*Strata
	Calibration []CalibrationPoint `json:"calibration,omitempty"`
}

type tally struct {
	total     int
	successes int
}

func (t *tally) add(success bool) {
	t.total++
	if success {
		t.successes++
	}
}

func (t tally) rate() *float64 {
	if t.total == 0 {
		return nil
	}
	r := float64(t.successes) / float64(t.total)
	return &r
}

// Aggregator accumulates scored examples. It is the only component that
// holds state across examples; it is not safe for concurrent use.
type Aggregator struct {
	calibration bool

	overall tally
	byType  map[types.TargetType]*tally
	bySize  map[types.SizeBucket]*tally
	conf    [CalibrationBuckets]tally
}

// NewAggregator creates an Aggregator. When calibration is true the summary
// also reports calibration points.
func NewAggregator(calibration bool) *Aggregator {
	return &Aggregator{
		calibration: calibration,
		byType: map[types.TargetType]*tally{
			types.TargetText: {},
			types.TargetIcon: {},
		},
		bySize: map[types.SizeBucket]*tally{
			types.BucketSmall:  {},
			types.BucketMedium: {},
			types.BucketLarge:  {},
		},
	}
}

// Add records one scored example.
func (a *Aggregator) Add(s types.ScoredExample) {
	a.overall.add(s.Success)
	if t, ok := a.byType[s.Example.TargetType]; ok {
		t.add(s.Success)
	}
	t, ok := a.bySize[s.Bucket]
	if !ok {
		t = a.bySize[BucketOf(s.GoldBox)]
	}
	t.add(s.Success)
	a.conf[confidenceBucket(s.Prediction.Confidence)].add(s.Success)
}

// Count returns the number of examples added so far.
func (a *Aggregator) Count() int {
	return a.overall.total
}

// Summary builds the run summary from the current tallies.
func (a *Aggregator) Summary() Summary {
	if a.overall.total == 0 {
		return Summary{SuccessRate: 0.0}
	}

	s := Summary{
		SuccessRate: float64(a.overall.successes) / float64(a.overall.total),
		Strata: &Strata{
			TextSuccessRate:   a.byType[types.TargetText].rate(),
			IconSuccessRate:   a.byType[types.TargetIcon].rate(),
			SmallSuccessRate:  a.bySize[types.BucketSmall].rate(),
			MediumSuccessRate: a.bySize[types.BucketMedium].rate(),
			LargeSuccessRate:  a.bySize[types.BucketLarge].rate(),
		},
	}
	if a.calibration {
		s.Calibration = a.calibrationPoints()
	}
	return s
}

func (a *Aggregator) calibrationPoints() []CalibrationPoint {
	var points []CalibrationPoint
	for i, t := range a.conf {
		if t.total == 0 {
			continue
		}
		points = append(points, CalibrationPoint{
			Confidence: (float64(i) + 0.5) / CalibrationBuckets,
			Accuracy:   *t.rate(),
			Count:      t.total,
		})
	}
	return points
}

// confidenceBucket clamps c into [0, 0.999] and returns its bin index.
func confidenceBucket(c float64) int {
	if math.IsNaN(c) {
		c = 0
	}
	c = max(0.0, min(0.999, c))
	return int(c * CalibrationBuckets)
}

// Summarize aggregates a finished sequence of scored examples.
func Summarize(results []types.ScoredExample, calibration bool) Summary {
	agg := NewAggregator(calibration)
	for _, r := range results {
		agg.Add(r)
	}
	return agg.Summary()
}
