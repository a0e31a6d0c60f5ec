package baseline

import (
	"math"
	"strings"

	"github.com/stuck-inadream/screenspot-pro/pkg/types"
)

// ReferenceHeight is the screen height the keyword anchors were authored at.
const ReferenceHeight = 1080.0

// anchor is a keyword rule. Offsets are in reference-frame pixels. A
// corner anchor measures its offsets inward from the bottom-right corner.
type anchor struct {
	keyword    string
	box        [4]float64
	corner     bool
	confidence float64
}

// anchors are tested in order; the first keyword found wins.
var anchors = []anchor{
	{keyword: "file", box: [4]float64{10, 10, 110, 40}, confidence: 0.95},
	{keyword: "save", box: [4]float64{200, 70, 240, 100}, confidence: 0.95},
	{keyword: "sidebar", box: [4]float64{80, 200, 120, 260}, confidence: 0.90},
	{keyword: "status", box: [4]float64{180, 60, 40, 10}, corner: true, confidence: 0.90},
}

// Keywords is the fixed anchor table as a fallback-chain stage.
type Keywords struct{}

// Try implements Stage.
func (Keywords) Try(width, height int, instruction string, _ *Priors) (types.Prediction, bool) {
	ins := strings.ToLower(instruction)
	for _, a := range anchors {
		if !strings.Contains(ins, a.keyword) {
			continue
		}
		var b types.Box
		if a.corner {
			b = cornerBox(a.box, width, height)
		} else {
			b = scaleAnchor(a.box, width, height)
		}
		return types.Prediction{Box: b, Confidence: a.confidence}, true
	}
	return types.Prediction{}, false
}

// anchorScale converts reference units to pixels. Horizontal units use the
// same height-derived factor as vertical ones.
func anchorScale(height int) func(float64) int {
	s := float64(height) / ReferenceHeight
	return func(v float64) int {
		return int(math.RoundToEven(v * s))
	}
}

func scaleAnchor(ref [4]float64, width, height int) types.Box {
	sc := anchorScale(height)
	x0, y0, x1, y1 := sc(ref[0]), sc(ref[1]), sc(ref[2]), sc(ref[3])

	x0 = clampInt(x0, 0, width-1)
	x1 = clampInt(x1, 0, width)
	y0 = clampInt(y0, 0, height-1)
	y1 = clampInt(y1, 0, height)
	return ordered(x0, y0, x1, y1)
}

// cornerBox places an anchor relative to the bottom-right corner so that
// it follows the actual image width as well as its height.
func cornerBox(offsets [4]float64, width, height int) types.Box {
	sc := anchorScale(height)
	x0 := max(0, width-sc(offsets[0]))
	y0 := max(0, height-sc(offsets[1]))
	x1 := max(0, width-sc(offsets[2]))
	y1 := max(0, height-sc(offsets[3]))
	return ordered(x0, y0, x1, y1)
}

func ordered(x0, y0, x1, y1 int) types.Box {
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	return types.Box{X0: x0, Y0: y0, X1: x1, Y1: y1}
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(hi, v))
}

// KeywordRule answers from the anchor table and defers everything else to
// the region prior.
type KeywordRule struct {
	chain Chain
}

// NewKeywordRule creates the keyword predictor with its region-prior fallback.
func NewKeywordRule() *KeywordRule {
	return &KeywordRule{chain: Chain{Keywords{}, NewRegionPrior()}}
}

// Name implements Predictor.
func (k *KeywordRule) Name() string { return string(KindText) }

// PredictBox implements Predictor.
func (k *KeywordRule) PredictBox(width, height int, instruction string, priors *Priors) types.Box {
	return k.chain.Predict(width, height, instruction, priors).Box
}

// PredictConfidence implements Predictor.
func (k *KeywordRule) PredictConfidence(width, height int, instruction string, priors *Priors) float64 {
	return k.chain.Predict(width, height, instruction, priors).Confidence
}
