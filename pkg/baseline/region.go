package baseline

import (
	"sort"
	"strings"

	"github.com/stuck-inadream/screenspot-pro/pkg/types"
)

// fallbackRegion is reported when the priors table is empty.
const fallbackRegion = "toolbar"

// regionKeywords lists the instruction words that vote for each region.
var regionKeywords = map[string][]string{
	"menu":    {"file", "edit", "view", "menu"},
	"toolbar": {"tool", "icon", "button", "ribbon", "bar"},
	"sidebar": {"sidebar", "panel", "left", "nav"},
	"status":  {"status", "bottom", "progress"},
}

// RegionMatch is the outcome of a region-prior search.
type RegionMatch struct {
	Score int
	Name  string
	Box   types.Box
}

// RegionPrior picks the prior region whose keywords best match the instruction.
type RegionPrior struct{}

// NewRegionPrior creates a RegionPrior predictor.
func NewRegionPrior() *RegionPrior {
	return &RegionPrior{}
}

// Name implements Predictor.
func (r *RegionPrior) Name() string { return string(KindRegion) }

// PredictBox implements Predictor.
func (r *RegionPrior) PredictBox(width, height int, instruction string, priors *Priors) types.Box {
	return BestRegion(instruction, priors, width, height).Box
}

// PredictConfidence implements Predictor. Confidence grows by 0.25 per
// keyword hit and saturates at 1.
func (r *RegionPrior) PredictConfidence(width, height int, instruction string, priors *Priors) float64 {
	return confidenceFor(BestRegion(instruction, priors, width, height).Score)
}

// Try implements Stage; a region prior always answers.
func (r *RegionPrior) Try(width, height int, instruction string, priors *Priors) (types.Prediction, bool) {
	m := BestRegion(instruction, priors, width, height)
	return types.Prediction{Box: m.Box, Confidence: confidenceFor(m.Score)}, true
}

func confidenceFor(score int) float64 {
	return min(1.0, 0.25*float64(max(0, score)))
}

// ScoreRegion counts how many of the region's keywords occur in the
// instruction, case-insensitively. Unknown regions score zero.
func ScoreRegion(name, instruction string) int {
	ins := strings.ToLower(instruction)
	score := 0
	for _, w := range regionKeywords[name] {
		if strings.Contains(ins, w) {
			score++
		}
	}
	return score
}

// BestRegion scores every prior region and returns the highest. Candidates
// are ordered by (score, name, box) descending, so equal scores resolve to
// the greatest region name. Empty priors yield the whole image.
func BestRegion(instruction string, priors *Priors, width, height int) RegionMatch {
	if priors.Len() == 0 {
		return RegionMatch{Score: 0, Name: fallbackRegion, Box: types.Box{X1: width, Y1: height}}
	}

	matches := make([]RegionMatch, 0, priors.Len())
	for _, name := range priors.Names() {
		rel, _ := priors.Region(name)
		matches = append(matches, RegionMatch{
			Score: ScoreRegion(name, instruction),
			Name:  name,
			Box:   rel.ToPixels(width, height),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Name != b.Name {
			return a.Name > b.Name
		}
		return boxGreater(a.Box, b.Box)
	})
	return matches[0]
}

func boxGreater(a, b types.Box) bool {
	av, bv := a.Array(), b.Array()
	for i := range av {
		if av[i] != bv[i] {
			return av[i] > bv[i]
		}
	}
	return false
}
