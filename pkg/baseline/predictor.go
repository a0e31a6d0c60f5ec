// Package baseline implements the heuristic box predictors used as
// reference points for GUI grounding: a keyword rule table and a
// region-prior search, both behind the Predictor interface.
package baseline

import (
	"fmt"

	"github.com/stuck-inadream/screenspot-pro/pkg/types"
)

// Predictor maps an image size and an instruction to a box and a confidence.
// Implementations are pure functions of their inputs.
type Predictor interface {
	Name() string
	PredictBox(width, height int, instruction string, priors *Priors) types.Box
	PredictConfidence(width, height int, instruction string, priors *Priors) float64
}

// Stage is one step of a fallback chain. ok=false passes control to the next stage.
type Stage interface {
	Try(width, height int, instruction string, priors *Priors) (pred types.Prediction, ok bool)
}

// Chain evaluates its stages in order and returns the first result.
// When no stage answers it returns the whole image with zero confidence.
type Chain []Stage

// Predict runs the chain.
func (c Chain) Predict(width, height int, instruction string, priors *Priors) types.Prediction {
	for _, st := range c {
		if pred, ok := st.Try(width, height, instruction, priors); ok {
			return pred
		}
	}
	return types.Prediction{Box: types.Box{X1: width, Y1: height}}
}

// Predict runs both halves of a Predictor.
func Predict(p Predictor, width, height int, instruction string, priors *Priors) types.Prediction {
	return types.Prediction{
		Box:        p.PredictBox(width, height, instruction, priors),
		Confidence: p.PredictConfidence(width, height, instruction, priors),
	}
}

// Kind names a baseline variant as accepted on the command line.
type Kind string

const (
	KindText   Kind = "text"
	KindRegion Kind = "region"
)

// New returns the predictor for kind.
func New(kind Kind) (Predictor, error) {
	switch kind {
	case KindText:
		return NewKeywordRule(), nil
	case KindRegion:
		return NewRegionPrior(), nil
	default:
		return nil, fmt.Errorf("unknown baseline: %q (use 'text' or 'region')", kind)
	}
}
