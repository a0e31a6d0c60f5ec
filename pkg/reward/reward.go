package reward

import (
	"fmt"
	"os"

	"github.com/stuck-inadream/screenspot-pro/pkg/baseline"
	"github.com/stuck-inadream/screenspot-pro/pkg/dataset"
	"github.com/stuck-inadream/screenspot-pro/pkg/metrics"
	"github.com/stuck-inadream/screenspot-pro/pkg/processing"
	"github.com/stuck-inadream/screenspot-pro/pkg/types"
)

// Default weights of the two reward components.
const (
	DefaultIoUWeight    = 1.0
	DefaultFormatWeight = 0.1
)

// Answer is one model output, keyed by example id.
type Answer struct {
	ID     string `json:"id"`
	Answer string `json:"answer"`
}

// Result is the reward breakdown for one answer.
type Result struct {
	Box      types.Box `json:"box"`
	Parsed   bool      `json:"parsed"`
	Fallback bool      `json:"fallback"`
	IoU      float64   `json:"iou"`
	Format   float64   `json:"format"`
	Total    float64   `json:"total"`
	Err      string    `json:"error,omitempty"`
}

// Scorer turns answers into rewards. Unparsable answers are replaced by the
// fallback predictor's box so every answer gets a score.
type Scorer struct {
	IoUWeight    float64
	FormatWeight float64

	fallback  baseline.Predictor
	priors    *baseline.PriorsStore
	processor *processing.Processor
}

// NewScorer creates a scorer. A nil fallback means the region prior; a nil
// store means empty priors.
func NewScorer(fallback baseline.Predictor, priors *baseline.PriorsStore) *Scorer {
	if fallback == nil {
		fallback = baseline.NewRegionPrior()
	}
	if priors == nil {
		priors = baseline.StaticPriorsStore(baseline.EmptyPriors())
	}
	return &Scorer{
		IoUWeight:    DefaultIoUWeight,
		FormatWeight: DefaultFormatWeight,
		fallback:     fallback,
		priors:       priors,
		processor:    processing.NewProcessor(),
	}
}

// Score rates an answer given in the original image frame.
func (s *Scorer) Score(ex types.Example, answer string) Result {
	return s.ScoreInFrame(ex, answer, 1.0)
}

// ScoreInFrame rates an answer given in a frame resized by scale relative
// to the original image. The gold box is moved into the same frame.
func (s *Scorer) ScoreInFrame(ex types.Example, answer string, scale float64) Result {
	var res Result
	box, ok := ParseBox(answer)
	if ok {
		res.Parsed = true
		res.Format = 1.0
	} else {
		fb, err := s.fallbackBox(ex, scale)
		if err != nil {
			res.Err = err.Error()
			return res
		}
		box = fb
		res.Fallback = true
	}

	res.Box = box
	res.IoU = metrics.IoU(box, ex.TargetBox.Scale(scale))
	res.Total = s.IoUWeight*res.IoU + s.FormatWeight*res.Format
	return res
}

func (s *Scorer) fallbackBox(ex types.Example, scale float64) (types.Box, error) {
	w, h, err := s.processor.ImageSize(ex.ImagePath)
	if err != nil {
		return types.Box{}, fmt.Errorf("fallback needs image size: %w", err)
	}
	if scale != 1.0 {
		w = max(1, int(float64(w)*scale))
		h = max(1, int(float64(h)*scale))
	}
	return s.fallback.PredictBox(w, h, ex.Instruction, s.priors.Get()), nil
}

// LoadAnswers reads a JSON-lines (or JSON array) file of answers keyed by id.
func LoadAnswers(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read answers: %w", err)
	}
	return ParseAnswers(data)
}

// ParseAnswers decodes answers in any container format the annotation
// loader accepts. Later duplicates replace earlier ones.
func ParseAnswers(data []byte) (map[string]string, error) {
	records, err := dataset.SplitRecords(data)
	if err != nil {
		return nil, fmt.Errorf("invalid answers: %w", err)
	}
	out := make(map[string]string, len(records))
	for i, raw := range records {
		var a Answer
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("invalid answer %d: %w", i, err)
		}
		out[a.ID] = a.Answer
	}
	return out, nil
}
