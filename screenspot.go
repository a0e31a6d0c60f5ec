// Package screenspot evaluates GUI-grounding predictions: given a screenshot
// and an instruction, a predictor proposes a box that is scored against the
// annotated target by IoU and center containment.
//
// Basic usage:
//
//	ev, err := screenspot.New("data/mock_screenspot_pro/annotations.jsonl",
//		screenspot.WithBaseline(baseline.KindText),
//		screenspot.WithMaxResolution(1200))
//	if err != nil {
//		log.Fatal(err)
//	}
//	report, err := ev.Run(context.Background())
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("success rate: %.3f\n", report.SuccessRate)
//
// The package ties together four components:
//
// 1. Dataset (pkg/dataset): normalizes annotation files into examples
// 2. Processing (pkg/processing): loads and downscales screenshots
// 3. Baseline (pkg/baseline): keyword and region-prior box predictors
// 4. Metrics (pkg/metrics): IoU, success and stratified aggregation
package screenspot

import (
	"context"
	"fmt"

	"github.com/stuck-inadream/screenspot-pro/internal/mockdata"
	"github.com/stuck-inadream/screenspot-pro/pkg/baseline"
	"github.com/stuck-inadream/screenspot-pro/pkg/metrics"
	"github.com/stuck-inadream/screenspot-pro/pkg/pipeline"
	"github.com/stuck-inadream/screenspot-pro/pkg/processing"
	"github.com/stuck-inadream/screenspot-pro/pkg/types"
)

// Version of the screenspot library
const Version = "0.1.0"

// Option adjusts an Evaluator.
type Option func(*pipeline.Options)

// WithRoot sets the dataset root used to resolve image paths and priors.
func WithRoot(root string) Option {
	return func(o *pipeline.Options) { o.Root = root }
}

// WithBaseline selects the predictor.
func WithBaseline(kind baseline.Kind) Option {
	return func(o *pipeline.Options) { o.Baseline = kind }
}

// WithMaxResolution caps the long side of every screenshot.
func WithMaxResolution(px int) Option {
	return func(o *pipeline.Options) { o.MaxResolution = px }
}

// WithMaxExamples caps the number of evaluated examples.
func WithMaxExamples(n int) Option {
	return func(o *pipeline.Options) { o.MaxExamples = n }
}

// WithCalibration toggles calibration points in the report.
func WithCalibration(on bool) Option {
	return func(o *pipeline.Options) { o.Calibration = on }
}

// Evaluator provides a high-level interface over the evaluation pipeline
type Evaluator struct {
	driver    *pipeline.Driver
	processor *processing.Processor
	opts      pipeline.Options
}

// New creates an Evaluator for the given annotations file
func New(annotations string, opts ...Option) (*Evaluator, error) {
	o := pipeline.Options{AnnotationsPath: annotations, Calibration: true}
	for _, fn := range opts {
		fn(&o)
	}
	d, err := pipeline.New(o)
	if err != nil {
		return nil, err
	}
	return &Evaluator{driver: d, processor: processing.NewProcessor(), opts: o}, nil
}

// Run evaluates the whole dataset and returns the summary report.
func (e *Evaluator) Run(ctx context.Context) (*pipeline.Report, error) {
	res, err := e.driver.Run(ctx)
	if err != nil {
		return nil, err
	}
	return &res.Report, nil
}

// Predict runs the configured baseline on a single screenshot. The box is
// in the frame of the screenshot after downscaling; scale maps it back.
func (e *Evaluator) Predict(imagePath, instruction string, priors *baseline.Priors) (pred types.Prediction, scale float64, err error) {
	img, scale, err := e.processor.Load(imagePath, e.opts.MaxResolution)
	if err != nil {
		return types.Prediction{}, scale, fmt.Errorf("failed to load screenshot: %w", err)
	}
	kind := e.opts.Baseline
	if kind == "" {
		kind = baseline.KindRegion
	}
	p, err := baseline.New(kind)
	if err != nil {
		return types.Prediction{}, scale, err
	}
	b := img.Bounds()
	return baseline.Predict(p, b.Dx(), b.Dy(), instruction, priors), scale, nil
}

// Score reports the IoU of pred against gold and whether pred counts as a
// hit on a width x height screenshot.
func Score(pred, gold types.Box, width, height int) (iou float64, success bool) {
	return metrics.IoU(pred, gold), metrics.CenterInBox(pred, gold, width, height)
}

// GenerateMock writes the synthetic dataset under root and returns the
// annotations path.
func GenerateMock(root string) (string, error) {
	m, err := mockdata.Generate(root, mockdata.DefaultCount)
	if err != nil {
		return "", err
	}
	return m.AnnotationsPath, nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
