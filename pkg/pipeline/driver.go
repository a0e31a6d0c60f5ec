// Package pipeline runs an evaluation end to end: load annotations, predict
// with a baseline, score against the gold boxes and aggregate.
package pipeline

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/stuck-inadream/screenspot-pro/internal/utils"
	"github.com/stuck-inadream/screenspot-pro/pkg/baseline"
	"github.com/stuck-inadream/screenspot-pro/pkg/dataset"
	"github.com/stuck-inadream/screenspot-pro/pkg/log"
	"github.com/stuck-inadream/screenspot-pro/pkg/metrics"
	"github.com/stuck-inadream/screenspot-pro/pkg/processing"
	"github.com/stuck-inadream/screenspot-pro/pkg/types"
)

// ErrNoAnnotations is returned when Options has no annotations path.
var ErrNoAnnotations = errors.New("pipeline: annotations path is required")

// ErrNoRoot is returned when the dataset root is not a directory.
var ErrNoRoot = errors.New("pipeline: root is not a directory")

// DefaultPriorsPath is the priors location relative to the root.
var DefaultPriorsPath = filepath.Join("baselines", "screenspot_pro", "priors.json")

// Options configures a run.
type Options struct {
	AnnotationsPath string
	Root            string
	// PriorsPath defaults to Root/DefaultPriorsPath.
	PriorsPath    string
	MaxExamples   int
	MaxResolution int
	Baseline      baseline.Kind
	Calibration   bool

	PerExampleFile string
	CalibrationPNG string
	OverlayPNG     string
	PlotSize       int
	Quality        int
}

// Report is the JSON summary of a run: the metrics summary plus run
// metadata.
type Report struct {
	metrics.Summary
	AvgInferenceTimeMs *float64     `json:"avg_inference_time_ms,omitempty"`
	WallTimeS          float64      `json:"wall_time_s"`
	EvaluatedCount     int          `json:"evaluated_count"`
	SkippedCount       int          `json:"skipped_count"`
	SkippedPaths       []types.Skip `json:"skipped_paths,omitempty"`
	DroppedCount       int          `json:"dropped_count"`
	Baseline           string       `json:"baseline"`
	RunID              string       `json:"run_id"`
}

// Result is everything a run produced.
type Result struct {
	Report Report
	Rows   []types.Row
	Scored []types.ScoredExample

	// first evaluated screenshot, kept only when an overlay is requested
	firstImage image.Image
}

// Driver executes runs. A Driver is not safe for concurrent Run calls.
type Driver struct {
	opts      Options
	processor *processing.Processor
	predictor baseline.Predictor
	priors    *baseline.PriorsStore
	now       func() time.Time
}

// New validates opts and prepares the predictor and priors store.
func New(opts Options) (*Driver, error) {
	if opts.AnnotationsPath == "" {
		return nil, ErrNoAnnotations
	}
	if opts.Root == "" {
		opts.Root = "."
	}
	if !utils.DirExists(opts.Root) {
		return nil, fmt.Errorf("%w: %s", ErrNoRoot, opts.Root)
	}
	if opts.Baseline == "" {
		opts.Baseline = baseline.KindRegion
	}
	predictor, err := baseline.New(opts.Baseline)
	if err != nil {
		return nil, err
	}

	priorsPath := opts.PriorsPath
	if priorsPath == "" {
		priorsPath = filepath.Join(opts.Root, DefaultPriorsPath)
	}

	return &Driver{
		opts:      opts,
		processor: processing.NewProcessor(),
		predictor: predictor,
		priors:    baseline.NewPriorsStore(priorsPath),
		now:       time.Now,
	}, nil
}

// NewRunID returns a sortable identifier for a run started at t.
func NewRunID(t time.Time) (string, error) {
	ms := ulid.Timestamp(t)
	entropy := ulid.Monotonic(rand.Reader, 0)

	id, err := ulid.New(ms, entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Run evaluates every example. Only an unreadable annotations file (or a
// cancelled context) fails the run; everything else degrades to skips.
func (d *Driver) Run(ctx context.Context) (*Result, error) {
	start := d.now()
	runID, err := NewRunID(start)
	if err != nil {
		return nil, fmt.Errorf("failed to create run id: %w", err)
	}
	logger := log.WithRunID(runID)

	ds, err := dataset.LoadFile(d.opts.AnnotationsPath, d.opts.Root, d.opts.MaxExamples)
	if err != nil {
		return nil, err
	}
	for _, drop := range ds.Report.Dropped {
		log.Debug(log.Fields{"index": drop.Index, "reason": drop.Reason, "detail": drop.Detail}, "annotation record dropped")
	}
	if n := len(ds.Report.Dropped); n > 0 {
		log.Warn(log.Fields{"dropped": n, "counts": ds.Report.Counts()}, "some annotation records were dropped")
	}

	priors := d.priors.Get()
	if err := d.priors.Err(); err != nil {
		log.Warn(log.Fields{"path": d.priors.Path(), "error": err.Error()}, "region priors unavailable, using empty table")
	}

	logger.WithField("examples", len(ds.Examples)).Info("evaluation started")

	res := &Result{}
	agg := metrics.NewAggregator(d.opts.Calibration)
	var skipped []types.Skip

	for _, ex := range ds.Examples {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("evaluation interrupted: %w", err)
		}

		img, scale, err := d.processor.Load(ex.ImagePath, d.opts.MaxResolution)
		if err != nil {
			skipped = append(skipped, types.Skip{Path: ex.ImagePath, Reason: err.Error()})
			log.Warn(log.Fields{"example": ex.ID, "reason": err.Error()}, "example skipped")
			continue
		}

		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		gold := ex.TargetBox.Scale(scale)
		pred := baseline.Predict(d.predictor, w, h, ex.Instruction, priors)

		scored := metrics.Score(ex, pred, gold, w, h, scale)
		agg.Add(scored)
		res.Scored = append(res.Scored, scored)
		res.Rows = append(res.Rows, types.RowOf(scored))
		if res.firstImage == nil && d.opts.OverlayPNG != "" {
			res.firstImage = img
		}

		log.Debug(log.Fields{
			"example": ex.ID,
			"iou":     scored.IoU,
			"success": scored.Success,
			"scale":   scale,
		}, "example scored")
	}

	wall := d.now().Sub(start).Seconds()
	rep := Report{
		Summary:        agg.Summary(),
		WallTimeS:      wall,
		EvaluatedCount: agg.Count(),
		SkippedCount:   len(skipped),
		SkippedPaths:   skipped,
		DroppedCount:   len(ds.Report.Dropped),
		Baseline:       d.predictor.Name(),
		RunID:          runID,
	}
	if rep.EvaluatedCount > 0 {
		avg := 1000.0 * wall / float64(rep.EvaluatedCount)
		rep.AvgInferenceTimeMs = &avg
	}
	res.Report = rep

	logger.WithField("success_rate", rep.SuccessRate).
		WithField("evaluated", rep.EvaluatedCount).
		WithField("skipped", rep.SkippedCount).
		Info("evaluation finished")

	return res, nil
}
