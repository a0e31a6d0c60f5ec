package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stuck-inadream/screenspot-pro/internal/mockdata"
	"github.com/stuck-inadream/screenspot-pro/internal/utils"
	"github.com/stuck-inadream/screenspot-pro/pkg/baseline"
	"github.com/stuck-inadream/screenspot-pro/pkg/processing"
	"github.com/stuck-inadream/screenspot-pro/pkg/types"
)

func TestRunOnMockDataset(t *testing.T) {
	root := t.TempDir()
	m, err := mockdata.Generate(root, 10)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	out := t.TempDir()
	d, err := New(Options{
		AnnotationsPath: m.AnnotationsPath,
		Root:            root,
		MaxExamples:     10,
		MaxResolution:   1200,
		Baseline:        baseline.KindText,
		Calibration:     true,
		PerExampleFile:  filepath.Join(out, "rows.json"),
		CalibrationPNG:  filepath.Join(out, "plots", "calib.png"),
		OverlayPNG:      filepath.Join(out, "overlay.png"),
		PlotSize:        200,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	rep := res.Report
	if rep.EvaluatedCount != 10 || rep.SkippedCount != 0 {
		t.Fatalf("Expected 10 evaluated / 0 skipped, got %d / %d", rep.EvaluatedCount, rep.SkippedCount)
	}
	if rep.SuccessRate < 0.5 {
		t.Errorf("Expected keyword baseline to hit most mock targets, got %f", rep.SuccessRate)
	}
	if rep.AvgInferenceTimeMs == nil || *rep.AvgInferenceTimeMs <= 0 {
		t.Errorf("Expected positive avg_inference_time_ms, got %v", rep.AvgInferenceTimeMs)
	}
	if rep.RunID == "" || rep.Baseline != "text" {
		t.Errorf("Unexpected metadata %q / %q", rep.RunID, rep.Baseline)
	}
	if rep.Strata == nil || rep.TextSuccessRate == nil || rep.IconSuccessRate == nil {
		t.Errorf("Expected type strata, got %+v", rep.Strata)
	}
	if len(rep.Calibration) == 0 {
		t.Error("Expected calibration points")
	}

	// gold boxes follow the resize: the 3840-wide screens shrink by 1200/3840
	first := res.Scored[0]
	if first.Scale != 0.3125 || first.Width != 1200 || first.Height != 337 {
		t.Errorf("Unexpected frame for example 0: scale %f, %dx%d", first.Scale, first.Width, first.Height)
	}
	if first.GoldBox != (types.Box{X0: 3, Y0: 3, X1: 34, Y1: 12}) {
		t.Errorf("Unexpected scaled gold box %v", first.GoldBox)
	}

	if err := d.WriteOutputs(res); err != nil {
		t.Fatalf("WriteOutputs failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(out, "rows.json"))
	if err != nil {
		t.Fatalf("Per-example file missing: %v", err)
	}
	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		t.Fatalf("Per-example file is not JSON: %v", err)
	}
	if len(rows) != 10 {
		t.Errorf("Expected 10 rows, got %d", len(rows))
	}
	for _, key := range []string{"image_path", "instruction", "pred_box", "gold_box", "target_type", "W", "H", "success", "confidence", "scale"} {
		if _, ok := rows[0][key]; !ok {
			t.Errorf("Row is missing %q", key)
		}
	}

	p := processing.NewProcessor()
	if w, h, err := p.ImageSize(filepath.Join(out, "plots", "calib.png")); err != nil || w != 200 || h != 200 {
		t.Errorf("Expected 200x200 calibration plot, got %dx%d (%v)", w, h, err)
	}
	if w, _, err := p.ImageSize(filepath.Join(out, "overlay.png")); err != nil || w != 1200 {
		t.Errorf("Expected overlay of the resized screenshot, got width %d (%v)", w, err)
	}

	js, err := rep.JSON()
	if err != nil {
		t.Fatalf("JSON failed: %v", err)
	}
	for _, key := range []string{`"success_rate"`, `"avg_inference_time_ms"`, `"evaluated_count"`, `"text_success_rate"`, `"run_id"`} {
		if !strings.Contains(string(js), key) {
			t.Errorf("Report JSON is missing %s", key)
		}
	}
	if strings.Contains(string(js), "skipped_paths") {
		t.Error("skipped_paths should be omitted when nothing was skipped")
	}
}

func TestRunSkipsUnreadableImages(t *testing.T) {
	root := t.TempDir()
	ann := filepath.Join(root, "ann.jsonl")
	lines := `{"instruction":"click File","bbox":[0,0,10,10],"image_path":"missing.png"}
{"instruction":"save","bbox":[0,0,10,10],"image_path":"broken.png"}
`
	if err := os.WriteFile(ann, []byte(lines), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := utils.EnsureDir(filepath.Join(root, "images")); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "images", "broken.png"), []byte("nope"), 0o644); err != nil {
		t.Fatal(err)
	}

	d, err := New(Options{AnnotationsPath: ann, Root: root, PerExampleFile: filepath.Join(root, "rows.json"), CalibrationPNG: filepath.Join(root, "c.png")})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	rep := res.Report
	if rep.EvaluatedCount != 0 || rep.SkippedCount != 2 {
		t.Fatalf("Expected 0 evaluated / 2 skipped, got %d / %d", rep.EvaluatedCount, rep.SkippedCount)
	}
	if !strings.HasPrefix(rep.SkippedPaths[0].Reason, "file not found") {
		t.Errorf("Unexpected reason %q", rep.SkippedPaths[0].Reason)
	}
	if !strings.HasPrefix(rep.SkippedPaths[1].Reason, "unsupported format") {
		t.Errorf("Unexpected reason %q", rep.SkippedPaths[1].Reason)
	}
	if rep.AvgInferenceTimeMs != nil {
		t.Error("avg_inference_time_ms must be absent without evaluated examples")
	}

	js, _ := rep.JSON()
	var decoded map[string]any
	if err := json.Unmarshal(js, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["success_rate"] != 0.0 {
		t.Errorf("Expected success_rate 0, got %v", decoded["success_rate"])
	}
	for _, key := range []string{"text_success_rate", "small_success_rate", "calibration", "avg_inference_time_ms"} {
		if _, ok := decoded[key]; ok {
			t.Errorf("Empty run should not report %s", key)
		}
	}

	if err := d.WriteOutputs(res); err != nil {
		t.Fatalf("WriteOutputs failed: %v", err)
	}
	if data, err := os.ReadFile(filepath.Join(root, "rows.json")); err != nil || strings.TrimSpace(string(data)) != "[]" {
		t.Errorf("Expected empty rows array, got %q (%v)", data, err)
	}
	if utils.FileExists(filepath.Join(root, "c.png")) {
		t.Error("No calibration plot should be written for an empty run")
	}
}

func TestRunMissingPriorsFallsBack(t *testing.T) {
	root := t.TempDir()
	m, err := mockdata.Generate(root, 4)
	if err != nil {
		t.Fatal(err)
	}

	d, err := New(Options{
		AnnotationsPath: m.AnnotationsPath,
		Root:            root,
		PriorsPath:      filepath.Join(root, "nowhere.json"),
		Baseline:        baseline.KindRegion,
		MaxResolution:   600,
	})
	if err != nil {
		t.Fatal(err)
	}
	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	for _, s := range res.Scored {
		if s.Prediction.Box != (types.Box{X1: s.Width, Y1: s.Height}) || s.Prediction.Confidence != 0 {
			t.Errorf("Expected whole-image fallback, got %+v", s.Prediction)
		}
	}
}

func TestRunErrors(t *testing.T) {
	if _, err := New(Options{}); !errors.Is(err, ErrNoAnnotations) {
		t.Errorf("Expected ErrNoAnnotations, got %v", err)
	}
	if _, err := New(Options{AnnotationsPath: "x", Baseline: "neural"}); err == nil {
		t.Error("Expected error for unknown baseline")
	}

	if _, err := New(Options{AnnotationsPath: "x", Root: filepath.Join(t.TempDir(), "nope")}); !errors.Is(err, ErrNoRoot) {
		t.Errorf("Expected ErrNoRoot, got %v", err)
	}

	d, err := New(Options{AnnotationsPath: filepath.Join(t.TempDir(), "missing.jsonl")})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Run(context.Background()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected missing annotations to fail the run, got %v", err)
	}
}

func TestRunCancelled(t *testing.T) {
	root := t.TempDir()
	m, err := mockdata.Generate(root, 2)
	if err != nil {
		t.Fatal(err)
	}
	d, _ := New(Options{AnnotationsPath: m.AnnotationsPath, Root: root})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestNewRunIDSortable(t *testing.T) {
	a, err := NewRunID(time.UnixMilli(1000))
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewRunID(time.UnixMilli(2000))
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 26 || !(a < b) {
		t.Errorf("Expected sortable 26-char ids, got %s, %s", a, b)
	}
}

func TestRunKeepsScreenshotOnlyForOverlay(t *testing.T) {
	root := t.TempDir()
	m, err := mockdata.Generate(root, 2)
	if err != nil {
		t.Fatal(err)
	}

	d, _ := New(Options{AnnotationsPath: m.AnnotationsPath, Root: root, MaxResolution: 300})
	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.firstImage != nil {
		t.Error("No screenshot should be retained without an overlay path")
	}

	overlay := filepath.Join(t.TempDir(), "o.png")
	d, _ = New(Options{AnnotationsPath: m.AnnotationsPath, Root: root, MaxResolution: 300, OverlayPNG: overlay})
	res, err = d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.firstImage == nil {
		t.Fatal("Expected the first screenshot to be retained for the overlay")
	}
	if err := d.WriteOutputs(res); err != nil {
		t.Fatalf("WriteOutputs failed: %v", err)
	}
	if !utils.FileExists(overlay) {
		t.Error("Expected overlay to be written")
	}
}
