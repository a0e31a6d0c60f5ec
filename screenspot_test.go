package screenspot

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stuck-inadream/screenspot-pro/pkg/baseline"
	"github.com/stuck-inadream/screenspot-pro/pkg/types"
)

func TestNewRequiresAnnotations(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("Expected error for empty annotations path")
	}
	if _, err := New("a.jsonl", WithBaseline("nope")); err == nil {
		t.Error("Expected error for unknown baseline")
	}
}

func TestEvaluatorRun(t *testing.T) {
	root := t.TempDir()
	ann, err := GenerateMock(root)
	if err != nil {
		t.Fatalf("GenerateMock failed: %v", err)
	}

	ev, err := New(ann,
		WithRoot(root),
		WithBaseline(baseline.KindText),
		WithMaxResolution(1200),
		WithMaxExamples(5),
		WithCalibration(false),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	rep, err := ev.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if rep.EvaluatedCount != 5 {
		t.Errorf("Expected 5 evaluated examples, got %d", rep.EvaluatedCount)
	}
	if rep.Calibration != nil {
		t.Error("Calibration should be disabled")
	}
}

func TestEvaluatorPredict(t *testing.T) {
	root := t.TempDir()
	if _, err := GenerateMock(root); err != nil {
		t.Fatal(err)
	}
	ev, err := New("unused.jsonl", WithBaseline(baseline.KindText))
	if err != nil {
		t.Fatal(err)
	}

	img := filepath.Join(root, "data", "mock_screenspot_pro", "images", "mock_1.png")
	pred, scale, err := ev.Predict(img, "select the save icon", baseline.EmptyPriors())
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	want := types.Box{X0: 200, Y0: 70, X1: 240, Y1: 100}
	if pred.Box != want || scale != 1.0 {
		t.Errorf("Expected %v at scale 1, got %v at %f", want, pred.Box, scale)
	}

	iou, ok := Score(pred.Box, want, 1920, 1080)
	if iou != 1.0 || !ok {
		t.Errorf("Expected perfect score, got iou=%f success=%v", iou, ok)
	}

	if _, _, err := ev.Predict(filepath.Join(root, "missing.png"), "x", nil); err == nil {
		t.Error("Expected error for missing screenshot")
	}
}

func TestGetVersion(t *testing.T) {
	if GetVersion() != Version {
		t.Errorf("Expected %s, got %s", Version, GetVersion())
	}
}
