package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stuck-inadream/screenspot-pro/pkg/types"
)

func TestNormalizeJSONLines(t *testing.T) {
	input := `{"instruction":"click File","bbox":[1,2,3,4],"image_path":"images/x.png","target_type":"text","id":7}
{"instruction":"save","target_box":[10.9,20.2,30.5,40.99],"image":"/abs/y.png"}
`
	n := New(t.TempDir(), "annotations.jsonl", 0)
	res, err := n.Normalize([]byte(input))
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(res.Examples) != 2 {
		t.Fatalf("Expected 2 examples, got %d", len(res.Examples))
	}

	first := res.Examples[0]
	if first.TargetBox != (types.Box{X0: 1, Y0: 2, X1: 3, Y1: 4}) {
		t.Errorf("Expected box [1,2,3,4], got %v", first.TargetBox)
	}
	if !filepath.IsAbs(first.ImagePath) || !strings.HasSuffix(first.ImagePath, "x.png") {
		t.Errorf("Expected absolute path ending in x.png, got %s", first.ImagePath)
	}
	if first.ID != "7" || first.TargetType != types.TargetText {
		t.Errorf("Unexpected id/type: %q/%q", first.ID, first.TargetType)
	}

	second := res.Examples[1]
	if second.TargetBox != (types.Box{X0: 10, Y0: 20, X1: 30, Y1: 40}) {
		t.Errorf("Expected truncated box, got %v", second.TargetBox)
	}
	if second.ImagePath != "/abs/y.png" {
		t.Errorf("Absolute path should pass through, got %s", second.ImagePath)
	}
}

func TestNormalizeJSONArray(t *testing.T) {
	input := `[
  {"instruction": "a", "bbox": [0, 0, 5, 5], "image_path": "a.png"},
  {"instruction": "b", "bbox": [0, 0, 5, 5], "image_path": "b.png"}
]`
	res, err := New(".", "ann.json", 0).Normalize([]byte(input))
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(res.Examples) != 2 {
		t.Errorf("Expected 2 examples, got %d", len(res.Examples))
	}
}

func TestNormalizeDataWrapper(t *testing.T) {
	input := `{
  "data": [
    {"instruction": "a", "bbox": [0, 0, 5, 5], "image_path": "a.png"},
    {"instruction": "b", "bbox": [1, 1, 6, 6], "image_path": "b.png"}
  ]
}`
	res, err := New(".", "ann.json", 0).Normalize([]byte(input))
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(res.Examples) != 2 || len(res.Report.Dropped) != 0 {
		t.Fatalf("Expected 2 examples and no drops, got %d / %+v", len(res.Examples), res.Report.Dropped)
	}
	if res.Examples[1].Instruction != "b" || res.Examples[1].TargetBox != (types.Box{X0: 1, Y0: 1, X1: 6, Y1: 6}) {
		t.Errorf("Unexpected second example %+v", res.Examples[1])
	}

	// same wrapper on a single line
	oneLine := `{"data":[{"instruction":"a","bbox":[0,0,5,5],"image_path":"a.png"}]}`
	res, err = New(".", "ann.json", 0).Normalize([]byte(oneLine))
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(res.Examples) != 1 {
		t.Errorf("Expected 1 example, got %d", len(res.Examples))
	}
}

func TestNormalizeSingleLineObject(t *testing.T) {
	input := `{"instruction": "a", "bbox": [0, 0, 5, 5], "image_path": "a.png"}`
	res, err := New(".", "ann.json", 0).Normalize([]byte(input))
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(res.Examples) != 1 {
		t.Errorf("Expected 1 example, got %d", len(res.Examples))
	}
}

func TestNormalizeEmpty(t *testing.T) {
	for _, input := range []string{"", "   \n\t\n"} {
		res, err := New(".", "ann.json", 0).Normalize([]byte(input))
		if err != nil {
			t.Errorf("Empty input should not fail: %v", err)
		}
		if len(res.Examples) != 0 {
			t.Errorf("Expected no examples, got %d", len(res.Examples))
		}
	}
}

func TestNormalizeInvalidDocument(t *testing.T) {
	if _, err := New(".", "ann.json", 0).Normalize([]byte("{not json")); err == nil {
		t.Error("Expected error for unparsable document")
	}
}

func TestNormalizeDropsInvalidRecords(t *testing.T) {
	input := `{"bbox":[1,2,3,4],"image_path":"x.png"}
{"instruction":"","bbox":[1,2,3,4],"image_path":"x.png"}
{"instruction":"no box","image_path":"x.png"}
{"instruction":"short box","bbox":[1,2,3],"image_path":"x.png"}
{"instruction":"inverted","bbox":[5,5,1,1],"image_path":"x.png"}
{"instruction":"no image","bbox":[1,2,3,4]}
{"instruction":"bad type","bbox":[1,2,3,4],"image_path":"x.png","target_type":"button"}
{"instruction":42,"bbox":[1,2,3,4],"image_path":"x.png"}
[1,2,3]
{"instruction":"ok","bbox":[1,2,3,4],"image_path":"x.png","target_type":"icon"}
`
	res, err := New(".", "ann.jsonl", 0).Normalize([]byte(input))
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(res.Examples) != 1 || res.Examples[0].Instruction != "ok" {
		t.Fatalf("Expected only the valid record, got %+v", res.Examples)
	}
	if res.Report.Total != 10 || len(res.Report.Dropped) != 9 {
		t.Errorf("Expected 10 seen / 9 dropped, got %d / %d", res.Report.Total, len(res.Report.Dropped))
	}

	want := []Reason{
		ReasonMissingInstruction,
		ReasonMissingInstruction,
		ReasonMissingBox,
		ReasonBadBox,
		ReasonBadBox,
		ReasonMissingImage,
		ReasonBadTargetType,
		ReasonMalformed,
		ReasonNotObject,
	}
	for i, d := range res.Report.Dropped {
		if d.Index != i {
			t.Errorf("Drop %d has index %d", i, d.Index)
		}
		if d.Reason != want[i] {
			t.Errorf("Drop %d: reason %s, want %s", i, d.Reason, want[i])
		}
	}

	counts := res.Report.Counts()
	if counts[ReasonMissingInstruction] != 2 || counts[ReasonBadBox] != 2 {
		t.Errorf("Unexpected counts: %v", counts)
	}
}

func TestNormalizeRespectsCap(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&sb, `{"id":"r%d","instruction":"i%d","bbox":[0,0,10,10],"image_path":"%d.png"}`+"\n", i, i, i)
	}

	res, err := New(".", "ann.jsonl", 4).Normalize([]byte(sb.String()))
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(res.Examples) != 4 {
		t.Fatalf("Expected 4 examples, got %d", len(res.Examples))
	}
	for i, ex := range res.Examples {
		if ex.ID != fmt.Sprintf("r%d", i) {
			t.Errorf("Expected original order, position %d has %s", i, ex.ID)
		}
	}
}

func TestImagesDirFromDataSegment(t *testing.T) {
	root := t.TempDir()
	ann := filepath.Join("/somewhere", "data", "mock_screenspot_pro", "annotations.jsonl")

	n := New(root, ann, 0)
	got := n.imagesDir()
	want := filepath.Join(root, "data", "mock_screenspot_pro", ImagesDir)
	if got != want {
		t.Errorf("imagesDir = %s, want %s", got, want)
	}

	if p := resolveImage("nested/dir/shot.png", got); p != filepath.Join(want, "shot.png") {
		t.Errorf("Expected basename under images dir, got %s", p)
	}
}

func TestImagesDirWithoutDataSegment(t *testing.T) {
	dir := t.TempDir()
	ann := filepath.Join(dir, "ann.jsonl")

	if got := New(".", ann, 0).imagesDir(); got != filepath.Join(dir, ImagesDir) {
		t.Errorf("Expected sibling images dir, got %s", got)
	}
}

func TestLoadFile(t *testing.T) {
	if _, err := LoadFile("", ".", 0); !errors.Is(err, ErrEmptyPath) {
		t.Errorf("Expected ErrEmptyPath, got %v", err)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.jsonl"), ".", 0); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected not-exist error, got %v", err)
	}

	path := filepath.Join(t.TempDir(), "ann.json")
	content := `[{"instruction":"a","bbox":[0,0,5,5],"image_path":"a.png"}]`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := LoadFile(path, ".", 0)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if len(res.Examples) != 1 {
		t.Errorf("Expected 1 example, got %d", len(res.Examples))
	}
}
