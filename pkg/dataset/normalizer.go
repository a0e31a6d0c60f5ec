// Package dataset turns heterogeneous grounding annotations (JSON arrays or
// JSON lines) into canonical examples.
package dataset

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"

	"github.com/stuck-inadream/screenspot-pro/pkg/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrEmptyPath is returned when no annotations path is given.
var ErrEmptyPath = errors.New("dataset: annotations path is empty")

// ImagesDir is the conventional folder holding a dataset's screenshots.
const ImagesDir = "images"

// dataAnchor is the path segment at which a dataset's relative directory starts.
const dataAnchor = "data"

// Reason names why a record was dropped.
type Reason string

const (
	ReasonNotObject          Reason = "not_an_object"
	ReasonMalformed          Reason = "malformed"
	ReasonMissingInstruction Reason = "missing_instruction"
	ReasonMissingBox         Reason = "missing_box"
	ReasonBadBox             Reason = "bad_box"
	ReasonMissingImage       Reason = "missing_image"
	ReasonBadTargetType      Reason = "bad_target_type"
)

// DropError is a per-record validation failure.
type DropError struct {
	Index  int
	Reason Reason
	Detail string
}

func (e *DropError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("record %d dropped (%s): %s", e.Index, e.Reason, e.Detail)
	}
	return fmt.Sprintf("record %d dropped (%s)", e.Index, e.Reason)
}

// Report lists the records that did not become examples.
type Report struct {
	Total   int
	Dropped []DropError
}

// Counts groups drops by reason.
func (r Report) Counts() map[Reason]int {
	out := make(map[Reason]int)
	for _, d := range r.Dropped {
		out[d.Reason]++
	}
	return out
}

// Result is the outcome of a normalization pass.
type Result struct {
	Examples []types.Example
	Report   Report
}

// rawRecord accepts every field spelling seen in the wild.
type rawRecord struct {
	ID          any               `json:"id"`
	Instruction string            `json:"instruction"`
	BBox        []jsoniter.Number `json:"bbox"`
	TargetBox   []jsoniter.Number `json:"target_box"`
	ImagePath   string            `json:"image_path"`
	Image       string            `json:"image"`
	TargetType  string            `json:"target_type"`
}

// candidate is a record after field coalescing, ready for validation.
type candidate struct {
	Instruction string            `validate:"required"`
	Box         []jsoniter.Number `validate:"required,len=4"`
	Image       string            `validate:"required"`
	TargetType  string            `validate:"omitempty,oneof=text icon"`
}

// Normalizer converts raw annotation records into examples.
type Normalizer struct {
	root            string
	annotationsPath string
	maxExamples     int
	validate        *validator.Validate
}

// New creates a Normalizer. Relative image paths are resolved against
// root and the annotations file location; maxExamples <= 0 disables the cap.
func New(root, annotationsPath string, maxExamples int) *Normalizer {
	return &Normalizer{
		root:            root,
		annotationsPath: annotationsPath,
		maxExamples:     maxExamples,
		validate:        validator.New(),
	}
}

// LoadFile reads and normalizes an annotations file. A missing or
// unparsable file is an error; invalid records are only reported.
func LoadFile(path, root string, maxExamples int) (Result, error) {
	if path == "" {
		return Result{}, ErrEmptyPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read annotations: %w", err)
	}
	res, err := New(root, path, maxExamples).Normalize(data)
	if err != nil {
		return Result{}, fmt.Errorf("failed to parse annotations %s: %w", path, err)
	}
	return res, nil
}

// Normalize parses data and coerces each record, preserving input order
// and stopping once the cap is reached.
func (n *Normalizer) Normalize(data []byte) (Result, error) {
	records, err := SplitRecords(data)
	if err != nil {
		return Result{}, err
	}

	imagesDir := n.imagesDir()
	var res Result
	for i, raw := range records {
		if n.maxExamples > 0 && len(res.Examples) >= n.maxExamples {
			break
		}
		res.Report.Total++

		ex, err := n.coerce(i, raw, imagesDir)
		if err != nil {
			var drop *DropError
			if errors.As(err, &drop) {
				res.Report.Dropped = append(res.Report.Dropped, *drop)
				continue
			}
			return Result{}, err
		}
		res.Examples = append(res.Examples, ex)
	}
	return res, nil
}

// SplitRecords detects the container format. Input is treated as JSON lines
// when every non-blank line parses on its own and there is more than one;
// otherwise the whole document must be an array, an object wrapping an
// array under "data", or a single object.
func SplitRecords(data []byte) ([]jsoniter.RawMessage, error) {
	text := bytes.TrimSpace(data)
	if len(text) == 0 {
		return nil, nil
	}

	if lines, ok := splitLines(text); ok {
		return lines, nil
	}

	var doc jsoniter.RawMessage
	if err := json.Unmarshal(text, &doc); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if bytes.HasPrefix(doc, []byte("[")) {
		var arr []jsoniter.RawMessage
		if err := json.Unmarshal(doc, &arr); err != nil {
			return nil, fmt.Errorf("invalid JSON array: %w", err)
		}
		return arr, nil
	}

	var wrapped struct {
		Data []jsoniter.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(doc, &wrapped); err == nil && wrapped.Data != nil {
		return wrapped.Data, nil
	}
	return []jsoniter.RawMessage{doc}, nil
}

func splitLines(text []byte) ([]jsoniter.RawMessage, bool) {
	var out []jsoniter.RawMessage
	for _, line := range bytes.Split(text, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			return nil, false
		}
		out = append(out, jsoniter.RawMessage(line))
	}
	return out, len(out) > 1
}

// coerce maps one raw record to an Example or returns a *DropError.
func (n *Normalizer) coerce(index int, raw jsoniter.RawMessage, imagesDir string) (types.Example, error) {
	if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
		return types.Example{}, &DropError{Index: index, Reason: ReasonNotObject}
	}

	var rec rawRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return types.Example{}, &DropError{Index: index, Reason: ReasonMalformed, Detail: err.Error()}
	}

	c := candidate{
		Instruction: rec.Instruction,
		Box:         rec.BBox,
		Image:       rec.ImagePath,
		TargetType:  rec.TargetType,
	}
	if len(c.Box) == 0 {
		c.Box = rec.TargetBox
	}
	if c.Image == "" {
		c.Image = rec.Image
	}

	if err := n.validate.Struct(c); err != nil {
		return types.Example{}, dropFromValidation(index, err)
	}

	box, err := coerceBox(c.Box)
	if err != nil {
		return types.Example{}, &DropError{Index: index, Reason: ReasonBadBox, Detail: err.Error()}
	}

	return types.Example{
		ID:          formatID(rec.ID),
		Instruction: c.Instruction,
		ImagePath:   resolveImage(c.Image, imagesDir),
		TargetBox:   box,
		TargetType:  types.TargetType(c.TargetType),
	}, nil
}

func dropFromValidation(index int, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &DropError{Index: index, Reason: ReasonMalformed, Detail: err.Error()}
	}

	fe := verrs[0]
	detail := fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag())
	switch fe.Field() {
	case "Instruction":
		return &DropError{Index: index, Reason: ReasonMissingInstruction, Detail: detail}
	case "Box":
		if fe.Tag() == "required" {
			return &DropError{Index: index, Reason: ReasonMissingBox, Detail: detail}
		}
		return &DropError{Index: index, Reason: ReasonBadBox, Detail: detail}
	case "Image":
		return &DropError{Index: index, Reason: ReasonMissingImage, Detail: detail}
	case "TargetType":
		return &DropError{Index: index, Reason: ReasonBadTargetType, Detail: detail}
	}
	return &DropError{Index: index, Reason: ReasonMalformed, Detail: detail}
}

// coerceBox truncates each coordinate to an integer. Inverted corners are rejected.
func coerceBox(nums []jsoniter.Number) (types.Box, error) {
	var v [4]int
	for i, num := range nums {
		f, err := num.Float64()
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return types.Box{}, fmt.Errorf("coordinate %d is not a number: %q", i, num.String())
		}
		v[i] = int(f)
	}
	b := types.NewBox(v)
	if !b.Ordered() {
		return types.Box{}, fmt.Errorf("inverted box %v", b)
	}
	return b, nil
}

func formatID(id any) string {
	switch v := id.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// imagesDir computes where relative image references live: the dataset's
// directory (from the "data" segment of the annotations path, re-rooted
// under root) joined with ImagesDir. Without a "data" segment the
// annotations file's own directory is used.
func (n *Normalizer) imagesDir() string {
	annAbs, err := filepath.Abs(n.annotationsPath)
	if err != nil {
		annAbs = n.annotationsPath
	}
	annDir := filepath.Dir(annAbs)

	root := n.root
	if root == "" {
		root = "."
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		rootAbs = root
	}

	parts := strings.Split(filepath.ToSlash(annDir), "/")
	for i, p := range parts {
		if p == dataAnchor {
			rel := filepath.FromSlash(strings.Join(parts[i:], "/"))
			return filepath.Join(rootAbs, rel, ImagesDir)
		}
	}
	return filepath.Join(annDir, ImagesDir)
}

// resolveImage keeps absolute paths and maps relative ones to
// imagesDir/<basename>.
func resolveImage(ref, imagesDir string) string {
	if filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(imagesDir, filepath.Base(filepath.FromSlash(ref)))
}
