package types

import (
	"encoding/json"
	"fmt"
)

// Box is an axis-aligned rectangle in pixel coordinates of one image.
// It serializes as a 4-element array [x0, y0, x1, y1].
type Box struct {
	X0 int
	Y0 int
	X1 int
	Y1 int
}

// NewBox builds a Box from a 4-element slice.
func NewBox(v [4]int) Box {
	return Box{X0: v[0], Y0: v[1], X1: v[2], Y1: v[3]}
}

// Array returns the box as [x0, y0, x1, y1].
func (b Box) Array() [4]int {
	return [4]int{b.X0, b.Y0, b.X1, b.Y1}
}

// Width returns x1 - x0 (may be negative for malformed boxes).
func (b Box) Width() int { return b.X1 - b.X0 }

// Height returns y1 - y0 (may be negative for malformed boxes).
func (b Box) Height() int { return b.Y1 - b.Y0 }

// Area returns the clipped area, zero for inverted boxes.
func (b Box) Area() int {
	return max(0, b.Width()) * max(0, b.Height())
}

// Center returns the geometric center.
func (b Box) Center() (float64, float64) {
	return float64(b.X0+b.X1) / 2.0, float64(b.Y0+b.Y1) / 2.0
}

// Ordered reports whether x0 <= x1 and y0 <= y1.
func (b Box) Ordered() bool {
	return b.X0 <= b.X1 && b.Y0 <= b.Y1
}

// Scale multiplies every coordinate by s and truncates toward zero.
func (b Box) Scale(s float64) Box {
	if s == 1.0 {
		return b
	}
	return Box{
		X0: int(float64(b.X0) * s),
		Y0: int(float64(b.Y0) * s),
		X1: int(float64(b.X1) * s),
		Y1: int(float64(b.Y1) * s),
	}
}

func (b Box) String() string {
	return fmt.Sprintf("[%d,%d,%d,%d]", b.X0, b.Y0, b.X1, b.Y1)
}

// MarshalJSON implements json.Marshaler.
func (b Box) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Array())
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *Box) UnmarshalJSON(data []byte) error {
	var v [4]int
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("box: %w", err)
	}
	*b = NewBox(v)
	return nil
}

// RelBox is a rectangle with coordinates relative to image size, in [0,1].
type RelBox [4]float64

// ToPixels converts the relative rectangle to absolute pixels, scaling the
// horizontal edges by width and the vertical edges by height.
func (r RelBox) ToPixels(width, height int) Box {
	w, h := float64(width), float64(height)
	return Box{
		X0: int(r[0] * w),
		Y0: int(r[1] * h),
		X1: int(r[2] * w),
		Y1: int(r[3] * h),
	}
}

// TargetType classifies the annotated element.
type TargetType string

const (
	TargetText TargetType = "text"
	TargetIcon TargetType = "icon"
)

// Example is one canonical evaluation record.
type Example struct {
	ID          string     `json:"id,omitempty"`
	Instruction string     `json:"instruction"`
	ImagePath   string     `json:"image_path"`
	TargetBox   Box        `json:"target_box"`
	TargetType  TargetType `json:"target_type,omitempty"`
}

// Prediction is a predictor's output for a single example.
type Prediction struct {
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence"`
}

// SizeBucket groups gold boxes by area.
type SizeBucket string

const (
	BucketSmall  SizeBucket = "small"
	BucketMedium SizeBucket = "medium"
	BucketLarge  SizeBucket = "large"
)

// ScoredExample is an example with its prediction and derived metrics,
// all expressed in the coordinate frame of the (possibly resized) image.
type ScoredExample struct {
	Example    Example
	Prediction Prediction
	GoldBox    Box
	Width      int
	Height     int
	Scale      float64
	IoU        float64
	Success    bool
	Bucket     SizeBucket
}

// Row is the per-example record written to the per-example output file.
type Row struct {
	ID          string     `json:"id"`
	ImagePath   string     `json:"image_path"`
	Instruction string     `json:"instruction"`
	PredBox     Box        `json:"pred_box"`
	GoldBox     Box        `json:"gold_box"`
	TargetType  TargetType `json:"target_type,omitempty"`
	W           int        `json:"W"`
	H           int        `json:"H"`
	Success     bool       `json:"success"`
	IoU         float64    `json:"iou"`
	Confidence  float64    `json:"confidence"`
	Scale       float64    `json:"scale"`
}

// RowOf flattens a scored example.
func RowOf(s ScoredExample) Row {
	return Row{
		ID:          s.Example.ID,
		ImagePath:   s.Example.ImagePath,
		Instruction: s.Example.Instruction,
		PredBox:     s.Prediction.Box,
		GoldBox:     s.GoldBox,
		TargetType:  s.Example.TargetType,
		W:           s.Width,
		H:           s.Height,
		Success:     s.Success,
		IoU:         s.IoU,
		Confidence:  s.Prediction.Confidence,
		Scale:       s.Scale,
	}
}

// Skip records an example excluded from aggregation.
type Skip struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}
