// Package mockdata writes a small synthetic GUI-grounding dataset: flat
// screenshots with menu, toolbar, sidebar and status bands, an annotations
// file and the matching region priors.
package mockdata

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/stuck-inadream/screenspot-pro/internal/utils"
	"github.com/stuck-inadream/screenspot-pro/pkg/baseline"
	"github.com/stuck-inadream/screenspot-pro/pkg/dataset"
	"github.com/stuck-inadream/screenspot-pro/pkg/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Dataset layout under the root.
const (
	DatasetName     = "mock_screenspot_pro"
	AnnotationsFile = "annotations.jsonl"
	DefaultCount    = 10
)

// Record is one annotation line as written to disk.
type Record struct {
	ID          string           `json:"id"`
	ImagePath   string           `json:"image_path"`
	Instruction string           `json:"instruction"`
	BBox        types.Box        `json:"bbox"`
	TargetType  types.TargetType `json:"target_type"`
}

// Manifest describes what Generate wrote.
type Manifest struct {
	AnnotationsPath string
	ImagesDir       string
	PriorsPath      string
	Records         []Record
}

var (
	background = color.NRGBA{235, 238, 242, 255}
	menuFill   = color.NRGBA{245, 245, 245, 255}
	toolFill   = color.NRGBA{252, 252, 252, 255}
	sideFill   = color.NRGBA{248, 248, 248, 255}
	statusFill = color.NRGBA{245, 245, 245, 255}
	targetLine = color.NRGBA{220, 60, 60, 255}
)

// Generate writes count examples under root/data/mock_screenspot_pro and the
// default priors under root/baselines/screenspot_pro. count <= 0 means
// DefaultCount.
func Generate(root string, count int) (*Manifest, error) {
	if count <= 0 {
		count = DefaultCount
	}
	dataDir := filepath.Join(root, "data", DatasetName)
	imagesDir := filepath.Join(dataDir, dataset.ImagesDir)
	if err := utils.EnsureDir(imagesDir); err != nil {
		return nil, fmt.Errorf("failed to create images dir: %w", err)
	}

	m := &Manifest{
		AnnotationsPath: filepath.Join(dataDir, AnnotationsFile),
		ImagesDir:       imagesDir,
		PriorsPath:      filepath.Join(root, "baselines", "screenspot_pro", "priors.json"),
	}

	for i := 0; i < count; i++ {
		rec, w, h := example(i)
		img := Render(w, h, rec.BBox)
		if err := imaging.Save(img, filepath.Join(imagesDir, rec.ImagePath)); err != nil {
			return nil, fmt.Errorf("failed to save %s: %w", rec.ImagePath, err)
		}
		m.Records = append(m.Records, rec)
	}

	if err := writeLines(m.AnnotationsPath, m.Records); err != nil {
		return nil, err
	}
	if err := baseline.SavePriors(baseline.DefaultPriors(), m.PriorsPath); err != nil {
		return nil, err
	}
	return m, nil
}

// example returns the i-th annotation. Every third screen is a double-wide
// 3840x1080; targets cycle through menu, toolbar, sidebar and status.
func example(i int) (Record, int, int) {
	w, h := 1920, 1080
	if i%3 == 0 {
		w = 3840
	}

	rec := Record{
		ID:         fmt.Sprintf("mock_%d", i),
		ImagePath:  fmt.Sprintf("mock_%d.png", i),
		TargetType: types.TargetText,
	}
	switch i % 4 {
	case 0:
		rec.BBox = types.Box{X0: 10, Y0: 10, X1: 110, Y1: 40}
		rec.Instruction = "click the File menu"
	case 1:
		rec.BBox = types.Box{X0: 200, Y0: 70, X1: 240, Y1: 100}
		rec.Instruction = "select the save icon"
		rec.TargetType = types.TargetIcon
	case 2:
		rec.BBox = types.Box{X0: 80, Y0: 200, X1: 120, Y1: 260}
		rec.Instruction = "open the sidebar panel"
	default:
		rec.BBox = types.Box{X0: w - 180, Y0: h - 60, X1: w - 40, Y1: h - 10}
		rec.Instruction = "check the status bar"
	}
	return rec, w, h
}

// Render draws a w x h screenshot with the target outlined.
func Render(w, h int, target types.Box) *image.NRGBA {
	img := imaging.New(w, h, background)

	fill := func(x0, y0, x1, y1 int, c color.NRGBA) {
		if x1 <= x0 || y1 <= y0 {
			return
		}
		draw.Draw(img, image.Rect(x0, y0, x1, y1), image.NewUniform(c), image.Point{}, draw.Src)
	}

	fill(0, 0, w, int(0.05*float64(h)), menuFill)
	fill(0, int(0.05*float64(h)), w, int(0.12*float64(h)), toolFill)
	fill(0, int(0.12*float64(h)), int(0.12*float64(w)), int(0.92*float64(h)), sideFill)
	fill(0, int(0.92*float64(h)), w, h, statusFill)

	drawText(img, 10, 18, "File  Edit  View  Help", color.Black)

	const stroke = 3
	fill(target.X0, target.Y0, target.X1, target.Y0+stroke, targetLine)
	fill(target.X0, target.Y1-stroke, target.X1, target.Y1, targetLine)
	fill(target.X0, target.Y0, target.X0+stroke, target.Y1, targetLine)
	fill(target.X1-stroke, target.Y0, target.X1, target.Y1, targetLine)
	drawText(img, target.X0+4, target.Y0+16, "*", targetLine)

	return img
}

func drawText(img *image.NRGBA, x, y int, s string, c color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func writeLines(path string, records []Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create annotations: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to write annotation %s: %w", r.ID, err)
		}
	}
	return nil
}
