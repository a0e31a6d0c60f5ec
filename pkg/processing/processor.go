package processing

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io/fs"
	"os"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/stuck-inadream/screenspot-pro/pkg/types"
)

// Error kinds reported by the loader. Match them with errors.Is.
var (
	ErrNotFound          = errors.New("file not found")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrIO                = errors.New("io error")
)

// LoadError describes why an image could not be used.
type LoadError struct {
	Kind error
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Kind == ErrIO && e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Path)
}

func (e *LoadError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Processor handles image processing operations
type Processor struct{}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{}
}

// LoadImage opens and decodes an image file with WebP support. Failures are
// returned as *LoadError.
func (p *Processor) LoadImage(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	if err == nil {
		return img, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &LoadError{Kind: ErrNotFound, Path: path, Err: err}
	}

	// Fallback: explicit WebP decode
	if strings.HasSuffix(strings.ToLower(path), ".webp") {
		f, ferr := os.Open(path)
		if ferr != nil {
			return nil, &LoadError{Kind: ErrIO, Path: path, Err: ferr}
		}
		defer f.Close()
		if wimg, werr := webp.Decode(f); werr == nil {
			return wimg, nil
		}
	}

	if errors.Is(err, image.ErrFormat) {
		return nil, &LoadError{Kind: ErrUnsupportedFormat, Path: path, Err: err}
	}
	return nil, &LoadError{Kind: ErrIO, Path: path, Err: err}
}

// Load opens an image for evaluation: it decodes the file, flattens it to
// opaque RGB and, when maxResolution > 0 and the longer side exceeds it,
// downsizes with a bilinear filter. It returns the scale factor applied
// (1.0 when untouched or on failure).
func (p *Processor) Load(path string, maxResolution int) (image.Image, float64, error) {
	img, err := p.LoadImage(path)
	if err != nil {
		return nil, 1.0, err
	}
	rgb := ToRGB(img)
	resized, scale := Downscale(rgb, maxResolution)
	return resized, scale, nil
}

// ToRGB drops the alpha channel, keeping color values as stored.
func ToRGB(img image.Image) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		c.A = 255
		return c
	})
}

// Downscale shrinks img so its longer side equals maxResolution, preserving
// aspect ratio. Each side is floored to at least one pixel.
func Downscale(img image.Image, maxResolution int) (image.Image, float64) {
	if maxResolution <= 0 {
		return img, 1.0
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	m := max(w, h)
	if m <= maxResolution {
		return img, 1.0
	}

	scale := float64(maxResolution) / float64(m)
	nw := max(1, int(float64(w)*scale))
	nh := max(1, int(float64(h)*scale))
	return imaging.Resize(img, nw, nh, imaging.Linear), scale
}

// ImageSize reads only the header of an image file.
func (p *Processor) ImageSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, 0, &LoadError{Kind: ErrNotFound, Path: path, Err: err}
		}
		return 0, 0, &LoadError{Kind: ErrIO, Path: path, Err: err}
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return 0, 0, &LoadError{Kind: ErrUnsupportedFormat, Path: path, Err: err}
		}
		return 0, 0, &LoadError{Kind: ErrIO, Path: path, Err: err}
	}
	return cfg.Width, cfg.Height, nil
}

// PrepareImageForModel converts an image to base64 for sending to vision models
func (p *Processor) PrepareImageForModel(img image.Image, format string, maxDim int, quality int) (string, error) {
	if maxDim > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > maxDim || h > maxDim {
			if w >= h {
				img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
			}
		}
	}

	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return "", err
		}
	default: // jpg
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return "", err
		}
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// SaveImage saves an image to a file with the specified format and quality
func (p *Processor) SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
		return webp.Encode(f, img, opts)
	case "png":
		return imaging.Save(img, path)
	default: // jpg/jpeg
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	}
}

// CreateDebugOverlay draws the gold box (green) and the predicted box (red)
// over a copy of img. Both boxes must be in img's pixel frame.
func (p *Processor) CreateDebugOverlay(img image.Image, pred, gold types.Box) image.Image {
	nrgba := imaging.Clone(img)
	w := nrgba.Bounds().Dx()
	h := nrgba.Bounds().Dy()

	green := color.NRGBA{0, 200, 0, 255}
	red := color.NRGBA{255, 0, 0, 255}
	stroke := max(2, int(0.003*float64(min(w, h))))

	drawBox(nrgba, gold, green, stroke)
	drawBox(nrgba, pred, red, stroke)

	// predicted center crosshair
	cx, cy := pred.Center()
	px, py := int(cx+0.5), int(cy+0.5)
	cross := max(4, int(0.01*float64(min(w, h))))
	drawHLine(nrgba, py, px-cross, px+cross, red)
	drawVLine(nrgba, px, py-cross, py+cross, red)

	return nrgba
}

func drawBox(img *image.NRGBA, b types.Box, c color.NRGBA, stroke int) {
	x0, y0, x1, y1 := b.X0, b.Y0, b.X1, b.Y1
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}
	for s := 0; s < stroke; s++ {
		drawHLine(img, y0+s, x0, x1, c)
		drawHLine(img, y1-1-s, x0, x1, c)
		drawVLine(img, x0+s, y0, y1, c)
		drawVLine(img, x1-1-s, y0, y1, c)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}

func setPixel(img *image.NRGBA, x, y int, c color.NRGBA) {
	if !(image.Point{x, y}).In(img.Bounds()) {
		return
	}
	i := y*img.Stride + x*4
	img.Pix[i+0] = c.R
	img.Pix[i+1] = c.G
	img.Pix[i+2] = c.B
	img.Pix[i+3] = c.A
}

// drawLine rasterizes a segment with Bresenham's algorithm. dash > 0 skips
// every other run of dash pixels.
func drawLine(img *image.NRGBA, x0, y0, x1, y1 int, c color.NRGBA, dash int) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for n := 0; ; n++ {
		if dash <= 0 || (n/dash)%2 == 0 {
			setPixel(img, x0, y0, c)
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
