package processing

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/stuck-inadream/screenspot-pro/pkg/metrics"
)

// DefaultPlotSize is the edge length of the calibration chart.
const DefaultPlotSize = 400

// CreateCalibrationPlot renders a reliability diagram: the identity line
// dashed in gray and the observed accuracy per confidence bucket in blue.
// Both axes span [0,1].
func (p *Processor) CreateCalibrationPlot(points []metrics.CalibrationPoint, size int) image.Image {
	if size <= 0 {
		size = DefaultPlotSize
	}
	canvas := imaging.New(size, size, color.NRGBA{255, 255, 255, 255})

	margin := max(8, size/10)
	span := size - 2*margin
	if span < 1 {
		span = 1
	}

	toPx := func(v float64) int {
		return margin + int(v*float64(span)+0.5)
	}
	toPy := func(v float64) int {
		return size - margin - int(v*float64(span)+0.5)
	}

	black := color.NRGBA{0, 0, 0, 255}
	gray := color.NRGBA{160, 160, 160, 255}
	blue := color.NRGBA{30, 90, 200, 255}

	// axes
	drawHLine(canvas, size-margin, margin, size-margin+1, black)
	drawVLine(canvas, margin, margin, size-margin+1, black)

	// ticks at 0.1 steps
	for i := 0; i <= 10; i++ {
		x := toPx(float64(i) / 10)
		drawVLine(canvas, x, size-margin, size-margin+4, black)
		drawHLine(canvas, toPy(float64(i)/10), margin-4, margin, black)
	}

	// perfect calibration
	drawLine(canvas, toPx(0), toPy(0), toPx(1), toPy(1), gray, 4)

	var prevX, prevY int
	for i, pt := range points {
		x := toPx(clamp01(pt.Confidence))
		y := toPy(clamp01(pt.Accuracy))
		if i > 0 {
			drawLine(canvas, prevX, prevY, x, y, blue, 0)
		}
		drawMarker(canvas, x, y, 3, blue)
		prevX, prevY = x, y
	}

	return canvas
}

func drawMarker(img *image.NRGBA, x, y, r int, c color.NRGBA) {
	for dy := -r; dy <= r; dy++ {
		drawHLine(img, y+dy, x-r, x+r+1, c)
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
