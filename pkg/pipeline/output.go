package pipeline

import (
	"encoding/json"
	"fmt"
	"image"

	"github.com/stuck-inadream/screenspot-pro/internal/utils"
	"github.com/stuck-inadream/screenspot-pro/pkg/log"
	"github.com/stuck-inadream/screenspot-pro/pkg/metrics"
	"github.com/stuck-inadream/screenspot-pro/pkg/types"
)

// JSON renders the report as indented JSON. Strata fields are left out
// entirely for an empty run.
func (r Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// WriteOutputs writes the optional artifacts configured in Options. Images
// are only rendered when at least one example was evaluated.
func (d *Driver) WriteOutputs(res *Result) error {
	if path := d.opts.PerExampleFile; path != "" {
		rows := res.Rows
		if rows == nil {
			rows = []types.Row{}
		}
		if err := utils.WriteJSON(path, rows); err != nil {
			return err
		}
		log.Info(log.Fields{"path": path, "rows": len(rows)}, "per-example results written")
	}

	if len(res.Scored) == 0 {
		return nil
	}

	if path := d.opts.CalibrationPNG; path != "" {
		points := res.Report.Calibration
		if points == nil {
			points = metrics.Summarize(res.Scored, true).Calibration
		}
		plot := d.processor.CreateCalibrationPlot(points, d.opts.PlotSize)
		if err := d.saveImage(plot, path); err != nil {
			return fmt.Errorf("failed to write calibration plot: %w", err)
		}
		log.Info(log.Fields{"path": path, "points": len(points)}, "calibration plot written")
	}

	if path := d.opts.OverlayPNG; path != "" && res.firstImage != nil {
		first := res.Scored[0]
		overlay := d.processor.CreateDebugOverlay(res.firstImage, first.Prediction.Box, first.GoldBox)
		if err := d.saveImage(overlay, path); err != nil {
			return fmt.Errorf("failed to write overlay: %w", err)
		}
		log.Info(log.Fields{"path": path, "example": first.Example.ID}, "debug overlay written")
	}
	return nil
}

func (d *Driver) saveImage(img image.Image, path string) error {
	if err := utils.EnsureParentDir(path); err != nil {
		return err
	}
	quality := d.opts.Quality
	if quality <= 0 {
		quality = 90
	}
	return d.processor.SaveImage(img, path, utils.ImageFormat(path), quality, true)
}
