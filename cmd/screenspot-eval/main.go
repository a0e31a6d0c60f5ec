package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/stuck-inadream/screenspot-pro/internal/config"
	"github.com/stuck-inadream/screenspot-pro/pkg/baseline"
	"github.com/stuck-inadream/screenspot-pro/pkg/log"
	"github.com/stuck-inadream/screenspot-pro/pkg/pipeline"
)

func main() {
	var annotations, root, priors, baselineName string
	var perExample, calibPNG, overlayPNG string
	var maxExamples, maxResolution int
	var noCalibration bool
	var configPath, envFile, logLevel, logFile string

	flag.StringVar(&annotations, "annotations", "", "annotations file (JSON array, JSON lines or {\"data\": [...]})")
	flag.StringVar(&root, "root", "", "dataset root (default: current directory)")
	flag.IntVar(&maxExamples, "subset", 0, "evaluate at most N examples, 0=all")
	flag.IntVar(&maxExamples, "max_examples", 0, "alias of -subset")
	flag.IntVar(&maxResolution, "max_resolution", 0, "downscale screenshots so the long side is at most N px, 0=original")
	flag.StringVar(&baselineName, "baseline", "", "baseline predictor: text or region")
	flag.StringVar(&priors, "priors", "", "region priors file (default: <root>/baselines/screenspot_pro/priors.json)")
	flag.BoolVar(&noCalibration, "no_calibration", false, "leave calibration points out of the summary")

	flag.StringVar(&perExample, "per_example_file", "", "write per-example results as a JSON array")
	flag.StringVar(&calibPNG, "calibration_png", "", "render the calibration plot (png|jpg|webp)")
	flag.StringVar(&overlayPNG, "overlay_png", "", "render pred/gold boxes over the first evaluated screenshot")

	flag.StringVar(&configPath, "config", "", "JSON config file (default: "+config.GetConfigPath()+" if present)")
	flag.StringVar(&envFile, "env", ".env", "dotenv file with SCREENSPOT_* overrides")
	flag.StringVar(&logLevel, "log_level", "", "log level: debug|info|warn|error")
	flag.StringVar(&logFile, "log_file", "", "also write logs to this rotating file")
	flag.Parse()

	if annotations == "" {
		fmt.Fprintf(os.Stderr, "usage: %s -annotations FILE [-root DIR] [-subset N] [-max_resolution N] [-baseline text|region] [-per_example_file FILE] [-calibration_png FILE]\n", filepath.Base(os.Args[0]))
		os.Exit(2)
	}

	if configPath == "" {
		configPath = config.GetConfigPath()
	}
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		fail("failed to load configuration", err)
	}

	// explicit flags win over file and environment
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "root":
			cfg.Eval.Root = root
		case "subset", "max_examples":
			cfg.Eval.MaxExamples = maxExamples
		case "max_resolution":
			cfg.Eval.MaxResolution = maxResolution
		case "baseline":
			cfg.Eval.Baseline = baselineName
		case "priors":
			cfg.Eval.PriorsPath = priors
		case "no_calibration":
			cfg.Eval.Calibration = !noCalibration
		case "per_example_file":
			cfg.Output.PerExampleFile = perExample
		case "calibration_png":
			cfg.Output.CalibrationPNG = calibPNG
		case "overlay_png":
			cfg.Output.OverlayPNG = overlayPNG
		case "log_level":
			cfg.Log.Level = logLevel
		case "log_file":
			cfg.Log.File = logFile
		}
	})

	if err := cfg.Validate(); err != nil {
		fail("invalid configuration", err)
	}
	if err := log.Configure(log.Options{Level: cfg.Log.Level, File: cfg.Log.File, NoColors: cfg.Log.NoColors}); err != nil {
		fail("failed to configure logging", err)
	}

	driver, err := pipeline.New(pipeline.Options{
		AnnotationsPath: annotations,
		Root:            cfg.Eval.Root,
		PriorsPath:      cfg.ResolvedPriorsPath(),
		MaxExamples:     cfg.Eval.MaxExamples,
		MaxResolution:   cfg.Eval.MaxResolution,
		Baseline:        baseline.Kind(cfg.Eval.Baseline),
		Calibration:     cfg.Eval.Calibration,
		PerExampleFile:  cfg.Output.PerExampleFile,
		CalibrationPNG:  cfg.Output.CalibrationPNG,
		OverlayPNG:      cfg.Output.OverlayPNG,
		PlotSize:        cfg.Output.PlotSize,
		Quality:         cfg.Output.Quality,
	})
	if err != nil {
		fail("failed to set up evaluation", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := driver.Run(ctx)
	if err != nil {
		fail("evaluation failed", err)
	}
	if err := driver.WriteOutputs(res); err != nil {
		fail("failed to write outputs", err)
	}

	js, err := res.Report.JSON()
	if err != nil {
		fail("failed to encode summary", err)
	}
	fmt.Println(string(js))
}

func fail(msg string, err error) {
	log.Error(log.Fields{"error": err.Error()}, msg)
	os.Exit(1)
}
