package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/stuck-inadream/screenspot-pro/internal/config"
	"github.com/stuck-inadream/screenspot-pro/pkg/baseline"
	"github.com/stuck-inadream/screenspot-pro/pkg/client"
	"github.com/stuck-inadream/screenspot-pro/pkg/dataset"
	"github.com/stuck-inadream/screenspot-pro/pkg/detection"
	"github.com/stuck-inadream/screenspot-pro/pkg/llamacpp"
	"github.com/stuck-inadream/screenspot-pro/pkg/log"
	"github.com/stuck-inadream/screenspot-pro/pkg/ollama"
	"github.com/stuck-inadream/screenspot-pro/pkg/processing"
	"github.com/stuck-inadream/screenspot-pro/pkg/reward"
	"github.com/stuck-inadream/screenspot-pro/pkg/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type line struct {
	ID     string        `json:"id"`
	Answer string        `json:"answer"`
	Result reward.Result `json:"reward"`
}

func main() {
	var annotations, root, answersPath, backend, url, model string
	var maxExamples, maxResolution int
	var configPath, envFile string
	var probe bool

	flag.StringVar(&annotations, "annotations", "", "annotations file")
	flag.StringVar(&root, "root", "", "dataset root (default: current directory)")
	flag.IntVar(&maxExamples, "subset", 0, "score at most N examples, 0=all")
	flag.IntVar(&maxResolution, "max_resolution", 0, "long-side cap of the frame sent to the model, 0=original")
	flag.StringVar(&answersPath, "answers", "", "JSON lines of {id, answer}; when empty the model is queried")
	flag.StringVar(&backend, "backend", "", "model backend: ollama or llamacpp")
	flag.StringVar(&url, "url", "", "model server URL")
	flag.StringVar(&model, "model", "", "model name")
	flag.BoolVar(&probe, "probe", false, "ask the model to describe the first screenshot before scoring")
	flag.StringVar(&configPath, "config", "", "JSON config file")
	flag.StringVar(&envFile, "env", ".env", "dotenv file")
	flag.Parse()

	if annotations == "" {
		fmt.Fprintf(os.Stderr, "usage: %s -annotations FILE [-answers FILE | -backend ollama|llamacpp -model NAME]\n", filepath.Base(os.Args[0]))
		os.Exit(2)
	}

	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		fail("failed to load configuration", err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "root":
			cfg.Eval.Root = root
		case "subset":
			cfg.Eval.MaxExamples = maxExamples
		case "max_resolution":
			cfg.Eval.MaxResolution = maxResolution
		case "backend":
			cfg.Model.Backend = backend
		case "url":
			cfg.Model.URL = url
		case "model":
			cfg.Model.Name = model
		}
	})
	if err := cfg.Validate(); err != nil {
		fail("invalid configuration", err)
	}
	if err := log.Configure(log.Options{Level: cfg.Log.Level, File: cfg.Log.File, NoColors: cfg.Log.NoColors}); err != nil {
		fail("failed to configure logging", err)
	}

	ds, err := dataset.LoadFile(annotations, cfg.Eval.Root, cfg.Eval.MaxExamples)
	if err != nil {
		fail("failed to load annotations", err)
	}
	scorer := reward.NewScorer(baseline.NewRegionPrior(), baseline.NewPriorsStore(cfg.ResolvedPriorsPath()))

	var lines []line
	if answersPath != "" {
		answers, err := reward.LoadAnswers(answersPath)
		if err != nil {
			fail("failed to load answers", err)
		}
		for _, ex := range ds.Examples {
			ans := answers[ex.ID]
			lines = append(lines, line{ID: ex.ID, Answer: ans, Result: scorer.Score(ex, ans)})
		}
	} else {
		lines = queryModel(cfg, ds.Examples, scorer, probe)
	}

	for _, l := range lines {
		log.Debug(log.Fields{"example": l.ID, "iou": l.Result.IoU, "fallback": l.Result.Fallback}, "answer scored")
	}

	js, err := summarize(lines).JSON()
	if err != nil {
		fail("failed to encode rewards", err)
	}
	fmt.Println(string(js))
}

type summary struct {
	Count      int     `json:"count"`
	MeanReward float64 `json:"mean_reward"`
	Results    []line  `json:"results"`
}

func summarize(lines []line) summary {
	s := summary{Count: len(lines), Results: lines}
	if s.Results == nil {
		s.Results = []line{}
	}
	total := 0.0
	for _, l := range lines {
		total += l.Result.Total
	}
	if len(lines) > 0 {
		s.MeanReward = total / float64(len(lines))
	}
	return s
}

func (s summary) JSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

func queryModel(cfg *config.Config, examples []types.Example, scorer *reward.Scorer, probe bool) []line {
	var gc client.GroundingClient
	var err error
	switch cfg.Model.Backend {
	case "llamacpp":
		u := cfg.Model.URL
		if u == "" || u == config.Default().Model.URL {
			u = llamacpp.DefaultURL
		}
		gc, err = llamacpp.NewClient(u)
	default:
		gc, err = ollama.NewClient(cfg.Model.URL)
	}
	if err != nil {
		fail("failed to create model client", err)
	}

	locator := detection.NewLocator(gc)
	processor := processing.NewProcessor()
	timeout := time.Duration(cfg.Model.TimeoutS) * time.Second

	var lines []line
	for i, ex := range examples {
		img, scale, err := processor.Load(ex.ImagePath, cfg.Eval.MaxResolution)
		if err != nil {
			log.Warn(log.Fields{"example": ex.ID, "reason": err.Error()}, "example skipped")
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if probe && i == 0 {
			desc, err := locator.TestVision(ctx, cfg.Model.Name, img)
			if err != nil {
				log.Warn(log.Fields{"error": err.Error()}, "vision probe failed")
			} else {
				log.Info(log.Fields{"description": desc}, "vision probe")
			}
		}
		ans, err := locator.Locate(ctx, cfg.Model.Name, img, ex.Instruction)
		cancel()
		if err != nil {
			log.Warn(log.Fields{"example": ex.ID, "error": err.Error()}, "model query failed, scoring empty answer")
		}

		text := ans.String()
		lines = append(lines, line{ID: ex.ID, Answer: text, Result: scorer.ScoreInFrame(ex, text, scale)})
	}
	return lines
}

func fail(msg string, err error) {
	log.Error(log.Fields{"error": err.Error()}, msg)
	os.Exit(1)
}
