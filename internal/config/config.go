package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	jsoniter "github.com/json-iterator/go"

	"github.com/stuck-inadream/screenspot-pro/internal/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Environment variables read by ApplyEnv.
const (
	EnvRoot          = "SCREENSPOT_ROOT"
	EnvPriors        = "SCREENSPOT_PRIORS"
	EnvMaxResolution = "SCREENSPOT_MAX_RESOLUTION"
	EnvBaseline      = "SCREENSPOT_BASELINE"
	EnvLogLevel      = "SCREENSPOT_LOG_LEVEL"
	EnvLogFile       = "SCREENSPOT_LOG_FILE"
	EnvOllamaURL     = "OLLAMA_URL"
	EnvOllamaModel   = "OLLAMA_MODEL"
)

// DefaultPriorsPath is where the region priors live relative to the root.
var DefaultPriorsPath = filepath.Join("baselines", "screenspot_pro", "priors.json")

// Config holds the application configuration
type Config struct {
	Eval   EvalConfig   `json:"eval"`
	Output OutputConfig `json:"output"`
	Log    LogConfig    `json:"log"`
	Model  ModelConfig  `json:"model"`
}

// EvalConfig holds configuration for an evaluation run
type EvalConfig struct {
	Root          string `json:"root"`
	PriorsPath    string `json:"priors_path"`
	MaxExamples   int    `json:"max_examples" validate:"gte=0"`
	MaxResolution int    `json:"max_resolution" validate:"gte=0"`
	Baseline      string `json:"baseline" validate:"oneof=text region"`
	Calibration   bool   `json:"calibration"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	PerExampleFile string `json:"per_example_file"`
	CalibrationPNG string `json:"calibration_png"`
	OverlayPNG     string `json:"overlay_png"`
	PlotSize       int    `json:"plot_size" validate:"gte=64,lte=4096"`
	Quality        int    `json:"quality" validate:"gte=1,lte=100"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level    string `json:"level" validate:"oneof=trace debug info warn warning error fatal panic"`
	File     string `json:"file"`
	NoColors bool   `json:"no_colors"`
}

// ModelConfig holds the grounding model backend settings
type ModelConfig struct {
	Backend   string `json:"backend" validate:"oneof=ollama llamacpp"`
	URL       string `json:"url" validate:"omitempty,url"`
	Name      string `json:"name"`
	TimeoutS  int    `json:"timeout_s" validate:"gte=0"`
	MaxImgDim int    `json:"max_image_dim" validate:"gte=0"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Eval: EvalConfig{
			Root:          ".",
			PriorsPath:    DefaultPriorsPath,
			MaxExamples:   0,
			MaxResolution: 0,
			Baseline:      "region",
			Calibration:   true,
		},
		Output: OutputConfig{
			PlotSize: 400,
			Quality:  90,
		},
		Log: LogConfig{
			Level: "info",
		},
		Model: ModelConfig{
			Backend:   "ollama",
			URL:       "http://localhost:11434",
			Name:      "qwen2.5vl:7b",
			TimeoutS:  300,
			MaxImgDim: 1280,
		},
	}
}

// LoadFromFile loads configuration from a JSON file on top of the defaults
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Load resolves the effective configuration: defaults, then the file at
// path (when it is a regular file), then .env files and the environment.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()
	if path != "" && utils.FileExists(path) {
		loaded, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := LoadDotEnv(envFiles...); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv() error {
	if v, ok := lookup(EnvRoot); ok {
		c.Eval.Root = v
	}
	if v, ok := lookup(EnvPriors); ok {
		c.Eval.PriorsPath = v
	}
	if v, ok := lookup(EnvMaxResolution); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, EnvMaxResolution, v)
		}
		c.Eval.MaxResolution = n
	}
	if v, ok := lookup(EnvBaseline); ok {
		c.Eval.Baseline = v
	}
	if v, ok := lookup(EnvLogLevel); ok {
		c.Log.Level = strings.ToLower(v)
	}
	if v, ok := lookup(EnvLogFile); ok {
		c.Log.File = v
	}
	if v, ok := lookup(EnvOllamaURL); ok {
		c.Model.URL = v
	}
	if v, ok := lookup(EnvOllamaModel); ok {
		c.Model.Name = v
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// ResolvedPriorsPath returns the priors path, joined with the root when relative.
func (c *Config) ResolvedPriorsPath() string {
	p := c.Eval.PriorsPath
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Eval.Root, p)
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	err := v.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		// Namespace is "Config.eval.max_resolution"
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		return fmt.Errorf("%w: %s failed %q (value %v)", ErrInvalid, field, fe.Tag(), fe.Value())
	}
	return fmt.Errorf("%w: %v", ErrInvalid, err)
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "screenspot-pro", "config.json")
}
