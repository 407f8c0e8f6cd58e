// Package config provides configuration loading and management for bratseval.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Evaluation parameters for the batch evaluator
	Evaluation struct {
		// DataDir is the folder holding the generated sample files
		DataDir string `yaml:"dataDir"`

		// OutputDir receives metrics.csv and total.csv
		OutputDir string `yaml:"outputDir"`

		// Extension selects which files in DataDir are samples
		Extension string `yaml:"extension"`

		// Region is the tumor region scored against (ET, TC or WT)
		Region string `yaml:"region"`

		// ScoreKind is "abs" or "squared"
		ScoreKind string `yaml:"scoreKind"`

		// Threshold is the fixed operating threshold for use-threshold runs
		Threshold float64 `yaml:"threshold"`

		// Denoise clips score maps to the [1st, 99th] percentile before
		// thresholding. Nil means the mode default.
		Denoise *bool `yaml:"denoise,omitempty"`

		// MinPositivePixels is the smallest tumor area that still counts
		// as an anomalous slice for AUROC
		MinPositivePixels int `yaml:"minPositivePixels"`

		// Epsilon smooths the Dice ratio
		Epsilon float64 `yaml:"epsilon"`

		// StoreData writes one metrics.csv row per evaluated sample
		StoreData bool `yaml:"storeData"`
	} `yaml:"evaluation"`

	// Plotting parameters
	Plotting struct {
		// NumColumns is the subplot grid width for training curves
		NumColumns int `yaml:"numColumns"`

		// WarmUpSteps excludes early steps from the y-axis range
		WarmUpSteps int `yaml:"warmUpSteps"`

		// SkipMetrics lists progress columns that are not plotted
		SkipMetrics []string `yaml:"skipMetrics"`

		// WidthInches and HeightInches size the output figure
		WidthInches  float64 `yaml:"widthInches"`
		HeightInches float64 `yaml:"heightInches"`

		// DPI is the output resolution
		DPI int `yaml:"dpi"`
	} `yaml:"plotting"`

	// Driver parameters for the sampling glue
	Driver struct {
		// Workers is the number of parallel sampling ranks
		Workers int `yaml:"workers"`

		// BatchSize is the number of slices per model call
		BatchSize int `yaml:"batchSize"`

		// LimitBatches caps batches per worker; -1 means unlimited
		LimitBatches int `yaml:"limitBatches"`

		// ShiftingZ enables moving z along the linear discriminant
		ShiftingZ bool `yaml:"shiftingZ"`

		// AnomalyScore is the discriminant value z is shifted to
		AnomalyScore float64 `yaml:"anomalyScore"`

		// LinearPath is an npz with "weight" and "bias"
		LinearPath string `yaml:"linearPath"`

		// ZStatePath is an npz with "z_mean" and "z_std"
		ZStatePath string `yaml:"zStatePath"`

		// OutputDir receives samples_<idx>.npy
		OutputDir string `yaml:"outputDir"`
	} `yaml:"driver"`

	// Logging parameters
	Logging struct {
		// Level is one of debug, info, warn, error
		Level string `yaml:"level"`

		// JSON switches from console output to JSON lines
		JSON bool `yaml:"json"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Evaluation.DataDir = "output/anomaly_detection/val"
	cfg.Evaluation.OutputDir = "output/anomaly_detection"
	cfg.Evaluation.Extension = ".npy"
	cfg.Evaluation.Region = "WT"
	cfg.Evaluation.ScoreKind = "abs"
	cfg.Evaluation.Threshold = 0.0817678607279089
	cfg.Evaluation.MinPositivePixels = 200
	cfg.Evaluation.Epsilon = 1e-6
	cfg.Evaluation.StoreData = true

	cfg.Plotting.NumColumns = 4
	cfg.Plotting.WarmUpSteps = 4000
	cfg.Plotting.SkipMetrics = []string{"step", "samples"}
	cfg.Plotting.WidthInches = 12
	cfg.Plotting.HeightInches = 10
	cfg.Plotting.DPI = 150

	cfg.Driver.Workers = 1
	cfg.Driver.BatchSize = 16
	cfg.Driver.LimitBatches = -1
	cfg.Driver.AnomalyScore = -3
	cfg.Driver.OutputDir = "output/anomaly_detection"

	cfg.Logging.Level = "info"

	return cfg
}

// Validate reports the first configuration value that cannot be used
func (c *Config) Validate() error {
	switch c.Evaluation.ScoreKind {
	case "abs", "squared":
	default:
		return fmt.Errorf("evaluation.scoreKind must be abs or squared, got %q", c.Evaluation.ScoreKind)
	}
	if c.Evaluation.MinPositivePixels < 0 {
		return fmt.Errorf("evaluation.minPositivePixels must be non-negative")
	}
	if c.Evaluation.Epsilon < 0 {
		return fmt.Errorf("evaluation.epsilon must be non-negative")
	}
	if c.Plotting.NumColumns < 1 {
		return fmt.Errorf("plotting.numColumns must be at least 1")
	}
	if c.Driver.Workers < 1 {
		return fmt.Errorf("driver.workers must be at least 1")
	}
	if c.Driver.BatchSize < 1 {
		return fmt.Errorf("driver.batchSize must be at least 1")
	}
	return nil
}

// LoadConfig reads configPath over the defaults. A missing or empty file
// yields the defaults; unknown keys are rejected so that a misspelt
// setting does not silently fall back to its default.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()
	if configPath == "" {
		return cfg, nil
	}

	f, err := os.Open(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("error parsing config file %s: %w", configPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to configPath with two-space indentation,
// creating parent directories as needed
func SaveConfig(cfg *Config, configPath string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	f, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		f.Close()
		return fmt.Errorf("error marshaling config: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("error marshaling config: %w", err)
	}
	return f.Close()
}

// CreateDefaultConfigFile writes the defaults to configPath
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}
