// Package config provides configuration loading and management for volprep.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"volprep/pkg/interpolation"
	"volprep/pkg/preprocess"
	"volprep/pkg/resample"
	"volprep/pkg/store"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// ImageShape is the spatial shape every image is resized to. Empty keeps
		// the decoded shape.
		ImageShape []int `yaml:"imageShape"`

		// Interpolation is the kernel for feature images
		Interpolation string `yaml:"interpolation"`

		// LabelInterpolation is the kernel for target images
		LabelInterpolation string `yaml:"labelInterpolation"`

		BackgroundCorrection bool   `yaml:"backgroundCorrection"`
		PadMode              string `yaml:"padMode"`

		// Crop is an optional [start, stop) box applied before resizing
		Crop *struct {
			Start [3]int `yaml:"start"`
			Stop  [3]int `yaml:"stop"`
		} `yaml:"crop,omitempty"`
	} `yaml:"processing"`

	// Store parameters
	Store struct {
		// Backend is one of memory, dir or redis
		Backend        string `yaml:"backend"`
		Path           string `yaml:"path"`
		RedisAddr      string `yaml:"redisAddr"`
		RedisPrefix    string `yaml:"redisPrefix"`
		AllowOverwrite bool   `yaml:"allowOverwrite"`
	} `yaml:"store"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	// Output parameters
	Output struct {
		// PreviewDir receives JPEG slices of each stored subject when set
		PreviewDir string `yaml:"previewDir"`

		// Verbose forces debug logging
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.ImageShape = []int{128, 128, 128}
	cfg.Processing.Interpolation = interpolation.Linear.String()
	cfg.Processing.LabelInterpolation = interpolation.Nearest.String()
	cfg.Processing.BackgroundCorrection = false
	cfg.Processing.PadMode = string(resample.PadEdge)

	cfg.Store.Backend = store.BackendDir
	cfg.Store.Path = "data"
	cfg.Store.RedisAddr = "localhost:6379"
	cfg.Store.RedisPrefix = "volprep"

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"

	cfg.Output.Verbose = false

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// Validate checks that every named kind, mode and backend is known.
func (c *Config) Validate() error {
	if _, err := interpolation.ParseKind(c.Processing.Interpolation); err != nil {
		return fmt.Errorf("%w: processing.interpolation: %v", ErrInvalidConfig, err)
	}
	if _, err := interpolation.ParseKind(c.Processing.LabelInterpolation); err != nil {
		return fmt.Errorf("%w: processing.labelInterpolation: %v", ErrInvalidConfig, err)
	}
	if _, err := resample.ParsePadMode(c.Processing.PadMode); err != nil {
		return fmt.Errorf("%w: processing.padMode: %v", ErrInvalidConfig, err)
	}
	if n := len(c.Processing.ImageShape); n != 0 && n != 3 {
		return fmt.Errorf("%w: processing.imageShape needs 3 axes, got %d", ErrInvalidConfig, n)
	}
	for _, s := range c.Processing.ImageShape {
		if s <= 0 {
			return fmt.Errorf("%w: processing.imageShape %v has a non-positive axis", ErrInvalidConfig, c.Processing.ImageShape)
		}
	}
	if b := c.Processing.Crop; b != nil {
		for i := 0; i < 3; i++ {
			if b.Start[i] < 0 || b.Stop[i] <= b.Start[i] {
				return fmt.Errorf("%w: processing.crop %v..%v is empty on axis %d", ErrInvalidConfig, b.Start, b.Stop, i)
			}
		}
	}
	switch c.Store.Backend {
	case store.BackendMemory, store.BackendDir, store.BackendRedis:
	default:
		return fmt.Errorf("%w: unknown store.backend %q", ErrInvalidConfig, c.Store.Backend)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: unknown logging.format %q", ErrInvalidConfig, c.Logging.Format)
	}
	return nil
}

// ReadOptions converts the processing section for a feature image. Call
// Validate first.
func (c *Config) ReadOptions() preprocess.ReadOptions {
	kind, _ := interpolation.ParseKind(c.Processing.Interpolation)
	mode, _ := resample.ParsePadMode(c.Processing.PadMode)
	opts := preprocess.ReadOptions{
		Shape:                c.Processing.ImageShape,
		Interpolation:        kind,
		BackgroundCorrection: c.Processing.BackgroundCorrection,
		PadMode:              mode,
	}
	if b := c.Processing.Crop; b != nil {
		opts.Crop = &preprocess.Box{Start: b.Start, Stop: b.Stop}
	}
	return opts
}

// LabelReadOptions is ReadOptions with the label kernel and no background
// correction.
func (c *Config) LabelReadOptions() preprocess.ReadOptions {
	opts := c.ReadOptions()
	opts.Interpolation, _ = interpolation.ParseKind(c.Processing.LabelInterpolation)
	opts.BackgroundCorrection = false
	return opts
}
