// Package config provides configuration loading and management for dvhcalc.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"dvhcalc/pkg/batch"
	"dvhcalc/pkg/dose"
	"dvhcalc/pkg/dvh"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores is the number of structures calculated in parallel
		NumCores int `yaml:"numCores"`

		// BinSize is the DVH bin width in cGy
		BinSize float64 `yaml:"binSize"`

		// Upsample enables the up-sampled pipeline for small structures
		Upsample bool `yaml:"upsample"`

		// DeltaMM is the x, y, z resolution of the up-sampled grid in mm
		DeltaMM [3]float64 `yaml:"deltaMM,flow"`

		// EndCap caps every small structure
		EndCap bool `yaml:"endCap"`

		// SmallVolumeCC is the volume below which a structure is small
		SmallVolumeCC float64 `yaml:"smallVolumeCC"`

		// SliceTolerance is the z distance (mm) within which a dose slice is
		// used directly instead of interpolated
		SliceTolerance float64 `yaml:"sliceTolerance"`

		// Prescription is the reference dose in cGy for the homogeneity and
		// gradient indices; 0 disables them
		Prescription float64 `yaml:"prescription"`

		// External is the name of the body structure used for the gradient
		// index
		External string `yaml:"external"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`

		// ExtractSlices writes dose slice images next to the results
		ExtractSlices bool `yaml:"extractSlices"`

		// SlicesDir is the directory for extracted dose slices
		SlicesDir string `yaml:"slicesDir"`
	} `yaml:"output"`

	// Server parameters
	Server struct {
		// Addr is the listen address of the HTTP API
		Addr string `yaml:"addr"`
	} `yaml:"server"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}
	opts := dvh.DefaultOptions()

	cfg.Processing.NumCores = runtime.NumCPU()
	cfg.Processing.BinSize = opts.BinSize
	cfg.Processing.Upsample = false
	cfg.Processing.DeltaMM = opts.DeltaMM
	cfg.Processing.EndCap = false
	cfg.Processing.SmallVolumeCC = opts.SmallVolumeCC
	cfg.Processing.SliceTolerance = dose.DefaultSliceTolerance
	cfg.Processing.Prescription = 0
	cfg.Processing.External = "BODY"

	cfg.Output.Verbose = true
	cfg.Output.ExtractSlices = false
	cfg.Output.SlicesDir = "dose_slices"

	cfg.Server.Addr = ":8080"

	return cfg
}

// EngineOptions converts the processing section into engine options.
func (c *Config) EngineOptions() dvh.Options {
	return dvh.Options{
		BinSize:       c.Processing.BinSize,
		Upsample:      c.Processing.Upsample,
		DeltaMM:       c.Processing.DeltaMM,
		EndCap:        c.Processing.EndCap,
		SmallVolumeCC: c.Processing.SmallVolumeCC,
	}
}

// Indices returns the plan indices requested for run reports.
func (c *Config) Indices() batch.Indices {
	return batch.Indices{
		Prescription: c.Processing.Prescription,
		External:     c.Processing.External,
	}
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Processing.BinSize <= 0 {
		return fmt.Errorf("config: binSize must be positive, got %v", c.Processing.BinSize)
	}
	for i, d := range c.Processing.DeltaMM {
		if d <= 0 {
			return fmt.Errorf("config: deltaMM[%d] must be positive, got %v", i, d)
		}
	}
	if c.Processing.Prescription < 0 {
		return fmt.Errorf("config: prescription must not be negative, got %v", c.Processing.Prescription)
	}
	if c.Processing.SliceTolerance < 0 {
		return fmt.Errorf("config: sliceTolerance must not be negative, got %v", c.Processing.SliceTolerance)
	}
	return nil
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
	return SaveConfig(DefaultConfig(), configPath)
}
