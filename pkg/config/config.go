// Package config provides configuration loading and management for ploidyanalysis.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"ploidyanalysis/pkg/overlay"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Input directories, each holding one raster per series
	Input struct {
		// DNADir contains the DNA stain images (e.g. DAPI)
		DNADir string `yaml:"dnaDir"`

		// MarkerDir contains the cell-type marker images
		MarkerDir string `yaml:"markerDir"`

		// CellCycleDir contains the cell-cycle marker images
		CellCycleDir string `yaml:"cellCycleDir"`

		// NuclearLabelDir contains the nuclear segmentation masks
		NuclearLabelDir string `yaml:"nuclearLabelDir"`

		// MarkerLabelDir contains the marker segmentation masks
		MarkerLabelDir string `yaml:"markerLabelDir"`
	} `yaml:"input"`

	// Channel column prefixes
	Channels struct {
		// Marker names the cell-type marker columns, e.g. "SOX2"
		Marker string `yaml:"marker"`

		// CellCycle names the cell-cycle marker columns, e.g. "EdU"
		CellCycle string `yaml:"cellCycle"`
	} `yaml:"channels"`

	// Label reconciliation parameters
	Reconcile struct {
		// Enabled runs match, prune and reindex before measuring
		Enabled bool `yaml:"enabled"`

		// SkipMatch treats the nuclear labels as already matched
		SkipMatch bool `yaml:"skipMatch"`

		// MaxPrunePasses bounds the prune loop
		MaxPrunePasses int `yaml:"maxPrunePasses"`
	} `yaml:"reconcile"`

	// Measurement parameters
	Measure struct {
		// PerimeterNeighborhood is 4 or 8
		PerimeterNeighborhood int `yaml:"perimeterNeighborhood"`
	} `yaml:"measure"`

	// Processing parameters
	Processing struct {
		// NumWorkers specifies how many series are processed concurrently
		NumWorkers int `yaml:"numWorkers"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// Dir receives the feature table, reconciled labels and overlays
		Dir string `yaml:"dir"`

		// TableFile is the feature table filename inside Dir
		TableFile string `yaml:"tableFile"`

		// SaveLabels writes the reconciled label images
		SaveLabels bool `yaml:"saveLabels"`

		// SaveOverlays writes a label overlay per series
		SaveOverlays bool `yaml:"saveOverlays"`

		// OverlayAlpha is the label opacity of overlays
		OverlayAlpha float64 `yaml:"overlayAlpha"`

		// OverlayContrastLo and OverlayContrastHi are the display range of
		// overlays; equal values stretch each image to its own range
		OverlayContrastLo float64 `yaml:"overlayContrastLo"`
		OverlayContrastHi float64 `yaml:"overlayContrastHi"`

		// OverlayColorMode is "label", "cell_cycle", "ploidy" or "cell_type"
		OverlayColorMode string `yaml:"overlayColorMode"`

		// OverlayClassFile is a classification CSV (series, label, cell,
		// cell_cycle, ploidy, cell_type) required by the classified modes
		OverlayClassFile string `yaml:"overlayClassFile"`
	} `yaml:"output"`

	// Logging parameters
	Logging struct {
		// Level is a zerolog level name (debug, info, warn, error)
		Level string `yaml:"level"`

		// Format is "console" or "json"
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Channels.Marker = "mark"
	cfg.Channels.CellCycle = "cc"

	cfg.Reconcile.Enabled = true
	cfg.Reconcile.SkipMatch = false
	cfg.Reconcile.MaxPrunePasses = 16

	cfg.Measure.PerimeterNeighborhood = 4

	cfg.Processing.NumWorkers = runtime.NumCPU() // Use all available cores by default

	cfg.Output.Dir = "results"
	cfg.Output.TableFile = "features.csv"
	cfg.Output.SaveLabels = true
	cfg.Output.SaveOverlays = false
	cfg.Output.OverlayAlpha = 0.4
	cfg.Output.OverlayColorMode = "label"

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "console"

	return cfg
}

// Validate checks value ranges that the pipeline relies on
func (c *Config) Validate() error {
	var errs []error

	if c.Measure.PerimeterNeighborhood != 4 && c.Measure.PerimeterNeighborhood != 8 {
		errs = append(errs, fmt.Errorf("measure.perimeterNeighborhood must be 4 or 8, got %d", c.Measure.PerimeterNeighborhood))
	}
	if c.Processing.NumWorkers < 1 {
		errs = append(errs, fmt.Errorf("processing.numWorkers must be at least 1, got %d", c.Processing.NumWorkers))
	}
	if c.Output.OverlayAlpha < 0 || c.Output.OverlayAlpha > 1 {
		errs = append(errs, fmt.Errorf("output.overlayAlpha must be within [0, 1], got %f", c.Output.OverlayAlpha))
	}
	if c.Output.OverlayContrastHi < c.Output.OverlayContrastLo {
		errs = append(errs, fmt.Errorf("output.overlayContrastHi (%g) must not be below output.overlayContrastLo (%g)",
			c.Output.OverlayContrastHi, c.Output.OverlayContrastLo))
	}
	if mode, err := overlay.ParseColorMode(c.Output.OverlayColorMode); err != nil {
		errs = append(errs, fmt.Errorf("output.overlayColorMode: %w", err))
	} else if mode != overlay.ModeLabel && c.Output.OverlayClassFile == "" {
		errs = append(errs, fmt.Errorf("output.overlayColorMode %q requires output.overlayClassFile", c.Output.OverlayColorMode))
	}
	if c.Channels.Marker == "" || c.Channels.CellCycle == "" {
		errs = append(errs, errors.New("channels.marker and channels.cellCycle must not be empty"))
	}
	if c.Channels.Marker == "nuc" || c.Channels.CellCycle == "nuc" || c.Channels.Marker == c.Channels.CellCycle {
		errs = append(errs, errors.New("channel names must be distinct and differ from \"nuc\""))
	}

	return errors.Join(errs...)
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
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

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
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
