package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the path to the canonical growth defaults file.
const DefaultConfigPath = "config/growth.defaults.json"

// StretchCount is the number of height bands a growth model is stratified by.
const StretchCount = 6

// GrowthConfig holds the parameters of an estimation run. Nil fields fall back
// to the defaults returned by the Get* accessors, so partial files are safe.
// Environment variables override file values when ApplyEnv is called.
type GrowthConfig struct {
	// Grid
	Resolution *float64 `json:"resolution,omitempty" yaml:"resolution,omitempty" env:"GROWTH_RESOLUTION"`
	CRS        *string  `json:"crs,omitempty" yaml:"crs,omitempty" env:"GROWTH_CRS"`

	// Scheduling
	Concurrent *bool `json:"concurrent,omitempty" yaml:"concurrent,omitempty" env:"GROWTH_CONCURRENT"`
	Workers    *int  `json:"workers,omitempty" yaml:"workers,omitempty" env:"GROWTH_WORKERS"`

	// Statistics
	MinSamples *int     `json:"min_samples,omitempty" yaml:"min_samples,omitempty" env:"GROWTH_MIN_SAMPLES"`
	Percentile *float64 `json:"percentile,omitempty" yaml:"percentile,omitempty" env:"GROWTH_PERCENTILE"`

	// Input classification
	MinYear           *int      `json:"min_year,omitempty" yaml:"min_year,omitempty" env:"GROWTH_MIN_YEAR"`
	YearDelimiter     *string   `json:"year_delimiter,omitempty" yaml:"year_delimiter,omitempty" env:"GROWTH_YEAR_DELIMITER"`
	VegetationClasses []int     `json:"vegetation_classes,omitempty" yaml:"vegetation_classes,omitempty" env:"GROWTH_VEGETATION_CLASSES" envSeparator:","`
	Stretches         []float64 `json:"stretches,omitempty" yaml:"stretches,omitempty" env:"GROWTH_STRETCHES" envSeparator:","`
}

// EmptyGrowthConfig returns a GrowthConfig with all fields unset.
func EmptyGrowthConfig() *GrowthConfig {
	return &GrowthConfig{}
}

// LoadGrowthConfig loads a GrowthConfig from a JSON or YAML file.
// The file must have a .json, .yaml or .yml extension and be under 1MB.
// Unknown keys are rejected.
func LoadGrowthConfig(path string) (*GrowthConfig, error) {
	cleanPath := filepath.Clean(path)
	switch ext := filepath.Ext(cleanPath); ext {
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := ParseGrowthConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cleanPath, err)
	}
	return cfg, nil
}

// ParseGrowthConfig decodes and validates a config document. JSON documents
// are accepted because YAML is a superset of JSON.
func ParseGrowthConfig(data []byte) (*GrowthConfig, error) {
	cfg := EmptyGrowthConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents. Intended for test setup.
func MustLoadDefaultConfig() *GrowthConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadGrowthConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// ApplyEnv overrides fields from GROWTH_* environment variables and
// re-validates the result.
func (c *GrowthConfig) ApplyEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration from environment: %w", err)
	}
	return nil
}

// Validate checks that the set configuration values are valid.
func (c *GrowthConfig) Validate() error {
	if c.Resolution != nil && !(*c.Resolution > 0) {
		return fmt.Errorf("resolution must be positive, got %v", *c.Resolution)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	if c.MinSamples != nil && *c.MinSamples < 1 {
		return fmt.Errorf("min_samples must be at least 1, got %d", *c.MinSamples)
	}
	if c.Percentile != nil && (*c.Percentile < 50 || *c.Percentile > 100) {
		return fmt.Errorf("percentile must be between 50 and 100, got %v", *c.Percentile)
	}
	if c.MinYear != nil && (*c.MinYear < 1000 || *c.MinYear > 9999) {
		return fmt.Errorf("min_year must be a four-digit year, got %d", *c.MinYear)
	}
	if c.YearDelimiter != nil && *c.YearDelimiter == "" {
		return fmt.Errorf("year_delimiter must not be empty")
	}
	for _, class := range c.VegetationClasses {
		if class < 0 || class > 255 {
			return fmt.Errorf("vegetation class %d outside 0..255", class)
		}
	}
	if c.Stretches != nil {
		if len(c.Stretches) != StretchCount {
			return fmt.Errorf("stretches must list exactly %d thresholds, got %d", StretchCount, len(c.Stretches))
		}
		prev := 0.0
		for i, s := range c.Stretches {
			if s <= prev {
				return fmt.Errorf("stretches must be positive and strictly ascending (index %d: %v)", i, s)
			}
			prev = s
		}
	}
	return nil
}

// GetResolution returns the grid cell size in metres or the default.
func (c *GrowthConfig) GetResolution() float64 {
	if c.Resolution == nil {
		return 1.0
	}
	return *c.Resolution
}

// GetCRS returns the coordinate reference system identifier; empty when unset.
func (c *GrowthConfig) GetCRS() string {
	if c.CRS == nil {
		return ""
	}
	return *c.CRS
}

// GetConcurrent reports whether files are processed by the worker pool.
func (c *GrowthConfig) GetConcurrent() bool {
	if c.Concurrent == nil {
		return false
	}
	return *c.Concurrent
}

// GetWorkers returns the worker pool size; 0 means GOMAXPROCS.
func (c *GrowthConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// GetMinSamples returns the minimum sample count for band statistics.
func (c *GrowthConfig) GetMinSamples() int {
	if c.MinSamples == nil {
		return 10
	}
	return *c.MinSamples
}

// GetPercentile returns the trimming percentile.
func (c *GrowthConfig) GetPercentile() float64 {
	if c.Percentile == nil {
		return 95
	}
	return *c.Percentile
}

// GetMinYear returns the smallest accepted acquisition year.
func (c *GrowthConfig) GetMinYear() int {
	if c.MinYear == nil {
		return 1950
	}
	return *c.MinYear
}

// GetYearDelimiter returns the file-name token delimiter.
func (c *GrowthConfig) GetYearDelimiter() string {
	if c.YearDelimiter == nil {
		return "_"
	}
	return *c.YearDelimiter
}

// GetVegetationClasses returns the classification codes that contribute to
// height grids (ASPRS low and medium vegetation by default).
func (c *GrowthConfig) GetVegetationClasses() []uint8 {
	if len(c.VegetationClasses) == 0 {
		return []uint8{3, 4}
	}
	out := make([]uint8, len(c.VegetationClasses))
	for i, class := range c.VegetationClasses {
		out[i] = uint8(class)
	}
	return out
}

// GetStretches returns the ascending upper height thresholds in metres.
func (c *GrowthConfig) GetStretches() []float64 {
	if c.Stretches == nil {
		return []float64{0.25, 0.5, 1.0, 2.0, 3.0, 5.0}
	}
	out := make([]float64, len(c.Stretches))
	copy(out, c.Stretches)
	return out
}
