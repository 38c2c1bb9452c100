// Package config loads the analysis configuration. Every field is optional;
// the Get* accessors supply defaults for anything left unset, so partial
// files are safe.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/banshee-data/habitat.report/internal/habitat"
)

// DefaultConfigPath is where the CLI looks when --config is not given.
const DefaultConfigPath = "config/habitat.yaml"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Config is the root configuration for one analysis.
type Config struct {
	// Sampling
	Repetitions *int     `json:"repetitions,omitempty" yaml:"repetitions,omitempty" validate:"omitempty,gt=0"`
	Workers     *int     `json:"workers,omitempty" yaml:"workers,omitempty" validate:"omitempty,gte=1,lte=1024"`
	Seed        *uint64  `json:"seed,omitempty" yaml:"seed,omitempty"`
	Ordering    []string `json:"ordering,omitempty" yaml:"ordering,omitempty" validate:"omitempty,dive,required"`

	// Overlay
	BufferMeters    *float64 `json:"buffer_meters,omitempty" yaml:"buffer_meters,omitempty" validate:"omitempty,gte=0"`
	HabitatProperty *string  `json:"habitat_property,omitempty" yaml:"habitat_property,omitempty"`

	// Fixes prefilter
	ExcludeQuality []string `json:"exclude_quality,omitempty" yaml:"exclude_quality,omitempty" validate:"omitempty,dive,oneof=3 2 1 0 A B Z a b z"`
	Individual     *string  `json:"individual,omitempty" yaml:"individual,omitempty"`

	// Movement model
	InitialSigma   *float64 `json:"initial_sigma,omitempty" yaml:"initial_sigma,omitempty" validate:"omitempty,gt=0"`
	InitialBeta    *float64 `json:"initial_beta,omitempty" yaml:"initial_beta,omitempty" validate:"omitempty,gt=0"`
	MaxEvaluations *int     `json:"max_evaluations,omitempty" yaml:"max_evaluations,omitempty" validate:"omitempty,gt=0"`

	// Paths
	HabitatPath  *string `json:"habitat_path,omitempty" yaml:"habitat_path,omitempty"`
	FixesPath    *string `json:"fixes_path,omitempty" yaml:"fixes_path,omitempty"`
	OutputDir    *string `json:"output_dir,omitempty" yaml:"output_dir,omitempty"`
	DatabasePath *string `json:"database_path,omitempty" yaml:"database_path,omitempty"`
}

// Ptr returns a pointer to v, for filling optional fields.
func Ptr[T any](v T) *T { return &v }

// Load reads a .json, .yaml or .yml config file and validates it.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", ext, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges and that the ordering parses.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if _, err := c.GetOrdering(); err != nil {
		return err
	}
	return nil
}

// GetRepetitions returns the repetitions value or the default.
func (c *Config) GetRepetitions() int {
	if c.Repetitions == nil {
		return habitat.DefaultRepetitions
	}
	return *c.Repetitions
}

// GetWorkers returns the workers value or the default.
func (c *Config) GetWorkers() int {
	if c.Workers == nil {
		return habitat.DefaultWorkers
	}
	return *c.Workers
}

// GetSeed returns the seed value or the default.
func (c *Config) GetSeed() uint64 {
	if c.Seed == nil {
		return 1
	}
	return *c.Seed
}

// GetOrdering parses the configured ordering, defaulting to
// habitat.DefaultOrdering. Sentinels are appended when missing.
func (c *Config) GetOrdering() (habitat.Ordering, error) {
	if len(c.Ordering) == 0 {
		return habitat.DefaultOrdering.Normalize(), nil
	}
	o := make(habitat.Ordering, 0, len(c.Ordering))
	for _, s := range c.Ordering {
		cat, err := habitat.ParseCategory(s)
		if err != nil {
			return nil, fmt.Errorf("ordering: %w", err)
		}
		o = append(o, cat)
	}
	return o.Normalize(), nil
}

// GetBufferMeters returns the buffer_meters value or the default.
func (c *Config) GetBufferMeters() float64 {
	if c.BufferMeters == nil {
		return 1000
	}
	return *c.BufferMeters
}

// GetHabitatProperty returns the habitat_property value or the default.
func (c *Config) GetHabitatProperty() string {
	if c.HabitatProperty == nil || *c.HabitatProperty == "" {
		return "habitat"
	}
	return *c.HabitatProperty
}

// GetExcludeQuality returns the location classes to drop, default Z.
func (c *Config) GetExcludeQuality() []string {
	if c.ExcludeQuality == nil {
		return []string{"Z"}
	}
	return c.ExcludeQuality
}

// GetIndividual returns the individual to analyse; empty means all.
func (c *Config) GetIndividual() string {
	if c.Individual == nil {
		return ""
	}
	return *c.Individual
}

// GetInitialSigma returns the initial_sigma value or the default.
func (c *Config) GetInitialSigma() float64 {
	if c.InitialSigma == nil {
		return 5000
	}
	return *c.InitialSigma
}

// GetInitialBeta returns the initial_beta value or the default.
func (c *Config) GetInitialBeta() float64 {
	if c.InitialBeta == nil {
		return 1
	}
	return *c.InitialBeta
}

// GetMaxEvaluations returns the max_evaluations value or the default.
func (c *Config) GetMaxEvaluations() int {
	if c.MaxEvaluations == nil {
		return 400
	}
	return *c.MaxEvaluations
}

// GetHabitatPath returns the habitat layer path.
func (c *Config) GetHabitatPath() string {
	if c.HabitatPath == nil {
		return ""
	}
	return *c.HabitatPath
}

// GetFixesPath returns the fixes CSV path.
func (c *Config) GetFixesPath() string {
	if c.FixesPath == nil {
		return ""
	}
	return *c.FixesPath
}

// GetOutputDir returns the report directory, default "out".
func (c *Config) GetOutputDir() string {
	if c.OutputDir == nil || *c.OutputDir == "" {
		return "out"
	}
	return *c.OutputDir
}

// GetDatabasePath returns the results database path; empty disables
// persistence.
func (c *Config) GetDatabasePath() string {
	if c.DatabasePath == nil {
		return ""
	}
	return *c.DatabasePath
}
