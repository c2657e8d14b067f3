// Package config handles configuration for tapresolver.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/tapresolver/pkg/core"
	"github.com/devicelab-dev/tapresolver/pkg/executor"
	"github.com/devicelab-dev/tapresolver/pkg/normalizer"
	"github.com/devicelab-dev/tapresolver/pkg/scorer"
)

// Config represents the resolver configuration (config.yaml).
type Config struct {
	// Logging settings
	LogPath  string `yaml:"logPath"`  // Log file, empty for stderr
	LogLevel string `yaml:"logLevel"` // debug, info, warn, error

	// Scoring settings
	Weights  scorer.Weights `yaml:"weights"`
	MinScore float64        `yaml:"minScore"`

	// Structural normalization thresholds
	Normalizer normalizer.Config `yaml:"normalizer"`

	// Batch pacing defaults
	Batch BatchDefaults `yaml:"batch"`

	// TapsPerMinute caps the session-wide tap rate; 0 disables the cap.
	TapsPerMinute float64 `yaml:"tapsPerMinute"`

	// ConfidencePath persists the adaptive strategy ratings between
	// runs; empty keeps them in memory only.
	ConfidencePath string `yaml:"confidencePath"`
}

// BatchDefaults mirrors the batch knobs in durations and counts.
type BatchDefaults struct {
	Interval        time.Duration `yaml:"interval"`
	Jitter          time.Duration `yaml:"jitter"`
	MaxPerSession   int           `yaml:"maxPerSession"`
	Cooldown        time.Duration `yaml:"cooldown"`
	ContinueOnError bool          `yaml:"continueOnError"`
	Refresh         string        `yaml:"refresh"` // never, on_mutation, every_k, always
	RefreshEvery    int           `yaml:"refreshEvery"`
	Direction       string        `yaml:"direction"` // forward, backward
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		LogLevel:   "info",
		Weights:    scorer.DefaultWeights(),
		MinScore:   scorer.DefaultMinScore,
		Normalizer: normalizer.DefaultConfig(),
		Batch: BatchDefaults{
			Interval: 2 * time.Second,
			Jitter:   500 * time.Millisecond,
			Refresh:  "never",
		},
	}
}

// Load loads configuration from a file, filling unset fields with
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromDir looks for config.yaml or config.yml in the directory.
func LoadFromDir(dir string) (*Config, error) {
	configPath := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configPath); err == nil {
		return Load(configPath)
	}

	configPath = filepath.Join(dir, "config.yml")
	if _, err := os.Stat(configPath); err == nil {
		return Load(configPath)
	}

	// No config file found, return defaults
	return Default(), nil
}

// ToBatch converts the defaults into an executor batch configuration.
func (b BatchDefaults) ToBatch() executor.BatchConfig {
	return executor.BatchConfig{
		Interval:        b.Interval,
		Jitter:          b.Jitter,
		MaxPerSession:   b.MaxPerSession,
		Cooldown:        b.Cooldown,
		ContinueOnError: b.ContinueOnError,
		Refresh:         parseRefresh(b.Refresh),
		RefreshEvery:    b.RefreshEvery,
		Direction:       parseDirection(b.Direction),
	}
}

func parseDirection(name string) executor.MatchDirection {
	if name == "backward" {
		return executor.DirectionBackward
	}
	return executor.DirectionForward
}

func parseRefresh(name string) executor.RefreshPolicy {
	switch name {
	case "on_mutation":
		return executor.RefreshOnMutation
	case "every_k":
		return executor.RefreshEveryK
	case "always":
		return executor.RefreshAlways
	default:
		return executor.RefreshNever
	}
}

// Validate rejects values the pipeline cannot work with.
func (c *Config) Validate() error {
	if c.MinScore < 0 || c.MinScore > 1 {
		return core.ErrInvalidConfig.WithMessage(
			fmt.Sprintf("minScore %.2f outside [0,1]", c.MinScore))
	}
	if w := c.Weights; w.Text < 0 || w.Desc < 0 || w.Position < 0 || w.ResourceID < 0 || w.Clickable < 0 {
		return core.ErrInvalidConfig.WithMessage("weights must not be negative")
	}
	if c.Weights == (scorer.Weights{}) {
		return core.ErrInvalidConfig.WithMessage("at least one weight must be positive")
	}
	switch c.Batch.Refresh {
	case "", "never", "on_mutation", "every_k", "always":
	default:
		return core.ErrInvalidConfig.WithMessage(
			fmt.Sprintf("unknown refresh policy %q", c.Batch.Refresh))
	}
	if c.Batch.Refresh == "every_k" && c.Batch.RefreshEvery <= 0 {
		return core.ErrInvalidConfig.WithMessage("refreshEvery must be positive for every_k")
	}
	switch c.Batch.Direction {
	case "", "forward", "backward":
	default:
		return core.ErrInvalidConfig.WithMessage(
			fmt.Sprintf("unknown batch direction %q", c.Batch.Direction))
	}
	return nil
}
