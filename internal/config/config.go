// Package config holds the engine's tunable policy constants. The defaults
// are the professional-standard values; the file exists so deployments can
// adjust them without a rebuild.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the persisted engine configuration.
type Config struct {
	SampleRate           int     `yaml:"sampleRate"`
	TempoBPM             float64 `yaml:"tempoBPM"`
	LookaheadMs          int     `yaml:"lookaheadMs"`
	CycleEpsilonBeats    float64 `yaml:"cycleEpsilonBeats"`
	IterationsAhead      int     `yaml:"iterationsAhead"`
	AutomationSnapshotMs int     `yaml:"automationSnapshotMs"`
	PDCEnabled           bool    `yaml:"pdcEnabled"`
}

// Default returns the engine defaults: 150 ms lookahead, 0.001-beat cycle
// epsilon, two loop iterations pre-scheduled.
func Default() *Config {
	return &Config{
		SampleRate:           48000,
		TempoBPM:             120,
		LookaheadMs:          150,
		CycleEpsilonBeats:    0.001,
		IterationsAhead:      2,
		AutomationSnapshotMs: 10,
		PDCEnabled:           true,
	}
}

// Path returns the config file location.
func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "dawcore", "config.yaml"), nil
}

// Load reads the config from disk, returning defaults when no file exists.
// Fields missing from the file keep their defaults.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads a config from an explicit path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to its default location.
func (c *Config) Save() error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sampleRate must be positive, got %d", c.SampleRate)
	}
	if c.TempoBPM <= 0 {
		return fmt.Errorf("tempoBPM must be positive, got %f", c.TempoBPM)
	}
	if c.LookaheadMs <= 0 {
		return fmt.Errorf("lookaheadMs must be positive, got %d", c.LookaheadMs)
	}
	if c.CycleEpsilonBeats <= 0 {
		return fmt.Errorf("cycleEpsilonBeats must be positive, got %f", c.CycleEpsilonBeats)
	}
	if c.IterationsAhead < 2 {
		return fmt.Errorf("iterationsAhead must be at least 2, got %d", c.IterationsAhead)
	}
	return nil
}
