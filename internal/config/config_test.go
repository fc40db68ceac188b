package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 150, cfg.LookaheadMs)
	assert.Equal(t, 0.001, cfg.CycleEpsilonBeats)
	assert.Equal(t, 2, cfg.IterationsAhead)
}

func TestLoadFileMissingReturnsDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFilePartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("lookaheadMs: 200\n"), 0644))
	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.LookaheadMs)
	assert.Equal(t, 48000, cfg.SampleRate)
}

func TestLoadFileRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("iterationsAhead: 1\n"), 0644))
	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero sample rate", func(c *Config) { c.SampleRate = 0 }},
		{"negative tempo", func(c *Config) { c.TempoBPM = -1 }},
		{"zero lookahead", func(c *Config) { c.LookaheadMs = 0 }},
		{"zero epsilon", func(c *Config) { c.CycleEpsilonBeats = 0 }},
		{"single iteration", func(c *Config) { c.IterationsAhead = 1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
