package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesSpecConstants(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 7, cfg.Fragility.WarnThreshold)
	assert.Equal(t, 8, cfg.Fragility.SoftThreshold)
	assert.Equal(t, 9, cfg.Fragility.HardThreshold)
	assert.Equal(t, 1000, cfg.Cache.Capacity)
	assert.Equal(t, 4, cfg.BlastRadius.MaxDepth)
	assert.Contains(t, cfg.Skip.Patterns, "node_modules")
	assert.Contains(t, cfg.Skip.Patterns, "*.lock")
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverlaysOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "muninn.yaml")
	require.NoError(t, os.WriteFile(p, []byte("fragility:\n  hard_threshold: 10\n"), 0o644))

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Fragility.HardThreshold)
	// Untouched fields keep their defaults.
	assert.Equal(t, 7, cfg.Fragility.WarnThreshold)
	assert.Equal(t, 1000, cfg.Cache.Capacity)
}
