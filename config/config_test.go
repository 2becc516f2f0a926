package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	d, err := cfg.Flush()
	require.NoError(t, err)
	assert.Equal(t, 100*time.Millisecond, d)
}

func TestLoadYAML(t *testing.T) {
	cfg, err := Load("testdata/kernel.yaml")
	require.NoError(t, err)

	assert.Equal(t, "tupleview", cfg.Kernel.Name)
	assert.Equal(t, 200, cfg.Kernel.ID)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 8, cfg.Store.Queue)
	assert.Equal(t, "bolt:/tmp/tuples.db", cfg.Storage)
	assert.True(t, cfg.Stdio)

	// Untouched defaults survive.
	assert.Equal(t, "CONSOLE", cfg.Log.Format)
	assert.Equal(t, 32, cfg.Store.MaxMetaDepth)
}

func TestLoadTOML(t *testing.T) {
	cfg, err := Load("testdata/kernel.toml")
	require.NoError(t, err)

	assert.Equal(t, "robot", cfg.Kernel.Name)
	assert.Equal(t, 101, cfg.Kernel.ID)
	assert.Equal(t, 500, cfg.Scripts.MaxCallDepth)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
	d, err := cfg.Flush()
	require.NoError(t, err)
	assert.Equal(t, time.Second, d)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load("testdata/bad.toml")
	assert.ErrorContains(t, err, "flush_interval")

	_, err = Load("testdata/missing.yaml")
	assert.Error(t, err)

	_, err = Load("config.go")
	assert.ErrorContains(t, err, "unknown format")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Storage = "bolt"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Kernel.ID = -1
	assert.Error(t, cfg.Validate())
}
