package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Positive(t, cfg.Processing.NumCores)
	assert.Equal(t, 1.0, cfg.Processing.BinSize)
	assert.Equal(t, [3]float64{0.5, 0.5, 0.5}, cfg.Processing.DeltaMM)
	assert.Equal(t, 25.0, cfg.Processing.SmallVolumeCC)
	assert.Equal(t, 0.5, cfg.Processing.SliceTolerance)
	assert.Equal(t, ":8080", cfg.Server.Addr)

	opts := cfg.EngineOptions()
	assert.Equal(t, cfg.Processing.BinSize, opts.BinSize)
	assert.Equal(t, cfg.Processing.DeltaMM, opts.DeltaMM)
	assert.False(t, opts.Upsample)

	idx := cfg.Indices()
	assert.Equal(t, 0.0, idx.Prescription)
	assert.Equal(t, "BODY", idx.External)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Processing.NumCores = 3
	cfg.Processing.BinSize = 10
	cfg.Processing.Upsample = true
	cfg.Processing.DeltaMM = [3]float64{0.25, 0.25, 1}
	cfg.Processing.Prescription = 6000
	cfg.Processing.External = "Skin"
	cfg.Output.Verbose = false
	cfg.Server.Addr = "127.0.0.1:9000"
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "processing:\n  binSize: 5\n  endCap: true\noutput:\n  extractSlices: true\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 5.0, cfg.Processing.BinSize)
	assert.True(t, cfg.Processing.EndCap)
	assert.True(t, cfg.Output.ExtractSlices)
	assert.Equal(t, "dose_slices", cfg.Output.SlicesDir)
	assert.Equal(t, 25.0, cfg.Processing.SmallVolumeCC)
}

func TestLoadInvalidFile(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "malformed", data: "processing: [1, 2"},
		{name: "zero bin", data: "processing:\n  binSize: 0\n"},
		{name: "negative delta", data: "processing:\n  deltaMM: [0.5, -1, 0.5]\n"},
		{name: "negative prescription", data: "processing:\n  prescription: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.data), 0644))
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, CreateDefaultConfigFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "binSize: 1")
	assert.Contains(t, string(data), "deltaMM: [0.5, 0.5, 0.5]")
	assert.Contains(t, string(data), "external: BODY")
}
