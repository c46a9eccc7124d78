package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volprep/pkg/interpolation"
	"volprep/pkg/resample"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []int{128, 128, 128}, cfg.Processing.ImageShape)
	assert.Equal(t, "dir", cfg.Store.Backend)
	assert.False(t, cfg.Store.AllowOverwrite)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, CreateDefaultConfigFile(path))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
processing:
  imageShape: [64, 64, 32]
  interpolation: continuous
  backgroundCorrection: true
  padMode: reflect
  crop:
    start: [1, 2, 3]
    stop: [60, 61, 30]
store:
  backend: redis
  redisPrefix: brats
  allowOverwrite: true
logging:
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, "brats", cfg.Store.RedisPrefix)
	// defaults survive for keys the file leaves out
	assert.Equal(t, "localhost:6379", cfg.Store.RedisAddr)
	assert.Equal(t, "nearest", cfg.Processing.LabelInterpolation)

	opts := cfg.ReadOptions()
	assert.Equal(t, []int{64, 64, 32}, opts.Shape)
	assert.Equal(t, interpolation.Continuous, opts.Interpolation)
	assert.Equal(t, resample.PadReflect, opts.PadMode)
	assert.True(t, opts.BackgroundCorrection)
	require.NotNil(t, opts.Crop)
	assert.Equal(t, [3]int{1, 2, 3}, opts.Crop.Start)
	assert.Equal(t, [3]int{60, 61, 30}, opts.Crop.Stop)

	labels := cfg.LabelReadOptions()
	assert.Equal(t, interpolation.Nearest, labels.Interpolation)
	assert.False(t, labels.BackgroundCorrection)
	assert.Equal(t, opts.Crop, labels.Crop)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"interpolation": "processing:\n  interpolation: bicubic\n",
		"labels":        "processing:\n  labelInterpolation: spline\n",
		"pad":           "processing:\n  padMode: mirror\n",
		"shape":         "processing:\n  imageShape: [64, 64]\n",
		"zero axis":     "processing:\n  imageShape: [64, 0, 64]\n",
		"crop":          "processing:\n  crop:\n    start: [4, 4, 4]\n    stop: [4, 8, 8]\n",
		"backend":       "store:\n  backend: s3\n",
		"format":        "logging:\n  format: xml\n",
	}
	for name, yml := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))
			_, err := LoadConfig(path)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("processing: [unclosed"), 0o644))
	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "error parsing config file")
}
