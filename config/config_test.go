package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/RyanBlaney/moviescan/algorithms/stats"
	"github.com/RyanBlaney/moviescan/logging"
	"github.com/RyanBlaney/moviescan/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logging.SetGlobalLogger(&logging.NoOpLogger{})
	os.Exit(m.Run())
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	pc, err := cfg.PipelineConfig()
	require.NoError(t, err)
	assert.Equal(t, pipeline.Config{BinDuration: 2.01, SkipBins: 4, Workers: 1, Policy: stats.DegenerateNaN}, pc)

	vc, err := cfg.VideoDecoderConfig()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, vc.Timeout)
	assert.Equal(t, "rgb24", vc.PixelFormat)
}

func TestLoadYAMLKeepsDefaults(t *testing.T) {
	path := writeFile(t, "run.yaml", `
bin_duration: 1.5
degenerate_policy: zero
video:
  timeout: 2m
  pixel_format: bgr24
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 1.5, cfg.BinDuration)
	assert.Equal(t, 4, cfg.SkipBins, "omitted keys keep defaults")
	assert.Equal(t, "ffmpeg", cfg.Video.FFmpegPath)

	pc, err := cfg.PipelineConfig()
	require.NoError(t, err)
	assert.Equal(t, stats.DegenerateZero, pc.Policy)

	vc, err := cfg.VideoDecoderConfig()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, vc.Timeout)
	assert.Equal(t, "bgr24", vc.PixelFormat)
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "run.json", `{"skip_bins": 0, "workers": 4, "log_level": "debug"}`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.SkipBins)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 2.01, cfg.BinDuration)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadEmptyYAML(t *testing.T) {
	cfg, err := Load(writeFile(t, "empty.yml", ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		invalid bool
	}{
		{name: "extension", file: "run.toml", content: "bin_duration = 2"},
		{name: "unknown yaml key", file: "run.yaml", content: "bin_durration: 2\n"},
		{name: "unknown json key", file: "run.json", content: `{"tr": 2}`},
		{name: "malformed json", file: "run.json", content: `{`},
		{name: "zero duration", file: "run.yaml", content: "bin_duration: 0\n", invalid: true},
		{name: "negative skip", file: "run.json", content: `{"skip_bins": -1}`, invalid: true},
		{name: "no workers", file: "run.json", content: `{"workers": 0}`, invalid: true},
		{name: "policy", file: "run.yaml", content: "degenerate_policy: drop\n", invalid: true},
		{name: "log level", file: "run.yaml", content: "log_level: loud\n", invalid: true},
		{name: "timeout", file: "run.yaml", content: "video:\n  timeout: soon\n", invalid: true},
		{name: "pixel format", file: "run.yaml", content: "video:\n  pixel_format: yuv420p\n", invalid: true},
		{name: "sequence rate", file: "run.yaml", content: "sequence_frame_rate: 0\n", invalid: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			require.Error(t, err)
			if tt.invalid {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}

func TestLoadRejectsLargeFiles(t *testing.T) {
	path := writeFile(t, "big.yaml", "# "+strings.Repeat("x", maxFileSize)+"\n")
	_, err := Load(path)
	assert.ErrorContains(t, err, "too large")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	assert.Error(t, err)
}
