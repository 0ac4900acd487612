// Package config loads run configuration from JSON or YAML files.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/RyanBlaney/moviescan/algorithms/stats"
	"github.com/RyanBlaney/moviescan/logging"
	"github.com/RyanBlaney/moviescan/pipeline"
	"github.com/RyanBlaney/moviescan/transcode"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Config is the root run configuration. Fields omitted from a file keep the
// values of Default.
type Config struct {
	// BinDuration is the scanner repetition time (TR) in seconds
	BinDuration float64 `json:"bin_duration" yaml:"bin_duration"`

	// SkipBins is the number of leading TRs discarded before the first
	// matrix column
	SkipBins int `json:"skip_bins" yaml:"skip_bins"`

	Workers int `json:"workers" yaml:"workers"`

	// DegeneratePolicy is "nan" or "zero"
	DegeneratePolicy string `json:"degenerate_policy" yaml:"degenerate_policy"`

	// SequenceFrameRate is the frame rate assumed for image sequence directories
	SequenceFrameRate float64 `json:"sequence_frame_rate" yaml:"sequence_frame_rate"`

	LogLevel string `json:"log_level" yaml:"log_level"`

	Video VideoConfig `json:"video" yaml:"video"`
}

// VideoConfig mirrors transcode.VideoConfig with a human readable timeout
type VideoConfig struct {
	FFmpegPath     string `json:"ffmpeg_path" yaml:"ffmpeg_path"`
	FFprobePath    string `json:"ffprobe_path" yaml:"ffprobe_path"`
	Timeout        string `json:"timeout" yaml:"timeout"` // duration string like "30s"
	CountFrames    bool   `json:"count_frames" yaml:"count_frames"`
	PixelFormat    string `json:"pixel_format" yaml:"pixel_format"`
	MaxForwardSkip int    `json:"max_forward_skip" yaml:"max_forward_skip"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	p := pipeline.DefaultConfig()
	v := transcode.DefaultVideoConfig()
	return &Config{
		BinDuration:       p.BinDuration,
		SkipBins:          p.SkipBins,
		Workers:           p.Workers,
		DegeneratePolicy:  p.Policy.String(),
		SequenceFrameRate: 30,
		LogLevel:          "info",
		Video: VideoConfig{
			FFmpegPath:     v.FFmpegPath,
			FFprobePath:    v.FFprobePath,
			Timeout:        v.Timeout.String(),
			CountFrames:    v.CountFrames,
			PixelFormat:    v.PixelFormat,
			MaxForwardSkip: v.MaxForwardSkip,
		},
	}
}

// Load reads a .json, .yaml or .yml file over the defaults and validates the
// result. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	// Check file size for safety
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

	cfg := Default()
	if ext == ".json" {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		// an empty document leaves the defaults untouched
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logging.Debug("Configuration loaded", logging.Fields{
		"component": "config",
		"filename":  cleanPath,
	})

	return cfg, nil
}

// Validate checks every field and returns the first problem found
func (c *Config) Validate() error {
	if c.BinDuration <= 0 || math.IsNaN(c.BinDuration) || math.IsInf(c.BinDuration, 0) {
		return fmt.Errorf("%w: bin_duration must be positive, got %v", ErrInvalidConfig, c.BinDuration)
	}
	if c.SkipBins < 0 {
		return fmt.Errorf("%w: skip_bins must not be negative, got %d", ErrInvalidConfig, c.SkipBins)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalidConfig, c.Workers)
	}
	if _, err := stats.ParseDegeneratePolicy(c.DegeneratePolicy); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.SequenceFrameRate <= 0 || math.IsNaN(c.SequenceFrameRate) || math.IsInf(c.SequenceFrameRate, 0) {
		return fmt.Errorf("%w: sequence_frame_rate must be positive, got %v", ErrInvalidConfig, c.SequenceFrameRate)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := c.VideoDecoderConfig(); err != nil {
		return err
	}
	return nil
}

// PipelineConfig converts the file settings into pipeline parameters
func (c *Config) PipelineConfig() (pipeline.Config, error) {
	policy, err := stats.ParseDegeneratePolicy(c.DegeneratePolicy)
	if err != nil {
		return pipeline.Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return pipeline.Config{
		BinDuration: c.BinDuration,
		SkipBins:    c.SkipBins,
		Workers:     c.Workers,
		Policy:      policy,
	}, nil
}

// VideoDecoderConfig converts the video section into decoder settings
func (c *Config) VideoDecoderConfig() (*transcode.VideoConfig, error) {
	timeout, err := time.ParseDuration(c.Video.Timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: video.timeout: %v", ErrInvalidConfig, err)
	}

	vc := &transcode.VideoConfig{
		FFmpegPath:     c.Video.FFmpegPath,
		FFprobePath:    c.Video.FFprobePath,
		Timeout:        timeout,
		CountFrames:    c.Video.CountFrames,
		PixelFormat:    c.Video.PixelFormat,
		MaxForwardSkip: c.Video.MaxForwardSkip,
	}
	if err := vc.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("%w: video: %v", ErrInvalidConfig, err)
	}
	return vc, nil
}
