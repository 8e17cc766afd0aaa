// Package config holds the settings shared by the command-line tools. Values
// come from built-in defaults, an optional TOML file and command-line flags,
// in that order.
package config

import (
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"featalign/internal/alignment"
	"featalign/internal/failure"
	"featalign/internal/features"
	"featalign/internal/homography"
)

// Config is the tool configuration.
type Config struct {
	Detector DetectorConfig `toml:"detector"`
	Matching MatchingConfig `toml:"matching"`
	RANSAC   RANSACConfig   `toml:"ransac"`
	Output   OutputConfig   `toml:"output"`
	Log      LogConfig      `toml:"log"`
}

// DetectorConfig selects and sizes the feature detector.
type DetectorConfig struct {
	Name         string `toml:"name"`       // orb or akaze
	Descriptor   string `toml:"descriptor"` // binary or float
	MaxKeypoints int    `toml:"max_keypoints"`
	MaxDimension int    `toml:"max_dimension"` // 0 = full resolution
}

// MatchingConfig configures the ratio test.
type MatchingConfig struct {
	Ratio float64 `toml:"ratio"`
}

// RANSACConfig configures homography estimation.
type RANSACConfig struct {
	Threshold     float64 `toml:"threshold"`
	Confidence    float64 `toml:"confidence"`
	MaxIterations int     `toml:"max_iterations"`
	Seed          int64   `toml:"seed"`
}

// OutputConfig configures the images written by the tools.
type OutputConfig struct {
	OverlayOpacity float64 `toml:"overlay_opacity"`
	BlendMode      string  `toml:"blend_mode"`
	OnlyInliers    bool    `toml:"only_inliers"`
}

// LogConfig configures logging.
type LogConfig struct {
	Debug      bool   `toml:"debug"`
	JSON       bool   `toml:"json"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

// NewDefaultConfig returns a Config with default settings.
func NewDefaultConfig() *Config {
	ho := homography.DefaultOptions()
	return &Config{
		Detector: DetectorConfig{
			Name:         "orb",
			Descriptor:   "binary",
			MaxKeypoints: 2000,
			MaxDimension: 0,
		},
		Matching: MatchingConfig{Ratio: 0.75},
		RANSAC: RANSACConfig{
			Threshold:     3,
			Confidence:    ho.Confidence,
			MaxIterations: ho.MaxIterations,
			Seed:          ho.Seed,
		},
		Output: OutputConfig{
			OverlayOpacity: 0.5,
			BlendMode:      "Normal",
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// Load reads a TOML file over the defaults. Unknown keys are an error.
func Load(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.Wrapf(failure.ErrInvalidInput, "unknown config keys: %s", strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Variant resolves the detector settings.
func (c *Config) Variant() (features.Variant, error) {
	return features.ParseVariant(strings.ToLower(c.Detector.Name), strings.ToLower(c.Detector.Descriptor))
}

// Validate checks every setting.
func (c *Config) Validate() error {
	if _, err := c.Variant(); err != nil {
		return err
	}
	switch {
	case c.Detector.MaxKeypoints <= 0:
		return errors.Wrapf(failure.ErrInvalidInput, "max_keypoints must be positive, got %d", c.Detector.MaxKeypoints)
	case c.Detector.MaxDimension < 0:
		return errors.Wrapf(failure.ErrInvalidInput, "max_dimension must not be negative, got %d", c.Detector.MaxDimension)
	case !(c.Matching.Ratio > 0 && c.Matching.Ratio <= 1):
		return errors.Wrapf(failure.ErrInvalidInput, "ratio must be in (0, 1], got %v", c.Matching.Ratio)
	case !(c.RANSAC.Threshold > 0):
		return errors.Wrapf(failure.ErrInvalidInput, "threshold must be positive, got %v", c.RANSAC.Threshold)
	case !(c.RANSAC.Confidence > 0 && c.RANSAC.Confidence < 1):
		return errors.Wrapf(failure.ErrInvalidInput, "confidence must be in (0, 1), got %v", c.RANSAC.Confidence)
	case c.RANSAC.MaxIterations <= 0:
		return errors.Wrapf(failure.ErrInvalidInput, "max_iterations must be positive, got %d", c.RANSAC.MaxIterations)
	case c.Output.OverlayOpacity < 0 || c.Output.OverlayOpacity > 1:
		return errors.Wrapf(failure.ErrInvalidInput, "overlay_opacity must be in [0, 1], got %v", c.Output.OverlayOpacity)
	}
	return nil
}

// AlignmentOptions converts the configuration into pipeline options. The
// logger is left unset.
func (c *Config) AlignmentOptions() (alignment.Options, error) {
	v, err := c.Variant()
	if err != nil {
		return alignment.Options{}, err
	}
	opts := alignment.DefaultOptions()
	opts.Variant = v
	opts.MaxKeypoints = c.Detector.MaxKeypoints
	opts.MaxDimension = c.Detector.MaxDimension
	opts.Ratio = c.Matching.Ratio
	opts.Threshold = c.RANSAC.Threshold
	opts.Homography = homography.Options{
		Confidence:    c.RANSAC.Confidence,
		MaxIterations: c.RANSAC.MaxIterations,
		Seed:          c.RANSAC.Seed,
	}
	return opts, nil
}
