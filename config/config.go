// Package config holds the calibration constants of the thickness pipeline
// and the per-run paths supplied by the caller.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// CanonicalConfig controls the canonicalization stages
type CanonicalConfig struct {
	// Frame stage: the micrograph is letterboxed into a black canvas.
	// A zero width or height disables the stage.
	FrameWidth  int     `toml:"frame_width"`
	FrameHeight int     `toml:"frame_height"`
	FrameFill   float64 `toml:"frame_fill"`

	BinaryThreshold float64 `toml:"binary_threshold"`
	RenderWidth     int     `toml:"render_width"`
	OutputSize      int     `toml:"output_size"`

	BlurKernel int     `toml:"blur_kernel"`
	CannyLow   float64 `toml:"canny_low"`
	CannyHigh  float64 `toml:"canny_high"`

	// Added to the ellipse angle when the fitted ellipse is taller than
	// wide. Calibrated against the reference database rendering.
	TallEllipseOffset float64 `toml:"tall_ellipse_offset"`
}

// MatchConfig controls candidate scoring and the uncertainty band
type MatchConfig struct {
	ScoreScale   float64 `toml:"score_scale"`
	ErrorCeiling int     `toml:"error_ceiling"`
	Workers      int     `toml:"workers"`
}

// ReportConfig controls the result table
type ReportConfig struct {
	Material string `toml:"material"`
}

// Config is constructed once per run and passed down explicitly
type Config struct {
	Canonical CanonicalConfig `toml:"canonical"`
	Match     MatchConfig     `toml:"match"`
	Report    ReportConfig    `toml:"report"`
}

// RunConfig carries the paths of one invocation
type RunConfig struct {
	ReferenceDirectory string
	QueryImagePath     string
	DatabasePath       string
	OutputPath         string
	SaveMatchPath      string
	DebugDir           string
}

// Default returns the calibration the reference database was generated with
func Default() Config {
	return Config{
		Canonical: CanonicalConfig{
			FrameWidth:        640,
			FrameHeight:       480,
			FrameFill:         0.775,
			BinaryThreshold:   127,
			RenderWidth:       852,
			OutputSize:        384,
			BlurKernel:        5,
			CannyLow:          50,
			CannyHigh:         150,
			TallEllipseOffset: 211,
		},
		Match: MatchConfig{
			ScoreScale:   100,
			ErrorCeiling: 2,
			Workers:      0,
		},
		Report: ReportConfig{
			Material: "Silicon",
		},
	}
}

// Load overlays the calibration file at path on top of the defaults
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); err != nil {
		return cfg, fmt.Errorf("calibration file: %w", err)
	}
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("decode calibration %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return cfg, fmt.Errorf("unknown calibration keys in %s: %v", path, undecoded)
	}
	return cfg, Validate(cfg)
}

// Validate checks that every constant is usable
func Validate(cfg Config) error {
	c := cfg.Canonical
	if (c.FrameWidth > 0) != (c.FrameHeight > 0) {
		return fmt.Errorf("frame_width and frame_height must both be set or both be zero")
	}
	if c.FrameWidth > 0 && (c.FrameFill <= 0 || c.FrameFill > 1) {
		return fmt.Errorf("frame_fill must be in (0, 1], got %v", c.FrameFill)
	}
	if c.BinaryThreshold < 0 || c.BinaryThreshold > 255 {
		return fmt.Errorf("binary_threshold must be in [0, 255], got %v", c.BinaryThreshold)
	}
	if c.RenderWidth <= 0 {
		return fmt.Errorf("render_width must be positive, got %d", c.RenderWidth)
	}
	if c.OutputSize <= 0 {
		return fmt.Errorf("output_size must be positive, got %d", c.OutputSize)
	}
	if c.BlurKernel <= 0 || c.BlurKernel%2 == 0 {
		return fmt.Errorf("blur_kernel must be a positive odd number, got %d", c.BlurKernel)
	}
	if c.CannyLow < 0 || c.CannyHigh < c.CannyLow {
		return fmt.Errorf("canny thresholds out of order: %v/%v", c.CannyLow, c.CannyHigh)
	}

	m := cfg.Match
	if m.ScoreScale <= 0 {
		return fmt.Errorf("score_scale must be positive, got %v", m.ScoreScale)
	}
	if m.ErrorCeiling < 1 {
		return fmt.Errorf("error_ceiling must be positive, got %d", m.ErrorCeiling)
	}
	if m.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", m.Workers)
	}
	return nil
}
