package imageprocessor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"pacbedthickness/config"
	"pacbedthickness/logging"
	"pacbedthickness/types"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// Canonicalizer turns raw micrographs into fixed-size canonical images.
// It holds no per-call state and is safe for concurrent use.
type Canonicalizer struct {
	cfg      config.CanonicalConfig
	registry *ImageLoaderRegistry

	// DebugDir, when set, receives a uniquely named directory per call with
	// a snapshot of every stage
	DebugDir string
}

// NewCanonicalizer creates a canonicalizer for the given calibration
func NewCanonicalizer(cfg config.CanonicalConfig) *Canonicalizer {
	return &Canonicalizer{
		cfg:      cfg,
		registry: NewImageLoaderRegistry(),
	}
}

// Canonicalize reads the micrograph at path and normalizes it. It fails with
// *ImageReadError when the file cannot be decoded and with
// *DegenerateImageError when the pattern mask is empty.
func (c *Canonicalizer) Canonicalize(path string) (types.CanonicalImage, error) {
	src, err := c.registry.LoadImage(path)
	if err != nil {
		return types.CanonicalImage{}, err
	}
	defer src.Close()

	return c.CanonicalizeMat(src, path)
}

// CanonicalizeMat normalizes an already decoded image. source names the
// image in errors and logs.
func (c *Canonicalizer) CanonicalizeMat(src gocv.Mat, source string) (types.CanonicalImage, error) {
	gray, err := toGray8(src)
	if err != nil {
		return types.CanonicalImage{}, &ImageReadError{Path: source, Err: err}
	}
	defer gray.Close()

	snaps, err := c.newSnapshots(source)
	if err != nil {
		return types.CanonicalImage{}, err
	}

	framed := gray
	if c.cfg.FrameWidth > 0 && c.cfg.FrameHeight > 0 {
		framed = renderOnCanvas(gray, c.cfg.FrameWidth, c.cfg.FrameHeight, c.cfg.FrameFill)
		defer framed.Close()
		snaps.save("0-frame", framed)
	}

	centered, shift, err := CenterPattern(framed, c.cfg.BinaryThreshold)
	if err != nil {
		if errors.Is(err, ErrDegenerate) {
			return types.CanonicalImage{}, &DegenerateImageError{Path: source}
		}
		return types.CanonicalImage{}, fmt.Errorf("center %s: %w", source, err)
	}
	defer centered.Close()
	snaps.save("1-centered", centered)

	rendered := renderAtWidth(centered, c.cfg.RenderWidth)
	defer rendered.Close()
	snaps.save("2-rendered", rendered)

	cropped := cropCenter(rendered, c.cfg.OutputSize)
	defer cropped.Close()
	snaps.save("3-cropped", cropped)

	angle, found := orientationAngle(cropped, edgeOptions{
		blurKernel: c.cfg.BlurKernel,
		cannyLow:   c.cfg.CannyLow,
		cannyHigh:  c.cfg.CannyHigh,
		tallOffset: c.cfg.TallEllipseOffset,
	})

	rotated := rotate(cropped, angle)
	defer rotated.Close()
	snaps.save("4-rotated", rotated)

	logging.WithFields(logrus.Fields{
		"source":   source,
		"shift_x":  shift.X,
		"shift_y":  shift.Y,
		"rotation": angle,
		"contour":  found,
	}).Debug("canonicalized")

	return types.CanonicalImage{
		Grayscale: types.Grayscale{
			Width:  rotated.Cols(),
			Height: rotated.Rows(),
			Pix:    rotated.ToBytes(),
		},
		Source:   source,
		Shift:    shift,
		Rotation: angle,
	}, nil
}

// snapshots writes stage images for debugging; a nil receiver writes nothing
type snapshots struct {
	dir string
}

func (c *Canonicalizer) newSnapshots(source string) (*snapshots, error) {
	if c.DebugDir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(c.DebugDir, 0o755); err != nil {
		return nil, fmt.Errorf("debug dir: %w", err)
	}
	dir, err := os.MkdirTemp(c.DebugDir, "canon-"+sanitize(filepath.Base(source))+"-")
	if err != nil {
		return nil, fmt.Errorf("debug dir: %w", err)
	}
	logging.DebugLog("Writing stage snapshots for %s to %s", source, dir)
	return &snapshots{dir: dir}, nil
}

func (s *snapshots) save(stage string, m gocv.Mat) {
	if s == nil {
		return
	}
	path := filepath.Join(s.dir, stage+".png")
	if !gocv.IMWrite(path, m) {
		logging.LogWarning("Failed to write stage snapshot %s", path)
	}
}

func sanitize(name string) string {
	out := []rune(name)
	for i, r := range out {
		if r == os.PathSeparator || r == ' ' || r == '*' {
			out[i] = '_'
		}
	}
	return string(out)
}
