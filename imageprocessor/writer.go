package imageprocessor

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"pacbedthickness/types"

	"gocv.io/x/gocv"
	"golang.org/x/image/tiff"
)

// WriteCanonical stores a grid at path. TIFF output is written losslessly
// with Deflate compression, other extensions go through OpenCV.
func WriteCanonical(path string, g types.Grayscale) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	if IsTiffFormat(path) {
		if err := writeTiff(path, g); err != nil {
			return err
		}
	} else {
		m, err := GrayscaleToMat(g)
		if err != nil {
			return err
		}
		defer m.Close()
		if !gocv.IMWrite(path, m) {
			return fmt.Errorf("failed to write %s", path)
		}
	}

	if !fileHasContent(path) {
		return fmt.Errorf("output file is empty: %s", path)
	}
	return nil
}

func writeTiff(path string, g types.Grayscale) error {
	if len(g.Pix) != g.Width*g.Height {
		return fmt.Errorf("grid of %dx%d has %d pixels", g.Width, g.Height, len(g.Pix))
	}
	img := &image.Gray{
		Pix:    g.Pix,
		Stride: g.Width,
		Rect:   image.Rect(0, 0, g.Width, g.Height),
	}

	// write next to the target and rename so readers never see a partial file
	tmp, err := os.CreateTemp(filepath.Dir(path), ".canonical-*.tif")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tiff.Encode(tmp, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		tmp.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
