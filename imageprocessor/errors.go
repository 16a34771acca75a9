package imageprocessor

import (
	"errors"
	"fmt"
)

// ErrDegenerate reports a pattern mask with zero total intensity
var ErrDegenerate = errors.New("image has zero intensity above threshold")

// ImageReadError is returned when a path cannot be decoded as a grayscale image
type ImageReadError struct {
	Path string
	Err  error
}

func (e *ImageReadError) Error() string {
	return fmt.Sprintf("cannot read image %s: %v", e.Path, e.Err)
}

func (e *ImageReadError) Unwrap() error { return e.Err }

// DegenerateImageError is returned when the centroid of the pattern mask is undefined
type DegenerateImageError struct {
	Path string
}

func (e *DegenerateImageError) Error() string {
	return fmt.Sprintf("degenerate image %s: centroid undefined", e.Path)
}

func (e *DegenerateImageError) Unwrap() error { return ErrDegenerate }

func newImageLoadError(message, path string) error {
	return fmt.Errorf("%s: %s", message, path)
}
